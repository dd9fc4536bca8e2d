// Package trace records what a run did, from the batch down to single call
// sites, so that a skipped site or an odd name can be explained afterwards.
//
//	nondetify instrument --trace=- --trace-level=detail prog.ll
//	nondetify instrument --trace=run.ndjson --trace-level=debug *.ll
//
// Levels: error shows failed spans only; phase adds driver and pass spans;
// detail adds per-function events; debug adds one event per call site.
//
// The tracer travels in the context:
//
//	ctx = trace.WithTracer(ctx, tracer)
//	ctx, span := trace.Start(ctx, trace.ScopeDriver, "unit")
//	defer span.Finish(err)
//
// Tracers: Nop, StreamTracer (text or NDJSON), RingTracer (last N events,
// dumped when a command fails), MultiTracer.
package trace
