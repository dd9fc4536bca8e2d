package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/llir/llvm/asm"
	"golang.org/x/sync/errgroup"

	"nondetify/internal/diag"
	"nondetify/internal/instrument"
	"nondetify/internal/observ"
	"nondetify/internal/trace"
)

// Options configures a batch run.
type Options struct {
	Jobs           int
	EntryPoint     string
	Registry       *instrument.Registry
	MaxDiagnostics int
	// DryRun only discovers call sites; nothing is written.
	DryRun bool
	// Stdout receives units whose output is StdoutPath.
	Stdout io.Writer
	// Progress, if set, receives per-unit stage events.
	Progress ProgressSink
}

// Outcome is the per-unit result. Exactly one of Result and Discovery is
// set on success, depending on Options.DryRun.
type Outcome struct {
	Unit      Unit
	Source    string
	Result    *instrument.Result
	Discovery *instrument.Discovery
	Bag       *diag.Bag
	Timing    observ.Report
	Err       error
}

// Run processes units concurrently, one instrument.Pass per unit. The first
// fatal unit error cancels units that have not started and is returned;
// outcomes of finished units are kept.
func Run(ctx context.Context, units []Unit, opts Options) ([]Outcome, error) {
	units, err := normalize(units)
	if err != nil {
		return nil, err
	}
	if len(units) == 0 {
		return nil, nil
	}
	if opts.Registry == nil {
		opts.Registry = instrument.DefaultRegistry()
	}
	if opts.MaxDiagnostics <= 0 {
		opts.MaxDiagnostics = 256
	}
	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	ctx, batch := trace.Start(ctx, trace.ScopeDriver, "batch")
	batch.With(trace.Int("units", len(units)), trace.Int("jobs", jobs))
	defer batch.End("")

	out := &stdout{w: opts.Stdout}
	// индексы уникальны для каждой горутины, мьютекс не нужен
	outcomes := make([]Outcome, len(units))
	for i, u := range units {
		emit(opts.Progress, Event{Index: i, IR: u.IR, Status: StatusQueued})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(units)))
	for i, u := range units {
		i, u := i, u
		g.Go(func() error {
			select {
			case <-gctx.Done():
				outcomes[i] = Outcome{Unit: u, Err: gctx.Err()}
				emit(opts.Progress, Event{Index: i, IR: u.IR, Status: StatusSkipped, Err: gctx.Err()})
				return nil
			default:
			}
			outcomes[i] = runUnit(gctx, i, u, opts, out)
			if outcomes[i].Err != nil {
				return fmt.Errorf("%s: %w", u.IR, outcomes[i].Err)
			}
			return nil
		})
	}
	return outcomes, g.Wait()
}

func runUnit(ctx context.Context, index int, u Unit, opts Options, out *stdout) (res Outcome) {
	ctx, span := trace.Start(ctx, trace.ScopeDriver, "unit")
	span.With(trace.String("ir", u.IR))

	res = Outcome{Unit: u, Bag: diag.NewBag(opts.MaxDiagnostics)}
	timer := observ.NewTimer()
	start := time.Now()
	var stage Stage
	begin := func(s Stage) func(string) {
		stage = s
		emit(opts.Progress, Event{Index: index, IR: u.IR, Stage: s, Status: StatusWorking})
		return timer.Start(s.String())
	}
	defer func() {
		res.Timing = timer.Report()
		span.Finish(res.Err)
		evt := Event{Index: index, IR: u.IR, Stage: stage, Status: StatusDone, Elapsed: time.Since(start)}
		if res.Err != nil {
			evt.Status = StatusError
			evt.Err = res.Err
		}
		emit(opts.Progress, evt)
	}()

	stop := begin(StageRead)
	data, err := readInput(u.IR)
	stop("")
	if err != nil {
		res.Err = err
		return res
	}

	stop = begin(StageParse)
	m, err := asm.ParseBytes(u.IR, data)
	stop("")
	if err != nil {
		res.Err = fmt.Errorf("parse: %w", err)
		return res
	}

	rep := diag.ModuleReporter{Module: u.IR, Next: diag.BagReporter{Bag: res.Bag}}
	if opts.DryRun {
		stop = begin(StageScan)
		res.Discovery = instrument.Scan(m, opts.Registry, opts.EntryPoint, rep)
		stop(fmt.Sprintf("%d sites", len(res.Discovery.Producers)+len(res.Discovery.Allocators)))
		return res
	}

	res.Source = resolveSource(u, m.SourceFilename)
	pass := instrument.New(instrument.Options{
		SourcePath: res.Source,
		EntryPoint: opts.EntryPoint,
		Registry:   opts.Registry,
		Reporter:   rep,
	})
	stop = begin(StageInstrument)
	res.Result, err = pass.Run(ctx, m)
	if err != nil {
		stop("")
		res.Err = err
		return res
	}
	stop(fmt.Sprintf("%d sites", len(res.Result.Sites)))

	stop = begin(StageEmit)
	if res.Result.Changed {
		data = []byte(m.String())
	}
	if u.Output == StdoutPath {
		err = out.write(data)
	} else {
		err = writeAtomic(u.Output, data)
	}
	stop("")
	if err != nil {
		res.Err = fmt.Errorf("write %s: %w", u.Output, err)
	}
	return res
}

func readInput(path string) ([]byte, error) {
	if path == StdoutPath {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// stdout serializes whole modules onto one writer.
type stdout struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *stdout) write(data []byte) error {
	if s.w == nil {
		return errors.New("no stdout writer configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.w.Write(data)
	return err
}
