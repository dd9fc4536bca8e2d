package instrument

import (
	"context"
	"errors"
	"fmt"

	"fortio.org/safecast"
	"github.com/llir/llvm/ir"

	"nondetify/internal/diag"
	"nondetify/internal/trace"
)

// Options configures a Pass.
type Options struct {
	// SourcePath is the C file the module was compiled from. It is only
	// read when some call site carries a debug line.
	SourcePath string
	// EntryPoint defaults to DefaultEntryPoint.
	EntryPoint string
	// Registry defaults to DefaultRegistry().
	Registry *Registry
	// Reporter receives non-fatal findings; nil drops them.
	Reporter diag.Reporter
}

// SiteRecord describes one instrumented call site.
type SiteRecord struct {
	ID     uint32 `json:"id" msgpack:"id"`
	Kind   string `json:"kind" msgpack:"kind"`
	Name   string `json:"name" msgpack:"name"`
	Func   string `json:"func" msgpack:"func"`
	Var    string `json:"var" msgpack:"var"`
	Line   uint32 `json:"line" msgpack:"line"`
	Callee string `json:"callee" msgpack:"callee"`
	Global string `json:"global" msgpack:"global"`
	Size   uint64 `json:"size,omitempty" msgpack:"size,omitempty"`
}

// Result summarizes one Run.
type Result struct {
	Changed bool
	// Skipped counts recognized calls left alone (see diagnostics).
	Skipped int
	Sites   []SiteRecord
}

// Producers counts producer sites in r.
func (r *Result) Producers() int { return r.count(CategoryProducer) }

// Allocators counts allocator sites in r.
func (r *Result) Allocators() int { return r.count(CategoryAllocator) }

func (r *Result) count(c Category) int {
	n := 0
	for _, s := range r.Sites {
		if s.Kind == c.String() {
			n++
		}
	}
	return n
}

// counter hands out 1, 2, 3, ... within one run.
type counter struct{ last uint32 }

func (c *counter) next() uint32 {
	c.last++
	return c.last
}

func (c *counter) reset() { c.last = 0 }

// Pass instruments one module at a time. It is not safe for concurrent use;
// give every goroutine its own Pass.
type Pass struct {
	opts Options

	decls *declCache
	names *globalNamer

	// producers and allocators are numbered independently
	producerIDs  counter
	allocatorIDs counter
}

func New(opts Options) *Pass {
	if opts.Registry == nil {
		opts.Registry = DefaultRegistry()
	}
	if opts.EntryPoint == "" {
		opts.EntryPoint = DefaultEntryPoint
	}
	if opts.Reporter == nil {
		opts.Reporter = diag.NopReporter{}
	}
	return &Pass{opts: opts}
}

// Run instruments m in place. On error the module is left untouched unless
// the error wraps ErrMutation.
func (p *Pass) Run(ctx context.Context, m *ir.Module) (*Result, error) {
	if m == nil {
		return nil, errors.New("instrument: nil module")
	}
	p.decls = newDeclCache(p.opts.EntryPoint)
	p.names = nil
	p.producerIDs.reset()
	p.allocatorIDs.reset()

	ctx, span := trace.Start(ctx, trace.ScopePass, "instrument")
	res, err := p.run(ctx, m, span.ID())
	if res != nil {
		span.With(trace.Int("sites", len(res.Sites)), trace.Int("skipped", res.Skipped))
	}
	span.Finish(err)
	return res, err
}

func (p *Pass) run(ctx context.Context, m *ir.Module, parent uint64) (*Result, error) {
	tracer := trace.FromContext(ctx)

	span := trace.Begin(tracer, trace.ScopePass, "discover", parent)
	disc := Scan(m, p.opts.Registry, p.opts.EntryPoint, p.opts.Reporter)
	span.With(
		trace.Int("producers", len(disc.Producers)),
		trace.Int("allocators", len(disc.Allocators)),
		trace.Int("lines", len(disc.Lines)),
	).End("")

	res := &Result{Skipped: disc.Skipped}
	if disc.Empty() {
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	span = trace.Begin(tracer, trace.ScopePass, "index-lines", parent)
	lines, err := IndexLines(p.opts.SourcePath, disc.Lines)
	span.Finish(err)
	if err != nil {
		return nil, err
	}

	span = trace.Begin(tracer, trace.ScopePass, "plan", parent)
	plans, err := p.plan(m, disc, lines)
	span.Finish(err)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// nothing below may fail on a well-formed module; from here on m changes
	p.names = newGlobalNamer(m)
	touched := make(map[*ir.Func]struct{})

	span = trace.Begin(tracer, trace.ScopePass, "rewrite", parent)
	for _, plan := range plans {
		rec, err := p.rewriteProducer(m, plan)
		if err != nil {
			span.Finish(err)
			return nil, fmt.Errorf("%w: %w", ErrMutation, err)
		}
		touched[plan.site.Func] = struct{}{}
		res.Sites = append(res.Sites, rec)
		siteEvent(tracer, span.ID(), rec)
	}
	span.End("")

	span = trace.Begin(tracer, trace.ScopePass, "augment", parent)
	for _, site := range disc.Allocators {
		rec, err := p.augmentAllocator(m, site)
		if err != nil {
			span.Finish(err)
			return nil, fmt.Errorf("%w: %w", ErrMutation, err)
		}
		touched[site.Func] = struct{}{}
		res.Sites = append(res.Sites, rec)
		siteEvent(tracer, span.ID(), rec)
	}
	span.End("")

	for _, f := range m.Funcs {
		if _, ok := touched[f]; !ok {
			continue
		}
		clearLocalIDs(f)
		if err := f.AssignIDs(); err != nil {
			return nil, fmt.Errorf("%w: @%s: %w", ErrMutation, f.Name(), err)
		}
		trace.Point(tracer, trace.ScopeFunc, "renumber", parent, trace.String("func", f.Name()))
	}
	res.Changed = true
	return res, nil
}

// ErrMutation marks failures after the module was partially rewritten.
var ErrMutation = errors.New("module partially instrumented")

// plan resolves names and layouts for every producer, and checks the entry
// point, without mutating m.
func (p *Pass) plan(m *ir.Module, disc *Discovery, lines SourceLines) ([]producerPlan, error) {
	engine, err := p.decls.Layout(m)
	if err != nil {
		return nil, err
	}
	if err := p.decls.CheckEntryPoint(m); err != nil {
		return nil, err
	}
	prefixes := p.opts.Registry.ProducerPrefixes()
	plans := make([]producerPlan, 0, len(disc.Producers))
	for _, site := range disc.Producers {
		l, err := engine.LayoutOf(site.Call.Type())
		if err != nil {
			return nil, fmt.Errorf("%s: result of @%s: %w", site.Location(), site.Callee.Name(), err)
		}
		nbytes, err := safecast.Conv[int64](l.Size)
		if err != nil {
			return nil, fmt.Errorf("%s: result of @%s is too large: %w", site.Location(), site.Callee.Name(), err)
		}
		plans = append(plans, producerPlan{
			site:   site,
			label:  p.producerLabel(site, lines, prefixes),
			nbytes: nbytes,
			align:  l.Align,
		})
	}
	return plans, nil
}

func (p *Pass) producerLabel(site CallSite, lines SourceLines, prefixes []string) DiagnosticName {
	label := DiagnosticName{Func: site.Func.Name(), Var: UnknownVar, Line: site.Line}
	if site.Line == 0 {
		return label
	}
	text, _ := lines.Lookup(site.Line)
	if name, ok := ExtractVariable(text, prefixes...); ok {
		label.Var = name
		return label
	}
	p.opts.Reporter.Report(diag.NameNotRecovered, diag.SevInfo, site.Location(),
		fmt.Sprintf("no assignment from @%s on source line %d", site.Callee.Name(), site.Line))
	return label
}

func siteEvent(t trace.Tracer, parent uint64, rec SiteRecord) {
	trace.Point(t, trace.ScopeSite, "site", parent,
		trace.Uint("id", uint64(rec.ID)),
		trace.String("name", rec.Name),
		trace.String("global", rec.Global),
	)
}
