package instrument

import (
	"fmt"
	"strings"

	"fortio.org/safecast"
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/metadata"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"nondetify/internal/diag"
)

// Category classifies a discovered call site.
type Category uint8

const (
	CategoryProducer Category = iota + 1
	CategoryAllocator
)

func (c Category) String() string {
	switch c {
	case CategoryProducer:
		return "producer"
	case CategoryAllocator:
		return "allocator"
	default:
		return fmt.Sprintf("Category(%d)", c)
	}
}

// CallSite is one direct call to a recognized declaration.
type CallSite struct {
	Category Category
	Pattern  Pattern
	Callee   *ir.Func
	Call     *ir.InstCall
	Block    *ir.Block
	Func     *ir.Func
	// Line is the debug line of the call, 0 when unknown.
	Line uint32
}

// Location converts the site into a diagnostic location.
func (s CallSite) Location() diag.Location {
	return diag.Location{Func: s.Func.Name(), Line: s.Line}
}

// Discovery is the read-only result of scanning a module.
type Discovery struct {
	Producers  []CallSite
	Allocators []CallSite
	Lines      LineSet
	// Skipped counts recognized calls that will not be instrumented.
	Skipped int
}

func (d *Discovery) Empty() bool {
	return len(d.Producers) == 0 && len(d.Allocators) == 0
}

// Scan walks every defined function of m and collects call sites for the
// declarations reg recognizes. It never mutates m. Sites are grouped by
// callee in declaration order; calls to one callee keep program order.
func Scan(m *ir.Module, reg *Registry, entryName string, rep diag.Reporter) *Discovery {
	if reg == nil {
		reg = DefaultRegistry()
	}
	if entryName == "" {
		entryName = DefaultEntryPoint
	}
	if rep == nil {
		rep = diag.NopReporter{}
	}
	d := &Discovery{Lines: make(LineSet)}

	matched := make(map[*ir.Func]Pattern)
	var order []*ir.Func
	for _, f := range m.Funcs {
		// only bodiless declarations; a defined malloc is user code
		if len(f.Blocks) != 0 || f.Name() == entryName {
			continue
		}
		if p, ok := reg.Lookup(f.Name()); ok {
			matched[f] = p
			order = append(order, f)
		}
	}
	if len(order) == 0 {
		return d
	}

	uses := make(map[*ir.Func][]CallSite, len(order))
	for _, f := range m.Funcs {
		for _, b := range f.Blocks {
			for i, inst := range b.Insts {
				call, ok := inst.(*ir.InstCall)
				if !ok {
					continue
				}
				callee, p, ok := resolveCallee(call, matched)
				if !ok {
					continue
				}
				site := CallSite{
					Category: categoryOf(p.Handler),
					Pattern:  p,
					Callee:   callee,
					Call:     call,
					Block:    b,
					Func:     f,
				}
				if _, direct := call.Callee.(*ir.Func); !direct {
					rep.Report(diag.SiteIndirectCallee, diag.SevWarning, site.Location(),
						fmt.Sprintf("call to @%s goes through a cast and is not instrumented", callee.Name()))
					d.Skipped++
					continue
				}
				site.Line = siteLine(call, site, rep)
				if !admit(site, b.Insts, i, entryName, rep) {
					d.Skipped++
					continue
				}
				uses[callee] = append(uses[callee], site)
			}
		}
	}

	for _, callee := range order {
		for _, site := range uses[callee] {
			d.Lines.Add(site.Line)
			switch site.Category {
			case CategoryProducer:
				d.Producers = append(d.Producers, site)
			case CategoryAllocator:
				d.Allocators = append(d.Allocators, site)
			}
		}
	}
	return d
}

func categoryOf(h Handler) Category {
	if h == AugmentAllocator {
		return CategoryAllocator
	}
	return CategoryProducer
}

// resolveCallee finds the recognized declaration a call targets, looking
// through a constant bitcast of the callee.
func resolveCallee(call *ir.InstCall, matched map[*ir.Func]Pattern) (*ir.Func, Pattern, bool) {
	var target value.Value = call.Callee
	if c, ok := target.(*constant.ExprBitCast); ok {
		target = c.From
	}
	f, ok := target.(*ir.Func)
	if !ok {
		return nil, Pattern{}, false
	}
	p, ok := matched[f]
	return f, p, ok
}

// admit decides whether a site can be instrumented, reporting why not.
func admit(site CallSite, insts []ir.Instruction, idx int, entryName string, rep diag.Reporter) bool {
	call := site.Call
	switch site.Category {
	case CategoryProducer:
		if _, void := call.Type().(*types.VoidType); void {
			rep.Report(diag.SiteVoidProducer, diag.SevWarning, site.Location(),
				fmt.Sprintf("@%s returns void; nothing to make symbolic", site.Callee.Name()))
			return false
		}
	case CategoryAllocator:
		need := site.Pattern.Size.minArgs()
		if len(call.Args) < need {
			rep.Report(diag.SiteAllocatorArity, diag.SevWarning, site.Location(),
				fmt.Sprintf("@%s called with %d arguments, size rule %s needs %d", site.Callee.Name(), len(call.Args), site.Pattern.Size, need))
			return false
		}
		if _, ok := call.Type().(*types.PointerType); !ok {
			rep.Report(diag.SiteAllocatorShape, diag.SevWarning, site.Location(),
				fmt.Sprintf("@%s returns %s, not a pointer", site.Callee.Name(), call.Type()))
			return false
		}
		for _, arg := range call.Args[:need] {
			if _, ok := arg.Type().(*types.IntType); !ok {
				rep.Report(diag.SiteAllocatorShape, diag.SevWarning, site.Location(),
					fmt.Sprintf("@%s size argument has type %s", site.Callee.Name(), arg.Type()))
				return false
			}
		}
		if alreadyRegistered(insts, idx, call, entryName) {
			rep.Report(diag.SiteAlreadyHandled, diag.SevInfo, site.Location(),
				fmt.Sprintf("@%s result is already registered", site.Callee.Name()))
			return false
		}
	}
	return true
}

// alreadyRegistered reports whether the instructions right after an
// allocator call are the registration the pass itself emits: integer
// conversions of the size arguments, an optional mul, an optional bitcast of
// the result, then the entry point call. A second run leaves such sites alone.
func alreadyRegistered(insts []ir.Instruction, idx int, call *ir.InstCall, entryName string) bool {
	sizes := make(map[any]bool, len(call.Args)+3)
	for _, arg := range call.Args {
		sizes[valueKey(arg)] = true
	}
	var ptr value.Value = call
	for _, next := range insts[idx+1:] {
		switch inst := next.(type) {
		case *ir.InstZExt:
			if !sizes[valueKey(inst.From)] {
				return false
			}
			sizes[valueKey(inst)] = true
		case *ir.InstTrunc:
			if !sizes[valueKey(inst.From)] {
				return false
			}
			sizes[valueKey(inst)] = true
		case *ir.InstMul:
			if !sizes[valueKey(inst.X)] || !sizes[valueKey(inst.Y)] {
				return false
			}
			sizes[valueKey(inst)] = true
		case *ir.InstBitCast:
			if inst.From != value.Value(call) || ptr != value.Value(call) {
				return false
			}
			ptr = inst
		case *ir.InstCall:
			callee, ok := inst.Callee.(*ir.Func)
			if !ok || callee.Name() != entryName || len(inst.Args) < 2 {
				return false
			}
			return inst.Args[0] == ptr && sizes[valueKey(inst.Args[1])]
		default:
			return false
		}
	}
	return false
}

// valueKey identifies v for alreadyRegistered. Constants are compared by
// text: a reparsed module gives every use of i64 4 its own *constant.Int.
func valueKey(v value.Value) any {
	if c, ok := v.(constant.Constant); ok {
		return c.String()
	}
	return v
}

// siteLine reads the !dbg line of a call. Missing or zero lines yield 0.
func siteLine(call *ir.InstCall, site CallSite, rep diag.Reporter) uint32 {
	raw, ok := debugLine(call)
	if !ok || raw == 0 {
		if site.Category == CategoryProducer {
			rep.Report(diag.NameNoDebugLoc, diag.SevInfo, site.Location(),
				fmt.Sprintf("call to @%s has no debug location", site.Callee.Name()))
		}
		return 0
	}
	line, err := safecast.Conv[uint32](raw)
	if err != nil {
		rep.Report(diag.NameLineTooLarge, diag.SevWarning, site.Location(),
			fmt.Sprintf("debug line %d out of range: %v", raw, err))
		return 0
	}
	return line
}

func debugLine(call *ir.InstCall) (int64, bool) {
	for _, md := range call.Metadata {
		if !isDbg(md) {
			continue
		}
		if loc, ok := md.Node.(*metadata.DILocation); ok {
			return loc.Line, true
		}
	}
	return 0, false
}

func isDbg(a *metadata.Attachment) bool {
	return strings.TrimPrefix(a.Name, "!") == "dbg"
}
