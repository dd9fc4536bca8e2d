package instrument

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
)

// producerPlan is everything a producer rewrite needs, resolved before the
// module is touched.
type producerPlan struct {
	site   CallSite
	label  DiagnosticName
	nbytes int64
	align  uint64
}

// rewriteProducer replaces
//
//	%v = call T @__VERIFIER_nondet_x()
//
// with
//
//	%slot = alloca T
//	%addr = bitcast T* %slot to i8*
//	call void @klee_make_nondet(i8* %addr, size_t sizeof(T), i8* name, i32 id)
//	%v' = load T, T* %slot
//
// and points every use of %v at %v'.
func (p *Pass) rewriteProducer(m *ir.Module, plan producerPlan) (SiteRecord, error) {
	site := plan.site
	entry, err := p.decls.EntryPoint(m)
	if err != nil {
		return SiteRecord{}, err
	}
	sizeT, err := p.decls.SizeType(m)
	if err != nil {
		return SiteRecord{}, err
	}
	idx, err := indexOf(site.Block, site.Call)
	if err != nil {
		return SiteRecord{}, fmt.Errorf("@%s: %w", site.Func.Name(), err)
	}

	id := p.producerIDs.next()
	g := newNameGlobal(m, p.names.claim(producerGlobalBase, id), plan.label)

	typ := site.Call.Type()
	slot := ir.NewAlloca(typ)
	slot.Align = ir.Align(plan.align)
	addr := ir.NewBitCast(slot, types.I8Ptr)
	reg := ir.NewCall(entry,
		addr,
		constant.NewInt(sizeT, plan.nbytes),
		constant.NewBitCast(g, types.I8Ptr),
		constant.NewInt(types.I32, int64(id)),
	)
	reg.Metadata = append(reg.Metadata, site.Call.Metadata...)
	reg.FuncAttrs = append(reg.FuncAttrs, site.Call.FuncAttrs...)
	val := ir.NewLoad(typ, slot)
	val.Align = slot.Align

	inserted := []ir.Instruction{slot, addr, reg, val}
	insertAt(site.Block, idx, inserted...)
	replaceUses(site.Func, site.Call, val)
	removeAt(site.Block, idx+len(inserted))

	return SiteRecord{
		ID:     id,
		Kind:   CategoryProducer.String(),
		Name:   plan.label.String(),
		Func:   plan.label.Func,
		Var:    plan.label.Var,
		Line:   plan.label.Line,
		Callee: site.Callee.Name(),
		Global: g.Name(),
		Size:   uint64(plan.nbytes),
	}, nil
}
