package instrument

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/metadata"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

// augmentAllocator keeps the allocation call and appends
//
//	[%n = mul size_t %count, %size]      ; calloc only
//	[%addr = bitcast T* %p to i8*]       ; unless %p is already i8*
//	call void @klee_make_nondet(i8* %addr, size_t %n, i8* name, i32 id)
func (p *Pass) augmentAllocator(m *ir.Module, site CallSite) (SiteRecord, error) {
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

	id := p.allocatorIDs.next()
	label := DiagnosticName{Func: site.Func.Name(), Var: DynallocVar, Line: site.Line}
	g := newNameGlobal(m, p.names.claim(allocatorGlobalBase, id), label)

	nbytes, extra := byteCount(site, sizeT)
	var addr value.Value = site.Call
	if !site.Call.Type().Equal(types.I8Ptr) {
		cast := ir.NewBitCast(site.Call, types.I8Ptr)
		extra = append(extra, cast)
		addr = cast
	}
	reg := ir.NewCall(entry,
		addr,
		nbytes,
		constant.NewBitCast(g, types.I8Ptr),
		constant.NewInt(types.I32, int64(id)),
	)
	reg.Metadata = append(reg.Metadata, dbgOnly(site.Call.Metadata)...)
	extra = append(extra, reg)

	insertAt(site.Block, idx+1, extra...)

	return SiteRecord{
		ID:     id,
		Kind:   CategoryAllocator.String(),
		Name:   label.String(),
		Func:   label.Func,
		Var:    label.Var,
		Line:   label.Line,
		Callee: site.Callee.Name(),
		Global: g.Name(),
	}, nil
}

// byteCount builds the size operand for the registration plus whatever
// instructions compute it.
func byteCount(site CallSite, sizeT *types.IntType) (value.Value, []ir.Instruction) {
	var insts []ir.Instruction
	widen := func(v value.Value) value.Value {
		conv := fitInt(v, sizeT)
		if conv != v {
			insts = append(insts, conv.(ir.Instruction))
		}
		return conv
	}
	switch site.Pattern.Size {
	case SizeArgProduct:
		count := widen(site.Call.Args[0])
		size := widen(site.Call.Args[1])
		mul := ir.NewMul(count, size)
		insts = append(insts, mul)
		return mul, insts
	default:
		return widen(site.Call.Args[0]), insts
	}
}

// fitInt converts an integer value to t, or returns it unchanged.
func fitInt(v value.Value, t *types.IntType) value.Value {
	it, ok := v.Type().(*types.IntType)
	if !ok || it.BitSize == t.BitSize {
		return v
	}
	if it.BitSize < t.BitSize {
		return ir.NewZExt(v, t)
	}
	return ir.NewTrunc(v, t)
}

func dbgOnly(md []*metadata.Attachment) []*metadata.Attachment {
	for _, a := range md {
		if isDbg(a) {
			return []*metadata.Attachment{a}
		}
	}
	return nil
}
