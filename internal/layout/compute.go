package layout

import (
	"github.com/llir/llvm/ir/types"
)

func (e *Engine) compute(t types.Type, state *layoutState) (TypeLayout, *Error) {
	switch t := t.(type) {
	case *types.IntType:
		return e.scalar(bitsToBytes(t.BitSize), e.DL.intABIBits(t.BitSize)/8), nil

	case *types.FloatType:
		bits, ok := floatBits(t.Kind)
		if !ok {
			return TypeLayout{Align: 1}, &Error{Kind: ErrUnsized, Type: t.String()}
		}
		store := bitsToBytes(bits)
		align := nextPow2(store)
		if as, ok := e.DL.Floats[bits]; ok {
			align = as.ABI / 8
		}
		return e.scalar(store, align), nil

	case *types.PointerType:
		as := e.DL.pointer(uint64(t.AddrSpace))
		return e.scalar(bitsToBytes(as.Size), as.ABI/8), nil

	case *types.ArrayType:
		elem, err := e.layoutOf(t.ElemType, state)
		if err != nil {
			return TypeLayout{Align: 1}, err
		}
		size := elem.Size * t.Len
		return TypeLayout{Size: size, StoreSize: size, Align: elem.Align}, nil

	case *types.VectorType:
		elemBits, err := e.elemBits(t.ElemType, state)
		if err != nil {
			return TypeLayout{Align: 1}, err
		}
		bits := elemBits * t.Len
		store := bitsToBytes(bits)
		align := nextPow2(store)
		if as, ok := e.DL.Vectors[bits]; ok {
			align = as.ABI / 8
		}
		return e.scalar(store, align), nil

	case *types.StructType:
		if t.Opaque {
			return TypeLayout{Align: 1}, &Error{Kind: ErrUnsized, Type: t.String()}
		}
		return e.structLayout(t, state)

	default:
		// void, label, func, metadata, token
		return TypeLayout{Align: 1}, &Error{Kind: ErrUnsized, Type: t.String()}
	}
}

func (e *Engine) structLayout(t *types.StructType, state *layoutState) (TypeLayout, *Error) {
	align := uint64(1)
	if !t.Packed {
		if agg := e.DL.Aggregate.ABI / 8; agg > align {
			align = agg
		}
	}
	offsets := make([]uint64, 0, len(t.Fields))
	var offset uint64
	for _, field := range t.Fields {
		fl, err := e.layoutOf(field, state)
		if err != nil {
			return TypeLayout{Align: 1}, err
		}
		fieldAlign := fl.Align
		if t.Packed {
			fieldAlign = 1
		}
		offset = alignTo(offset, fieldAlign)
		offsets = append(offsets, offset)
		offset += fl.Size
		if fieldAlign > align {
			align = fieldAlign
		}
	}
	size := alignTo(offset, align)
	return TypeLayout{Size: size, StoreSize: size, Align: align, FieldOffsets: offsets}, nil
}

func (e *Engine) elemBits(t types.Type, state *layoutState) (uint64, *Error) {
	switch t := t.(type) {
	case *types.IntType:
		return t.BitSize, nil
	case *types.FloatType:
		if bits, ok := floatBits(t.Kind); ok {
			return bits, nil
		}
	case *types.PointerType:
		return e.DL.PointerBits(uint64(t.AddrSpace)), nil
	}
	l, err := e.layoutOf(t, state)
	if err != nil {
		return 0, err
	}
	return l.StoreSize * 8, nil
}

func (e *Engine) scalar(store, align uint64) TypeLayout {
	if align == 0 {
		align = 1
	}
	return TypeLayout{Size: alignTo(store, align), StoreSize: store, Align: align}
}

func floatBits(kind types.FloatKind) (uint64, bool) {
	switch kind {
	case types.FloatKindHalf:
		return 16, true
	case types.FloatKindFloat:
		return 32, true
	case types.FloatKindDouble:
		return 64, true
	case types.FloatKindX86_FP80:
		return 80, true
	case types.FloatKindFP128, types.FloatKindPPC_FP128:
		return 128, true
	}
	return 0, false
}

func bitsToBytes(bits uint64) uint64 {
	return (bits + 7) / 8
}

func alignTo(n, align uint64) uint64 {
	if align <= 1 {
		return n
	}
	return (n + align - 1) / align * align
}

func nextPow2(n uint64) uint64 {
	p := uint64(1)
	for p < n {
		p <<= 1
	}
	return p
}
