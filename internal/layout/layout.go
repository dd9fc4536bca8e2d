package layout

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"
)

// TypeLayout is the ABI layout of an IR type for a specific DataLayout.
// All values are in bytes.
type TypeLayout struct {
	Size      uint64 // alloc size: store size rounded up to Align
	StoreSize uint64
	Align     uint64

	// Struct-only:
	FieldOffsets []uint64
}

// Engine answers size and alignment queries for one module.
type Engine struct {
	Target Target
	DL     *DataLayout

	cache *cache
}

// New creates a new Engine for the specified target and data layout.
// A nil dl means the LLVM defaults for target.
func New(target Target, dl *DataLayout) *Engine {
	if dl == nil {
		dl = DefaultDataLayout(target)
	}
	return &Engine{
		Target: target,
		DL:     dl,
		cache:  newCache(),
	}
}

// ForModule builds an Engine from the module's target triple and datalayout.
func ForModule(m *ir.Module) (*Engine, error) {
	if m == nil {
		return New(X86_64LinuxGNU(), nil), nil
	}
	target := TargetForTriple(m.TargetTriple)
	dl, err := ParseDataLayout(m.DataLayout, target)
	if err != nil {
		return nil, err
	}
	return New(target, dl), nil
}

type layoutState struct {
	stack []*types.StructType
	index map[*types.StructType]int
}

func newLayoutState() *layoutState {
	return &layoutState{
		index: make(map[*types.StructType]int, 8),
	}
}

// LayoutOf computes and caches the layout of a type.
func (e *Engine) LayoutOf(t types.Type) (TypeLayout, error) {
	if e.cache == nil {
		e.cache = newCache()
	}
	l, err := e.layoutOf(t, newLayoutState())
	if err != nil {
		return l, err
	}
	return l, nil
}

func (e *Engine) layoutOf(t types.Type, state *layoutState) (TypeLayout, *Error) {
	if cached, ok := e.cache.get(t); ok {
		return cached.Layout, cached.Err
	}
	st, isStruct := t.(*types.StructType)
	if isStruct {
		if idx, ok := state.index[st]; ok {
			cycle := make([]string, 0, len(state.stack)-idx+1)
			for _, s := range state.stack[idx:] {
				cycle = append(cycle, s.String())
			}
			cycle = append(cycle, st.String())
			err := &Error{Kind: ErrRecursiveUnsized, Type: st.String(), Cycle: cycle}
			e.cache.put(t, &cacheEntry{Layout: TypeLayout{Align: 1}, Err: err})
			return TypeLayout{Align: 1}, err
		}
		state.index[st] = len(state.stack)
		state.stack = append(state.stack, st)
	}
	l, err := e.compute(t, state)
	if isStruct {
		state.stack = state.stack[:len(state.stack)-1]
		delete(state.index, st)
	}
	e.cache.put(t, &cacheEntry{Layout: l, Err: err})
	return l, err
}

// AllocSize returns the number of bytes an alloca of t occupies.
func (e *Engine) AllocSize(t types.Type) (uint64, error) {
	l, err := e.LayoutOf(t)
	return l.Size, err
}

// ABIAlign returns the ABI alignment of t in bytes.
func (e *Engine) ABIAlign(t types.Type) (uint64, error) {
	l, err := e.LayoutOf(t)
	return l.Align, err
}

// PointerBits returns the width of a pointer in the default address space.
func (e *Engine) PointerBits() uint64 {
	return e.DL.PointerBits(0)
}
