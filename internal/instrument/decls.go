package instrument

import (
	"errors"
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"

	"nondetify/internal/layout"
)

// DefaultEntryPoint is the engine function every registration calls:
//
//	void klee_make_nondet(i8* addr, size_t nbytes, i8* name, i32 id)
const DefaultEntryPoint = "klee_make_nondet"

// ErrEntryPointSignature is returned when the module already defines or
// declares the entry point with a different type.
var ErrEntryPointSignature = errors.New("registration entry point has an incompatible signature")

// declCache resolves module-level declarations once per run.
type declCache struct {
	entryName string

	engine *layout.Engine
	sizeT  *types.IntType
	entry  *ir.Func
}

func newDeclCache(entryName string) *declCache {
	if entryName == "" {
		entryName = DefaultEntryPoint
	}
	return &declCache{entryName: entryName}
}

// Layout returns the size/alignment engine for m.
func (c *declCache) Layout(m *ir.Module) (*layout.Engine, error) {
	if c.engine != nil {
		return c.engine, nil
	}
	engine, err := layout.ForModule(m)
	if err != nil {
		return nil, fmt.Errorf("datalayout: %w", err)
	}
	c.engine = engine
	return engine, nil
}

// SizeType is i64 on targets whose pointers are wider than 32 bits and i32
// on the rest.
func (c *declCache) SizeType(m *ir.Module) (*types.IntType, error) {
	if c.sizeT != nil {
		return c.sizeT, nil
	}
	engine, err := c.Layout(m)
	if err != nil {
		return nil, err
	}
	if engine.PointerBits() > 32 {
		c.sizeT = types.I64
	} else {
		c.sizeT = types.I32
	}
	return c.sizeT, nil
}

func (c *declCache) entrySignature(m *ir.Module) (*types.FuncType, error) {
	sizeT, err := c.SizeType(m)
	if err != nil {
		return nil, err
	}
	return types.NewFunc(types.Void, types.I8Ptr, sizeT, types.I8Ptr, types.I32), nil
}

// CheckEntryPoint verifies that an existing entry point, if any, has the
// expected type. It never mutates m.
func (c *declCache) CheckEntryPoint(m *ir.Module) error {
	want, err := c.entrySignature(m)
	if err != nil {
		return err
	}
	f := findFunc(m, c.entryName)
	if f == nil {
		return nil
	}
	if !f.Sig.Equal(want) {
		return fmt.Errorf("%w: @%s is %s, want %s", ErrEntryPointSignature, c.entryName, f.Sig, want)
	}
	return nil
}

// EntryPoint returns the registration function, declaring it on first use.
// Repeated calls within a run return the same function.
func (c *declCache) EntryPoint(m *ir.Module) (*ir.Func, error) {
	if c.entry != nil {
		return c.entry, nil
	}
	if err := c.CheckEntryPoint(m); err != nil {
		return nil, err
	}
	if f := findFunc(m, c.entryName); f != nil {
		c.entry = f
		return f, nil
	}
	sizeT, err := c.SizeType(m)
	if err != nil {
		return nil, err
	}
	c.entry = m.NewFunc(c.entryName, types.Void,
		ir.NewParam("addr", types.I8Ptr),
		ir.NewParam("nbytes", sizeT),
		ir.NewParam("name", types.I8Ptr),
		ir.NewParam("id", types.I32),
	)
	return c.entry, nil
}

func findFunc(m *ir.Module, name string) *ir.Func {
	for _, f := range m.Funcs {
		if f.Name() == name {
			return f
		}
	}
	return nil
}
