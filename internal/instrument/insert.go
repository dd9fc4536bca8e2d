package instrument

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/metadata"
	"github.com/llir/llvm/ir/value"
)

func indexOf(b *ir.Block, inst ir.Instruction) (int, error) {
	for i, x := range b.Insts {
		if x == inst {
			return i, nil
		}
	}
	return -1, fmt.Errorf("instruction %s not found in block %s", inst.LLString(), b.Ident())
}

// insertAt splices insts into b before position i.
func insertAt(b *ir.Block, i int, insts ...ir.Instruction) {
	out := make([]ir.Instruction, 0, len(b.Insts)+len(insts))
	out = append(out, b.Insts[:i]...)
	out = append(out, insts...)
	out = append(out, b.Insts[i:]...)
	b.Insts = out
}

func removeAt(b *ir.Block, i int) {
	b.Insts = append(b.Insts[:i], b.Insts[i+1:]...)
}

type operandUser interface {
	Operands() []*value.Value
}

// replaceUses rewrites every operand of f equal to old so it refers to
// repl instead. Metadata-wrapped operands (llvm.dbg.value) are followed too.
func replaceUses(f *ir.Func, old, repl value.Value) int {
	n := 0
	swap := func(u any) {
		user, ok := u.(operandUser)
		if !ok {
			return
		}
		for _, op := range user.Operands() {
			switch v := (*op).(type) {
			case *metadata.Value:
				if v.Value == old {
					v.Value = repl
					n++
				}
			default:
				if *op == old {
					*op = repl
					n++
				}
			}
		}
	}
	for _, b := range f.Blocks {
		for _, inst := range b.Insts {
			if any(inst) != any(old) {
				swap(inst)
			}
		}
		if b.Term != nil {
			swap(b.Term)
		}
	}
	return n
}

type localID interface {
	IsUnnamed() bool
	SetID(id int64)
}

// clearLocalIDs drops the numbers parsed for unnamed locals (%0, %1, ...)
// so that AssignIDs can number f again after instructions were inserted.
func clearLocalIDs(f *ir.Func) {
	reset := func(v any) {
		if n, ok := v.(localID); ok && n.IsUnnamed() {
			n.SetID(0)
		}
	}
	for _, param := range f.Params {
		reset(param)
	}
	for _, b := range f.Blocks {
		reset(b)
		for _, inst := range b.Insts {
			reset(inst)
		}
		if b.Term != nil {
			reset(b.Term)
		}
	}
}
