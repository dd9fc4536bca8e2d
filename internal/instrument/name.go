package instrument

import (
	"fmt"
	"strconv"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
)

const (
	// UnknownVar stands in for a variable that could not be recovered,
	// including sites without a debug line.
	UnknownVar = "--"
	// DynallocVar is the variable slot of every allocator name.
	DynallocVar = "dynalloc"
)

const (
	producerGlobalBase  = ".nondet.name"
	allocatorGlobalBase = ".dynalloc.name"
)

// DiagnosticName is the "func:var:line" label handed to the engine.
type DiagnosticName struct {
	Func string
	Var  string
	Line uint32
}

func (n DiagnosticName) String() string {
	return n.Func + ":" + n.Var + ":" + strconv.FormatUint(uint64(n.Line), 10)
}

// globalNamer hands out module-unique names for the string constants.
type globalNamer struct {
	taken map[string]struct{}
}

func newGlobalNamer(m *ir.Module) *globalNamer {
	taken := make(map[string]struct{}, len(m.Globals)+len(m.Funcs))
	for _, g := range m.Globals {
		taken[g.Name()] = struct{}{}
	}
	for _, f := range m.Funcs {
		taken[f.Name()] = struct{}{}
	}
	for _, a := range m.Aliases {
		taken[a.Name()] = struct{}{}
	}
	for _, i := range m.IFuncs {
		taken[i.Name()] = struct{}{}
	}
	return &globalNamer{taken: taken}
}

func (n *globalNamer) claim(base string, id uint32) string {
	name := base + "." + strconv.FormatUint(uint64(id), 10)
	for k := 1; ; k++ {
		if _, used := n.taken[name]; !used {
			break
		}
		name = fmt.Sprintf("%s.%d.%d", base, id, k)
	}
	n.taken[name] = struct{}{}
	return name
}

// newNameGlobal emits a private, unnamed_addr, NUL-terminated constant
// holding label.
func newNameGlobal(m *ir.Module, name string, label DiagnosticName) *ir.Global {
	g := m.NewGlobalDef(name, constant.NewCharArrayFromString(label.String()+"\x00"))
	g.Immutable = true
	g.Linkage = enum.LinkagePrivate
	g.UnnamedAddr = enum.UnnamedAddrUnnamedAddr
	g.Align = 1
	return g
}
