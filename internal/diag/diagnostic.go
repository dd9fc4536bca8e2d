package diag

import "fmt"

// Location points at a call site. Line 0 means the call had no debug location.
type Location struct {
	Module string // IR file path, may be empty
	Func   string
	Line   uint32
}

func (l Location) String() string {
	switch {
	case l.Module == "" && l.Line == 0:
		return "@" + l.Func
	case l.Module == "":
		return fmt.Sprintf("@%s:%d", l.Func, l.Line)
	case l.Line == 0:
		return fmt.Sprintf("%s: @%s", l.Module, l.Func)
	default:
		return fmt.Sprintf("%s: @%s:%d", l.Module, l.Func, l.Line)
	}
}

type Diagnostic struct {
	Severity Severity
	Code     Code
	Message  string
	Primary  Location
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s %s %s: %s", d.Primary, d.Severity, d.Code.ID(), d.Message)
}
