package layout

import (
	"fmt"
	"strings"
)

// ErrorKind enumerates types of layout calculation errors.
type ErrorKind uint8

const (
	// ErrRecursiveUnsized indicates a struct that contains itself by value.
	ErrRecursiveUnsized ErrorKind = iota + 1
	// ErrUnsized is reported for void, label, function, metadata and opaque types.
	ErrUnsized
	// ErrBadSpec is reported for a malformed datalayout string.
	ErrBadSpec
)

// Error represents an error during memory layout calculation.
type Error struct {
	Kind  ErrorKind
	Type  string   // LLVM spelling of the offending type
	Cycle []string // for ErrRecursiveUnsized
	Spec  string   // for ErrBadSpec
	Err   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch e.Kind {
	case ErrRecursiveUnsized:
		if len(e.Cycle) == 0 {
			return fmt.Sprintf("recursive value type has infinite size (%s)", e.Type)
		}
		return fmt.Sprintf("recursive value type has infinite size (cycle: %s)", strings.Join(e.Cycle, " -> "))
	case ErrUnsized:
		return fmt.Sprintf("type %s has no size", e.Type)
	case ErrBadSpec:
		if e.Err != nil {
			return fmt.Sprintf("malformed datalayout spec %q: %v", e.Spec, e.Err)
		}
		return fmt.Sprintf("malformed datalayout spec %q", e.Spec)
	default:
		return fmt.Sprintf("layout error kind=%d type %s", e.Kind, e.Type)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
