package trace

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Scope is the granularity of an event; coarser scopes have lower values.
type Scope uint8

const (
	ScopeDriver Scope = iota + 1 // batch and per-module work
	ScopePass                    // discover, index-lines, plan, rewrite, augment
	ScopeFunc                    // per enclosing function
	ScopeSite                    // per call site
)

func (s Scope) String() string {
	switch s {
	case ScopeDriver:
		return "driver"
	case ScopePass:
		return "pass"
	case ScopeFunc:
		return "func"
	case ScopeSite:
		return "site"
	default:
		return "unknown"
	}
}

// Level selects which events reach a tracer.
type Level uint8

const (
	LevelOff    Level = iota
	LevelError        // failed spans only, any scope
	LevelPhase        // driver and pass spans
	LevelDetail       // plus per-function events
	LevelDebug        // plus one event per call site
)

var levelNames = [...]string{"off", "error", "phase", "detail", "debug"}

func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "unknown"
}

// ParseLevel accepts the names printed by Level.String.
func ParseLevel(s string) (Level, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range levelNames {
		if n == name {
			return Level(i), nil
		}
	}
	return LevelOff, fmt.Errorf("invalid trace level: %q (expected: %s)", s, strings.Join(levelNames[:], "|"))
}

// ShouldEmit reports whether ordinary events of scope pass this level.
// Failures are admitted from LevelError up regardless of scope.
func (l Level) ShouldEmit(scope Scope) bool {
	switch l {
	case LevelPhase:
		return scope <= ScopePass
	case LevelDetail:
		return scope <= ScopeFunc
	case LevelDebug:
		return true
	}
	return false
}

func (l Level) admits(ev *Event) bool {
	if ev.Failed {
		return l >= LevelError
	}
	return l.ShouldEmit(ev.Scope)
}

// Kind of an event.
type Kind uint8

const (
	KindSpanBegin Kind = iota + 1
	KindSpanEnd
	KindPoint
)

func (k Kind) String() string {
	switch k {
	case KindSpanBegin:
		return "begin"
	case KindSpanEnd:
		return "end"
	case KindPoint:
		return "point"
	default:
		return "unknown"
	}
}

// Attr is one key/value pair; events keep them in the order they were added.
type Attr struct {
	Key   string
	Value string
}

func String(key, value string) Attr { return Attr{Key: key, Value: value} }

func Int(key string, value int) Attr { return Attr{Key: key, Value: strconv.Itoa(value)} }

func Uint(key string, value uint64) Attr {
	return Attr{Key: key, Value: strconv.FormatUint(value, 10)}
}

// Event is a single trace record.
type Event struct {
	Time     time.Time
	Seq      uint64 // assigned by the first tracer that stores the event
	Kind     Kind
	Scope    Scope
	SpanID   uint64
	ParentID uint64
	Name     string // "discover", "unit", "site", ...
	Detail   string
	Elapsed  time.Duration // span end only
	Failed   bool
	Attrs    []Attr
}

// Attr returns the value of key, if present.
func (ev *Event) Attr(key string) (string, bool) {
	for _, a := range ev.Attrs {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

var (
	seqCounter  atomic.Uint64
	spanCounter atomic.Uint64
)

func stamp(ev *Event) {
	if ev.Seq == 0 {
		ev.Seq = seqCounter.Add(1)
	}
}
