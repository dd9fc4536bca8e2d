package trace

import "time"

// Span is an open begin/end pair. A span from a disabled tracer is inert;
// all methods are safe on it and on nil.
type Span struct {
	tracer  Tracer
	id      uint64
	parent  uint64
	scope   Scope
	name    string
	started time.Time
	attrs   []Attr
	// begin was written; the end event follows it unconditionally
	opened bool
}

// Begin starts a span under parent (0 for a root span). The begin event is
// only written when scope passes the tracer's level; the span still exists
// from LevelError up so that a failing End can be reported.
func Begin(t Tracer, scope Scope, name string, parent uint64) *Span {
	if t == nil || t.Level() == LevelOff {
		return &Span{}
	}
	s := &Span{
		tracer:  t,
		id:      spanCounter.Add(1),
		parent:  parent,
		scope:   scope,
		name:    name,
		started: time.Now(),
	}
	if t.Level().ShouldEmit(scope) {
		s.opened = true
		t.Emit(&Event{
			Time:     s.started,
			Kind:     KindSpanBegin,
			Scope:    scope,
			SpanID:   s.id,
			ParentID: parent,
			Name:     name,
		})
	}
	return s
}

// With attaches attributes to the end event.
func (s *Span) With(attrs ...Attr) *Span {
	if s == nil || s.tracer == nil {
		return s
	}
	s.attrs = append(s.attrs, attrs...)
	return s
}

// End closes the span with an optional detail.
func (s *Span) End(detail string) time.Duration {
	return s.finish(detail, false)
}

// Finish closes the span; a non-nil err marks it failed.
func (s *Span) Finish(err error) time.Duration {
	if err != nil {
		return s.finish(err.Error(), true)
	}
	return s.finish("", false)
}

func (s *Span) finish(detail string, failed bool) time.Duration {
	if s == nil || s.tracer == nil {
		return 0
	}
	elapsed := time.Since(s.started)
	if !s.opened && !failed {
		return elapsed
	}
	s.tracer.Emit(&Event{
		Time:     time.Now(),
		Kind:     KindSpanEnd,
		Scope:    s.scope,
		SpanID:   s.id,
		ParentID: s.parent,
		Name:     s.name,
		Detail:   detail,
		Elapsed:  elapsed,
		Failed:   failed,
		Attrs:    s.attrs,
	})
	return elapsed
}

// ID is 0 for an inert span.
func (s *Span) ID() uint64 {
	if s == nil {
		return 0
	}
	return s.id
}

// Point emits an instant event under parent.
func Point(t Tracer, scope Scope, name string, parent uint64, attrs ...Attr) {
	if t == nil || !t.Level().ShouldEmit(scope) {
		return
	}
	t.Emit(&Event{
		Time:     time.Now(),
		Kind:     KindPoint,
		Scope:    scope,
		ParentID: parent,
		Name:     name,
		Attrs:    attrs,
	})
}
