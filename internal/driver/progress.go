package driver

import "time"

// Stage identifies a step of one unit.
type Stage uint8

const (
	StageRead Stage = iota
	StageParse
	StageScan
	StageInstrument
	StageEmit
)

func (s Stage) String() string {
	switch s {
	case StageRead:
		return "read"
	case StageParse:
		return "parse"
	case StageScan:
		return "scan"
	case StageInstrument:
		return "instrument"
	case StageEmit:
		return "emit"
	default:
		return "unknown"
	}
}

// Status is the state of a unit within its current stage.
type Status uint8

const (
	StatusQueued Status = iota
	StatusWorking
	StatusDone
	StatusError
	StatusSkipped
)

// Event reports progress of the unit at Index (the position in the batch).
type Event struct {
	Index   int
	IR      string
	Stage   Stage
	Status  Status
	Err     error
	Elapsed time.Duration
}

// ProgressSink consumes progress events. OnEvent is called from worker
// goroutines and must be safe for concurrent use.
type ProgressSink interface {
	OnEvent(Event)
}

// ChannelSink forwards events into a channel.
type ChannelSink struct {
	Ch chan<- Event
}

func (s ChannelSink) OnEvent(evt Event) {
	if s.Ch == nil {
		return
	}
	s.Ch <- evt
}

func emit(sink ProgressSink, evt Event) {
	if sink == nil {
		return
	}
	sink.OnEvent(evt)
}
