// Package events accumulates ordered progress events produced synchronously
// by a job runner and exposes them for pull-based draining by a transport.
//
// Events are tagged variants (start | log | end) with a fixed schema per
// tag, so consumers can switch exhaustively instead of inspecting ad hoc
// fields. Every run emits exactly one Start and exactly one End, regardless
// of outcome.
package events

import (
	"fmt"
	"time"

	"github.com/coppermind/ingrain/pkg/signal"
)

// Kind tags an event variant.
type Kind string

const (
	KindStart Kind = "start"
	KindLog   Kind = "log"
	KindEnd   Kind = "end"
)

// Event is one progress event. Implementations are Start, Log and End.
type Event interface {
	Kind() Kind
}

// Start brackets the beginning of a run. Emitted exactly once, first.
type Start struct {
	JobID      string            `json:"job_id"`
	State      signal.State      `json:"state"`
	StartedAt  time.Time         `json:"started_at"`
	Descriptor map[string]string `json:"source_descriptor,omitempty"`
}

func (Start) Kind() Kind { return KindStart }

// Log is one free-text progress line.
type Log struct {
	Line string `json:"line"`
}

func (Log) Kind() Kind { return KindLog }

// End brackets the termination of a run. Emitted exactly once, last, for
// every termination path (normal, cancelled, error).
type End struct {
	JobID      string        `json:"job_id"`
	State      signal.State  `json:"state"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Result     signal.Result `json:"result"`
}

func (End) Kind() Kind { return KindEnd }

// Logf formats a log event.
func Logf(format string, args ...any) Log {
	return Log{Line: fmt.Sprintf(format, args...)}
}
