package events

import (
	"sync"
	"time"

	"github.com/coppermind/ingrain/pkg/signal"
)

// Buffer is an ordered event buffer: single producer (the runner, emitting
// synchronously), drained by one consumer loop.
//
// Emit never blocks on a consumer being present, and Drain never blocks on
// the producer: a transport that only drains at the very end still receives
// every event, just without real-time delivery. Transports should drain
// after every checkpoint-sized unit of work.
type Buffer struct {
	mu     sync.Mutex
	events []Event
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

// Emit appends an event to the buffer.
func (b *Buffer) Emit(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

// Drain atomically removes and returns all buffered events in FIFO order.
// Returns nil when nothing is buffered.
func (b *Buffer) Drain() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) == 0 {
		return nil
	}
	out := b.events
	b.events = nil
	return out
}

// Len returns the number of currently buffered events.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// EmitStart emits the run's opening bracket event.
func (b *Buffer) EmitStart(jobID string, startedAt time.Time, descriptor map[string]string) {
	b.Emit(Start{
		JobID:      jobID,
		State:      signal.StateRunning,
		StartedAt:  startedAt,
		Descriptor: descriptor,
	})
}

// EmitEnd emits the run's closing bracket event.
func (b *Buffer) EmitEnd(jobID string, state signal.State, startedAt, finishedAt time.Time, result signal.Result) {
	b.Emit(End{
		JobID:      jobID,
		State:      state,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Result:     result,
	})
}

// EmitLogf emits a formatted log line.
func (b *Buffer) EmitLogf(format string, args ...any) {
	b.Emit(Logf(format, args...))
}
