package server

import (
	"sync"

	"github.com/coppermind/ingrain/pkg/events"
)

// StreamHub tracks the live event buffer of every job running in this
// process, so the SSE endpoint can attach to a job by id.
//
// Cross-process job state is visible through the signal store; live event
// streams are per-process only.
type StreamHub struct {
	mu      sync.Mutex
	buffers map[string]*events.Buffer
}

func NewStreamHub() *StreamHub {
	return &StreamHub{buffers: make(map[string]*events.Buffer)}
}

// Open creates and registers the event buffer for a job about to run.
func (h *StreamHub) Open(jobID string) *events.Buffer {
	h.mu.Lock()
	defer h.mu.Unlock()
	buf := events.NewBuffer()
	h.buffers[jobID] = buf
	return buf
}

// Get returns a job's live buffer, or nil if the job is not running here.
func (h *StreamHub) Get(jobID string) *events.Buffer {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.buffers[jobID]
}

// Close drops a finished job's buffer. Events already buffered remain
// drainable by an attached consumer holding the pointer.
func (h *StreamHub) Close(jobID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.buffers, jobID)
}
