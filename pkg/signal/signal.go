// Package signal persists job state and pending control requests as
// durable markers, so a job can be observed and controlled from other
// processes and survives a crash of its owner.
//
// A marker is presence-based: its existence IS the signal. Control requests
// (pause/resume/cancel) are consumed by the owning runner at its next
// checkpoint; there is no queue.
package signal

import (
	"errors"
	"time"
)

// Action is a control request directed at a running job.
type Action string

const (
	ActionPause  Action = "pause"
	ActionResume Action = "resume"
	ActionCancel Action = "cancel"

	// ActionNone is returned by Checkpoint when no request is pending.
	ActionNone Action = ""
)

// ParseAction validates an action name from an external caller.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionPause, ActionResume, ActionCancel:
		return Action(s), nil
	}
	return ActionNone, ErrInvalidAction
}

// State is the lifecycle state of a job.
//
// NOTE: These values are persisted on disk and are part of the stable
// contract between processes.
type State string

const (
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateCancelled State = "cancelled"
	StateCompleted State = "completed"
	StateError     State = "error"

	// StateUnknown is derived, never stored: a running marker whose owner
	// process is gone, or a job directory with no recognizable markers.
	StateUnknown State = "unknown"
)

// Terminal reports whether no transition may leave the state.
func (s State) Terminal() bool {
	switch s {
	case StateCancelled, StateCompleted, StateError:
		return true
	}
	return false
}

// Result is the terminal outcome of a job.
type Result struct {
	Ok    bool           `json:"ok"`
	Error string         `json:"error,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

// Summary is the observable state of one job, derived from its markers.
type Summary struct {
	JobID      string            `json:"job_id"`
	State      State             `json:"state"`
	Descriptor map[string]string `json:"source_descriptor,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
	Result     *Result           `json:"result,omitempty"`
}

// ListFilter narrows a List call. Zero value lists everything.
type ListFilter struct {
	// States restricts results to the given states. Empty = all states.
	States []State
}

func (f ListFilter) matches(s State) bool {
	if len(f.States) == 0 {
		return true
	}
	for _, want := range f.States {
		if s == want {
			return true
		}
	}
	return false
}

// Sentinel errors for store operations.
var (
	// ErrAlreadyExists indicates a job with the same id is already registered.
	ErrAlreadyExists = errors.New("job already exists")

	// ErrNotFound indicates no active (running or paused) job with that id.
	ErrNotFound = errors.New("job not found")

	// ErrInvalidAction indicates an unrecognized control action.
	ErrInvalidAction = errors.New("invalid action")

	// ErrNotTerminal indicates Finalize was called with a non-terminal state.
	ErrNotTerminal = errors.New("finalize requires a terminal state")
)

// Store is the control-signal store shared by runners and controllers.
//
// Exactly one runner owns a given job: only the owner calls Checkpoint and
// Finalize. Request and List may be called from any process or goroutine.
type Store interface {
	// Register creates the running marker for a new job.
	// Fails with ErrAlreadyExists if any marker for jobID already exists.
	Register(jobID string, descriptor map[string]string) error

	// Request records a control request for an active job. Idempotent:
	// repeating an unconsumed request is a silent no-op. Fails with
	// ErrNotFound if the job is not running or paused.
	Request(jobID string, action Action) error

	// Checkpoint atomically consumes at most one pending request and applies
	// its state transition. Cancel outranks pause and resume. Returns
	// ActionNone when nothing is pending. Called only by the owning runner.
	Checkpoint(jobID string) (Action, error)

	// Finalize removes the active marker and records the terminal result.
	// Subsequent Request calls fail with ErrNotFound.
	Finalize(jobID string, state State, result Result) error

	// Get returns the derived summary for one job.
	Get(jobID string) (*Summary, error)

	// List enumerates all known jobs, deriving each one's current state.
	List(filter ListFilter) ([]Summary, error)

	// Remove deletes every trace of a job. Intended for retention cleanup
	// of terminal jobs, never called by a runner mid-flight.
	Remove(jobID string) error
}
