package signal

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and embedded use.
//
// It implements the same state machine as FSStore but holds everything in
// process memory, so it is neither crash-survivable nor cross-process.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*memoryJob
}

type memoryJob struct {
	state      State
	descriptor map[string]string
	startedAt  time.Time
	finishedAt *time.Time
	result     *Result
	requests   map[Action]bool
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*memoryJob)}
}

func (s *MemoryStore) Register(jobID string, descriptor map[string]string) error {
	if err := validateJobID(jobID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[jobID]; exists {
		return fmt.Errorf("job %s: %w", jobID, ErrAlreadyExists)
	}
	s.jobs[jobID] = &memoryJob{
		state:      StateRunning,
		descriptor: descriptor,
		startedAt:  time.Now().UTC(),
		requests:   make(map[Action]bool),
	}
	return nil
}

func (s *MemoryStore) Request(jobID string, action Action) error {
	if err := validateJobID(jobID); err != nil {
		return err
	}
	if _, err := ParseAction(string(action)); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok || (job.state != StateRunning && job.state != StatePaused) {
		return fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	job.requests[action] = true
	return nil
}

func (s *MemoryStore) Checkpoint(jobID string) (Action, error) {
	if err := validateJobID(jobID); err != nil {
		return ActionNone, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok || (job.state != StateRunning && job.state != StatePaused) {
		return ActionNone, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}

	switch {
	case job.requests[ActionCancel]:
		delete(job.requests, ActionCancel)
		return ActionCancel, nil
	case job.state == StateRunning && job.requests[ActionPause]:
		delete(job.requests, ActionPause)
		job.state = StatePaused
		return ActionPause, nil
	case job.state == StatePaused && job.requests[ActionResume]:
		delete(job.requests, ActionResume)
		job.state = StateRunning
		return ActionResume, nil
	}
	return ActionNone, nil
}

func (s *MemoryStore) Finalize(jobID string, state State, result Result) error {
	if err := validateJobID(jobID); err != nil {
		return err
	}
	if !state.Terminal() {
		return fmt.Errorf("state %s: %w", state, ErrNotTerminal)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok || (job.state != StateRunning && job.state != StatePaused) {
		return fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}

	now := time.Now().UTC()
	job.state = state
	job.finishedAt = &now
	res := result
	job.result = &res
	job.requests = make(map[Action]bool)
	return nil
}

func (s *MemoryStore) Get(jobID string) (*Summary, error) {
	if err := validateJobID(jobID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	return job.summary(jobID), nil
}

func (s *MemoryStore) List(filter ListFilter) ([]Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Summary, 0, len(s.jobs))
	for id, job := range s.jobs {
		if filter.matches(job.state) {
			out = append(out, *job.summary(id))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out, nil
}

func (s *MemoryStore) Remove(jobID string) error {
	if err := validateJobID(jobID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, jobID)
	return nil
}

func (j *memoryJob) summary(jobID string) *Summary {
	sum := &Summary{
		JobID:      jobID,
		State:      j.state,
		Descriptor: j.descriptor,
		StartedAt:  j.startedAt,
	}
	if j.finishedAt != nil {
		t := *j.finishedAt
		sum.FinishedAt = &t
	}
	if j.result != nil {
		r := *j.result
		sum.Result = &r
	}
	return sum
}
