// Package registry provides read-mostly views over the control-signal
// store: listing, short-id resolution and retention cleanup.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/coppermind/ingrain/pkg/signal"
)

// ErrAmbiguousJobID indicates a short id prefix matched more than one job.
var ErrAmbiguousJobID = errors.New("job id prefix is ambiguous")

// Registry wraps a signal store with listing and cleanup helpers.
type Registry struct {
	store signal.Store

	// Now is overridable for tests. Defaults to time.Now.
	Now func() time.Time
}

func New(store signal.Store) *Registry {
	return &Registry{store: store}
}

func (r *Registry) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

// List returns job summaries sorted newest-first by start time, job id as
// tiebreak.
func (r *Registry) List(filter signal.ListFilter) ([]signal.Summary, error) {
	jobs, err := r.store.List(filter)
	if err != nil {
		return nil, err
	}
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].StartedAt.Equal(jobs[j].StartedAt) {
			return jobs[i].StartedAt.After(jobs[j].StartedAt)
		}
		return jobs[i].JobID < jobs[j].JobID
	})
	return jobs, nil
}

// Get returns one job's summary.
func (r *Registry) Get(jobID string) (*signal.Summary, error) {
	return r.store.Get(jobID)
}

// Resolve maps an exact job id or an unambiguous prefix (table-friendly
// short ids) to the full job id.
func (r *Registry) Resolve(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("job id is required")
	}

	if _, err := r.store.Get(input); err == nil {
		return input, nil
	}

	jobs, err := r.store.List(signal.ListFilter{})
	if err != nil {
		return "", err
	}
	matches := make([]string, 0, 2)
	for _, j := range jobs {
		if strings.HasPrefix(j.JobID, input) {
			matches = append(matches, j.JobID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("job %s: %w", input, signal.ErrNotFound)
	case 1:
		return matches[0], nil
	}
	return "", fmt.Errorf("%w: %s has %d matches", ErrAmbiguousJobID, input, len(matches))
}

// GC removes terminal jobs that finished more than maxAge ago. Active and
// unknown-state jobs are never touched. With dryRun set, it only counts.
// Returns the number of jobs removed (or that would be removed).
func (r *Registry) GC(maxAge time.Duration, dryRun bool) (int, error) {
	if maxAge <= 0 {
		return 0, fmt.Errorf("max age must be > 0")
	}

	jobs, err := r.store.List(signal.ListFilter{})
	if err != nil {
		return 0, err
	}

	now := r.now()
	removed := 0
	for _, j := range jobs {
		if !j.State.Terminal() || j.FinishedAt == nil {
			continue
		}
		if now.Sub(j.FinishedAt.UTC()) <= maxAge {
			continue
		}
		if !dryRun {
			if err := r.store.Remove(j.JobID); err != nil {
				return removed, fmt.Errorf("remove job %s: %w", j.JobID, err)
			}
		}
		removed++
	}
	return removed, nil
}
