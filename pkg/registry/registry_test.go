package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coppermind/ingrain/pkg/signal"
)

func finalize(t *testing.T, store signal.Store, jobID string, state signal.State) {
	t.Helper()
	require.NoError(t, store.Register(jobID, nil))
	require.NoError(t, store.Finalize(jobID, state, signal.Result{Ok: state == signal.StateCompleted}))
}

func TestListSortsNewestFirst(t *testing.T) {
	store := signal.NewMemoryStore()
	require.NoError(t, store.Register("job-a", nil))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, store.Register("job-b", nil))

	reg := New(store)
	jobs, err := reg.List(signal.ListFilter{})
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "job-b", jobs[0].JobID)
	assert.Equal(t, "job-a", jobs[1].JobID)
}

func TestListFilterByState(t *testing.T) {
	store := signal.NewMemoryStore()
	require.NoError(t, store.Register("active", nil))
	finalize(t, store, "done", signal.StateCompleted)

	reg := New(store)
	jobs, err := reg.List(signal.ListFilter{States: []signal.State{signal.StateRunning}})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "active", jobs[0].JobID)
}

func TestResolve(t *testing.T) {
	store := signal.NewMemoryStore()
	require.NoError(t, store.Register("sync-20260901-abcdef", nil))
	require.NoError(t, store.Register("sync-20260901-abzzzz", nil))
	require.NoError(t, store.Register("other-1", nil))

	reg := New(store)

	id, err := reg.Resolve("sync-20260901-abcdef")
	require.NoError(t, err)
	assert.Equal(t, "sync-20260901-abcdef", id)

	id, err = reg.Resolve("other")
	require.NoError(t, err)
	assert.Equal(t, "other-1", id)

	_, err = reg.Resolve("sync-20260901-ab")
	assert.ErrorIs(t, err, ErrAmbiguousJobID)

	_, err = reg.Resolve("missing")
	assert.ErrorIs(t, err, signal.ErrNotFound)

	_, err = reg.Resolve("  ")
	assert.Error(t, err)
}

func TestGCPrunesOldTerminalJobs(t *testing.T) {
	store := signal.NewMemoryStore()
	finalize(t, store, "old-done", signal.StateCompleted)
	finalize(t, store, "old-failed", signal.StateError)
	require.NoError(t, store.Register("still-running", nil))

	reg := New(store)
	// Everything above finished "now"; move the clock a week forward.
	reg.Now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }

	// Dry run counts without removing.
	n, err := reg.GC(7*24*time.Hour, true)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	jobs, err := reg.List(signal.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, jobs, 3)

	n, err = reg.GC(7*24*time.Hour, false)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	jobs, err = reg.List(signal.ListFilter{})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "still-running", jobs[0].JobID)
}

func TestGCKeepsRecentTerminalJobs(t *testing.T) {
	store := signal.NewMemoryStore()
	finalize(t, store, "just-done", signal.StateCompleted)

	reg := New(store)
	n, err := reg.GC(time.Hour, false)
	require.NoError(t, err)
	assert.Zero(t, n)

	jobs, err := reg.List(signal.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestGCRejectsNonPositiveMaxAge(t *testing.T) {
	reg := New(signal.NewMemoryStore())
	_, err := reg.GC(0, false)
	assert.Error(t, err)
}
