package signal

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFactories runs each test against both Store implementations.
func storeFactories(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()
	return map[string]func(t *testing.T) Store{
		"fs": func(t *testing.T) Store {
			return NewFSStore(filepath.Join(t.TempDir(), "jobs"))
		},
		"memory": func(t *testing.T) Store {
			return NewMemoryStore()
		},
	}
}

func TestParseAction(t *testing.T) {
	for _, valid := range []string{"pause", "resume", "cancel"} {
		a, err := ParseAction(valid)
		require.NoError(t, err)
		assert.Equal(t, Action(valid), a)
	}
	_, err := ParseAction("restart")
	assert.ErrorIs(t, err, ErrInvalidAction)
}

func TestStateTerminal(t *testing.T) {
	assert.False(t, StateRunning.Terminal())
	assert.False(t, StatePaused.Terminal())
	assert.False(t, StateUnknown.Terminal())
	assert.True(t, StateCancelled.Terminal())
	assert.True(t, StateCompleted.Terminal())
	assert.True(t, StateError.Terminal())
}

func TestRegisterDuplicate(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			require.NoError(t, store.Register("job-1", nil))
			err := store.Register("job-1", nil)
			assert.ErrorIs(t, err, ErrAlreadyExists)
		})
	}
}

func TestRequestUnknownJob(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			err := store.Request("nope", ActionPause)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestRequestInvalidAction(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			require.NoError(t, store.Register("job-1", nil))
			err := store.Request("job-1", Action("restart"))
			assert.ErrorIs(t, err, ErrInvalidAction)
		})
	}
}

func TestPauseResumeTransitions(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			require.NoError(t, store.Register("job-1", map[string]string{"source": "docs"}))

			sum, err := store.Get("job-1")
			require.NoError(t, err)
			assert.Equal(t, StateRunning, sum.State)
			assert.Equal(t, "docs", sum.Descriptor["source"])

			require.NoError(t, store.Request("job-1", ActionPause))

			action, err := store.Checkpoint("job-1")
			require.NoError(t, err)
			assert.Equal(t, ActionPause, action)

			sum, err = store.Get("job-1")
			require.NoError(t, err)
			assert.Equal(t, StatePaused, sum.State)

			require.NoError(t, store.Request("job-1", ActionResume))

			action, err = store.Checkpoint("job-1")
			require.NoError(t, err)
			assert.Equal(t, ActionResume, action)

			sum, err = store.Get("job-1")
			require.NoError(t, err)
			assert.Equal(t, StateRunning, sum.State)
		})
	}
}

func TestCheckpointIdempotentPerMarker(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			require.NoError(t, store.Register("job-1", nil))
			require.NoError(t, store.Request("job-1", ActionPause))

			action, err := store.Checkpoint("job-1")
			require.NoError(t, err)
			assert.Equal(t, ActionPause, action)

			// No new request between calls: second checkpoint returns none.
			action, err = store.Checkpoint("job-1")
			require.NoError(t, err)
			assert.Equal(t, ActionNone, action)
		})
	}
}

func TestRequestIdempotentWhileUnconsumed(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			require.NoError(t, store.Register("job-1", nil))

			require.NoError(t, store.Request("job-1", ActionPause))
			require.NoError(t, store.Request("job-1", ActionPause))

			action, err := store.Checkpoint("job-1")
			require.NoError(t, err)
			assert.Equal(t, ActionPause, action)

			action, err = store.Checkpoint("job-1")
			require.NoError(t, err)
			assert.Equal(t, ActionNone, action)
		})
	}
}

func TestConcurrentRequestAndCheckpoint(t *testing.T) {
	// A cancel requested concurrently with a checkpoint loop must be
	// observed by some later checkpoint, never lost.
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			require.NoError(t, store.Register("job-1", nil))

			requested := make(chan struct{})
			go func() {
				defer close(requested)
				_ = store.Request("job-1", ActionCancel)
			}()

			var got Action
			for i := 0; i < 1000; i++ {
				action, err := store.Checkpoint("job-1")
				require.NoError(t, err)
				if action == ActionCancel {
					got = action
					break
				}
			}
			<-requested
			if got != ActionCancel {
				action, err := store.Checkpoint("job-1")
				require.NoError(t, err)
				got = action
			}
			assert.Equal(t, ActionCancel, got)
		})
	}
}

func TestCancelOutranksPauseAndResume(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			require.NoError(t, store.Register("job-1", nil))
			require.NoError(t, store.Request("job-1", ActionPause))
			require.NoError(t, store.Request("job-1", ActionCancel))

			action, err := store.Checkpoint("job-1")
			require.NoError(t, err)
			assert.Equal(t, ActionCancel, action)
		})
	}
}

func TestResumeIgnoredWhileRunning(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			require.NoError(t, store.Register("job-1", nil))
			require.NoError(t, store.Request("job-1", ActionResume))

			// A resume request while running is not consumed.
			action, err := store.Checkpoint("job-1")
			require.NoError(t, err)
			assert.Equal(t, ActionNone, action)

			sum, err := store.Get("job-1")
			require.NoError(t, err)
			assert.Equal(t, StateRunning, sum.State)
		})
	}
}

func TestFinalize(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			require.NoError(t, store.Register("job-1", nil))

			result := Result{Ok: true, Data: map[string]any{"processed": float64(3)}}
			require.NoError(t, store.Finalize("job-1", StateCompleted, result))

			sum, err := store.Get("job-1")
			require.NoError(t, err)
			assert.Equal(t, StateCompleted, sum.State)
			require.NotNil(t, sum.FinishedAt)
			require.NotNil(t, sum.Result)
			assert.True(t, sum.Result.Ok)
			assert.Equal(t, float64(3), sum.Result.Data["processed"])

			// No transition leaves a terminal state.
			err = store.Finalize("job-1", StateError, Result{})
			assert.ErrorIs(t, err, ErrNotFound)
			err = store.Request("job-1", ActionCancel)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestFinalizeRejectsNonTerminalState(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			require.NoError(t, store.Register("job-1", nil))
			err := store.Finalize("job-1", StatePaused, Result{})
			assert.ErrorIs(t, err, ErrNotTerminal)
		})
	}
}

func TestFinalizeWhilePaused(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			require.NoError(t, store.Register("job-1", nil))
			require.NoError(t, store.Request("job-1", ActionPause))
			_, err := store.Checkpoint("job-1")
			require.NoError(t, err)

			require.NoError(t, store.Finalize("job-1", StateCancelled, Result{Ok: false, Error: "cancelled"}))

			sum, err := store.Get("job-1")
			require.NoError(t, err)
			assert.Equal(t, StateCancelled, sum.State)
		})
	}
}

func TestListFilters(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			require.NoError(t, store.Register("job-a", nil))
			require.NoError(t, store.Register("job-b", nil))
			require.NoError(t, store.Register("job-c", nil))
			require.NoError(t, store.Finalize("job-c", StateCompleted, Result{Ok: true}))

			all, err := store.List(ListFilter{})
			require.NoError(t, err)
			assert.Len(t, all, 3)

			running, err := store.List(ListFilter{States: []State{StateRunning}})
			require.NoError(t, err)
			assert.Len(t, running, 2)

			done, err := store.List(ListFilter{States: []State{StateCompleted}})
			require.NoError(t, err)
			require.Len(t, done, 1)
			assert.Equal(t, "job-c", done[0].JobID)
		})
	}
}

func TestRemove(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			require.NoError(t, store.Register("job-1", nil))
			require.NoError(t, store.Finalize("job-1", StateCompleted, Result{Ok: true}))
			require.NoError(t, store.Remove("job-1"))

			_, err := store.Get("job-1")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestValidateJobID(t *testing.T) {
	store := NewMemoryStore()
	for _, bad := range []string{"", "  ", "a/b", `a\b`, ".", ".."} {
		assert.Error(t, store.Register(bad, nil), "job id %q", bad)
	}
}

// FS-specific behavior below.

func TestFSStoreMarkersOnDisk(t *testing.T) {
	root := filepath.Join(t.TempDir(), "jobs")
	store := NewFSStore(root)
	require.NoError(t, store.Register("job-1", nil))

	assert.FileExists(t, filepath.Join(root, "job-1", "running"))
	assert.FileExists(t, filepath.Join(root, "job-1", "job.json"))

	require.NoError(t, store.Request("job-1", ActionPause))
	assert.FileExists(t, filepath.Join(root, "job-1", "pause_requested"))

	_, err := store.Checkpoint("job-1")
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(root, "job-1", "pause_requested"))
	assert.NoFileExists(t, filepath.Join(root, "job-1", "running"))
	assert.FileExists(t, filepath.Join(root, "job-1", "paused"))

	require.NoError(t, store.Finalize("job-1", StateError, Result{Error: "boom"}))
	assert.NoFileExists(t, filepath.Join(root, "job-1", "paused"))
	assert.FileExists(t, filepath.Join(root, "job-1", "result.json"))
}

func TestFSStoreCrossProcessVisibility(t *testing.T) {
	// Two store handles on the same root model a controller process signalling
	// a runner process.
	root := filepath.Join(t.TempDir(), "jobs")
	runner := NewFSStore(root)
	controller := NewFSStore(root)

	require.NoError(t, runner.Register("job-1", nil))
	require.NoError(t, controller.Request("job-1", ActionCancel))

	action, err := runner.Checkpoint("job-1")
	require.NoError(t, err)
	assert.Equal(t, ActionCancel, action)

	require.NoError(t, runner.Finalize("job-1", StateCancelled, Result{Error: "cancelled"}))

	sum, err := controller.Get("job-1")
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, sum.State)
}

func TestFSStoreSurvivesReopen(t *testing.T) {
	root := filepath.Join(t.TempDir(), "jobs")
	store := NewFSStore(root)
	require.NoError(t, store.Register("job-1", map[string]string{"source": "wiki"}))
	require.NoError(t, store.Request("job-1", ActionPause))

	// A fresh handle (new process after restart) sees the same markers.
	reopened := NewFSStore(root)
	action, err := reopened.Checkpoint("job-1")
	require.NoError(t, err)
	assert.Equal(t, ActionPause, action)

	sum, err := reopened.Get("job-1")
	require.NoError(t, err)
	assert.Equal(t, StatePaused, sum.State)
	assert.Equal(t, "wiki", sum.Descriptor["source"])
}

func TestFSStoreRequestRacingCrossProcessFinalize(t *testing.T) {
	root := filepath.Join(t.TempDir(), "jobs")
	// Two handles on the same root model two processes: the store mutex
	// does not span them, so a request can interleave with a finalize.
	runnerStore := NewFSStore(root)
	controlStore := NewFSStore(root)

	for i := 0; i < 50; i++ {
		jobID := fmt.Sprintf("job-%d", i)
		require.NoError(t, runnerStore.Register(jobID, nil))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = runnerStore.Finalize(jobID, StateCompleted, Result{Ok: true})
		}()
		go func() {
			defer wg.Done()
			_ = controlStore.Request(jobID, ActionCancel)
		}()
		wg.Wait()

		// However the two landed, a terminal job dir never retains a
		// stranded request marker.
		entries, err := os.ReadDir(filepath.Join(root, jobID))
		require.NoError(t, err)
		for _, entry := range entries {
			assert.NotContains(t, entry.Name(), "_requested", "job %s", jobID)
		}

		sum, err := controlStore.Get(jobID)
		require.NoError(t, err)
		assert.Equal(t, StateCompleted, sum.State)
	}
}

func TestFSStoreListSkipsStrayFiles(t *testing.T) {
	root := filepath.Join(t.TempDir(), "jobs")
	store := NewFSStore(root)
	require.NoError(t, store.Register("job-1", nil))
	require.NoError(t, os.WriteFile(filepath.Join(root, "stray.txt"), []byte("x"), 0644))

	jobs, err := store.List(ListFilter{})
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}
