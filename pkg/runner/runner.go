// Package runner drives one job end-to-end: it registers the job, walks
// its work items sequentially, checkpoints the control-signal store before
// every item, and brackets the run with start/end events.
//
// Items run strictly sequentially so event ordering stays deterministic.
// Cross-process control (pause/resume/cancel) takes effect at the next
// checkpoint, which happens at least once per item, so worst-case
// cancellation latency is one item's I/O.
package runner

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/coppermind/ingrain/pkg/events"
	"github.com/coppermind/ingrain/pkg/signal"
)

// DefaultPollInterval is the pause wait-loop polling interval.
const DefaultPollInterval = 100 * time.Millisecond

// WorkItem is one unit of side-effecting work.
type WorkItem struct {
	// Label names the item in progress lines, e.g. "index 'docs/a.md'".
	Label string

	// Do performs the item's work. An error is recorded against this item
	// only; the run continues with the next item.
	Do func(ctx context.Context) error
}

// Failure records one item that failed during the run.
type Failure struct {
	Item   string `json:"item"`
	Reason string `json:"error"`
}

// Outcome summarizes the item loop for the job's epilogue.
type Outcome struct {
	// Cancelled is set when the loop stopped on a cancel signal (or the
	// caller's context expired) before reaching every item.
	Cancelled bool

	Total     int
	Processed int
	Failures  []Failure
}

// Job is one runnable operation.
type Job struct {
	// ID is the caller-generated unique job id.
	ID string

	// Descriptor is opaque metadata echoed into the start event and the
	// registered job record.
	Descriptor map[string]string

	// Prepare produces the ordered work items. A Prepare failure aborts
	// the whole run with a terminal error state.
	Prepare func(ctx context.Context) ([]WorkItem, error)

	// Epilogue runs after the item loop, including on cancellation (so
	// partial progress can be persisted). Returned data is merged into
	// result.data. An Epilogue failure turns the run into a terminal
	// error state. Optional. Not called when Prepare fails or a panic
	// escapes the item loop.
	Epilogue func(ctx context.Context, outcome Outcome) (map[string]any, error)
}

// Runner executes jobs against a shared control-signal store.
type Runner struct {
	Signals signal.Store
	Events  *events.Buffer

	// PollInterval is the pause wait-loop interval. Defaults to
	// DefaultPollInterval.
	PollInterval time.Duration

	// Now is overridable for tests. Defaults to time.Now.
	Now func() time.Time

	Logger *zap.Logger
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

func (r *Runner) pollInterval() time.Duration {
	if r.PollInterval > 0 {
		return r.PollInterval
	}
	return DefaultPollInterval
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return zap.NewNop()
}

// Run executes a job to a terminal state.
//
// Registration failures (duplicate id, invalid id) are returned directly
// and produce no events. Once registered, Run always finalizes the job and
// always emits exactly one start and one end event, for every termination
// path including per-item failure, cancellation and panic.
func (r *Runner) Run(ctx context.Context, job Job) (signal.State, signal.Result, error) {
	if err := r.Signals.Register(job.ID, job.Descriptor); err != nil {
		return "", signal.Result{}, fmt.Errorf("register job %s: %w", job.ID, err)
	}

	started := r.now()
	r.Events.EmitStart(job.ID, started, job.Descriptor)
	r.logger().Info("job started", zap.String("job_id", job.ID))

	state, result := r.execute(ctx, job)

	if err := r.Signals.Finalize(job.ID, state, result); err != nil {
		// The run outcome stands; only the durable record is degraded.
		r.logger().Error("finalize failed",
			zap.String("job_id", job.ID), zap.Error(err))
	}
	r.Events.EmitEnd(job.ID, state, started, r.now(), result)
	r.logger().Info("job finished",
		zap.String("job_id", job.ID), zap.String("state", string(state)))

	return state, result, nil
}

// execute runs prepare, the item loop and the epilogue. Panics escaping
// per-item isolation are caught here and classified as a run error.
func (r *Runner) execute(ctx context.Context, job Job) (state signal.State, result signal.Result) {
	defer func() {
		if p := recover(); p != nil {
			r.logger().Error("job panicked",
				zap.String("job_id", job.ID), zap.Any("panic", p))
			state = signal.StateError
			result = signal.Result{Ok: false, Error: fmt.Sprintf("panic: %v", p)}
		}
	}()

	items, err := job.Prepare(ctx)
	if err != nil {
		return signal.StateError, signal.Result{Ok: false, Error: err.Error()}
	}

	outcome := Outcome{Total: len(items)}

	for i, item := range items {
		act, err := r.checkpoint(ctx, job.ID)
		if err != nil {
			return signal.StateError, signal.Result{
				Ok:    false,
				Error: err.Error(),
				Data:  outcome.data(),
			}
		}
		if act == signal.ActionCancel {
			outcome.Cancelled = true
			break
		}

		r.Events.EmitLogf("[ %d / %d ] %s...", i+1, len(items), item.Label)
		if err := item.Do(ctx); err != nil {
			outcome.Failures = append(outcome.Failures, Failure{
				Item:   item.Label,
				Reason: err.Error(),
			})
			r.Events.EmitLogf("  FAIL: %v", err)
			r.logger().Warn("item failed",
				zap.String("job_id", job.ID),
				zap.String("item", item.Label),
				zap.Error(err))
			continue
		}
		outcome.Processed++
		r.Events.EmitLogf("  OK.")
	}

	data := outcome.data()
	if job.Epilogue != nil {
		extra, err := job.Epilogue(ctx, outcome)
		if err != nil {
			return signal.StateError, signal.Result{
				Ok:    false,
				Error: err.Error(),
				Data:  data,
			}
		}
		for k, v := range extra {
			data[k] = v
		}
	}

	result = signal.Result{Ok: len(outcome.Failures) == 0, Data: data}
	if !result.Ok {
		result.Error = fmt.Sprintf("%d of %d items failed", len(outcome.Failures), outcome.Total)
	}
	if outcome.Cancelled {
		return signal.StateCancelled, result
	}
	return signal.StateCompleted, result
}

// checkpoint consumes at most one pending control signal before an item.
// On pause it holds the runner in a poll loop until resume or cancel.
// Context expiry is treated as cancellation.
func (r *Runner) checkpoint(ctx context.Context, jobID string) (signal.Action, error) {
	for {
		if ctx.Err() != nil {
			return signal.ActionCancel, nil
		}

		act, err := r.Signals.Checkpoint(jobID)
		if err != nil {
			return signal.ActionNone, fmt.Errorf("checkpoint job %s: %w", jobID, err)
		}

		switch act {
		case signal.ActionCancel:
			return signal.ActionCancel, nil
		case signal.ActionPause:
			r.logger().Info("job paused", zap.String("job_id", jobID))
			r.Events.EmitLogf("Paused.")
			if cancelled := r.waitResume(ctx, jobID); cancelled {
				return signal.ActionCancel, nil
			}
			r.logger().Info("job resumed", zap.String("job_id", jobID))
			r.Events.EmitLogf("Resumed.")
			return signal.ActionNone, nil
		default:
			return signal.ActionNone, nil
		}
	}
}

// waitResume polls the store while paused. Returns true on cancel.
func (r *Runner) waitResume(ctx context.Context, jobID string) bool {
	ticker := time.NewTicker(r.pollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return true
		case <-ticker.C:
		}

		act, err := r.Signals.Checkpoint(jobID)
		if err != nil {
			// The store went away underneath a paused job; treat as
			// cancellation rather than spinning forever.
			r.logger().Error("checkpoint failed while paused",
				zap.String("job_id", jobID), zap.Error(err))
			return true
		}
		switch act {
		case signal.ActionCancel:
			return true
		case signal.ActionResume:
			return false
		}
	}
}

func (o Outcome) data() map[string]any {
	data := map[string]any{
		"total":     o.Total,
		"processed": o.Processed,
		"failed":    len(o.Failures),
	}
	if len(o.Failures) > 0 {
		data["failures"] = o.Failures
	}
	return data
}
