// Package ingest assembles a source, a target index and a ledger into a
// runnable synchronization job.
package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/coppermind/ingrain/pkg/ledger"
	"github.com/coppermind/ingrain/pkg/match"
	"github.com/coppermind/ingrain/pkg/reconcile"
	"github.com/coppermind/ingrain/pkg/runner"
	"github.com/coppermind/ingrain/pkg/source"
	"github.com/coppermind/ingrain/pkg/vectorstore"
)

// Syncer reconciles one source against one target index.
//
// A Syncer carries per-run state between the job's prepare and epilogue
// phases: build a fresh Syncer per run, and never run two jobs for the
// same source concurrently (the ledger is single-writer per source).
type Syncer struct {
	Source  source.Source
	Index   vectorstore.Index
	Ledgers *ledger.Store
	Filter  *match.Filter

	// Full ignores the previous ledger and re-indexes every visible item.
	Full bool

	// DryRun computes and reports the change-set without touching the
	// index or the ledger.
	DryRun bool

	Logger *zap.Logger

	plan    reconcile.Plan
	tracker *reconcile.Tracker
}

func (s *Syncer) logger() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return zap.NewNop()
}

// Job wraps the sync pass as a runnable job under the given id.
func (s *Syncer) Job(jobID string) runner.Job {
	descriptor := s.Source.Describe()
	if descriptor == nil {
		descriptor = map[string]string{}
	}
	descriptor["source_id"] = s.Source.ID()
	descriptor["mode"] = s.mode()

	return runner.Job{
		ID:         jobID,
		Descriptor: descriptor,
		Prepare:    s.prepare,
		Epilogue:   s.epilogue,
	}
}

func (s *Syncer) mode() string {
	switch {
	case s.DryRun:
		return "dry-run"
	case s.Full:
		return "full"
	}
	return "incremental"
}

// prepare loads the prior ledger, fetches the current listing and lays the
// plan out as work items. A failure here aborts the whole run.
func (s *Syncer) prepare(ctx context.Context) ([]runner.WorkItem, error) {
	sourceID := s.Source.ID()

	prev, err := s.Ledgers.Load(sourceID)
	if err != nil {
		return nil, fmt.Errorf("load ledger for %s: %w", sourceID, err)
	}

	curr, err := s.Source.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", sourceID, err)
	}

	s.plan = reconcile.BuildPlan(prev, curr, s.Filter, s.Full)
	s.tracker = reconcile.NewTracker(s.plan)
	s.logger().Info("plan built",
		zap.String("source_id", sourceID),
		zap.Int("listed", len(curr)),
		zap.Any("changes", s.plan.ChangeSet.Counts()))

	if s.DryRun {
		return nil, nil
	}

	exec := &reconcile.Executor{Source: s.Source, Index: s.Index}
	items := make([]runner.WorkItem, 0, len(s.plan.Ops))
	for _, op := range s.plan.Ops {
		op := op // per-iteration copy: the go directive predates Go 1.22 loop semantics
		items = append(items, runner.WorkItem{
			Label: op.Label(),
			Do: func(ctx context.Context) error {
				rec, err := exec.Apply(ctx, op)
				s.tracker.Done(op, rec, err)
				return err
			},
		})
	}
	return items, nil
}

// epilogue persists the post-pass ledger. It runs on cancellation too, so
// partial progress survives into the next run.
func (s *Syncer) epilogue(_ context.Context, _ runner.Outcome) (map[string]any, error) {
	data := map[string]any{
		"source_id": s.Source.ID(),
		"mode":      s.mode(),
		"changes":   s.plan.ChangeSet.Counts(),
	}
	if s.DryRun {
		return data, nil
	}

	if err := s.Ledgers.Save(s.Source.ID(), s.tracker.Ledger()); err != nil {
		return nil, fmt.Errorf("save ledger for %s: %w", s.Source.ID(), err)
	}
	return data, nil
}
