package reconcile

import (
	"github.com/coppermind/ingrain/pkg/ledger"
)

// ItemFailure records one op that failed during a pass.
type ItemFailure struct {
	UniqueID string `json:"unique_id"`
	Label    string `json:"item"`
	Reason   string `json:"error"`
}

// Tracker accumulates per-op outcomes and assembles the new ledger.
//
// Failed items retain their prior ledger record unchanged so they are
// retried on the next run; successful items carry their attempted new
// state; unchanged items are carried forward as-is.
type Tracker struct {
	plan      Plan
	succeeded map[string]*ledger.Record // new records from successful upserts
	removed   map[string]struct{}       // successful removals
	failures  []ItemFailure
	failedIDs map[string]struct{}
	processed int
}

func NewTracker(plan Plan) *Tracker {
	return &Tracker{
		plan:      plan,
		succeeded: make(map[string]*ledger.Record),
		removed:   make(map[string]struct{}),
		failedIDs: make(map[string]struct{}),
	}
}

// Done records the outcome of one applied op.
func (t *Tracker) Done(op Op, rec *ledger.Record, err error) {
	if err != nil {
		t.failedIDs[op.UniqueID()] = struct{}{}
		t.failures = append(t.failures, ItemFailure{
			UniqueID: op.UniqueID(),
			Label:    op.Label(),
			Reason:   err.Error(),
		})
		return
	}
	t.processed++
	if op.Kind == OpRemove {
		t.removed[op.UniqueID()] = struct{}{}
		return
	}
	t.succeeded[op.UniqueID()] = rec
}

// Failures returns the accumulated per-item failures.
func (t *Tracker) Failures() []ItemFailure {
	return t.failures
}

// Processed returns the count of ops that completed successfully.
func (t *Tracker) Processed() int {
	return t.processed
}

// Ledger assembles the post-pass snapshot: attempted new state for
// successful ops, prior records for failed or unattempted ops, carried
// unchanged records, and nothing for successful removals.
//
// Ordering is upserts in listing order, then surviving prior records in
// prior ledger order.
func (t *Tracker) Ledger() []ledger.Record {
	var out []ledger.Record
	emitted := make(map[string]struct{})

	for _, op := range t.plan.Ops {
		if op.Kind == OpRemove {
			continue
		}
		id := op.UniqueID()
		if rec, ok := t.succeeded[id]; ok {
			out = append(out, *rec)
			emitted[id] = struct{}{}
			continue
		}
		// Failed or never attempted (cancelled mid-run): keep the prior
		// record so the item is retried; brand-new items simply stay out
		// of the ledger and classify as added again next run.
		if op.Prev != nil {
			out = append(out, *op.Prev)
			emitted[id] = struct{}{}
		}
	}

	for _, rec := range t.plan.Carried {
		if _, dup := emitted[rec.UniqueID]; dup {
			continue
		}
		out = append(out, rec)
		emitted[rec.UniqueID] = struct{}{}
	}

	// Deletions that failed or were never reached keep their records.
	for _, op := range t.plan.Ops {
		if op.Kind != OpRemove {
			continue
		}
		id := op.UniqueID()
		if _, gone := t.removed[id]; gone {
			continue
		}
		if _, dup := emitted[id]; dup {
			continue
		}
		out = append(out, *op.Prev)
		emitted[id] = struct{}{}
	}

	return out
}
