package reconcile

import (
	"github.com/coppermind/ingrain/pkg/ledger"
	"github.com/coppermind/ingrain/pkg/match"
	"github.com/coppermind/ingrain/pkg/source"
)

// OpKind is the index operation required for one classified item.
type OpKind string

const (
	// OpAdd uploads a new item.
	OpAdd OpKind = "add"

	// OpReplace removes the prior index entry (when one exists) and uploads
	// the current content. Covers both modified and renamed items, since
	// index entries are addressed by path-derived identifiers.
	OpReplace OpKind = "replace"

	// OpRemove deletes the prior index entry and drops the ledger record.
	OpRemove OpKind = "remove"
)

// Op is one unit of convergence work.
type Op struct {
	Kind OpKind

	// Item is the current listing entry. Zero for OpRemove.
	Item source.Item

	// Prev is the prior ledger record, nil for OpAdd of a new item.
	Prev *ledger.Record
}

// Label names the op for progress lines, e.g. "index 'docs/a.md'".
func (op Op) Label() string {
	switch op.Kind {
	case OpAdd:
		return "index '" + op.Item.Path + "'"
	case OpReplace:
		return "reindex '" + op.Item.Path + "'"
	case OpRemove:
		return "remove '" + op.Prev.Path + "'"
	}
	return "noop"
}

// UniqueID returns the item identity the op acts on.
func (op Op) UniqueID() string {
	if op.Kind == OpRemove {
		return op.Prev.UniqueID
	}
	return op.Item.UniqueID
}

// Plan is the executable form of one reconciliation pass.
type Plan struct {
	ChangeSet ChangeSet

	// Ops is the ordered work list: upserts in listing order, then removes
	// in prior ledger order.
	Ops []Op

	// Carried are the unchanged records, persisted as-is in the new ledger.
	Carried []ledger.Record
}

// BuildPlan diffs the snapshots and lays out the ordered operations.
func BuildPlan(prev []ledger.Record, curr []source.Item, filter *match.Filter, full bool) Plan {
	cs := Diff(prev, curr, filter, full)

	classByID := make(map[string]OpKind, len(curr))
	for _, id := range cs.Added {
		classByID[id] = OpAdd
	}
	for _, id := range cs.Modified {
		classByID[id] = OpReplace
	}
	for _, id := range cs.Renamed {
		classByID[id] = OpReplace
	}

	prevByID := ledger.ByID(prev)
	plan := Plan{ChangeSet: cs}

	unchanged := make(map[string]struct{}, len(cs.Unchanged))
	for _, id := range cs.Unchanged {
		unchanged[id] = struct{}{}
	}

	for _, item := range curr {
		kind, ok := classByID[item.UniqueID]
		if !ok {
			continue
		}
		op := Op{Kind: kind, Item: item}
		if rec, existed := prevByID[item.UniqueID]; existed {
			r := rec
			op.Prev = &r
			// Full mode classifies tracked items as added, but their old
			// index entries must still be cleaned up to converge exactly.
			if op.Kind == OpAdd {
				op.Kind = OpReplace
			}
		}
		plan.Ops = append(plan.Ops, op)
	}

	deleted := make(map[string]struct{}, len(cs.Deleted))
	for _, id := range cs.Deleted {
		deleted[id] = struct{}{}
	}
	for _, rec := range prev {
		if _, gone := deleted[rec.UniqueID]; gone {
			r := rec
			plan.Ops = append(plan.Ops, Op{Kind: OpRemove, Prev: &r})
			continue
		}
		if _, keep := unchanged[rec.UniqueID]; keep {
			plan.Carried = append(plan.Carried, rec)
		}
	}

	return plan
}
