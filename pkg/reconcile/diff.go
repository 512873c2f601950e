// Package reconcile diffs a source listing against the previously recorded
// ledger and drives the minimal set of index operations needed to converge
// the target index to the current remote state.
package reconcile

import (
	"sort"

	"github.com/coppermind/ingrain/pkg/ledger"
	"github.com/coppermind/ingrain/pkg/match"
	"github.com/coppermind/ingrain/pkg/source"
)

// ChangeSet partitions every unique id present in either snapshot into
// exactly one classification.
type ChangeSet struct {
	Added     []string `json:"added"`
	Modified  []string `json:"modified"`
	Renamed   []string `json:"renamed"`
	Unchanged []string `json:"unchanged"`
	Deleted   []string `json:"deleted"`
}

// Empty reports whether the change-set requires no index operations.
func (cs ChangeSet) Empty() bool {
	return len(cs.Added) == 0 && len(cs.Modified) == 0 && len(cs.Renamed) == 0 && len(cs.Deleted) == 0
}

// Counts returns per-class totals keyed by class name.
func (cs ChangeSet) Counts() map[string]int {
	return map[string]int{
		"added":     len(cs.Added),
		"modified":  len(cs.Modified),
		"renamed":   len(cs.Renamed),
		"unchanged": len(cs.Unchanged),
		"deleted":   len(cs.Deleted),
	}
}

// Diff classifies the current listing against the previous ledger.
//
// The filter is applied to current items before the join, so filtered-out
// items are invisible in both directions: never added, and treated as
// deleted if previously tracked (the engine cannot distinguish "filtered"
// from "gone", and both require removal from the index).
//
// In full mode the previous ledger is ignored for classification (every
// visible current item is added against an empty baseline), but items
// present in the old ledger and absent from the fresh listing are still
// deleted, so a full run converges the index exactly.
//
// Tie-breaks: a missing fingerprint on either side classifies as modified
// (re-index rather than silently skip). When both path and fingerprint
// change at once, content wins: the item is modified, not renamed.
func Diff(prev []ledger.Record, curr []source.Item, filter *match.Filter, full bool) ChangeSet {
	prevByID := ledger.ByID(prev)

	var cs ChangeSet
	seen := make(map[string]struct{}, len(curr))

	for _, item := range curr {
		if !filter.Match(item.Path) {
			continue
		}
		seen[item.UniqueID] = struct{}{}

		if full {
			cs.Added = append(cs.Added, item.UniqueID)
			continue
		}

		rec, existed := prevByID[item.UniqueID]
		switch {
		case !existed:
			cs.Added = append(cs.Added, item.UniqueID)
		case rec.Fingerprint == "" || item.Fingerprint == "" || rec.Fingerprint != item.Fingerprint:
			cs.Modified = append(cs.Modified, item.UniqueID)
		case rec.Path != item.Path:
			cs.Renamed = append(cs.Renamed, item.UniqueID)
		default:
			cs.Unchanged = append(cs.Unchanged, item.UniqueID)
		}
	}

	for _, rec := range prev {
		if _, present := seen[rec.UniqueID]; !present {
			cs.Deleted = append(cs.Deleted, rec.UniqueID)
		}
	}

	for _, part := range [][]string{cs.Added, cs.Modified, cs.Renamed, cs.Unchanged, cs.Deleted} {
		sort.Strings(part)
	}
	return cs
}
