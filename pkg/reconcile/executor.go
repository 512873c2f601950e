package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coppermind/ingrain/pkg/ledger"
	"github.com/coppermind/ingrain/pkg/source"
	"github.com/coppermind/ingrain/pkg/vectorstore"
)

// Executor applies planned operations against the source and target index.
type Executor struct {
	Source source.Source
	Index  vectorstore.Index

	// Now is overridable for tests. Defaults to time.Now.
	Now func() time.Time
}

func (e *Executor) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

// Apply executes one op. For add/replace it returns the item's new ledger
// record; for remove it returns nil (the record is dropped).
//
// A failure leaves the target untouched from the ledger's point of view:
// the caller keeps the prior record so the item is retried next run.
func (e *Executor) Apply(ctx context.Context, op Op) (*ledger.Record, error) {
	switch op.Kind {
	case OpAdd, OpReplace:
		return e.upsert(ctx, op)
	case OpRemove:
		if err := e.removeMarker(ctx, op.Prev); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return nil, fmt.Errorf("unknown op kind %q", op.Kind)
}

func (e *Executor) upsert(ctx context.Context, op Op) (*ledger.Record, error) {
	// Replaced entries are removed first: index entries are addressed by
	// path-derived identifiers, so a rename cannot update in place.
	if op.Kind == OpReplace {
		if err := e.removeMarker(ctx, op.Prev); err != nil {
			return nil, err
		}
	}

	content, err := e.Source.Read(ctx, op.Item)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", op.Item.Path, err)
	}

	marker, err := e.Index.Upsert(ctx, vectorstore.Document{
		Path:    op.Item.Path,
		Content: content,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert %s: %w", op.Item.Path, err)
	}

	return &ledger.Record{
		UniqueID:      op.Item.UniqueID,
		Path:          op.Item.Path,
		Fingerprint:   op.Item.Fingerprint,
		IndexedMarker: marker,
		LastSeenAt:    e.now(),
	}, nil
}

func (e *Executor) removeMarker(ctx context.Context, prev *ledger.Record) error {
	if prev == nil || prev.IndexedMarker == "" {
		return nil
	}
	err := e.Index.Remove(ctx, prev.IndexedMarker)
	if err != nil && !errors.Is(err, vectorstore.ErrMarkerNotFound) {
		return fmt.Errorf("remove %s: %w", prev.Path, err)
	}
	// An already-gone marker means the index converged some other way.
	return nil
}
