// Package source defines abstractions for listing and reading remote
// hierarchical content sources.
//
// Sources implement a minimal surface: a full listing of trackable items
// and per-item content reads. Authentication uses SDK default credential
// chains; sources should not implement custom auth logic.
package source

import (
	"context"
	"time"
)

// Item is one trackable entry in a source listing.
type Item struct {
	// UniqueID is a stable identity keyed to the remote item, immune to
	// rename where the backend can provide one. Backends without a
	// rename-stable identity (e.g. S3) fall back to the path.
	UniqueID string

	// Path is the item's current logical location under the source root.
	Path string

	// Fingerprint detects content change without fetching content.
	Fingerprint string

	// Size is the content size in bytes.
	Size int64

	// ModTime is when the item was last modified.
	ModTime time.Time
}

// Source abstracts one remote content source.
//
// Implementations must be safe for concurrent use.
type Source interface {
	// ID returns the stable source identity used to scope the ledger.
	ID() string

	// Describe returns opaque metadata copied verbatim into job events.
	Describe() map[string]string

	// List returns the complete current listing of the source.
	// A List failure is a whole-run failure: listing precedes per-item work.
	List(ctx context.Context) ([]Item, error)

	// Read returns the content of one listed item.
	// Returns ErrNotFound if the item vanished since listing.
	Read(ctx context.Context, item Item) ([]byte, error)

	// Close releases any resources held by the source.
	Close() error
}
