// Package vectorstore defines the target-index contract consumed by
// reconciliation, plus client implementations.
//
// The index is addressed by opaque markers: Upsert returns the marker
// identifying the stored entry and Remove takes it back. Entries are
// generally addressed by path-derived identifiers on the server side, which
// is why a rename is a remove-then-add rather than an in-place update.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
)

// Document is the content payload for one index entry.
type Document struct {
	// Path is the logical path the entry is stored under.
	Path string

	// Content is the raw document body.
	Content []byte

	// ContentType is the MIME type, when known.
	ContentType string
}

// Index abstracts the target vector-store index.
//
// Implementations must be safe for concurrent use. Failures from either
// operation are per-item: callers record them and continue.
type Index interface {
	// Upsert stores a document and returns its indexed marker.
	Upsert(ctx context.Context, doc Document) (string, error)

	// Remove deletes the entry identified by a marker previously returned
	// from Upsert. Removing an unknown marker returns ErrMarkerNotFound.
	Remove(ctx context.Context, marker string) error
}

// ErrMarkerNotFound indicates the marker does not identify a live entry.
var ErrMarkerNotFound = errors.New("indexed marker not found")

// IndexError wraps index operation failures with context.
type IndexError struct {
	Op     string
	Path   string
	Marker string
	Err    error
}

func (e *IndexError) Error() string {
	switch {
	case e.Path != "":
		return fmt.Sprintf("index %s %s: %v", e.Op, e.Path, e.Err)
	case e.Marker != "":
		return fmt.Sprintf("index %s %s: %v", e.Op, e.Marker, e.Err)
	}
	return fmt.Sprintf("index %s: %v", e.Op, e.Err)
}

func (e *IndexError) Unwrap() error {
	return e.Err
}
