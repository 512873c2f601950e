// Package ledger persists the per-source table of previously observed items.
//
// The ledger is the durable contract between reconciliation runs: a flat
// ordered table, one JSON record per line, keyed by the item's stable
// unique id. It must round-trip exactly across read-modify-write cycles.
package ledger

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Record tracks one remote item across runs.
type Record struct {
	// UniqueID is the stable identity of the remote item, immune to rename.
	// It is the join key for the reconciliation diff.
	UniqueID string `json:"unique_id"`

	// Path is the item's current logical location. It may change across runs.
	Path string `json:"path"`

	// Fingerprint detects content change without re-fetching content
	// (a hash, etag, or modtime+size digest).
	Fingerprint string `json:"content_fingerprint"`

	// IndexedMarker is the opaque handle of the corresponding entry in the
	// target index, empty if the item has not been indexed yet.
	IndexedMarker string `json:"indexed_marker,omitempty"`

	// LastSeenAt is when the item was last observed in a source listing.
	LastSeenAt time.Time `json:"last_seen_at"`
}

// ErrDuplicateID indicates two records in one snapshot share a unique id.
var ErrDuplicateID = errors.New("duplicate unique_id in ledger")

// Encode writes records as ordered JSONL to w.
//
// Returns ErrDuplicateID if the snapshot violates unique-id uniqueness.
func Encode(w io.Writer, records []Record) error {
	seen := make(map[string]struct{}, len(records))
	bw := bufio.NewWriter(w)
	for _, rec := range records {
		id := strings.TrimSpace(rec.UniqueID)
		if id == "" {
			return fmt.Errorf("ledger record has empty unique_id (path %q)", rec.Path)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateID, id)
		}
		seen[id] = struct{}{}

		b, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal ledger record %s: %w", id, err)
		}
		if _, err := bw.Write(append(b, '\n')); err != nil {
			return fmt.Errorf("write ledger record %s: %w", id, err)
		}
	}
	return bw.Flush()
}

// Decode reads ordered JSONL records from r.
//
// Blank lines are skipped. A malformed line or a duplicate unique id is an
// error: the ledger is a machine-written file and partial parses would
// silently re-index or orphan items.
func Decode(r io.Reader) ([]Record, error) {
	var records []Record
	seen := make(map[string]struct{})

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("parse ledger line %d: %w", line, err)
		}
		if strings.TrimSpace(rec.UniqueID) == "" {
			return nil, fmt.Errorf("ledger line %d: empty unique_id", line)
		}
		if _, dup := seen[rec.UniqueID]; dup {
			return nil, fmt.Errorf("ledger line %d: %w: %s", line, ErrDuplicateID, rec.UniqueID)
		}
		seen[rec.UniqueID] = struct{}{}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	return records, nil
}

// ByID builds a lookup map from a snapshot. The slice order is preserved
// elsewhere; the map is only for diff joins.
func ByID(records []Record) map[string]Record {
	m := make(map[string]Record, len(records))
	for _, rec := range records {
		m[rec.UniqueID] = rec
	}
	return m
}
