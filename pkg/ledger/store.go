package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store reads and writes per-source ledger files under an on-disk directory.
//
// Directory layout:
//
//	<root>/<source_id>.jsonl
//
// Writes are atomic (temp file + rename) so a crashed run never leaves a
// half-written ledger behind. A given source's ledger must not be written
// by two concurrent runs; the caller is responsible for never starting
// overlapping operations on the same source.
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: strings.TrimSpace(root)}
}

func (s *Store) RootDir() string {
	return s.root
}

// Path returns the ledger file path for the given source.
func (s *Store) Path(sourceID string) string {
	return filepath.Join(s.root, sanitizeSourceID(sourceID)+".jsonl")
}

func (s *Store) ensureRoot() error {
	if strings.TrimSpace(s.root) == "" {
		return fmt.Errorf("ledger root dir is empty")
	}
	return os.MkdirAll(s.root, 0755)
}

// Load reads the ledger for a source.
//
// A missing ledger file is not an error: it returns an empty snapshot,
// which makes the next reconciliation a first/full run.
func (s *Store) Load(sourceID string) ([]Record, error) {
	if strings.TrimSpace(sourceID) == "" {
		return nil, fmt.Errorf("source id is required")
	}
	f, err := os.Open(s.Path(sourceID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer func() { _ = f.Close() }()

	records, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("ledger %s: %w", sourceID, err)
	}
	return records, nil
}

// Save atomically replaces the ledger for a source.
func (s *Store) Save(sourceID string, records []Record) error {
	if strings.TrimSpace(sourceID) == "" {
		return fmt.Errorf("source id is required")
	}
	if err := s.ensureRoot(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.root, "ledger.jsonl.tmp.*")
	if err != nil {
		return fmt.Errorf("create temp ledger: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := Encode(tmp, records); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp ledger: %w", err)
	}

	if err := os.Rename(tmpName, s.Path(sourceID)); err != nil {
		return fmt.Errorf("rename ledger: %w", err)
	}
	return nil
}

// sanitizeSourceID maps a source id to a safe file name component.
func sanitizeSourceID(sourceID string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_")
	return r.Replace(strings.TrimSpace(sourceID))
}
