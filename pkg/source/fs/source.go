// Package fs implements the source interface for local filesystem trees.
package fs

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/coppermind/ingrain/pkg/source"
)

// Source lists and reads files under a base directory.
//
// Item paths are slash-separated and relative to BaseDir. Unique ids come
// from the file's inode where available, which keeps identity stable across
// renames on the same filesystem; otherwise they fall back to the path.
type Source struct {
	id      string
	baseDir string
}

var _ source.Source = (*Source)(nil)

type Config struct {
	// Name is the stable source id scoping the ledger. Defaults to the
	// cleaned base directory path.
	Name string

	// BaseDir is the directory to sync (required).
	BaseDir string
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseDir) == "" {
		return fmt.Errorf("base dir is required")
	}
	return nil
}

func New(cfg Config) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base := filepath.Clean(cfg.BaseDir)
	id := strings.TrimSpace(cfg.Name)
	if id == "" {
		id = "fs:" + base
	}
	return &Source{id: id, baseDir: base}, nil
}

func (s *Source) ID() string { return s.id }

func (s *Source) Describe() map[string]string {
	return map[string]string{
		"source":   s.id,
		"type":     "fs",
		"base_dir": s.baseDir,
	}
}

func (s *Source) Close() error { return nil }

func (s *Source) List(ctx context.Context) ([]source.Item, error) {
	var items []source.Item

	err := filepath.WalkDir(s.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.baseDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		items = append(items, source.Item{
			UniqueID:    uniqueID(info, rel),
			Path:        rel,
			Fingerprint: fingerprint(info),
			Size:        info.Size(),
			ModTime:     info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &source.Error{Op: "List", Source: s.id, Err: source.ErrNotFound}
		}
		if os.IsPermission(err) {
			return nil, &source.Error{Op: "List", Source: s.id, Err: source.ErrAccessDenied}
		}
		return nil, &source.Error{Op: "List", Source: s.id, Err: err}
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Path < items[j].Path })
	return items, nil
}

func (s *Source) Read(ctx context.Context, item source.Item) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full := filepath.Join(s.baseDir, filepath.FromSlash(item.Path))
	b, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &source.Error{Op: "Read", Source: s.id, Path: item.Path, Err: source.ErrNotFound}
		}
		if os.IsPermission(err) {
			return nil, &source.Error{Op: "Read", Source: s.id, Path: item.Path, Err: source.ErrAccessDenied}
		}
		return nil, &source.Error{Op: "Read", Source: s.id, Path: item.Path, Err: err}
	}
	return b, nil
}

// uniqueID derives a rename-stable identity from the inode when the
// platform exposes one.
func uniqueID(info fs.FileInfo, rel string) string {
	if st, ok := info.Sys().(*syscall.Stat_t); ok && st.Ino > 0 {
		return fmt.Sprintf("ino:%d", st.Ino)
	}
	return "path:" + rel
}

// fingerprint is modtime+size, sufficient to detect content change without
// hashing file contents.
func fingerprint(info fs.FileInfo) string {
	return fmt.Sprintf("%x-%x", info.ModTime().UTC().UnixNano(), info.Size())
}
