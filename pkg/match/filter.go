// Package match evaluates glob-style allow/deny patterns against item paths.
//
// A Filter decides which remote items are visible to reconciliation:
//   - Include patterns: item must match at least one (empty list = match all)
//   - Exclude patterns: item must not match any
//
// Filters are applied before diffing, so an excluded item is invisible in
// both directions: it is never indexed, and a previously indexed item that
// later falls under a deny pattern is treated as deleted.
package match

import (
	"errors"

	"github.com/bmatcuk/doublestar/v4"
)

// Filter evaluates include/exclude patterns against logical item paths.
//
// The Filter is safe for concurrent use after creation.
type Filter struct {
	includes []string
	excludes []string
}

// Config configures a Filter.
type Config struct {
	// Includes are glob patterns that paths must match (at least one).
	// Optional: if empty, every path is included.
	Includes []string

	// Excludes are glob patterns that paths must not match (any).
	// Optional: if empty, no excludes are applied.
	Excludes []string
}

// ErrInvalidPattern is returned when a pattern cannot be compiled.
var ErrInvalidPattern = errors.New("invalid glob pattern")

// PatternError wraps pattern-related errors with context.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return "pattern " + e.Pattern + ": " + e.Err.Error()
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// New creates a Filter from the given configuration.
//
// Returns a PatternError if any pattern cannot be compiled.
func New(cfg Config) (*Filter, error) {
	for _, raw := range append(append([]string{}, cfg.Includes...), cfg.Excludes...) {
		if !doublestar.ValidatePattern(raw) {
			return nil, &PatternError{Pattern: raw, Err: ErrInvalidPattern}
		}
	}
	return &Filter{
		includes: append([]string{}, cfg.Includes...),
		excludes: append([]string{}, cfg.Excludes...),
	}, nil
}

// All returns a Filter that includes every path.
func All() *Filter {
	f, _ := New(Config{})
	return f
}

// Match reports whether the path is visible through the filter.
//
// A path matches if it matches at least one include pattern (or no include
// patterns are configured) and does not match any exclude pattern.
func (f *Filter) Match(path string) bool {
	if f == nil {
		return true
	}

	if len(f.includes) > 0 {
		matched := false
		for _, p := range f.includes {
			if matchPattern(p, path) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	for _, p := range f.excludes {
		if matchPattern(p, path) {
			return false
		}
	}

	return true
}

// IncludePatterns returns the configured include patterns.
func (f *Filter) IncludePatterns() []string {
	return append([]string{}, f.includes...)
}

// ExcludePatterns returns the configured exclude patterns.
func (f *Filter) ExcludePatterns() []string {
	return append([]string{}, f.excludes...)
}

// matchPattern matches a path against a doublestar pattern.
func matchPattern(pattern, path string) bool {
	matched, err := doublestar.Match(pattern, path)
	if err != nil {
		// Patterns are validated at construction time.
		return false
	}
	return matched
}
