// Package manifest provides loading and validation of ingrain sync-job
// manifests.
//
// A manifest is a YAML or JSON file configuring one synchronization job:
// the source connection, the match patterns, the target index and the run
// behavior.
//
// Example manifest (YAML):
//
//	version: "1.0"
//	source:
//	  type: s3
//	  bucket: my-docs-bucket
//	  prefix: handbook/
//	  region: us-east-1
//	match:
//	  includes:
//	    - "**/*.md"
//	  excludes:
//	    - "**/drafts/**"
//	index:
//	  base_url: https://api.example.com
//	  store_id: st_01hxyz
//	  api_key_env: INGRAIN_API_KEY
//	behavior:
//	  mode: incremental
package manifest

import (
	"fmt"
	"strings"

	"github.com/coppermind/ingrain/pkg/match"
)

// Version is the manifest schema version this build accepts.
const Version = "1.0"

// Sync modes.
const (
	ModeIncremental = "incremental"
	ModeFull        = "full"
)

// Source types.
const (
	SourceFS = "fs"
	SourceS3 = "s3"
)

// Manifest represents a validated sync-job manifest.
//
// Required fields are Version, Source and Index. Match and Behavior are
// optional with defaults applied during loading.
type Manifest struct {
	// Version is the manifest schema version. Must be "1.0".
	Version string `json:"version" yaml:"version"`

	// Source configures the content source connection.
	Source SourceConfig `json:"source" yaml:"source"`

	// Match configures item filtering by glob patterns (optional).
	Match MatchConfig `json:"match,omitempty" yaml:"match,omitempty"`

	// Index configures the target vector-store index.
	Index IndexConfig `json:"index" yaml:"index"`

	// Behavior configures run behavior (optional).
	Behavior BehaviorConfig `json:"behavior,omitempty" yaml:"behavior,omitempty"`
}

// SourceConfig configures the content source connection.
type SourceConfig struct {
	// Type is the source type: "fs" or "s3".
	Type string `json:"type" yaml:"type"`

	// Name overrides the derived source id that scopes the ledger.
	// Optional. Keep it stable: changing it orphans the previous ledger.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// BaseDir is the directory to sync. Required for type "fs".
	BaseDir string `json:"base_dir,omitempty" yaml:"base_dir,omitempty"`

	// Bucket is the bucket to sync. Required for type "s3".
	Bucket string `json:"bucket,omitempty" yaml:"bucket,omitempty"`

	// Prefix restricts the s3 listing to one key prefix. Optional.
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`

	// Region is the AWS region (e.g. "us-east-1"). Optional.
	Region string `json:"region,omitempty" yaml:"region,omitempty"`

	// Endpoint is a custom endpoint URL for S3-compatible storage. Optional.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`

	// Profile is the AWS credential profile name. Optional.
	Profile string `json:"profile,omitempty" yaml:"profile,omitempty"`
}

// MatchConfig configures item filtering by glob patterns.
type MatchConfig struct {
	// Includes are glob patterns for items to include.
	// Optional: empty means every item.
	Includes []string `json:"includes,omitempty" yaml:"includes,omitempty"`

	// Excludes are glob patterns for items to exclude. Optional.
	Excludes []string `json:"excludes,omitempty" yaml:"excludes,omitempty"`
}

// IndexConfig configures the target vector-store index.
type IndexConfig struct {
	// BaseURL is the vector-store API base URL.
	BaseURL string `json:"base_url" yaml:"base_url"`

	// StoreID is the target store identifier.
	StoreID string `json:"store_id" yaml:"store_id"`

	// APIKeyEnv names the environment variable holding the API key.
	// Optional. The key never appears in the manifest itself.
	APIKeyEnv string `json:"api_key_env,omitempty" yaml:"api_key_env,omitempty"`
}

// BehaviorConfig configures run behavior.
//
// All fields are optional with defaults applied during loading.
type BehaviorConfig struct {
	// Mode is "incremental" (diff against the ledger) or "full"
	// (re-index everything). Default: "incremental".
	Mode string `json:"mode,omitempty" yaml:"mode,omitempty"`

	// RateLimit is the maximum source requests per second (0 = unlimited).
	// Default: 0. Only s3 sources enforce it.
	RateLimit float64 `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
}

// ApplyDefaults fills optional fields with their documented defaults.
func (m *Manifest) ApplyDefaults() {
	if strings.TrimSpace(m.Behavior.Mode) == "" {
		m.Behavior.Mode = ModeIncremental
	}
}

// Validate checks the manifest for structural correctness.
func (m *Manifest) Validate() error {
	var errs ValidationErrors

	if m.Version != Version {
		errs = append(errs, ValidationError{
			Path:    "/version",
			Message: fmt.Sprintf("must be %q, got %q", Version, m.Version),
		})
	}

	switch m.Source.Type {
	case SourceFS:
		if strings.TrimSpace(m.Source.BaseDir) == "" {
			errs = append(errs, ValidationError{Path: "/source/base_dir", Message: "required for type fs"})
		}
	case SourceS3:
		if strings.TrimSpace(m.Source.Bucket) == "" {
			errs = append(errs, ValidationError{Path: "/source/bucket", Message: "required for type s3"})
		}
	case "":
		errs = append(errs, ValidationError{Path: "/source/type", Message: "is required"})
	default:
		errs = append(errs, ValidationError{
			Path:    "/source/type",
			Message: fmt.Sprintf("unsupported type %q (want fs or s3)", m.Source.Type),
		})
	}

	if _, err := match.New(match.Config{Includes: m.Match.Includes, Excludes: m.Match.Excludes}); err != nil {
		errs = append(errs, ValidationError{Path: "/match", Message: err.Error()})
	}

	if strings.TrimSpace(m.Index.BaseURL) == "" {
		errs = append(errs, ValidationError{Path: "/index/base_url", Message: "is required"})
	}
	if strings.TrimSpace(m.Index.StoreID) == "" {
		errs = append(errs, ValidationError{Path: "/index/store_id", Message: "is required"})
	}

	switch m.Behavior.Mode {
	case "", ModeIncremental, ModeFull:
	default:
		errs = append(errs, ValidationError{
			Path:    "/behavior/mode",
			Message: fmt.Sprintf("unsupported mode %q (want incremental or full)", m.Behavior.Mode),
		})
	}
	if m.Behavior.RateLimit < 0 {
		errs = append(errs, ValidationError{Path: "/behavior/rate_limit", Message: "must be >= 0"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Filter builds the match filter from the manifest's patterns. Call only
// after Validate.
func (m *Manifest) Filter() (*match.Filter, error) {
	return match.New(match.Config{Includes: m.Match.Includes, Excludes: m.Match.Excludes})
}

// SourceID is the ledger-scoping identity for this manifest's source.
func (m *Manifest) SourceID() string {
	if id := strings.TrimSpace(m.Source.Name); id != "" {
		return id
	}
	switch m.Source.Type {
	case SourceS3:
		id := "s3://" + m.Source.Bucket
		if m.Source.Prefix != "" {
			id += "/" + strings.TrimPrefix(m.Source.Prefix, "/")
		}
		return id
	case SourceFS:
		return "fs:" + m.Source.BaseDir
	}
	return ""
}
