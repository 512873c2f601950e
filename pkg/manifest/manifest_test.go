package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
version: "1.0"
source:
  type: s3
  bucket: my-docs
  prefix: handbook/
  region: us-east-1
match:
  includes:
    - "**/*.md"
  excludes:
    - "**/drafts/**"
index:
  base_url: https://api.example.com
  store_id: st_01
  api_key_env: INGRAIN_API_KEY
behavior:
  mode: full
  rate_limit: 10
`

func TestLoadValidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o644))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "1.0", m.Version)
	assert.Equal(t, SourceS3, m.Source.Type)
	assert.Equal(t, "my-docs", m.Source.Bucket)
	assert.Equal(t, []string{"**/*.md"}, m.Match.Includes)
	assert.Equal(t, "st_01", m.Index.StoreID)
	assert.Equal(t, ModeFull, m.Behavior.Mode)
	assert.Equal(t, 10.0, m.Behavior.RateLimit)
}

func TestLoadValidJSON(t *testing.T) {
	body := `{
  "version": "1.0",
  "source": {"type": "fs", "base_dir": "/srv/docs"},
  "index": {"base_url": "https://api.example.com", "store_id": "st_01"}
}`
	path := filepath.Join(t.TempDir(), "job.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, SourceFS, m.Source.Type)
	assert.Equal(t, "/srv/docs", m.Source.BaseDir)
}

func TestLoadDefaultsMode(t *testing.T) {
	body := strings.Replace(validYAML, "mode: full", "", 1)
	m, err := LoadFromBytes([]byte(body), "job.yaml")
	require.NoError(t, err)
	assert.Equal(t, ModeIncremental, m.Behavior.Mode)
}

func TestLoadUnknownExtensionFallsBackToYAML(t *testing.T) {
	m, err := LoadFromBytes([]byte(validYAML), "job.manifest")
	require.NoError(t, err)
	assert.Equal(t, "my-docs", m.Source.Bucket)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestLoadEmpty(t *testing.T) {
	_, err := LoadFromBytes(nil, "job.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Manifest {
		return Manifest{
			Version: Version,
			Source:  SourceConfig{Type: SourceFS, BaseDir: "/srv/docs"},
			Index:   IndexConfig{BaseURL: "https://api.example.com", StoreID: "st_01"},
		}
	}

	tests := []struct {
		name     string
		mutate   func(*Manifest)
		wantPath string
	}{
		{"wrong version", func(m *Manifest) { m.Version = "2.0" }, "/version"},
		{"missing source type", func(m *Manifest) { m.Source.Type = "" }, "/source/type"},
		{"unsupported source type", func(m *Manifest) { m.Source.Type = "gcs" }, "/source/type"},
		{"fs without base dir", func(m *Manifest) { m.Source.BaseDir = "" }, "/source/base_dir"},
		{"s3 without bucket", func(m *Manifest) { m.Source = SourceConfig{Type: SourceS3} }, "/source/bucket"},
		{"bad pattern", func(m *Manifest) { m.Match.Includes = []string{"[unclosed"} }, "/match"},
		{"missing base url", func(m *Manifest) { m.Index.BaseURL = "" }, "/index/base_url"},
		{"missing store id", func(m *Manifest) { m.Index.StoreID = "" }, "/index/store_id"},
		{"bad mode", func(m *Manifest) { m.Behavior.Mode = "sometimes" }, "/behavior/mode"},
		{"negative rate limit", func(m *Manifest) { m.Behavior.RateLimit = -1 }, "/behavior/rate_limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := base()
			tt.mutate(&m)
			err := m.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidationFailed)
			assert.Contains(t, err.Error(), tt.wantPath)
		})
	}

	m := base()
	assert.NoError(t, m.Validate())
}

func TestValidationErrorsAggregate(t *testing.T) {
	m := Manifest{}
	err := m.Validate()
	require.Error(t, err)

	var errs ValidationErrors
	require.ErrorAs(t, err, &errs)
	assert.GreaterOrEqual(t, len(errs), 3)
	assert.Contains(t, err.Error(), "errors:")
}

func TestSourceID(t *testing.T) {
	tests := []struct {
		name string
		src  SourceConfig
		want string
	}{
		{"explicit name wins", SourceConfig{Type: SourceS3, Name: "docs", Bucket: "b"}, "docs"},
		{"s3 with prefix", SourceConfig{Type: SourceS3, Bucket: "b", Prefix: "p/"}, "s3://b/p/"},
		{"s3 without prefix", SourceConfig{Type: SourceS3, Bucket: "b"}, "s3://b"},
		{"fs", SourceConfig{Type: SourceFS, BaseDir: "/srv/docs"}, "fs:/srv/docs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Manifest{Source: tt.src}
			assert.Equal(t, tt.want, m.SourceID())
		})
	}
}
