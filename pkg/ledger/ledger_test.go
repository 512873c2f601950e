package ledger

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecords() []Record {
	t0 := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	return []Record{
		{UniqueID: "doc-001", Path: "docs/intro.md", Fingerprint: "fp1", IndexedMarker: "file-abc", LastSeenAt: t0},
		{UniqueID: "doc-002", Path: "docs/setup.md", Fingerprint: "fp2", LastSeenAt: t0},
		{UniqueID: "row-77", Path: "lists/inventory/77", Fingerprint: "fp3", IndexedMarker: "file-def", LastSeenAt: t0.Add(time.Minute)},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	records := sampleRecords()

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, records))

	decoded, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, records, decoded)
}

func TestEncodeRoundTripIsByteStable(t *testing.T) {
	records := sampleRecords()

	var first bytes.Buffer
	require.NoError(t, Encode(&first, records))

	decoded, err := Decode(bytes.NewReader(first.Bytes()))
	require.NoError(t, err)

	var second bytes.Buffer
	require.NoError(t, Encode(&second, decoded))
	assert.Equal(t, first.Bytes(), second.Bytes())
}

func TestEncodeRejectsDuplicateIDs(t *testing.T) {
	records := []Record{
		{UniqueID: "a", Path: "x"},
		{UniqueID: "a", Path: "y"},
	}
	var buf bytes.Buffer
	err := Encode(&buf, records)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestEncodeRejectsEmptyID(t *testing.T) {
	var buf bytes.Buffer
	err := Encode(&buf, []Record{{Path: "x"}})
	require.Error(t, err)
}

func TestDecodeSkipsBlankLines(t *testing.T) {
	input := `
{"unique_id":"a","path":"x","content_fingerprint":"1","last_seen_at":"2026-01-02T03:04:05Z"}

{"unique_id":"b","path":"y","content_fingerprint":"2","last_seen_at":"2026-01-02T03:04:05Z"}
`
	records, err := Decode(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0].UniqueID)
	assert.Equal(t, "b", records[1].UniqueID)
}

func TestDecodeRejectsMalformedLine(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"unique_id":"a"`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}

func TestDecodeRejectsDuplicateIDs(t *testing.T) {
	input := `{"unique_id":"a","path":"x"}
{"unique_id":"a","path":"y"}
`
	_, err := Decode(strings.NewReader(input))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestStoreLoadMissingLedger(t *testing.T) {
	store := NewStore(t.TempDir())

	records, err := store.Load("source-a")
	require.NoError(t, err)
	assert.Nil(t, records)
}

func TestStoreSaveLoad(t *testing.T) {
	store := NewStore(t.TempDir())
	records := sampleRecords()

	require.NoError(t, store.Save("source-a", records))

	loaded, err := store.Load("source-a")
	require.NoError(t, err)
	assert.Equal(t, records, loaded)
}

func TestStoreSaveReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	require.NoError(t, store.Save("src", sampleRecords()))
	require.NoError(t, store.Save("src", sampleRecords()[:1]))

	loaded, err := store.Load("src")
	require.NoError(t, err)
	require.Len(t, loaded, 1)

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "src.jsonl", entries[0].Name())
}

func TestStoreSanitizesSourceID(t *testing.T) {
	store := NewStore(t.TempDir())
	require.NoError(t, store.Save("s3://bucket/prefix", sampleRecords()))

	loaded, err := store.Load("s3://bucket/prefix")
	require.NoError(t, err)
	assert.Len(t, loaded, 3)
	assert.NotContains(t, store.Path("s3://bucket/prefix"), "//")
}

func TestByID(t *testing.T) {
	records := sampleRecords()
	m := ByID(records)
	require.Len(t, m, 3)
	assert.Equal(t, "docs/setup.md", m["doc-002"].Path)
}
