package analysis

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListIncidentsMissingDir(t *testing.T) {
	refs, err := ListIncidents(filepath.Join(t.TempDir(), "nope"))
	assert.NoError(t, err)
	assert.Empty(t, refs)
}

func TestListIncidentsOrdersByEndTime(t *testing.T) {
	dir := t.TempDir()
	writeIncident(t, dir, "incidents_b.jsonl", []string{
		`{"event": "late", "time_fired": "2026-08-30T12:00:00Z"}`,
	})
	writeIncident(t, dir, "incidents_a.jsonl", []string{
		`{"event": "early", "time_fired": "2026-08-30T09:00:00Z"}`,
		`{"event": "later", "time_fired": "2026-08-30T10:30:00Z"}`,
	})
	// Not collector output; ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0644))
	// No parsable timestamp; skipped.
	writeIncident(t, dir, "incidents_c.jsonl", []string{`{"event": "undated"}`, `garbage`})

	refs, err := ListIncidents(dir)
	require.NoError(t, err)
	require.Len(t, refs, 2)

	assert.Equal(t, filepath.Join(dir, "incidents_a.jsonl"), refs[0].Path)
	assert.Equal(t, filepath.Join(dir, "incidents_b.jsonl"), refs[1].Path)

	wantStart, _ := time.Parse(time.RFC3339, "2026-08-30T09:00:00Z")
	wantEnd, _ := time.Parse(time.RFC3339, "2026-08-30T10:30:00Z")
	assert.True(t, refs[0].Start.Equal(wantStart))
	assert.True(t, refs[0].End.Equal(wantEnd))
}

func TestParseTimestampVariants(t *testing.T) {
	for _, value := range []string{
		"2026-08-30T10:00:00Z",
		"2026-08-30T10:00:00+00:00",
		"2026-08-30T10:00:00.123456+00:00",
		"2026-08-30T10:00:00.123456789-05:00",
	} {
		_, err := parseTimestamp(value)
		assert.NoError(t, err, value)
	}

	_, err := parseTimestamp("yesterday around lunch")
	assert.Error(t, err)
}
