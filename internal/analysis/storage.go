package analysis

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ListIncidents scans the incident directory for collector output
// (incidents_*.jsonl) and derives each file's time span from the time_fired
// fields of its lines. Malformed lines are ignored; files without a single
// valid timestamp are skipped entirely.
func ListIncidents(dir string) ([]IncidentRef, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read incident dir: %w", err)
	}

	var refs []IncidentRef
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "incidents_") || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		path := filepath.Join(dir, name)
		ref, ok := scanIncident(path)
		if ok {
			refs = append(refs, ref)
		}
	}

	sort.Slice(refs, func(i, j int) bool {
		if refs[i].End.Equal(refs[j].End) {
			return refs[i].Path < refs[j].Path
		}
		return refs[i].End.Before(refs[j].End)
	})
	return refs, nil
}

func scanIncident(path string) (IncidentRef, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return IncidentRef{}, false
	}

	var start, end time.Time
	for _, line := range strings.Split(string(raw), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var event map[string]interface{}
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue
		}
		ts, ok := event["time_fired"].(string)
		if !ok {
			continue
		}
		parsed, err := parseTimestamp(ts)
		if err != nil {
			continue
		}
		if start.IsZero() || parsed.Before(start) {
			start = parsed
		}
		if end.IsZero() || parsed.After(end) {
			end = parsed
		}
	}

	if start.IsZero() || end.IsZero() {
		return IncidentRef{}, false
	}
	return IncidentRef{Path: path, Start: start, End: end}, true
}

func parseTimestamp(value string) (time.Time, error) {
	value = strings.Replace(value, "Z", "+00:00", 1)
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999-07:00"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", value)
}
