package analysis

import (
	"encoding/json"
	"os"
	"reflect"
	"strings"

	"github.com/wardenops/warden/internal/version"
)

// BuildContext assembles the bounded, redacted context bundle for one
// incident. Only the most recent maxLines lines are considered (oldest
// dropped first), secrets are redacted, and consecutive events that differ
// only in time_fired are collapsed to one.
func BuildContext(incident IncidentRef, maxLines int, secretsPath string) ContextBundle {
	secretKeys := LoadSecretKeys(secretsPath)

	var lines []string
	if raw, err := os.ReadFile(incident.Path); err == nil {
		lines = strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	}
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}

	var events []map[string]interface{}
	var lastCmp map[string]interface{}
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var event map[string]interface{}
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue
		}
		redacted, _ := Redact(event, secretKeys).(map[string]interface{})
		if redacted == nil {
			continue
		}
		cmp := withoutTimeFired(redacted)
		if reflect.DeepEqual(cmp, lastCmp) {
			continue
		}
		events = append(events, redacted)
		lastCmp = cmp
	}

	return ContextBundle{
		Incident: incident,
		Events:   events,
		Meta: map[string]string{
			"agent":   version.Name,
			"version": version.Version,
		},
	}
}

func withoutTimeFired(event map[string]interface{}) map[string]interface{} {
	cmp := make(map[string]interface{}, len(event))
	for k, v := range event {
		if k == "time_fired" {
			continue
		}
		cmp[k] = v
	}
	return cmp
}
