package analysis

import (
	"time"
)

// IncidentRef points at one incident evidence file and its observed time
// span. Produced by the external collector; read-only here.
type IncidentRef struct {
	Path  string    `json:"path"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ContextBundle is the curated, size-bounded, redacted slice of an incident
// plus environment metadata. Built fresh per analysis pass and never
// persisted on its own.
type ContextBundle struct {
	Incident IncidentRef              `json:"incident"`
	Events   []map[string]interface{} `json:"events"`
	Meta     map[string]string        `json:"meta,omitempty"`
}

// CandidateAction is one proposal-shaped remediation suggested by the model.
type CandidateAction struct {
	ActionID   string            `json:"action_id"`
	Target     string            `json:"target"`
	Rationale  string            `json:"rationale"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// RcaResult is the structured model output. It is only trusted after strict
// schema validation; an invalid payload is an analysis failure, never a
// stored result.
type RcaResult struct {
	RootCause         string            `json:"root_cause"`
	Impact            string            `json:"impact"`
	Confidence        float64           `json:"confidence"`
	CandidateActions  []CandidateAction `json:"candidate_actions"`
	Risk              string            `json:"risk"`
	Tests             []string          `json:"tests"`
	RecurrencePattern string            `json:"recurrence_pattern,omitempty"`
}
