package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ParseError reports a model response that is not a valid RcaResult.
type ParseError struct {
	msg string
}

func (e *ParseError) Error() string { return e.msg }

func parseErrorf(format string, args ...interface{}) error {
	return &ParseError{msg: fmt.Sprintf(format, args...)}
}

// ParseResult strictly decodes raw model output into an RcaResult. Unknown
// fields are rejected so prompt/format drift surfaces as an analysis failure
// rather than silently dropped data.
func ParseResult(raw string) (*RcaResult, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.DisallowUnknownFields()

	var result RcaResult
	if err := dec.Decode(&result); err != nil {
		return nil, parseErrorf("model response is not valid RCA JSON: %v", err)
	}
	if dec.More() {
		return nil, parseErrorf("model response has trailing content")
	}
	if err := result.Validate(); err != nil {
		return nil, err
	}
	return &result, nil
}

// Validate checks the schema constraints the prompt promises the model.
func (r *RcaResult) Validate() error {
	if strings.TrimSpace(r.RootCause) == "" {
		return parseErrorf("root_cause is required")
	}
	if strings.TrimSpace(r.Impact) == "" {
		return parseErrorf("impact is required")
	}
	if r.Confidence < 0.0 || r.Confidence > 1.0 {
		return parseErrorf("confidence %v outside [0.0, 1.0]", r.Confidence)
	}
	if strings.TrimSpace(r.Risk) == "" {
		return parseErrorf("risk is required")
	}
	for i, action := range r.CandidateActions {
		if strings.TrimSpace(action.ActionID) == "" {
			return parseErrorf("candidate_actions[%d] missing action_id", i)
		}
		if strings.TrimSpace(action.Target) == "" {
			return parseErrorf("candidate_actions[%d] missing target", i)
		}
	}
	return nil
}
