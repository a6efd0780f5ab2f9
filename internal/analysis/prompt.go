package analysis

import (
	"encoding/json"
	"fmt"

	"github.com/wardenops/warden/internal/version"
)

const guardrails = "You are an operations diagnostics agent. " +
	"Respond only with JSON matching the provided schema. " +
	"Do not include explanations or commentary."

// responseSchema is the contract the model is held to; ParseResult enforces
// it on the way back.
const responseSchema = `{
  "type": "object",
  "required": ["root_cause", "impact", "confidence", "risk"],
  "properties": {
    "root_cause": {"type": "string", "description": "Primary reason for the incident"},
    "impact": {"type": "string", "description": "Observed impact on the system"},
    "confidence": {"type": "number", "minimum": 0.0, "maximum": 1.0},
    "candidate_actions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["action_id", "target"],
        "properties": {
          "action_id": {"type": "string"},
          "target": {"type": "string"},
          "rationale": {"type": "string"},
          "parameters": {"type": "object", "additionalProperties": {"type": "string"}}
        }
      }
    },
    "risk": {"type": "string", "description": "Overall risk assessment of acting"},
    "tests": {"type": "array", "items": {"type": "string"}},
    "recurrence_pattern": {"type": "string", "description": "Optional regex matching future occurrences"}
  }
}`

// BuildPrompt renders a deterministic prompt for a context bundle: version
// header, guardrails, response schema, then the bundle as JSON with sorted
// keys. Identical bundles always produce identical prompts.
func BuildPrompt(bundle ContextBundle) (string, error) {
	contextJSON, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal context bundle: %w", err)
	}

	return fmt.Sprintf("%s v%s\n%s\n\nSchema:\n%s\n\nContext:\n%s\n",
		version.Name, version.Version, guardrails, responseSchema, contextJSON), nil
}
