package llm

import (
	"context"
	"hash/fnv"
	"strings"
	"time"
)

// Canned responses keyed off a prompt hash so repeated prompts produce
// repeated answers. Confidence varies with the hash to keep test data from
// looking uniform.
var cannedResponses = []string{
	`{"root_cause":"integration X unresponsive","impact":"entity updates stalled","confidence":0.82,"candidate_actions":[{"action_id":"restart_integration","target":"X","rationale":"repeated timeouts suggest a wedged connection"}],"risk":"low","tests":["running"]}`,
	`{"root_cause":"mock root cause","impact":"mock impact","confidence":0.42,"candidate_actions":[{"action_id":"reload_config","target":"core","rationale":"because tests"}],"risk":"low","tests":["running"]}`,
	`{"root_cause":"recorder database lock contention","impact":"state writes delayed","confidence":0.61,"candidate_actions":[{"action_id":"restart_container","target":"recorder","rationale":"clear held locks"}],"risk":"medium","tests":["running","healthy"]}`,
}

// Mock is the deterministic offline backend: no network, fixed output keyed
// off the prompt hash. It is the default when no credential is configured
// and the workhorse of the test suite.
type Mock struct {
	// Script overrides the canned table when non-nil; used by tests to
	// drive exact responses or errors.
	Script func(prompt string) (string, error)
}

func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Generate(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.Script != nil {
		return m.Script(prompt)
	}

	// Timeout evidence always maps to the restart answer so offline runs
	// exercise the full remediation path deterministically.
	if strings.Contains(prompt, "timed out") {
		return cannedResponses[0], nil
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(prompt))
	return cannedResponses[h.Sum64()%uint64(len(cannedResponses))], nil
}
