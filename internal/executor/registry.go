package executor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wardenops/warden/internal/models"
)

// ErrUnknownAction is returned when a proposal names an action kind the
// agent has no handler for. Unknown ids are a data-level condition, not a
// code path.
var ErrUnknownAction = errors.New("unknown action kind")

// ActionHandler is the typed capability behind one action kind. Simulate is
// the dry-run step: it validates the proposal without touching the platform.
// Tests returns the post-apply verification checks for the proposal.
type ActionHandler interface {
	Simulate(p *models.ActionProposal) error
	Tests(p *models.ActionProposal) []string
}

// Registry maps the fixed enumeration of supported action kinds to their
// handlers.
type Registry struct {
	handlers map[string]ActionHandler
}

// NewRegistry returns the default action set.
func NewRegistry() *Registry {
	return &Registry{handlers: map[string]ActionHandler{
		"restart_integration": restartIntegrationHandler{},
		"restart_container":   restartContainerHandler{},
		"reload_config":       reloadConfigHandler{},
	}}
}

// Lookup resolves a handler for an action id.
func (r *Registry) Lookup(actionID string) (ActionHandler, error) {
	h, ok := r.handlers[actionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, actionID)
	}
	return h, nil
}

// Kinds returns the supported action ids.
func (r *Registry) Kinds() []string {
	out := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		out = append(out, k)
	}
	return out
}

// customTests lets a proposal override the default verification checks with
// a comma-separated "verify" parameter.
func customTests(p *models.ActionProposal, fallback []string) []string {
	raw, ok := p.Params["verify"]
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback
	}
	var tests []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tests = append(tests, t)
		}
	}
	if len(tests) == 0 {
		return fallback
	}
	return tests
}

type restartIntegrationHandler struct{}

func (restartIntegrationHandler) Simulate(p *models.ActionProposal) error {
	if p.Target == "" {
		return fmt.Errorf("restart_integration requires a target integration")
	}
	return nil
}

func (restartIntegrationHandler) Tests(p *models.ActionProposal) []string {
	return customTests(p, []string{"running"})
}

type restartContainerHandler struct{}

func (restartContainerHandler) Simulate(p *models.ActionProposal) error {
	if p.Target == "" {
		return fmt.Errorf("restart_container requires a target container")
	}
	return nil
}

func (restartContainerHandler) Tests(p *models.ActionProposal) []string {
	return customTests(p, []string{"running", "healthy"})
}

type reloadConfigHandler struct{}

func (reloadConfigHandler) Simulate(p *models.ActionProposal) error {
	if p.Target == "" {
		return fmt.Errorf("reload_config requires a target service")
	}
	return nil
}

func (reloadConfigHandler) Tests(p *models.ActionProposal) []string {
	return customTests(p, []string{"running"})
}
