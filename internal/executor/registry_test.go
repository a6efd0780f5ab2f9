package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenops/warden/internal/models"
)

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()

	for _, kind := range []string{"restart_integration", "restart_container", "reload_config"} {
		h, err := r.Lookup(kind)
		assert.NoError(t, err)
		assert.NotNil(t, h)
	}

	_, err := r.Lookup("format_disk")
	assert.ErrorIs(t, err, ErrUnknownAction)
	assert.Contains(t, r.Kinds(), "restart_container")
}

func TestSimulateRequiresTarget(t *testing.T) {
	r := NewRegistry()

	for _, kind := range []string{"restart_integration", "restart_container", "reload_config"} {
		h, err := r.Lookup(kind)
		require.NoError(t, err)
		assert.Error(t, h.Simulate(&models.ActionProposal{ActionID: kind}))
		assert.NoError(t, h.Simulate(&models.ActionProposal{ActionID: kind, Target: "thing"}))
	}
}

func TestTestsHonorVerifyParam(t *testing.T) {
	r := NewRegistry()
	h, err := r.Lookup("restart_container")
	require.NoError(t, err)

	p := &models.ActionProposal{ActionID: "restart_container", Target: "recorder"}
	assert.Equal(t, []string{"running", "healthy"}, h.Tests(p))

	p.Params = models.Params{"verify": "running, custom_check"}
	assert.Equal(t, []string{"running", "custom_check"}, h.Tests(p))

	// A blank override falls back to the defaults.
	p.Params = models.Params{"verify": "  ,  "}
	assert.Equal(t, []string{"running", "healthy"}, h.Tests(p))
}
