package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockIsDeterministic(t *testing.T) {
	m := NewMock()

	first, err := m.Generate(context.Background(), "some prompt", time.Second)
	require.NoError(t, err)
	second, err := m.Generate(context.Background(), "some prompt", time.Second)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Every canned response is valid JSON with the fields the parser needs.
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(first), &decoded))
	assert.Contains(t, decoded, "root_cause")
	assert.Contains(t, decoded, "confidence")
	assert.Contains(t, decoded, "risk")
}

func TestMockTimeoutEvidenceSelectsRestartAnswer(t *testing.T) {
	m := NewMock()

	raw, err := m.Generate(context.Background(), `{"event": "zwave timed out"}`, time.Second)
	require.NoError(t, err)
	assert.Contains(t, raw, "restart_integration")
}

func TestMockScriptOverride(t *testing.T) {
	m := &Mock{Script: func(prompt string) (string, error) {
		return "", errors.New("scripted failure")
	}}

	_, err := m.Generate(context.Background(), "anything", time.Second)
	assert.EqualError(t, err, "scripted failure")
}

func TestMockHonorsCancelledContext(t *testing.T) {
	m := NewMock()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Generate(ctx, "anything", time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewBackendSelection(t *testing.T) {
	// No credential: the mock is always the safe default.
	assert.Equal(t, "mock", New(Options{}).Name())
	assert.Equal(t, "mock", New(Options{Backend: "openai"}).Name())

	// A credential selects the live backend unless the mock is forced.
	assert.Equal(t, "openai", New(Options{APIKey: "sk-test"}).Name())
	assert.Equal(t, "mock", New(Options{Backend: "mock", APIKey: "sk-test"}).Name())
}
