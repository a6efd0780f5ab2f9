package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wardenops/warden/internal/logger"
)

// Backend produces raw model output for a prompt. Implementations must
// respect the timeout and never interpret the prompt; response parsing is
// the caller's concern.
type Backend interface {
	Generate(ctx context.Context, prompt string, timeout time.Duration) (string, error)
	Name() string
}

// ErrTimeout marks a model call that exceeded its deadline.
var ErrTimeout = errors.New("model call timed out")

// ErrAuth marks a rejected credential.
var ErrAuth = errors.New("model backend rejected credentials")

// TransportError reports a communication failure with the model service.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("model transport: %v", e.Err) }

func (e *TransportError) Unwrap() error { return e.Err }

// Options selects and configures a backend.
type Options struct {
	Backend string // "mock", "openai", or empty for credential-based selection
	APIKey  string
	Model   string
}

// New selects a backend. A missing credential never crashes the agent: the
// deterministic mock is the fallback.
func New(opts Options) Backend {
	backend := opts.Backend
	if backend == "" {
		if opts.APIKey != "" {
			backend = "openai"
		} else {
			backend = "mock"
		}
	}

	switch backend {
	case "openai":
		if opts.APIKey == "" {
			logger.Log().Warn("openai backend requested without credential, falling back to mock")
			return NewMock()
		}
		return NewOpenAI(opts.APIKey, opts.Model)
	default:
		return NewMock()
	}
}
