package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// CheckResult is the outcome of one post-apply verification check.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Gateway is the platform capability the executor runs against. Every call
// is bounded by the supplied context; the concrete transport decides what a
// backup reference means.
type Gateway interface {
	// Backup takes a snapshot of the target and returns a restore reference.
	Backup(ctx context.Context, target string) (string, error)
	// Apply performs the named action against the target.
	Apply(ctx context.Context, actionID, target string, params map[string]string) error
	// Verify runs the given checks against the target.
	Verify(ctx context.Context, target string, tests []string) ([]CheckResult, error)
	// Restore reverts the target to a previously taken snapshot.
	Restore(ctx context.Context, backupRef string) error
}

// ErrTimeout marks a call that exceeded its deadline.
var ErrTimeout = errors.New("gateway call timed out")

// TransportError reports a communication failure with the platform.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RetryBudget bounds retries for one external call site. There are no
// implicit retry loops anywhere else.
type RetryBudget struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultRetryBudget retries twice with a short pause.
var DefaultRetryBudget = RetryBudget{MaxAttempts: 3, Backoff: 500 * time.Millisecond}

// withRetry runs fn up to budget.MaxAttempts times. Context cancellation and
// auth-style permanent errors are not retried.
func withRetry(ctx context.Context, budget RetryBudget, fn func() error) error {
	attempts := budget.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if i < attempts-1 {
			select {
			case <-time.After(budget.Backoff):
			case <-ctx.Done():
				return err
			}
		}
	}
	return err
}
