package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/wardenops/warden/internal/gateway"
	"github.com/wardenops/warden/internal/journal"
	"github.com/wardenops/warden/internal/logger"
	"github.com/wardenops/warden/internal/metrics"
	"github.com/wardenops/warden/internal/models"
	"github.com/wardenops/warden/internal/policy"
)

// Test hook for cooldown and transition timestamps.
var nowFunc = time.Now

// Rejection reasons surfaced through the journal and the status endpoint.
const (
	ReasonUnknownAction    = "unknown_action"
	ReasonPolicyDenied     = "policy_denied"
	ReasonCooldownActive   = "cooldown_active"
	ReasonDryRunFailed     = "dry_run_failed"
	ReasonCancelled        = "cancelled"
	ReasonExecutorDisabled = "executor_disabled"
)

// Executor drives one ActionExecution through the guarded lifecycle:
// proposed, policy checked, dry run, backed up, applying, verifying, then a
// terminal commit, rollback, rejection or failure. A backup is taken before
// any mutating call, and verification gates the commit.
type Executor struct {
	policies    *policy.Store
	journal     *journal.Journal
	gw          gateway.Gateway
	registry    *Registry
	callTimeout time.Duration
}

func New(policies *policy.Store, jrnl *journal.Journal, gw gateway.Gateway, registry *Registry, callTimeout time.Duration) *Executor {
	return &Executor{
		policies:    policies,
		journal:     jrnl,
		gw:          gw,
		registry:    registry,
		callTimeout: callTimeout,
	}
}

// Run executes a proposal to a terminal state. approval is closed when an
// operator approves progression past the dry-run gate; it may be nil when
// the rule does not require approval. mu guards exec's fields so concurrent
// status readers see consistent snapshots; pass nil when nothing else reads
// the execution while it runs.
//
// Cancellation contract: before the backup succeeds, ctx cancellation
// rejects the attempt without touching the platform. At and past BackedUp
// the attempt runs to a terminal state on a detached context so a shutdown
// never leaves a mutation without its verdict.
func (e *Executor) Run(ctx context.Context, exec *models.ActionExecution, proposal *models.ActionProposal, approval <-chan struct{}, mu sync.Locker) error {
	if mu == nil {
		mu = new(sync.Mutex)
	}
	a := &attempt{Executor: e, mu: mu, exec: exec}
	return a.run(ctx, proposal, approval)
}

// attempt is a single pass through the state machine. The executor goroutine
// is the only writer of the execution record; every write happens under mu
// so snapshot readers holding the same lock never observe a torn update.
type attempt struct {
	*Executor
	mu   sync.Locker
	exec *models.ActionExecution
}

func (a *attempt) update(fn func(exec *models.ActionExecution)) {
	a.mu.Lock()
	fn(a.exec)
	a.mu.Unlock()
}

func (a *attempt) run(ctx context.Context, proposal *models.ActionProposal, approval <-chan struct{}) error {
	// Proposed -> PolicyChecked | Rejected
	rule, err := a.policies.Lookup(proposal.ActionID)
	if err != nil {
		return a.reject(ReasonUnknownAction, fmt.Sprintf("no policy covers action %q", proposal.ActionID))
	}

	decision := policy.Evaluate(rule, proposal.Params)
	if !decision.Allowed {
		return a.reject(ReasonPolicyDenied, decision.Reason)
	}

	if rule.CooldownSeconds > 0 {
		last, err := a.journal.LastCommitTime(proposal.ActionID)
		if err != nil {
			return a.fail(fmt.Errorf("cooldown lookup: %w", err))
		}
		if last != nil {
			elapsed := nowFunc().Sub(*last)
			if elapsed < time.Duration(rule.CooldownSeconds)*time.Second {
				remaining := time.Duration(rule.CooldownSeconds)*time.Second - elapsed
				return a.reject(ReasonCooldownActive,
					fmt.Sprintf("cooldown for %s active for another %s", proposal.ActionID, remaining.Round(time.Second)))
			}
		}
	}

	handler, err := a.registry.Lookup(proposal.ActionID)
	if err != nil {
		return a.reject(ReasonUnknownAction, err.Error())
	}

	if err := a.transition(models.StatePolicyChecked, ""); err != nil {
		return err
	}

	// PolicyChecked -> DryRun | Rejected
	if err := handler.Simulate(proposal); err != nil {
		return a.reject(ReasonDryRunFailed, err.Error())
	}
	if err := a.transition(models.StateDryRun, ""); err != nil {
		return err
	}

	// Approval gate. Cancellation is still safe here.
	if rule.RequireApproval {
		select {
		case <-approval:
		case <-ctx.Done():
			return a.reject(ReasonCancelled, "cancelled while awaiting approval")
		}
	}
	if ctx.Err() != nil {
		return a.reject(ReasonCancelled, "cancelled before backup")
	}

	// Backup must succeed before anything mutates.
	backupCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	backupRef, err := a.gw.Backup(backupCtx, proposal.Target)
	cancel()
	if err != nil {
		return a.fail(fmt.Errorf("backup: %w", err))
	}
	a.update(func(exec *models.ActionExecution) { exec.BackupRef = backupRef })
	if err := a.transition(models.StateBackedUp, ""); err != nil {
		return err
	}

	// Past this point the attempt always reaches a terminal state, even
	// during shutdown. The backup reference is already durably recorded so a
	// human can restore manually if we are interrupted mid-flight.
	detached := context.WithoutCancel(ctx)

	if err := a.transition(models.StateApplying, ""); err != nil {
		return err
	}
	applyCtx, cancel := context.WithTimeout(detached, a.callTimeout)
	err = a.gw.Apply(applyCtx, proposal.ActionID, proposal.Target, proposal.Params)
	cancel()
	if err != nil {
		return a.rollback(detached, fmt.Errorf("apply: %w", err))
	}

	if err := a.transition(models.StateVerifying, ""); err != nil {
		return err
	}
	verifyCtx, cancel := context.WithTimeout(detached, a.callTimeout)
	results, err := a.gw.Verify(verifyCtx, proposal.Target, handler.Tests(proposal))
	cancel()
	if err != nil {
		return a.rollback(detached, fmt.Errorf("verify: %w", err))
	}
	a.update(func(exec *models.ActionExecution) { exec.VerificationResult = encodeResults(results) })
	if failed := failedChecks(results); len(failed) > 0 {
		return a.rollback(detached, fmt.Errorf("verification failed: %v", failed))
	}

	metrics.IncActionCommitted()
	return a.finish(models.StateCommitted, "")
}

// rollback restores from the recorded backup and lands in RolledBack, or in
// Failed carrying both errors when the restore itself fails.
func (a *attempt) rollback(ctx context.Context, cause error) error {
	if a.exec.BackupRef == "" {
		return a.fail(cause)
	}

	restoreCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	restoreErr := a.gw.Restore(restoreCtx, a.exec.BackupRef)
	cancel()
	if restoreErr != nil {
		return a.fail(fmt.Errorf("%v; restore also failed: %w", cause, restoreErr))
	}

	a.update(func(exec *models.ActionExecution) { exec.Error = cause.Error() })
	metrics.IncActionRolledBack()
	return a.finish(models.StateRolledBack, cause.Error())
}

func (a *attempt) reject(reason, detail string) error {
	a.update(func(exec *models.ActionExecution) {
		exec.Reason = reason
		exec.Error = detail
	})
	metrics.IncActionRejected()
	return a.finish(models.StateRejected, detail)
}

func (a *attempt) fail(cause error) error {
	a.update(func(exec *models.ActionExecution) { exec.Error = cause.Error() })
	return a.finish(models.StateFailed, cause.Error())
}

func (a *attempt) finish(state models.ExecutionState, reason string) error {
	if err := a.transition(state, reason); err != nil {
		return err
	}
	now := nowFunc()
	a.update(func(exec *models.ActionExecution) { exec.FinishedAt = &now })
	logger.WithFields(map[string]interface{}{
		"execution": a.exec.ID,
		"action":    a.exec.ActionID,
		"target":    a.exec.Target,
		"state":     a.exec.State,
		"reason":    reason,
	}).Info("action execution finished")
	return nil
}

// transition advances the state machine and durably records the step. A
// journal write failure halts the machine: the state is not advanced past
// the point it could not be recorded.
func (a *attempt) transition(state models.ExecutionState, reason string) error {
	prev := a.exec.State
	a.update(func(exec *models.ActionExecution) { exec.State = state })
	if err := a.journal.AppendTransition(a.exec, reason); err != nil {
		a.update(func(exec *models.ActionExecution) {
			exec.State = prev
			exec.Error = err.Error()
		})
		return fmt.Errorf("record transition to %s: %w", state, err)
	}
	return nil
}

func encodeResults(results []gateway.CheckResult) string {
	b, err := json.Marshal(results)
	if err != nil {
		return ""
	}
	return string(b)
}

func failedChecks(results []gateway.CheckResult) []string {
	var failed []string
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r.Name)
		}
	}
	return failed
}
