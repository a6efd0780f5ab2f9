package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenops/warden/internal/database"
	"github.com/wardenops/warden/internal/gateway"
	"github.com/wardenops/warden/internal/journal"
	"github.com/wardenops/warden/internal/models"
	"github.com/wardenops/warden/internal/policy"
)

// fakeGateway records calls and fails on demand.
type fakeGateway struct {
	mu sync.Mutex

	backupErr  error
	applyErr   error
	verifyErr  error
	restoreErr error
	checks     []gateway.CheckResult

	backupCalls  int
	applyCalls   int
	restoreCalls int
	restoredRefs []string
}

func (g *fakeGateway) Backup(ctx context.Context, target string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.backupCalls++
	if g.backupErr != nil {
		return "", g.backupErr
	}
	return target + "@snap-1", nil
}

func (g *fakeGateway) Apply(ctx context.Context, actionID, target string, params map[string]string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.applyCalls++
	return g.applyErr
}

func (g *fakeGateway) Verify(ctx context.Context, target string, tests []string) ([]gateway.CheckResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	if g.checks != nil {
		return g.checks, nil
	}
	out := make([]gateway.CheckResult, 0, len(tests))
	for _, name := range tests {
		out = append(out, gateway.CheckResult{Name: name, Passed: true})
	}
	return out, nil
}

func (g *fakeGateway) Restore(ctx context.Context, backupRef string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.restoreCalls++
	g.restoredRefs = append(g.restoredRefs, backupRef)
	return g.restoreErr
}

const testPolicy = `
- action_id: restart_integration
  allowed: true
  cooldown_seconds: 60
- action_id: restart_container
  allowed: true
  require_approval: true
- action_id: reload_config
  allowed: false
`

type fixture struct {
	executor *Executor
	journal  *journal.Journal
	gw       *fakeGateway
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.JournalRecord{}))

	policyPath := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(policyPath, []byte(testPolicy), 0644))
	policies, err := policy.NewStore(policyPath)
	require.NoError(t, err)

	jrnl := journal.New(db)
	gw := &fakeGateway{}
	return &fixture{
		executor: New(policies, jrnl, gw, NewRegistry(), time.Second),
		journal:  jrnl,
		gw:       gw,
	}
}

func newExecution(actionID, target string) (*models.ActionExecution, *models.ActionProposal) {
	proposal := &models.ActionProposal{ID: "p1", ActionID: actionID, Target: target}
	exec := &models.ActionExecution{
		ID:         "e1",
		ProposalID: proposal.ID,
		ActionID:   actionID,
		Target:     target,
		State:      models.StateProposed,
	}
	return exec, proposal
}

func recordedStates(t *testing.T, f *fixture, executionID string) []models.ExecutionState {
	t.Helper()
	records, err := f.journal.ListForExecution(executionID)
	require.NoError(t, err)
	states := make([]models.ExecutionState, 0, len(records))
	for _, r := range records {
		states = append(states, r.State)
	}
	return states
}

func TestRunCommitsHappyPath(t *testing.T) {
	f := newFixture(t)
	exec, proposal := newExecution("restart_integration", "zwave")

	require.NoError(t, f.executor.Run(context.Background(), exec, proposal, nil, nil))

	assert.Equal(t, models.StateCommitted, exec.State)
	assert.Equal(t, "zwave@snap-1", exec.BackupRef)
	assert.NotNil(t, exec.FinishedAt)
	assert.Contains(t, exec.VerificationResult, `"passed":true`)

	assert.Equal(t, []models.ExecutionState{
		models.StatePolicyChecked,
		models.StateDryRun,
		models.StateBackedUp,
		models.StateApplying,
		models.StateVerifying,
		models.StateCommitted,
	}, recordedStates(t, f, exec.ID))
	assert.Zero(t, f.gw.restoreCalls)
}

func TestRunRejectsUnknownAction(t *testing.T) {
	f := newFixture(t)
	exec, proposal := newExecution("defragment_the_moon", "moon")

	require.NoError(t, f.executor.Run(context.Background(), exec, proposal, nil, nil))

	assert.Equal(t, models.StateRejected, exec.State)
	assert.Equal(t, ReasonUnknownAction, exec.Reason)
	assert.Zero(t, f.gw.backupCalls)
}

func TestRunRejectsPolicyDenied(t *testing.T) {
	f := newFixture(t)
	exec, proposal := newExecution("reload_config", "core")

	require.NoError(t, f.executor.Run(context.Background(), exec, proposal, nil, nil))

	assert.Equal(t, models.StateRejected, exec.State)
	assert.Equal(t, ReasonPolicyDenied, exec.Reason)
	assert.Zero(t, f.gw.backupCalls)
}

func TestRunRejectsDryRunFailure(t *testing.T) {
	f := newFixture(t)
	exec, proposal := newExecution("restart_integration", "zwave")
	proposal.Target = ""

	require.NoError(t, f.executor.Run(context.Background(), exec, proposal, nil, nil))

	assert.Equal(t, models.StateRejected, exec.State)
	assert.Equal(t, ReasonDryRunFailed, exec.Reason)
	assert.Zero(t, f.gw.backupCalls)
}

func TestRunEnforcesCooldown(t *testing.T) {
	f := newFixture(t)

	committed := &models.ActionExecution{ID: "e0", ActionID: "restart_integration", State: models.StateCommitted}
	require.NoError(t, f.journal.AppendTransition(committed, ""))

	// 30s after the commit the 60s window is still active.
	nowFunc = func() time.Time { return time.Now().Add(30 * time.Second) }
	defer func() { nowFunc = time.Now }()

	exec, proposal := newExecution("restart_integration", "zwave")
	require.NoError(t, f.executor.Run(context.Background(), exec, proposal, nil, nil))
	assert.Equal(t, models.StateRejected, exec.State)
	assert.Equal(t, ReasonCooldownActive, exec.Reason)
	assert.Zero(t, f.gw.backupCalls)

	// 61s after the commit the window has lapsed.
	nowFunc = func() time.Time { return time.Now().Add(61 * time.Second) }
	exec2, proposal2 := newExecution("restart_integration", "zwave")
	exec2.ID = "e2"
	require.NoError(t, f.executor.Run(context.Background(), exec2, proposal2, nil, nil))
	assert.Equal(t, models.StateCommitted, exec2.State)
}

func TestRunBackupFailureFailsBeforeMutation(t *testing.T) {
	f := newFixture(t)
	f.gw.backupErr = errors.New("snapshot storage full")

	exec, proposal := newExecution("restart_integration", "zwave")
	require.NoError(t, f.executor.Run(context.Background(), exec, proposal, nil, nil))

	assert.Equal(t, models.StateFailed, exec.State)
	assert.Contains(t, exec.Error, "backup")
	assert.Zero(t, f.gw.applyCalls)
	assert.Zero(t, f.gw.restoreCalls)
}

func TestRunApplyFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.gw.applyErr = errors.New("container refused to stop")

	exec, proposal := newExecution("restart_integration", "zwave")
	require.NoError(t, f.executor.Run(context.Background(), exec, proposal, nil, nil))

	assert.Equal(t, models.StateRolledBack, exec.State)
	assert.Equal(t, 1, f.gw.restoreCalls)
	assert.Equal(t, []string{"zwave@snap-1"}, f.gw.restoredRefs)
	assert.Contains(t, exec.Error, "apply")
}

func TestRunFailedVerificationRollsBack(t *testing.T) {
	f := newFixture(t)
	f.gw.checks = []gateway.CheckResult{
		{Name: "running", Passed: true},
		{Name: "healthy", Passed: false, Detail: "health endpoint 500"},
	}

	exec, proposal := newExecution("restart_integration", "zwave")
	require.NoError(t, f.executor.Run(context.Background(), exec, proposal, nil, nil))

	assert.Equal(t, models.StateRolledBack, exec.State)
	assert.Equal(t, 1, f.gw.restoreCalls)
	assert.Equal(t, []string{"zwave@snap-1"}, f.gw.restoredRefs)
	assert.Contains(t, exec.Error, "healthy")
}

func TestRunVerifyErrorRollsBack(t *testing.T) {
	f := newFixture(t)
	f.gw.verifyErr = errors.New("inspect timed out")

	exec, proposal := newExecution("restart_integration", "zwave")
	require.NoError(t, f.executor.Run(context.Background(), exec, proposal, nil, nil))

	assert.Equal(t, models.StateRolledBack, exec.State)
	assert.Equal(t, 1, f.gw.restoreCalls)
}

func TestRunRestoreFailureLandsInFailedWithBothErrors(t *testing.T) {
	f := newFixture(t)
	f.gw.applyErr = errors.New("apply exploded")
	f.gw.restoreErr = errors.New("snapshot missing")

	exec, proposal := newExecution("restart_integration", "zwave")
	require.NoError(t, f.executor.Run(context.Background(), exec, proposal, nil, nil))

	assert.Equal(t, models.StateFailed, exec.State)
	assert.Contains(t, exec.Error, "apply exploded")
	assert.Contains(t, exec.Error, "snapshot missing")
}

func TestRunWaitsForApproval(t *testing.T) {
	f := newFixture(t)
	exec, proposal := newExecution("restart_container", "recorder")

	approval := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.executor.Run(context.Background(), exec, proposal, approval, nil)
	}()

	select {
	case <-done:
		t.Fatal("execution progressed past the approval gate without approval")
	case <-time.After(100 * time.Millisecond):
	}

	close(approval)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("execution did not finish after approval")
	}
	assert.Equal(t, models.StateCommitted, exec.State)
}

func TestRunCancelledBeforeBackupRejects(t *testing.T) {
	f := newFixture(t)
	exec, proposal := newExecution("restart_container", "recorder")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, f.executor.Run(ctx, exec, proposal, make(chan struct{}), nil))
	assert.Equal(t, models.StateRejected, exec.State)
	assert.Equal(t, ReasonCancelled, exec.Reason)
	assert.Zero(t, f.gw.backupCalls)
	assert.Zero(t, f.gw.applyCalls)
}
