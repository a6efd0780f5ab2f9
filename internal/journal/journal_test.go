package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenops/warden/internal/database"
	"github.com/wardenops/warden/internal/models"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.JournalRecord{}))
	return New(db)
}

func TestAppendProposalAndList(t *testing.T) {
	j := newTestJournal(t)

	proposal := &models.ActionProposal{
		ID:       "p1",
		ActionID: "restart_integration",
		Target:   "zwave",
		Params:   models.Params{"mode": "graceful"},
	}
	require.NoError(t, j.AppendProposal(proposal))

	records, err := j.List(models.JournalKindProposal, time.Time{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "restart_integration", records[0].ActionID)
	assert.Equal(t, "p1", records[0].ProposalID)
	assert.Contains(t, records[0].Payload, `"mode":"graceful"`)
}

func TestLastCommitTimeOnlyCountsCommits(t *testing.T) {
	j := newTestJournal(t)

	last, err := j.LastCommitTime("restart_integration")
	require.NoError(t, err)
	assert.Nil(t, last)

	exec := &models.ActionExecution{
		ID:       "e1",
		ActionID: "restart_integration",
		Target:   "zwave",
		State:    models.StateRolledBack,
	}
	require.NoError(t, j.AppendTransition(exec, "verification failed"))

	// Rollbacks and rejections never start a cooldown window.
	last, err = j.LastCommitTime("restart_integration")
	require.NoError(t, err)
	assert.Nil(t, last)

	exec.State = models.StateCommitted
	require.NoError(t, j.AppendTransition(exec, ""))

	last, err = j.LastCommitTime("restart_integration")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.WithinDuration(t, time.Now(), *last, 5*time.Second)

	// Commits for other actions do not leak across action ids.
	last, err = j.LastCommitTime("reload_config")
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestListForExecutionOrdersTransitions(t *testing.T) {
	j := newTestJournal(t)

	exec := &models.ActionExecution{ID: "e1", ActionID: "reload_config", Target: "core"}
	for _, state := range []models.ExecutionState{
		models.StateProposed,
		models.StatePolicyChecked,
		models.StateDryRun,
		models.StateBackedUp,
	} {
		exec.State = state
		require.NoError(t, j.AppendTransition(exec, ""))
	}

	records, err := j.ListForExecution("e1")
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, models.StateProposed, records[0].State)
	assert.Equal(t, models.StateBackedUp, records[3].State)
}

func TestPruneBefore(t *testing.T) {
	j := newTestJournal(t)

	exec := &models.ActionExecution{ID: "e1", ActionID: "reload_config", State: models.StateCommitted}
	require.NoError(t, j.AppendTransition(exec, ""))

	pruned, err := j.PruneBefore(time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, pruned)

	pruned, err = j.PruneBefore(time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, pruned)
}
