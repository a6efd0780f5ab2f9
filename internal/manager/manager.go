package manager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/wardenops/warden/internal/executor"
	"github.com/wardenops/warden/internal/journal"
	"github.com/wardenops/warden/internal/logger"
	"github.com/wardenops/warden/internal/metrics"
	"github.com/wardenops/warden/internal/models"
)

// ValidationError reports a malformed proposal shape.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

// ErrNotFound is returned when a handle does not name a known execution.
var ErrNotFound = fmt.Errorf("execution not found")

// ReasonInProgress rejects a proposal whose action id already has a
// non-terminal execution.
const ReasonInProgress = "in_progress"

// entry tracks one live execution. mu guards the exec record itself; it is
// shared with the executor goroutine so status snapshots are never torn.
// approve and approved are guarded by the manager's mutex.
type entry struct {
	mu       sync.Mutex
	exec     *models.ActionExecution
	approve  chan struct{}
	approved bool
}

func (ent *entry) snapshot() models.ActionExecution {
	ent.mu.Lock()
	defer ent.mu.Unlock()
	return *ent.exec
}

// Notifier is told about terminal action outcomes. May be nil.
type Notifier interface {
	ActionOutcome(exec *models.ActionExecution)
}

// Manager routes proposals into the guarded executor. It serializes
// proposals per action id so at most one non-terminal execution exists for
// any action at a time, and short-circuits rejections before the platform
// gateway is ever involved.
type Manager struct {
	db       *gorm.DB
	journal  *journal.Journal
	executor *executor.Executor
	notifier Notifier
	enabled  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	inflight   map[string]*entry // keyed by action id
	executions map[string]*entry // keyed by execution id, live entries only
}

func New(db *gorm.DB, jrnl *journal.Journal, exec *executor.Executor, notifier Notifier, enabled bool) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		db:         db,
		journal:    jrnl,
		executor:   exec,
		notifier:   notifier,
		enabled:    enabled,
		ctx:        ctx,
		cancel:     cancel,
		inflight:   map[string]*entry{},
		executions: map[string]*entry{},
	}
}

// Submit validates and accepts a proposal, returning the execution id as
// handle. The proposal is journaled before any further progress; rejections
// (disabled executor, in-flight conflict, policy, cooldown) surface as
// terminal Rejected executions retrievable through Status.
func (m *Manager) Submit(proposal *models.ActionProposal) (string, error) {
	if err := validate(proposal); err != nil {
		return "", err
	}
	if proposal.CreatedAt.IsZero() {
		proposal.CreatedAt = time.Now()
	}

	if err := m.db.Create(proposal).Error; err != nil {
		return "", fmt.Errorf("persist proposal: %w", err)
	}
	if err := m.journal.AppendProposal(proposal); err != nil {
		return "", err
	}

	exec := &models.ActionExecution{
		ProposalID: proposal.ID,
		ActionID:   proposal.ActionID,
		Target:     proposal.Target,
		State:      models.StateProposed,
	}
	if err := m.db.Create(exec).Error; err != nil {
		return "", fmt.Errorf("persist execution: %w", err)
	}

	ent := &entry{exec: exec, approve: make(chan struct{})}

	m.mu.Lock()
	m.executions[exec.ID] = ent
	if !m.enabled {
		m.mu.Unlock()
		m.rejectLocal(ent, executor.ReasonExecutorDisabled, "guarded execution is disabled")
		return exec.ID, nil
	}
	if _, busy := m.inflight[proposal.ActionID]; busy {
		m.mu.Unlock()
		m.rejectLocal(ent, ReasonInProgress, "another execution for this action is in flight")
		return exec.ID, nil
	}
	m.inflight[proposal.ActionID] = ent
	m.mu.Unlock()

	metrics.ActionStarted()
	m.wg.Add(1)
	go m.run(ent, proposal)

	return exec.ID, nil
}

func (m *Manager) run(ent *entry, proposal *models.ActionProposal) {
	defer m.wg.Done()
	defer metrics.ActionFinished()

	exec := ent.exec
	if err := m.executor.Run(m.ctx, exec, proposal, ent.approve, &ent.mu); err != nil {
		// The state machine could not durably record a step. The execution
		// stays at its last recorded state with the error attached.
		logger.WithFields(map[string]interface{}{
			"execution": exec.ID,
			"action":    exec.ActionID,
		}).WithError(err).Error("execution halted")
	}

	m.mu.Lock()
	if m.inflight[exec.ActionID] == ent {
		delete(m.inflight, exec.ActionID)
	}
	m.mu.Unlock()

	if err := m.db.Save(exec).Error; err != nil {
		logger.Log().WithError(err).Error("persist execution outcome")
	}
	m.evictTerminal(ent)
	if m.notifier != nil && exec.State.Terminal() {
		m.notifier.ActionOutcome(exec)
	}
}

// evictTerminal drops a finished entry from the live map once its final
// state is persisted; later Status calls read it from the database.
func (m *Manager) evictTerminal(ent *entry) {
	if !ent.snapshot().State.Terminal() {
		return
	}
	m.mu.Lock()
	delete(m.executions, ent.exec.ID)
	m.mu.Unlock()
}

// rejectLocal lands an execution in Rejected without engaging the executor.
// The same discipline as the state machine applies: a rejection that cannot
// be journaled is not taken, and the execution stays at Proposed with the
// error attached.
func (m *Manager) rejectLocal(ent *entry, reason, detail string) {
	exec := ent.exec
	now := time.Now()

	ent.mu.Lock()
	prev := exec.State
	exec.State = models.StateRejected
	exec.Reason = reason
	exec.Error = detail
	exec.FinishedAt = &now
	ent.mu.Unlock()

	if err := m.journal.AppendTransition(exec, detail); err != nil {
		ent.mu.Lock()
		exec.State = prev
		exec.Reason = ""
		exec.FinishedAt = nil
		exec.Error = err.Error()
		ent.mu.Unlock()
		logger.Log().WithError(err).Error("record local rejection")
		if err := m.db.Save(exec).Error; err != nil {
			logger.Log().WithError(err).Error("persist halted execution")
		}
		return
	}
	if err := m.db.Save(exec).Error; err != nil {
		logger.Log().WithError(err).Error("persist rejected execution")
	}
	metrics.IncActionRejected()
	m.evictTerminal(ent)
	if m.notifier != nil {
		m.notifier.ActionOutcome(exec)
	}
}

// Status returns a snapshot of an execution. Live executions are read from
// memory under the entry lock; finished ones come from the database.
func (m *Manager) Status(handle string) (models.ActionExecution, error) {
	m.mu.Lock()
	ent, ok := m.executions[handle]
	m.mu.Unlock()
	if ok {
		return ent.snapshot(), nil
	}

	var exec models.ActionExecution
	if err := m.db.First(&exec, "id = ?", handle).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return models.ActionExecution{}, ErrNotFound
		}
		return models.ActionExecution{}, fmt.Errorf("load execution: %w", err)
	}
	return exec, nil
}

// Approve releases an execution waiting at the dry-run approval gate.
func (m *Manager) Approve(handle string) error {
	m.mu.Lock()
	ent, ok := m.executions[handle]
	if ok {
		defer m.mu.Unlock()
		if state := ent.snapshot().State; state.Terminal() {
			return fmt.Errorf("execution already terminal (%s)", state)
		}
		if !ent.approved {
			ent.approved = true
			close(ent.approve)
		}
		return nil
	}
	m.mu.Unlock()

	// Evicted entries are terminal by construction.
	var exec models.ActionExecution
	if err := m.db.First(&exec, "id = ?", handle).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return ErrNotFound
		}
		return fmt.Errorf("load execution: %w", err)
	}
	if exec.State.Terminal() {
		return fmt.Errorf("execution already terminal (%s)", exec.State)
	}
	return ErrNotFound
}

// Pending lists executions that have not reached a terminal state.
func (m *Manager) Pending() []models.ActionExecution {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ActionExecution
	for _, ent := range m.executions {
		if snap := ent.snapshot(); !snap.State.Terminal() {
			out = append(out, snap)
		}
	}
	return out
}

// Drain stops accepting executor progress before the backup point and waits
// for in-flight attempts to reach a terminal state, or for ctx to expire.
func (m *Manager) Drain(ctx context.Context) error {
	m.cancel()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain timed out with executions in flight")
	}
}

func validate(p *models.ActionProposal) error {
	if p == nil {
		return &ValidationError{msg: "proposal is nil"}
	}
	if p.ActionID == "" {
		return &ValidationError{msg: "proposal missing action_id"}
	}
	if p.Target == "" {
		return &ValidationError{msg: "proposal missing target"}
	}
	return nil
}
