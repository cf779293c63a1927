// Package recovery implements the rejoin scheduler that brings the bot back
// into groups it was expelled from, using the last cached invite code. One
// long-lived, cancellable task per group; everything else in the process keeps
// running while a recovery is in flight.
package recovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/TechitoonStudios/TechitoonGuardGo/pkg/logger"
	"github.com/TechitoonStudios/TechitoonGuardGo/pkg/models"
	"github.com/TechitoonStudios/TechitoonGuardGo/pkg/transport"
)

// Status is the lifecycle state of a recovery task
type Status string

const (
	StatusPending   Status = "pending"
	StatusRetrying  Status = "retrying"
	StatusSucceeded Status = "succeeded"
	StatusExhausted Status = "exhausted"
	StatusCancelled Status = "cancelled"
)

// active reports whether a task in this status still owns its group
func (s Status) active() bool {
	return s == StatusPending || s == StatusRetrying
}

// Task is the externally visible snapshot of one group's recovery
type Task struct {
	GroupID   string    `json:"group_id"`
	Status    Status    `json:"status"`
	Attempts  int       `json:"attempts"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InviteSource reads the cached invite reference for a group
type InviteSource interface {
	Get(groupID string) (*models.InviteReference, error)
}

// AdminRestorer re-promotes the bot after a successful rejoin
type AdminRestorer interface {
	RestoreAdminRights(ctx context.Context, groupID string)
}

// Manager owns the per-group recovery tasks. Trigger is idempotent: a group
// with an active task ignores further triggers; a later Trigger after success
// or exhaustion starts a fresh task.
type Manager struct {
	directory transport.Directory
	invites   InviteSource
	clock     Clock
	restorer  AdminRestorer

	maxAttempts int
	retryDelay  time.Duration
	settleDelay time.Duration

	base      context.Context
	cancelAll context.CancelFunc

	mu    sync.Mutex
	tasks map[string]*taskState
}

type taskState struct {
	task   Task
	cancel context.CancelFunc
}

// NewManager creates a recovery manager. The restorer is attached afterwards
// with SetRestorer because it is implemented by the guardian, which in turn
// needs the manager at construction.
func NewManager(directory transport.Directory, invites InviteSource, clock Clock, maxAttempts int, retryDelay time.Duration) *Manager {
	base, cancelAll := context.WithCancel(context.Background())
	return &Manager{
		directory:   directory,
		invites:     invites,
		clock:       clock,
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
		settleDelay: 5 * time.Second,
		base:        base,
		cancelAll:   cancelAll,
		tasks:       make(map[string]*taskState),
	}
}

// SetRestorer attaches the admin-rights restorer. Must be called before the
// first Trigger.
func (m *Manager) SetRestorer(restorer AdminRestorer) {
	m.restorer = restorer
}

// Trigger enqueues a recovery task for a group. No-op while an active task
// already owns the group.
func (m *Manager) Trigger(groupID string) {
	m.mu.Lock()
	if ts, ok := m.tasks[groupID]; ok && ts.task.Status.active() {
		m.mu.Unlock()
		logger.Info(fmt.Sprintf("Recuperación de %s ya en curso, trigger ignorado", groupID), "Recovery")
		return
	}

	ctx, cancel := context.WithCancel(m.base)
	now := m.clock.Now()
	ts := &taskState{
		task: Task{
			GroupID:   groupID,
			Status:    StatusPending,
			StartedAt: now,
			UpdatedAt: now,
		},
		cancel: cancel,
	}
	m.tasks[groupID] = ts
	m.mu.Unlock()

	logger.Warn(fmt.Sprintf("Recuperación de %s encolada (%d intentos, cada %s)", groupID, m.maxAttempts, m.retryDelay), "Recovery")
	go m.run(ctx, ts)
}

// Cancel supersedes an active task, used when the group healed through another
// path (e.g. an admin re-added the bot manually)
func (m *Manager) Cancel(groupID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ts, ok := m.tasks[groupID]
	if !ok || !ts.task.Status.active() {
		return
	}
	ts.cancel()
	ts.task.Status = StatusCancelled
	ts.task.UpdatedAt = m.clock.Now()
	logger.Info(fmt.Sprintf("Recuperación de %s cancelada: el grupo sanó por otra vía", groupID), "Recovery")
}

// Tasks returns a snapshot of every known task, for the ops API
func (m *Manager) Tasks() []Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Task, 0, len(m.tasks))
	for _, ts := range m.tasks {
		out = append(out, ts.task)
	}
	return out
}

// TaskFor returns the task snapshot for a group
func (m *Manager) TaskFor(groupID string) (Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ts, ok := m.tasks[groupID]
	if !ok {
		return Task{}, false
	}
	return ts.task, true
}

// Stop cancels every task; used at shutdown
func (m *Manager) Stop() {
	m.cancelAll()
}

func (m *Manager) run(ctx context.Context, ts *taskState) {
	groupID := ts.task.GroupID

	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		m.mark(ts, StatusRetrying, attempt)

		ref, err := m.invites.Get(groupID)
		if err != nil || ref == nil {
			// Sin invitación cacheada todavía: transitorio, otra vía puede
			// guardarla mientras esperamos
			logger.Warn(fmt.Sprintf("Sin invitación cacheada para %s (intento %d/%d), reintentando en %s", groupID, attempt, m.maxAttempts, m.retryDelay), "Recovery")
			if !m.wait(ctx, attempt) {
				return
			}
			continue
		}

		if err := m.directory.AcceptInvite(ctx, ref.InviteCode); err != nil {
			logger.Error(fmt.Sprintf("No se pudo reingresar a %s (intento %d/%d): %v", groupID, attempt, m.maxAttempts, err), "Recovery")
			if !m.wait(ctx, attempt) {
				return
			}
			continue
		}

		logger.Info(fmt.Sprintf("Reingreso a %s exitoso vía invitación", groupID), "Recovery")

		// Dejar asentar el estado de membresía antes de pedir privilegios
		select {
		case <-m.clock.After(m.settleDelay):
		case <-ctx.Done():
			return
		}
		m.restorer.RestoreAdminRights(ctx, groupID)
		m.mark(ts, StatusSucceeded, attempt)
		return
	}

	m.mark(ts, StatusExhausted, m.maxAttempts)
	// Único modo de fallo que no se auto-repara: requiere acción humana
	logger.Error(fmt.Sprintf("Recuperación de %s agotada tras %d intentos. Se requiere reingreso manual.", groupID, m.maxAttempts), "Recovery")
}

// wait sleeps between attempts; returns false when the task was cancelled.
// The last attempt does not wait.
func (m *Manager) wait(ctx context.Context, attempt int) bool {
	if attempt >= m.maxAttempts {
		return true
	}
	select {
	case <-m.clock.After(m.retryDelay):
		return true
	case <-ctx.Done():
		return false
	}
}

func (m *Manager) mark(ts *taskState, status Status, attempts int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// una cancelación concurrente gana; no resucitar la tarea
	if ts.task.Status == StatusCancelled {
		return
	}
	ts.task.Status = status
	ts.task.Attempts = attempts
	ts.task.UpdatedAt = m.clock.Now()
}
