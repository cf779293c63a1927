package recovery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/TechitoonStudios/TechitoonGuardGo/pkg/models"
	"github.com/TechitoonStudios/TechitoonGuardGo/pkg/transport"
)

const testGroup = "group-1@g.us"

// fakeClock fires every timer immediately unless block is set
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	waits []time.Duration
	block bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.waits = append(c.waits, d)
	blocked := c.block
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	if !blocked {
		ch <- c.now
	}
	return ch
}

func (c *fakeClock) waitCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waits)
}

// fakeInvites serves the cached invite after failFirst misses
type fakeInvites struct {
	mu        sync.Mutex
	ref       *models.InviteReference
	failFirst int
	calls     int
}

func (f *fakeInvites) Get(groupID string) (*models.InviteReference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failFirst {
		return nil, nil
	}
	return f.ref, nil
}

// fakeDirectory implements transport.Directory; only AcceptInvite matters here
type fakeDirectory struct {
	mu         sync.Mutex
	accepted   []string
	acceptErrs int
}

func (f *fakeDirectory) GetMembership(ctx context.Context, groupID string) ([]transport.Member, error) {
	return nil, nil
}
func (f *fakeDirectory) SetRole(ctx context.Context, groupID, userID string, role transport.Role) error {
	return nil
}
func (f *fakeDirectory) RemoveMember(ctx context.Context, groupID, userID string) error { return nil }
func (f *fakeDirectory) GetInviteCode(ctx context.Context, groupID string) (string, error) {
	return "", transport.ErrNotFound
}
func (f *fakeDirectory) ListGroups(ctx context.Context) ([]string, error) { return nil, nil }

func (f *fakeDirectory) AcceptInvite(ctx context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.acceptErrs > 0 {
		f.acceptErrs--
		return errors.New("rate limited")
	}
	f.accepted = append(f.accepted, code)
	return nil
}

func (f *fakeDirectory) acceptedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.accepted)
}

// fakeRestorer records admin restoration requests
type fakeRestorer struct {
	mu     sync.Mutex
	groups []string
}

func (f *fakeRestorer) RestoreAdminRights(ctx context.Context, groupID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups = append(f.groups, groupID)
}

func (f *fakeRestorer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.groups)
}

func newTestManager(clock Clock, invites InviteSource, dir *fakeDirectory) (*Manager, *fakeRestorer) {
	m := NewManager(dir, invites, clock, 5, 5*time.Minute)
	restorer := &fakeRestorer{}
	m.SetRestorer(restorer)
	return m, restorer
}

// waitForStatus polls until the task reaches the wanted status or times out
func waitForStatus(t *testing.T, m *Manager, groupID string, want Status) Task {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if task, ok := m.TaskFor(groupID); ok && task.Status == want {
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
	task, _ := m.TaskFor(groupID)
	t.Fatalf("task never reached %s, last state: %+v", want, task)
	return Task{}
}

func TestRecoverySucceedsWithCachedInvite(t *testing.T) {
	clock := newFakeClock()
	invites := &fakeInvites{ref: &models.InviteReference{GroupID: testGroup, InviteCode: "inv-xyz"}}
	dir := &fakeDirectory{}
	m, restorer := newTestManager(clock, invites, dir)
	defer m.Stop()

	m.Trigger(testGroup)
	task := waitForStatus(t, m, testGroup, StatusSucceeded)

	if task.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", task.Attempts)
	}
	if dir.acceptedCount() != 1 || dir.accepted[0] != "inv-xyz" {
		t.Errorf("invite not accepted: %v", dir.accepted)
	}
	if restorer.count() != 1 {
		t.Errorf("admin restoration calls = %d, want 1", restorer.count())
	}
}

func TestMissingInviteIsTransient(t *testing.T) {
	// la invitación aparece recién en el tercer intento, guardada por otra vía
	clock := newFakeClock()
	invites := &fakeInvites{
		ref:       &models.InviteReference{GroupID: testGroup, InviteCode: "inv-late"},
		failFirst: 2,
	}
	dir := &fakeDirectory{}
	m, restorer := newTestManager(clock, invites, dir)
	defer m.Stop()

	m.Trigger(testGroup)
	task := waitForStatus(t, m, testGroup, StatusSucceeded)

	if task.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", task.Attempts)
	}
	if restorer.count() != 1 {
		t.Errorf("admin restoration calls = %d, want 1", restorer.count())
	}
}

func TestRecoveryExhaustsAfterMaxAttempts(t *testing.T) {
	clock := newFakeClock()
	invites := &fakeInvites{failFirst: 100} // nunca hay invitación
	dir := &fakeDirectory{}
	m, restorer := newTestManager(clock, invites, dir)
	defer m.Stop()

	m.Trigger(testGroup)
	task := waitForStatus(t, m, testGroup, StatusExhausted)

	if task.Attempts != 5 {
		t.Errorf("attempts = %d, want 5", task.Attempts)
	}
	if dir.acceptedCount() != 0 {
		t.Error("no invite should have been accepted")
	}
	if restorer.count() != 0 {
		t.Error("no admin restoration expected on exhaustion")
	}
	// 4 esperas entre 5 intentos; el último no espera
	if clock.waitCount() != 4 {
		t.Errorf("waits = %d, want 4", clock.waitCount())
	}
}

func TestTransientAcceptFailureRetries(t *testing.T) {
	clock := newFakeClock()
	invites := &fakeInvites{ref: &models.InviteReference{GroupID: testGroup, InviteCode: "inv-xyz"}}
	dir := &fakeDirectory{acceptErrs: 1}
	m, _ := newTestManager(clock, invites, dir)
	defer m.Stop()

	m.Trigger(testGroup)
	task := waitForStatus(t, m, testGroup, StatusSucceeded)

	if task.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", task.Attempts)
	}
}

func TestTriggerIsIdempotentWhileActive(t *testing.T) {
	clock := newFakeClock()
	clock.block = true // la tarea queda esperando entre intentos
	invites := &fakeInvites{failFirst: 100}
	dir := &fakeDirectory{}
	m, _ := newTestManager(clock, invites, dir)
	defer m.Stop()

	m.Trigger(testGroup)
	waitForStatus(t, m, testGroup, StatusRetrying)
	m.Trigger(testGroup)
	m.Trigger(testGroup)

	if got := len(m.Tasks()); got != 1 {
		t.Errorf("tasks = %d, want 1 active task per group", got)
	}
}

func TestCancelSupersedesActiveTask(t *testing.T) {
	clock := newFakeClock()
	clock.block = true
	invites := &fakeInvites{failFirst: 100}
	dir := &fakeDirectory{}
	m, restorer := newTestManager(clock, invites, dir)
	defer m.Stop()

	m.Trigger(testGroup)
	waitForStatus(t, m, testGroup, StatusRetrying)
	m.Cancel(testGroup)

	task, _ := m.TaskFor(testGroup)
	if task.Status != StatusCancelled {
		t.Fatalf("status = %s, want cancelled", task.Status)
	}
	if restorer.count() != 0 {
		t.Error("cancelled task must not restore admin rights")
	}
}

func TestRetriggerAfterTerminalStateStartsFresh(t *testing.T) {
	clock := newFakeClock()
	invites := &fakeInvites{failFirst: 100}
	dir := &fakeDirectory{}
	m, _ := newTestManager(clock, invites, dir)
	defer m.Stop()

	m.Trigger(testGroup)
	waitForStatus(t, m, testGroup, StatusExhausted)

	// una nueva expulsión debe poder encolar otra recuperación
	invites.mu.Lock()
	invites.failFirst = 0
	invites.calls = 0
	invites.ref = &models.InviteReference{GroupID: testGroup, InviteCode: "inv-new"}
	invites.mu.Unlock()

	m.Trigger(testGroup)
	task := waitForStatus(t, m, testGroup, StatusSucceeded)
	if task.Attempts != 1 {
		t.Errorf("fresh task attempts = %d, want 1", task.Attempts)
	}
}

func TestCancelOnUnknownGroupIsNoop(t *testing.T) {
	clock := newFakeClock()
	m, _ := newTestManager(clock, &fakeInvites{}, &fakeDirectory{})
	defer m.Stop()

	m.Cancel("never-seen@g.us") // no debe entrar en pánico ni crear tareas
	if got := len(m.Tasks()); got != 0 {
		t.Errorf("tasks = %d, want 0", got)
	}
}
