package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/TechitoonStudios/TechitoonGuardGo/internal/ledger"
	"github.com/TechitoonStudios/TechitoonGuardGo/pkg/models"
	"github.com/TechitoonStudios/TechitoonGuardGo/pkg/transport"
)

const (
	testGroup = "group-1@g.us"
	testBot   = "15550000000@s.whatsapp.net"
	testUser  = "15551111111@s.whatsapp.net"
	testAdmin = "15552222222@s.whatsapp.net"
)

// fakeDirectory implements transport.Directory for tests
type fakeDirectory struct {
	mu      sync.Mutex
	members map[string][]transport.Member
	removed []string
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{members: make(map[string][]transport.Member)}
}

func (f *fakeDirectory) GetMembership(ctx context.Context, groupID string) ([]transport.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.members[groupID], nil
}

func (f *fakeDirectory) SetRole(ctx context.Context, groupID, userID string, role transport.Role) error {
	return nil
}

func (f *fakeDirectory) RemoveMember(ctx context.Context, groupID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, groupID+"|"+userID)
	return nil
}

func (f *fakeDirectory) GetInviteCode(ctx context.Context, groupID string) (string, error) {
	return "", transport.ErrNotFound
}

func (f *fakeDirectory) AcceptInvite(ctx context.Context, code string) error { return nil }

func (f *fakeDirectory) ListGroups(ctx context.Context) ([]string, error) { return nil, nil }

func (f *fakeDirectory) removedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.removed)
}

// fakeSender implements transport.Sender for tests
type fakeSender struct {
	mu        sync.Mutex
	sent      []string
	deleted   []string
	deleteErr error
}

func (f *fakeSender) Send(ctx context.Context, chatID, text string, mentions []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeSender) DeleteMessage(ctx context.Context, chatID, messageID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeSender) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// fakeSettings implements transport.Settings for tests
type fakeSettings struct {
	flags transport.GroupFlags
}

func (f *fakeSettings) GetGroupFlags(ctx context.Context, groupID string) (transport.GroupFlags, error) {
	return f.flags, nil
}

// ledger test doubles live in the ledger package; re-declared here minimally
type memStore struct {
	mu   sync.Mutex
	recs map[string]*models.ViolationRecord
}

func (m *memStore) LoadAll() ([]*models.ViolationRecord, error) { return nil, nil }
func (m *memStore) Save(rec *models.ViolationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recs == nil {
		m.recs = make(map[string]*models.ViolationRecord)
	}
	cp := *rec
	m.recs[rec.GroupID+"|"+rec.UserID+"|"+string(rec.Category)] = &cp
	return nil
}
func (m *memStore) Delete(groupID, userID string, category models.Category) error { return nil }

type memBlacklist struct {
	mu      sync.Mutex
	entries map[string]*models.BlacklistEntry
}

func (m *memBlacklist) Add(entry *models.BlacklistEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = make(map[string]*models.BlacklistEntry)
	}
	m.entries[entry.Key()] = entry
	return nil
}
func (m *memBlacklist) Remove(groupID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, models.BlacklistKey(groupID, userID))
	return nil
}
func (m *memBlacklist) IsBlacklisted(groupID, userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[models.BlacklistKey(groupID, userID)]
	return ok
}
func (m *memBlacklist) ListByGroup(groupID string) []*models.BlacklistEntry { return nil }

func newTestCoordinator(t *testing.T) (*Coordinator, *fakeDirectory, *fakeSender) {
	t.Helper()
	l := ledger.New(&memStore{}, &memBlacklist{}, ledger.Thresholds{Sales: 3, Link: 3, AdminAbuse: 5})

	dir := newFakeDirectory()
	dir.members[testGroup] = []transport.Member{
		{UserID: testBot, Role: transport.RoleAdmin},
		{UserID: testAdmin, Role: transport.RoleAdmin},
		{UserID: testUser, Role: transport.RoleMember},
	}

	sender := &fakeSender{}
	settings := &fakeSettings{flags: transport.GroupFlags{BotEnabled: true, ShadowingEnabled: true}}

	return New(l, dir, sender, settings, testBot), dir, sender
}

func linkMessage(id string) transport.IncomingMessage {
	return transport.IncomingMessage{
		ChatID:    testGroup,
		MessageID: id,
		Sender:    testUser,
		Text:      "join now https://spam.example/" + id,
	}
}

func TestThreeLinkMessagesEscalateToKick(t *testing.T) {
	c, dir, sender := newTestCoordinator(t)
	ctx := context.Background()

	// Mensaje 1: borrado + advertencia, restantes = 2
	c.HandleMessage(ctx, linkMessage("m1"))
	if len(sender.deleted) != 1 {
		t.Fatalf("deleted = %d, want 1", len(sender.deleted))
	}
	if sender.sentCount() != 1 || !strings.Contains(sender.sent[0], "left before removal: 2") {
		t.Fatalf("first warning wrong: %v", sender.sent)
	}
	if dir.removedCount() != 0 {
		t.Fatal("no removal expected after first violation")
	}

	// Mensaje 2: advertencia, restantes = 1
	c.HandleMessage(ctx, linkMessage("m2"))
	if sender.sentCount() != 2 || !strings.Contains(sender.sent[1], "left before removal: 1") {
		t.Fatalf("second warning wrong: %v", sender.sent)
	}
	if dir.removedCount() != 0 {
		t.Fatal("no removal expected after second violation")
	}

	// Mensaje 3: cruza el umbral, exactamente una expulsión
	c.HandleMessage(ctx, linkMessage("m3"))
	if dir.removedCount() != 1 {
		t.Fatalf("removals = %d, want 1", dir.removedCount())
	}
	if dir.removed[0] != testGroup+"|"+testUser {
		t.Errorf("removed wrong target: %s", dir.removed[0])
	}
	// el aviso de expulsión reemplaza a la advertencia
	if sender.sentCount() != 3 || !strings.Contains(sender.sent[2], "was removed") {
		t.Fatalf("kick notice wrong: %v", sender.sent)
	}
}

func TestAdminsAreExempt(t *testing.T) {
	c, dir, sender := newTestCoordinator(t)

	msg := linkMessage("m1")
	msg.Sender = testAdmin
	c.HandleMessage(context.Background(), msg)

	if len(sender.deleted) != 0 || sender.sentCount() != 0 || dir.removedCount() != 0 {
		t.Error("admin message must not trigger any side effect")
	}
}

func TestCommandsBypassModeration(t *testing.T) {
	c, _, sender := newTestCoordinator(t)

	msg := linkMessage("m1")
	msg.IsCommand = true
	c.HandleMessage(context.Background(), msg)

	if len(sender.deleted) != 0 || sender.sentCount() != 0 {
		t.Error("command message must bypass the coordinator")
	}
}

func TestDirectChatIsIgnored(t *testing.T) {
	c, _, sender := newTestCoordinator(t)

	msg := linkMessage("m1")
	msg.ChatID = "15551111111@s.whatsapp.net"
	c.HandleMessage(context.Background(), msg)

	if len(sender.deleted) != 0 || sender.sentCount() != 0 {
		t.Error("one-to-one chats are outside moderation scope")
	}
}

func TestDisabledGroupIsSkipped(t *testing.T) {
	c, _, sender := newTestCoordinator(t)
	c.settings = &fakeSettings{flags: transport.GroupFlags{BotEnabled: false}}

	c.HandleMessage(context.Background(), linkMessage("m1"))

	if len(sender.deleted) != 0 || sender.sentCount() != 0 {
		t.Error("disabled group must skip all protection actions")
	}
}

func TestDeleteFailureDoesNotBlockPipeline(t *testing.T) {
	c, _, sender := newTestCoordinator(t)
	sender.deleteErr = errors.New("revoke failed")

	c.HandleMessage(context.Background(), linkMessage("m1"))

	// la advertencia se emite aunque el borrado haya fallado
	if sender.sentCount() != 1 {
		t.Fatalf("sent = %d, want 1 warning despite delete failure", sender.sentCount())
	}
}

func TestSalesContentRequiresMedia(t *testing.T) {
	c, _, sender := newTestCoordinator(t)

	msg := transport.IncomingMessage{
		ChatID:    testGroup,
		MessageID: "m1",
		Sender:    testUser,
		Text:      "selling my account, dm for price",
		HasMedia:  false,
	}
	c.HandleMessage(context.Background(), msg)
	if sender.sentCount() != 0 {
		t.Error("text-only sales mention must not be flagged")
	}

	msg.HasMedia = true
	msg.MessageID = "m2"
	c.HandleMessage(context.Background(), msg)
	if sender.sentCount() != 1 {
		t.Error("sales mention with media must be flagged")
	}
	if !strings.Contains(sender.sent[0], "sales content") {
		t.Errorf("warning should name the sales reason: %v", sender.sent)
	}
}

func TestCleanMessagesProduceNoEffects(t *testing.T) {
	c, dir, sender := newTestCoordinator(t)

	for i := 0; i < 5; i++ {
		c.HandleMessage(context.Background(), transport.IncomingMessage{
			ChatID:    testGroup,
			MessageID: fmt.Sprintf("m%d", i),
			Sender:    testUser,
			Text:      "buenas tardes a todos",
		})
	}

	if len(sender.deleted) != 0 || sender.sentCount() != 0 || dir.removedCount() != 0 {
		t.Error("clean traffic must not trigger moderation")
	}
}
