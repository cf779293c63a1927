package shadow

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/TechitoonStudios/TechitoonGuardGo/pkg/models"
	"github.com/TechitoonStudios/TechitoonGuardGo/pkg/transport"
)

const (
	testGroup  = "group-1@g.us"
	testDirect = "15551111111@s.whatsapp.net"
	testBot    = "15550000000@s.whatsapp.net"
	testUser   = "15551111111@s.whatsapp.net"
)

// fakeStore is an in-memory Store for tests
type fakeStore struct {
	mu       sync.Mutex
	messages map[string]*models.ShadowMessage
	cutoffs  []time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{messages: make(map[string]*models.ShadowMessage)}
}

func shadowKey(chatID, messageID string) string { return chatID + "|" + messageID }

func (f *fakeStore) Get(chatID, messageID string) (*models.ShadowMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.messages[shadowKey(chatID, messageID)]
	if !ok {
		return nil, nil
	}
	cp := *msg
	return &cp, nil
}

func (f *fakeStore) Save(msg *models.ShadowMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *msg
	f.messages[shadowKey(msg.ChatID, msg.MessageID)] = &cp
	return nil
}

func (f *fakeStore) DeleteOlderThan(cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	var deleted int64
	for k, m := range f.messages {
		if m.StoredAt.Before(cutoff) {
			delete(f.messages, k)
			deleted++
		}
	}
	return deleted, nil
}

// fakeSender implements transport.Sender for tests
type fakeSender struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeSender) Send(ctx context.Context, chatID, text string, mentions []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeSender) DeleteMessage(ctx context.Context, chatID, messageID string) error { return nil }

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

func newTestCache(shadowing bool) (*Cache, *fakeStore, *fakeSender) {
	store := newFakeStore()
	sender := &fakeSender{}
	settings := &fakeSettings{flags: transport.GroupFlags{BotEnabled: true, ShadowingEnabled: shadowing}}
	return New(store, sender, settings, testBot, 72*time.Hour), store, sender
}

func groupMessage(id, text string) transport.IncomingMessage {
	return transport.IncomingMessage{
		ChatID:    testGroup,
		MessageID: id,
		Sender:    testUser,
		Text:      text,
	}
}

func TestGroupMessageIsShadowedWhenEnabled(t *testing.T) {
	c, store, _ := newTestCache(true)

	c.StoreMessage(context.Background(), groupMessage("m1", "hola grupo"))

	msg, _ := store.Get(testGroup, "m1")
	if msg == nil || msg.Content != "hola grupo" || msg.Sender != testUser {
		t.Fatalf("shadow copy wrong: %+v", msg)
	}
	if msg.Restored {
		t.Error("fresh copy must not be marked restored")
	}
}

func TestGroupMessageIsSkippedWhenDisabled(t *testing.T) {
	c, store, _ := newTestCache(false)

	c.StoreMessage(context.Background(), groupMessage("m1", "hola grupo"))

	if msg, _ := store.Get(testGroup, "m1"); msg != nil {
		t.Error("opt-out group must not be shadowed")
	}
}

func TestDirectChatIsAlwaysShadowed(t *testing.T) {
	c, store, _ := newTestCache(false) // el flag de grupo no aplica a chats 1:1

	c.StoreMessage(context.Background(), transport.IncomingMessage{
		ChatID:    testDirect,
		MessageID: "m1",
		Sender:    testUser,
		Text:      "mensaje privado",
	})

	if msg, _ := store.Get(testDirect, "m1"); msg == nil {
		t.Error("one-to-one chats are always shadowed")
	}
}

func TestStoreIsInsertOrIgnore(t *testing.T) {
	c, store, _ := newTestCache(true)
	ctx := context.Background()

	c.StoreMessage(ctx, groupMessage("m1", "original"))

	// marcar como restaurado y volver a almacenar el mismo id
	msg, _ := store.Get(testGroup, "m1")
	msg.Restored = true
	store.Save(msg)

	c.StoreMessage(ctx, groupMessage("m1", "otro contenido"))

	msg, _ = store.Get(testGroup, "m1")
	if !msg.Restored || msg.Content != "original" {
		t.Errorf("existing copy must never be overwritten: %+v", msg)
	}
}

func TestDeletionRestoresOnce(t *testing.T) {
	c, _, sender := newTestCache(true)
	ctx := context.Background()

	c.StoreMessage(ctx, groupMessage("m1", "no me borres"))

	del := transport.MessageDeletion{ChatID: testGroup, MessageID: "m1", Actor: testUser}
	c.OnDeletionEvent(ctx, del)

	if sender.sentCount() != 1 {
		t.Fatalf("sent = %d, want 1 restoration notice", sender.sentCount())
	}
	if !strings.Contains(sender.sent[0], "no me borres") || !strings.Contains(sender.sent[0], stripJID(testUser)) {
		t.Errorf("notice must quote sender and content: %q", sender.sent[0])
	}

	// un segundo evento por el mismo id no produce otro aviso
	c.OnDeletionEvent(ctx, del)
	if sender.sentCount() != 1 {
		t.Errorf("sent = %d, restoration must happen at most once", sender.sentCount())
	}
}

func TestBotDeletionsAreNotRestored(t *testing.T) {
	c, _, sender := newTestCache(true)
	ctx := context.Background()

	c.StoreMessage(ctx, groupMessage("m1", "contenido infractor"))
	c.OnDeletionEvent(ctx, transport.MessageDeletion{ChatID: testGroup, MessageID: "m1", Actor: testBot})

	if sender.sentCount() != 0 {
		t.Error("moderation deletes must never be restored")
	}
}

func TestUnknownDeletionIsNoop(t *testing.T) {
	c, _, sender := newTestCache(true)

	c.OnDeletionEvent(context.Background(), transport.MessageDeletion{
		ChatID: testGroup, MessageID: "never-stored", Actor: testUser,
	})

	if sender.sentCount() != 0 {
		t.Error("unknown message ids are a no-op")
	}
}

func TestExpiredCopyIsNeverRestored(t *testing.T) {
	// la capa de lectura cachea: una copia fuera de la ventana de retención
	// puede seguir siendo servida por Get aunque el barrido ya la haya
	// borrado de la base. El evento de borrado no debe emitir ningún aviso.
	c, store, sender := newTestCache(true)

	store.Save(&models.ShadowMessage{
		ChatID: testGroup, MessageID: "stale", Sender: testUser,
		Content: "contenido vencido", StoredAt: time.Now().Add(-96 * time.Hour),
	})

	c.OnDeletionEvent(context.Background(), transport.MessageDeletion{
		ChatID: testGroup, MessageID: "stale", Actor: testUser,
	})

	if sender.sentCount() != 0 {
		t.Errorf("sent = %d, a copy past retention must produce zero notices", sender.sentCount())
	}
}

func TestCopyInsideRetentionIsStillRestored(t *testing.T) {
	c, store, sender := newTestCache(true)

	store.Save(&models.ShadowMessage{
		ChatID: testGroup, MessageID: "recent", Sender: testUser,
		Content: "todavía vigente", StoredAt: time.Now().Add(-71 * time.Hour),
	})

	c.OnDeletionEvent(context.Background(), transport.MessageDeletion{
		ChatID: testGroup, MessageID: "recent", Actor: testUser,
	})

	if sender.sentCount() != 1 {
		t.Errorf("sent = %d, a copy inside retention must still be restored", sender.sentCount())
	}
}

func TestRetentionSweepDeletesOldCopies(t *testing.T) {
	c, store, _ := newTestCache(true)

	store.Save(&models.ShadowMessage{
		ChatID: testGroup, MessageID: "old", Sender: testUser,
		Content: "viejo", StoredAt: time.Now().Add(-96 * time.Hour),
	})
	store.Save(&models.ShadowMessage{
		ChatID: testGroup, MessageID: "fresh", Sender: testUser,
		Content: "reciente", StoredAt: time.Now(),
	})

	c.RunRetentionSweep()

	if msg, _ := store.Get(testGroup, "old"); msg != nil {
		t.Error("copy past retention must be deleted")
	}
	if msg, _ := store.Get(testGroup, "fresh"); msg == nil {
		t.Error("copy inside retention must survive")
	}

	// el corte respeta la ventana de 72 horas
	if len(store.cutoffs) != 1 {
		t.Fatalf("cutoffs = %d, want 1", len(store.cutoffs))
	}
	want := time.Now().Add(-72 * time.Hour)
	if diff := store.cutoffs[0].Sub(want); diff < -time.Minute || diff > time.Minute {
		t.Errorf("cutoff %v too far from 72h window", store.cutoffs[0])
	}
}
