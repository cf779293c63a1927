// Package shadow implements the anti-delete cache: inbound messages are
// shadow-copied on ingest and replayed into the chat when someone other than
// the bot revokes them. Restoration happens at most once per message.
package shadow

import (
	"context"
	"fmt"
	"time"

	"github.com/TechitoonStudios/TechitoonGuardGo/pkg/logger"
	"github.com/TechitoonStudios/TechitoonGuardGo/pkg/models"
	"github.com/TechitoonStudios/TechitoonGuardGo/pkg/transport"
)

// Store is the durable backend for shadow copies
type Store interface {
	Get(chatID, messageID string) (*models.ShadowMessage, error)
	Save(msg *models.ShadowMessage) error
	DeleteOlderThan(cutoff time.Time) (int64, error)
}

// Cache drives the store-on-ingest and restore-on-deletion paths plus the
// retention sweep
type Cache struct {
	store     Store
	sender    transport.Sender
	settings  transport.Settings
	botJID    string
	retention time.Duration
}

// New creates a shadow cache
func New(store Store, sender transport.Sender, settings transport.Settings, botJID string, retention time.Duration) *Cache {
	return &Cache{
		store:     store,
		sender:    sender,
		settings:  settings,
		botJID:    botJID,
		retention: retention,
	}
}

// StoreMessage shadow-copies an inbound message when shadowing applies to the
// chat: always for one-to-one chats, per-group opt-in otherwise. Insert-or-
// ignore: an existing copy (possibly already restored) is never overwritten.
func (c *Cache) StoreMessage(ctx context.Context, msg transport.IncomingMessage) {
	if msg.Text == "" || msg.Sender == c.botJID {
		return
	}

	if msg.IsGroup() {
		flags, err := c.settings.GetGroupFlags(ctx, msg.ChatID)
		if err != nil {
			logger.Error(fmt.Sprintf("No se pudo leer la configuración de shadowing de %s: %v", msg.ChatID, err), "Shadow")
			return
		}
		if !flags.ShadowingEnabled {
			return
		}
	}

	existing, err := c.store.Get(msg.ChatID, msg.MessageID)
	if err != nil {
		logger.Error(fmt.Sprintf("No se pudo consultar la copia de %s/%s: %v", msg.ChatID, msg.MessageID, err), "Shadow")
		return
	}
	if existing != nil {
		return
	}

	copyMsg := &models.ShadowMessage{
		ChatID:    msg.ChatID,
		MessageID: msg.MessageID,
		Sender:    msg.Sender,
		Content:   msg.Text,
		StoredAt:  time.Now(),
	}
	if err := c.store.Save(copyMsg); err != nil {
		logger.Error(fmt.Sprintf("No se pudo guardar la copia de %s/%s: %v", msg.ChatID, msg.MessageID, err), "Shadow")
	}
}

// OnDeletionEvent restores a revoked message once. Deletions by the bot
// itself (moderation deletes) are never restored; unknown or already restored
// ids are a no-op.
func (c *Cache) OnDeletionEvent(ctx context.Context, del transport.MessageDeletion) {
	if del.Actor == c.botJID {
		return
	}

	copyMsg, err := c.store.Get(del.ChatID, del.MessageID)
	if err != nil {
		logger.Error(fmt.Sprintf("No se pudo consultar la copia de %s/%s: %v", del.ChatID, del.MessageID, err), "Shadow")
		return
	}
	if copyMsg == nil || copyMsg.Restored {
		return
	}
	// La capa de lectura puede servir copias que el barrido ya purgó de la
	// base; fuera de la ventana de retención equivalen a no encontradas.
	if time.Since(copyMsg.StoredAt) >= c.retention {
		return
	}

	text := fmt.Sprintf("🗑️ Mensaje eliminado por @%s:\n\n%s", stripJID(copyMsg.Sender), copyMsg.Content)
	if err := c.sender.Send(ctx, del.ChatID, text, []string{copyMsg.Sender}); err != nil {
		logger.Error(fmt.Sprintf("No se pudo restaurar el mensaje %s/%s: %v", del.ChatID, del.MessageID, err), "Shadow")
		return
	}

	// Marcar antes de cualquier evento duplicado: una restauración por id
	copyMsg.Restored = true
	if err := c.store.Save(copyMsg); err != nil {
		logger.Error(fmt.Sprintf("No se pudo marcar como restaurado %s/%s: %v", del.ChatID, del.MessageID, err), "Shadow")
	}
	logger.Info(fmt.Sprintf("Mensaje de %s restaurado en %s", copyMsg.Sender, del.ChatID), "Shadow")
}

// RunRetentionSweep deletes shadow copies older than the retention window
func (c *Cache) RunRetentionSweep() {
	cutoff := time.Now().Add(-c.retention)
	deleted, err := c.store.DeleteOlderThan(cutoff)
	if err != nil {
		logger.Error(fmt.Sprintf("Falló el barrido de retención de copias: %v", err), "Shadow")
		return
	}
	if deleted > 0 {
		logger.Info(fmt.Sprintf("Barrido de retención: %d copias eliminadas", deleted), "Shadow")
	}
}

// StartRetentionSweep runs RunRetentionSweep on a fixed interval until the
// context is cancelled
func (c *Cache) StartRetentionSweep(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.RunRetentionSweep()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func stripJID(jid string) string {
	for i := 0; i < len(jid); i++ {
		if jid[i] == '@' {
			return jid[:i]
		}
	}
	return jid
}
