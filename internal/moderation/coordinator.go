// Package moderation implements the coordinator that drives content policy
// enforcement over inbound group messages.
package moderation

import (
	"context"
	"fmt"

	"github.com/TechitoonStudios/TechitoonGuardGo/internal/ledger"
	"github.com/TechitoonStudios/TechitoonGuardGo/internal/policy"
	"github.com/TechitoonStudios/TechitoonGuardGo/pkg/logger"
	"github.com/TechitoonStudios/TechitoonGuardGo/pkg/models"
	"github.com/TechitoonStudios/TechitoonGuardGo/pkg/transport"
)

// Coordinator consumes inbound messages, classifies them and drives the
// ledger plus the delete/warn/kick side effects. Every side effect is
// individually best-effort: a failed delete never blocks the warning, a
// failed warning never blocks the kick, and every failure is logged with
// enough context to replay manually.
type Coordinator struct {
	ledger    *ledger.Ledger
	directory transport.Directory
	sender    transport.Sender
	settings  transport.Settings
	botJID    string
}

// New creates a moderation coordinator
func New(l *ledger.Ledger, directory transport.Directory, sender transport.Sender, settings transport.Settings, botJID string) *Coordinator {
	return &Coordinator{
		ledger:    l,
		directory: directory,
		sender:    sender,
		settings:  settings,
		botJID:    botJID,
	}
}

// violationReason maps a category to the human-readable warning reason
func violationReason(category models.Category) string {
	switch category {
	case models.CategorySales:
		return "Posting sales content"
	case models.CategoryLink:
		return "Posting links"
	default:
		return "Breaking group rules"
	}
}

// HandleMessage runs the moderation pipeline for one inbound message.
// Commands bypass moderation entirely; they belong to the command collaborator.
func (c *Coordinator) HandleMessage(ctx context.Context, msg transport.IncomingMessage) {
	if !msg.IsGroup() || msg.IsCommand || msg.Sender == c.botJID {
		return
	}

	flags, err := c.settings.GetGroupFlags(ctx, msg.ChatID)
	if err != nil {
		logger.Error(fmt.Sprintf("No se pudo leer la configuración del grupo %s: %v", msg.ChatID, err), "Moderation")
		return
	}
	if !flags.BotEnabled {
		return
	}

	// Los admins están exentos de la política de contenido
	isAdmin, err := c.senderIsAdmin(ctx, msg.ChatID, msg.Sender)
	if err != nil {
		logger.Error(fmt.Sprintf("No se pudo obtener la membresía de %s tras varios intentos: %v", msg.ChatID, err), "Moderation")
		return
	}
	if isAdmin {
		return
	}

	category := policy.Classify(msg.Text, policy.Media{HasImage: msg.HasMedia, HasVideo: msg.HasMedia})
	if category == "" {
		return
	}

	// Borrado best-effort: un fallo aquí no detiene el resto del pipeline
	if err := c.sender.DeleteMessage(ctx, msg.ChatID, msg.MessageID); err != nil {
		logger.Error(fmt.Sprintf("No se pudo borrar el mensaje %s en %s: %v", msg.MessageID, msg.ChatID, err), "Moderation")
	} else {
		logger.Warn(fmt.Sprintf("Mensaje de %s borrado en %s (%s)", msg.Sender, msg.ChatID, category), "Moderation")
	}

	// Registrar primero, decidir después: la violación que cruza el umbral
	// queda contada y es la que dispara la expulsión.
	newCount, recordErr := c.ledger.RecordViolation(msg.ChatID, msg.Sender, category)
	if recordErr != nil {
		logger.Error(fmt.Sprintf("Violación de %s en %s no persistida: %v", msg.Sender, msg.ChatID, recordErr), "Moderation")
	}

	remaining := c.ledger.Threshold(category) - newCount
	if remaining <= 0 {
		c.kick(ctx, msg.ChatID, msg.Sender, category)
		return
	}

	c.warn(ctx, msg.ChatID, msg.Sender, category, remaining)
}

// senderIsAdmin checks admin/superadmin standing with bounded retry on the
// metadata fetch
func (c *Coordinator) senderIsAdmin(ctx context.Context, groupID, sender string) (bool, error) {
	var members []transport.Member
	err := transport.WithRetry(ctx, "getMembership", func() error {
		var fetchErr error
		members, fetchErr = c.directory.GetMembership(ctx, groupID)
		return fetchErr
	})
	if err != nil {
		return false, err
	}

	for _, m := range members {
		if m.UserID == sender && m.Role.IsAdmin() {
			return true, nil
		}
	}
	return false, nil
}

// warn sends the warning notice naming the reason and the remaining allowance
func (c *Coordinator) warn(ctx context.Context, groupID, userID string, category models.Category, remaining int) {
	text := fmt.Sprintf("⚠️ @%s: %s is not allowed here. Warnings left before removal: %d",
		stripJID(userID), violationReason(category), remaining)

	if err := c.sender.Send(ctx, groupID, text, []string{userID}); err != nil {
		logger.Error(fmt.Sprintf("No se pudo enviar la advertencia a %s en %s: %v", userID, groupID, err), "Moderation")
		return
	}
	logger.Info(fmt.Sprintf("Advertencia enviada a %s en %s (%s, restantes: %d)", userID, groupID, category, remaining), "Moderation")
}

// kick removes the sender once the threshold has been crossed
func (c *Coordinator) kick(ctx context.Context, groupID, userID string, category models.Category) {
	if err := c.directory.RemoveMember(ctx, groupID, userID); err != nil {
		logger.Error(fmt.Sprintf("No se pudo expulsar a %s de %s: %v", userID, groupID, err), "Moderation")
		return
	}
	logger.Warn(fmt.Sprintf("Usuario %s expulsado de %s tras alcanzar el umbral de %s", userID, groupID, category), "Moderation")

	text := fmt.Sprintf("🚫 @%s was removed: %s after repeated warnings.", stripJID(userID), violationReason(category))
	if err := c.sender.Send(ctx, groupID, text, []string{userID}); err != nil {
		logger.Error(fmt.Sprintf("No se pudo anunciar la expulsión de %s en %s: %v", userID, groupID, err), "Moderation")
	}
}

// stripJID returns the bare number of a JID for display purposes
func stripJID(jid string) string {
	for i := 0; i < len(jid); i++ {
		if jid[i] == '@' {
			return jid[:i]
		}
	}
	return jid
}
