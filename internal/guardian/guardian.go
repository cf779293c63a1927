// Package guardian implements the admin-integrity watchdog: a reactive
// classifier over membership-change events that reverses unauthorized
// promote/demote/remove actions against the bot or the owner, feeds the shared
// violation ledger under the admin-abuse category, and triggers group recovery
// when the bot is expelled outright.
package guardian

import (
	"context"
	"fmt"
	"time"

	"github.com/TechitoonStudios/TechitoonGuardGo/internal/ledger"
	"github.com/TechitoonStudios/TechitoonGuardGo/pkg/logger"
	"github.com/TechitoonStudios/TechitoonGuardGo/pkg/models"
	"github.com/TechitoonStudios/TechitoonGuardGo/pkg/transport"
)

// SuperadminRegistry records legitimate owner-initiated grants
type SuperadminRegistry interface {
	Save(grant *models.SuperadminGrant) error
	IsGranted(groupID, userID string) bool
}

// InviteKeeper persists the latest invite reference per group
type InviteKeeper interface {
	Save(ref *models.InviteReference) error
}

// RecoveryNotifier is the handle into the recovery scheduler
type RecoveryNotifier interface {
	Trigger(groupID string)
	Cancel(groupID string)
}

// Guardian protects the privileged standing of the bot and the owner.
// Every reaction is best-effort: a failed reversal never blocks the ledger
// write, and vice versa.
type Guardian struct {
	ledger      *ledger.Ledger
	directory   transport.Directory
	superadmins SuperadminRegistry
	invites     InviteKeeper
	recovery    RecoveryNotifier

	botJID   string
	ownerJID string
}

// New creates a guardian
func New(l *ledger.Ledger, directory transport.Directory,
	superadmins SuperadminRegistry, invites InviteKeeper, recovery RecoveryNotifier,
	botJID, ownerJID string) *Guardian {
	return &Guardian{
		ledger:      l,
		directory:   directory,
		superadmins: superadmins,
		invites:     invites,
		recovery:    recovery,
		botJID:      botJID,
		ownerJID:    ownerJID,
	}
}

// HandleMembershipUpdate dispatches one membership-change event through the
// decision table. The action set is closed; unknown actions are logged and
// dropped.
func (g *Guardian) HandleMembershipUpdate(ctx context.Context, update transport.MembershipUpdate) {
	switch update.Action {
	case transport.ActionPromote:
		g.onPromote(ctx, update)
	case transport.ActionRemove:
		g.onRemove(ctx, update)
	case transport.ActionDemote:
		g.onDemote(ctx, update)
	case transport.ActionAdd:
		g.onAdd(ctx, update)
	default:
		logger.Warn(fmt.Sprintf("Acción de membresía desconocida %q en %s", update.Action, update.GroupID), "Guardian")
	}
}

// onPromote reverses promotions not sanctioned by the owner. Owner-initiated
// promotions (or promotions of the owner) are persisted as legitimate grants.
func (g *Guardian) onPromote(ctx context.Context, update transport.MembershipUpdate) {
	for _, target := range update.Targets {
		if update.Actor == g.ownerJID || target == g.ownerJID {
			grant := &models.SuperadminGrant{
				GroupID:   update.GroupID,
				UserID:    target,
				GrantedAt: time.Now(),
			}
			if err := g.superadmins.Save(grant); err != nil {
				logger.Error(fmt.Sprintf("No se pudo guardar el grant de superadmin para %s en %s: %v", target, update.GroupID, err), "Guardian")
			} else {
				logger.Info(fmt.Sprintf("Promoción legítima de %s en %s registrada", target, update.GroupID), "Guardian")
			}
			continue
		}

		// Reversión best-effort, la violación se registra igual
		if err := g.directory.SetRole(ctx, update.GroupID, target, transport.RoleMember); err != nil {
			logger.Error(fmt.Sprintf("No se pudo revertir la promoción de %s en %s: %v", target, update.GroupID, err), "Guardian")
		} else {
			logger.Warn(fmt.Sprintf("Promoción no autorizada de %s revertida en %s (actor: %s)", target, update.GroupID, update.Actor), "Guardian")
		}

		g.recordAbuse(ctx, update.GroupID, update.Actor)
	}
}

// onRemove reacts to the bot being expelled: record the abuse and enqueue a
// recovery task for the group
func (g *Guardian) onRemove(ctx context.Context, update transport.MembershipUpdate) {
	if !containsTarget(update.Targets, g.botJID) {
		return
	}

	logger.Error(fmt.Sprintf("El bot fue expulsado de %s por %s", update.GroupID, update.Actor), "Guardian")

	if !g.ledger.IsBlacklisted(update.GroupID, update.Actor) {
		g.recordAbuse(ctx, update.GroupID, update.Actor)
	}
	g.recovery.Trigger(update.GroupID)
}

// onDemote restores owner standing and, when the bot is the target, attempts a
// direct admin restoration (the bot is still a member, no rejoin needed)
func (g *Guardian) onDemote(ctx context.Context, update transport.MembershipUpdate) {
	if containsTarget(update.Targets, g.ownerJID) {
		if err := g.directory.SetRole(ctx, update.GroupID, g.ownerJID, transport.RoleAdmin); err != nil {
			logger.Error(fmt.Sprintf("No se pudo restaurar al owner en %s: %v", update.GroupID, err), "Guardian")
		} else {
			logger.Warn(fmt.Sprintf("Owner restaurado como admin en %s", update.GroupID), "Guardian")
		}
		g.demoteLikelyDemoter(ctx, update)
	}

	if containsTarget(update.Targets, g.botJID) {
		if !g.ledger.IsBlacklisted(update.GroupID, update.Actor) {
			g.recordAbuse(ctx, update.GroupID, update.Actor)
		}
		g.RestoreAdminRights(ctx, update.GroupID)
	}
}

// onAdd expels blacklisted users the moment they rejoin, and cancels any
// pending recovery when the bot itself was re-added through another path
func (g *Guardian) onAdd(ctx context.Context, update transport.MembershipUpdate) {
	for _, target := range update.Targets {
		if target == g.botJID {
			g.recovery.Cancel(update.GroupID)
			continue
		}
		if !g.ledger.IsBlacklisted(update.GroupID, target) {
			continue
		}
		if err := g.directory.RemoveMember(ctx, update.GroupID, target); err != nil {
			logger.Error(fmt.Sprintf("No se pudo expulsar al usuario blacklisteado %s de %s: %v", target, update.GroupID, err), "Guardian")
		} else {
			logger.Warn(fmt.Sprintf("Usuario blacklisteado %s expulsado al reingresar a %s", target, update.GroupID), "Guardian")
		}
	}
}

// recordAbuse writes an admin-abuse violation and escalates to blacklist plus
// removal when the actor crosses the threshold. The blacklist entry is created
// at most once per (group, actor).
func (g *Guardian) recordAbuse(ctx context.Context, groupID, actor string) {
	if actor == "" || actor == g.botJID {
		return
	}

	newCount, err := g.ledger.RecordViolation(groupID, actor, models.CategoryAdminAbuse)
	if err != nil {
		logger.Error(fmt.Sprintf("Violación de abuso de admin de %s en %s no persistida: %v", actor, groupID, err), "Guardian")
	}

	if newCount < g.ledger.Threshold(models.CategoryAdminAbuse) {
		return
	}
	if g.ledger.IsBlacklisted(groupID, actor) {
		return
	}

	if err := g.ledger.AddToBlacklist(groupID, actor, "Abuso reiterado de privilegios de admin"); err != nil {
		logger.Error(fmt.Sprintf("No se pudo blacklistear a %s en %s: %v", actor, groupID, err), "Guardian")
	}
	if err := g.directory.RemoveMember(ctx, groupID, actor); err != nil {
		logger.Error(fmt.Sprintf("No se pudo expulsar a %s de %s: %v", actor, groupID, err), "Guardian")
	} else {
		logger.Warn(fmt.Sprintf("Actor %s blacklisteado y expulsado de %s tras %d abusos", actor, groupID, newCount), "Guardian")
	}
}

// demoteLikelyDemoter demotes a current admin that is neither the owner nor the
// bot as a deterrent after an owner demotion. The membership snapshot no longer
// names the real demoter, so the first unauthorized admin found is taken.
func (g *Guardian) demoteLikelyDemoter(ctx context.Context, update transport.MembershipUpdate) {
	var members []transport.Member
	err := transport.WithRetry(ctx, "getMembership", func() error {
		var fetchErr error
		members, fetchErr = g.directory.GetMembership(ctx, update.GroupID)
		return fetchErr
	})
	if err != nil {
		logger.Error(fmt.Sprintf("No se pudo obtener la membresía de %s para identificar al degradador: %v", update.GroupID, err), "Guardian")
		return
	}

	suspect := update.Actor
	if suspect == "" || suspect == g.ownerJID || suspect == g.botJID {
		suspect = ""
		for _, m := range members {
			if m.Role.IsAdmin() && m.UserID != g.ownerJID && m.UserID != g.botJID {
				suspect = m.UserID
				break
			}
		}
	}
	if suspect == "" {
		return
	}

	if err := g.directory.SetRole(ctx, update.GroupID, suspect, transport.RoleMember); err != nil {
		logger.Error(fmt.Sprintf("No se pudo degradar al sospechoso %s en %s: %v", suspect, update.GroupID, err), "Guardian")
		return
	}
	logger.Warn(fmt.Sprintf("Admin %s degradado en %s como disuasión tras la degradación del owner", suspect, update.GroupID), "Guardian")
	g.recordAbuse(ctx, update.GroupID, suspect)
}

// RestoreAdminRights attempts to re-promote the bot in a group and refreshes
// the cached invite on success. Permission failures are permanent here; the
// hourly sweep will retry later.
func (g *Guardian) RestoreAdminRights(ctx context.Context, groupID string) {
	err := transport.WithRetry(ctx, "restoreAdminRights", func() error {
		return g.directory.SetRole(ctx, groupID, g.botJID, transport.RoleAdmin)
	})
	if err != nil {
		logger.Error(fmt.Sprintf("No se pudieron restaurar los privilegios del bot en %s: %v", groupID, err), "Guardian")
		return
	}
	logger.Info(fmt.Sprintf("Privilegios de admin del bot restaurados en %s", groupID), "Guardian")
	g.SaveGroupInvite(ctx, groupID)
}

// SaveGroupInvite refreshes the cached invite reference for a group. Only
// possible while the bot holds admin standing, so failures are expected and
// logged at info level.
func (g *Guardian) SaveGroupInvite(ctx context.Context, groupID string) {
	code, err := g.directory.GetInviteCode(ctx, groupID)
	if err != nil {
		logger.Info(fmt.Sprintf("No se pudo obtener el código de invitación de %s: %v", groupID, err), "Guardian")
		return
	}
	ref := &models.InviteReference{
		GroupID:    groupID,
		InviteCode: code,
		SavedAt:    time.Now(),
	}
	if err := g.invites.Save(ref); err != nil {
		logger.Error(fmt.Sprintf("No se pudo guardar la invitación de %s: %v", groupID, err), "Guardian")
		return
	}
	logger.Info(fmt.Sprintf("Invitación de %s actualizada", groupID), "Guardian")
}

// RunIntegritySweep walks every participating group once: restores the bot's
// admin standing where lost, demotes admins that hold no legitimate grant and
// are neither bot nor owner, and refreshes the cached invite
func (g *Guardian) RunIntegritySweep(ctx context.Context) {
	groups, err := g.directory.ListGroups(ctx)
	if err != nil {
		logger.Error(fmt.Sprintf("No se pudo listar los grupos para el barrido de integridad: %v", err), "Guardian")
		return
	}

	logger.Info(fmt.Sprintf("Barrido de integridad sobre %d grupos", len(groups)), "Guardian")
	for _, groupID := range groups {
		g.sweepGroup(ctx, groupID)
	}
}

func (g *Guardian) sweepGroup(ctx context.Context, groupID string) {
	members, err := g.directory.GetMembership(ctx, groupID)
	if err != nil {
		logger.Error(fmt.Sprintf("Barrido: no se pudo obtener la membresía de %s: %v", groupID, err), "Guardian")
		return
	}

	botIsAdmin := false
	for _, m := range members {
		if m.UserID == g.botJID && m.Role.IsAdmin() {
			botIsAdmin = true
			break
		}
	}
	if !botIsAdmin {
		g.RestoreAdminRights(ctx, groupID)
		return
	}

	for _, m := range members {
		if !m.Role.IsAdmin() || m.UserID == g.botJID || m.UserID == g.ownerJID {
			continue
		}
		if g.superadmins.IsGranted(groupID, m.UserID) {
			continue
		}
		if err := g.directory.SetRole(ctx, groupID, m.UserID, transport.RoleMember); err != nil {
			logger.Error(fmt.Sprintf("Barrido: no se pudo degradar a %s en %s: %v", m.UserID, groupID, err), "Guardian")
		} else {
			logger.Warn(fmt.Sprintf("Barrido: admin no autorizado %s degradado en %s", m.UserID, groupID), "Guardian")
		}
	}

	g.SaveGroupInvite(ctx, groupID)
}

// StartIntegritySweep runs RunIntegritySweep on a fixed interval until the
// context is cancelled
func (g *Guardian) StartIntegritySweep(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				g.RunIntegritySweep(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func containsTarget(targets []string, jid string) bool {
	for _, t := range targets {
		if t == jid {
			return true
		}
	}
	return false
}
