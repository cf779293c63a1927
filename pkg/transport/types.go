// Package transport defines the contracts the guard consumes from the
// messaging transport: the group directory, the outbound sender, the settings
// store and the inbound event stream. The concrete implementation lives in
// pkg/gateway; tests use in-memory fakes.
package transport

import (
	"context"
	"strings"
)

// Role is the standing of a participant inside a group
type Role string

const (
	RoleMember     Role = "member"
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
)

// IsAdmin returns true for admin or superadmin standing
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperadmin
}

// Member is a participant of a group as reported by the directory
type Member struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

// GroupFlags are the per-group switches read from the settings store
type GroupFlags struct {
	BotEnabled       bool `json:"bot_enabled"`
	ShadowingEnabled bool `json:"shadowing_enabled"`
}

// Directory is the group directory service of the transport
type Directory interface {
	GetMembership(ctx context.Context, groupID string) ([]Member, error)
	SetRole(ctx context.Context, groupID, userID string, role Role) error
	RemoveMember(ctx context.Context, groupID, userID string) error
	GetInviteCode(ctx context.Context, groupID string) (string, error)
	AcceptInvite(ctx context.Context, code string) error
	ListGroups(ctx context.Context) ([]string, error)
}

// Sender is the outbound message surface of the transport
type Sender interface {
	Send(ctx context.Context, chatID, text string, mentions []string) error
	DeleteMessage(ctx context.Context, chatID, messageID string) error
}

// Settings is the read-mostly per-group settings collaborator
type Settings interface {
	GetGroupFlags(ctx context.Context, groupID string) (GroupFlags, error)
}

// MembershipAction is the closed set of membership-change kinds
type MembershipAction string

const (
	ActionAdd     MembershipAction = "add"
	ActionRemove  MembershipAction = "remove"
	ActionPromote MembershipAction = "promote"
	ActionDemote  MembershipAction = "demote"
)

// IncomingMessage is a message event delivered by the transport
type IncomingMessage struct {
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	HasMedia  bool   `json:"has_media"`
	IsCommand bool   `json:"is_command"`
}

// IsGroup returns true when the chat is a group or broadcast context
func (m IncomingMessage) IsGroup() bool {
	return isGroupChat(m.ChatID)
}

// MembershipUpdate is a membership-change event delivered by the transport
type MembershipUpdate struct {
	GroupID string           `json:"group_id"`
	Action  MembershipAction `json:"action"`
	Actor   string           `json:"actor"`
	Targets []string         `json:"targets"`
}

// MessageDeletion is a message-revocation event delivered by the transport
type MessageDeletion struct {
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id"`
	Actor     string `json:"actor"`
}

// isGroupChat mirrors the JID convention of the transport
func isGroupChat(chatID string) bool {
	return strings.HasSuffix(chatID, "@g.us") || strings.HasSuffix(chatID, "@broadcast")
}
