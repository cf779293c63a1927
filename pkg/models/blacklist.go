package models

import "time"

// BlacklistEntry represents a user banned from a specific group.
// Any future add-event for this (group, user) pair triggers an immediate removal.
type BlacklistEntry struct {
	GroupID   string    `bson:"group_id"`   // ID del grupo
	UserID    string    `bson:"user_id"`    // JID del usuario bloqueado
	Reason    string    `bson:"reason"`     // Razón del bloqueo
	CreatedAt time.Time `bson:"created_at"` // Cuándo se creó
}

// Key returns the composite cache key for this entry
func (b *BlacklistEntry) Key() string {
	return BlacklistKey(b.GroupID, b.UserID)
}

// BlacklistKey builds the composite (group, user) key used by the cache
func BlacklistKey(groupID, userID string) string {
	return groupID + "|" + userID
}
