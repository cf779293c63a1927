package models

import "time"

// InviteReference stores the last known invite code for a group.
// Refreshed opportunistically while the bot holds admin standing; consumed by the
// recovery scheduler when the bot has been expelled outright.
type InviteReference struct {
	GroupID    string    `bson:"group_id" json:"group_id"`
	InviteCode string    `bson:"invite_code" json:"invite_code"`
	SavedAt    time.Time `bson:"saved_at" json:"saved_at"`
}
