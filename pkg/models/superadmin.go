package models

import "time"

// SuperadminGrant records a promotion initiated by (or targeting) the owner.
// These are the only promotions the guardian treats as legitimate.
type SuperadminGrant struct {
	GroupID   string    `bson:"group_id"`
	UserID    string    `bson:"user_id"`
	GrantedAt time.Time `bson:"granted_at"`
}
