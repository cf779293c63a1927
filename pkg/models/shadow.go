package models

import "time"

// ShadowMessage representa una copia temporal de un mensaje para el sistema anti-delete
type ShadowMessage struct {
	ChatID    string    `bson:"chat_id" json:"chat_id"`
	MessageID string    `bson:"message_id" json:"message_id"`
	Sender    string    `bson:"sender" json:"sender"`
	Content   string    `bson:"content" json:"content"`
	StoredAt  time.Time `bson:"stored_at" json:"stored_at"`
	Restored  bool      `bson:"restored" json:"restored"` // ya se emitió la restauración
}
