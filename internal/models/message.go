package models

import "time"

// Message is a persisted direct message between two users.
type Message struct {
	ID         string    `json:"_id"`             // ULID
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Text       string    `json:"text"`
	ClientID   string    `json:"clientId,omitempty"` // Correlation id chosen by the sending client
	CreatedAt  time.Time `json:"createdAt"`
}
