package models

import "time"

// ConversationSummary is one row of a user's conversation list, derived by
// grouping their messages by the other participant.
type ConversationSummary struct {
	ConversationID string    `json:"conversationId"`
	Other          User      `json:"other"`
	LastMessage    string    `json:"lastMessage"`
	LastSenderID   string    `json:"lastSenderId,omitempty"`
	LastActiveAt   time.Time `json:"lastActiveAt"`
	Unread         bool      `json:"unread"`
}

// ConversationID returns the stable key for the pair (a, b), independent of order.
func ConversationID(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}
