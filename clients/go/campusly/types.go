package campusly

import (
	"encoding/json"
	"time"
)

// User is a roster entry.
type User struct {
	ID           string    `json:"_id"`
	Name         string    `json:"name"`
	Username     string    `json:"username,omitempty"`
	ProfileImage string    `json:"profileImage,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Message is a direct message. ID and CreatedAt are empty on an optimistic
// local copy until the server echo arrives.
type Message struct {
	ID         string    `json:"_id,omitempty"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Text       string    `json:"text"`
	ClientID   string    `json:"clientId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Pending reports whether the message is a local copy the server has not
// confirmed.
func (m Message) Pending() bool {
	return m.ID == ""
}

// Conversation is one entry of the signed-in user's conversation list.
type Conversation struct {
	ConversationID string    `json:"conversationId"`
	Other          User      `json:"other"`
	LastMessage    string    `json:"lastMessage"`
	LastSenderID   string    `json:"lastSenderId,omitempty"`
	LastActiveAt   time.Time `json:"lastActiveAt"`
	Unread         bool      `json:"unread"`
}

// ConversationID returns the key of the pair (a, b), independent of order.
func ConversationID(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

// Event names carried on the event channel.
const (
	EventUserOnline     = "user_online"
	EventOnlineUsers    = "online_users"
	EventSendMessage    = "send_message"
	EventMessageSent    = "message_sent"
	EventReceiveMessage = "receive_message"
	EventTyping         = "typing"
	EventStopTyping     = "stop_typing"
	EventUserTyping     = "user_typing"
	EventUserStopTyping = "user_stop_typing"

	// EventDisconnected is raised locally by a Channel when its connection
	// is lost. It is never sent on the wire and carries no data.
	EventDisconnected = "disconnected"
)

// Frame is the JSON envelope of every event channel message.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// SendMessagePayload is the body of send_message.
type SendMessagePayload struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Text       string `json:"text"`
	ClientID   string `json:"clientId,omitempty"`
}

// TypingPayload is the body of typing signals in both directions.
type TypingPayload struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
}
