package hub

import (
	"encoding/json"
)

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
)

// MaxTextBytes bounds the body of a single direct message.
const MaxTextBytes = 4000

// Frame is the JSON envelope of every websocket text frame.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// SendMessagePayload is the body of a send_message request.
type SendMessagePayload struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Text       string `json:"text"`
	ClientID   string `json:"clientId,omitempty"`
}

// TypingPayload is the body of typing and stop_typing signals, both directions.
type TypingPayload struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
}

// encodeFrame marshals an event and its payload into a wire frame.
func encodeFrame(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}
