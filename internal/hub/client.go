package hub

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/akhtararif14-hash/campusly/internal/metrics"
	"github.com/akhtararif14-hash/campusly/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 8192
	sendQueueSize  = 256
	persistTimeout = 5 * time.Second
)

var (
	errSenderMismatch = errors.New("sender does not match connection identity")
	errNoReceiver     = errors.New("receiver is required")
	errSelfMessage    = errors.New("cannot message yourself")
	errEmptyText      = errors.New("text is required")
	errTextTooLong    = errors.New("text is too long")
)

// Client is one websocket connection. userID is fixed at upgrade time from
// the bearer token; announced is owned by the hub goroutine.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	userID    string
	send      chan []byte
	announced bool
}

func newClient(h *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		hub:    h,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendQueueSize),
	}
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug().Err(err).Str("user_id", c.userID).Msg("connection closed")
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			metrics.EventsRejected.WithLabelValues("malformed").Inc()
			continue
		}
		metrics.EventsReceived.WithLabelValues(frame.Event).Inc()

		switch frame.Event {
		case EventUserOnline:
			c.handleUserOnline(frame.Data)
		case EventSendMessage:
			c.handleSendMessage(frame.Data)
		case EventTyping:
			c.handleTyping(frame.Data, EventUserTyping)
		case EventStopTyping:
			c.handleTyping(frame.Data, EventUserStopTyping)
		default:
			metrics.EventsRejected.WithLabelValues("unknown_event").Inc()
		}
	}
}

// writePump writes one frame per queued message and keeps the peer alive
// with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.hub.logger.Debug().Err(err).Str("user_id", c.userID).Msg("write failed")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleUserOnline(data json.RawMessage) {
	var selfID string
	if err := json.Unmarshal(data, &selfID); err != nil || selfID != c.userID {
		metrics.EventsRejected.WithLabelValues("identity").Inc()
		c.hub.logger.Warn().Str("user_id", c.userID).Str("announced", selfID).Msg("presence announcement rejected")
		return
	}

	select {
	case c.hub.announce <- c:
	case <-c.hub.done:
	}
}

func (c *Client) handleSendMessage(data json.RawMessage) {
	var req SendMessagePayload
	if err := json.Unmarshal(data, &req); err != nil {
		metrics.EventsRejected.WithLabelValues("malformed").Inc()
		return
	}

	msg, err := c.validateMessage(req)
	if err != nil {
		metrics.EventsRejected.WithLabelValues("invalid_message").Inc()
		c.hub.logger.Debug().Err(err).Str("user_id", c.userID).Msg("send_message rejected")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	start := time.Now()
	err = c.hub.messages.CreateMessage(ctx, msg)
	metrics.StoreLatency.WithLabelValues("create_message").Observe(time.Since(start).Seconds())
	if err != nil {
		c.hub.logger.Error().Err(err).Str("user_id", c.userID).Msg("failed to persist message")
		return
	}

	if err := c.hub.unread.MarkUnread(ctx, msg.ReceiverID, msg.SenderID); err != nil {
		c.hub.logger.Warn().Err(err).Str("user_id", msg.ReceiverID).Msg("failed to mark unread")
	}

	delivery := "offline"
	if c.hub.hasConnection(msg.ReceiverID) {
		delivery = "live"
	}
	metrics.MessagesSent.WithLabelValues(delivery).Inc()

	sent, err := encodeFrame(EventMessageSent, msg)
	if err != nil {
		c.hub.logger.Error().Err(err).Msg("failed to encode message")
		return
	}
	received, err := encodeFrame(EventReceiveMessage, msg)
	if err != nil {
		c.hub.logger.Error().Err(err).Msg("failed to encode message")
		return
	}

	c.hub.deliver([]outbound{
		{to: msg.SenderID, frame: sent},
		{to: msg.ReceiverID, frame: received},
	})
}

func (c *Client) validateMessage(req SendMessagePayload) (*models.Message, error) {
	if req.SenderID != c.userID {
		return nil, errSenderMismatch
	}
	if req.ReceiverID == "" {
		return nil, errNoReceiver
	}
	if req.ReceiverID == req.SenderID {
		return nil, errSelfMessage
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, errEmptyText
	}
	if len(text) > MaxTextBytes {
		return nil, errTextTooLong
	}

	return &models.Message{
		SenderID:   req.SenderID,
		ReceiverID: req.ReceiverID,
		Text:       text,
		ClientID:   req.ClientID,
	}, nil
}

// handleTyping relays a typing change to the receiver under the server-side
// event name.
func (c *Client) handleTyping(data json.RawMessage, relayed string) {
	var sig TypingPayload
	if err := json.Unmarshal(data, &sig); err != nil {
		metrics.EventsRejected.WithLabelValues("malformed").Inc()
		return
	}
	if sig.SenderID != c.userID || sig.ReceiverID == "" {
		metrics.EventsRejected.WithLabelValues("identity").Inc()
		return
	}

	frame, err := encodeFrame(relayed, sig)
	if err != nil {
		return
	}
	c.hub.deliver([]outbound{{to: sig.ReceiverID, frame: frame}})
}
