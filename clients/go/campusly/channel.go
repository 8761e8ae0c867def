package campusly

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ErrNotConnected is returned by Send when the channel has no connection.
var ErrNotConnected = errors.New("event channel not connected")

// Conn is the subset of *websocket.Conn the channel uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// DialFunc opens a new connection to the event server.
type DialFunc func(ctx context.Context) (Conn, error)

// WebsocketDialer dials url with gorilla/websocket.
func WebsocketDialer(url string, header http.Header) DialFunc {
	return func(ctx context.Context) (Conn, error) {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// Handler receives the payload of one event.
type Handler func(data json.RawMessage)

// Subscription is one registered handler.
type Subscription struct {
	ch      *Channel
	event   string
	handler Handler
	active  atomic.Bool
}

// Unsubscribe removes this handler. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if !s.active.CompareAndSwap(true, false) {
		return
	}
	s.ch.remove(s)
}

// Channel owns the single event connection. Handlers for all events run on
// one dispatch goroutine in the order frames arrive, so they must return
// quickly. Nothing reconnects after a connection loss until Connect is called
// again; subscribers learn of the loss through EventDisconnected.
type Channel struct {
	dial   DialFunc
	logger zerolog.Logger

	lifeMu  sync.Mutex // serializes Connect and Disconnect
	writeMu sync.Mutex

	mu       sync.Mutex
	conn     Conn
	selfID   string
	handlers map[string][]*Subscription

	presence *Presence
}

// NewChannel creates a disconnected channel.
func NewChannel(dial DialFunc, logger zerolog.Logger) *Channel {
	return &Channel{
		dial:     dial,
		logger:   logger,
		handlers: make(map[string][]*Subscription),
		presence: newPresence(),
	}
}

// Connect dials the event server and announces selfID. Calling it while
// connected does nothing.
func (c *Channel) Connect(ctx context.Context, selfID string) error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	c.mu.Lock()
	connected := c.conn != nil
	c.mu.Unlock()
	if connected {
		return nil
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.selfID = selfID
	c.presence.clear()
	c.mu.Unlock()

	go c.readLoop(conn)

	if err := c.Send(EventUserOnline, selfID); err != nil {
		c.drop(conn)
		conn.Close()
		return fmt.Errorf("announce presence: %w", err)
	}

	c.logger.Debug().Str("user_id", selfID).Msg("event channel connected")
	return nil
}

// Disconnect closes the connection and clears the presence cache. It is
// safe to call when not connected.
func (c *Channel) Disconnect() {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.presence.clear()
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
		c.logger.Debug().Msg("event channel disconnected")
	}
}

// Connected reports whether the channel currently holds a connection.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// SelfID returns the identity announced on the current connection.
func (c *Channel) SelfID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selfID
}

// Presence returns the cached online set.
func (c *Channel) Presence() *Presence {
	return c.presence
}

// Send emits an event. Delivery is not acknowledged.
func (c *Channel) Send(event string, payload interface{}) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, frame)
}

// Subscribe registers handler for event.
func (c *Channel) Subscribe(event string, handler Handler) *Subscription {
	s := &Subscription{ch: c, event: event, handler: handler}
	s.active.Store(true)

	c.mu.Lock()
	c.handlers[event] = append(c.handlers[event], s)
	c.mu.Unlock()
	return s
}

// Unsubscribe removes every handler registered for event. Code sharing the
// channel with other views should prefer Subscription.Unsubscribe.
func (c *Channel) Unsubscribe(event string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.handlers[event] {
		s.active.Store(false)
	}
	delete(c.handlers, event)
}

func (c *Channel) remove(s *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()

	subs := c.handlers[s.event]
	for i, other := range subs {
		if other == s {
			c.handlers[s.event] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(c.handlers[s.event]) == 0 {
		delete(c.handlers, s.event)
	}
}

func (c *Channel) readLoop(conn Conn) {
	defer func() {
		lost := c.drop(conn)
		conn.Close()
		if lost {
			c.dispatch(EventDisconnected, nil)
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.logger.Debug().Err(err).Msg("event channel read ended")
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Warn().Err(err).Msg("malformed event frame")
			continue
		}

		var ids []string
		if frame.Event == EventOnlineUsers {
			if err := json.Unmarshal(frame.Data, &ids); err != nil {
				c.logger.Warn().Err(err).Msg("malformed presence broadcast")
				continue
			}
		}

		// The presence cache is replaced before any handler sees the frame.
		c.mu.Lock()
		current := c.conn == conn
		if current && frame.Event == EventOnlineUsers {
			c.presence.replace(ids)
		}
		c.mu.Unlock()
		if !current {
			return
		}

		c.dispatch(frame.Event, frame.Data)
	}
}

func (c *Channel) dispatch(event string, data json.RawMessage) {
	c.mu.Lock()
	subs := append([]*Subscription(nil), c.handlers[event]...)
	c.mu.Unlock()

	for _, s := range subs {
		if s.active.Load() {
			s.handler(data)
		}
	}
}

// drop forgets conn if it is still the current connection and reports
// whether it was.
func (c *Channel) drop(conn Conn) bool {
	c.mu.Lock()
	current := c.conn == conn
	if current {
		c.conn = nil
		c.presence.clear()
	}
	c.mu.Unlock()

	if current {
		c.logger.Debug().Msg("event channel lost")
	}
	return current
}
