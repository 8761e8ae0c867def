// Package hub is the realtime side of direct messaging: it tracks which users
// hold an announced connection and relays messages and typing signals between
// them.
package hub

import (
	"context"
	"net/http"
	"sort"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/akhtararif14-hash/campusly/internal/metrics"
	"github.com/akhtararif14-hash/campusly/internal/store"
)

// Config holds the collaborators of a Hub.
type Config struct {
	Messages       store.MessageStore
	Unread         store.UnreadTracker
	Logger         zerolog.Logger
	AllowedOrigins []string
}

// outbound is a frame addressed to every connection of one user.
type outbound struct {
	to    string
	frame []byte
}

// Hub owns all connections. Every mutation of its maps happens on the Run
// goroutine; mu only guards reads from other goroutines.
type Hub struct {
	messages store.MessageStore
	unread   store.UnreadTracker
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	register   chan *Client
	unregister chan *Client
	announce   chan *Client
	relay      chan []outbound
	done       chan struct{}

	mu      sync.RWMutex
	clients map[*Client]struct{}
	byUser  map[string]map[*Client]struct{}
	online  map[string]int
}

// New creates a Hub. Call Run before serving connections.
func New(cfg Config) *Hub {
	h := &Hub{
		messages:   cfg.Messages,
		unread:     cfg.Unread,
		logger:     cfg.Logger,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		announce:   make(chan *Client),
		relay:      make(chan []outbound, 64),
		done:       make(chan struct{}),
		clients:    make(map[*Client]struct{}),
		byUser:     make(map[string]map[*Client]struct{}),
		online:     make(map[string]int),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return h
}

// Run processes registrations and relays until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			conns, ok := h.byUser[c.userID]
			if !ok {
				conns = make(map[*Client]struct{})
				h.byUser[c.userID] = conns
			}
			conns[c] = struct{}{}
			h.mu.Unlock()

			metrics.WSConnections.Inc()
			h.logger.Debug().Str("user_id", c.userID).Msg("connection registered")

		case c := <-h.unregister:
			h.mu.Lock()
			changed := h.remove(c)
			h.mu.Unlock()
			if changed {
				h.broadcastPresence()
			}

		case c := <-h.announce:
			if _, ok := h.clients[c]; !ok {
				continue
			}
			if c.announced {
				h.sendPresence(c)
				continue
			}

			h.mu.Lock()
			c.announced = true
			h.online[c.userID]++
			changed := h.online[c.userID] == 1
			h.mu.Unlock()

			h.logger.Info().Str("user_id", c.userID).Msg("user online")
			if changed {
				h.broadcastPresence()
			} else {
				h.sendPresence(c)
			}

		case batch := <-h.relay:
			changed := false
			for _, out := range batch {
				for c := range h.byUser[out.to] {
					if !h.trySend(c, out.frame) {
						changed = h.removeLocked(c) || changed
					}
				}
			}
			if changed {
				h.broadcastPresence()
			}

		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				h.remove(c)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Serve upgrades the request to a websocket owned by userID. The caller is
// responsible for authenticating userID.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		h.logger.Warn().Err(err).Str("user_id", userID).Msg("websocket upgrade failed")
		return
	}

	c := newClient(h, conn, userID)
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// Online returns the sorted set of users with an announced connection.
func (h *Hub) Online() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.onlineList()
}

// IsOnline reports whether userID holds an announced connection.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.online[userID] > 0
}

// hasConnection reports whether userID holds any connection at all.
func (h *Hub) hasConnection(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser[userID]) > 0
}

func (h *Hub) onlineList() []string {
	users := make([]string, 0, len(h.online))
	for id := range h.online {
		users = append(users, id)
	}
	sort.Strings(users)
	return users
}

// remove drops c and closes its send queue. It reports whether the presence
// set changed. Callers hold mu.
func (h *Hub) remove(c *Client) bool {
	if _, ok := h.clients[c]; !ok {
		return false
	}
	delete(h.clients, c)
	close(c.send)
	metrics.WSConnections.Dec()

	if conns, ok := h.byUser[c.userID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.byUser, c.userID)
		}
	}

	if !c.announced {
		return false
	}
	h.online[c.userID]--
	if h.online[c.userID] > 0 {
		return false
	}
	delete(h.online, c.userID)
	h.logger.Info().Str("user_id", c.userID).Msg("user offline")
	return true
}

func (h *Hub) removeLocked(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.remove(c)
}

// broadcastPresence sends the full online set to every connection, repeating
// while slow connections are dropped along the way.
func (h *Hub) broadcastPresence() {
	for {
		users := h.onlineList()
		metrics.OnlineUsers.Set(float64(len(users)))

		frame, err := encodeFrame(EventOnlineUsers, users)
		if err != nil {
			h.logger.Error().Err(err).Msg("failed to encode presence")
			return
		}

		changed := false
		for c := range h.clients {
			if !h.trySend(c, frame) {
				changed = h.removeLocked(c) || changed
			}
		}
		if !changed {
			return
		}
	}
}

func (h *Hub) sendPresence(c *Client) {
	frame, err := encodeFrame(EventOnlineUsers, h.onlineList())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to encode presence")
		return
	}
	if !h.trySend(c, frame) && h.removeLocked(c) {
		h.broadcastPresence()
	}
}

// trySend queues frame without blocking. A full queue means the peer is not
// keeping up and the connection should be dropped.
func (h *Hub) trySend(c *Client, frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		h.logger.Warn().Str("user_id", c.userID).Msg("send queue full, dropping connection")
		return false
	}
}

// deliver hands a batch to the Run goroutine.
func (h *Hub) deliver(batch []outbound) {
	select {
	case h.relay <- batch:
	case <-h.done:
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	for _, o := range allowed {
		if o == "*" {
			return func(r *http.Request) bool { return true }
		}
	}
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}

	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
