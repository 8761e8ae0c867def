package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/akhtararif14-hash/campusly/internal/hub"
	"github.com/akhtararif14-hash/campusly/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	db     store.DataStore
	unread store.UnreadTracker
	redis  *store.RedisStore // nil when unread markers live in memory
	hub    *hub.Hub
	logger zerolog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(db store.DataStore, unread store.UnreadTracker, redis *store.RedisStore, h *hub.Hub, logger zerolog.Logger) *Handler {
	return &Handler{db: db, unread: unread, redis: redis, hub: h, logger: logger}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// sanitizeName trims and limits name to 100 bytes, removing control characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	if len(name) > 100 {
		name = name[:100]
	}

	return name
}

// intParam parses a positive integer query parameter, falling back to def and
// capping at max.
func intParam(r *http.Request, key string, def, max int) int {
	n := def
	if s := r.URL.Query().Get(key); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			n = v
		}
	}
	if n > max {
		n = max
	}
	return n
}
