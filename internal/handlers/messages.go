package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/akhtararif14-hash/campusly/internal/api/middleware"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 500
)

// GetMessages returns the history between the caller and a counterpart in
// chronological order. Reading the history clears the unread marker.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	self := middleware.GetUserIDFromContext(r.Context())
	if self == "" {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	counterpart := chi.URLParam(r, "userId")
	if counterpart == "" || counterpart == self {
		h.Error(w, http.StatusBadRequest, "invalid counterpart")
		return
	}

	limit := intParam(r, "limit", defaultHistoryLimit, maxHistoryLimit)

	var before int64
	if s := r.URL.Query().Get("before"); s != "" {
		b, err := strconv.ParseInt(s, 10, 64)
		if err != nil || b < 0 {
			h.Error(w, http.StatusBadRequest, "before must be a unix millisecond timestamp")
			return
		}
		before = b
	}

	messages, err := h.db.GetMessagesBetween(r.Context(), self, counterpart, limit, before)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to fetch messages")
		return
	}

	// Only the newest page counts as reading the conversation.
	if before == 0 {
		if err := h.unread.ClearUnread(r.Context(), self, counterpart); err != nil {
			h.logger.Warn().Err(err).Str("user_id", self).Msg("failed to clear unread marker")
		}
	}

	h.JSON(w, http.StatusOK, messages)
}
