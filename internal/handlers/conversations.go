package handlers

import (
	"net/http"

	"github.com/akhtararif14-hash/campusly/internal/api/middleware"
)

// ListConversations returns one summary per counterpart of the caller, most
// recent first, with unread flags from the unread tracker.
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	self := middleware.GetUserIDFromContext(r.Context())
	if self == "" {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	convs, err := h.db.ListConversations(r.Context(), self)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}

	unread, err := h.unread.UnreadFrom(r.Context(), self)
	if err != nil {
		// Non-fatal, conversations render as read
		h.logger.Warn().Err(err).Str("user_id", self).Msg("failed to load unread markers")
	}
	for i := range convs {
		convs[i].Unread = unread[convs[i].Other.ID]
	}

	h.JSON(w, http.StatusOK, convs)
}
