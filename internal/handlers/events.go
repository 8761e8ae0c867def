package handlers

import (
	"net/http"

	"github.com/akhtararif14-hash/campusly/internal/api/middleware"
)

// Events upgrades an authenticated request to the event channel.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	self := middleware.GetUserIDFromContext(r.Context())
	if self == "" {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	h.hub.Serve(w, r, self)
}
