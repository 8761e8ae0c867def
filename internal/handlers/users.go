package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/akhtararif14-hash/campusly/internal/api/middleware"
	"github.com/akhtararif14-hash/campusly/internal/metrics"
)

const maxRosterSize = 500

// ListUsers returns the roster without the caller, optionally filtered by a
// case-insensitive name substring in q.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	self := middleware.GetUserIDFromContext(r.Context())
	query := sanitizeName(r.URL.Query().Get("q"))
	limit := intParam(r, "limit", maxRosterSize, maxRosterSize)

	users, err := h.db.ListUsers(r.Context(), self, query, limit)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	h.JSON(w, http.StatusOK, users)
}

// GetUser returns one roster entry.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "userId")
	if id == "" {
		h.Error(w, http.StatusBadRequest, "user id is required")
		return
	}

	user, err := h.db.GetUserByID(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if user == nil {
		h.Error(w, http.StatusNotFound, "user not found")
		return
	}

	h.JSON(w, http.StatusOK, user)
}

// RegisterRequest represents the roster registration body.
type RegisterRequest struct {
	Name         string `json:"name"`
	Username     string `json:"username"`
	ProfileImage string `json:"profileImage"`
}

// Register adds a roster entry. Credentials are issued elsewhere; this only
// creates the record chat views render.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	name := sanitizeName(req.Name)
	if name == "" {
		h.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	image := strings.TrimSpace(req.ProfileImage)
	if image != "" && !strings.HasPrefix(image, "https://") && !strings.HasPrefix(image, "http://") {
		h.Error(w, http.StatusBadRequest, "profileImage must be an http(s) URL")
		return
	}

	user, err := h.db.CreateUser(r.Context(), name, sanitizeName(req.Username), image)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create user")
		return
	}
	metrics.UsersRegistered.Inc()

	h.JSON(w, http.StatusCreated, user)
}
