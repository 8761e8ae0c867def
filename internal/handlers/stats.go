package handlers

import (
	"net/http"

	"golang.org/x/sync/errgroup"
)

// StatsResponse holds messaging totals.
type StatsResponse struct {
	TotalUsers    int64 `json:"total_users"`
	TotalMessages int64 `json:"total_messages"`
	OnlineUsers   int   `json:"online_users"`
}

// Stats returns messaging totals.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	var resp StatsResponse

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		resp.TotalUsers, err = h.db.CountUsers(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		resp.TotalMessages, err = h.db.CountMessages(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		h.logger.Error().Err(err).Msg("failed to count totals")
		h.Error(w, http.StatusInternalServerError, "failed to load stats")
		return
	}

	resp.OnlineUsers = len(h.hub.Online())
	h.JSON(w, http.StatusOK, resp)
}
