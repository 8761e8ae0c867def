package handlers

import (
	"context"
	"net/http"
	"time"
)

const version = "0.1.0"

// Check is the result of one dependency probe.
type Check struct {
	Status  string `json:"status"` // pass, fail or skip
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string           `json:"status"` // healthy or degraded
	Version   string           `json:"version"`
	Online    int              `json:"online"`
	Checks    map[string]Check `json:"checks"`
	Timestamp string           `json:"timestamp"`
}

func probe(ctx context.Context, ping func(context.Context) error) Check {
	start := time.Now()
	if err := ping(ctx); err != nil {
		return Check{Status: "fail", Message: "connection failed"}
	}
	return Check{Status: "pass", Latency: time.Since(start).String()}
}

// Health reports database and Redis reachability. Redis is optional, so an
// unconfigured Redis is skipped rather than failed.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]Check{
		"database": probe(ctx, h.db.Ping),
		"redis":    {Status: "skip", Message: "not configured"},
	}
	if h.redis != nil {
		checks["redis"] = probe(ctx, h.redis.Ping)
	}

	resp := HealthResponse{
		Status:    "healthy",
		Version:   version,
		Online:    len(h.hub.Online()),
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK
	for name, c := range checks {
		if c.Status == "fail" {
			h.logger.Warn().Str("check", name).Msg("health check failed")
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
	}

	h.JSON(w, status, resp)
}

// RootResponse describes the API.
type RootResponse struct {
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Endpoints []string `json:"endpoints"`
}

// Root lists the available endpoints.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, RootResponse{
		Name:    "Campusly Chat",
		Version: version,
		Endpoints: []string{
			"GET /health",
			"GET /metrics",
			"POST /api/chat/users",
			"GET /api/chat/users",
			"GET /api/chat/users/{userId}",
			"GET /api/chat/messages/{userId}",
			"GET /api/chat/conversations",
			"GET /api/chat/stats",
			"GET /ws",
		},
	})
}
