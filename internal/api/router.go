package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/akhtararif14-hash/campusly/internal/api/middleware"
	"github.com/akhtararif14-hash/campusly/internal/auth"
	"github.com/akhtararif14-hash/campusly/internal/config"
	"github.com/akhtararif14-hash/campusly/internal/handlers"
	"github.com/akhtararif14-hash/campusly/internal/hub"
	"github.com/akhtararif14-hash/campusly/internal/store"
)

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	Config   *config.Config
	Logger   zerolog.Logger
	DB       store.DataStore
	Unread   store.UnreadTracker
	Redis    *store.RedisStore // optional
	Hub      *hub.Hub
	Verifier *auth.Verifier
}

// NewRouter creates and configures the HTTP router.
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(8 * 1024))
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(d.Logger))
	r.Use(chimw.Recoverer)

	// Rate limiting needs Redis
	if d.Redis != nil {
		limiter := middleware.NewRateLimiter(d.Redis.Client(), d.Logger, middleware.RateLimiterConfig{
			Whitelist:        d.Config.RateLimitWhitelist,
			AutoBlockEnabled: d.Config.AutoBlockEnabled,
		})
		r.Use(limiter.Middleware)
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.Config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(d.DB, d.Unread, d.Redis, d.Hub, d.Logger)
	authn := middleware.NewAuthMiddleware(d.Verifier)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes
	r.Get("/api", h.Root)
	r.Get("/health", h.Health)
	r.Post("/api/chat/users", h.Register)

	// Event channel; browsers pass the token as a query parameter
	r.With(authn.RequireAuthOrQuery).Get("/ws", h.Events)

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(authn.RequireAuth)

		r.Get("/api/chat/messages/{userId}", h.GetMessages)
		r.Get("/api/chat/users", h.ListUsers)
		r.Get("/api/chat/users/{userId}", h.GetUser)
		r.Get("/api/chat/conversations", h.ListConversations)
		r.Get("/api/chat/stats", h.Stats)
	})

	return r
}
