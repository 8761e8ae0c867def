package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/akhtararif14-hash/campusly/internal/auth"
)

func TestRequireAuth(t *testing.T) {
	verifier := auth.NewVerifier("secret")
	token, err := verifier.Issue("user-1", time.Hour)
	require.NoError(t, err)

	var seen string
	h := NewAuthMiddleware(verifier).RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetUserIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/chat/users", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "user-1", seen)
}

func TestRequireAuthOrQuery(t *testing.T) {
	verifier := auth.NewVerifier("secret")
	token, err := verifier.Issue("user-2", time.Hour)
	require.NoError(t, err)

	m := NewAuthMiddleware(verifier)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)

	rec := httptest.NewRecorder()
	m.RequireAuth(ok).ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	m.RequireAuthOrQuery(ok).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.Empty(t, BearerToken(req))

	req.Header.Set("Authorization", "Basic abc")
	require.Empty(t, BearerToken(req))

	req.Header.Set("Authorization", "bearer abc ")
	require.Equal(t, "abc", BearerToken(req))
}

func TestMatchPrefersLongestPrefix(t *testing.T) {
	rl := NewRateLimiter(nil, zerolog.Nop(), RateLimiterConfig{})

	limit, ok := rl.match(httptest.NewRequest(http.MethodGet, "/api/chat/users/abc", nil))
	require.True(t, ok)
	require.Equal(t, "GET /api/chat/users", limit.pattern())

	limit, ok = rl.match(httptest.NewRequest(http.MethodGet, "/api/chat/messages/abc", nil))
	require.True(t, ok)
	require.Equal(t, "GET /api/chat/messages/", limit.pattern())

	limit, ok = rl.match(httptest.NewRequest(http.MethodPost, "/api/chat/users", nil))
	require.True(t, ok)
	require.Equal(t, 10, limit.Requests)

	_, ok = rl.match(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.False(t, ok)
}

func TestCustomLimitsDropInvalidRules(t *testing.T) {
	rl := NewRateLimiter(nil, zerolog.Nop(), RateLimiterConfig{Limits: []RateLimit{
		{Method: http.MethodGet, Prefix: "/a", Requests: 1, Window: time.Minute, Key: ipKey},
		{Method: http.MethodGet, Prefix: "/a/b", Requests: 0, Window: time.Minute, Key: ipKey},
	}})

	limit, ok := rl.match(httptest.NewRequest(http.MethodGet, "/a/b", nil))
	require.True(t, ok)
	require.Equal(t, "/a", limit.Prefix)
}

func TestWhitelist(t *testing.T) {
	rl := NewRateLimiter(nil, zerolog.Nop(), RateLimiterConfig{
		Whitelist: []string{"10.1.2.3", "192.168.0.0/16", "not-an-ip"},
	})

	require.True(t, rl.exempted("10.1.2.3"))
	require.True(t, rl.exempted("192.168.44.1"))
	require.True(t, rl.exempted("::ffff:192.168.44.1"))
	require.False(t, rl.exempted("10.1.2.4"))
	require.False(t, rl.exempted("garbage"))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	req.RemoteAddr = "10.0.0.1:1234"
	require.Equal(t, "10.0.0.1", clientIP(req))

	req.RemoteAddr = "[::1]:80"
	require.Equal(t, "::1", clientIP(req))

	// chi's RealIP leaves a bare address.
	req.RemoteAddr = "203.0.113.9"
	require.Equal(t, "203.0.113.9", clientIP(req))
}

func TestTokenOrIPKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/chat/users", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	require.Equal(t, "campusly:ratelimit:ip:10.0.0.1", tokenOrIPKey(req))

	req.Header.Set("Authorization", "Bearer abc")
	key := tokenOrIPKey(req)
	require.True(t, strings.HasPrefix(key, "campusly:ratelimit:token:"))
	require.Len(t, key, len("campusly:ratelimit:token:")+16)
}

func TestValidateRequestRejectsTraversal(t *testing.T) {
	h := ValidateRequest(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat/users?q=%3Cscript%3E", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat/users?q=ali", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestNormalizePath(t *testing.T) {
	require.Equal(t, "/api/chat/messages/:id", normalizePath("/api/chat/messages/abc"))
	require.Equal(t, "/api/chat/users", normalizePath("/api/chat/users"))
	require.Equal(t, "/api/chat/users/:id", normalizePath("/api/chat/users/abc"))
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	require.Contains(t, rec.Header().Get("Content-Security-Policy"), "default-src 'none'")
}

func TestMaxBodySize(t *testing.T) {
	h := MaxBodySize(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"too long"}`)))
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestValidateRequestRequiresJSONBody(t *testing.T) {
	h := ValidateRequest(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodPost, "/api/chat/users", strings.NewReader("name=bob"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/chat/users", strings.NewReader(`{"name":"bob"}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouteLabelUsesChiPattern(t *testing.T) {
	var label string
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req)
			label = routeLabel(req)
		})
	})
	r.Get("/api/chat/messages/{userId}", func(w http.ResponseWriter, r *http.Request) {})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/chat/messages/abc", nil))
	require.Equal(t, "/api/chat/messages/{userId}", label)
}
