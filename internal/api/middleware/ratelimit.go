package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"net/http"
	"net/netip"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/akhtararif14-hash/campusly/internal/metrics"
)

// KeyFunc picks the bucket a request is counted in.
type KeyFunc func(r *http.Request) string

// RateLimit caps requests with Method whose path starts with Prefix.
type RateLimit struct {
	Method   string
	Prefix   string
	Requests int
	Window   time.Duration
	Key      KeyFunc
}

func (l RateLimit) pattern() string {
	return l.Method + " " + l.Prefix
}

func (l RateLimit) matches(r *http.Request) bool {
	return r.Method == l.Method && strings.HasPrefix(r.URL.Path, l.Prefix)
}

// DefaultLimits are the limits on the chat API.
func DefaultLimits() []RateLimit {
	return []RateLimit{
		{Method: http.MethodPost, Prefix: "/api/chat/users", Requests: 10, Window: time.Hour, Key: ipKey},
		{Method: http.MethodGet, Prefix: "/api/chat/users", Requests: 120, Window: time.Minute, Key: tokenOrIPKey},
		{Method: http.MethodGet, Prefix: "/api/chat/messages/", Requests: 120, Window: time.Minute, Key: tokenOrIPKey},
		{Method: http.MethodGet, Prefix: "/api/chat/conversations", Requests: 60, Window: time.Minute, Key: tokenOrIPKey},
		{Method: http.MethodGet, Prefix: "/api/chat/stats", Requests: 30, Window: time.Minute, Key: ipKey},
		{Method: http.MethodGet, Prefix: "/ws", Requests: 20, Window: time.Minute, Key: ipKey},
	}
}

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	Limits           []RateLimit // nil means DefaultLimits
	Whitelist        []string    // IPs or CIDRs exempt from limits
	AutoBlockEnabled bool
	AutoBlockAfter   int           // violations within an hour, default 10
	BlockFor         time.Duration // default 24h
}

// RateLimiter counts requests in fixed windows stored in Redis. Redis
// errors let the request through.
type RateLimiter struct {
	client     *redis.Client
	limits     []RateLimit
	blocker    *IPBlocker
	logger     zerolog.Logger
	exempt     []netip.Prefix
	autoBlock  bool
	blockAfter int64
	blockFor   time.Duration
}

// NewRateLimiter creates a rate limiter.
func NewRateLimiter(client *redis.Client, logger zerolog.Logger, cfg RateLimiterConfig) *RateLimiter {
	limits := cfg.Limits
	if limits == nil {
		limits = DefaultLimits()
	}
	limits = slices.DeleteFunc(slices.Clone(limits), func(l RateLimit) bool {
		return l.Requests <= 0 || l.Window <= 0 || l.Key == nil
	})
	// Longest prefix first so the most specific rule matches.
	slices.SortStableFunc(limits, func(a, b RateLimit) int {
		return len(b.Prefix) - len(a.Prefix)
	})

	rl := &RateLimiter{
		client:     client,
		limits:     limits,
		blocker:    NewIPBlocker(client),
		logger:     logger,
		autoBlock:  cfg.AutoBlockEnabled,
		blockAfter: int64(cfg.AutoBlockAfter),
		blockFor:   cfg.BlockFor,
	}
	if rl.blockAfter <= 0 {
		rl.blockAfter = 10
	}
	if rl.blockFor <= 0 {
		rl.blockFor = 24 * time.Hour
	}

	for _, entry := range cfg.Whitelist {
		prefix, err := parseExempt(entry)
		if err != nil {
			logger.Warn().Str("entry", entry).Err(err).Msg("invalid rate limit whitelist entry")
			continue
		}
		rl.exempt = append(rl.exempt, prefix)
	}
	if len(rl.exempt) > 0 {
		logger.Info().Int("entries", len(rl.exempt)).Msg("rate limit whitelist configured")
	}

	return rl
}

func parseExempt(entry string) (netip.Prefix, error) {
	if strings.Contains(entry, "/") {
		return netip.ParsePrefix(entry)
	}
	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

func (rl *RateLimiter) exempted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range rl.exempt {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// clientIP returns the caller's address. chi's RealIP middleware runs
// earlier and has already applied any proxy headers to RemoteAddr.
func clientIP(r *http.Request) string {
	if ap, err := netip.ParseAddrPort(r.RemoteAddr); err == nil {
		return ap.Addr().Unmap().String()
	}
	if addr, err := netip.ParseAddr(r.RemoteAddr); err == nil {
		return addr.Unmap().String()
	}
	return r.RemoteAddr
}

func ipKey(r *http.Request) string {
	return "campusly:ratelimit:ip:" + clientIP(r)
}

// tokenOrIPKey keys on a digest of the bearer token when one is present.
// The limiter runs ahead of authentication, so the token is not verified here.
func tokenOrIPKey(r *http.Request) string {
	token := BearerToken(r)
	if token == "" {
		return ipKey(r)
	}
	sum := sha256.Sum256([]byte(token))
	return "campusly:ratelimit:token:" + hex.EncodeToString(sum[:8])
}

type decision struct {
	allowed   bool
	remaining int
	resetAt   time.Time
}

// take counts one request against key in the current window of l.
func (rl *RateLimiter) take(ctx context.Context, key string, l RateLimit) (decision, error) {
	window := l.Window.Milliseconds()
	bucket := time.Now().UnixMilli() / window
	resetAt := time.UnixMilli((bucket + 1) * window)
	bucketKey := key + ":" + strconv.FormatInt(bucket, 10)

	var count *redis.IntCmd
	_, err := rl.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		count = pipe.Incr(ctx, bucketKey)
		pipe.PExpireAt(ctx, bucketKey, resetAt.Add(time.Second))
		return nil
	})
	if err != nil {
		return decision{allowed: true, remaining: l.Requests, resetAt: resetAt}, err
	}

	n := int(count.Val())
	return decision{
		allowed:   n <= l.Requests,
		remaining: max(l.Requests-n, 0),
		resetAt:   resetAt,
	}, nil
}

// match returns the most specific limit for r.
func (rl *RateLimiter) match(r *http.Request) (RateLimit, bool) {
	for _, l := range rl.limits {
		if l.matches(r) {
			return l, true
		}
	}
	return RateLimit{}, false
}

// Middleware returns the rate limiting middleware.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ip := clientIP(r)

		if rl.exempted(ip) {
			next.ServeHTTP(w, r)
			return
		}

		if rl.blocker.IsBlocked(ctx, ip) {
			metrics.BlockedRequests.WithLabelValues("ip_blocked").Inc()
			rl.logger.Warn().
				Str("event", "blocked_request").
				Str("ip", ip).
				Str("path", r.URL.Path).
				Msg("request from blocked address")
			jsonError(w, http.StatusForbidden, "temporarily blocked")
			return
		}

		limit, ok := rl.match(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		d, err := rl.take(ctx, limit.Key(r), limit)
		if err != nil {
			rl.logger.Error().Err(err).Msg("rate limit check failed")
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(d.remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(d.resetAt.Unix(), 10))

		if !d.allowed {
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(time.Until(d.resetAt).Seconds()))))
			metrics.RateLimitHits.WithLabelValues(limit.pattern()).Inc()
			rl.logger.Warn().
				Str("event", "rate_limit_exceeded").
				Str("ip", ip).
				Str("limit", limit.pattern()).
				Msg("rate limit exceeded")

			rl.strike(ctx, ip)
			jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// strike records a violation and blocks the address once it has too many.
func (rl *RateLimiter) strike(ctx context.Context, ip string) {
	if !rl.autoBlock {
		return
	}

	n, err := rl.blocker.Strike(ctx, ip)
	if err != nil {
		rl.logger.Error().Err(err).Msg("failed to record violation")
		return
	}
	if n < rl.blockAfter {
		return
	}

	if err := rl.blocker.Block(ctx, ip, rl.blockFor, "repeated rate limit violations"); err != nil {
		rl.logger.Error().Err(err).Msg("failed to block address")
		return
	}
	rl.logger.Warn().
		Str("event", "ip_auto_blocked").
		Str("ip", ip).
		Int64("violations", n).
		Msg("address blocked for repeated violations")
}
