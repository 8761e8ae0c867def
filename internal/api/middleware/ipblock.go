package middleware

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// IPBlocker keeps temporary address blocks and violation counts in Redis.
type IPBlocker struct {
	client *redis.Client
}

// NewIPBlocker creates an IP blocker.
func NewIPBlocker(client *redis.Client) *IPBlocker {
	return &IPBlocker{client: client}
}

func blockKey(ip string) string  { return "campusly:blocked:" + ip }
func strikeKey(ip string) string { return "campusly:strikes:" + ip }

// IsBlocked reports whether ip is blocked. Lookup errors count as not blocked.
func (b *IPBlocker) IsBlocked(ctx context.Context, ip string) bool {
	n, err := b.client.Exists(ctx, blockKey(ip)).Result()
	return err == nil && n > 0
}

// Block blocks ip for d.
func (b *IPBlocker) Block(ctx context.Context, ip string, d time.Duration, reason string) error {
	return b.client.Set(ctx, blockKey(ip), reason, d).Err()
}

// Strike counts a violation by ip and returns the count for the past hour.
func (b *IPBlocker) Strike(ctx context.Context, ip string) (int64, error) {
	var count *redis.IntCmd
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		count = pipe.Incr(ctx, strikeKey(ip))
		pipe.ExpireNX(ctx, strikeKey(ip), time.Hour)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count.Val(), nil
}
