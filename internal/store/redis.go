package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const unreadTTL = 30 * 24 * time.Hour

// RedisStore handles Redis operations for unread markers and rate limiting.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Client exposes the underlying client for the rate limiter.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// unreadKey returns the key for the set of counterparts with unread messages.
func unreadKey(userID string) string {
	return fmt.Sprintf("unread:%s", userID)
}

// MarkUnread flags the conversation between userID and fromID as unread for userID.
func (s *RedisStore) MarkUnread(ctx context.Context, userID, fromID string) error {
	key := unreadKey(userID)

	pipe := s.client.Pipeline()
	pipe.SAdd(ctx, key, fromID)
	pipe.Expire(ctx, key, unreadTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// ClearUnread clears the unread flag for the conversation with fromID.
func (s *RedisStore) ClearUnread(ctx context.Context, userID, fromID string) error {
	return s.client.SRem(ctx, unreadKey(userID), fromID).Err()
}

// UnreadFrom returns the set of counterparts with unread messages for userID.
func (s *RedisStore) UnreadFrom(ctx context.Context, userID string) (map[string]bool, error) {
	members, err := s.client.SMembers(ctx, unreadKey(userID)).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}

	unread := make(map[string]bool, len(members))
	for _, id := range members {
		unread[id] = true
	}
	return unread, nil
}
