// redis.go -- go-redis client for session caching.
//
// Stores validated sessions with TTL matching their remaining lifetime, so
// repeat validations skip the blob store read. The blob record stays the
// source of truth: a cache miss or Redis failure falls through to it.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/redis/go-redis/v9"
)

// RedisSessionCache wraps a Redis client for session cache operations.
type RedisSessionCache struct {
	rdb *redis.Client
}

// NewRedisClient parses redisURL, connects, and pings to verify connectivity.
// Call once at startup from main.go...returned client is safe for concurrent use.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}

// NewRedisSessionCache wraps an existing client.
func NewRedisSessionCache(rdb *redis.Client) *RedisSessionCache {
	return &RedisSessionCache{rdb}
}

// CheckHealth pings Redis.
func (s *RedisSessionCache) CheckHealth(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// SetSession caches a session under its id with the given TTL.
// Also tracks the id in a per-user Set for bulk deletion.
func (s *RedisSessionCache) SetSession(ctx context.Context, sessionID string, session CachedSession, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	cacheOut, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}

	// Pipeline so the session and its set membership land together
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, fmt.Sprintf("session:%s", sessionID), cacheOut, ttl)
	setKey := fmt.Sprintf("user_sessions:%s", session.UserID)
	pipe.SAdd(ctx, setKey, sessionID)
	// The set lives as long as its longest-lived member: NX covers a fresh set,
	// GT only ever extends, so repopulating an older session cannot shorten it.
	pipe.ExpireNX(ctx, setKey, ttl)
	pipe.ExpireGT(ctx, setKey, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("caching session: %w", err)
	}
	return nil
}

// GetSession retrieves a cached session by id.
// Returns ErrCacheMiss when the key is absent.
func (s *RedisSessionCache) GetSession(ctx context.Context, sessionID string) (*CachedSession, error) {
	raw, err := s.rdb.Get(ctx, fmt.Sprintf("session:%s", sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("fetching session: %w", err)
	}

	var cached CachedSession
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil, fmt.Errorf("parsing session: %w", err)
	}
	return &cached, nil
}

// DeleteSession removes a single session from cache.
// Also removes the id from the user's tracking Set.
func (s *RedisSessionCache) DeleteSession(ctx context.Context, sessionID string, userID uuid.UUID) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, fmt.Sprintf("session:%s", sessionID))
	pipe.SRem(ctx, fmt.Sprintf("user_sessions:%s", userID), sessionID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// DeleteAllUserSessions removes all cached sessions for the given user.
func (s *RedisSessionCache) DeleteAllUserSessions(ctx context.Context, userID uuid.UUID) error {
	setKey := fmt.Sprintf("user_sessions:%s", userID)

	ids, err := s.rdb.SMembers(ctx, setKey).Result()
	if err != nil {
		return fmt.Errorf("fetching user sessions: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, fmt.Sprintf("session:%s", id))
	}
	pipe.Del(ctx, setKey)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("deleting user sessions: %w", err)
	}
	return nil
}

// NoopSessionCache is used when REDIS_URL is unset. Every lookup misses.
type NoopSessionCache struct{}

func (NoopSessionCache) CheckHealth(context.Context) error { return ErrCacheDisabled }

func (NoopSessionCache) SetSession(context.Context, string, CachedSession, time.Duration) error {
	return nil
}

func (NoopSessionCache) GetSession(context.Context, string) (*CachedSession, error) {
	return nil, ErrCacheMiss
}

func (NoopSessionCache) DeleteSession(context.Context, string, uuid.UUID) error { return nil }

func (NoopSessionCache) DeleteAllUserSessions(context.Context, uuid.UUID) error { return nil }
