// Package redis keeps crawl-scoped visited sets in Redis so several processes can share one crawl frontier.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "searchengine:visited:"
	defaultTTL = 2 * time.Hour
)

// setClient is the subset of redis.Cmdable used by VisitedSet.
type setClient interface {
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Config describes the Redis connection.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Connect dials Redis and verifies the connection with PING.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis.addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// VisitedSet is one crawl's visited URLs stored as a Redis set.
type VisitedSet struct {
	client setClient
	key    string
	ttl    time.Duration
}

// NewVisitedSet returns the visited set for scope (typically run id plus site URL).
func NewVisitedSet(client setClient, scope string, ttl time.Duration) *VisitedSet {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &VisitedSet{client: client, key: keyPrefix + scope, ttl: ttl}
}

// MarkIfNew adds url to the set and reports whether this call inserted it.
// SADD is atomic, so concurrent callers never both win.
func (v *VisitedSet) MarkIfNew(ctx context.Context, url string) (bool, error) {
	if url == "" {
		return false, nil
	}
	added, err := v.client.SAdd(ctx, v.key, url).Result()
	if err != nil {
		return false, fmt.Errorf("sadd visited: %w", err)
	}
	if added == 1 {
		// refresh on every insert so abandoned crawls age out
		if err := v.client.Expire(ctx, v.key, v.ttl).Err(); err != nil {
			return true, fmt.Errorf("expire visited: %w", err)
		}
	}
	return added == 1, nil
}

// Clear drops the whole set.
func (v *VisitedSet) Clear(ctx context.Context) error {
	if err := v.client.Del(ctx, v.key).Err(); err != nil {
		return fmt.Errorf("del visited: %w", err)
	}
	return nil
}
