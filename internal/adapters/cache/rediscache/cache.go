// Package rediscache caches funnel lists in redis.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hylla/pipedesk/internal/app"
	"github.com/hylla/pipedesk/internal/domain"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL is used when no positive ttl is configured.
const DefaultTTL = 5 * time.Minute

// keyPrefix namespaces every pipedesk key.
const keyPrefix = "pipedesk:funnels:"

// entryVersion changes whenever the cached shape changes; other versions read as misses.
const entryVersion = 1

// entry is the stored JSON value.
type entry struct {
	Version int             `json:"version"`
	Funnels []domain.Funnel `json:"funnels"`
}

// Cache implements app.FunnelCache over a redis client.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ app.FunnelCache = (*Cache)(nil)

// Open parses a redis:// url and returns a cache using it.
func Open(rawURL string, ttl time.Duration) (*Cache, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, fmt.Errorf("redis url is required")
	}
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return New(redis.NewClient(opts), ttl), nil
}

// New wraps an existing client.
func New(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{client: client, ttl: ttl}
}

// Ping checks connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the client.
func (c *Cache) Close() error {
	return c.client.Close()
}

// TTL returns the effective expiry.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// GetFunnels returns the cached list for scope. A missing or stale entry is a miss.
func (c *Cache) GetFunnels(ctx context.Context, scope domain.FunnelScope) ([]domain.Funnel, bool, error) {
	raw, err := c.client.Get(ctx, key(scope)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s funnels: %w", scope, err)
	}
	funnels, ok, err := decode(raw)
	if err != nil {
		return nil, false, fmt.Errorf("decode cached %s funnels: %w", scope, err)
	}
	return funnels, ok, nil
}

// PutFunnels stores the list for scope.
func (c *Cache) PutFunnels(ctx context.Context, scope domain.FunnelScope, funnels []domain.Funnel) error {
	raw, err := encode(funnels)
	if err != nil {
		return fmt.Errorf("encode %s funnels: %w", scope, err)
	}
	if err := c.client.Set(ctx, key(scope), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s funnels: %w", scope, err)
	}
	return nil
}

// InvalidateFunnels drops the cached list for scope.
func (c *Cache) InvalidateFunnels(ctx context.Context, scope domain.FunnelScope) error {
	if err := c.client.Del(ctx, key(scope)).Err(); err != nil {
		return fmt.Errorf("redis del %s funnels: %w", scope, err)
	}
	return nil
}

func key(scope domain.FunnelScope) string {
	return keyPrefix + string(scope)
}

func encode(funnels []domain.Funnel) ([]byte, error) {
	if funnels == nil {
		funnels = []domain.Funnel{}
	}
	return json.Marshal(entry{Version: entryVersion, Funnels: funnels})
}

func decode(raw []byte) ([]domain.Funnel, bool, error) {
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false, err
	}
	if e.Version != entryVersion {
		return nil, false, nil
	}
	return e.Funnels, true, nil
}
