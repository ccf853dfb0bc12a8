// Package cache keeps the rendered cat catalog in Redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	catalogKeyPrefix = "catcharity:catalog:v1:"
	generationKey    = "catcharity:catalog:generation"
)

// Generation identifies the catalog version a cached body was built from.
// Invalidate bumps it, so a body rendered before a mutation is written under
// a key no reader looks up again.
type Generation int64

// noGeneration is returned when the current generation could not be read.
// Set ignores it.
const noGeneration Generation = -1

func catalogKey(gen Generation) string {
	return catalogKeyPrefix + strconv.FormatInt(int64(gen), 10)
}

// CatalogCache stores the JSON body of GET /catslist. A nil *CatalogCache is
// valid and caches nothing.
type CatalogCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to the Redis server at url (redis:// or rediss://).
func New(ctx context.Context, url string, ttl time.Duration) (*CatalogCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return &CatalogCache{client: client, ttl: ttl}, nil
}

// Get returns the cached catalog body along with the current generation.
// On a miss, pass the generation to Set once the body has been rebuilt.
// Errors are logged and treated as a miss.
func (c *CatalogCache) Get(ctx context.Context) ([]byte, Generation, bool) {
	if c == nil {
		return nil, noGeneration, false
	}

	gen, err := c.generation(ctx)
	if err != nil {
		slog.Warn("error reading catalog generation", "component", "cache", "error", err)
		return nil, noGeneration, false
	}

	data, err := c.client.Get(ctx, catalogKey(gen)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, gen, false
	}
	if err != nil {
		slog.Warn("error reading catalog cache", "component", "cache", "error", err)
		return nil, gen, false
	}
	return data, gen, true
}

// Set stores data under gen. A body built from a generation that has since
// been invalidated lands on a key that is never read and expires with the TTL.
func (c *CatalogCache) Set(ctx context.Context, gen Generation, data []byte) {
	if c == nil || gen < 0 {
		return
	}

	if err := c.client.Set(ctx, catalogKey(gen), data, c.ttl).Err(); err != nil {
		slog.Warn("error writing catalog cache", "component", "cache", "error", err)
	}
}

func (c *CatalogCache) generation(ctx context.Context) (Generation, error) {
	n, err := c.client.Get(ctx, generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return noGeneration, err
	}
	return Generation(n), nil
}

// Invalidate drops the cached catalog after a cat mutation.
func (c *CatalogCache) Invalidate(ctx context.Context) {
	if c == nil {
		return
	}

	if err := c.client.Incr(ctx, generationKey).Err(); err != nil {
		slog.Warn("error invalidating catalog cache", "component", "cache", "error", err)
	}
}

func (c *CatalogCache) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

func (c *CatalogCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
