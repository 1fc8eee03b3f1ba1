// Package cache wraps a registry client with a redis read-through cache.
//
// Registry extracts are slow to query and change rarely, so hits are served
// from redis under a retention TTL. Misses and redis outages fall through to
// the wrapped client; a cache failure never fails a lookup.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"civreg/internal/registry"
	"civreg/pkg/platform/sentinel"
)

const keyPrefix = "registry:citizen:"

// notFoundMarker is cached for registry misses so repeated lookups of an
// unknown national ID don't hammer the extract.
const notFoundMarker = "__not_found__"

type Client struct {
	next   registry.Client
	redis  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// New wraps next with a redis cache. A nil redis client disables caching and
// returns next unchanged, so wiring stays unconditional.
func New(next registry.Client, rdb *redis.Client, ttl time.Duration, logger *slog.Logger) registry.Client {
	if rdb == nil {
		return next
	}
	return &Client{next: next, redis: rdb, ttl: ttl, logger: logger}
}

func (c *Client) Lookup(ctx context.Context, nationalID string) (registry.Record, error) {
	key := keyPrefix + nationalID

	cached, err := c.redis.Get(ctx, key).Result()
	switch {
	case err == nil:
		if cached == notFoundMarker {
			return registry.Record{}, sentinel.ErrNotFound
		}
		var record registry.Record
		if err := json.Unmarshal([]byte(cached), &record); err == nil {
			return record, nil
		}
		// Corrupt cache entry; fall through to the authoritative lookup.
		c.logger.WarnContext(ctx, "corrupt registry cache entry", "key", key)
	case !errors.Is(err, redis.Nil):
		c.logger.WarnContext(ctx, "registry cache read failed", "error", err.Error())
	}

	record, err := c.next.Lookup(ctx, nationalID)
	if errors.Is(err, sentinel.ErrNotFound) {
		c.set(ctx, key, notFoundMarker)
		return registry.Record{}, err
	}
	if err != nil {
		return registry.Record{}, err
	}

	if payload, merr := json.Marshal(record); merr == nil {
		c.set(ctx, key, string(payload))
	}
	return record, nil
}

func (c *Client) set(ctx context.Context, key, value string) {
	if err := c.redis.Set(ctx, key, value, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "registry cache write failed", "error", err.Error())
	}
}
