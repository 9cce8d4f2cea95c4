package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "userdeck:pages"
	genKey    = keyPrefix + ":gen"
)

// Redis is a shared PageCache backed by go-redis. Invalidation bumps a
// generation counter instead of scanning keys; stale generations expire via
// TTL.
type Redis struct {
	client redis.Cmdable
	ttl    time.Duration
	log    *slog.Logger
}

// NewRedis creates a Redis-backed page cache.
func NewRedis(client redis.Cmdable, ttl time.Duration, log *slog.Logger) *Redis {
	if log == nil {
		log = slog.Default()
	}
	return &Redis{client: client, ttl: ttl, log: log}
}

func (r *Redis) entryKey(ctx context.Context, key PageKey) (string, error) {
	gen, err := r.client.Get(ctx, genKey).Int64()
	if err != nil && err != redis.Nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d:%s", keyPrefix, gen, key), nil
}

// Get returns the cached page for the current generation.
func (r *Redis) Get(ctx context.Context, key PageKey) (Entry, bool) {
	k, err := r.entryKey(ctx, key)
	if err != nil {
		r.log.Warn("page cache read failed", "error", err)
		return Entry{}, false
	}
	raw, err := r.client.Get(ctx, k).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.log.Warn("page cache read failed", "error", err)
		}
		return Entry{}, false
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		r.log.Warn("page cache entry corrupt", "key", k, "error", err)
		return Entry{}, false
	}
	return e, true
}

// Set stores a page under the current generation.
func (r *Redis) Set(ctx context.Context, key PageKey, entry Entry) {
	k, err := r.entryKey(ctx, key)
	if err != nil {
		r.log.Warn("page cache write failed", "error", err)
		return
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		r.log.Warn("page cache encode failed", "error", err)
		return
	}
	if err := r.client.Set(ctx, k, raw, r.ttl).Err(); err != nil {
		r.log.Warn("page cache write failed", "error", err)
	}
}

// Invalidate moves to a fresh generation, orphaning every cached page.
func (r *Redis) Invalidate(ctx context.Context) {
	if err := r.client.Incr(ctx, genKey).Err(); err != nil {
		r.log.Warn("page cache invalidate failed", "error", err)
	}
}
