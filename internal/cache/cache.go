// Package cache stores rendered public responses in Redis and drops them
// when the event they describe changes. Every event has a generation counter
// under <prefix>:gen:<event id>; response keys embed the generation read
// before the handler ran, so bumping it orphans every response rendered from
// older state, including fills that finish after the bump.
package cache

import (
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var errMiss = errors.New("cache miss")

// kv is the slice of Redis the cache uses.
type kv interface {
	get(ctx context.Context, key string) ([]byte, error)
	setEx(ctx context.Context, key string, val []byte, ttl time.Duration) error
	incr(ctx context.Context, key string, ttl time.Duration) error
}

type redisKV struct{ rdb *redis.Client }

func (r redisKV) get(ctx context.Context, key string) ([]byte, error) {
	bs, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errMiss
	}
	return bs, err
}

func (r redisKV) setEx(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return r.rdb.SetEx(ctx, key, val, ttl).Err()
}

func (r redisKV) incr(ctx context.Context, key string, ttl time.Duration) error {
	pipe := r.rdb.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// ResponseCache reads and writes cached payloads.
type ResponseCache struct {
	store  kv
	prefix string
	ttl    time.Duration
}

// New returns a cache over rdb. A nil client yields a nil cache; all methods
// are no-ops on a nil receiver.
func New(rdb *redis.Client, prefix string, ttl time.Duration) *ResponseCache {
	if rdb == nil {
		return nil
	}
	return newCache(redisKV{rdb: rdb}, prefix, ttl)
}

func newCache(store kv, prefix string, ttl time.Duration) *ResponseCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &ResponseCache{store: store, prefix: prefix, ttl: ttl}
}

// genTTL outlives every response so an expired counter never resurrects
// entries of an older generation.
func (c *ResponseCache) genTTL() time.Duration {
	return max(24*time.Hour, 10*c.ttl)
}

func (c *ResponseCache) genKey(eventID string) string {
	return c.prefix + ":gen:" + eventID
}

// Generation returns the current generation of eventID. Routes that are not
// tied to an event use generation 0.
func (c *ResponseCache) Generation(ctx context.Context, eventID string) (int64, error) {
	if c == nil || eventID == "" {
		return 0, nil
	}
	bs, err := c.store.get(ctx, c.genKey(eventID))
	if errors.Is(err, errMiss) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read cache generation: %w", err)
	}
	gen, err := strconv.ParseInt(string(bs), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse cache generation: %w", err)
	}
	return gen, nil
}

// Key builds the cache key for a request of eventID at generation gen.
func (c *ResponseCache) Key(eventID string, gen int64, path, rawQuery string) string {
	sum := sha1.Sum([]byte(rawQuery))
	return fmt.Sprintf("%s:%s:%d:%s:%x", c.prefix, eventID, gen, path, sum[:])
}

// Get returns the cached payload for key. ok is false on a miss or error.
func (c *ResponseCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	bs, err := c.store.get(ctx, key)
	if err != nil {
		return nil, false
	}
	return bs, true
}

// Set stores payload under key with the configured TTL.
func (c *ResponseCache) Set(ctx context.Context, key string, payload []byte) error {
	if c == nil {
		return nil
	}
	return c.store.setEx(ctx, key, payload, c.ttl)
}

// InvalidateEvent bumps the event's generation. Stored responses of older
// generations are never read again and expire with their TTL. If the bump
// itself fails, stale responses can be served for at most one TTL.
func (c *ResponseCache) InvalidateEvent(ctx context.Context, eventID string) error {
	if c == nil || eventID == "" {
		return nil
	}
	if err := c.store.incr(ctx, c.genKey(eventID), c.genTTL()); err != nil {
		return fmt.Errorf("bump cache generation: %w", err)
	}
	return nil
}
