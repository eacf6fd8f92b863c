package cache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memKV struct {
	mu      sync.Mutex
	data    map[string][]byte
	ttls    map[string]time.Duration
	failInc bool
}

func newMemKV() *memKV {
	return &memKV{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memKV) get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bs, ok := m.data[key]
	if !ok {
		return nil, errMiss
	}
	return bs, nil
}

func (m *memKV) setEx(_ context.Context, key string, val []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = val
	m.ttls[key] = ttl
	return nil
}

func (m *memKV) incr(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failInc {
		return errors.New("connection refused")
	}
	n, _ := strconv.ParseInt(string(m.data[key]), 10, 64)
	m.data[key] = []byte(strconv.FormatInt(n+1, 10))
	m.ttls[key] = ttl
	return nil
}

func TestFillRacingInvalidationIsNotServed(t *testing.T) {
	ctx := context.Background()
	c := newCache(newMemKV(), "rc", time.Minute)
	path := "/v1/events/ev-1/stats"

	// A read starts and captures the generation before rendering.
	gen, err := c.Generation(ctx, "ev-1")
	require.NoError(t, err)
	staleKey := c.Key("ev-1", gen, path, "")

	// A write commits and invalidates while the read is still rendering.
	require.NoError(t, c.InvalidateEvent(ctx, "ev-1"))

	// The slow read finishes and stores what it rendered.
	require.NoError(t, c.Set(ctx, staleKey, []byte("old stats")))

	next, err := c.Generation(ctx, "ev-1")
	require.NoError(t, err)
	assert.Equal(t, gen+1, next)
	_, ok := c.Get(ctx, c.Key("ev-1", next, path, ""))
	assert.False(t, ok)
}

func TestInvalidateOnlyTouchesOneEvent(t *testing.T) {
	ctx := context.Background()
	c := newCache(newMemKV(), "rc", time.Minute)

	keyA := c.Key("a", 0, "/v1/events/a", "")
	keyB := c.Key("b", 0, "/v1/events/b", "")
	require.NoError(t, c.Set(ctx, keyA, []byte("A")))
	require.NoError(t, c.Set(ctx, keyB, []byte("B")))

	require.NoError(t, c.InvalidateEvent(ctx, "a"))

	genA, _ := c.Generation(ctx, "a")
	genB, _ := c.Generation(ctx, "b")
	_, ok := c.Get(ctx, c.Key("a", genA, "/v1/events/a", ""))
	assert.False(t, ok)
	bs, ok := c.Get(ctx, c.Key("b", genB, "/v1/events/b", ""))
	require.True(t, ok)
	assert.Equal(t, "B", string(bs))
}

func TestKeyVariesByQueryAndGeneration(t *testing.T) {
	c := newCache(newMemKV(), "rc", time.Minute)
	base := c.Key("ev", 0, "/v1/events/ev", "")
	assert.NotEqual(t, base, c.Key("ev", 0, "/v1/events/ev", "page=2"))
	assert.NotEqual(t, base, c.Key("ev", 1, "/v1/events/ev", ""))
	assert.Equal(t, base, c.Key("ev", 0, "/v1/events/ev", ""))
}

func TestGenerationCounterOutlivesResponses(t *testing.T) {
	store := newMemKV()
	c := newCache(store, "rc", 10*time.Minute)
	require.NoError(t, c.InvalidateEvent(context.Background(), "ev"))
	assert.Equal(t, 100*time.Minute, store.ttls["rc:gen:ev"])

	c = newCache(newMemKV(), "rc", time.Second)
	assert.Equal(t, 24*time.Hour, c.genTTL())
}

func TestInvalidateReportsStoreFailure(t *testing.T) {
	store := newMemKV()
	store.failInc = true
	c := newCache(store, "rc", time.Minute)
	assert.Error(t, c.InvalidateEvent(context.Background(), "ev"))
}

func TestNilCacheIsNoop(t *testing.T) {
	var c *ResponseCache
	ctx := context.Background()
	assert.Nil(t, New(nil, "rc", time.Minute))
	gen, err := c.Generation(ctx, "ev")
	assert.NoError(t, err)
	assert.Zero(t, gen)
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
	assert.NoError(t, c.Set(ctx, "k", []byte("v")))
	assert.NoError(t, c.InvalidateEvent(ctx, "ev"))
}
