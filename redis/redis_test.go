package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	server := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: server.Addr()})
	return NewCacheWithClient(client), server
}

// TestCache_SetGet tests the JSON round trip
func TestCache_SetGet(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	err := cache.Set(ctx, "key-1", payload{Name: "status", Count: 3}, time.Minute)
	assert.NoError(t, err)

	var got payload
	found, err := cache.Get(ctx, "key-1", &got)
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "status", got.Name)
	assert.Equal(t, 3, got.Count)
}

// TestCache_GetMiss tests the miss path
func TestCache_GetMiss(t *testing.T) {
	cache, _ := newTestCache(t)

	var got map[string]interface{}
	found, err := cache.Get(context.Background(), "absent", &got)
	assert.NoError(t, err)
	assert.False(t, found)
}

// TestCache_Expiry tests TTL behavior
func TestCache_Expiry(t *testing.T) {
	cache, server := newTestCache(t)
	ctx := context.Background()

	err := cache.Set(ctx, "key-1", "value", time.Second)
	assert.NoError(t, err)

	server.FastForward(2 * time.Second)

	var got string
	found, err := cache.Get(ctx, "key-1", &got)
	assert.NoError(t, err)
	assert.False(t, found)
}

// TestCache_VersionCounter tests the invalidation counter
func TestCache_VersionCounter(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	assert.Equal(t, int64(0), cache.GetVersion(ctx, "sync:status:version"))

	cache.IncrementVersion(ctx, "sync:status:version")
	cache.IncrementVersion(ctx, "sync:status:version")
	assert.Equal(t, int64(2), cache.GetVersion(ctx, "sync:status:version"))
}

// TestCache_NilClientDegradesToMiss tests the Redis-less mode
func TestCache_NilClientDegradesToMiss(t *testing.T) {
	cache := NewCacheWithClient(nil)
	ctx := context.Background()

	assert.NoError(t, cache.Set(ctx, "key-1", "value", time.Minute))

	var got string
	found, err := cache.Get(ctx, "key-1", &got)
	assert.NoError(t, err)
	assert.False(t, found)

	assert.Equal(t, int64(0), cache.GetVersion(ctx, "v"))
	cache.IncrementVersion(ctx, "v") // no-op, must not panic
}
