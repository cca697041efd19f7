package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

func TestMemoryCache_TypedRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "k", sample{Name: "a", Score: 1.5}, time.Minute))

	var got sample
	require.NoError(t, mc.Get(ctx, "k", &got))
	assert.Equal(t, sample{Name: "a", Score: 1.5}, got)

	var s string
	require.NoError(t, mc.Set(ctx, "s", "plain", time.Minute))
	require.NoError(t, mc.Get(ctx, "s", &s))
	assert.Equal(t, "plain", s)
}

func TestMemoryCache_ExpiryAndMiss(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "k", "v", time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	var s string
	assert.ErrorIs(t, mc.Get(ctx, "k", &s), ErrCacheMiss)
	assert.ErrorIs(t, mc.Get(ctx, "absent", &s), ErrCacheMiss)
}

func TestMemoryCache_DeleteByPattern(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	for _, k := range []string{"regime:2024-01-02", "regime:2024-01-03", "other:1"} {
		require.NoError(t, mc.Set(ctx, k, "x", time.Minute))
	}
	require.NoError(t, mc.DeleteByPattern(ctx, BuildPattern("regime:")))

	ok, err := mc.Exists(ctx, "regime:2024-01-02", "regime:2024-01-03")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, _ = mc.Exists(ctx, "other:1")
	assert.True(t, ok)
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "a", "1", time.Minute))
	time.Sleep(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "b", "2", time.Minute))
	time.Sleep(time.Millisecond)
	var s string
	require.NoError(t, mc.Get(ctx, "a", &s))
	require.NoError(t, mc.Set(ctx, "c", "3", time.Minute))

	assert.ErrorIs(t, mc.Get(ctx, "b", &s), ErrCacheMiss)
	assert.NoError(t, mc.Get(ctx, "a", &s))
	assert.NoError(t, mc.Get(ctx, "c", &s))
}

func TestMemoryCache_TryLock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	ok, err := mc.TryLock(ctx, "lock:x", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = mc.TryLock(ctx, "lock:x", time.Minute)
	assert.False(t, ok)
	require.NoError(t, mc.Unlock(ctx, "lock:x"))
	ok, _ = mc.TryLock(ctx, "lock:x", time.Minute)
	assert.True(t, ok)
}
