package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_BurstPerKey(t *testing.T) {
	l := New(0.001, 2)
	assert.True(t, l.Allow("prices"))
	assert.True(t, l.Allow("prices"))
	assert.False(t, l.Allow("prices"))
	assert.True(t, l.Allow("foreign"), "keys have separate buckets")
}

func TestLimiter_ZeroRateIsUnlimited(t *testing.T) {
	l := New(0, 1)
	for i := 0; i < 100; i++ {
		require.True(t, l.Allow("x"))
	}
}

func TestLimiter_WaitHonoursContext(t *testing.T) {
	l := New(100, 1)
	l.Set("slow", 0.001, 1)
	require.NoError(t, l.Wait(context.Background(), "slow"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx, "slow"))
}
