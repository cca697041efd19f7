package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinScan/internal/domain/models"
	"FinScan/internal/service/ratelimit"
	"FinScan/internal/testutil"
	"FinScan/pkg/cache"
)

func priceSeries(n int) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		c := 10 + float64(i)
		out[i] = models.Candle{Date: storeDay.AddDate(0, 0, i-n+1), Symbol: "AAA", Open: c, High: c, Low: c, Close: c, Volume: 1000}
	}
	return out
}

func TestCachedPrices_ServesRepeatReadsFromCache(t *testing.T) {
	upstream := testutil.NewPrices().Add("AAA", priceSeries(30))
	mem := cache.NewMemoryCache()
	defer mem.Close()
	prices := NewCachedPrices(upstream, mem, time.Minute)

	ctx := context.Background()
	first, err := prices.GetOHLCV(ctx, "AAA", 20, storeDay)
	require.NoError(t, err)
	require.Len(t, first, 20)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := prices.GetOHLCV(ctx, "AAA", 20, storeDay)
			assert.NoError(t, err)
			assert.Len(t, got, 20)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, upstream.Calls.Load())

	// a different window is a different key
	_, err = prices.GetOHLCV(ctx, "AAA", 10, storeDay)
	require.NoError(t, err)
	assert.EqualValues(t, 2, upstream.Calls.Load())
}

func TestCachedPrices_DoesNotCacheErrors(t *testing.T) {
	upstream := testutil.NewPrices()
	mem := cache.NewMemoryCache()
	defer mem.Close()
	prices := NewCachedPrices(upstream, mem, time.Minute)

	_, err := prices.GetOHLCV(context.Background(), "BBB", 20, storeDay)
	assert.ErrorIs(t, err, models.ErrUpstreamDataUnavailable)

	upstream.Add("BBB", priceSeries(5))
	got, err := prices.GetOHLCV(context.Background(), "BBB", 20, storeDay)
	require.NoError(t, err)
	assert.Len(t, got, 5)
}

func TestPacedPrices_CancelledWait(t *testing.T) {
	upstream := testutil.NewPrices().Add("AAA", priceSeries(5))
	limiter := ratelimit.New(0.001, 1)
	prices := NewPacedPrices(upstream, limiter)

	_, err := prices.GetOHLCV(context.Background(), "AAA", 5, storeDay)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = prices.GetOHLCV(ctx, "AAA", 5, storeDay)
	assert.ErrorIs(t, err, models.ErrUpstreamDataUnavailable)
	assert.EqualValues(t, 1, upstream.Calls.Load())
}

func TestStaticUniverse(t *testing.T) {
	u, err := NewStaticUniverse([]string{" aaa", "BBB", "aaa", ""})
	require.NoError(t, err)
	got, err := u.GetUniverse(context.Background(), storeDay)
	require.NoError(t, err)
	assert.Equal(t, []models.Symbol{{Code: "AAA"}, {Code: "BBB"}}, got)

	_, err = NewStaticUniverse(nil)
	assert.ErrorIs(t, err, models.ErrConfiguration)
}
