package foreign

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinScan/internal/domain/models"
	"FinScan/internal/service/ratelimit"
)

var snapDay = time.Date(2024, 6, 3, 15, 0, 0, 0, time.UTC)

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func newTestClient(t *testing.T, url string, opts ...Option) *Client {
	t.Helper()
	c, err := New(Config{URL: url, Timeout: time.Second, RetryDelay: time.Millisecond, TripAfter: 2, OpenTimeout: time.Hour}, nil, opts...)
	require.NoError(t, err)
	c.sleep = noSleep
	return c
}

func TestClient_DecodesSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2024-06-03", r.URL.Query().Get("date"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"date": "2024-06-03", "trend_delta": -1.2, "volatility_level": 24.5, "valid": true,
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, WithLimiter(ratelimit.New(0, 1)))
	snap, err := c.GetForeignSnapshot(context.Background(), snapDay)
	require.NoError(t, err)
	assert.Equal(t, models.ForeignSnapshot{
		Date:            time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
		TrendDelta:      -1.2,
		VolatilityLevel: 24.5,
		Valid:           true,
	}, snap)
}

func TestClient_OtherDayIsInvalid(t *testing.T) {
	for _, served := range []string{"2024-05-31", "last friday"} {
		t.Run(served, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(map[string]interface{}{
					"date": served, "trend_delta": 2.4, "volatility_level": 14, "valid": true,
				})
			}))
			defer srv.Close()

			snap, err := newTestClient(t, srv.URL).GetForeignSnapshot(context.Background(), snapDay)
			require.NoError(t, err)
			assert.False(t, snap.Valid)
			assert.Equal(t, time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), snap.Date)
		})
	}
}

func TestClient_RetriesOnce(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"trend_delta": 0.4, "volatility_level": 14, "valid": false}`))
	}))
	defer srv.Close()

	snap, err := newTestClient(t, srv.URL).GetForeignSnapshot(context.Background(), snapDay)
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
	assert.False(t, snap.Valid)
	assert.InDelta(t, 0.4, snap.TrendDelta, 1e-9)
}

func TestClient_FailsAfterRetryAndOpensBreaker(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.GetForeignSnapshot(context.Background(), snapDay)
	assert.ErrorIs(t, err, models.ErrUpstreamDataUnavailable)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
	assert.Equal(t, "open", c.State())

	// open breaker fails fast without another request or retry
	_, err = c.GetForeignSnapshot(context.Background(), snapDay)
	assert.ErrorIs(t, err, models.ErrUpstreamDataUnavailable)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestNew_RequiresURL(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.ErrorIs(t, err, models.ErrConfiguration)
}
