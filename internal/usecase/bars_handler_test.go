package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinScan/internal/testutil"
)

type invalidations struct{ dates []time.Time }

func (i *invalidations) Invalidate(_ context.Context, d time.Time) error {
	i.dates = append(i.dates, d)
	return nil
}

func TestBarsHandler_StoresAndInvalidatesProxy(t *testing.T) {
	t.Parallel()

	store := &testutil.Bars{}
	inv := &invalidations{}
	h := NewBarsHandler("eod-bars", "kospi", store, inv, nil)
	assert.Equal(t, "eod-bars", h.Topic())

	msg := `[
		{"symbol":"aaa","date":"2024-06-03","open":10,"high":11,"low":9.5,"close":10.5,"volume":1000},
		{"symbol":"KOSPI","date":"2024-06-03T15:30:00+09:00","open":2700,"high":2720,"low":2690,"close":2710,"volume":0}
	]`
	require.NoError(t, h.Handle(context.Background(), []byte(msg)))
	require.Len(t, store.Bars, 2)
	assert.Equal(t, "AAA", store.Bars[0].Symbol)
	assert.Equal(t, testutil.Day(2024, 6, 3), store.Bars[0].Date)
	assert.Equal(t, []time.Time{testutil.Day(2024, 6, 3)}, inv.dates)

	require.NoError(t, h.Handle(context.Background(), []byte(`{"symbol":"BBB","date":"2024-06-04","open":5,"high":5,"low":5,"close":5}`)))
	assert.Len(t, store.Bars, 3)
	assert.Len(t, inv.dates, 1)
}

func TestBarsHandler_RejectsBadBars(t *testing.T) {
	t.Parallel()

	store := &testutil.Bars{}
	metrics := testutil.NewMetrics()
	h := NewBarsHandler("eod-bars", "KOSPI", store, nil, nil)
	h.SetMetrics(metrics)
	ctx := context.Background()

	cases := map[string]string{
		"not json":   `{"symbol":`,
		"no symbol":  `{"date":"2024-06-03","open":1,"high":1,"low":1,"close":1}`,
		"bad date":   `{"symbol":"A","date":"03/06/2024","open":1,"high":1,"low":1,"close":1}`,
		"zero close": `{"symbol":"A","date":"2024-06-03","open":1,"high":1,"low":1,"close":0}`,
		"high < low": `{"symbol":"A","date":"2024-06-03","open":1,"high":1,"low":2,"close":1}`,
	}
	for name, msg := range cases {
		assert.Error(t, h.Handle(ctx, []byte(msg)), name)
	}
	assert.Empty(t, store.Bars)
	assert.Equal(t, 1, metrics.ErrorCount("bars_unmarshal"))
	assert.Equal(t, 4, metrics.ErrorCount("bars_invalid"))

	store.Err = errors.New("clickhouse down")
	assert.ErrorIs(t, h.Handle(ctx, []byte(`{"symbol":"A","date":"2024-06-03","open":1,"high":1,"low":1,"close":1}`)), store.Err)
	assert.Equal(t, 1, metrics.ErrorCount("bars_store"))
}
