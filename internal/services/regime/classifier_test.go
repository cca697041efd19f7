package regime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinScan/internal/domain/models"
	"FinScan/internal/testutil"
	"FinScan/pkg/cache"
)

var day = testutil.Day(2024, 3, 5)

// proxyBars builds a two-bar proxy series whose previous close is 100.
func proxyBars(open, high, low, close float64) []models.Candle {
	return []models.Candle{
		{Date: day.AddDate(0, 0, -1), Symbol: "KOSPI", Open: 99, High: 101, Low: 98, Close: 100},
		{Date: day, Symbol: "KOSPI", Open: open, High: high, Low: low, Close: close},
	}
}

func newClassifier(t *testing.T, bars []models.Candle, foreign *testutil.Foreign) *Classifier {
	t.Helper()
	prices := testutil.NewPrices().Add("KOSPI", bars)
	c, err := NewClassifier(prices, foreign, "KOSPI", DefaultParams(), nil)
	require.NoError(t, err)
	return c
}

func TestClassify_StrongUpDayWithoutForeignIsDegradedBull(t *testing.T) {
	t.Parallel()

	// +3.0% return, 0.8% range: return tier +3, low volatility +1
	c := newClassifier(t, proxyBars(102.5, 103.2, 102.4, 103), &testutil.Foreign{Err: errors.New("timeout")})
	snap, err := c.Classify(context.Background(), day)
	require.NoError(t, err)

	assert.Equal(t, 3.0, snap.DomesticTrendScore)
	assert.Equal(t, -1.0, snap.DomesticRiskScore)
	assert.Equal(t, 0.0, snap.ForeignTrendScore)
	assert.Equal(t, 0.0, snap.ForeignRiskScore)
	assert.InDelta(t, 2.4, snap.FinalScore, 1e-9)
	assert.Equal(t, models.RegimeBull, snap.FinalRegime)
	assert.Equal(t, models.ConfidenceDegraded, snap.Confidence)
}

func TestClassify_InvalidForeignSnapshotDegrades(t *testing.T) {
	t.Parallel()

	c := newClassifier(t, proxyBars(100, 101, 99.5, 100.1), &testutil.Foreign{Snap: models.ForeignSnapshot{TrendDelta: 2, Valid: false}})
	snap, err := c.Classify(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, models.ConfidenceDegraded, snap.Confidence)
	assert.Equal(t, 0.0, snap.ForeignTrendScore)
	assert.Equal(t, models.RegimeNeutral, snap.FinalRegime)
}

func TestClassify_MissingDomesticIsNeutralDegraded(t *testing.T) {
	t.Parallel()

	c := newClassifier(t, proxyBars(102.5, 103.2, 102.4, 103)[:1], &testutil.Foreign{Snap: models.ForeignSnapshot{TrendDelta: 2, VolatilityLevel: 12, Valid: true}})
	snap, err := c.Classify(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, models.RegimeNeutral, snap.FinalRegime)
	assert.Equal(t, models.ConfidenceDegraded, snap.Confidence)
	assert.Equal(t, 0.0, snap.FinalScore)
}

func TestClassify_CrashNeedsIntradayBreach(t *testing.T) {
	t.Parallel()

	foreign := &testutil.Foreign{Snap: models.ForeignSnapshot{TrendDelta: -1.8, VolatilityLevel: 38, Valid: true}}

	// -4% close, 5% range, 4.5% below the open: domestic -3 trend, +1 risk; foreign -2 trend, +2 risk
	crash := newClassifier(t, proxyBars(100, 100.5, 95.5, 96), foreign)
	snap, err := crash.Classify(context.Background(), day)
	require.NoError(t, err)
	assert.InDelta(t, -4.0, snap.FinalScore, 1e-9)
	assert.Equal(t, models.RegimeCrash, snap.FinalRegime)
	assert.Equal(t, models.ConfidenceNormal, snap.Confidence)

	// same score, but after a gap-down open the session only fell 2.6%
	bear := newClassifier(t, proxyBars(98, 100.5, 95.5, 96), foreign)
	snap, err = bear.Classify(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, models.RegimeBear, snap.FinalRegime)
}

func TestCombine_Deterministic(t *testing.T) {
	t.Parallel()

	dom := &models.DomesticSignal{Return: 1.2, Volatility: 2.8, IntradayDrop: -0.7}
	fs := &models.ForeignSnapshot{TrendDelta: 0.6, VolatilityLevel: 18, Valid: true}
	first := Combine(day, dom, fs, DefaultParams())
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, Combine(day, dom, fs, DefaultParams()))
	}
}

func TestCombine_BoundariesResolveToNeutral(t *testing.T) {
	t.Parallel()

	p := DefaultParams()
	p.DomesticWeight, p.ForeignWeight = 0.5, 0.5

	// domestic +2 trend, -1 risk => domestic score 3, final exactly 1.5
	up := Combine(day, &models.DomesticSignal{Return: 2.0, Volatility: 0.5}, &models.ForeignSnapshot{VolatilityLevel: 20, Valid: true}, p)
	require.InDelta(t, 1.5, up.FinalScore, 1e-12)
	assert.Equal(t, models.RegimeNeutral, up.FinalRegime)

	down := Combine(day, &models.DomesticSignal{Return: -2.0, Volatility: 3.0, IntradayDrop: -2.5}, &models.ForeignSnapshot{VolatilityLevel: 20, Valid: true}, p)
	require.InDelta(t, -1.5, down.FinalScore, 1e-12)
	assert.Equal(t, models.RegimeNeutral, down.FinalRegime)
}

func TestParamsValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, DefaultParams().Validate())

	p := DefaultParams()
	p.Tiers.HighReturnPct = 0.2
	assert.ErrorIs(t, p.Validate(), models.ErrConfiguration)

	p = DefaultParams()
	p.BullThreshold = -2
	assert.ErrorIs(t, p.Validate(), models.ErrConfiguration)
}

type countingClassifier struct {
	mu    sync.Mutex
	calls int
	delay time.Duration
}

func (c *countingClassifier) Classify(_ context.Context, date time.Time) (models.MarketRegimeSnapshot, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	time.Sleep(c.delay)
	return models.MarketRegimeSnapshot{Date: models.TradingDay(date), FinalRegime: models.RegimeBull, Confidence: models.ConfidenceNormal}, nil
}

type recordingArchive struct {
	mu    sync.Mutex
	saved []models.MarketRegimeSnapshot
}

func (r *recordingArchive) SaveRegime(_ context.Context, s models.MarketRegimeSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, s)
	return nil
}

func TestCachedClassifier_SharesOneComputation(t *testing.T) {
	t.Parallel()

	mem := cache.NewMemoryCache()
	defer mem.Close()
	inner := &countingClassifier{delay: 20 * time.Millisecond}
	archive := &recordingArchive{}
	cc := NewCachedClassifier(inner, NewCache(mem, time.Hour, time.Minute), nil)
	cc.SetArchive(archive)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := cc.Classify(context.Background(), day)
			assert.NoError(t, err)
			assert.Equal(t, models.RegimeBull, snap.FinalRegime)
		}()
	}
	wg.Wait()

	_, err := cc.Classify(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)
	assert.Len(t, archive.saved, 1)
}

func TestCache_InvalidateForcesRecompute(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mem := cache.NewMemoryCache()
	defer mem.Close()
	inner := &countingClassifier{}
	rc := NewCache(mem, time.Hour, time.Minute)
	cc := NewCachedClassifier(inner, rc, nil)

	_, err := cc.Classify(ctx, day)
	require.NoError(t, err)
	_, ok, err := rc.Get(ctx, day)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "regime:2024-03-05", Key(day.Add(15*time.Hour)))

	require.NoError(t, rc.Invalidate(ctx, day))
	_, err = cc.Classify(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}
