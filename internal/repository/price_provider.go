package repository

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"FinScan/internal/domain/models"
	domrepo "FinScan/internal/domain/repository"
	"FinScan/internal/service/ratelimit"
	"FinScan/pkg/cache"
	"FinScan/pkg/util"
)

// PricesLimiterKey is the limiter key shared by all price fetches.
const PricesLimiterKey = "prices"

// PacedPrices waits on the upstream limiter before every history fetch.
type PacedPrices struct {
	next    domrepo.PriceHistoryProvider
	limiter *ratelimit.Limiter
}

var _ domrepo.PriceHistoryProvider = (*PacedPrices)(nil)

// NewPacedPrices waits on the prices limiter key before each fetch.
func NewPacedPrices(next domrepo.PriceHistoryProvider, limiter *ratelimit.Limiter) *PacedPrices {
	return &PacedPrices{next: next, limiter: limiter}
}

func (p *PacedPrices) GetOHLCV(ctx context.Context, symbol string, count int, asOf time.Time) ([]models.Candle, error) {
	if err := p.limiter.Wait(ctx, PricesLimiterKey); err != nil {
		return nil, fmt.Errorf("%w: wait for %s: %v", models.ErrUpstreamDataUnavailable, symbol, err)
	}
	return p.next.GetOHLCV(ctx, symbol, count, asOf)
}

// CachedPrices memoizes history windows for a short TTL. A scan and the
// evaluation that follows it read the same windows; concurrent misses for
// one key share a single upstream call.
type CachedPrices struct {
	next  domrepo.PriceHistoryProvider
	store cache.Service
	ttl   time.Duration
	group singleflight.Group
}

var _ domrepo.PriceHistoryProvider = (*CachedPrices)(nil)

// NewCachedPrices caches successful fetches for ttl.
func NewCachedPrices(next domrepo.PriceHistoryProvider, store cache.Service, ttl time.Duration) *CachedPrices {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedPrices{next: next, store: store, ttl: ttl}
}

func pricesKey(symbol string, count int, asOf time.Time) string {
	return cache.GenerateKey("ohlcv", fmt.Sprintf("%s:%d:%s", symbol, count, models.TradingDay(asOf).Format(util.DateLayout)))
}

func (c *CachedPrices) GetOHLCV(ctx context.Context, symbol string, count int, asOf time.Time) ([]models.Candle, error) {
	key := pricesKey(symbol, count, asOf)
	var hit []models.Candle
	// cache errors other than a miss fall through to the upstream
	if err := c.store.Get(ctx, key, &hit); err == nil {
		return hit, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		series, err := c.next.GetOHLCV(ctx, symbol, count, asOf)
		if err != nil {
			return nil, err
		}
		_ = c.store.Set(ctx, key, series, c.ttl)
		return series, nil
	})
	if err != nil {
		return nil, err
	}
	series := v.([]models.Candle)
	return append([]models.Candle(nil), series...), nil
}

// StaticUniverse serves a configured symbol list, used when the universe
// is pinned in config instead of ranked from stored turnover.
type StaticUniverse struct {
	symbols []models.Symbol
}

var _ domrepo.UniverseProvider = (*StaticUniverse)(nil)

// NewStaticUniverse normalizes and dedups codes. An empty list is an error.
func NewStaticUniverse(codes []string) (*StaticUniverse, error) {
	seen := make(map[string]bool, len(codes))
	out := make([]models.Symbol, 0, len(codes))
	for _, c := range codes {
		code := models.NormalizeSymbol(c)
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, models.Symbol{Code: code})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: static universe is empty", models.ErrConfiguration)
	}
	return &StaticUniverse{symbols: out}, nil
}

func (u *StaticUniverse) GetUniverse(context.Context, time.Time) ([]models.Symbol, error) {
	return append([]models.Symbol(nil), u.symbols...), nil
}
