package regime

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"FinScan/internal/domain/models"
	domrepo "FinScan/internal/domain/repository"
	domsvc "FinScan/internal/domain/service"
	"FinScan/pkg/cache"
	"FinScan/pkg/logger"
)

const keyPrefix = "regime"

// Key is the cache key for a trading date.
func Key(date time.Time) string {
	return cache.GenerateKey(keyPrefix, models.TradingDay(date).Format("2006-01-02"))
}

// Cache stores regime snapshots by date. Degraded snapshots get a shorter
// TTL so that a later run can pick up recovered upstream data.
type Cache struct {
	store       cache.Service
	ttl         time.Duration
	degradedTTL time.Duration
}

// NewCache stores snapshots in store; degraded ones expire after degradedTTL.
func NewCache(store cache.Service, ttl, degradedTTL time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if degradedTTL <= 0 || degradedTTL > ttl {
		degradedTTL = ttl
	}
	return &Cache{store: store, ttl: ttl, degradedTTL: degradedTTL}
}

func (c *Cache) Get(ctx context.Context, date time.Time) (models.MarketRegimeSnapshot, bool, error) {
	var snap models.MarketRegimeSnapshot
	if err := c.store.Get(ctx, Key(date), &snap); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return snap, false, nil
		}
		return snap, false, err
	}
	return snap, true, nil
}

func (c *Cache) Put(ctx context.Context, snap models.MarketRegimeSnapshot) error {
	ttl := c.ttl
	if snap.Degraded() {
		ttl = c.degradedTTL
	}
	return c.store.Set(ctx, Key(snap.Date), snap, ttl)
}

// Invalidate drops the snapshot for date so the next request recomputes it.
func (c *Cache) Invalidate(ctx context.Context, date time.Time) error {
	return c.store.Delete(ctx, Key(date))
}

// InvalidateAll drops every cached snapshot.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	return c.store.DeleteByPattern(ctx, cache.BuildPattern(keyPrefix+":"))
}

// CachedClassifier serves snapshots from Cache and collapses concurrent
// requests for the same date into one computation.
type CachedClassifier struct {
	inner   domsvc.RegimeClassifier
	cache   *Cache
	archive domrepo.RegimeArchive
	metrics domrepo.Metrics
	log     *logger.Logger
	group   singleflight.Group
}

// NewCachedClassifier serves inner through c, computing each date once.
func NewCachedClassifier(inner domsvc.RegimeClassifier, c *Cache, log *logger.Logger) *CachedClassifier {
	if log == nil {
		log = logger.NewNop()
	}
	return &CachedClassifier{inner: inner, cache: c, log: log.With(logger.String("component", "regime_cache"))}
}

// SetArchive enables persisting each freshly computed snapshot.
func (cc *CachedClassifier) SetArchive(a domrepo.RegimeArchive) { cc.archive = a }

func (cc *CachedClassifier) SetMetrics(m domrepo.Metrics) { cc.metrics = m }

func (cc *CachedClassifier) Cache() *Cache { return cc.cache }

func (cc *CachedClassifier) Classify(ctx context.Context, date time.Time) (models.MarketRegimeSnapshot, error) {
	if snap, ok := cc.lookup(ctx, date); ok {
		return snap, nil
	}

	v, err, shared := cc.group.Do(Key(date), func() (interface{}, error) {
		if snap, ok := cc.lookup(ctx, date); ok {
			return snap, nil
		}
		snap, err := cc.inner.Classify(ctx, date)
		if err != nil {
			return nil, err
		}
		if err := cc.cache.Put(ctx, snap); err != nil {
			cc.log.Warn("regime cache write failed", logger.Date("date", date), logger.Error(err))
		}
		if cc.archive != nil {
			if err := cc.archive.SaveRegime(ctx, snap); err != nil {
				cc.log.Warn("regime archive write failed", logger.Date("date", date), logger.Error(err))
			}
		}
		if cc.metrics != nil {
			cc.metrics.RecordRegime(snap)
		}
		return snap, nil
	})
	if err != nil {
		return models.MarketRegimeSnapshot{}, err
	}
	if shared {
		cc.log.Debug("regime computation shared", logger.Date("date", date))
	}
	return v.(models.MarketRegimeSnapshot), nil
}

func (cc *CachedClassifier) lookup(ctx context.Context, date time.Time) (models.MarketRegimeSnapshot, bool) {
	snap, ok, err := cc.cache.Get(ctx, date)
	if err != nil {
		cc.log.Warn("regime cache read failed", logger.Date("date", date), logger.Error(err))
		return snap, false
	}
	return snap, ok
}
