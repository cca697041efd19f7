package repository

import (
	"context"
	"time"

	"FinScan/internal/domain/models"
)

// PriceHistoryProvider returns up to count daily candles ending on or
// before asOf, sorted ascending. Fewer rows may come back near listing dates.
type PriceHistoryProvider interface {
	GetOHLCV(ctx context.Context, symbol string, count int, asOf time.Time) ([]models.Candle, error)
}

type ForeignSnapshotProvider interface {
	GetForeignSnapshot(ctx context.Context, date time.Time) (models.ForeignSnapshot, error)
}

// UniverseProvider returns the ordered scan universe for a date.
type UniverseProvider interface {
	GetUniverse(ctx context.Context, date time.Time) ([]models.Symbol, error)
}

type RecommendationFilter struct {
	Status   models.Status
	Symbol   string
	Strategy models.Horizon
	Limit    int
}

// RecommendationStore persists recommendations. Writes to an existing row
// succeed only when rec.Version matches the stored version, which is then
// incremented on both the row and rec. ErrStaleVersion otherwise.
type RecommendationStore interface {
	Upsert(ctx context.Context, rec *models.Recommendation) error
	Transition(ctx context.Context, rec *models.Recommendation, from models.Status) error
	// ReplaceActive commits the transition of prior out of from and the
	// insert of next as one write. Neither is stored if either fails.
	ReplaceActive(ctx context.Context, prior *models.Recommendation, from models.Status, next *models.Recommendation) error
	LoadActive(ctx context.Context, symbol string, strategy models.Horizon) ([]*models.Recommendation, error)
	ListOpen(ctx context.Context) ([]*models.Recommendation, error)
	List(ctx context.Context, f RecommendationFilter) ([]*models.Recommendation, error)
	Get(ctx context.Context, id string) (*models.Recommendation, error)
}

// BarStorage receives end-of-day bars from ingestion.
type BarStorage interface {
	StoreBars(ctx context.Context, bars []models.Candle) error
}

type RegimeArchive interface {
	SaveRegime(ctx context.Context, snap models.MarketRegimeSnapshot) error
}

type EventPublisher interface {
	PublishLifecycle(ctx context.Context, ev models.LifecycleEvent) error
	Close() error
}

type Metrics interface {
	RecordScan(version string, regime models.Regime, step int, fallback bool, candidates int, seconds float64)
	RecordStepCount(step int, count int)
	RecordRegime(snap models.MarketRegimeSnapshot)
	RecordTransition(from, to models.Status, reason models.ArchiveReason)
	RecordUpstreamMiss(kind string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
