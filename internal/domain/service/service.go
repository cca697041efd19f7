package service

import (
	"context"
	"time"

	"FinScan/internal/domain/models"
)

// RegimeClassifier classifies the market for one trading date. It never
// fails for missing upstream data; it degrades the snapshot instead.
type RegimeClassifier interface {
	Classify(ctx context.Context, date time.Time) (models.MarketRegimeSnapshot, error)
}

// HorizonScorer scores one symbol for one holding horizon.
type HorizonScorer interface {
	Horizon() models.Horizon
	Score(symbol string, snap *models.IndicatorSnapshot) models.HorizonScore
}

// Scanner selects ranked candidates from a universe under a regime.
type Scanner interface {
	Version() string
	Scan(ctx context.Context, universe []models.Symbol, date time.Time, regime models.MarketRegimeSnapshot) (ScanOutcome, error)
}

// ScanOutcome is the ranked list plus how the relaxation ladder got there.
type ScanOutcome struct {
	Candidates []models.ScanCandidate
	Step       int
	Fallback   bool
	StepCounts []int
	Evaluated  int
	Skipped    int
}
