package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinScan/internal/domain/models"
	domsvc "FinScan/internal/domain/service"
	"FinScan/internal/repository"
	"FinScan/internal/testutil"
)

type fixedRegime models.Regime

func (f fixedRegime) Classify(_ context.Context, date time.Time) (models.MarketRegimeSnapshot, error) {
	return models.MarketRegimeSnapshot{Date: date, FinalRegime: models.Regime(f), Confidence: models.ConfidenceNormal}, nil
}

// stubScanner returns fixed candidates and records the universe it saw.
type stubScanner struct {
	out  domsvc.ScanOutcome
	seen []models.Symbol
}

func (s *stubScanner) Version() string { return "stub" }

func (s *stubScanner) Scan(_ context.Context, universe []models.Symbol, _ time.Time, regime models.MarketRegimeSnapshot) (domsvc.ScanOutcome, error) {
	s.seen = universe
	if regime.FinalRegime == models.RegimeCrash {
		return domsvc.ScanOutcome{Step: NoStep, Candidates: []models.ScanCandidate{}}, nil
	}
	return s.out, nil
}

func TestScanUseCase_RunAppliesByBestHorizon(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	start := testutil.Day(2024, 1, 1)
	prices := testutil.NewPrices().
		Add("AAA", testutil.Trend("AAA", start, 100, 100, 0.2)).
		Add("BBB", testutil.Trend("BBB", start, 100, 40, 0.1))
	date := testutil.Weekdays(start, 100)[99]

	swing := models.ScanCandidate{Symbol: "AAA", SignalMatch: true, Effective: models.EffectiveScores{Swing: 8, Position: 6}}
	long := models.ScanCandidate{Symbol: "BBB", SignalMatch: true, Effective: models.EffectiveScores{Swing: 3, LongTerm: 7}}
	scanner := &stubScanner{out: domsvc.ScanOutcome{Step: 1, StepCounts: []int{1, 2}, Evaluated: 2, Candidates: []models.ScanCandidate{swing, long}}}

	store := repository.NewMemoryRecommendationStore()
	mgr, err := NewLifecycleManager(DefaultLifecycleConfig(), store, prices, nil, nil)
	require.NoError(t, err)
	uc := NewScanUseCase(fixedRegime(models.RegimeBull), testutil.Universe{{Code: "AAA"}, {Code: "BBB"}}, scanner, mgr, nil)

	res, err := uc.Run(ctx, ScanRequest{Date: date.Add(10 * time.Hour), Apply: true})
	require.NoError(t, err)
	assert.Equal(t, date, res.Date)
	assert.Equal(t, models.RegimeBull, res.Regime.FinalRegime)
	assert.Equal(t, "stub", res.Version)
	assert.Equal(t, 1, res.Step)
	require.NotNil(t, res.Applied)
	assert.Len(t, res.Applied.Created, 2)
	assert.Len(t, scanner.seen, 2)

	a, err := store.LoadActive(ctx, "AAA", models.HorizonSwing)
	require.NoError(t, err)
	assert.Len(t, a, 1)
	b, err := store.LoadActive(ctx, "BBB", models.HorizonLongTerm)
	require.NoError(t, err)
	assert.Len(t, b, 1)
}

func TestScanUseCase_UniverseOverrideAndCrash(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	scanner := &stubScanner{}
	uc := NewScanUseCase(fixedRegime(models.RegimeCrash), testutil.Universe{{Code: "ZZZ"}}, scanner, nil, nil)

	res, err := uc.Run(ctx, ScanRequest{Date: testutil.Day(2024, 5, 2), Universe: []string{" aaa", "BBB", "aaa", ""}, Apply: true})
	require.NoError(t, err)
	assert.Equal(t, []models.Symbol{{Code: "AAA"}, {Code: "BBB"}}, scanner.seen)
	assert.Empty(t, res.Candidates)
	assert.Equal(t, []int{}, res.StepCounts)
	assert.Nil(t, res.Applied)

	_, err = uc.Run(ctx, ScanRequest{Date: testutil.Day(2024, 5, 2), Strategy: "weekly"})
	assert.ErrorIs(t, err, models.ErrConfiguration)
}

func TestEvaluationUseCase_Run(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, riseThenPath(declining(10, 0.8)))
	rec := create(t, h)
	uc := NewEvaluationUseCase(h.mgr, nil)

	rep, err := uc.Run(ctx, h.setDay(anchorIdx+10))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Evaluated)
	assert.Equal(t, []string{rec.ID}, rep.Archived)

	got, err := uc.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusArchived, got.Status())
}
