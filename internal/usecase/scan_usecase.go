package usecase

import (
	"context"
	"fmt"
	"time"

	"FinScan/internal/domain/models"
	domrepo "FinScan/internal/domain/repository"
	domsvc "FinScan/internal/domain/service"
	"FinScan/pkg/logger"
)

// ScanRequest triggers one scan. Universe overrides the provider when
// set. With Apply, candidates become recommendations: under Strategy when
// given, otherwise each under its best effective horizon.
type ScanRequest struct {
	Date     time.Time
	Universe []string
	Strategy models.Horizon
	Apply    bool
}

// ScanUseCase is the scan entry point: regime, universe, scan and
// optionally lifecycle application.
type ScanUseCase struct {
	regime    domsvc.RegimeClassifier
	universe  domrepo.UniverseProvider
	scanner   domsvc.Scanner
	lifecycle *LifecycleManager
	metrics   domrepo.Metrics
	log       *logger.Logger
}

// NewScanUseCase wires the scan entry point. lifecycle may be nil for
// read-only scans.
func NewScanUseCase(regime domsvc.RegimeClassifier, universe domrepo.UniverseProvider, scanner domsvc.Scanner, lifecycle *LifecycleManager, log *logger.Logger) *ScanUseCase {
	if log == nil {
		log = logger.NewNop()
	}
	return &ScanUseCase{
		regime:    regime,
		universe:  universe,
		scanner:   scanner,
		lifecycle: lifecycle,
		log:       log.With(logger.String("component", "scan_usecase")),
	}
}

func (u *ScanUseCase) SetMetrics(m domrepo.Metrics) { u.metrics = m }

// Regime exposes the classification used by scans.
func (u *ScanUseCase) Regime(ctx context.Context, date time.Time) (models.MarketRegimeSnapshot, error) {
	return u.regime.Classify(ctx, models.TradingDay(date))
}

func (u *ScanUseCase) Run(ctx context.Context, req ScanRequest) (models.ScanResult, error) {
	start := time.Now()
	date := models.TradingDay(req.Date)
	if req.Strategy != "" {
		if _, err := models.ParseHorizon(string(req.Strategy)); err != nil {
			return models.ScanResult{}, err
		}
	}

	snap, err := u.regime.Classify(ctx, date)
	if err != nil {
		return models.ScanResult{}, fmt.Errorf("classify regime: %w", err)
	}

	universe, err := u.resolveUniverse(ctx, date, req.Universe)
	if err != nil {
		return models.ScanResult{}, err
	}

	out, err := u.scanner.Scan(ctx, universe, date, snap)
	if err != nil {
		return models.ScanResult{}, fmt.Errorf("scan: %w", err)
	}

	res := models.ScanResult{
		Date:       date,
		Regime:     snap,
		Version:    u.scanner.Version(),
		Step:       out.Step,
		Fallback:   out.Fallback,
		StepCounts: out.StepCounts,
		Evaluated:  out.Evaluated,
		Skipped:    out.Skipped,
		Candidates: out.Candidates,
	}
	if res.StepCounts == nil {
		res.StepCounts = []int{}
	}

	if req.Apply && u.lifecycle != nil && len(out.Candidates) > 0 {
		applied, err := u.apply(ctx, date, out.Candidates, req.Strategy)
		if err != nil {
			return res, err
		}
		res.Applied = applied
	}

	if u.metrics != nil {
		u.metrics.RecordScan(res.Version, snap.FinalRegime, res.Step, res.Fallback, len(res.Candidates), time.Since(start).Seconds())
	}
	return res, nil
}

func (u *ScanUseCase) resolveUniverse(ctx context.Context, date time.Time, override []string) ([]models.Symbol, error) {
	if len(override) > 0 {
		seen := make(map[string]bool, len(override))
		out := make([]models.Symbol, 0, len(override))
		for _, code := range override {
			code = models.NormalizeSymbol(code)
			if code == "" || seen[code] {
				continue
			}
			seen[code] = true
			out = append(out, models.Symbol{Code: code})
		}
		return out, nil
	}
	universe, err := u.universe.GetUniverse(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("%w: universe: %v", models.ErrUpstreamDataUnavailable, err)
	}
	return universe, nil
}

// apply groups candidates by target strategy and merges the reports.
func (u *ScanUseCase) apply(ctx context.Context, date time.Time, cs []models.ScanCandidate, strategy models.Horizon) (*models.ApplyReport, error) {
	groups := make(map[models.Horizon][]models.ScanCandidate)
	for _, c := range cs {
		h := strategy
		if h == "" {
			h, _ = c.Effective.Best()
		}
		groups[h] = append(groups[h], c)
	}

	merged := &models.ApplyReport{Strategy: strategy}
	for _, h := range models.Horizons {
		group, ok := groups[h]
		if !ok {
			continue
		}
		rep, err := u.lifecycle.Apply(ctx, date, group, h)
		if err != nil {
			return merged, fmt.Errorf("apply %s: %w", h, err)
		}
		merged.Created = append(merged.Created, rep.Created...)
		merged.Reinforced = append(merged.Reinforced, rep.Reinforced...)
		merged.Replaced = append(merged.Replaced, rep.Replaced...)
		merged.Archived = append(merged.Archived, rep.Archived...)
		merged.Skipped = append(merged.Skipped, rep.Skipped...)
	}
	return merged, nil
}
