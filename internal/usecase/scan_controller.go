package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"FinScan/internal/domain/models"
	domrepo "FinScan/internal/domain/repository"
	domsvc "FinScan/internal/domain/service"
	"FinScan/internal/services/indicators"
	"FinScan/internal/services/scoring"
	"FinScan/pkg/logger"
)

// NoStep is reported when the controller returned without running a step.
const NoStep = -1

// Band is the target candidate count range for a regime.
type Band struct {
	Min int
	Max int
}

// Contains reports whether n lies inside the band, inclusive.
func (b Band) Contains(n int) bool { return n >= b.Min && n <= b.Max }

// StepPreset is one rung of the relaxation ladder.
type StepPreset struct {
	MaxGapPct       float64
	MaxExtensionPct float64
	MinSignals      int
	MinScore        float64
}

// looserThan reports whether p admits everything prev admits.
func (p StepPreset) looserThan(prev StepPreset) bool {
	return p.MaxGapPct >= prev.MaxGapPct &&
		p.MaxExtensionPct >= prev.MaxExtensionPct &&
		p.MinSignals <= prev.MinSignals &&
		p.MinScore <= prev.MinScore
}

// Admits is the per-step filter. The signal gate is part of it, so a
// candidate below MinSignals never passes whatever its score.
func (p StepPreset) Admits(c models.ScanCandidate) bool {
	return c.Signals >= p.MinSignals &&
		c.GapPct <= p.MaxGapPct &&
		c.ExtensionPct <= p.MaxExtensionPct &&
		c.Score >= p.MinScore
}

// ScanConfig holds the target bands, the relaxation ladder and the
// per-regime risk multipliers of the adaptive scan.
type ScanConfig struct {
	Workers      int
	LookbackBars int
	Benchmark    string
	MinBars      int
	Bands        map[models.Regime]Band
	Steps        []StepPreset
	// RiskMultipliers weight the horizon risk penalty per regime.
	RiskMultipliers map[models.Regime]float64
}

// DefaultScanConfig is a four step ladder from strict to loose with
// bands sized per regime.
func DefaultScanConfig() ScanConfig {
	return ScanConfig{
		Workers:      8,
		LookbackBars: 260,
		MinBars:      indicators.DefaultMinBars,
		Bands: map[models.Regime]Band{
			models.RegimeBull:    {Min: 5, Max: 20},
			models.RegimeNeutral: {Min: 5, Max: 15},
			models.RegimeBear:    {Min: 2, Max: 8},
			models.RegimeCrash:   {Min: 0, Max: 0},
		},
		Steps: []StepPreset{
			{MaxGapPct: 2, MaxExtensionPct: 5, MinSignals: 5, MinScore: 6},
			{MaxGapPct: 3, MaxExtensionPct: 8, MinSignals: 4, MinScore: 5},
			{MaxGapPct: 4, MaxExtensionPct: 12, MinSignals: 3, MinScore: 4},
			{MaxGapPct: 6, MaxExtensionPct: 15, MinSignals: 2, MinScore: 3},
		},
		RiskMultipliers: map[models.Regime]float64{
			models.RegimeBull:    0.5,
			models.RegimeNeutral: 1.0,
			models.RegimeBear:    1.5,
			models.RegimeCrash:   2.0,
		},
	}
}

// Validate rejects ladders whose steps tighten and malformed bands.
func (c ScanConfig) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("%w: scan workers must be positive", models.ErrConfiguration)
	}
	if c.LookbackBars < c.MinBars || c.MinBars <= 0 {
		return fmt.Errorf("%w: lookback %d below minimum bars %d", models.ErrConfiguration, c.LookbackBars, c.MinBars)
	}
	if len(c.Steps) == 0 {
		return fmt.Errorf("%w: at least one relaxation step is required", models.ErrConfiguration)
	}
	for i := 1; i < len(c.Steps); i++ {
		if !c.Steps[i].looserThan(c.Steps[i-1]) {
			return fmt.Errorf("%w: step %d is stricter than step %d", models.ErrConfiguration, i, i-1)
		}
	}
	for _, r := range []models.Regime{models.RegimeBull, models.RegimeNeutral, models.RegimeBear} {
		b, ok := c.Bands[r]
		if !ok {
			return fmt.Errorf("%w: missing %s band", models.ErrConfiguration, r)
		}
		if b.Min < 0 || b.Max < b.Min {
			return fmt.Errorf("%w: %s band [%d,%d]", models.ErrConfiguration, r, b.Min, b.Max)
		}
	}
	for r, m := range c.RiskMultipliers {
		if m < 0 {
			return fmt.Errorf("%w: negative %s risk multiplier", models.ErrConfiguration, r)
		}
	}
	return nil
}

func (c ScanConfig) multiplier(r models.Regime) float64 {
	if m, ok := c.RiskMultipliers[r]; ok {
		return m
	}
	return 1
}

// ScanController runs the relaxation ladder over a universe. Each symbol
// is evaluated once per run; the steps only re-filter those evaluations.
type ScanController struct {
	version string
	cfg     ScanConfig
	prices  domrepo.PriceHistoryProvider
	engine  *indicators.Engine
	scorers scoring.Set
	signals SignalSet
	log     *logger.Logger
	metrics domrepo.Metrics
}

var _ domsvc.Scanner = (*ScanController)(nil)

// NewScanController validates cfg and builds a controller for one
// scanner version.
func NewScanController(version string, cfg ScanConfig, prices domrepo.PriceHistoryProvider, scorers scoring.Set, signals SignalSet, log *logger.Logger) (*ScanController, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(signals.Signals) == 0 {
		return nil, fmt.Errorf("%w: empty signal set", models.ErrConfiguration)
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &ScanController{
		version: version,
		cfg:     cfg,
		prices:  prices,
		engine:  indicators.NewEngine(indicators.WithMinBars(cfg.MinBars)),
		scorers: scorers,
		signals: signals,
		log:     log.With(logger.String("component", "scan"), logger.String("version", version)),
	}, nil
}

func (s *ScanController) SetMetrics(m domrepo.Metrics) { s.metrics = m }

func (s *ScanController) Version() string { return s.version }

func (s *ScanController) Config() ScanConfig { return s.cfg }

func (s *ScanController) Scan(ctx context.Context, universe []models.Symbol, date time.Time, regime models.MarketRegimeSnapshot) (domsvc.ScanOutcome, error) {
	if regime.FinalRegime == models.RegimeCrash {
		s.log.Info("crash regime, scan skipped", logger.Date("date", date))
		return domsvc.ScanOutcome{Step: NoStep, Candidates: []models.ScanCandidate{}}, nil
	}

	start := time.Now()
	evals, skipped, err := s.evaluate(ctx, universe, date, regime.FinalRegime)
	if err != nil {
		return domsvc.ScanOutcome{}, err
	}
	if s.metrics != nil {
		s.metrics.RecordLatency("scan_evaluate", time.Since(start).Seconds())
	}

	out := s.Select(evals, regime.FinalRegime)
	out.Evaluated = len(evals)
	out.Skipped = skipped
	for i, n := range out.StepCounts {
		s.log.Debug("relaxation step", logger.Int("step", i), logger.Int("matches", n))
		if s.metrics != nil {
			s.metrics.RecordStepCount(i, n)
		}
	}
	s.log.Info("scan finished",
		logger.Date("date", date),
		logger.String("regime", string(regime.FinalRegime)),
		logger.Int("evaluated", out.Evaluated),
		logger.Int("skipped", out.Skipped),
		logger.Int("step", out.Step),
		logger.Bool("fallback", out.Fallback),
		logger.Int("candidates", len(out.Candidates)),
	)
	return out, nil
}

// Select walks the ladder over precomputed evaluations.
func (s *ScanController) Select(evals []models.ScanCandidate, regime models.Regime) domsvc.ScanOutcome {
	band := s.cfg.Bands[regime]
	out := domsvc.ScanOutcome{Step: NoStep, Candidates: []models.ScanCandidate{}}
	if regime == models.RegimeCrash {
		return out
	}

	// first step each evaluation passes; looser steps admit a superset
	first := make([]int, len(evals))
	for i, c := range evals {
		first[i] = NoStep
		for step, p := range s.cfg.Steps {
			if p.Admits(c) {
				first[i] = step
				break
			}
		}
	}

	var matches []models.ScanCandidate
	for step := range s.cfg.Steps {
		matches = matches[:0]
		for i, c := range evals {
			if first[i] != NoStep && first[i] <= step {
				c.Step = first[i]
				c.SignalMatch = true
				matches = append(matches, c)
			}
		}
		out.StepCounts = append(out.StepCounts, len(matches))
		if band.Contains(len(matches)) {
			out.Step = step
			out.Candidates = rank(matches)
			return out
		}
	}

	out.Step = len(s.cfg.Steps) - 1
	out.Fallback = true
	ranked := rank(matches)
	if len(ranked) > band.Max {
		ranked = ranked[:band.Max]
	}
	out.Candidates = ranked
	return out
}

// rank orders by effective score desc, risk asc, symbol asc.
func rank(cs []models.ScanCandidate) []models.ScanCandidate {
	out := append([]models.ScanCandidate{}, cs...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.SignalMatch != b.SignalMatch {
			return a.SignalMatch
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.RiskScore != b.RiskScore {
			return a.RiskScore < b.RiskScore
		}
		return a.Symbol < b.Symbol
	})
	return out
}

// evaluate computes indicators and scores for each symbol once. Symbol
// failures are logged and counted as skipped; only ctx errors abort.
func (s *ScanController) evaluate(ctx context.Context, universe []models.Symbol, date time.Time, regime models.Regime) ([]models.ScanCandidate, int, error) {
	bench := s.benchmark(ctx, date)
	mult := s.cfg.multiplier(regime)

	results := make([]*models.ScanCandidate, len(universe))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i, sym := range universe {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			c, ok := s.evaluateSymbol(gctx, sym, date, bench, mult)
			if ok {
				results[i] = &c
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	evals := make([]models.ScanCandidate, 0, len(universe))
	for _, r := range results {
		if r != nil {
			evals = append(evals, *r)
		}
	}
	return evals, len(universe) - len(evals), nil
}

func (s *ScanController) benchmark(ctx context.Context, date time.Time) []models.Candle {
	if s.cfg.Benchmark == "" {
		return nil
	}
	bench, err := s.prices.GetOHLCV(ctx, s.cfg.Benchmark, s.cfg.LookbackBars, date)
	if err != nil {
		s.log.Warn("benchmark unavailable, relative strength disabled",
			logger.String("benchmark", s.cfg.Benchmark), logger.Error(err))
		s.miss("benchmark")
		return nil
	}
	return bench
}

func (s *ScanController) evaluateSymbol(ctx context.Context, sym models.Symbol, date time.Time, bench []models.Candle, mult float64) (models.ScanCandidate, bool) {
	series, err := s.prices.GetOHLCV(ctx, sym.Code, s.cfg.LookbackBars, date)
	if err != nil {
		s.log.Warn("price history unavailable, symbol skipped", logger.String("symbol", sym.Code), logger.Error(err))
		s.miss("price")
		return models.ScanCandidate{}, false
	}
	snap := s.engine.Compute(series, bench)
	if !snap.Sufficient {
		s.log.Debug("insufficient history, symbol skipped", logger.String("symbol", sym.Code), logger.Int("bars", len(series)))
		return models.ScanCandidate{}, false
	}

	last := series[len(series)-1]
	c := models.ScanCandidate{
		Symbol:       sym.Code,
		Name:         sym.Name,
		Date:         models.TradingDay(last.Date),
		Close:        last.Close,
		Signals:      s.signals.Count(snap),
		GapPct:       math.Inf(1),
		ExtensionPct: indicators.PctChange(snap.Last(snap.EMA20), last.Close),
		RelStrength:  snap.Last(snap.RelStrength),
		Scores:       s.scorers.ScoreAll(sym.Code, snap),
	}
	if len(series) >= 2 {
		c.GapPct = math.Abs(indicators.PctChange(series[len(series)-2].Close, last.Open))
	}
	applyRisk(&c, mult)
	return finite(c), true
}

// applyRisk fills RiskScore, Effective and Score from the horizon scores.
func applyRisk(c *models.ScanCandidate, mult float64) {
	c.RiskScore = 0
	for _, h := range models.Horizons {
		hs := c.Scores.For(h)
		c.RiskScore = math.Max(c.RiskScore, hs.Risk)
		eff := hs.Score - hs.Risk*mult
		switch h {
		case models.HorizonSwing:
			c.Effective.Swing = eff
		case models.HorizonPosition:
			c.Effective.Position = eff
		case models.HorizonLongTerm:
			c.Effective.LongTerm = eff
		}
	}
	_, c.Score = c.Effective.Best()
}

// finite replaces NaN gate inputs with values that fail every preset so
// the candidate can also be encoded as JSON.
func finite(c models.ScanCandidate) models.ScanCandidate {
	if !indicators.Valid(c.GapPct) {
		c.GapPct = math.MaxFloat64
	}
	if !indicators.Valid(c.ExtensionPct) {
		c.ExtensionPct = math.MaxFloat64
	}
	if !indicators.Valid(c.RelStrength) {
		c.RelStrength = 0
	}
	return c
}

func (s *ScanController) miss(kind string) {
	if s.metrics != nil {
		s.metrics.RecordUpstreamMiss(kind)
	}
}
