package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"FinScan/internal/domain/models"
	domrepo "FinScan/internal/domain/repository"
	"FinScan/internal/services/indicators"
	"FinScan/pkg/logger"
	"FinScan/pkg/util"
)

// momentumMinBars covers the MACD(12,26,9) warm-up plus one bar for direction.
const momentumMinBars = 40

// StrategyConfig holds the exit rules of one strategy.
type StrategyConfig struct {
	// StopLossPct is a negative percent return, e.g. -7.
	StopLossPct float64
	// TTLDays is counted in trading sessions after the anchor date.
	TTLDays     int
	MomentumRSI float64
}

// LifecycleConfig holds the exit rules per strategy and the evaluation
// resources. Validate rejects incomplete or inverted settings.
type LifecycleConfig struct {
	Strategies   map[models.Horizon]StrategyConfig
	PhaseBandPct float64
	HistoryBars  int
	Workers      int
}

// DefaultLifecycleConfig is the tuned reference setup: tighter stops and
// shorter lives for shorter horizons.
func DefaultLifecycleConfig() LifecycleConfig {
	return LifecycleConfig{
		Strategies: map[models.Horizon]StrategyConfig{
			models.HorizonSwing:    {StopLossPct: -2, TTLDays: 15, MomentumRSI: 45},
			models.HorizonPosition: {StopLossPct: -5, TTLDays: 20, MomentumRSI: 45},
			models.HorizonLongTerm: {StopLossPct: -7, TTLDays: 25, MomentumRSI: 40},
		},
		PhaseBandPct: 2,
		HistoryBars:  80,
		Workers:      4,
	}
}

// Validate reports ErrConfiguration for any unusable setting.
func (c LifecycleConfig) Validate() error {
	for _, h := range models.Horizons {
		st, ok := c.Strategies[h]
		if !ok {
			return fmt.Errorf("%w: missing %s strategy", models.ErrConfiguration, h)
		}
		if st.StopLossPct >= 0 {
			return fmt.Errorf("%w: %s stop loss must be negative, got %v", models.ErrConfiguration, h, st.StopLossPct)
		}
		if st.TTLDays <= 0 {
			return fmt.Errorf("%w: %s ttl must be positive", models.ErrConfiguration, h)
		}
		if st.MomentumRSI <= 0 || st.MomentumRSI >= 100 {
			return fmt.Errorf("%w: %s momentum rsi %v out of range", models.ErrConfiguration, h, st.MomentumRSI)
		}
	}
	if c.PhaseBandPct < 0 {
		return fmt.Errorf("%w: negative phase band", models.ErrConfiguration)
	}
	if c.HistoryBars < momentumMinBars {
		return fmt.Errorf("%w: history bars must be at least %d", models.ErrConfiguration, momentumMinBars)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("%w: lifecycle workers must be positive", models.ErrConfiguration)
	}
	return nil
}

// LifecycleOption configures a LifecycleManager.
type LifecycleOption func(*LifecycleManager)

// WithClock sets the clock used for transition timestamps.
func WithClock(now func() time.Time) LifecycleOption {
	return func(m *LifecycleManager) { m.now = now }
}

// WithIDGenerator replaces the uuid generator for new recommendations.
func WithIDGenerator(gen func() string) LifecycleOption {
	return func(m *LifecycleManager) { m.newID = gen }
}

// LifecycleManager creates recommendations from scan candidates and moves
// them through ACTIVE, BROKEN, ARCHIVED and REPLACED. Writes to one
// recommendation are serialized in process and version-checked in the store.
type LifecycleManager struct {
	cfg     LifecycleConfig
	store   domrepo.RecommendationStore
	prices  domrepo.PriceHistoryProvider
	events  domrepo.EventPublisher
	metrics domrepo.Metrics
	engine  *indicators.Engine
	locks   *keyLock
	log     *logger.Logger
	now     func() time.Time
	newID   func() string
}

// NewLifecycleManager validates cfg and builds a manager over store.
func NewLifecycleManager(cfg LifecycleConfig, store domrepo.RecommendationStore, prices domrepo.PriceHistoryProvider, events domrepo.EventPublisher, log *logger.Logger, opts ...LifecycleOption) (*LifecycleManager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNop()
	}
	m := &LifecycleManager{
		cfg:    cfg,
		store:  store,
		prices: prices,
		events: events,
		engine: indicators.NewEngine(indicators.WithMinBars(momentumMinBars)),
		locks:  newKeyLock(),
		log:    log.With(logger.String("component", "lifecycle")),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *LifecycleManager) SetMetrics(mt domrepo.Metrics) { m.metrics = mt }

func (m *LifecycleManager) Config() LifecycleConfig { return m.cfg }

// List returns stored recommendations matching f, newest first.
func (m *LifecycleManager) List(ctx context.Context, f domrepo.RecommendationFilter) ([]*models.Recommendation, error) {
	return m.store.List(ctx, f)
}

func (m *LifecycleManager) Get(ctx context.Context, id string) (*models.Recommendation, error) {
	return m.store.Get(ctx, id)
}

// Apply turns scan candidates into recommendations for one strategy.
// A failing candidate is logged and skipped; the rest still apply.
func (m *LifecycleManager) Apply(ctx context.Context, date time.Time, candidates []models.ScanCandidate, strategy models.Horizon) (models.ApplyReport, error) {
	report := models.ApplyReport{Strategy: strategy}
	if _, ok := m.cfg.Strategies[strategy]; !ok {
		return report, fmt.Errorf("%w: unknown strategy %q", models.ErrConfiguration, strategy)
	}
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res, err := m.applyOne(ctx, date, c, strategy)
		if err != nil {
			m.log.Error("recommendation apply failed",
				logger.String("symbol", c.Symbol), logger.String("strategy", string(strategy)), logger.Error(err))
			m.recordError(err)
			report.Skipped = append(report.Skipped, c.Symbol)
			continue
		}
		switch res.kind {
		case models.EventCreated:
			report.Created = append(report.Created, res.id)
		case models.EventReinforced:
			report.Reinforced = append(report.Reinforced, res.id)
		case models.EventReplaced:
			report.Replaced = append(report.Replaced, res.replaced)
			report.Created = append(report.Created, res.id)
		case models.EventArchived:
			report.Archived = append(report.Archived, res.replaced)
			report.Created = append(report.Created, res.id)
		}
	}
	m.log.Info("candidates applied",
		logger.Date("date", date),
		logger.String("strategy", string(strategy)),
		logger.Int("created", len(report.Created)),
		logger.Int("reinforced", len(report.Reinforced)),
		logger.Int("replaced", len(report.Replaced)),
		logger.Int("archived", len(report.Archived)),
		logger.Int("skipped", len(report.Skipped)),
	)
	return report, nil
}

type applyResult struct {
	kind     models.EventType
	id       string
	replaced string
}

func (m *LifecycleManager) applyOne(ctx context.Context, date time.Time, c models.ScanCandidate, strategy models.Horizon) (applyResult, error) {
	unlock := m.locks.Lock("active:" + c.Symbol + ":" + string(strategy))
	defer unlock()

	active, err := m.store.LoadActive(ctx, c.Symbol, strategy)
	if err != nil {
		return applyResult{}, err
	}
	if len(active) > 1 {
		return applyResult{}, fmt.Errorf("%w: %d ACTIVE recommendations for %s/%s", models.ErrInvariantViolation, len(active), c.Symbol, strategy)
	}

	anchor, err := m.anchor(ctx, c.Symbol, date)
	if err != nil {
		return applyResult{}, err
	}
	score := c.Scores.For(strategy).Score
	detail := models.DetailFor(strategy, c)
	now := m.now()

	if len(active) == 1 {
		prior := active[0]
		unlockPrior := m.locks.Lock(prior.ID)
		defer unlockPrior()

		if !models.TradingDay(anchor.Date).After(prior.AnchorDate) {
			if err := prior.Reinforce(score, detail); err != nil {
				return applyResult{}, err
			}
			if err := m.store.Upsert(ctx, prior); err != nil {
				return applyResult{}, err
			}
			m.publish(ctx, event(models.EventReinforced, prior, models.StatusActive, now))
			return applyResult{kind: models.EventReinforced, id: prior.ID}, nil
		}

		next, err := m.newRecommendation(c, strategy, anchor, score, detail, now)
		if err != nil {
			return applyResult{}, err
		}
		res, err := m.supersede(prior, next, anchor.Close, strategy, now)
		if err != nil {
			return applyResult{}, err
		}
		if err := m.store.ReplaceActive(ctx, prior, models.StatusActive, next); err != nil {
			return applyResult{}, err
		}
		m.transitioned(ctx, prior, models.StatusActive, now)
		m.publish(ctx, event(models.EventCreated, next, "", now))
		return res, nil
	}

	next, err := m.newRecommendation(c, strategy, anchor, score, detail, now)
	if err != nil {
		return applyResult{}, err
	}
	if err := m.store.Upsert(ctx, next); err != nil {
		return applyResult{}, err
	}
	m.publish(ctx, event(models.EventCreated, next, "", now))
	return applyResult{kind: models.EventCreated, id: next.ID}, nil
}

// supersede retires prior in favour of next at price. A prior at or below
// its stop loss archives as STOP_LOSS_MOMENTUM rather than REPLACED.
func (m *LifecycleManager) supersede(prior, next *models.Recommendation, price float64, strategy models.Horizon, now time.Time) (applyResult, error) {
	ret := prior.Track(price, now)
	if ret <= m.cfg.Strategies[strategy].StopLossPct {
		if err := prior.Retire(models.ReasonStopLossMomentum, now, price, m.cfg.PhaseBandPct); err != nil {
			return applyResult{}, err
		}
		return applyResult{kind: models.EventArchived, id: next.ID, replaced: prior.ID}, nil
	}
	if err := prior.Replace(next.ID, now, price, m.cfg.PhaseBandPct); err != nil {
		return applyResult{}, err
	}
	return applyResult{kind: models.EventReplaced, id: next.ID, replaced: prior.ID}, nil
}

// anchor is the latest close on or before date.
func (m *LifecycleManager) anchor(ctx context.Context, symbol string, date time.Time) (models.Candle, error) {
	series, err := m.prices.GetOHLCV(ctx, symbol, 1, date)
	if err != nil {
		m.miss("price")
		return models.Candle{}, fmt.Errorf("%w: anchor close for %s: %v", models.ErrUpstreamDataUnavailable, symbol, err)
	}
	last, ok := models.LastOnOrBefore(series, date)
	if !ok || last.Close <= 0 {
		m.miss("price")
		return models.Candle{}, fmt.Errorf("%w: no close for %s on or before %s", models.ErrUpstreamDataUnavailable, symbol, date.Format(util.DateLayout))
	}
	return last, nil
}

func (m *LifecycleManager) newRecommendation(c models.ScanCandidate, strategy models.Horizon, anchor models.Candle, score float64, detail models.RecommendationDetail, now time.Time) (*models.Recommendation, error) {
	return models.NewRecommendation(models.NewRecommendationParams{
		ID:          m.newID(),
		Symbol:      c.Symbol,
		Name:        c.Name,
		Strategy:    strategy,
		AnchorDate:  anchor.Date,
		AnchorClose: anchor.Close,
		Score:       score,
		Detail:      detail,
		Now:         now,
	})
}

type evalOutcome int

const (
	outcomeUnchanged evalOutcome = iota
	outcomeBroken
	outcomeArchived
	outcomeMissed
	outcomeConflict
	outcomeFailed
)

// Evaluate advances every ACTIVE and BROKEN recommendation one cycle.
func (m *LifecycleManager) Evaluate(ctx context.Context, date time.Time) (models.EvaluationReport, error) {
	report := models.EvaluationReport{Date: models.TradingDay(date)}
	open, err := m.store.ListOpen(ctx)
	if err != nil {
		return report, err
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Workers)
	for _, rec := range open {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out := m.evaluateOne(gctx, rec.ID, date)
			mu.Lock()
			defer mu.Unlock()
			report.Evaluated++
			switch out {
			case outcomeUnchanged:
				report.Unchanged++
			case outcomeBroken:
				report.Broken = append(report.Broken, rec.ID)
			case outcomeArchived:
				report.Archived = append(report.Archived, rec.ID)
			case outcomeMissed:
				report.Missed = append(report.Missed, rec.ID)
			case outcomeConflict:
				report.Conflicts = append(report.Conflicts, rec.ID)
			default:
				report.Failed = append(report.Failed, rec.ID)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	for _, ids := range [][]string{report.Broken, report.Archived, report.Missed, report.Conflicts, report.Failed} {
		sort.Strings(ids)
	}

	m.log.Info("recommendations evaluated",
		logger.Date("date", date),
		logger.Int("evaluated", report.Evaluated),
		logger.Int("unchanged", report.Unchanged),
		logger.Int("broken", len(report.Broken)),
		logger.Int("archived", len(report.Archived)),
		logger.Int("missed", len(report.Missed)),
		logger.Int("conflicts", len(report.Conflicts)),
	)
	return report, nil
}

func (m *LifecycleManager) evaluateOne(ctx context.Context, id string, date time.Time) evalOutcome {
	unlock := m.locks.Lock(id)
	defer unlock()

	rec, err := m.store.Get(ctx, id)
	if err != nil {
		m.log.Error("recommendation reload failed", logger.String("id", id), logger.Error(err))
		return outcomeFailed
	}
	if !rec.Status().Open() {
		return outcomeUnchanged
	}
	st := m.cfg.Strategies[rec.Strategy]
	log := m.log.With(logger.String("id", rec.ID), logger.String("symbol", rec.Symbol), logger.String("strategy", string(rec.Strategy)))

	count := m.cfg.HistoryBars
	if st.TTLDays+2 > count {
		count = st.TTLDays + 2
	}
	series, err := m.prices.GetOHLCV(ctx, rec.Symbol, count, date)
	if err != nil {
		log.Warn("current price unavailable, recommendation left unchanged", logger.Date("date", date), logger.Error(err))
		m.miss("price")
		return outcomeMissed
	}
	last, ok := currentClose(series, date)
	if !ok {
		log.Warn("no recent close, recommendation left unchanged",
			logger.Date("date", date), logger.Date("last_bar", last.Date))
		m.miss("price")
		return outcomeMissed
	}

	now := m.now()
	from := rec.Status()
	ret := rec.Track(last.Close, now)
	mom := momentumOf(m.engine.Compute(series, nil), st)
	elapsed := sessionsSince(series, rec.AnchorDate, date)
	to, reason := decide(from, ret, elapsed, mom, st)

	switch to {
	case models.StatusArchived:
		err = rec.Retire(reason, now, last.Close, m.cfg.PhaseBandPct)
	case models.StatusBroken:
		err = rec.MarkBroken(now, last.Close)
	default:
		if err := m.store.Upsert(ctx, rec); err != nil {
			return m.writeFailed(log, err)
		}
		log.Debug("recommendation tracked", logger.Float64("return_pct", ret), logger.Int("sessions", elapsed))
		return outcomeUnchanged
	}
	if err != nil {
		log.Error("transition refused", logger.String("to", string(to)), logger.Error(err))
		m.recordError(err)
		return outcomeFailed
	}
	if err := m.store.Transition(ctx, rec, from); err != nil {
		return m.writeFailed(log, err)
	}
	m.transitioned(ctx, rec, from, now)
	log.Info("recommendation transitioned",
		logger.String("from", string(from)),
		logger.String("to", string(to)),
		logger.String("reason", string(reason)),
		logger.Float64("return_pct", ret),
		logger.Int("sessions", elapsed),
	)
	if to == models.StatusArchived {
		return outcomeArchived
	}
	return outcomeBroken
}

func (m *LifecycleManager) writeFailed(log *logger.Logger, err error) evalOutcome {
	m.recordError(err)
	if errors.Is(err, models.ErrStaleVersion) {
		log.Warn("concurrent update detected, retry next cycle", logger.Error(err))
		return outcomeConflict
	}
	log.Error("recommendation write failed", logger.Error(err))
	return outcomeFailed
}

// currentClose is the last bar of series when it falls on date or on the
// trading day before it. An older bar means the feed has stalled.
func currentClose(series []models.Candle, date time.Time) (models.Candle, bool) {
	last, ok := models.LastOnOrBefore(series, date)
	if !ok || last.Close <= 0 {
		return last, false
	}
	oldest := util.PrevTradingDay(util.PrevTradingDay(date).AddDate(0, 0, -1))
	return last, !models.TradingDay(last.Date).Before(oldest)
}

type momentum struct {
	Recovered bool
	Inverted  bool
}

// momentumOf reads the exit signals from the latest bars. An insufficient
// snapshot reports neither.
func momentumOf(snap *models.IndicatorSnapshot, st StrategyConfig) momentum {
	if snap == nil || !snap.Sufficient {
		return momentum{}
	}
	hist := snap.Last(snap.MACDHist)
	closeNow := snap.Last(snap.Close)
	return momentum{
		Recovered: indicators.Rising(snap.Close) &&
			above(hist, 0) &&
			indicators.Rising(snap.MACDHist) &&
			above(snap.Last(snap.RSI), st.MomentumRSI),
		Inverted: above(0, hist) &&
			!indicators.Rising(snap.MACDHist) &&
			above(snap.Last(snap.EMA20), closeNow),
	}
}

// decide applies the exit rules in priority order. A return at or below
// the stop loss always archives as STOP_LOSS_MOMENTUM, so the recorded
// reason agrees with the frozen return.
func decide(status models.Status, ret float64, elapsed int, mom momentum, st StrategyConfig) (models.Status, models.ArchiveReason) {
	stop := ret <= st.StopLossPct
	// a BROKEN recommendation has already used its one recovery
	recovered := mom.Recovered && status == models.StatusActive
	switch {
	case stop && !recovered:
		return models.StatusArchived, models.ReasonStopLossMomentum
	case elapsed >= st.TTLDays:
		if stop {
			return models.StatusArchived, models.ReasonStopLossMomentum
		}
		return models.StatusArchived, models.ReasonTTLExpired
	case status == models.StatusActive && (stop || mom.Inverted):
		return models.StatusBroken, ""
	}
	return status, ""
}

// sessionsSince counts stored sessions after the anchor. When the window
// does not reach back to the anchor it falls back to counting weekdays.
func sessionsSince(series []models.Candle, anchor, date time.Time) int {
	if len(series) == 0 || models.TradingDay(series[0].Date).After(models.TradingDay(anchor)) {
		return util.TradingDaysBetween(anchor, date)
	}
	return models.BarsAfter(series, anchor, date)
}

func event(t models.EventType, r *models.Recommendation, from models.Status, at time.Time) models.LifecycleEvent {
	ev := models.LifecycleEvent{
		Type:             t,
		RecommendationID: r.ID,
		Symbol:           r.Symbol,
		Strategy:         r.Strategy,
		From:             from,
		To:               r.Status(),
		ReturnPct:        r.LastReturnPct,
		ReplacedBy:       r.ReplacedBy(),
		At:               at,
	}
	if a, ok := r.Archived(); ok {
		ev.Reason = a.Reason
		ev.ReturnPct = a.ReturnPct
	}
	if b, ok := r.Broken(); ok && t == models.EventBroken {
		ev.ReturnPct = b.ReturnPct
	}
	return ev
}

func (m *LifecycleManager) transitioned(ctx context.Context, r *models.Recommendation, from models.Status, at time.Time) {
	var t models.EventType
	switch r.Status() {
	case models.StatusBroken:
		t = models.EventBroken
	case models.StatusReplaced:
		t = models.EventReplaced
	default:
		t = models.EventArchived
	}
	ev := event(t, r, from, at)
	if m.metrics != nil {
		m.metrics.RecordTransition(from, r.Status(), ev.Reason)
	}
	m.publish(ctx, ev)
}

func (m *LifecycleManager) publish(ctx context.Context, ev models.LifecycleEvent) {
	if m.events == nil {
		return
	}
	if err := m.events.PublishLifecycle(ctx, ev); err != nil {
		m.log.Warn("lifecycle event publish failed",
			logger.String("id", ev.RecommendationID), logger.String("type", string(ev.Type)), logger.Error(err))
		if m.metrics != nil {
			m.metrics.RecordError("event_publish")
		}
	}
}

func (m *LifecycleManager) miss(kind string) {
	if m.metrics != nil {
		m.metrics.RecordUpstreamMiss(kind)
	}
}

func (m *LifecycleManager) recordError(err error) {
	if m.metrics == nil {
		return
	}
	switch {
	case errors.Is(err, models.ErrStaleVersion):
		m.metrics.RecordError("stale_version")
	case errors.Is(err, models.ErrInvariantViolation):
		m.metrics.RecordError("invariant")
	case errors.Is(err, models.ErrUpstreamDataUnavailable):
		m.metrics.RecordError("upstream")
	default:
		m.metrics.RecordError("lifecycle")
	}
}
