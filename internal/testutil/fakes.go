package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"FinScan/internal/domain/models"
)

// Prices is an in-memory PriceHistoryProvider.
type Prices struct {
	mu     sync.RWMutex
	series map[string][]models.Candle
	fail   map[string]error
	Calls  atomic.Int64
}

func NewPrices() *Prices {
	return &Prices{series: map[string][]models.Candle{}, fail: map[string]error{}}
}

func (p *Prices) Add(symbol string, series []models.Candle) *Prices {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.series[symbol] = series
	return p
}

func (p *Prices) Fail(symbol string, err error) *Prices {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail[symbol] = err
	return p
}

func (p *Prices) GetOHLCV(_ context.Context, symbol string, count int, asOf time.Time) ([]models.Candle, error) {
	p.Calls.Add(1)
	p.mu.RLock()
	defer p.mu.RUnlock()
	if err, ok := p.fail[symbol]; ok {
		return nil, err
	}
	all, ok := p.series[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: no series for %s", models.ErrUpstreamDataUnavailable, symbol)
	}
	day := models.TradingDay(asOf)
	end := 0
	for end < len(all) && !models.TradingDay(all[end].Date).After(day) {
		end++
	}
	start := end - count
	if start < 0 {
		start = 0
	}
	return append([]models.Candle(nil), all[start:end]...), nil
}

// Foreign is a ForeignSnapshotProvider returning a fixed snapshot or error.
type Foreign struct {
	Snap  models.ForeignSnapshot
	Err   error
	Calls atomic.Int64
}

func (f *Foreign) GetForeignSnapshot(_ context.Context, date time.Time) (models.ForeignSnapshot, error) {
	f.Calls.Add(1)
	if f.Err != nil {
		return models.ForeignSnapshot{}, f.Err
	}
	s := f.Snap
	s.Date = date
	return s, nil
}

// Universe is a fixed UniverseProvider.
type Universe []models.Symbol

func (u Universe) GetUniverse(context.Context, time.Time) ([]models.Symbol, error) {
	return append([]models.Symbol(nil), u...), nil
}

// Events collects published lifecycle events.
type Events struct {
	mu     sync.Mutex
	Events []models.LifecycleEvent
}

func (e *Events) PublishLifecycle(_ context.Context, ev models.LifecycleEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Events = append(e.Events, ev)
	return nil
}

func (e *Events) Close() error { return nil }

func (e *Events) Types() []models.EventType {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.EventType, len(e.Events))
	for i, ev := range e.Events {
		out[i] = ev.Type
	}
	return out
}

// Bars is an in-memory BarStorage.
type Bars struct {
	mu   sync.Mutex
	Bars []models.Candle
	Err  error
}

func (b *Bars) StoreBars(_ context.Context, bars []models.Candle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return b.Err
	}
	b.Bars = append(b.Bars, bars...)
	return nil
}

// Metrics counts what the code under test records.
type Metrics struct {
	mu          sync.Mutex
	Errors      map[string]int
	Misses      map[string]int
	Transitions map[models.Status]int
	Scans       int
	Regimes     int
}

func NewMetrics() *Metrics {
	return &Metrics{Errors: map[string]int{}, Misses: map[string]int{}, Transitions: map[models.Status]int{}}
}

func (m *Metrics) RecordScan(string, models.Regime, int, bool, int, float64) {
	m.mu.Lock()
	m.Scans++
	m.mu.Unlock()
}

func (m *Metrics) RecordStepCount(int, int) {}

func (m *Metrics) RecordRegime(models.MarketRegimeSnapshot) {
	m.mu.Lock()
	m.Regimes++
	m.mu.Unlock()
}

func (m *Metrics) RecordTransition(_, to models.Status, _ models.ArchiveReason) {
	m.mu.Lock()
	m.Transitions[to]++
	m.mu.Unlock()
}

func (m *Metrics) RecordUpstreamMiss(kind string) {
	m.mu.Lock()
	m.Misses[kind]++
	m.mu.Unlock()
}

func (m *Metrics) RecordError(kind string) {
	m.mu.Lock()
	m.Errors[kind]++
	m.mu.Unlock()
}

func (m *Metrics) RecordLatency(string, float64) {}

// ErrorCount is safe to call while recorders run.
func (m *Metrics) ErrorCount(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Errors[kind]
}
