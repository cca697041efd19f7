package indicators

import (
	"math"
	"time"

	talib "github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"

	"FinScan/internal/domain/models"
)

const (
	DefaultMinBars  = 60
	DefaultRSWindow = 20

	rsiPeriod  = 14
	atrPeriod  = 14
	macdFast   = 12
	macdSlow   = 26
	macdSignal = 9
	dxPeriod   = 20
)

// Engine turns an OHLCV series into an IndicatorSnapshot. It holds no
// mutable state and is safe for concurrent use.
type Engine struct {
	minBars  int
	rsWindow int
}

// Option configures an Engine.
type Option func(*Engine)

// WithMinBars sets the shortest series that is computed at all.
func WithMinBars(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.minBars = n
		}
	}
}

// WithRSWindow sets the rolling window of relative strength.
func WithRSWindow(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.rsWindow = n
		}
	}
}

// NewEngine returns an engine with the default windows.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{minBars: DefaultMinBars, rsWindow: DefaultRSWindow}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) MinBars() int { return e.minBars }

// Valid reports whether x is a computed value rather than the NaN sentinel.
func Valid(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// Compute builds the snapshot. benchmark may be nil, in which case the
// relative strength column is all NaN. Short or empty input never panics;
// it yields Sufficient=false with every derived column NaN.
func (e *Engine) Compute(series []models.Candle, benchmark []models.Candle) *models.IndicatorSnapshot {
	n := len(series)
	snap := &models.IndicatorSnapshot{
		Dates:  make([]time.Time, n),
		Open:   make([]float64, n),
		High:   make([]float64, n),
		Low:    make([]float64, n),
		Close:  make([]float64, n),
		Volume: make([]float64, n),
	}
	if n > 0 {
		snap.Symbol = series[0].Symbol
	}
	for i, c := range series {
		snap.Dates[i] = c.Date
		snap.Open[i] = c.Open
		snap.High[i] = c.High
		snap.Low[i] = c.Low
		snap.Close[i] = c.Close
		snap.Volume[i] = c.Volume
	}

	snap.Sufficient = n >= e.minBars && n > 0
	if !snap.Sufficient {
		fillInsufficient(snap, n)
		return snap
	}

	closes := snap.Close
	snap.EMA5 = guarded(n, 5-1, func() []float64 { return talib.Ema(closes, 5) })
	snap.EMA20 = guarded(n, 20-1, func() []float64 { return talib.Ema(closes, 20) })
	snap.EMA60 = guarded(n, 60-1, func() []float64 { return talib.Ema(closes, 60) })
	snap.EMA120 = guarded(n, 120-1, func() []float64 { return talib.Ema(closes, 120) })
	snap.DEMA20 = guarded(n, 2*(dxPeriod-1), func() []float64 { return talib.Dema(closes, dxPeriod) })
	snap.TEMA20 = guarded(n, 3*(dxPeriod-1), func() []float64 { return talib.Tema(closes, dxPeriod) })

	snap.RSI = guarded(n, rsiPeriod, func() []float64 { return talib.Rsi(closes, rsiPeriod) })
	snap.RSITema = smoothedRSI(closes, rsiPeriod, 3*(rsiPeriod-1), talib.Tema)
	snap.RSIDema = smoothedRSI(closes, rsiPeriod, 2*(rsiPeriod-1), talib.Dema)

	macdLookback := (macdSlow - 1) + (macdSignal - 1)
	if n > macdLookback {
		m, s, h := talib.Macd(closes, macdFast, macdSlow, macdSignal)
		snap.MACD = mask(m, macdLookback)
		snap.MACDSignal = mask(s, macdLookback)
		snap.MACDHist = mask(h, macdLookback)
	} else {
		snap.MACD, snap.MACDSignal, snap.MACDHist = nanSlice(n), nanSlice(n), nanSlice(n)
	}

	snap.ATR = guarded(n, atrPeriod, func() []float64 { return talib.Atr(snap.High, snap.Low, closes, atrPeriod) })
	snap.ATRPct = make([]float64, n)
	for i := range snap.ATRPct {
		snap.ATRPct[i] = math.NaN()
		if Valid(snap.ATR[i]) && closes[i] > 0 {
			snap.ATRPct[i] = snap.ATR[i] / closes[i] * 100
		}
	}
	snap.OBV = talib.Obv(closes, snap.Volume)
	snap.RelStrength = relativeStrength(series, benchmark, e.rsWindow)
	return snap
}

func fillInsufficient(snap *models.IndicatorSnapshot, n int) {
	cols := []*[]float64{
		&snap.EMA5, &snap.EMA20, &snap.EMA60, &snap.EMA120, &snap.DEMA20, &snap.TEMA20,
		&snap.RSI, &snap.RSITema, &snap.RSIDema,
		&snap.MACD, &snap.MACDSignal, &snap.MACDHist,
		&snap.ATR, &snap.ATRPct, &snap.OBV, &snap.RelStrength,
	}
	for _, c := range cols {
		*c = nanSlice(n)
	}
}

// guarded runs fn only when the series is longer than lookback and masks
// the warm-up rows, which talib leaves as zeros.
func guarded(n, lookback int, fn func() []float64) []float64 {
	if n <= lookback {
		return nanSlice(n)
	}
	return mask(fn(), lookback)
}

func mask(out []float64, lookback int) []float64 {
	for i := 0; i < lookback && i < len(out); i++ {
		out[i] = math.NaN()
	}
	return out
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// smoothedRSI smooths the up and down move series with the given moving
// average and returns 100 - 100/(1+up/down).
func smoothedRSI(closes []float64, period, lookback int, smooth func([]float64, int) []float64) []float64 {
	n := len(closes)
	out := nanSlice(n)
	if n-1 <= lookback {
		return out
	}
	up := make([]float64, n-1)
	down := make([]float64, n-1)
	for i := 1; i < n; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			up[i-1] = d
		} else {
			down[i-1] = -d
		}
	}
	su := smooth(up, period)
	sd := smooth(down, period)
	for i := lookback; i < n-1; i++ {
		u, d := math.Max(su[i], 0), math.Max(sd[i], 0)
		switch {
		case d == 0 && u == 0:
			out[i+1] = 50
		case d == 0:
			out[i+1] = 100
		default:
			out[i+1] = 100 - 100/(1+u/d)
		}
	}
	return out
}

// relativeStrength is the rolling mean of close / benchmark close, aligned
// by calendar date.
func relativeStrength(series, benchmark []models.Candle, window int) []float64 {
	n := len(series)
	out := nanSlice(n)
	if len(benchmark) == 0 || window <= 0 {
		return out
	}
	bench := make(map[time.Time]float64, len(benchmark))
	for _, b := range benchmark {
		bench[models.TradingDay(b.Date)] = b.Close
	}
	ratio := nanSlice(n)
	for i, c := range series {
		if b, ok := bench[models.TradingDay(c.Date)]; ok && b > 0 {
			ratio[i] = c.Close / b
		}
	}
	for i := window - 1; i < n; i++ {
		w := ratio[i-window+1 : i+1]
		ok := true
		for _, v := range w {
			if !Valid(v) {
				ok = false
				break
			}
		}
		if ok {
			out[i] = stat.Mean(w, nil)
		}
	}
	return out
}
