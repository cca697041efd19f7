package models

import (
	"math"
	"time"
)

// IndicatorSnapshot is a row-aligned extension of an OHLCV series.
// Rows before a column's lookback hold NaN.
type IndicatorSnapshot struct {
	Symbol string
	Dates  []time.Time

	Open   []float64
	High   []float64
	Low    []float64
	Close  []float64
	Volume []float64

	EMA5   []float64
	EMA20  []float64
	EMA60  []float64
	EMA120 []float64
	DEMA20 []float64
	TEMA20 []float64

	RSI     []float64
	RSITema []float64
	RSIDema []float64

	MACD       []float64
	MACDSignal []float64
	MACDHist   []float64

	ATR    []float64
	ATRPct []float64
	OBV    []float64

	// RelStrength is the rolling mean of close / benchmark close.
	RelStrength []float64

	// Sufficient is false when the series is shorter than the engine's minimum.
	Sufficient bool
}

func (s *IndicatorSnapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Close)
}

// At returns col at back bars before the last row, NaN when out of range.
func (s *IndicatorSnapshot) At(col []float64, back int) float64 {
	i := len(col) - 1 - back
	if i < 0 || i >= len(col) {
		return math.NaN()
	}
	return col[i]
}

// Last returns the final value of col, NaN when empty.
func (s *IndicatorSnapshot) Last(col []float64) float64 {
	return s.At(col, 0)
}

// Tail returns the last n values of col (fewer when col is shorter).
func (s *IndicatorSnapshot) Tail(col []float64, n int) []float64 {
	if n >= len(col) {
		return col
	}
	return col[len(col)-n:]
}
