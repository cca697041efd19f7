// Package testutil builds deterministic price series for tests.
package testutil

import (
	"math"
	"time"

	"FinScan/internal/domain/models"
)

// Weekdays returns n consecutive Monday..Friday dates starting at start.
func Weekdays(start time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	d := models.TradingDay(start)
	for len(out) < n {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			out = append(out, d)
		}
		d = d.AddDate(0, 0, 1)
	}
	return out
}

// Trend builds n daily candles compounding dailyPct per bar with a small
// oscillation so that both up and down moves occur.
func Trend(symbol string, start time.Time, n int, startPrice, dailyPct float64) []models.Candle {
	dates := Weekdays(start, n)
	out := make([]models.Candle, n)
	prev := startPrice
	for i, d := range dates {
		base := startPrice * math.Pow(1+dailyPct/100, float64(i))
		c := base * (1 + 0.004*math.Sin(float64(i)))
		o := prev * 1.001
		out[i] = models.Candle{
			Date:   d,
			Symbol: symbol,
			Open:   o,
			High:   math.Max(o, c) * 1.005,
			Low:    math.Min(o, c) * 0.995,
			Close:  c,
			Volume: 1_000_000 + float64(i)*1_000,
		}
		prev = c
	}
	return out
}

// WithLast overwrites the final candle's close (and adjusts high/low).
func WithLast(series []models.Candle, close float64) []models.Candle {
	out := append([]models.Candle(nil), series...)
	last := &out[len(out)-1]
	last.Close = close
	last.High = math.Max(last.High, close)
	last.Low = math.Min(last.Low, close)
	return out
}

// Day is a compact date constructor.
func Day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Path builds one candle per close on consecutive weekdays. Each bar
// opens at the previous close.
func Path(symbol string, start time.Time, closes []float64) []models.Candle {
	dates := Weekdays(start, len(closes))
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		o := c
		if i > 0 {
			o = closes[i-1]
		}
		out[i] = models.Candle{
			Date:   dates[i],
			Symbol: symbol,
			Open:   o,
			High:   math.Max(o, c) * 1.003,
			Low:    math.Min(o, c) * 0.997,
			Close:  c,
			Volume: 1_000_000,
		}
	}
	return out
}

// Compound returns n closes starting at from and growing pct percent per bar.
func Compound(n int, from, pct float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = from * math.Pow(1+pct/100, float64(i))
	}
	return out
}
