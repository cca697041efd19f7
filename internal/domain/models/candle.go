package models

import (
	"strings"
	"time"
)

// Candle is one daily OHLCV bar.
type Candle struct {
	Date   time.Time `json:"date"`
	Symbol string    `json:"symbol"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Symbol is one member of the scan universe.
type Symbol struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Market string `json:"market"`
}

// NormalizeSymbol upper-cases and trims a ticker.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// TradingDay truncates t to midnight UTC so dates compare by calendar day.
func TradingDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Closes extracts the close column of a series.
func Closes(series []Candle) []float64 {
	out := make([]float64, len(series))
	for i, c := range series {
		out[i] = c.Close
	}
	return out
}

// LastOnOrBefore returns the latest candle dated on or before day.
func LastOnOrBefore(series []Candle, day time.Time) (Candle, bool) {
	day = TradingDay(day)
	for i := len(series) - 1; i >= 0; i-- {
		if !TradingDay(series[i].Date).After(day) {
			return series[i], true
		}
	}
	return Candle{}, false
}

// BarsAfter counts candles strictly after from and on or before to.
func BarsAfter(series []Candle, from, to time.Time) int {
	from, to = TradingDay(from), TradingDay(to)
	n := 0
	for _, c := range series {
		d := TradingDay(c.Date)
		if d.After(from) && !d.After(to) {
			n++
		}
	}
	return n
}
