package models

import "time"

type Regime string

const (
	RegimeBull    Regime = "bull"
	RegimeNeutral Regime = "neutral"
	RegimeBear    Regime = "bear"
	RegimeCrash   Regime = "crash"
)

func (r Regime) Valid() bool {
	switch r {
	case RegimeBull, RegimeNeutral, RegimeBear, RegimeCrash:
		return true
	}
	return false
}

type Confidence string

const (
	ConfidenceNormal   Confidence = "normal"
	ConfidenceDegraded Confidence = "degraded"
)

// ForeignSnapshot is the leading-index futures delta (percent) and
// volatility index level for one date.
type ForeignSnapshot struct {
	Date            time.Time `json:"date"`
	TrendDelta      float64   `json:"trend_delta"`
	VolatilityLevel float64   `json:"volatility_level"`
	Valid           bool      `json:"valid"`
}

// DomesticSignal holds the proxy index move for one date, all in percent.
type DomesticSignal struct {
	Return       float64
	Volatility   float64
	IntradayDrop float64
}

// MarketRegimeSnapshot is the classification for one trading date.
type MarketRegimeSnapshot struct {
	Date               time.Time  `json:"date"`
	DomesticTrendScore float64    `json:"domestic_trend_score"`
	DomesticRiskScore  float64    `json:"domestic_risk_score"`
	ForeignTrendScore  float64    `json:"foreign_trend_score"`
	ForeignRiskScore   float64    `json:"foreign_risk_score"`
	FinalRegime        Regime     `json:"final_regime"`
	FinalTrendScore    float64    `json:"final_trend_score"`
	FinalRiskScore     float64    `json:"final_risk_score"`
	FinalScore         float64    `json:"final_score"`
	Confidence         Confidence `json:"confidence"`
	DomesticReturn     float64    `json:"domestic_return"`
	DomesticVolatility float64    `json:"domestic_volatility"`
	IntradayDrop       float64    `json:"intraday_drop"`
}

func (s MarketRegimeSnapshot) Degraded() bool {
	return s.Confidence == ConfidenceDegraded
}
