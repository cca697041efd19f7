package models

import (
	"fmt"
	"time"
)

// Horizon is a holding-period bucket. Recommendations use it as their strategy.
type Horizon string

const (
	HorizonSwing    Horizon = "swing"
	HorizonPosition Horizon = "position"
	HorizonLongTerm Horizon = "longterm"
)

// Horizons lists every horizon in scoring order.
var Horizons = []Horizon{HorizonSwing, HorizonPosition, HorizonLongTerm}

func ParseHorizon(s string) (Horizon, error) {
	switch h := Horizon(s); h {
	case HorizonSwing, HorizonPosition, HorizonLongTerm:
		return h, nil
	}
	return "", fmt.Errorf("%w: unknown strategy %q", ErrConfiguration, s)
}

// HorizonDetail records which scoring criteria a symbol met.
type HorizonDetail struct {
	MAAligned   bool    `json:"ma_aligned"`
	MACDRising  bool    `json:"macd_rising"`
	TrendUp     bool    `json:"trend_up"`
	RSUp        bool    `json:"rs_up"`
	VolInBand   bool    `json:"vol_in_band"`
	Slope       float64 `json:"slope"`
	RSSlope     float64 `json:"rs_slope"`
	ATRPct      float64 `json:"atr_pct"`
	RSI         float64 `json:"rsi"`
	RecentMove  float64 `json:"recent_move"`
	LookbackBar int     `json:"lookback_bars"`
}

type HorizonScore struct {
	Score  float64       `json:"score"`
	Risk   float64       `json:"risk"`
	Detail HorizonDetail `json:"detail"`
}

type HorizonScores struct {
	Swing    HorizonScore `json:"swing"`
	Position HorizonScore `json:"position"`
	LongTerm HorizonScore `json:"longterm"`
}

func (h HorizonScores) For(hz Horizon) HorizonScore {
	switch hz {
	case HorizonPosition:
		return h.Position
	case HorizonLongTerm:
		return h.LongTerm
	default:
		return h.Swing
	}
}

func (h *HorizonScores) Set(hz Horizon, s HorizonScore) {
	switch hz {
	case HorizonPosition:
		h.Position = s
	case HorizonLongTerm:
		h.LongTerm = s
	default:
		h.Swing = s
	}
}

// EffectiveScores are horizon scores net of the regime-weighted risk penalty.
type EffectiveScores struct {
	Swing    float64 `json:"swing"`
	Position float64 `json:"position"`
	LongTerm float64 `json:"longterm"`
}

func (e EffectiveScores) For(hz Horizon) float64 {
	switch hz {
	case HorizonPosition:
		return e.Position
	case HorizonLongTerm:
		return e.LongTerm
	default:
		return e.Swing
	}
}

func (e EffectiveScores) Best() (Horizon, float64) {
	best, score := HorizonSwing, e.Swing
	if e.Position > score {
		best, score = HorizonPosition, e.Position
	}
	if e.LongTerm > score {
		best, score = HorizonLongTerm, e.LongTerm
	}
	return best, score
}

// ScanCandidate is one symbol evaluated during a scan run.
type ScanCandidate struct {
	Symbol       string          `json:"symbol"`
	Name         string          `json:"name"`
	Date         time.Time       `json:"date"`
	Close        float64         `json:"close"`
	SignalMatch  bool            `json:"signal_match"`
	Signals      int             `json:"signals"`
	GapPct       float64         `json:"gap_pct"`
	ExtensionPct float64         `json:"extension_pct"`
	RelStrength  float64         `json:"rel_strength"`
	Scores       HorizonScores   `json:"horizon_scores"`
	RiskScore    float64         `json:"risk_score"`
	Effective    EffectiveScores `json:"effective"`
	Score        float64         `json:"score"`
	Step         int             `json:"step"`
}

// ScanResult is what a scan trigger returns.
type ScanResult struct {
	Date       time.Time            `json:"date"`
	Regime     MarketRegimeSnapshot `json:"regime"`
	Version    string               `json:"version"`
	Step       int                  `json:"step"`
	Fallback   bool                 `json:"fallback"`
	StepCounts []int                `json:"step_counts"`
	Evaluated  int                  `json:"evaluated"`
	Skipped    int                  `json:"skipped"`
	Candidates []ScanCandidate      `json:"candidates"`
	Applied    *ApplyReport         `json:"applied,omitempty"`
}
