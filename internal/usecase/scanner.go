package usecase

import (
	"fmt"

	"FinScan/internal/domain/models"
	domrepo "FinScan/internal/domain/repository"
	"FinScan/internal/services/indicators"
	"FinScan/internal/services/scoring"
	"FinScan/pkg/logger"
)

const (
	ScannerV1 = "v1"
	ScannerV2 = "v2"
)

// Signal is one binary entry condition.
type Signal struct {
	Name string
	Test func(s *models.IndicatorSnapshot) bool
}

// SignalSet is the list of conditions a scanner version counts.
type SignalSet struct {
	Name    string
	Signals []Signal
}

func (ss SignalSet) Count(snap *models.IndicatorSnapshot) int {
	n := 0
	for _, sig := range ss.Signals {
		if sig.Test(snap) {
			n++
		}
	}
	return n
}

// Matched lists the names of the conditions that hold.
func (ss SignalSet) Matched(snap *models.IndicatorSnapshot) []string {
	var out []string
	for _, sig := range ss.Signals {
		if sig.Test(snap) {
			out = append(out, sig.Name)
		}
	}
	return out
}

func above(a, b float64) bool {
	return indicators.Valid(a) && indicators.Valid(b) && a > b
}

func between(v, lo, hi float64) bool {
	return indicators.Valid(v) && v >= lo && v <= hi
}

// MomentumSignals is the v1 short-term momentum set.
func MomentumSignals() SignalSet {
	return SignalSet{
		Name: "momentum",
		Signals: []Signal{
			{"close_above_ema20", func(s *models.IndicatorSnapshot) bool {
				return above(s.Last(s.Close), s.Last(s.EMA20))
			}},
			{"ema5_above_ema20", func(s *models.IndicatorSnapshot) bool {
				return above(s.Last(s.EMA5), s.Last(s.EMA20))
			}},
			{"macd_hist_positive", func(s *models.IndicatorSnapshot) bool {
				return above(s.Last(s.MACDHist), 0)
			}},
			{"macd_hist_rising", func(s *models.IndicatorSnapshot) bool {
				return indicators.Rising(s.MACDHist)
			}},
			{"rsi_in_range", func(s *models.IndicatorSnapshot) bool {
				return between(s.Last(s.RSI), 40, 70)
			}},
			{"rs_slope_up", func(s *models.IndicatorSnapshot) bool {
				return above(indicators.Slope(s.Tail(s.RelStrength, 5)), 0)
			}},
		},
	}
}

// TrendSignals is the v2 trend-following set.
func TrendSignals() SignalSet {
	return SignalSet{
		Name: "trend",
		Signals: []Signal{
			{"ema20_above_ema60", func(s *models.IndicatorSnapshot) bool {
				return above(s.Last(s.EMA20), s.Last(s.EMA60))
			}},
			{"close_above_ema60", func(s *models.IndicatorSnapshot) bool {
				return above(s.Last(s.Close), s.Last(s.EMA60))
			}},
			{"obv_rising", func(s *models.IndicatorSnapshot) bool {
				return above(s.Last(s.OBV), s.At(s.OBV, 5))
			}},
			{"macd_above_signal", func(s *models.IndicatorSnapshot) bool {
				return above(s.Last(s.MACD), s.Last(s.MACDSignal))
			}},
			{"rs_above_month_ago", func(s *models.IndicatorSnapshot) bool {
				return above(s.Last(s.RelStrength), s.At(s.RelStrength, 20))
			}},
			{"rsi_in_range", func(s *models.IndicatorSnapshot) bool {
				return between(s.Last(s.RSI), 45, 75)
			}},
		},
	}
}

// SignalsFor resolves a configured scanner version.
func SignalsFor(version string) (SignalSet, error) {
	switch version {
	case ScannerV1, "":
		return MomentumSignals(), nil
	case ScannerV2:
		return TrendSignals(), nil
	}
	return SignalSet{}, fmt.Errorf("%w: unknown scan version %q", models.ErrConfiguration, version)
}

// NewScanner builds the scanner variant selected by version.
func NewScanner(version string, cfg ScanConfig, prices domrepo.PriceHistoryProvider, log *logger.Logger) (*ScanController, error) {
	signals, err := SignalsFor(version)
	if err != nil {
		return nil, err
	}
	if version == "" {
		version = ScannerV1
	}
	return NewScanController(version, cfg, prices, scoring.Default(), signals, log)
}
