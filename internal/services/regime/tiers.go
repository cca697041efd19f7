package regime

import (
	"fmt"
	"time"

	"FinScan/internal/domain/models"
)

// Tiers are the thresholds (percent, or index points for the volatility
// index) that map raw market moves to integer scores.
type Tiers struct {
	StrongReturnPct float64
	HighReturnPct   float64
	LowReturnPct    float64
	LowVolPct       float64
	HighVolPct      float64

	ForeignHighDeltaPct float64
	ForeignLowDeltaPct  float64
	VixCalm             float64
	VixElevated         float64
	VixExtreme          float64
}

// Params holds the tier thresholds, the blend weights and the regime
// cut-offs of the classifier.
type Params struct {
	Tiers          Tiers
	DomesticWeight float64
	ForeignWeight  float64
	BullThreshold  float64
	BearThreshold  float64
	CrashThreshold float64
	// CrashDropPct is the intraday drop (positive percent) that must be
	// breached together with CrashThreshold.
	CrashDropPct float64
}

// DefaultParams is the reference tuning.
func DefaultParams() Params {
	return Params{
		Tiers: Tiers{
			StrongReturnPct:     2.5,
			HighReturnPct:       1.5,
			LowReturnPct:        0.5,
			LowVolPct:           1.0,
			HighVolPct:          2.5,
			ForeignHighDeltaPct: 1.0,
			ForeignLowDeltaPct:  0.3,
			VixCalm:             15,
			VixElevated:         25,
			VixExtreme:          35,
		},
		DomesticWeight: 0.6,
		ForeignWeight:  0.4,
		BullThreshold:  1.5,
		BearThreshold:  -1.5,
		CrashThreshold: -3.0,
		CrashDropPct:   3.0,
	}
}

// Validate reports ErrConfiguration for inverted tiers or cut-offs.
func (p Params) Validate() error {
	t := p.Tiers
	switch {
	case !(t.LowReturnPct > 0 && t.LowReturnPct < t.HighReturnPct && t.HighReturnPct < t.StrongReturnPct):
		return fmt.Errorf("%w: return tiers must satisfy 0 < low < high < strong", models.ErrConfiguration)
	case !(t.LowVolPct > 0 && t.LowVolPct < t.HighVolPct):
		return fmt.Errorf("%w: volatility band must satisfy 0 < low < high", models.ErrConfiguration)
	case !(t.ForeignLowDeltaPct > 0 && t.ForeignLowDeltaPct < t.ForeignHighDeltaPct):
		return fmt.Errorf("%w: foreign delta tiers must satisfy 0 < low < high", models.ErrConfiguration)
	case !(t.VixCalm < t.VixElevated && t.VixElevated < t.VixExtreme):
		return fmt.Errorf("%w: volatility index tiers must be increasing", models.ErrConfiguration)
	case p.DomesticWeight < 0 || p.ForeignWeight < 0 || p.DomesticWeight+p.ForeignWeight <= 0:
		return fmt.Errorf("%w: regime weights must be non-negative and not both zero", models.ErrConfiguration)
	case !(p.CrashThreshold < p.BearThreshold && p.BearThreshold < p.BullThreshold):
		return fmt.Errorf("%w: thresholds must satisfy crash < bear < bull", models.ErrConfiguration)
	case p.CrashDropPct <= 0:
		return fmt.Errorf("%w: crash drop must be positive", models.ErrConfiguration)
	}
	return nil
}

// ReturnTier scores a domestic daily return.
func (t Tiers) ReturnTier(ret float64) float64 {
	switch {
	case ret > t.StrongReturnPct:
		return 3
	case ret > t.HighReturnPct:
		return 2
	case ret > t.LowReturnPct:
		return 1
	case ret < -t.StrongReturnPct:
		return -3
	case ret < -t.HighReturnPct:
		return -2
	case ret < -t.LowReturnPct:
		return -1
	}
	return 0
}

// VolatilityTier is +1 for a calm session and -1 for a wide one.
func (t Tiers) VolatilityTier(vol float64) float64 {
	switch {
	case vol < t.LowVolPct:
		return 1
	case vol > t.HighVolPct:
		return -1
	}
	return 0
}

func (t Tiers) ForeignTrendTier(delta float64) float64 {
	switch {
	case delta > t.ForeignHighDeltaPct:
		return 2
	case delta > t.ForeignLowDeltaPct:
		return 1
	case delta < -t.ForeignHighDeltaPct:
		return -2
	case delta < -t.ForeignLowDeltaPct:
		return -1
	}
	return 0
}

func (t Tiers) VixTier(level float64) float64 {
	switch {
	case level > t.VixExtreme:
		return -2
	case level > t.VixElevated:
		return -1
	case level < t.VixCalm:
		return 1
	}
	return 0
}

// Combine is the pure classification core. A nil domestic signal yields a
// degraded neutral snapshot; a nil or invalid foreign snapshot contributes
// zero and degrades confidence.
func Combine(date time.Time, dom *models.DomesticSignal, foreign *models.ForeignSnapshot, p Params) models.MarketRegimeSnapshot {
	snap := models.MarketRegimeSnapshot{
		Date:        models.TradingDay(date),
		FinalRegime: models.RegimeNeutral,
		Confidence:  models.ConfidenceNormal,
	}
	if dom == nil {
		snap.Confidence = models.ConfidenceDegraded
		return snap
	}

	snap.DomesticReturn = dom.Return
	snap.DomesticVolatility = dom.Volatility
	snap.IntradayDrop = dom.IntradayDrop
	snap.DomesticTrendScore = p.Tiers.ReturnTier(dom.Return)
	snap.DomesticRiskScore = -p.Tiers.VolatilityTier(dom.Volatility)

	if foreign != nil && foreign.Valid {
		snap.ForeignTrendScore = p.Tiers.ForeignTrendTier(foreign.TrendDelta)
		snap.ForeignRiskScore = -p.Tiers.VixTier(foreign.VolatilityLevel)
	} else {
		snap.Confidence = models.ConfidenceDegraded
	}

	snap.FinalTrendScore = p.DomesticWeight*snap.DomesticTrendScore + p.ForeignWeight*snap.ForeignTrendScore
	snap.FinalRiskScore = p.DomesticWeight*snap.DomesticRiskScore + p.ForeignWeight*snap.ForeignRiskScore
	snap.FinalScore = snap.FinalTrendScore - snap.FinalRiskScore
	snap.FinalRegime = p.label(snap.FinalScore, dom.IntradayDrop)
	return snap
}

// label maps the final score to a regime. Exact boundaries stay neutral.
func (p Params) label(final, intradayDrop float64) models.Regime {
	switch {
	case final <= p.CrashThreshold && intradayDrop <= -p.CrashDropPct:
		return models.RegimeCrash
	case final > p.BullThreshold:
		return models.RegimeBull
	case final < p.BearThreshold:
		return models.RegimeBear
	}
	return models.RegimeNeutral
}
