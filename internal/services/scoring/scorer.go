// Package scoring awards 0..10 points per holding horizon from an
// indicator snapshot, plus an independent risk penalty.
package scoring

import (
	"math"

	"FinScan/internal/domain/models"
	domsvc "FinScan/internal/domain/service"
	"FinScan/internal/services/indicators"
)

const (
	MaxScore = 10.0

	pointsMAAligned  = 2
	pointsAboveSlow  = 1
	pointsMACDRising = 2
	pointsTrendUp    = 2
	pointsRSUp       = 2
	pointsVolInBand  = 1

	riskOverheated = 2
	riskOversold   = 1
	riskOutsized   = 2
	riskAbnormal   = 1
)

type Band struct {
	Min, Max float64
}

func (b Band) Contains(v float64) bool {
	return indicators.Valid(v) && v >= b.Min && v <= b.Max
}

// Profile parameterises one horizon.
type Profile struct {
	Horizon  models.Horizon
	Lookback int
	Fast     func(*models.IndicatorSnapshot) []float64
	Slow     func(*models.IndicatorSnapshot) []float64
	// MACDBars is how far back the histogram is compared.
	MACDBars int
	ATRBand  Band
	ATRSafe  Band
	RSIHigh  float64
	RSILow   float64
	MoveBars int
	MoveMax  float64
}

// Scorer is a pure HorizonScorer built from a Profile.
type Scorer struct {
	p Profile
}

// New returns a scorer for p.
func New(p Profile) *Scorer { return &Scorer{p: p} }

func (s *Scorer) Horizon() models.Horizon { return s.p.Horizon }

func (s *Scorer) Profile() Profile { return s.p }

func (s *Scorer) Score(_ string, snap *models.IndicatorSnapshot) models.HorizonScore {
	p := s.p
	var d models.HorizonDetail
	d.LookbackBar = p.Lookback
	if snap == nil || !snap.Sufficient || snap.Len() == 0 {
		return models.HorizonScore{Detail: d}
	}

	closeNow := snap.Last(snap.Close)
	fast, slow := snap.Last(p.Fast(snap)), snap.Last(p.Slow(snap))
	score := 0.0

	if indicators.Valid(fast) && indicators.Valid(slow) && fast > slow {
		d.MAAligned = true
		score += pointsMAAligned
	}
	if indicators.Valid(slow) && closeNow > slow {
		score += pointsAboveSlow
	}

	histNow, histThen := snap.Last(snap.MACDHist), snap.At(snap.MACDHist, p.MACDBars)
	if indicators.Valid(histNow) && indicators.Valid(histThen) && histNow > histThen {
		d.MACDRising = true
		score += pointsMACDRising
	}

	d.Slope = indicators.Slope(snap.Tail(snap.Close, p.Lookback))
	if indicators.Valid(d.Slope) && d.Slope > 0 {
		d.TrendUp = true
		score += pointsTrendUp
	}

	d.RSSlope = indicators.Slope(snap.Tail(snap.RelStrength, p.Lookback))
	if indicators.Valid(d.RSSlope) && d.RSSlope > 0 {
		d.RSUp = true
		score += pointsRSUp
	}

	d.ATRPct = snap.Last(snap.ATRPct)
	if p.ATRBand.Contains(d.ATRPct) {
		d.VolInBand = true
		score += pointsVolInBand
	}

	d.RSI = snap.Last(snap.RSI)
	d.RecentMove = indicators.PctChange(snap.At(snap.Close, p.MoveBars), closeNow)

	return models.HorizonScore{
		Score:  clamp(score, 0, MaxScore),
		Risk:   s.risk(d),
		Detail: sanitize(d),
	}
}

func (s *Scorer) risk(d models.HorizonDetail) float64 {
	p := s.p
	risk := 0.0
	switch {
	case indicators.Valid(d.RSI) && d.RSI >= p.RSIHigh:
		risk += riskOverheated
	case indicators.Valid(d.RSI) && d.RSI <= p.RSILow:
		risk += riskOversold
	}
	if indicators.Valid(d.RecentMove) && math.Abs(d.RecentMove) > p.MoveMax {
		risk += riskOutsized
	}
	if indicators.Valid(d.ATRPct) && !p.ATRSafe.Contains(d.ATRPct) {
		risk += riskAbnormal
	}
	return risk
}

// sanitize zeroes NaN detail values so the detail can be JSON encoded.
func sanitize(d models.HorizonDetail) models.HorizonDetail {
	for _, f := range []*float64{&d.Slope, &d.RSSlope, &d.ATRPct, &d.RSI, &d.RecentMove} {
		if !indicators.Valid(*f) {
			*f = 0
		}
	}
	return d
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Set scores a snapshot for every horizon it holds.
type Set []domsvc.HorizonScorer

func (s Set) ScoreAll(symbol string, snap *models.IndicatorSnapshot) models.HorizonScores {
	var out models.HorizonScores
	for _, sc := range s {
		out.Set(sc.Horizon(), sc.Score(symbol, snap))
	}
	return out
}

// Default returns the swing, position and long-term scorers.
func Default() Set {
	return Set{NewSwing(), NewPosition(), NewLongTerm()}
}
