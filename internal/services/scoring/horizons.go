package scoring

import "FinScan/internal/domain/models"

func ema5(s *models.IndicatorSnapshot) []float64 { return s.EMA5 }
func ema20(s *models.IndicatorSnapshot) []float64 { return s.EMA20 }
func ema60(s *models.IndicatorSnapshot) []float64 { return s.EMA60 }
func ema120(s *models.IndicatorSnapshot) []float64 { return s.EMA120 }

// SwingProfile looks at the last few sessions.
func SwingProfile() Profile {
	return Profile{
		Horizon:  models.HorizonSwing,
		Lookback: 5,
		Fast:     ema5,
		Slow:     ema20,
		MACDBars: 1,
		ATRBand:  Band{1.5, 6},
		ATRSafe:  Band{0.8, 8},
		RSIHigh:  75,
		RSILow:   25,
		MoveBars: 1,
		MoveMax:  8,
	}
}

// PositionProfile looks at roughly a month of sessions.
func PositionProfile() Profile {
	return Profile{
		Horizon:  models.HorizonPosition,
		Lookback: 20,
		Fast:     ema20,
		Slow:     ema60,
		MACDBars: 5,
		ATRBand:  Band{1, 5},
		ATRSafe:  Band{0.6, 7},
		RSIHigh:  80,
		RSILow:   20,
		MoveBars: 5,
		MoveMax:  15,
	}
}

// LongTermProfile looks at roughly half a year of sessions.
func LongTermProfile() Profile {
	return Profile{
		Horizon:  models.HorizonLongTerm,
		Lookback: 120,
		Fast:     ema60,
		Slow:     ema120,
		MACDBars: 20,
		ATRBand:  Band{0.8, 4},
		ATRSafe:  Band{0.5, 6},
		RSIHigh:  85,
		RSILow:   15,
		MoveBars: 20,
		MoveMax:  30,
	}
}

func NewSwing() *Scorer { return New(SwingProfile()) }
func NewPosition() *Scorer { return New(PositionProfile()) }
func NewLongTerm() *Scorer { return New(LongTermProfile()) }
