package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinScan/internal/domain/models"
	"FinScan/internal/services/indicators"
	"FinScan/internal/testutil"
)

var start = testutil.Day(2023, 1, 2)

func col(vals ...float64) []float64 { return vals }

// handSnapshot is a six-row snapshot where every swing criterion holds.
func handSnapshot() *models.IndicatorSnapshot {
	return &models.IndicatorSnapshot{
		Sufficient:  true,
		Close:       col(100, 101, 102, 103, 104, 105),
		EMA5:        col(99, 100, 101, 102, 103, 104),
		EMA20:       col(95, 96, 97, 98, 99, 100),
		EMA60:       col(90, 90, 90, 90, 90, 90),
		EMA120:      col(85, 85, 85, 85, 85, 85),
		MACDHist:    col(0.1, 0.2, 0.3, 0.4, 0.5, 0.6),
		RelStrength: col(1.00, 1.01, 1.02, 1.03, 1.04, 1.05),
		ATRPct:      col(3, 3, 3, 3, 3, 3),
		RSI:         col(60, 60, 60, 60, 60, 60),
	}
}

func TestSwing_AllCriteriaScoreTen(t *testing.T) {
	t.Parallel()

	hs := NewSwing().Score("AAA", handSnapshot())
	assert.Equal(t, 10.0, hs.Score)
	assert.Equal(t, 0.0, hs.Risk)
	assert.True(t, hs.Detail.MAAligned)
	assert.True(t, hs.Detail.MACDRising)
	assert.True(t, hs.Detail.TrendUp)
	assert.True(t, hs.Detail.RSUp)
	assert.True(t, hs.Detail.VolInBand)
	assert.Equal(t, 5, hs.Detail.LookbackBar)
}

func TestSwing_RiskPenalty(t *testing.T) {
	t.Parallel()

	snap := handSnapshot()
	// overheated, +10% in one session, ATR% outside the safe band
	snap.RSI[5] = 82
	snap.Close[5] = 104 * 1.1
	snap.ATRPct[5] = 9
	hs := NewSwing().Score("AAA", snap)
	assert.Equal(t, 5.0, hs.Risk)
	assert.InDelta(t, 10.0, hs.Detail.RecentMove, 1e-9)

	snap = handSnapshot()
	snap.RSI[5] = 20
	assert.Equal(t, 1.0, NewSwing().Score("AAA", snap).Risk)
}

func TestScore_MissingColumnsAwardNothing(t *testing.T) {
	t.Parallel()

	snap := handSnapshot()
	for i := range snap.RelStrength {
		snap.RelStrength[i] = math.NaN()
	}
	snap.ATRPct[5] = math.NaN()
	hs := NewSwing().Score("AAA", snap)
	assert.Equal(t, 7.0, hs.Score)
	assert.False(t, hs.Detail.RSUp)
	assert.Equal(t, 0.0, hs.Detail.RSSlope)
	assert.Equal(t, 0.0, hs.Detail.ATRPct)
}

func TestScore_InsufficientSnapshotIsZero(t *testing.T) {
	t.Parallel()

	snap := indicators.NewEngine().Compute(testutil.Trend("AAA", start, 10, 100, 1), nil)
	for _, sc := range Default() {
		hs := sc.Score("AAA", snap)
		assert.Equal(t, 0.0, hs.Score, sc.Horizon())
		assert.Equal(t, 0.0, hs.Risk, sc.Horizon())
	}
}

func TestScoreAll_TrendDirection(t *testing.T) {
	t.Parallel()

	engine := indicators.NewEngine()
	bench := testutil.Trend("IDX", start, 200, 2500, 0)
	up := engine.Compute(testutil.Trend("UP", start, 200, 100, 0.8), bench)
	down := engine.Compute(testutil.Trend("DN", start, 200, 100, -0.8), bench)

	set := Default()
	upScores := set.ScoreAll("UP", up)
	downScores := set.ScoreAll("DN", down)

	for _, h := range models.Horizons {
		u, d := upScores.For(h), downScores.For(h)
		assert.GreaterOrEqual(t, u.Score, 7.0, "up %s", h)
		assert.LessOrEqual(t, d.Score, 3.0, "down %s", h)
		assert.True(t, u.Score >= 0 && u.Score <= MaxScore)
		assert.GreaterOrEqual(t, u.Risk, 0.0)
	}
}

func TestScore_Pure(t *testing.T) {
	t.Parallel()

	snap := indicators.NewEngine().Compute(testutil.Trend("AAA", start, 150, 100, 0.3), nil)
	set := Default()
	first := set.ScoreAll("AAA", snap)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, set.ScoreAll("AAA", snap))
	}
}
