package indicators

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Slope fits a least-squares line through the valid values and returns
// the per-bar slope as a percent of their mean. NaN with fewer than two points.
func Slope(values []float64) float64 {
	xs := make([]float64, 0, len(values))
	ys := make([]float64, 0, len(values))
	for i, v := range values {
		if Valid(v) {
			xs = append(xs, float64(i))
			ys = append(ys, v)
		}
	}
	if len(ys) < 2 {
		return math.NaN()
	}
	_, beta := stat.LinearRegression(xs, ys, nil, false)
	mean := stat.Mean(ys, nil)
	if mean == 0 {
		return math.NaN()
	}
	return beta / math.Abs(mean) * 100
}

// PctChange returns (to/from - 1) in percent, NaN when from is not positive.
func PctChange(from, to float64) float64 {
	if !Valid(from) || !Valid(to) || from <= 0 {
		return math.NaN()
	}
	return (to/from - 1) * 100
}

// Rising reports whether the last value of col is above the one before it.
func Rising(col []float64) bool {
	if len(col) < 2 {
		return false
	}
	a, b := col[len(col)-2], col[len(col)-1]
	return Valid(a) && Valid(b) && b > a
}
