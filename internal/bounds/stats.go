package bounds

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// median returns the conventional median (mean of the two middle values for
// even lengths). values is not modified.
func median(values []float64) float64 {
	s := slices.Clone(values)
	slices.Sort(s)
	n := len(s)
	if n == 0 {
		return math.NaN()
	}
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// medianAbsDeviation returns median(|x - median(x)|), unscaled.
func medianAbsDeviation(values []float64, med float64) float64 {
	dev := make([]float64, len(values))
	for i, v := range values {
		dev[i] = math.Abs(v - med)
	}
	return median(dev)
}

// quartiles returns the linearly interpolated first and third quartiles.
func quartiles(values []float64) (q1, q3 float64) {
	s := slices.Clone(values)
	slices.Sort(s)
	return stat.Quantile(0.25, stat.LinInterp, s, nil), stat.Quantile(0.75, stat.LinInterp, s, nil)
}

// noVariation reports a series with a single distinct value or a population
// coefficient of variation below minCV.
func noVariation(values []float64) bool {
	if floats.Max(values) == floats.Min(values) {
		return true
	}
	mean, std := stat.PopMeanStdDev(values, nil)
	if mean == 0 {
		return false
	}
	return std/math.Abs(mean) < minCV
}

func finite(xs ...float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
