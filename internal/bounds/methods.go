package bounds

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/dqworkbench/dqsync/pkg/types"
)

var errNoSpread = errors.New("zero spread")

// prevMax is the "previous maximum" envelope:
// max = max(values)·t floored at prevMaxFloor, min = max(values)·(1-t)
// floored at zero.
func prevMax(values []float64, t float64) (lo, hi float64) {
	top := floats.Max(values)
	hi = math.Max(top*t, prevMaxFloor)
	lo = math.Max(top*(1-t), 0)
	return lo, hi
}

// zScore, mad and iqr floor min at zero; callers pass shifted, positive values.
func zScore(values []float64, t float64) (lo, hi float64, err error) {
	mean, std := stat.PopMeanStdDev(values, nil)
	if std == 0 {
		return 0, 0, errNoSpread
	}
	return math.Max(mean-t*std, 0), mean + t*std, nil
}

func mad(values []float64, t float64) (lo, hi float64, err error) {
	med := median(values)
	d := medianAbsDeviation(values, med)
	if d == 0 {
		return 0, 0, errNoSpread
	}
	return math.Max(med-t*d, 0), med + t*d, nil
}

func iqr(values []float64, t float64) (lo, hi float64, err error) {
	q1, q3 := quartiles(values)
	spread := q3 - q1
	if spread == 0 {
		return 0, 0, errNoSpread
	}
	return math.Max(q1-t*spread, 0), q3 + t*spread, nil
}

// apply runs the statistical method of b over values.
func apply(b types.MethodBucket, values []float64) (lo, hi float64, err error) {
	switch b.Method {
	case types.MethodPrevMax:
		lo, hi = prevMax(values, b.Threshold)
		return lo, hi, nil
	case types.MethodZScore:
		return zScore(values, b.Threshold)
	case types.MethodMAD:
		return mad(values, b.Threshold)
	case types.MethodIQR:
		return iqr(values, b.Threshold)
	case types.MethodBoxCox:
		return boxCox(values, b.Threshold)
	}
	return 0, 0, fmt.Errorf("method %s has no statistical rule", b.Method)
}
