package bounds

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

var errBoxCoxRejected = errors.New("box-cox bounds rejected")

const lambdaZero = 1e-6

func boxCoxTransform(x, lambda float64) float64 {
	if math.Abs(lambda) < lambdaZero {
		return math.Log(x)
	}
	return (math.Pow(x, lambda) - 1) / lambda
}

func boxCoxInverse(y, lambda float64) float64 {
	if math.Abs(lambda) < lambdaZero {
		return math.Exp(y)
	}
	return math.Pow(lambda*y+1, 1/lambda)
}

// boxCoxLogLikelihood is the profile log-likelihood of lambda for positive
// values.
func boxCoxLogLikelihood(values []float64, lambda float64) float64 {
	n := float64(len(values))
	y := make([]float64, len(values))
	var logSum float64
	for i, v := range values {
		y[i] = boxCoxTransform(v, lambda)
		logSum += math.Log(v)
	}
	_, variance := stat.PopMeanVariance(y, nil)
	if variance <= 0 || !finite(variance) {
		return math.Inf(-1)
	}
	return (lambda-1)*logSum - n/2*math.Log(variance)
}

// boxCoxLambda estimates lambda by maximum likelihood. values must be
// strictly positive.
func boxCoxLambda(values []float64) (float64, error) {
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			ll := boxCoxLogLikelihood(values, x[0])
			if !finite(ll) {
				return math.MaxFloat64
			}
			return -ll
		},
	}
	res, err := optimize.Minimize(problem, []float64{1}, nil, &optimize.NelderMead{})
	if res == nil || len(res.X) == 0 || !finite(res.X[0]) {
		if err == nil {
			err = errBoxCoxRejected
		}
		return 0, err
	}
	return res.X[0], nil
}

// boxCox transforms values, takes mean ± t·sd (sample sd) in transformed
// space, clamps to the inverse transform's domain and maps back. The result
// is rejected when it is non-positive, degenerate, or excludes more than
// half the values on either side.
func boxCox(values []float64, t float64) (lo, hi float64, err error) {
	lambda, err := boxCoxLambda(values)
	if err != nil {
		return 0, 0, err
	}

	y := make([]float64, len(values))
	for i, v := range values {
		y[i] = boxCoxTransform(v, lambda)
	}
	mean, sd := stat.MeanStdDev(y, nil)
	scale := math.Max(1, math.Abs(mean))
	eps := 1e-9 * scale
	if !finite(mean, sd) || sd <= eps {
		return 0, 0, errNoSpread
	}

	ylo, yhi := mean-t*sd, mean+t*sd
	switch {
	case lambda > lambdaZero:
		ylo = math.Max(ylo, -1/lambda+eps)
	case lambda < -lambdaZero:
		yhi = math.Min(yhi, -1/lambda-eps)
	}
	if ylo >= yhi {
		return 0, 0, errBoxCoxRejected
	}

	lo, hi = boxCoxInverse(ylo, lambda), boxCoxInverse(yhi, lambda)
	if !finite(lo, hi) || lo <= 0 || hi <= 0 || hi-lo <= 1e-9*math.Max(1, math.Abs(hi)) {
		return 0, 0, errBoxCoxRejected
	}

	var above, below int
	for _, v := range values {
		switch {
		case v > hi:
			above++
		case v < lo:
			below++
		}
	}
	half := len(values) / 2
	if above > half || below > half {
		return 0, 0, errBoxCoxRejected
	}
	return lo, hi, nil
}
