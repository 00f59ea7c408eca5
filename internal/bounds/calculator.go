package bounds

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"

	"github.com/dqworkbench/dqsync/pkg/types"
)

const (
	shiftEpsilon     = 1e-3
	minCV            = 0.02
	prevMaxThreshold = 1.5
	prevMaxFloor     = 10

	// Largest magnitude that survives conversion to int64.
	maxBound = 1 << 62
)

// Calculator computes bounds for the series of one stage and dataset.
type Calculator struct {
	buckets         []types.MethodBucket
	threshold       float64
	expectedPeriods int
	missingDefaults *types.Envelope
}

// New returns a Calculator. buckets are copied and sorted ascending by
// LimitMedian; missingDefaults may be nil.
func New(buckets []types.MethodBucket, threshold float64, expectedPeriods int, missingDefaults *types.Envelope) *Calculator {
	b := slices.Clone(buckets)
	slices.SortStableFunc(b, func(x, y types.MethodBucket) int {
		return cmp.Compare(x.LimitMedian, y.LimitMedian)
	})
	return &Calculator{
		buckets:         b,
		threshold:       threshold,
		expectedPeriods: expectedPeriods,
		missingDefaults: missingDefaults,
	}
}

// RequiredPeriods is the minimum number of observations a series needs.
func (c *Calculator) RequiredPeriods() int {
	return int(math.Ceil(float64(c.expectedPeriods) * c.threshold))
}

// Compute derives the envelope for one series. A record is always returned;
// the error, when non-nil, wraps one of types.ErrNoData,
// types.ErrInsufficientData, types.ErrMethodSelection or
// types.ErrInvalidBounds and explains why the record carries a default or
// null envelope.
func (c *Calculator) Compute(key types.MetricKey, series types.Series) (types.BoundsRecord, error) {
	rec := types.BoundsRecord{Key: key}

	if len(series) == 0 {
		rec.Generated = true
		rec.Comment = "no data"
		return rec, types.ErrNoData
	}

	values := slices.Clone([]float64(series))
	var offset float64
	if lo := floats.Min(values); lo <= 0 {
		offset = math.Abs(lo) + shiftEpsilon
		floats.AddConst(offset, values)
	}

	if required := c.RequiredPeriods(); len(values) < required {
		rec.Generated = true
		rec.Comment = fmt.Sprintf("insufficient data: %d of %d periods", len(values), required)
		if c.missingDefaults != nil {
			env := *c.missingDefaults
			rec.Bounds = &env
			rec.Comment += " - default bounds"
		}
		return rec, fmt.Errorf("%w: %d of %d periods", types.ErrInsufficientData, len(values), required)
	}

	med := median(values)
	bucket, ok := selectBucket(c.buckets, med)
	if !ok {
		rec.Generated = true
		rec.Comment = "no method for median"
		return rec, fmt.Errorf("%w: median %g", types.ErrMethodSelection, med)
	}

	if bucket.Method == types.MethodConstant {
		return c.constant(rec, series, med)
	}

	var lo, hi float64
	switch {
	case noVariation(values):
		lo, hi = prevMax(values, prevMaxThreshold)
		rec.Method = types.MethodPrevMax
		rec.Fallback = true
		rec.Comment = "PREV_MAX - no variance"
	default:
		var err error
		lo, hi, err = apply(bucket, values)
		if err == nil && finite(lo, hi) {
			rec.Method = bucket.Method
			rec.Comment = fmt.Sprintf("%s - threshold %g", bucket.Method, bucket.Threshold)
			break
		}
		if err == nil {
			err = errors.New("non-finite result")
		}
		lo, hi = prevMax(values, prevMaxThreshold)
		rec.Method = types.MethodPrevMax
		rec.Fallback = true
		rec.Comment = fmt.Sprintf("PREV_MAX - %s fallback (%v)", bucket.Method, err)
	}

	lo, hi = math.Floor(lo-offset), math.Ceil(hi-offset)
	if !finite(lo, hi) || math.Abs(lo) > maxBound || math.Abs(hi) > maxBound || lo >= hi {
		rec.Generated = true
		rec.Comment = fmt.Sprintf("invalid bounds [%g, %g]", lo, hi)
		rec.Fallback = false
		return rec, fmt.Errorf("%w: [%g, %g]", types.ErrInvalidBounds, lo, hi)
	}

	rec.Bounds = &types.Envelope{Min: int64(lo), Max: int64(hi)}
	markNarrow(&rec, series)
	return rec, nil
}

// constant applies the CONSTANT bucket whose limitMedian is closest to med.
func (c *Calculator) constant(rec types.BoundsRecord, series types.Series, med float64) (types.BoundsRecord, error) {
	b, ok := closestConstant(c.buckets, med)
	if !ok || b.ConstantMin == nil || b.ConstantMax == nil {
		rec.Generated = true
		rec.Comment = "CONSTANT bucket has no constants"
		return rec, fmt.Errorf("%w: constant bounds missing", types.ErrInvalidBounds)
	}
	lo, hi := *b.ConstantMin, *b.ConstantMax
	if lo != math.Trunc(lo) || hi != math.Trunc(hi) || lo >= hi {
		rec.Generated = true
		rec.Comment = fmt.Sprintf("invalid constant bounds [%g, %g]", lo, hi)
		return rec, fmt.Errorf("%w: constant [%g, %g]", types.ErrInvalidBounds, lo, hi)
	}
	rec.Method = types.MethodConstant
	rec.Comment = "CONSTANT"
	rec.Bounds = &types.Envelope{Min: int64(lo), Max: int64(hi)}
	markNarrow(&rec, series)
	return rec, nil
}

// markNarrow flags a record whose envelope excludes an observed value.
func markNarrow(rec *types.BoundsRecord, series types.Series) {
	for _, v := range series {
		if !rec.Bounds.Contains(v) {
			rec.NarrowWarning = true
			rec.Comment += " - Bounds may be too narrow"
			return
		}
	}
}

// selectBucket returns the first bucket with LimitMedian > med. buckets must
// be sorted ascending.
func selectBucket(buckets []types.MethodBucket, med float64) (types.MethodBucket, bool) {
	for _, b := range buckets {
		if b.LimitMedian > med {
			return b, true
		}
	}
	return types.MethodBucket{}, false
}

// closestConstant returns the CONSTANT bucket whose LimitMedian is nearest
// to med; ties go to the earlier bucket.
func closestConstant(buckets []types.MethodBucket, med float64) (types.MethodBucket, bool) {
	var (
		best  types.MethodBucket
		dist  = math.Inf(1)
		found bool
	)
	for _, b := range buckets {
		if b.Method != types.MethodConstant {
			continue
		}
		if d := math.Abs(b.LimitMedian - med); d < dist {
			best, dist, found = b, d, true
		}
	}
	return best, found
}

// ComputeAll computes every series in keys order and tallies the outcome.
// Per-key failures are logged and never abort the batch.
func (c *Calculator) ComputeAll(series map[types.MetricKey]types.Series) ([]types.BoundsRecord, types.Counters) {
	keys := make([]types.MetricKey, 0, len(series))
	for k := range series {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)

	var tally types.Counters
	out := make([]types.BoundsRecord, 0, len(keys))
	for _, k := range keys {
		rec, err := c.Compute(k, series[k])
		out = append(out, rec)

		switch {
		case err == nil:
			tally.Valid++
			if rec.Fallback {
				tally.Fallbacks++
			}
			if rec.NarrowWarning {
				tally.BoundWarnings++
			}
		case errors.Is(err, types.ErrNoData), errors.Is(err, types.ErrInsufficientData):
			tally.Missing++
			slog.Debug("bounds: missing data", "key", k.String(), "err", err)
		default:
			tally.Valid++
			tally.Errors++
			slog.Debug("bounds: computation failed", "key", k.String(), "err", err)
		}
	}
	return out, tally
}

func compareKeys(a, b types.MetricKey) int {
	return cmp.Or(
		cmp.Compare(a.OrgUnit, b.OrgUnit),
		cmp.Compare(a.Metric, b.Metric),
		cmp.Compare(a.CategoryOptionCombo, b.CategoryOptionCombo),
	)
}
