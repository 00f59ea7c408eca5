// Package bounds computes per-key plausibility envelopes.
//
// A Calculator turns one Series into a BoundsRecord:
//
//	empty → null envelope ("no data")
//	min ≤ 0 → shift every value by |min| + 1e-3
//	fewer than ceil(expected × threshold) values → missing (default envelope or null)
//	median → first bucket with limitMedian > median selects the method
//	CONSTANT → closest CONSTANT bucket's constants, verbatim
//	one distinct value or CV < 2% → PREV_MAX(1.5)
//	ZSCORE | MAD | IQR | BOXCOX | PREV_MAX → [lo, hi] on shifted values, lo ≥ 0
//	failed or non-finite result → PREV_MAX(1.5), counted as a fallback
//	unshift, floor min, ceil max; min ≥ max → null envelope
//
// Statistics come from gonum (stat, floats); the Box-Cox λ is the maximum
// likelihood estimate found with optimize.NelderMead.
package bounds
