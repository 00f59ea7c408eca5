package types

// Result is the outcome of one concurrent task. Exactly one of Value and Err
// is meaningful: Err == nil means success.
type Result[T any] struct {
	// Source names the unit of work (org unit id, chunk index, ...).
	Source string
	Value  T
	Err    error
}

// Ok wraps a successful task value.
func Ok[T any](source string, v T) Result[T] {
	return Result[T]{Source: source, Value: v}
}

// Fail wraps a task error.
func Fail[T any](source string, err error) Result[T] {
	return Result[T]{Source: source, Err: err}
}

// Partition splits results into successful values and errors, preserving
// input order.
func Partition[T any](results []Result[T]) ([]T, []error) {
	var (
		vals []T
		errs []error
	)
	for _, r := range results {
		switch r.Err {
		case nil:
			vals = append(vals, r.Value)
		default:
			errs = append(errs, r.Err)
		}
	}
	return vals, errs
}
