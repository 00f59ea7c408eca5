package validate

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/dqworkbench/dqsync/pkg/types"
)

// Check returns a types.ErrPayloadRejected error describing why r cannot be
// uploaded, or nil.
func Check(r types.BoundsRecord) error {
	switch {
	case r.Key.OrgUnit == "" || r.Key.Metric == "" || r.Key.CategoryOptionCombo == "":
		return fmt.Errorf("%w: missing identifier in %s", types.ErrPayloadRejected, r.Key)
	case r.Bounds == nil:
		return fmt.Errorf("%w: no bounds", types.ErrPayloadRejected)
	case r.Bounds.Min < -math.MaxInt32 || r.Bounds.Min > math.MaxInt32,
		r.Bounds.Max < -math.MaxInt32 || r.Bounds.Max > math.MaxInt32:
		return fmt.Errorf("%w: bounds [%d, %d] exceed 32-bit range", types.ErrPayloadRejected, r.Bounds.Min, r.Bounds.Max)
	case r.Bounds.Min > r.Bounds.Max:
		return fmt.Errorf("%w: min %d > max %d", types.ErrPayloadRejected, r.Bounds.Min, r.Bounds.Max)
	}
	return nil
}

// Validate returns the records that pass Check and counts the rest as invalid.
func Validate(records []types.BoundsRecord) ([]types.BoundsRecord, types.Counters) {
	var tally types.Counters
	out := make([]types.BoundsRecord, 0, len(records))
	for _, r := range records {
		if err := Check(r); err != nil {
			tally.Invalid++
			slog.Debug("validate: dropping record", "key", r.Key.String(), "err", err)
			continue
		}
		out = append(out, r)
	}
	return out, tally
}
