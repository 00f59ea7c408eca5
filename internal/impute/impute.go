package impute

import (
	"github.com/dqworkbench/dqsync/internal/remote"
	"github.com/dqworkbench/dqsync/pkg/types"
)

// Impute returns computed followed by one generated record, carrying
// defaults, for every (org unit, numeric data element, category option
// combo) of ds that computed does not already cover. Org units are the
// dataset's own assignment; filter, when non-empty, narrows the data
// elements. Nothing is imputed when defaults is nil.
func Impute(ds *remote.DataSet, filter []string, computed []types.BoundsRecord, defaults *types.Envelope) ([]types.BoundsRecord, types.Counters) {
	var tally types.Counters
	if defaults == nil || ds == nil {
		return computed, tally
	}

	have := make(map[types.MetricKey]bool, len(computed))
	for _, r := range computed {
		have[r.Key] = true
	}

	var want map[string]bool
	if len(filter) > 0 {
		want = make(map[string]bool, len(filter))
		for _, id := range filter {
			want[id] = true
		}
	}

	out := computed
	for _, ou := range ds.OrgUnitIDs() {
		for _, dse := range ds.NumericElements() {
			de := dse.DataElement.ID
			if want != nil && !want[de] {
				continue
			}
			for _, coc := range dse.CategoryCombo.CategoryOptionCombos {
				k := types.MetricKey{OrgUnit: ou, Metric: de, CategoryOptionCombo: coc.ID}
				if have[k] {
					continue
				}
				have[k] = true
				env := *defaults
				out = append(out, types.BoundsRecord{
					Key:       k,
					Bounds:    &env,
					Generated: true,
					Comment:   "imputed default bounds",
				})
				tally.Imputed++
			}
		}
	}
	return out, tally
}
