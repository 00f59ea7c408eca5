package loader

import (
	"cmp"
	"slices"

	"github.com/dqworkbench/dqsync/pkg/types"
)

// Group partitions observations by key. Each series is ordered by period.
func Group(obs []types.Observation) map[types.MetricKey]types.Series {
	byKey := make(map[types.MetricKey][]types.Observation)
	for _, o := range obs {
		byKey[o.Key] = append(byKey[o.Key], o)
	}

	out := make(map[types.MetricKey]types.Series, len(byKey))
	for k, list := range byKey {
		slices.SortStableFunc(list, func(a, b types.Observation) int {
			return cmp.Compare(a.Period, b.Period)
		})
		s := make(types.Series, len(list))
		for i, o := range list {
			s[i] = o.Value
		}
		out[k] = s
	}
	return out
}
