package reconcile

import (
	"slices"

	"github.com/dqworkbench/dqsync/pkg/types"
)

// Differ diffs fact sets keyed by (metric, org unit, period, category option
// combo). DefaultCOC stands in for an empty category option combo.
type Differ struct {
	DefaultCOC string
}

// Diff returns the records to upsert and to delete. Deletions are existing
// keys absent from calculated; upserts are calculated keys that are new or
// carry a different value. Both are sorted by key and never share a key.
// When a key repeats within one input the last record wins.
func (d Differ) Diff(existing, calculated []types.SyncRecord) (upserts, deletions []types.SyncRecord) {
	have := d.index(existing)
	want := d.index(calculated)

	for k, r := range want {
		old, ok := have[k]
		if !ok || old.Value != r.Value {
			upserts = append(upserts, r)
		}
	}
	for k, r := range have {
		if _, ok := want[k]; !ok {
			deletions = append(deletions, r)
		}
	}

	d.sort(upserts)
	d.sort(deletions)
	return upserts, deletions
}

func (d Differ) index(records []types.SyncRecord) map[types.FactKey]types.SyncRecord {
	out := make(map[types.FactKey]types.SyncRecord, len(records))
	for _, r := range records {
		k := r.Key(d.DefaultCOC)
		r.CategoryOptionCombo = k.CategoryOptionCombo
		out[k] = r
	}
	return out
}

func (d Differ) sort(records []types.SyncRecord) {
	slices.SortFunc(records, func(a, b types.SyncRecord) int {
		ka, kb := a.Key(d.DefaultCOC), b.Key(d.DefaultCOC)
		switch {
		case ka.Less(kb):
			return -1
		case kb.Less(ka):
			return 1
		}
		return 0
	})
}
