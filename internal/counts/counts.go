package counts

import (
	"cmp"
	"log/slog"
	"slices"
	"time"

	"github.com/dqworkbench/dqsync/pkg/types"
)

// Request is the part of a count stage shared by every analysis.
type Request struct {
	Stage       string
	OrgUnits    []string
	Start, End  time.Time
	Destination string
	DefaultCOC  string
}

// Outcome is the result of one count analysis.
type Outcome struct {
	Records []types.SyncRecord

	// Succeeded and Failed partition the requested org units.
	Succeeded []string
	Failed    []string

	// Metrics lists the data elements whose stored facts the records replace.
	// Empty means the request's Destination.
	Metrics []string
}

// Counters reports failed org units as errors and emitted facts as valid.
func (o Outcome) Counters() types.Counters {
	return types.Counters{Valid: len(o.Records), Errors: len(o.Failed)}
}

type cell struct {
	orgUnit, period string
}

// tally counts distinct items per (org unit, period).
type tally struct {
	seen   map[string]bool
	counts map[cell]int
}

func newTally() *tally {
	return &tally{seen: make(map[string]bool), counts: make(map[cell]int)}
}

// add counts id once for c.
func (t *tally) add(c cell, id string) {
	if t.seen[id] {
		return
	}
	t.seen[id] = true
	t.counts[c]++
}

func (t *tally) records(req Request) []types.SyncRecord {
	out := make([]types.SyncRecord, 0, len(t.counts))
	for c, n := range t.counts {
		out = append(out, types.SyncRecord{
			Metric:              req.Destination,
			OrgUnit:             c.orgUnit,
			Period:              c.period,
			CategoryOptionCombo: req.DefaultCOC,
			Value:               float64(n),
		})
	}
	slices.SortFunc(out, func(a, b types.SyncRecord) int {
		return cmp.Or(cmp.Compare(a.OrgUnit, b.OrgUnit), cmp.Compare(a.Period, b.Period))
	})
	return out
}

func logOutcome(kind string, req Request, o Outcome) {
	slog.Info("counts: analysis finished",
		"kind", kind,
		"stage", req.Stage,
		"org_units", len(req.OrgUnits),
		"failed", len(o.Failed),
		"facts", len(o.Records))
}
