package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dqworkbench/dqsync/internal/remote"
	"github.com/dqworkbench/dqsync/pkg/types"
)

// Fetcher is the remote surface the loader needs.
type Fetcher interface {
	DataValues(ctx context.Context, q remote.DataValueQuery) ([]remote.DataValue, error)
}

// Request describes one dataset load.
type Request struct {
	DataSet  *remote.DataSet
	OrgUnits []string

	// DataElements narrows the numeric elements of DataSet. Empty keeps all.
	DataElements []string

	Start, End time.Time
	DefaultCOC string
}

// Loader fetches observations through a Fetcher.
type Loader struct {
	fetch Fetcher
}

// New returns a Loader backed by f.
func New(f Fetcher) *Loader {
	return &Loader{fetch: f}
}

// Load returns every numeric observation for req. It fails only when every
// org unit fetch failed or ctx was cancelled.
func (l *Loader) Load(ctx context.Context, req Request) ([]types.Observation, error) {
	if len(req.OrgUnits) == 0 {
		return nil, nil
	}

	allowed := allowedElements(req.DataSet, req.DataElements)

	results := make([]types.Result[[]remote.DataValue], len(req.OrgUnits))
	var g errgroup.Group
	for i, ou := range req.OrgUnits {
		g.Go(func() error {
			vals, err := l.fetch.DataValues(ctx, remote.DataValueQuery{
				DataSet:  req.DataSet.ID,
				OrgUnit:  ou,
				Start:    req.Start,
				End:      req.End,
				Children: true,
			})
			if err != nil {
				results[i] = types.Fail[[]remote.DataValue](ou, err)
				return nil
			}
			results[i] = types.Ok(ou, vals)
			return nil
		})
	}
	_ = g.Wait()

	var (
		obs    []types.Observation
		errs   []error
		failed int
	)
	for _, r := range results {
		switch r.Err {
		case nil:
			obs = append(obs, toObservations(r.Value, allowed, req.DefaultCOC)...)
		default:
			failed++
			errs = append(errs, r.Err)
			slog.Error("loader: fetch failed", "dataset", req.DataSet.ID, "org_unit", r.Source, "err", r.Err)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if failed == len(req.OrgUnits) {
		return nil, fmt.Errorf("loader: all %d org unit fetches failed: %w", failed, errors.Join(errs...))
	}

	slog.Debug("loader: fetched observations",
		"dataset", req.DataSet.ID,
		"org_units", len(req.OrgUnits),
		"failed", failed,
		"observations", len(obs))
	return obs, nil
}

// allowedElements is the set of numeric dataset elements, intersected with
// filter when filter is non-empty.
func allowedElements(ds *remote.DataSet, filter []string) map[string]bool {
	var want map[string]bool
	if len(filter) > 0 {
		want = make(map[string]bool, len(filter))
		for _, id := range filter {
			want[id] = true
		}
	}
	out := make(map[string]bool)
	for _, dse := range ds.NumericElements() {
		id := dse.DataElement.ID
		if want == nil || want[id] {
			out[id] = true
		}
	}
	return out
}

func toObservations(vals []remote.DataValue, allowed map[string]bool, defaultCOC string) []types.Observation {
	out := make([]types.Observation, 0, len(vals))
	for _, dv := range vals {
		if !allowed[dv.DataElement] {
			continue
		}
		v, err := strconv.ParseFloat(dv.Value, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			slog.Debug("loader: skipping non-numeric value",
				"data_element", dv.DataElement, "org_unit", dv.OrgUnit, "period", dv.Period, "value", dv.Value)
			continue
		}
		coc := dv.CategoryOptionCombo
		if coc == "" {
			coc = defaultCOC
		}
		out = append(out, types.Observation{
			Key:    types.MetricKey{OrgUnit: dv.OrgUnit, Metric: dv.DataElement, CategoryOptionCombo: coc},
			Period: dv.Period,
			Value:  v,
		})
	}
	return out
}
