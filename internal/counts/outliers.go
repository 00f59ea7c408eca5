package counts

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/dqworkbench/dqsync/internal/config"
	"github.com/dqworkbench/dqsync/internal/remote"
	"github.com/dqworkbench/dqsync/pkg/types"
)

// OutlierSource runs outlier detection.
type OutlierSource interface {
	Outliers(ctx context.Context, q remote.OutlierQuery) ([]remote.Outlier, error)
}

// Outliers runs detection per org unit and counts distinct outlier values
// per (org unit, period). Values at or below p.LowerBound are skipped.
func Outliers(ctx context.Context, src OutlierSource, req Request, p config.AnalyzerParams) Outcome {
	results := make([]types.Result[[]remote.Outlier], len(req.OrgUnits))
	var g errgroup.Group
	for i, ou := range req.OrgUnits {
		g.Go(func() error {
			vals, err := src.Outliers(ctx, remote.OutlierQuery{
				DataSets:   p.DataSets,
				OrgUnit:    ou,
				Start:      req.Start,
				End:        req.End,
				Algorithm:  p.Algorithm,
				Threshold:  p.Threshold,
				MaxResults: p.MaxResults,
				OrderBy:    p.OrderBy,
				SortOrder:  p.SortOrder,
			})
			if err != nil {
				results[i] = types.Fail[[]remote.Outlier](ou, err)
				return nil
			}
			results[i] = types.Ok(ou, vals)
			return nil
		})
	}
	_ = g.Wait()

	var out Outcome
	t := newTally()
	for _, r := range results {
		switch r.Err {
		case nil:
			out.Succeeded = append(out.Succeeded, r.Source)
			for _, o := range r.Value {
				if o.Value <= p.LowerBound {
					continue
				}
				c := cell{o.OrgUnit, o.Period}
				t.add(c, o.DataElement+"/"+o.CategoryOptionCombo+"/"+o.AttributeOptionCombo+"/"+c.orgUnit+"/"+c.period)
			}
		default:
			out.Failed = append(out.Failed, r.Source)
			slog.Error("counts: outlier detection failed", "stage", req.Stage, "org_unit", r.Source, "err", r.Err)
		}
	}
	out.Records = t.records(req)
	logOutcome("outlier", req, out)
	return out
}
