package runner

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dqworkbench/dqsync/internal/config"
	"github.com/dqworkbench/dqsync/internal/counts"
	"github.com/dqworkbench/dqsync/internal/period"
	"github.com/dqworkbench/dqsync/internal/reconcile"
	"github.com/dqworkbench/dqsync/internal/remote"
	"github.com/dqworkbench/dqsync/internal/upload"
	"github.com/dqworkbench/dqsync/pkg/types"
)

// countStage analyses st, fetches the stored facts of the destination data
// element and uploads the difference.
func (r *run) countStage(ctx context.Context, st config.AnalyzerStage) types.StageSummary {
	start := time.Now()
	ss := types.StageSummary{Name: st.Name, Kind: st.Type}
	c, err := r.count(ctx, st)
	ss.Counters = c
	if err != nil {
		ss.Error = err.Error()
		r.log.Error("runner: stage failed", "stage", st.Name, "err", err)
	}
	ss.Duration = time.Since(start)
	r.log.Info("runner: stage finished", "stage", st.Name, "kind", st.Type, "duration", ss.Duration, "counters", ss.Counters.Map())
	return ss
}

func (r *run) count(ctx context.Context, st config.AnalyzerStage) (types.Counters, error) {
	var tally types.Counters

	req, err := r.countRequest(ctx, st)
	if err != nil {
		return tally, err
	}

	var out counts.Outcome
	switch st.Type {
	case config.AnalyzerValidationRules:
		out = counts.ValidationRules(ctx, r.client, req, st.Params)
	case config.AnalyzerOutlier:
		out = counts.Outliers(ctx, r.client, req, st.Params)
	case config.AnalyzerIntegrity:
		out = counts.Integrity(ctx, r.client, req, st.Params)
	default:
		return tally, fmt.Errorf("runner: unknown stage type %q", st.Type)
	}
	tally = tally.Add(out.Counters())
	if len(out.Succeeded) == 0 {
		return tally, fmt.Errorf("runner: analysis failed for all %d org units", len(req.OrgUnits))
	}

	metrics := out.Metrics
	if len(metrics) == 0 {
		metrics = []string{req.Destination}
	}
	existing, complete := r.existingFacts(ctx, req, metrics, out.Succeeded)
	differ := reconcile.Differ{DefaultCOC: r.cfg.Server.DefaultCOC}
	upserts, deletions := differ.Diff(existing, out.Records)
	if !complete {
		r.log.Warn("runner: stored facts incomplete, skipping deletions", "stage", st.Name, "deletions", len(deletions))
		deletions = nil
	}
	r.log.Info("runner: facts reconciled",
		"stage", st.Name,
		"calculated", len(out.Records),
		"existing", len(existing),
		"upserts", len(upserts),
		"deletions", len(deletions))

	var errs []error
	if len(upserts) > 0 {
		c, err := upload.Upload(ctx, r.uploader, st.Name+" upsert", upserts,
			upload.Facts(r.client, remote.StrategyCreateAndUpdate, r.cfg.Server.DefaultCOC))
		tally = tally.Add(c.Counters())
		errs = append(errs, err)
	}
	if len(deletions) > 0 {
		c, err := upload.Upload(ctx, r.uploader, st.Name+" delete", deletions,
			upload.Facts(r.client, remote.StrategyDelete, r.cfg.Server.DefaultCOC))
		tally = tally.Add(c.Counters())
		errs = append(errs, err)
	}
	return tally, errors.Join(errs...)
}

// countRequest resolves the org units and date window of st. Integrity
// checks report on the level-1 org unit for the current period; the other
// analyses use the configured org units or level and look back Duration.
func (r *run) countRequest(ctx context.Context, st config.AnalyzerStage) (counts.Request, error) {
	req := counts.Request{
		Stage:       st.Name,
		Destination: st.DestinationDataElement,
		DefaultCOC:  r.cfg.Server.DefaultCOC,
	}

	if st.Type == config.AnalyzerIntegrity {
		roots, err := r.client.OrgUnitsAtLevel(ctx, 1)
		if err != nil {
			return req, err
		}
		if len(roots) == 0 {
			return req, errors.New("runner: no level 1 org unit")
		}
		pe, err := period.Containing(period.Type(st.Params.PeriodType), r.now)
		if err != nil {
			return req, err
		}
		req.OrgUnits = roots[:1]
		req.Start, req.End = pe.Start, pe.End()
		return req, nil
	}

	req.OrgUnits = st.OrgUnits
	if len(req.OrgUnits) == 0 {
		var err error
		if req.OrgUnits, err = r.client.OrgUnitsAtLevel(ctx, st.Level); err != nil {
			return req, err
		}
	}
	dur, err := period.ParseDuration(st.Duration)
	if err != nil {
		return req, err
	}
	req.Start, req.End = dur.Before(r.now), r.now
	return req, nil
}

// existingFacts fetches the stored values of metrics below each org unit.
// complete is false when any fetch failed.
func (r *run) existingFacts(ctx context.Context, req counts.Request, metrics, orgUnits []string) (facts []types.SyncRecord, complete bool) {
	complete = true
	for _, ou := range orgUnits {
		vals, err := r.client.DataValues(ctx, remote.DataValueQuery{
			DataElements: metrics,
			OrgUnit:     ou,
			Start:       req.Start,
			End:         req.End,
			Children:    true,
		})
		if err != nil {
			r.log.Error("runner: fetch stored facts failed", "stage", req.Stage, "org_unit", ou, "err", err)
			complete = false
			continue
		}
		for _, dv := range vals {
			v, err := strconv.ParseFloat(dv.Value, 64)
			if err != nil {
				continue
			}
			facts = append(facts, types.SyncRecord{
				Metric:              dv.DataElement,
				OrgUnit:             dv.OrgUnit,
				Period:              dv.Period,
				CategoryOptionCombo: dv.CategoryOptionCombo,
				Value:               v,
			})
		}
	}
	return facts, complete
}
