package runner

import (
	"context"
	"time"

	"github.com/dqworkbench/dqsync/internal/bounds"
	"github.com/dqworkbench/dqsync/internal/config"
	"github.com/dqworkbench/dqsync/internal/impute"
	"github.com/dqworkbench/dqsync/internal/loader"
	"github.com/dqworkbench/dqsync/internal/upload"
	"github.com/dqworkbench/dqsync/internal/validate"
	"github.com/dqworkbench/dqsync/pkg/types"
)

const kindMinMax = "min_max"

// minMaxStage runs every dataset of st in order. A failing dataset is
// recorded and the next one still runs.
func (r *run) minMaxStage(ctx context.Context, st config.MinMaxStage, ep upload.Endpoint) types.StageSummary {
	start := time.Now()
	ss := types.StageSummary{Name: st.Name, Kind: kindMinMax}
	log := r.log.With("stage", st.Name)

	for _, dsID := range st.Datasets {
		c, err := r.minMaxDataSet(ctx, st, dsID, ep)
		ss.Counters = ss.Counters.Add(c)
		if err != nil {
			log.Error("runner: dataset failed", "dataset", dsID, "err", err)
			if ss.Error == "" {
				ss.Error = err.Error()
			}
		}
		if ctx.Err() != nil {
			break
		}
	}
	ss.Duration = time.Since(start)
	log.Info("runner: stage finished", "kind", kindMinMax, "duration", ss.Duration, "counters", ss.Counters.Map())
	return ss
}

func (r *run) minMaxDataSet(ctx context.Context, st config.MinMaxStage, dsID string, ep upload.Endpoint) (types.Counters, error) {
	var tally types.Counters

	p, err := r.prepare(ctx, st, dsID)
	if err != nil {
		return tally, err
	}

	obs, err := loader.New(r.client).Load(ctx, loader.Request{
		DataSet:      p.DataSet,
		OrgUnits:     p.OrgUnits,
		DataElements: p.DataElements,
		Start:        p.Start,
		End:          p.End,
		DefaultCOC:   r.cfg.Server.DefaultCOC,
	})
	if err != nil {
		return tally, err
	}

	calc := bounds.New(st.Groups, st.Threshold(r.cfg.CompletenessThreshold), st.PreviousPeriods, st.MissingDefaults())
	records, c := calc.ComputeAll(loader.Group(obs))
	tally = tally.Add(c)

	records, c = impute.Impute(p.DataSet, p.DataElements, records, st.MissingDefaults())
	tally = tally.Add(c)

	records, c = validate.Validate(records)
	tally = tally.Add(c)

	r.log.Info("runner: bounds computed",
		"stage", st.Name,
		"dataset", dsID,
		"observations", len(obs),
		"records", len(records),
		"periods", len(p.Periods))

	if len(records) == 0 {
		return tally, nil
	}

	var counts upload.Counts
	switch ep {
	case upload.EndpointBulk:
		counts, err = upload.Upload(ctx, r.uploader, "bounds "+dsID, records, upload.BulkBounds(r.client, dsID))
	default:
		counts = upload.UploadLegacy(ctx, r.uploader, r.client, records)
	}
	return tally.Add(counts.Counters()), err
}
