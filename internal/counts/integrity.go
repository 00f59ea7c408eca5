package counts

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/dqworkbench/dqsync/internal/config"
	"github.com/dqworkbench/dqsync/internal/period"
	"github.com/dqworkbench/dqsync/internal/remote"
	"github.com/dqworkbench/dqsync/pkg/types"
)

// CheckCodePrefix marks data elements that receive integrity check counts:
// a data element coded "MI_ORPHANED_OUS" holds the count of check
// ORPHANED_OUS.
const CheckCodePrefix = "MI_"

var errNoCheckElements = errors.New("monitoring group has no " + CheckCodePrefix + " data elements")

// IntegritySource runs metadata integrity summaries.
type IntegritySource interface {
	DataElementGroupMembers(ctx context.Context, id string) ([]remote.DataElement, error)
	TriggerIntegritySummaries(ctx context.Context, checks []string) error
	IntegrityRunning(ctx context.Context) (bool, error)
	IntegritySummaries(ctx context.Context, checks []string) (map[string]remote.IntegritySummary, error)
}

// Integrity runs the checks named by the monitoring group's data elements
// and emits one count per check for the period of p.PeriodType containing
// req.Start, at req.OrgUnits[0]. Blank, negative or non-integer counts are
// skipped.
func Integrity(ctx context.Context, src IntegritySource, req Request, p config.AnalyzerParams) Outcome {
	var out Outcome
	if len(req.OrgUnits) == 0 {
		slog.Error("counts: integrity checks need a root org unit", "stage", req.Stage)
		return out
	}
	root := req.OrgUnits[0]

	records, metrics, err := integrity(ctx, src, req, p, root)
	out.Metrics = metrics
	if err != nil {
		out.Failed = []string{root}
		slog.Error("counts: integrity checks failed", "stage", req.Stage, "org_unit", root, "err", err)
	} else {
		out.Succeeded = []string{root}
		out.Records = records
	}
	logOutcome(config.AnalyzerIntegrity, req, out)
	return out
}

func integrity(ctx context.Context, src IntegritySource, req Request, p config.AnalyzerParams, root string) ([]types.SyncRecord, []string, error) {
	pe, err := period.Containing(period.Type(p.PeriodType), req.Start)
	if err != nil {
		return nil, nil, err
	}

	members, err := src.DataElementGroupMembers(ctx, p.MonitoringGroup)
	if err != nil {
		return nil, nil, err
	}
	byCheck := make(map[string]string)
	for _, de := range members {
		if code, ok := strings.CutPrefix(de.Code, CheckCodePrefix); ok && code != "" {
			byCheck[code] = de.ID
		}
	}
	if len(byCheck) == 0 {
		return nil, nil, fmt.Errorf("%s: %w", p.MonitoringGroup, errNoCheckElements)
	}
	checks := slices.Sorted(maps.Keys(byCheck))
	metrics := slices.Sorted(maps.Values(byCheck))

	if err := src.TriggerIntegritySummaries(ctx, checks); err != nil {
		return nil, metrics, err
	}
	if err := waitIdle(ctx, src, req.Stage, p.PollInterval, p.PollTimeout); err != nil {
		return nil, metrics, err
	}
	summaries, err := src.IntegritySummaries(ctx, checks)
	if err != nil {
		return nil, metrics, err
	}

	var records []types.SyncRecord
	for name, s := range summaries {
		de, ok := byCheck[s.Code]
		if !ok {
			slog.Warn("counts: no data element for integrity check", "stage", req.Stage, "check", name, "code", s.Code)
			continue
		}
		n, ok := s.CountValue()
		if !ok {
			slog.Warn("counts: unusable integrity count", "stage", req.Stage, "check", name, "count", string(s.Count))
			continue
		}
		records = append(records, types.SyncRecord{
			Metric:              de,
			OrgUnit:             root,
			Period:              pe.ID(),
			CategoryOptionCombo: req.DefaultCOC,
			Value:               float64(n),
		})
	}
	slices.SortFunc(records, func(a, b types.SyncRecord) int { return cmp.Compare(a.Metric, b.Metric) })
	return records, metrics, nil
}

// waitIdle polls every interval until no summary is running. When timeout
// passes first, the completed summaries are used as they are.
func waitIdle(ctx context.Context, src IntegritySource, stage string, interval, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		running, err := src.IntegrityRunning(ctx)
		if err != nil {
			return err
		}
		if !running {
			return nil
		}
		if !time.Now().Before(deadline) {
			slog.Warn("counts: integrity summaries still running, using completed results", "stage", stage, "timeout", timeout)
			return nil
		}
	}
}
