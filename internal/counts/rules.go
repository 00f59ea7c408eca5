package counts

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/dqworkbench/dqsync/internal/config"
	"github.com/dqworkbench/dqsync/internal/period"
	"github.com/dqworkbench/dqsync/internal/remote"
	"github.com/dqworkbench/dqsync/pkg/types"
)

// ViolationSource runs validation rule analyses.
type ViolationSource interface {
	ValidationRuleAnalysis(ctx context.Context, req remote.ValidationRuleRequest) ([]remote.Violation, error)
}

// ValidationRules analyses every (org unit, rule group) pair and counts
// distinct violations per (org unit, period). A rule violated in the same
// org unit and period counts once even when several groups contain it.
func ValidationRules(ctx context.Context, src ViolationSource, req Request, p config.AnalyzerParams) Outcome {
	type task struct {
		orgUnit, group string
	}
	var tasks []task
	for _, ou := range req.OrgUnits {
		for _, g := range p.ValidationRuleGroups {
			tasks = append(tasks, task{ou, g})
		}
	}

	results := make([]types.Result[[]remote.Violation], len(tasks))
	var g errgroup.Group
	for i, tk := range tasks {
		g.Go(func() error {
			vs, err := src.ValidationRuleAnalysis(ctx, remote.ValidationRuleRequest{
				OrgUnit:      tk.orgUnit,
				StartDate:    req.Start.Format(period.DateLayout),
				EndDate:      req.End.Format(period.DateLayout),
				Group:        tk.group,
				MaxResults:   p.MaxResults,
				Notification: p.Notification,
				Persist:      p.Persist,
			})
			if err != nil {
				results[i] = types.Fail[[]remote.Violation](tk.orgUnit, err)
				return nil
			}
			results[i] = types.Ok(tk.orgUnit, vs)
			return nil
		})
	}
	_ = g.Wait()

	failed := make(map[string]bool)
	t := newTally()
	for i, r := range results {
		switch r.Err {
		case nil:
			for _, v := range r.Value {
				c := cell{v.OrganisationUnitID, v.PeriodID}
				t.add(c, v.ValidationRuleID+"/"+c.orgUnit+"/"+c.period)
			}
		default:
			failed[r.Source] = true
			slog.Error("counts: validation rule analysis failed",
				"stage", req.Stage, "org_unit", r.Source, "group", tasks[i].group, "err", r.Err)
		}
	}

	out := Outcome{Records: t.records(req)}
	for _, ou := range req.OrgUnits {
		if failed[ou] {
			out.Failed = append(out.Failed, ou)
		} else {
			out.Succeeded = append(out.Succeeded, ou)
		}
	}
	logOutcome("validation_rules", req, out)
	return out
}
