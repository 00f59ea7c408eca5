package runner

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dqworkbench/dqsync/internal/config"
	"github.com/dqworkbench/dqsync/internal/period"
	"github.com/dqworkbench/dqsync/internal/remote"
)

var errNoOrgUnits = errors.New("no org units resolved")

// prepared is one dataset of a min/max stage with its inputs resolved.
type prepared struct {
	DataSet  *remote.DataSet
	OrgUnits []string

	// DataElements narrows the dataset's numeric elements; nil keeps all.
	DataElements []string

	Periods    []period.Period
	Start, End time.Time
}

// prepare resolves the dataset structure, org units, data element filter and
// period window of one dataset in st.
func (r *run) prepare(ctx context.Context, st config.MinMaxStage, dataSetID string) (*prepared, error) {
	ds, err := r.client.DataSet(ctx, dataSetID)
	if err != nil {
		return nil, err
	}
	p := &prepared{DataSet: ds}

	ous := slices.Clone(st.OrgUnits)
	for _, g := range st.OrgUnitGroups {
		members, err := r.client.OrgUnitGroupMembers(ctx, g)
		if err != nil {
			return nil, err
		}
		ous = append(ous, members...)
	}
	if st.UseDatasetOrgUnits {
		ous = append(ous, ds.OrgUnitIDs()...)
	}
	slices.Sort(ous)
	p.OrgUnits = slices.Compact(ous)
	if len(p.OrgUnits) == 0 {
		return nil, fmt.Errorf("dataset %s: %w", dataSetID, errNoOrgUnits)
	}

	if len(st.DataElements) > 0 || len(st.DataElementGroups) > 0 {
		des := slices.Clone(st.DataElements)
		for _, g := range st.DataElementGroups {
			members, err := r.client.DataElementGroupMembers(ctx, g)
			if err != nil {
				return nil, err
			}
			for _, de := range members {
				if remote.IsNumeric(de.ValueType) {
					des = append(des, de.ID)
				}
			}
		}
		slices.Sort(des)
		p.DataElements = slices.Compact(des)
	}

	p.Periods, err = period.Previous(period.Type(ds.PeriodType), r.now, st.PreviousPeriods)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", dataSetID, err)
	}
	p.Start, p.End = period.Window(p.Periods)
	return p, nil
}
