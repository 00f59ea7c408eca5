package upload

import (
	"context"
	"strconv"

	"github.com/dqworkbench/dqsync/internal/remote"
	"github.com/dqworkbench/dqsync/pkg/types"
)

// BoundsPoster is the bulk bounds endpoint.
type BoundsPoster interface {
	UpsertMinMax(ctx context.Context, batch remote.MinMaxBatch) (remote.BulkOutcome, error)
}

// FactPoster is the data value import endpoint.
type FactPoster interface {
	PostDataValues(ctx context.Context, values []remote.DataValue, strategy remote.ImportStrategy) (remote.ImportCount, error)
}

// BulkBounds posts bound records for dataSet. When the platform omits the
// tally, every record of the chunk counts as imported.
func BulkBounds(p BoundsPoster, dataSet string) PostFunc[types.BoundsRecord] {
	return func(ctx context.Context, chunk []types.BoundsRecord) (Counts, error) {
		batch := remote.MinMaxBatch{DataSet: dataSet, Values: make([]remote.MinMaxValue, 0, len(chunk))}
		for _, r := range chunk {
			batch.Values = append(batch.Values, remote.MinMaxValue{
				DataElement: r.Key.Metric,
				OrgUnit:     r.Key.OrgUnit,
				OptionCombo: r.Key.CategoryOptionCombo,
				MinValue:    r.Bounds.Min,
				MaxValue:    r.Bounds.Max,
			})
		}
		out, err := p.UpsertMinMax(ctx, batch)
		if err != nil {
			return Counts{}, err
		}
		c := Counts{Imported: len(chunk)}
		if out.Successful != nil {
			c.Imported = *out.Successful
		}
		if out.Ignored != nil {
			c.Ignored = *out.Ignored
		}
		return c, nil
	}
}

// Facts posts sync records with the given import strategy, substituting
// defaultCOC for empty category option combos.
func Facts(p FactPoster, strategy remote.ImportStrategy, defaultCOC string) PostFunc[types.SyncRecord] {
	return func(ctx context.Context, chunk []types.SyncRecord) (Counts, error) {
		values := make([]remote.DataValue, 0, len(chunk))
		for _, r := range chunk {
			k := r.Key(defaultCOC)
			values = append(values, remote.DataValue{
				DataElement:         k.Metric,
				OrgUnit:             k.OrgUnit,
				Period:              k.Period,
				CategoryOptionCombo: k.CategoryOptionCombo,
				Value:               strconv.FormatFloat(r.Value, 'f', -1, 64),
			})
		}
		ic, err := p.PostDataValues(ctx, values, strategy)
		if err != nil {
			return Counts{}, err
		}
		return Counts{
			Imported: ic.Imported + ic.Updated,
			Ignored:  ic.Ignored,
			Deleted:  ic.Deleted,
		}, nil
	}
}
