package upload

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-version"
	"golang.org/x/sync/errgroup"

	"github.com/dqworkbench/dqsync/internal/remote"
	"github.com/dqworkbench/dqsync/pkg/types"
)

// Endpoint is the bounds upload path used for a run.
type Endpoint int

const (
	EndpointBulk Endpoint = iota
	EndpointLegacy
)

func (e Endpoint) String() string {
	if e == EndpointLegacy {
		return "legacy"
	}
	return "bulk"
}

// ChooseEndpoint returns EndpointBulk when the bulk endpoint is enabled and
// v is at least minVersion; snapshot suffixes on v are ignored.
func ChooseEndpoint(v remote.ServerVersion, minVersion string, disabled bool) (Endpoint, error) {
	if disabled {
		return EndpointLegacy, nil
	}
	floor, err := version.NewVersion(minVersion)
	if err != nil {
		return EndpointLegacy, fmt.Errorf("upload: parse minimum version %q: %w", minVersion, err)
	}
	if v.AtLeast(floor) {
		return EndpointBulk, nil
	}
	return EndpointLegacy, nil
}

// LegacyPoster is the single-record bounds endpoint.
type LegacyPoster interface {
	PostMinMaxValue(ctx context.Context, v remote.LegacyMinMaxValue) error
}

// UploadLegacy posts each record on its own without retries. Failed records
// are counted as ignored.
func UploadLegacy(ctx context.Context, u *Uploader, p LegacyPoster, records []types.BoundsRecord) Counts {
	results := make([]types.Result[struct{}], len(records))
	var g errgroup.Group
	g.SetLimit(max(u.Concurrency, 1))
	for i, r := range records {
		g.Go(func() error {
			err := p.PostMinMaxValue(ctx, remote.LegacyMinMaxValue{
				DataElement:         r.Key.Metric,
				OrgUnit:             r.Key.OrgUnit,
				CategoryOptionCombo: r.Key.CategoryOptionCombo,
				MinValue:            r.Bounds.Min,
				MaxValue:            r.Bounds.Max,
			})
			if err != nil {
				results[i] = types.Fail[struct{}](r.Key.String(), err)
				return nil
			}
			results[i] = types.Ok(r.Key.String(), struct{}{})
			return nil
		})
	}
	_ = g.Wait()

	var c Counts
	for _, res := range results {
		switch res.Err {
		case nil:
			c.Imported++
		default:
			c.Ignored++
			slog.Debug("upload: legacy record failed", "key", res.Source, "err", res.Err)
		}
	}
	slog.Info("upload: legacy finished", "records", len(records), "imported", c.Imported, "ignored", c.Ignored)
	return c
}
