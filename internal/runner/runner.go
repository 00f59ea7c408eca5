package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dqworkbench/dqsync/internal/config"
	"github.com/dqworkbench/dqsync/internal/counts"
	"github.com/dqworkbench/dqsync/internal/loader"
	"github.com/dqworkbench/dqsync/internal/remote"
	"github.com/dqworkbench/dqsync/internal/upload"
	"github.com/dqworkbench/dqsync/pkg/types"
)

// ErrRunInProgress is returned by Run when another run has not finished.
var ErrRunInProgress = errors.New("runner: a run is already in progress")

// Remote is the platform surface used by a run.
type Remote interface {
	SystemVersion(ctx context.Context) (remote.ServerVersion, error)
	Authorities(ctx context.Context) ([]string, error)
	DataSet(ctx context.Context, id string) (*remote.DataSet, error)
	OrgUnitGroupMembers(ctx context.Context, id string) ([]string, error)
	DataElementGroupMembers(ctx context.Context, id string) ([]remote.DataElement, error)
	OrgUnitsAtLevel(ctx context.Context, level int) ([]string, error)

	loader.Fetcher
	counts.ViolationSource
	counts.OutlierSource
	counts.IntegritySource
	upload.BoundsPoster
	upload.FactPoster
	upload.LegacyPoster
}

// RemoteFactory builds the client for one run.
type RemoteFactory func(cfg config.ServerConfig, gate *remote.Gate) (Remote, error)

// DefaultRemote builds a *remote.Client.
func DefaultRemote(cfg config.ServerConfig, gate *remote.Gate) (Remote, error) {
	return remote.New(cfg, gate)
}

// Sink receives every finished run summary.
type Sink interface {
	Record(ctx context.Context, s types.RunSummary) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, s types.RunSummary) error

func (f SinkFunc) Record(ctx context.Context, s types.RunSummary) error { return f(ctx, s) }

// Runner executes runs against the current configuration. Runs never overlap.
type Runner struct {
	cfg       atomic.Pointer[config.Config]
	newRemote RemoteFactory
	sinks     []Sink
	now       func() time.Time

	running sync.Mutex
}

// Option customises a Runner.
type Option func(*Runner)

// WithRemote replaces the client factory.
func WithRemote(f RemoteFactory) Option {
	return func(r *Runner) { r.newRemote = f }
}

// WithSinks registers summary sinks, called in order after every run.
func WithSinks(s ...Sink) Option {
	return func(r *Runner) { r.sinks = append(r.sinks, s...) }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// New returns a Runner for cfg.
func New(cfg *config.Config, opts ...Option) *Runner {
	r := &Runner{newRemote: DefaultRemote, now: time.Now}
	r.cfg.Store(cfg)
	for _, o := range opts {
		o(r)
	}
	return r
}

// SetConfig replaces the configuration used by subsequent runs.
func (r *Runner) SetConfig(cfg *config.Config) { r.cfg.Store(cfg) }

// Config returns the current configuration.
func (r *Runner) Config() *config.Config { return r.cfg.Load() }

// Run executes every stage whose name is in only (all stages when only is
// empty). The returned error is non-nil only when the run could not start;
// stage failures are reported through the summary.
func (r *Runner) Run(ctx context.Context, only []string) (types.RunSummary, error) {
	if !r.running.TryLock() {
		return types.RunSummary{}, ErrRunInProgress
	}
	defer r.running.Unlock()

	cfg := r.cfg.Load()
	sum := types.RunSummary{ID: uuid.NewString(), StartedAt: r.now()}
	log := slog.With("run_id", sum.ID)

	gate := remote.NewGate(cfg.Server.MaxConcurrentRequests)
	client, err := r.newRemote(cfg.Server, gate)
	if err != nil {
		return types.RunSummary{}, fmt.Errorf("runner: %w", err)
	}

	ru := &run{
		cfg:      cfg,
		client:   client,
		log:      log,
		now:      sum.StartedAt,
		uploader: upload.New(cfg.Upload, cfg.Server.MaxConcurrentRequests),
	}

	minMax := selectStages(cfg.MinMaxStages, only, func(s config.MinMaxStage) string { return s.Name })
	analyzers := selectStages(cfg.AnalyzerStages, only, func(s config.AnalyzerStage) string { return s.Name })
	log.Info("runner: run started", "min_max_stages", len(minMax), "count_stages", len(analyzers))

	var totals types.RunCounters

	if len(minMax) > 0 {
		endpoint, err := ru.preflight(ctx)
		for _, st := range minMax {
			var ss types.StageSummary
			if err != nil {
				ss = types.StageSummary{Name: st.Name, Kind: kindMinMax, Error: err.Error()}
			} else {
				ss = ru.minMaxStage(ctx, st, endpoint)
			}
			totals.Merge(ss.Counters)
			sum.Stages = append(sum.Stages, ss)
		}
	}

	results := make([]types.Result[types.StageSummary], len(analyzers))
	var g errgroup.Group
	for i, st := range analyzers {
		g.Go(func() error {
			results[i] = types.Ok(st.Name, ru.countStage(ctx, st))
			return nil
		})
	}
	_ = g.Wait()
	stages, _ := types.Partition(results)
	for _, ss := range stages {
		totals.Merge(ss.Counters)
		sum.Stages = append(sum.Stages, ss)
	}

	for _, ss := range sum.Stages {
		if ss.Error != "" {
			sum.FirstError = ss.Name + ": " + ss.Error
			break
		}
	}
	sum.Counters = totals.Snapshot()
	sum.FinishedAt = r.now()

	log.Info("runner: run finished",
		"duration", sum.Duration(),
		"succeeded", sum.Succeeded(),
		"first_error", sum.FirstError,
		"counters", sum.Counters.Map())

	for _, s := range r.sinks {
		if err := s.Record(ctx, sum); err != nil {
			log.Error("runner: sink failed", "err", err)
		}
	}
	return sum, nil
}

func selectStages[S any](all []S, only []string, name func(S) string) []S {
	if len(only) == 0 {
		return all
	}
	var out []S
	for _, s := range all {
		if slices.Contains(only, name(s)) {
			out = append(out, s)
		}
	}
	return out
}

// run is the state shared by the stages of one run.
type run struct {
	cfg      *config.Config
	client   Remote
	log      *slog.Logger
	now      time.Time
	uploader *upload.Uploader
}

// Authorities that allow writing min/max bounds.
var boundsAuthorities = []string{"F_MIN_MAX_ADD", "ALL"}

// preflight checks permissions and selects the bounds endpoint.
func (r *run) preflight(ctx context.Context) (upload.Endpoint, error) {
	auths, err := r.client.Authorities(ctx)
	if err != nil {
		return upload.EndpointLegacy, fmt.Errorf("runner: fetch authorities: %w", err)
	}
	if !slices.ContainsFunc(auths, func(a string) bool { return slices.Contains(boundsAuthorities, a) }) {
		return upload.EndpointLegacy, fmt.Errorf("runner: need one of %v: %w", boundsAuthorities, types.ErrPermission)
	}

	v, err := r.client.SystemVersion(ctx)
	if err != nil {
		return upload.EndpointLegacy, fmt.Errorf("runner: %w", err)
	}
	ep, err := upload.ChooseEndpoint(v, r.cfg.Server.BulkMinVersion, r.cfg.Server.MinMaxBulkAPIDisabled)
	if err != nil {
		return upload.EndpointLegacy, err
	}
	r.log.Info("runner: bounds endpoint selected", "endpoint", ep.String(), "server_version", v.String())
	return ep, nil
}
