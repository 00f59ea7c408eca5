package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"

	"github.com/dqworkbench/dqsync/internal/runner"
	"github.com/dqworkbench/dqsync/internal/status"
	"github.com/dqworkbench/dqsync/pkg/types"
)

// RunFunc executes one run.
type RunFunc func(ctx context.Context) (types.RunSummary, error)

// Scheduler owns the cron loop and the single active run.
type Scheduler struct {
	run  RunFunc
	cron *cron.Cron

	mu    sync.Mutex
	entry cron.EntryID
	spec  string

	ctx  context.Context
	busy atomic.Bool
	wg   sync.WaitGroup
}

// New returns a Scheduler whose runs are bound to ctx.
func New(ctx context.Context, run RunFunc) *Scheduler {
	logger := cron.PrintfLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelDebug))
	return &Scheduler{
		run:  run,
		ctx:  ctx,
		cron: cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger))),
	}
}

// Start schedules spec (empty means manual runs only), starts the cron loop
// and, when runOnStart is set, begins a run immediately.
func (s *Scheduler) Start(spec string, runOnStart bool) error {
	if err := s.Reschedule(spec); err != nil {
		return err
	}
	s.cron.Start()
	if runOnStart {
		if err := s.Trigger(); err != nil {
			return err
		}
	}
	return nil
}

// Reschedule replaces the cron expression. It is a no-op when spec is
// unchanged.
func (s *Scheduler) Reschedule(spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if spec == s.spec && (s.entry != 0 || spec == "") {
		return nil
	}

	var id cron.EntryID
	if spec != "" {
		var err error
		id, err = s.cron.AddFunc(spec, s.tick)
		if err != nil {
			return fmt.Errorf("schedule: %q: %w", spec, err)
		}
	}
	if s.entry != 0 {
		s.cron.Remove(s.entry)
	}
	s.entry, s.spec = id, spec
	if spec == "" {
		slog.Warn("schedule: no cron expression, runs start only on demand")
	} else {
		slog.Info("schedule: cron set", "cron", spec)
	}
	return nil
}

func (s *Scheduler) tick() {
	if !s.busy.CompareAndSwap(false, true) {
		slog.Warn("schedule: previous run still active, skipping tick")
		return
	}
	s.wg.Add(1)
	defer s.wg.Done()
	s.execute()
}

// Trigger starts a run in the background. It returns status.ErrBusy when a
// run is already active.
func (s *Scheduler) Trigger() error {
	if s.ctx.Err() != nil {
		return s.ctx.Err()
	}
	if !s.busy.CompareAndSwap(false, true) {
		return status.ErrBusy
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute()
	}()
	return nil
}

// execute runs once. The caller must have set busy.
func (s *Scheduler) execute() {
	defer s.busy.Store(false)
	sum, err := s.run(s.ctx)
	switch {
	case errors.Is(err, runner.ErrRunInProgress):
		slog.Warn("schedule: run already in progress")
	case err != nil:
		slog.Error("schedule: run could not start", "err", err)
	default:
		slog.Debug("schedule: run complete", "run_id", sum.ID, "succeeded", sum.Succeeded())
	}
}

// Busy reports whether a run is active.
func (s *Scheduler) Busy() bool { return s.busy.Load() }

// Stop stops the cron loop and waits for an active run to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.wg.Wait()
}
