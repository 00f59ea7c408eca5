package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/dqworkbench/dqsync/internal/config"
	"github.com/dqworkbench/dqsync/internal/history"
	"github.com/dqworkbench/dqsync/internal/logging"
	"github.com/dqworkbench/dqsync/internal/notify"
	"github.com/dqworkbench/dqsync/internal/report"
	"github.com/dqworkbench/dqsync/internal/runner"
	"github.com/dqworkbench/dqsync/internal/schedule"
	"github.com/dqworkbench/dqsync/internal/status"
	"github.com/dqworkbench/dqsync/pkg/types"
)

// statusStoreLimit is the number of run summaries kept in memory.
const statusStoreLimit = 50

func main() {
	os.Exit(run())
}

func run() int {
	configPath := pflag.StringP("config", "c", "config.yaml", "path to config file")
	once := pflag.Bool("once", false, "execute a single run and exit")
	stages := pflag.StringSlice("stage", nil, "run only the named stages (repeatable)")
	logLevel := pflag.String("log-level", "", "override logging.level from the config file")
	logFile := pflag.String("log-file", "", "override logging.file from the config file")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	overrides := func(c *config.Config) {
		if *logLevel != "" {
			c.Logging.Level = *logLevel
		}
		if *logFile != "" {
			c.Logging.File = *logFile
		}
	}
	overrides(cfg)

	logger, err := logging.Setup(cfg.Logging, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	defer logger.Close() //nolint:errcheck

	slog.Info("dqsync starting",
		"config", *configPath,
		"base_url", cfg.Server.BaseURL,
		"min_max_stages", len(cfg.MinMaxStages),
		"analyzer_stages", len(cfg.AnalyzerStages),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store := status.NewStore(statusStoreLimit)
	exporter := report.New(cfg.Metrics.Textfile)
	sinks := []runner.Sink{store, exporter, notify.New(cfg.Notify)}

	var hist *history.Store
	if cfg.History.Path != "" {
		hist, err = history.Open(cfg.History.Path, cfg.History.Keep)
		if err != nil {
			slog.Error("failed to open run history", "path", cfg.History.Path, "err", err)
			return 1
		}
		defer hist.Close() //nolint:errcheck
		sinks = append(sinks, hist)
	}

	rn := runner.New(cfg, runner.WithSinks(sinks...))

	if *once {
		sum, err := rn.Run(ctx, *stages)
		if err != nil {
			slog.Error("run could not start", "err", err)
			return 1
		}
		if !sum.Succeeded() {
			return 1
		}
		return 0
	}

	return daemon(ctx, *configPath, overrides, rn, logger, store, exporter, hist, *stages)
}

// daemon runs on the configured schedule until ctx is cancelled.
func daemon(
	ctx context.Context,
	configPath string,
	overrides func(*config.Config),
	rn *runner.Runner,
	logger *logging.Logger,
	store *status.Store,
	exporter *report.Exporter,
	hist *history.Store,
	stages []string,
) int {
	cfg := rn.Config()
	sched := schedule.New(ctx, func(ctx context.Context) (types.RunSummary, error) {
		return rn.Run(ctx, stages)
	})
	if err := sched.Start(cfg.Schedule.Cron, cfg.Schedule.RunOnStart); err != nil {
		slog.Error("failed to start scheduler", "err", err)
		return 1
	}
	defer sched.Stop()

	go func() {
		if err := config.Watch(ctx, configPath, func(updated *config.Config) {
			overrides(updated)
			rn.SetConfig(updated)
			if err := logger.SetLevel(updated.Logging.Level); err != nil {
				slog.Error("logging: level not applied", "err", err)
			}
			if err := sched.Reschedule(updated.Schedule.Cron); err != nil {
				slog.Error("schedule not applied, keeping previous", "err", err)
			}
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	if cfg.Status.Listen != "" {
		opts := status.Options{
			Store:            store,
			Trigger:          sched.Trigger,
			Registry:         exporter.Registry(),
			Auth:             cfg.Status.Auth,
			TriggerPerMinute: cfg.Status.TriggerPerMinute,
		}
		if hist != nil {
			opts.History = hist
		}
		go func() {
			if err := status.Serve(ctx, cfg.Status.Listen, status.New(opts)); err != nil {
				slog.Error("status server stopped", "err", err)
			}
		}()
	}

	<-ctx.Done()
	slog.Info("dqsync shutting down")
	if sched.Busy() {
		slog.Info("waiting for the active run to stop")
	}
	return 0
}
