package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/dqworkbench/dqsync/pkg/types"
)

const namespace = "dqsync"

// Exporter holds the run metrics.
type Exporter struct {
	reg      *prometheus.Registry
	textfile string

	counters    *prometheus.GaugeVec
	stageDur    *prometheus.GaugeVec
	runs        *prometheus.CounterVec
	lastRun     prometheus.Gauge
	lastDur     prometheus.Gauge
	lastSuccess prometheus.Gauge
}

// New registers the run metrics on a fresh registry. textfile may be empty.
func New(textfile string) *Exporter {
	e := &Exporter{
		reg:      prometheus.NewRegistry(),
		textfile: textfile,
		counters: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_counter",
			Help:      "Outcome counters of the last finished run.",
		}, []string{"counter"}),
		stageDur: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of each stage in the last finished run.",
		}, []string{"stage", "kind"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished runs by result.",
		}, []string{"result"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
		lastDur: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 if the last run finished without error, else 0.",
		}),
	}
	e.reg.MustRegister(e.counters, e.stageDur, e.runs, e.lastRun, e.lastDur, e.lastSuccess)
	return e
}

// Registry returns the registry holding the run metrics.
func (e *Exporter) Registry() *prometheus.Registry { return e.reg }

// Record updates the metrics from s and rewrites the textfile.
func (e *Exporter) Record(_ context.Context, s types.RunSummary) error {
	for name, v := range s.Counters.Map() {
		e.counters.WithLabelValues(name).Set(float64(v))
	}
	e.stageDur.Reset()
	for _, st := range s.Stages {
		e.stageDur.WithLabelValues(st.Name, st.Kind).Set(st.Duration.Seconds())
	}

	result, success := "failure", 0.0
	if s.Succeeded() {
		result, success = "success", 1
	}
	e.runs.WithLabelValues(result).Inc()
	e.lastRun.Set(float64(s.FinishedAt.Unix()))
	e.lastDur.Set(s.Duration().Seconds())
	e.lastSuccess.Set(success)

	if e.textfile == "" {
		return nil
	}
	return e.WriteTextfile()
}

// WriteTextfile writes the registry to the configured path via a temporary
// file in the same directory, so readers never observe a partial file.
func (e *Exporter) WriteTextfile() error {
	mfs, err := e.reg.Gather()
	if err != nil {
		return fmt.Errorf("report: gather: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(e.textfile), filepath.Base(e.textfile)+".tmp*")
	if err != nil {
		return fmt.Errorf("report: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(tmp, mf); err != nil {
			tmp.Close() //nolint:errcheck
			return fmt.Errorf("report: encode %s: %w", mf.GetName(), err)
		}
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("report: chmod: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("report: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), e.textfile); err != nil {
		return fmt.Errorf("report: rename: %w", err)
	}
	return nil
}
