package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dqworkbench/dqsync/pkg/types"
)

const validYAML = `
server:
  base_url: "https://hmis.example.org"
  auth:
    mode: token
    token_env: DQSYNC_TEST_TOKEN
  max_concurrent_requests: 4
upload:
  chunk_size: 500
completeness_threshold: 0.25
min_max_stages:
  - name: anc
    datasets: [BfMAe6Itzgt]
    org_units: [ImspTQPwCqd]
    previous_periods: 6
    missing_data_min: 0
    missing_data_max: 100
    groups:
      - limitMedian: 1000000
        method: zscore
        threshold: 3
      - limitMedian: 10
        method: CONSTANT
        constantMin: 0
        constantMax: 10
analyzer_stages:
  - name: outliers
    type: outlier
    level: 2
    duration: 12 months
    destination_data_element: deOutlierCnt
    params:
      data_sets: [BfMAe6Itzgt]
logging:
  level: DEBUG
schedule:
  cron: "0 2 * * *"
`

func TestLoad_Valid(t *testing.T) {
	cfg := loadFromString(t, validYAML)

	if cfg.Server.BaseURL != "https://hmis.example.org" {
		t.Errorf("base_url: got %q", cfg.Server.BaseURL)
	}
	if cfg.Server.MaxConcurrentRequests != 4 {
		t.Errorf("max_concurrent_requests: got %d", cfg.Server.MaxConcurrentRequests)
	}
	if cfg.Upload.ChunkSize != 500 {
		t.Errorf("chunk_size: got %d", cfg.Upload.ChunkSize)
	}
	require.Len(t, cfg.MinMaxStages, 1)
	st := cfg.MinMaxStages[0]
	assert.Equal(t, 6, st.PreviousPeriods)
	assert.Equal(t, 0.25, st.Threshold(cfg.CompletenessThreshold))
	assert.Equal(t, &types.Envelope{Min: 0, Max: 100}, st.MissingDefaults())
	assert.Equal(t, "debug", cfg.Logging.Level)

	require.Len(t, cfg.AnalyzerStages, 1)
	out := cfg.AnalyzerStages[0]
	assert.Equal(t, DefaultMaxResults, out.Params.MaxResults)
	assert.Equal(t, "MOD_Z_SCORE", out.Params.Algorithm)
}

func TestLoad_SortsBuckets(t *testing.T) {
	cfg := loadFromString(t, validYAML)
	groups := cfg.MinMaxStages[0].Groups
	require.Len(t, groups, 2)
	assert.Equal(t, types.MethodConstant, groups[0].Method)
	assert.Equal(t, 10.0, groups[0].LimitMedian)
	assert.Equal(t, types.MethodZScore, groups[1].Method)
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadFromString(t, `
server:
  base_url: "https://hmis.example.org"
  auth:
    mode: none
`)
	assert.Equal(t, DefaultMaxConcurrentRequests, cfg.Server.MaxConcurrentRequests)
	assert.Equal(t, DefaultRequestTimeout, cfg.Server.RequestTimeout)
	assert.Equal(t, DefaultBulkMinVersion, cfg.Server.BulkMinVersion)
	assert.Equal(t, types.DefaultCategoryOptionCombo, cfg.Server.DefaultCOC)
	assert.Equal(t, DefaultChunkSize, cfg.Upload.ChunkSize)
	assert.Equal(t, DefaultMaxAttempts, cfg.Upload.MaxAttempts)
	assert.Equal(t, DefaultBackoffBase, cfg.Upload.BackoffBase)
	assert.Equal(t, DefaultCompleteness, cfg.CompletenessThreshold)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "failure", cfg.Notify.On)
}

func TestLoad_StageThresholdOverride(t *testing.T) {
	cfg := loadFromString(t, `
server:
  base_url: "https://hmis.example.org"
  auth: {mode: none}
min_max_stages:
  - name: s
    datasets: [ds]
    use_dataset_orgunits: true
    completeness_threshold: 0.5
    groups:
      - {limitMedian: 100, method: IQR, threshold: 1.5}
`)
	st := cfg.MinMaxStages[0]
	assert.Equal(t, 0.5, st.Threshold(0.1))
	assert.Nil(t, st.MissingDefaults())
	assert.Equal(t, DefaultPreviousPeriods, st.PreviousPeriods)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing base url",
			yaml:    "server:\n  auth: {mode: none}\n",
			wantErr: "server.base_url",
		},
		{
			name:    "token mode without env",
			yaml:    "server:\n  base_url: https://x.org\n",
			wantErr: "token_env is required",
		},
		{
			name: "unknown method",
			yaml: `
server: {base_url: "https://x.org", auth: {mode: none}}
min_max_stages:
  - name: s
    datasets: [ds]
    org_units: [ou]
    groups:
      - {limitMedian: 10, method: MEAN, threshold: 1}
`,
			wantErr: "unknown method",
		},
		{
			name: "constant without integral bounds",
			yaml: `
server: {base_url: "https://x.org", auth: {mode: none}}
min_max_stages:
  - name: s
    datasets: [ds]
    org_units: [ou]
    groups:
      - {limitMedian: 10, method: CONSTANT, constantMin: 0.5, constantMax: 10}
`,
			wantErr: "must be integers",
		},
		{
			name: "constant min not below max",
			yaml: `
server: {base_url: "https://x.org", auth: {mode: none}}
min_max_stages:
  - name: s
    datasets: [ds]
    org_units: [ou]
    groups:
      - {limitMedian: 10, method: CONSTANT, constantMin: 5, constantMax: 5}
`,
			wantErr: "less than constantMax",
		},
		{
			name: "no org unit source",
			yaml: `
server: {base_url: "https://x.org", auth: {mode: none}}
min_max_stages:
  - name: s
    datasets: [ds]
    groups:
      - {limitMedian: 10, method: ZSCORE, threshold: 3}
`,
			wantErr: "org_units, org_unit_groups",
		},
		{
			name: "half configured missing defaults",
			yaml: `
server: {base_url: "https://x.org", auth: {mode: none}}
min_max_stages:
  - name: s
    datasets: [ds]
    org_units: [ou]
    missing_data_min: 0
    groups:
      - {limitMedian: 10, method: ZSCORE, threshold: 3}
`,
			wantErr: "set together",
		},
		{
			name: "bad analyzer duration",
			yaml: `
server: {base_url: "https://x.org", auth: {mode: none}}
analyzer_stages:
  - name: a
    type: validation_rules
    org_units: [ou]
    duration: forever
    destination_data_element: de
    params:
      validation_rule_groups: [g]
`,
			wantErr: "duration",
		},
		{
			name: "analyzer without destination",
			yaml: `
server: {base_url: "https://x.org", auth: {mode: none}}
analyzer_stages:
  - name: a
    type: outlier
    level: 2
    duration: 12 months
    params:
      data_sets: [ds]
`,
			wantErr: "destination_data_element is required",
		},
		{
			name: "integrity without monitoring group",
			yaml: `
server: {base_url: "https://x.org", auth: {mode: none}}
analyzer_stages:
  - name: mi
    type: integrity_checks
    params:
      period_type: Monthly
`,
			wantErr: "params.monitoring_group",
		},
		{
			name: "integrity with unknown period type",
			yaml: `
server: {base_url: "https://x.org", auth: {mode: none}}
analyzer_stages:
  - name: mi
    type: integrity_checks
    params:
      monitoring_group: grpMI
      period_type: Fortnightly
`,
			wantErr: "params.period_type",
		},
		{
			name:    "bad cron",
			yaml:    "server: {base_url: \"https://x.org\", auth: {mode: none}}\nschedule: {cron: \"every day\"}\n",
			wantErr: "schedule.cron",
		},
		{
			name:    "bad log level",
			yaml:    "server: {base_url: \"https://x.org\", auth: {mode: none}}\nlogging: {level: loud}\n",
			wantErr: "logging.level",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_IntegrityStage(t *testing.T) {
	cfg := loadFromString(t, `
server: {base_url: "https://x.org", auth: {mode: none}}
analyzer_stages:
  - name: mi
    type: integrity_checks
    params:
      monitoring_group: grpMI
      period_type: Monthly
      poll_interval: 1s
`)
	require.Len(t, cfg.AnalyzerStages, 1)
	p := cfg.AnalyzerStages[0].Params
	assert.Equal(t, "grpMI", p.MonitoringGroup)
	assert.Equal(t, time.Second, p.PollInterval)
	assert.Equal(t, DefaultIntegrityTimeout, p.PollTimeout)
}

func TestLoad_ReportsAllErrors(t *testing.T) {
	_, err := Parse([]byte(`
server: {base_url: "https://x.org", auth: {mode: none}}
min_max_stages:
  - name: s
    datasets: [ds]
    groups:
      - {limitMedian: 10, method: ZSCORE}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "positive threshold")
	assert.Contains(t, err.Error(), "org_units")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "config: read file"))
}

func TestAuthConfig_TokenFromEnv(t *testing.T) {
	t.Setenv("DQSYNC_TEST_TOKEN", "d2pat_abc")
	a := AuthConfig{Mode: "token", TokenEnv: "DQSYNC_TEST_TOKEN"}
	assert.Equal(t, "d2pat_abc", a.Token())
	assert.Equal(t, "", AuthConfig{}.Token())
}

func TestWatch_Reload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = Watch(ctx, path, func(c *Config) {
			select {
			case reloaded <- c:
			default:
			}
		})
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	updated := strings.Replace(validYAML, "chunk_size: 500", "chunk_size: 750", 1)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))

	select {
	case c := <-reloaded:
		assert.Equal(t, 750, c.Upload.ChunkSize)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
	cancel()
	<-done
}

// loadFromString writes yaml to a temp file and calls Load.
func loadFromString(t *testing.T, yaml string) *Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cfg
}
