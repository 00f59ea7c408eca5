package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/go-version"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/dqworkbench/dqsync/internal/period"
	"github.com/dqworkbench/dqsync/pkg/types"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultMaxConcurrentRequests = 10
	DefaultRequestTimeout        = 60 * time.Second
	DefaultBulkMinVersion        = "2.41.5"
	DefaultChunkSize             = 10000
	DefaultMaxAttempts           = 3
	DefaultBackoffBase           = 500 * time.Millisecond
	DefaultBackoffMax            = 30 * time.Second
	DefaultJitter                = 200 * time.Millisecond
	DefaultCompleteness          = 0.1
	DefaultPreviousPeriods       = 12
	DefaultMaxResults            = 500
	DefaultHistoryKeep           = 100
	DefaultIntegrityPoll         = 5 * time.Second
	DefaultIntegrityTimeout      = 10 * time.Minute
)

// Config is the top-level configuration. Fields map 1:1 to config.example.yaml.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Upload UploadConfig `yaml:"upload"`

	// CompletenessThreshold is the fraction of expected periods a series must
	// cover before bounds are computed. Stages may override it.
	CompletenessThreshold float64 `yaml:"completeness_threshold" validate:"gte=0,lte=1"`

	MinMaxStages   []MinMaxStage   `yaml:"min_max_stages" validate:"dive"`
	AnalyzerStages []AnalyzerStage `yaml:"analyzer_stages" validate:"dive"`

	Logging  LoggingConfig  `yaml:"logging"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Status   StatusConfig   `yaml:"status"`
	History  HistoryConfig  `yaml:"history"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Notify   NotifyConfig   `yaml:"notify"`
}

// ServerConfig describes the remote aggregate-data platform.
type ServerConfig struct {
	// BaseURL is the platform root, e.g. https://hmis.example.org.
	BaseURL string `yaml:"base_url" validate:"required,url"`

	Auth AuthConfig `yaml:"auth"`
	TLS  TLSConfig  `yaml:"tls"`

	// DefaultCOC replaces empty category option combos on values and facts.
	DefaultCOC string `yaml:"default_coc" validate:"required"`

	// MaxConcurrentRequests sizes the per-run gate shared by every request.
	MaxConcurrentRequests int `yaml:"max_concurrent_requests" validate:"gte=1"`

	RequestTimeout time.Duration `yaml:"request_timeout" validate:"gt=0"`

	// MinMaxBulkAPIDisabled forces the legacy per-record bounds endpoint.
	MinMaxBulkAPIDisabled bool `yaml:"min_max_bulk_api_disabled"`

	// BulkMinVersion is the lowest platform version with the bulk endpoint.
	BulkMinVersion string `yaml:"bulk_min_version" validate:"required"`
}

// AuthConfig specifies how requests to the platform are authenticated.
type AuthConfig struct {
	// Mode is one of: token | basic | none.
	Mode string `yaml:"mode" validate:"omitempty,oneof=token basic none"`

	// TokenEnv names the environment variable holding a personal access token.
	TokenEnv string `yaml:"token_env"`

	// Username is the literal basic-auth username.
	Username string `yaml:"username"`
	// PasswordEnv names the environment variable holding the password.
	PasswordEnv string `yaml:"password_env"`
}

// Token returns the access token resolved from the environment.
func (a AuthConfig) Token() string {
	if a.TokenEnv == "" {
		return ""
	}
	return os.Getenv(a.TokenEnv)
}

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string {
	if a.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(a.PasswordEnv)
}

// TLSConfig holds TLS dial options for the platform connection.
type TLSConfig struct {
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	CAFile             string `yaml:"ca_file"`
}

// UploadConfig tunes the chunked upload pipeline.
type UploadConfig struct {
	ChunkSize   int           `yaml:"chunk_size" validate:"gte=1"`
	MaxAttempts int           `yaml:"max_attempts" validate:"gte=1"`
	BackoffBase time.Duration `yaml:"backoff_base" validate:"gte=0"`
	BackoffMax  time.Duration `yaml:"backoff_max" validate:"gte=0"`
	Jitter      time.Duration `yaml:"jitter" validate:"gte=0"`
}

// MinMaxStage configures one bounds computation stage.
type MinMaxStage struct {
	Name     string   `yaml:"name" validate:"required"`
	Datasets []string `yaml:"datasets" validate:"min=1,dive,required"`

	// Org units come from OrgUnits, the members of OrgUnitGroups, or the
	// dataset's own assignment when UseDatasetOrgUnits is set.
	OrgUnits           []string `yaml:"org_units"`
	OrgUnitGroups      []string `yaml:"org_unit_groups"`
	UseDatasetOrgUnits bool     `yaml:"use_dataset_orgunits"`

	// DataElements and DataElementGroups restrict the metrics considered.
	// Both empty means every numeric element of the dataset.
	DataElements      []string `yaml:"data_elements"`
	DataElementGroups []string `yaml:"data_element_groups"`

	PreviousPeriods       int      `yaml:"previous_periods" validate:"gte=1"`
	CompletenessThreshold *float64 `yaml:"completeness_threshold" validate:"omitempty,gte=0,lte=1"`

	MissingDataMin *float64 `yaml:"missing_data_min"`
	MissingDataMax *float64 `yaml:"missing_data_max"`

	Groups []types.MethodBucket `yaml:"groups" validate:"min=1"`
}

// Threshold returns the stage completeness threshold, falling back to global.
func (s MinMaxStage) Threshold(global float64) float64 {
	if s.CompletenessThreshold != nil {
		return *s.CompletenessThreshold
	}
	return global
}

// MissingDefaults returns the envelope for keys with insufficient or absent
// data, or nil when the stage configures none.
func (s MinMaxStage) MissingDefaults() *types.Envelope {
	if s.MissingDataMin == nil || s.MissingDataMax == nil {
		return nil
	}
	return &types.Envelope{
		Min: int64(math.Floor(*s.MissingDataMin)),
		Max: int64(math.Ceil(*s.MissingDataMax)),
	}
}

// Analyzer stage types.
const (
	AnalyzerValidationRules = "validation_rules"
	AnalyzerOutlier         = "outlier"
	AnalyzerIntegrity       = "integrity_checks"
)

// AnalyzerStage configures one count stage whose per-(org unit, period)
// counts are reconciled into a destination data element.
//
// integrity_checks stages ignore OrgUnits, Level, Duration and
// DestinationDataElement: counts go to the level-1 org unit for the current
// period, one data element per check.
type AnalyzerStage struct {
	Name string `yaml:"name" validate:"required"`

	// Type is one of: validation_rules | outlier | integrity_checks.
	Type string `yaml:"type" validate:"required,oneof=validation_rules outlier integrity_checks"`

	// OrgUnits or Level selects the analysed org units.
	OrgUnits []string `yaml:"org_units"`
	Level    int      `yaml:"level" validate:"gte=0"`

	// Duration is the look-back window, e.g. "12 months".
	Duration string `yaml:"duration"`

	DestinationDataElement string `yaml:"destination_data_element"`

	Params AnalyzerParams `yaml:"params"`
}

// AnalyzerParams holds the type-specific analysis parameters.
type AnalyzerParams struct {
	MaxResults int `yaml:"max_results" validate:"gte=0"`

	// validation_rules
	ValidationRuleGroups []string `yaml:"validation_rule_groups"`
	Notification         bool     `yaml:"notification"`
	Persist              bool     `yaml:"persist"`

	// outlier
	DataSets  []string `yaml:"data_sets"`
	Algorithm string   `yaml:"algorithm" validate:"omitempty,oneof=Z_SCORE MOD_Z_SCORE MIN_MAX"`
	Threshold float64  `yaml:"threshold" validate:"gte=0"`
	OrderBy   string   `yaml:"order_by"`
	SortOrder string   `yaml:"sort_order" validate:"omitempty,oneof=ASC DESC"`
	// LowerBound skips outliers whose value is at or below it.
	LowerBound float64 `yaml:"lower_bound"`

	// integrity_checks
	MonitoringGroup string        `yaml:"monitoring_group"`
	PeriodType      string        `yaml:"period_type"`
	PollInterval    time.Duration `yaml:"poll_interval" validate:"gte=0"`
	PollTimeout     time.Duration `yaml:"poll_timeout" validate:"gte=0"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level is one of: debug | info | warn | error.
	Level string `yaml:"level" validate:"oneof=debug info warn error"`

	// File, when set, receives a copy of every log line with size-based rotation.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" validate:"gte=0"`
	Compress   bool   `yaml:"compress"`
}

// ScheduleConfig drives daemon mode.
type ScheduleConfig struct {
	// Cron is a standard five-field expression or descriptor like "@daily".
	Cron       string `yaml:"cron"`
	RunOnStart bool   `yaml:"run_on_start"`
}

// StatusConfig configures the HTTP status API. Empty Listen disables it.
type StatusConfig struct {
	Listen string           `yaml:"listen"`
	Auth   StatusAuthConfig `yaml:"auth"`

	// TriggerPerMinute limits manual run triggers. Zero means unlimited.
	TriggerPerMinute int `yaml:"trigger_per_minute" validate:"gte=0"`
}

// StatusAuthConfig configures status API authentication.
type StatusAuthConfig struct {
	// Mode is one of: apikey | none.
	Mode   string `yaml:"mode" validate:"omitempty,oneof=apikey none"`
	Header string `yaml:"header"`
	KeyEnv string `yaml:"key_env"`
}

// Key returns the expected API key resolved from the environment.
func (a StatusAuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// HistoryConfig enables the SQLite run history when Path is set.
type HistoryConfig struct {
	Path string `yaml:"path"`
	Keep int    `yaml:"keep" validate:"gte=1"`
}

// MetricsConfig configures the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// NotifyConfig configures run outcome webhooks.
type NotifyConfig struct {
	// On is one of: failure | always.
	On       string          `yaml:"on" validate:"oneof=failure always"`
	Webhooks []WebhookConfig `yaml:"webhooks" validate:"dive"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: slack | teams | http.
	Type string `yaml:"type" validate:"oneof=slack teams http"`

	// URLEnv is the name of the environment variable holding the webhook URL.
	URLEnv string `yaml:"url_env" validate:"required"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse decodes, normalises and validates raw YAML.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	normalize(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			DefaultCOC:            types.DefaultCategoryOptionCombo,
			MaxConcurrentRequests: DefaultMaxConcurrentRequests,
			RequestTimeout:        DefaultRequestTimeout,
			BulkMinVersion:        DefaultBulkMinVersion,
			Auth:                  AuthConfig{Mode: "token"},
		},
		Upload: UploadConfig{
			ChunkSize:   DefaultChunkSize,
			MaxAttempts: DefaultMaxAttempts,
			BackoffBase: DefaultBackoffBase,
			BackoffMax:  DefaultBackoffMax,
			Jitter:      DefaultJitter,
		},
		CompletenessThreshold: DefaultCompleteness,
		Logging:               LoggingConfig{Level: "info", MaxSizeMB: 50, MaxBackups: 5},
		Status:                StatusConfig{Auth: StatusAuthConfig{Mode: "none", Header: "X-API-Key"}},
		History:               HistoryConfig{Keep: DefaultHistoryKeep},
		Notify:                NotifyConfig{On: "failure"},
	}
}

// normalize fills per-stage defaults and sorts bucket tables ascending by
// limitMedian so method selection can take the first match.
func normalize(cfg *Config) {
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	for i := range cfg.MinMaxStages {
		st := &cfg.MinMaxStages[i]
		if st.PreviousPeriods == 0 {
			st.PreviousPeriods = DefaultPreviousPeriods
		}
		sort.SliceStable(st.Groups, func(a, b int) bool {
			return st.Groups[a].LimitMedian < st.Groups[b].LimitMedian
		})
	}
	for i := range cfg.AnalyzerStages {
		st := &cfg.AnalyzerStages[i]
		if st.Params.MaxResults == 0 {
			st.Params.MaxResults = DefaultMaxResults
		}
		if st.Type == AnalyzerIntegrity {
			if st.Params.PollInterval == 0 {
				st.Params.PollInterval = DefaultIntegrityPoll
			}
			if st.Params.PollTimeout == 0 {
				st.Params.PollTimeout = DefaultIntegrityTimeout
			}
		}
		if st.Type == AnalyzerOutlier {
			if st.Params.OrderBy == "" {
				st.Params.OrderBy = "MEAN_ABS_DEV"
			}
			if st.Params.Algorithm == "" {
				st.Params.Algorithm = "MOD_Z_SCORE"
			}
			if st.Params.Threshold == 0 {
				st.Params.Threshold = 3
			}
		}
	}
}

var structValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report yaml field names so errors point at the config file keys.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validate checks struct tags first, then cross-field constraints. All
// failures are reported together.
func validate(cfg *Config) error {
	var result *multierror.Error

	if err := structValidator.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			field := strings.TrimPrefix(fe.Namespace(), "Config.")
			if fe.Param() != "" {
				result = multierror.Append(result, fmt.Errorf("%s: must satisfy %s=%s", field, fe.Tag(), fe.Param()))
			} else {
				result = multierror.Append(result, fmt.Errorf("%s: must satisfy %s", field, fe.Tag()))
			}
		}
	}

	if _, err := version.NewVersion(cfg.Server.BulkMinVersion); err != nil && cfg.Server.BulkMinVersion != "" {
		result = multierror.Append(result, fmt.Errorf("server.bulk_min_version: %w", err))
	}
	if cfg.Server.Auth.Mode == "token" && cfg.Server.Auth.TokenEnv == "" {
		result = multierror.Append(result, errors.New("server.auth.token_env is required for mode token"))
	}
	if cfg.Server.Auth.Mode == "basic" && cfg.Server.Auth.Username == "" {
		result = multierror.Append(result, errors.New("server.auth.username is required for mode basic"))
	}
	if cfg.Schedule.Cron != "" {
		if _, err := cron.ParseStandard(cfg.Schedule.Cron); err != nil {
			result = multierror.Append(result, fmt.Errorf("schedule.cron: %w", err))
		}
	}

	names := make(map[string]bool)
	for i, st := range cfg.MinMaxStages {
		if names[st.Name] && st.Name != "" {
			result = multierror.Append(result, fmt.Errorf("min_max_stages[%d]: duplicate stage name %q", i, st.Name))
		}
		names[st.Name] = true
		for _, err := range validateMinMaxStage(st) {
			result = multierror.Append(result, fmt.Errorf("min_max_stages[%d] %q: %w", i, st.Name, err))
		}
	}
	for i, st := range cfg.AnalyzerStages {
		if names[st.Name] && st.Name != "" {
			result = multierror.Append(result, fmt.Errorf("analyzer_stages[%d]: duplicate stage name %q", i, st.Name))
		}
		names[st.Name] = true
		for _, err := range validateAnalyzerStage(st) {
			result = multierror.Append(result, fmt.Errorf("analyzer_stages[%d] %q: %w", i, st.Name, err))
		}
	}

	return result.ErrorOrNil()
}

func validateMinMaxStage(st MinMaxStage) []error {
	var errs []error
	if len(st.OrgUnits) == 0 && len(st.OrgUnitGroups) == 0 && !st.UseDatasetOrgUnits {
		errs = append(errs, errors.New("one of org_units, org_unit_groups or use_dataset_orgunits is required"))
	}
	if (st.MissingDataMin == nil) != (st.MissingDataMax == nil) {
		errs = append(errs, errors.New("missing_data_min and missing_data_max must be set together"))
	} else if st.MissingDataMin != nil && *st.MissingDataMin > *st.MissingDataMax {
		errs = append(errs, errors.New("missing_data_min must not exceed missing_data_max"))
	}
	for j, b := range st.Groups {
		switch b.Method {
		case types.MethodConstant:
			if b.ConstantMin == nil || b.ConstantMax == nil {
				errs = append(errs, fmt.Errorf("groups[%d]: CONSTANT requires constantMin and constantMax", j))
				continue
			}
			if !isInteger(*b.ConstantMin) || !isInteger(*b.ConstantMax) {
				errs = append(errs, fmt.Errorf("groups[%d]: constantMin and constantMax must be integers", j))
			} else if *b.ConstantMin >= *b.ConstantMax {
				errs = append(errs, fmt.Errorf("groups[%d]: constantMin must be less than constantMax", j))
			}
		case types.MethodUnknown:
			errs = append(errs, fmt.Errorf("groups[%d]: method is required", j))
		default:
			if b.Threshold <= 0 {
				errs = append(errs, fmt.Errorf("groups[%d]: %s requires a positive threshold", j, b.Method))
			}
		}
	}
	return errs
}

func validateAnalyzerStage(st AnalyzerStage) []error {
	var errs []error
	if st.Type == AnalyzerIntegrity {
		if st.Params.MonitoringGroup == "" {
			errs = append(errs, errors.New("params.monitoring_group is required"))
		}
		if _, err := period.Containing(period.Type(st.Params.PeriodType), time.Now()); err != nil {
			errs = append(errs, fmt.Errorf("params.period_type: %w", err))
		}
		return errs
	}

	if len(st.OrgUnits) == 0 && st.Level == 0 {
		errs = append(errs, errors.New("one of org_units or level is required"))
	}
	if st.DestinationDataElement == "" {
		errs = append(errs, errors.New("destination_data_element is required"))
	}
	if st.Duration == "" {
		errs = append(errs, errors.New("duration is required"))
	} else if _, err := period.ParseDuration(st.Duration); err != nil {
		errs = append(errs, fmt.Errorf("duration: %w", err))
	}
	if st.Type == AnalyzerValidationRules && len(st.Params.ValidationRuleGroups) == 0 {
		errs = append(errs, errors.New("params.validation_rule_groups is required"))
	}
	if st.Type == AnalyzerOutlier && len(st.Params.DataSets) == 0 {
		errs = append(errs, errors.New("params.data_sets is required"))
	}
	return errs
}

func isInteger(f float64) bool {
	return !math.IsInf(f, 0) && f == math.Trunc(f)
}
