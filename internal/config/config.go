// Package config loads layered verdict configuration: built-in defaults,
// then <repo>/.verdict/config.toml, then VERDICT_* environment variables.
// Environment wins. The resulting Config is treated as immutable.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// TimeoutConfig holds per-stage subprocess timeouts in seconds.
type TimeoutConfig struct {
	MutationPerFile int `mapstructure:"mutation_per_file"`
	StaticAnalysis  int `mapstructure:"static_analysis"`
	BaselinePerRun  int `mapstructure:"baseline_per_run"`
	Diff            int `mapstructure:"diff"`
	MutmutResults   int `mapstructure:"mutmut_results"`
	Security        int `mapstructure:"security"`
}

// ScoringConfig holds dimension weights, grade thresholds, and deduction
// constants. Weights must sum to 1.0 after load (security included).
type ScoringConfig struct {
	MutationWeight     float64 `mapstructure:"mutation_weight"`
	StaticWeight       float64 `mapstructure:"static_weight"`
	BaselineWeight     float64 `mapstructure:"baseline_weight"`
	SentinelRiskWeight float64 `mapstructure:"sentinel_risk_weight"`
	CoChangeWeight     float64 `mapstructure:"co_change_weight"`
	SecurityWeight     float64 `mapstructure:"security_weight"`

	GradeA float64 `mapstructure:"grade_a"`
	GradeB float64 `mapstructure:"grade_b"`
	GradeC float64 `mapstructure:"grade_c"`
	GradeD float64 `mapstructure:"grade_d"`

	BaselineDeductionPerFlaky       float64 `mapstructure:"baseline_deduction_per_flaky"`
	RiskDeductionPerPitfall         float64 `mapstructure:"risk_deduction_per_pitfall"`
	RiskDeductionPerMissingCoChange float64 `mapstructure:"risk_deduction_per_missing_co_change"`
	RiskHotFileChurnDivisor         float64 `mapstructure:"risk_hot_file_churn_divisor"`
	RiskHotFileMaxDeduction         float64 `mapstructure:"risk_hot_file_max_deduction"`
	StaticIssueScaleFactor          float64 `mapstructure:"static_issue_scale_factor"`
	SecurityIssueScaleFactor        float64 `mapstructure:"security_issue_scale_factor"`

	SeverityCritical int `mapstructure:"severity_critical"`
	SeverityHigh     int `mapstructure:"severity_high"`
	SeverityMedium   int `mapstructure:"severity_medium"`
	SeverityLow      int `mapstructure:"severity_low"`
	SeverityInfo     int `mapstructure:"severity_info"`
}

// PipelineConfig holds pipeline behavior settings.
type PipelineConfig struct {
	BaselineRuns   int    `mapstructure:"baseline_runs"`
	TestCmd        string `mapstructure:"test_cmd"`
	MaxOutputChars int    `mapstructure:"max_output_chars"`
	DBDir          string `mapstructure:"db_dir"`
	DBName         string `mapstructure:"db_name"`
}

// RetentionConfig holds data retention settings.
type RetentionConfig struct {
	RetentionDays int  `mapstructure:"retention_days"`
	AutoPrune     bool `mapstructure:"auto_prune"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// SecurityConfig holds security-scanner settings.
type SecurityConfig struct {
	BanditEnabled        bool     `mapstructure:"bandit_enabled"`
	SemgrepEnabled       bool     `mapstructure:"semgrep_enabled"`
	DetectSecretsEnabled bool     `mapstructure:"detect_secrets_enabled"`
	SemgrepRules         string   `mapstructure:"semgrep_rules"`
	BanditSkip           []string `mapstructure:"bandit_skip"`
	DetectSecretsExclude []string `mapstructure:"detect_secrets_exclude"`
}

// AnyScannerEnabled reports whether at least one scanner is switched on.
func (s SecurityConfig) AnyScannerEnabled() bool {
	return s.BanditEnabled || s.SemgrepEnabled || s.DetectSecretsEnabled
}

// Config is the full verdict configuration.
type Config struct {
	Timeouts  TimeoutConfig   `mapstructure:"timeouts"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Retention RetentionConfig `mapstructure:"retention"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Security  SecurityConfig  `mapstructure:"security"`
}

// Load builds a Config for the given repository.
func Load(repoPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(filepath.Join(repoPath, ".verdict", "config.toml"))
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		// Missing file means defaults only; a present-but-broken file is an error.
		var notFound viper.ConfigFileNotFoundError
		var pathErr *fs.PathError
		if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("VERDICT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	normalizeWeights(&cfg.Scoring)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration with no file or env layered in.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always unmarshal cleanly.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// normalizeWeights rescales the five base dimension weights when security is
// given a share, so the six weights always sum to 1.0.
func normalizeWeights(s *ScoringConfig) {
	if s.SecurityWeight <= 0 {
		s.SecurityWeight = 0
		return
	}
	base := s.MutationWeight + s.StaticWeight + s.BaselineWeight +
		s.SentinelRiskWeight + s.CoChangeWeight
	if base <= 0 {
		return
	}
	scale := (1 - s.SecurityWeight) / base
	s.MutationWeight *= scale
	s.StaticWeight *= scale
	s.BaselineWeight *= scale
	s.SentinelRiskWeight *= scale
	s.CoChangeWeight *= scale
}

func (c *Config) validate() error {
	sum := c.Scoring.MutationWeight + c.Scoring.StaticWeight +
		c.Scoring.BaselineWeight + c.Scoring.SentinelRiskWeight +
		c.Scoring.CoChangeWeight + c.Scoring.SecurityWeight
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("dimension weights sum to %v, want 1.0", sum)
	}
	if c.Pipeline.BaselineRuns < 1 {
		return fmt.Errorf("pipeline.baseline_runs must be >= 1, got %d", c.Pipeline.BaselineRuns)
	}
	if c.Retention.RetentionDays < 0 {
		return fmt.Errorf("retention.retention_days must be >= 0, got %d", c.Retention.RetentionDays)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("timeouts.mutation_per_file", 120)
	v.SetDefault("timeouts.static_analysis", 60)
	v.SetDefault("timeouts.baseline_per_run", 120)
	v.SetDefault("timeouts.diff", 30)
	v.SetDefault("timeouts.mutmut_results", 30)
	v.SetDefault("timeouts.security", 60)

	v.SetDefault("scoring.mutation_weight", 0.30)
	v.SetDefault("scoring.static_weight", 0.20)
	v.SetDefault("scoring.baseline_weight", 0.15)
	v.SetDefault("scoring.sentinel_risk_weight", 0.20)
	v.SetDefault("scoring.co_change_weight", 0.15)
	v.SetDefault("scoring.security_weight", 0.0)
	v.SetDefault("scoring.grade_a", 90.0)
	v.SetDefault("scoring.grade_b", 75.0)
	v.SetDefault("scoring.grade_c", 60.0)
	v.SetDefault("scoring.grade_d", 40.0)
	v.SetDefault("scoring.baseline_deduction_per_flaky", 10.0)
	v.SetDefault("scoring.risk_deduction_per_pitfall", 5.0)
	v.SetDefault("scoring.risk_deduction_per_missing_co_change", 3.0)
	v.SetDefault("scoring.risk_hot_file_churn_divisor", 5.0)
	v.SetDefault("scoring.risk_hot_file_max_deduction", 10.0)
	v.SetDefault("scoring.static_issue_scale_factor", 10.0)
	v.SetDefault("scoring.security_issue_scale_factor", 10.0)
	v.SetDefault("scoring.severity_critical", 10)
	v.SetDefault("scoring.severity_high", 5)
	v.SetDefault("scoring.severity_medium", 2)
	v.SetDefault("scoring.severity_low", 1)
	v.SetDefault("scoring.severity_info", 0)

	v.SetDefault("pipeline.baseline_runs", 3)
	v.SetDefault("pipeline.test_cmd", "pytest")
	v.SetDefault("pipeline.max_output_chars", 16000)
	v.SetDefault("pipeline.db_dir", ".verdict")
	v.SetDefault("pipeline.db_name", "verdict.db")

	v.SetDefault("retention.retention_days", 90)
	v.SetDefault("retention.auto_prune", false)

	v.SetDefault("logging.level", "warn")

	v.SetDefault("security.bandit_enabled", true)
	v.SetDefault("security.semgrep_enabled", false)
	v.SetDefault("security.detect_secrets_enabled", true)
	v.SetDefault("security.semgrep_rules", "auto")
	v.SetDefault("security.bandit_skip", []string{})
	v.SetDefault("security.detect_secrets_exclude", []string{"tests/", "**/migrations/"})
}

// DBPath returns the per-repo database location.
func (c *Config) DBPath(repoPath string) string {
	return filepath.Join(repoPath, c.Pipeline.DBDir, c.Pipeline.DBName)
}
