package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 120, cfg.Timeouts.MutationPerFile)
	assert.Equal(t, 3, cfg.Pipeline.BaselineRuns)
	assert.Equal(t, "pytest", cfg.Pipeline.TestCmd)
	assert.Equal(t, 16000, cfg.Pipeline.MaxOutputChars)
	assert.Equal(t, 90, cfg.Retention.RetentionDays)
	assert.True(t, cfg.Security.BanditEnabled)
	assert.False(t, cfg.Security.SemgrepEnabled)

	sum := cfg.Scoring.MutationWeight + cfg.Scoring.StaticWeight +
		cfg.Scoring.BaselineWeight + cfg.Scoring.SentinelRiskWeight +
		cfg.Scoring.CoChangeWeight + cfg.Scoring.SecurityWeight
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Zero(t, cfg.Scoring.SecurityWeight)
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 0.30, cfg.Scoring.MutationWeight)
}

func TestLoadFromFile(t *testing.T) {
	repo := t.TempDir()
	dir := filepath.Join(repo, ".verdict")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	content := `
[pipeline]
baseline_runs = 5
test_cmd = "pytest -x"

[timeouts]
mutation_per_file = 60
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0o644))

	cfg, err := Load(repo)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Pipeline.BaselineRuns)
	assert.Equal(t, "pytest -x", cfg.Pipeline.TestCmd)
	assert.Equal(t, 60, cfg.Timeouts.MutationPerFile)
	// Untouched sections keep defaults.
	assert.Equal(t, 120, cfg.Timeouts.BaselinePerRun)
}

func TestEnvOverridesFile(t *testing.T) {
	repo := t.TempDir()
	t.Setenv("VERDICT_PIPELINE_BASELINE_RUNS", "7")
	t.Setenv("VERDICT_RETENTION_RETENTION_DAYS", "30")

	cfg, err := Load(repo)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Pipeline.BaselineRuns)
	assert.Equal(t, 30, cfg.Retention.RetentionDays)
}

func TestSecurityWeightRescaling(t *testing.T) {
	repo := t.TempDir()
	t.Setenv("VERDICT_SCORING_SECURITY_WEIGHT", "0.2")

	cfg, err := Load(repo)
	require.NoError(t, err)

	sum := cfg.Scoring.MutationWeight + cfg.Scoring.StaticWeight +
		cfg.Scoring.BaselineWeight + cfg.Scoring.SentinelRiskWeight +
		cfg.Scoring.CoChangeWeight + cfg.Scoring.SecurityWeight
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Equal(t, 0.2, cfg.Scoring.SecurityWeight)
	// The base weights keep their relative proportions.
	assert.InDelta(t, 0.30*0.8, cfg.Scoring.MutationWeight, 1e-9)
	assert.InDelta(t, 0.15*0.8, cfg.Scoring.CoChangeWeight, 1e-9)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Run("baseline runs below one", func(t *testing.T) {
		t.Setenv("VERDICT_PIPELINE_BASELINE_RUNS", "0")
		_, err := Load(t.TempDir())
		assert.Error(t, err)
	})

	t.Run("negative retention", func(t *testing.T) {
		t.Setenv("VERDICT_RETENTION_RETENTION_DAYS", "-1")
		_, err := Load(t.TempDir())
		assert.Error(t, err)
	})
}

func TestDBPath(t *testing.T) {
	cfg := Default()
	assert.Equal(t, filepath.Join("/repo", ".verdict", "verdict.db"), cfg.DBPath("/repo"))
}
