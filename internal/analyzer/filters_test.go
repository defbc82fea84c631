package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"verdict/internal/config"
	"verdict/internal/models"
)

func credFinding(sourceLine string) models.SecurityFinding {
	return models.SecurityFinding{
		FilePath:   "src/auth.py",
		LineNumber: 10,
		Code:       "B105",
		Message:    "Possible hardcoded password",
		Severity:   models.SeverityHigh,
		Analyzer:   models.AnalyzerBandit,
		CWEID:      "CWE-259",
		SourceLine: sourceLine,
	}
}

func TestFilterCredentialFalsePositives(t *testing.T) {
	sec := config.SecurityConfig{}

	t.Run("comparison is dropped", func(t *testing.T) {
		out := FilterSecurityFindings([]models.SecurityFinding{credFinding(`if password != "":`)}, sec)
		assert.Empty(t, out)
	})

	t.Run("real hardcoded value is kept", func(t *testing.T) {
		out := FilterSecurityFindings([]models.SecurityFinding{credFinding(`password = "hunter2"`)}, sec)
		assert.Len(t, out, 1)
	})

	t.Run("env read is dropped", func(t *testing.T) {
		out := FilterSecurityFindings([]models.SecurityFinding{credFinding(`password = os.environ["DB_PASSWORD"]`)}, sec)
		assert.Empty(t, out)
	})

	t.Run("dict lookup is dropped", func(t *testing.T) {
		out := FilterSecurityFindings([]models.SecurityFinding{credFinding(`token = cfg.get("token")`)}, sec)
		assert.Empty(t, out)
	})

	t.Run("empty default is dropped", func(t *testing.T) {
		out := FilterSecurityFindings([]models.SecurityFinding{credFinding(`password = ""`)}, sec)
		assert.Empty(t, out)
	})

	t.Run("none default is dropped", func(t *testing.T) {
		out := FilterSecurityFindings([]models.SecurityFinding{credFinding(`api_key = None`)}, sec)
		assert.Empty(t, out)
	})
}

func TestFilterWeakRandomness(t *testing.T) {
	sec := config.SecurityConfig{}
	randomFinding := func(filePath, sourceLine string) models.SecurityFinding {
		return models.SecurityFinding{
			FilePath:   filePath,
			Code:       "B311",
			Severity:   models.SeverityLow,
			Analyzer:   models.AnalyzerBandit,
			SourceLine: sourceLine,
		}
	}

	t.Run("demo file is dropped", func(t *testing.T) {
		out := FilterSecurityFindings([]models.SecurityFinding{
			randomFinding("examples/demo_data.py", "value = random.random()"),
		}, sec)
		assert.Empty(t, out)
	})

	t.Run("backoff context is dropped", func(t *testing.T) {
		out := FilterSecurityFindings([]models.SecurityFinding{
			randomFinding("src/client.py", "delay = base * random.random()  # jitter"),
		}, sec)
		assert.Empty(t, out)
	})

	t.Run("crypto-adjacent use is kept", func(t *testing.T) {
		out := FilterSecurityFindings([]models.SecurityFinding{
			randomFinding("src/tokens.py", "nonce = random.randint(0, 2**32)"),
		}, sec)
		assert.Len(t, out, 1)
	})
}

func TestFilterSkipList(t *testing.T) {
	sec := config.SecurityConfig{BanditSkip: []string{"B101"}}
	findings := []models.SecurityFinding{
		{Code: "B101", Analyzer: models.AnalyzerBandit},
		{Code: "B608", Analyzer: models.AnalyzerBandit},
	}
	out := FilterSecurityFindings(findings, sec)
	assert.Len(t, out, 1)
	assert.Equal(t, "B608", out[0].Code)
}

func TestFilterPreservesOrder(t *testing.T) {
	findings := []models.SecurityFinding{
		{Code: "B608", FilePath: "a.py"},
		{Code: "B602", FilePath: "b.py"},
		{Code: "B303", FilePath: "c.py"},
	}
	out := FilterSecurityFindings(findings, config.SecurityConfig{})
	assert.Equal(t, []string{"a.py", "b.py", "c.py"},
		[]string{out[0].FilePath, out[1].FilePath, out[2].FilePath})
}

func TestExcludeFiles(t *testing.T) {
	abs := []string{
		"/repo/tests/test_app.py",
		"/repo/src/app.py",
		"/repo/src/migrations/0001_init.py",
	}
	kept := ExcludeFiles(abs, "/repo", []string{"tests/", "**/migrations/*"})
	assert.Equal(t, []string{"/repo/src/app.py"}, kept)
}

func TestMatchesAnyPattern(t *testing.T) {
	assert.True(t, matchesAnyPattern("tests/test_x.py", []string{"tests/"}))
	assert.True(t, matchesAnyPattern("app/migrations/0001.py", []string{"**/migrations/*"}))
	assert.False(t, matchesAnyPattern("src/app.py", []string{"tests/", "**/migrations/*"}))
}
