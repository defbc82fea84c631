// Package scoring holds the per-dimension score functions and the fusion
// that turns them into a graded assessment report.
package scoring

import (
	"verdict/internal/config"
	"verdict/internal/models"
)

// BaselineScore deducts per flaky test, floored at zero.
func BaselineScore(baseline *models.BaselineResult, s config.ScoringConfig) float64 {
	if baseline == nil {
		return 100
	}
	flaky := float64(len(baseline.FlakyTests))
	if flaky == 0 {
		return 100
	}
	score := 100 - flaky*s.BaselineDeductionPerFlaky
	if score < 0 {
		return 0
	}
	return score
}

// MutationScore is the percentage of killed mutants. No mutants scores 100.
func MutationScore(results []models.MutationResult) float64 {
	if len(results) == 0 {
		return 100
	}
	killed := 0
	for _, r := range results {
		if r.Status == models.MutantKilled {
			killed++
		}
	}
	return models.Round1(float64(killed) / float64(len(results)) * 100)
}

func severityWeight(sev models.Severity, s config.ScoringConfig) float64 {
	switch sev {
	case models.SeverityCritical:
		return float64(s.SeverityCritical)
	case models.SeverityHigh:
		return float64(s.SeverityHigh)
	case models.SeverityMedium:
		return float64(s.SeverityMedium)
	case models.SeverityLow:
		return float64(s.SeverityLow)
	case models.SeverityInfo:
		return float64(s.SeverityInfo)
	default:
		return 1
	}
}

// StaticScore deducts severity-weighted issues per changed file.
func StaticScore(findings []models.StaticFinding, fileCount int, s config.ScoringConfig) float64 {
	if fileCount == 0 {
		return 100
	}
	weighted := 0.0
	for _, f := range findings {
		weighted += severityWeight(f.Severity, s)
	}
	score := 100 - weighted/float64(fileCount)*s.StaticIssueScaleFactor
	if score < 0 {
		return 0
	}
	return models.Round1(score)
}

// SecurityScore is the static shape with a CWE-tier multiplier applied per
// finding before summing. cweWeight maps a CWE id onto its tier multiplier.
func SecurityScore(findings []models.SecurityFinding, fileCount int, s config.ScoringConfig, cweWeight func(string) float64) float64 {
	if fileCount == 0 {
		return 100
	}
	weighted := 0.0
	for _, f := range findings {
		weighted += severityWeight(f.Severity, s) * cweWeight(f.CWEID)
	}
	score := 100 - weighted/float64(fileCount)*s.SecurityIssueScaleFactor
	if score < 0 {
		return 0
	}
	return models.Round1(score)
}

// RiskScore deducts for hot-file churn, pitfall matches, and missing
// co-change partners. An unavailable oracle scores 100.
func RiskScore(signals models.SentinelSignals, s config.ScoringConfig) float64 {
	if !signals.Available {
		return 100
	}

	deductions := 0.0
	for _, hf := range signals.HotFiles {
		d := hf.ChurnScore / s.RiskHotFileChurnDivisor
		if d > s.RiskHotFileMaxDeduction {
			d = s.RiskHotFileMaxDeduction
		}
		deductions += d
	}
	deductions += float64(len(signals.PitfallMatches)) * s.RiskDeductionPerPitfall
	deductions += float64(len(signals.MissingCoChanges)) * s.RiskDeductionPerMissingCoChange

	score := 100 - deductions
	if score < 0 {
		return 0
	}
	return models.Round1(score)
}

// CoChangeScore measures whether expected co-change partners are included in
// the diff.
func CoChangeScore(signals models.SentinelSignals, changedFiles []string) float64 {
	if !signals.Available {
		return 100
	}
	missing := len(signals.MissingCoChanges)
	total := len(changedFiles) + missing
	if total == 0 {
		return 100
	}
	return models.Round1(float64(len(changedFiles)) / float64(total) * 100)
}
