// Package models defines the value types shared across the verdict system:
// diffs, findings, mutation results, risk signals, dimension scores, and the
// assessment report with its stable JSON serialization.
package models

// Grade is a letter grade for a score or dimension.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

// GradeThresholds holds the score cutoffs for A/B/C/D. Scores below the D
// cutoff grade F.
type GradeThresholds struct {
	A float64
	B float64
	C float64
	D float64
}

// DefaultThresholds are the stock grade cutoffs.
var DefaultThresholds = GradeThresholds{A: 90, B: 75, C: 60, D: 40}

// GradeFromScore maps a 0-100 score onto a letter grade.
func GradeFromScore(score float64, t GradeThresholds) Grade {
	switch {
	case score >= t.A:
		return GradeA
	case score >= t.B:
		return GradeB
	case score >= t.C:
		return GradeC
	case score >= t.D:
		return GradeD
	default:
		return GradeF
	}
}

// Severity of a static or security finding.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// AnalyzerType tags a finding with the tool that produced it.
type AnalyzerType string

const (
	AnalyzerRuff          AnalyzerType = "ruff"
	AnalyzerMypy          AnalyzerType = "mypy"
	AnalyzerBandit        AnalyzerType = "bandit"
	AnalyzerSemgrep       AnalyzerType = "semgrep"
	AnalyzerDetectSecrets AnalyzerType = "detect-secrets"
)

// MutantStatus is the outcome of a single mutant.
type MutantStatus string

const (
	MutantKilled   MutantStatus = "killed"
	MutantSurvived MutantStatus = "survived"
	MutantTimeout  MutantStatus = "timeout"
	MutantError    MutantStatus = "error"
	MutantSkipped  MutantStatus = "skipped"
)

// FeedbackOutcome is a user's verdict on an assessment.
type FeedbackOutcome string

const (
	FeedbackAccepted FeedbackOutcome = "accepted"
	FeedbackRejected FeedbackOutcome = "rejected"
	FeedbackModified FeedbackOutcome = "modified"
)

// ParseFeedbackOutcome validates a raw outcome string.
func ParseFeedbackOutcome(s string) (FeedbackOutcome, bool) {
	switch FeedbackOutcome(s) {
	case FeedbackAccepted, FeedbackRejected, FeedbackModified:
		return FeedbackOutcome(s), true
	}
	return "", false
}
