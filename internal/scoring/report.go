package scoring

import (
	"fmt"
	"sort"
	"strings"

	"verdict/internal/config"
	"verdict/internal/models"
)

// Dimension keys used in the evaluated set.
const (
	DimMutation     = "mutation"
	DimStatic       = "static"
	DimBaseline     = "baseline"
	DimSentinelRisk = "sentinel_risk"
	DimCoChange     = "co_change"
	DimSecurity     = "security"
)

// ReportInput carries everything the builder fuses into a report.
type ReportInput struct {
	RepoPath     string
	RefBefore    string
	RefAfter     string
	FilesChanged []string

	MutationScore float64
	StaticScore   float64
	BaselineScore float64
	RiskScore     float64
	CoChangeScore float64
	SecurityScore float64

	Mutations        []models.MutationResult
	StaticFindings   []models.StaticFinding
	SecurityFindings []models.SecurityFinding
	Baseline         *models.BaselineResult
	Sentinel         models.SentinelSignals

	// Evaluated holds the dimension keys that actually ran to a meaningful
	// outcome. Unevaluated dimensions carry zero weight in the fusion.
	Evaluated map[string]bool
}

// BuildReport fuses the dimension scores into a graded report. Dimensions
// appear in fixed canonical order; the overall score re-normalizes weights
// over the evaluated subset.
func BuildReport(in ReportInput, s config.ScoringConfig) *models.AssessmentReport {
	thresholds := models.GradeThresholds{A: s.GradeA, B: s.GradeB, C: s.GradeC, D: s.GradeD}

	dimensions := []models.DimensionScore{
		scoreDimension("Mutation Score", in.MutationScore, s.MutationWeight,
			mutationDetails(in.Mutations), in.Evaluated[DimMutation], thresholds),
		scoreDimension("Static Cleanliness", in.StaticScore, s.StaticWeight,
			staticDetails(in.StaticFindings), in.Evaluated[DimStatic], thresholds),
		scoreDimension("Test Baseline", in.BaselineScore, s.BaselineWeight,
			baselineDetails(in.Baseline), in.Evaluated[DimBaseline], thresholds),
		scoreDimension("Sentinel Risk", in.RiskScore, s.SentinelRiskWeight,
			sentinelDetails(in.Sentinel), in.Evaluated[DimSentinelRisk], thresholds),
		scoreDimension("Co-change Coverage", in.CoChangeScore, s.CoChangeWeight,
			coChangeDetails(in.Sentinel), in.Evaluated[DimCoChange], thresholds),
		scoreDimension("Security", in.SecurityScore, s.SecurityWeight,
			securityDetails(in.SecurityFindings), in.Evaluated[DimSecurity], thresholds),
	}

	overall := 100.0
	totalWeight := 0.0
	for _, d := range dimensions {
		if d.Evaluated {
			totalWeight += d.Weight
		}
	}
	if totalWeight > 0 {
		sum := 0.0
		for _, d := range dimensions {
			if d.Evaluated {
				sum += d.RawScore * (d.Weight / totalWeight)
			}
		}
		overall = sum
	}

	return &models.AssessmentReport{
		ID:               models.NewID(),
		RepoPath:         in.RepoPath,
		RefBefore:        in.RefBefore,
		RefAfter:         in.RefAfter,
		FilesChanged:     in.FilesChanged,
		Dimensions:       dimensions,
		OverallScore:     models.Round1(overall),
		OverallGrade:     models.GradeFromScore(overall, thresholds),
		MutationScore:    in.MutationScore,
		StaticIssues:     len(in.StaticFindings),
		SentinelWarnings: len(in.Sentinel.PitfallMatches) + len(in.Sentinel.HotFiles),
		BaselineFlaky:    baselineFlakyCount(in.Baseline),
		Gaps:             identifyGaps(dimensions),
		Mutations:        in.Mutations,
		StaticFindings:   in.StaticFindings,
		SecurityFindings: in.SecurityFindings,
		Baseline:         in.Baseline,
		Sentinel:         in.Sentinel,
		CreatedAt:        models.UTCNow(),
	}
}

func scoreDimension(name string, raw, weight float64, details string, evaluated bool, t models.GradeThresholds) models.DimensionScore {
	d := models.DimensionScore{
		Name:      name,
		RawScore:  models.Round1(raw),
		Weight:    weight,
		Grade:     models.GradeFromScore(raw, t),
		Evaluated: evaluated,
	}
	if !evaluated {
		d.RawScore = raw
		d.Details = "Not evaluated"
		return d
	}
	d.WeightedScore = models.Round1(raw * weight)
	d.Details = details
	return d
}

// identifyGaps lists evaluated dimensions graded C or below.
func identifyGaps(dimensions []models.DimensionScore) []string {
	var gaps []string
	for _, d := range dimensions {
		if !d.Evaluated {
			continue
		}
		switch d.Grade {
		case models.GradeC, models.GradeD, models.GradeF:
			gaps = append(gaps, fmt.Sprintf("%s: %s (%.1f%%) — %s", d.Name, d.Grade, d.RawScore, d.Details))
		}
	}
	return gaps
}

func baselineFlakyCount(baseline *models.BaselineResult) int {
	if baseline == nil {
		return 0
	}
	return len(baseline.FlakyTests)
}

func mutationDetails(mutations []models.MutationResult) string {
	if len(mutations) == 0 {
		return "No mutations (skipped or no mutable code)"
	}
	killed := 0
	for _, m := range mutations {
		if m.Status == models.MutantKilled {
			killed++
		}
	}
	return fmt.Sprintf("%d/%d killed, %d survived", killed, len(mutations), len(mutations)-killed)
}

func staticDetails(findings []models.StaticFinding) string {
	if len(findings) == 0 {
		return "No issues found"
	}
	byAnalyzer := map[string]int{}
	for _, f := range findings {
		byAnalyzer[string(f.Analyzer)]++
	}
	return countsByKey(byAnalyzer)
}

func securityDetails(findings []models.SecurityFinding) string {
	if len(findings) == 0 {
		return "No security findings"
	}
	byAnalyzer := map[string]int{}
	for _, f := range findings {
		byAnalyzer[string(f.Analyzer)]++
	}
	return countsByKey(byAnalyzer)
}

func countsByKey(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%d %s", counts[k], k))
	}
	return strings.Join(parts, ", ")
}

func baselineDetails(baseline *models.BaselineResult) string {
	if baseline == nil {
		return "Baseline not run"
	}
	flaky := len(baseline.FlakyTests)
	if flaky == 0 {
		return fmt.Sprintf("All stable across %d runs", baseline.RunCount)
	}
	return fmt.Sprintf("%d flaky test(s) detected across %d runs", flaky, baseline.RunCount)
}

func sentinelDetails(signals models.SentinelSignals) string {
	if !signals.Available {
		return "Sentinel data not available"
	}
	var parts []string
	if n := len(signals.PitfallMatches); n > 0 {
		parts = append(parts, fmt.Sprintf("%d pitfall match(es)", n))
	}
	if n := len(signals.HotFiles); n > 0 {
		parts = append(parts, fmt.Sprintf("%d hot file(s)", n))
	}
	if len(parts) == 0 {
		return "No risk signals"
	}
	return strings.Join(parts, ", ")
}

func coChangeDetails(signals models.SentinelSignals) string {
	if !signals.Available {
		return "Sentinel data not available"
	}
	missing := signals.MissingCoChanges
	if len(missing) == 0 {
		return "All co-change partners included"
	}
	limit := len(missing)
	if limit > 3 {
		limit = 3
	}
	files := make([]string, 0, limit)
	for _, m := range missing[:limit] {
		files = append(files, m.PartnerFile)
	}
	suffix := ""
	if len(missing) > 3 {
		suffix = fmt.Sprintf(" (+%d more)", len(missing)-3)
	}
	return fmt.Sprintf("Missing: %s%s", strings.Join(files, ", "), suffix)
}
