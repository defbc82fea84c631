// Package render formats assessment data for the CLI and the tool server.
// The server formatters emit plain text capped at a character budget; the
// CLI display uses lipgloss styling.
package render

import (
	"fmt"
	"sort"
	"strings"

	"verdict/internal/models"
)

// truncationReserve leaves room for the truncation marker.
const truncationReserve = 50

// Truncate caps text at maxChars, appending a marker when it was cut.
func Truncate(text string, maxChars int) string {
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}
	cut := maxChars - truncationReserve
	if cut < 0 {
		cut = 0
	}
	return text[:cut] + "\n\n... (output truncated)"
}

// FormatAssessment renders a report as markdown-ish plain text.
func FormatAssessment(report *models.AssessmentReport, maxChars int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Verdict Assessment: %s\n", report.OverallGrade)
	fmt.Fprintf(&b, "Score: %.1f/100\n", report.OverallScore)
	fmt.Fprintf(&b, "Files: %d\n\n", len(report.FilesChanged))

	b.WriteString("### Dimensions\n")
	for _, d := range report.Dimensions {
		if d.Evaluated {
			fmt.Fprintf(&b, "- **%s**: %s (%.1f%%) — %s\n", d.Name, d.Grade, d.RawScore, d.Details)
		} else {
			fmt.Fprintf(&b, "- **%s**: N/A (not evaluated)\n", d.Name)
		}
	}
	b.WriteString("\n")

	if len(report.Gaps) > 0 {
		b.WriteString("### Gaps (Need Attention)\n")
		for _, gap := range report.Gaps {
			fmt.Fprintf(&b, "- %s\n", gap)
		}
		b.WriteString("\n")
	}

	if len(report.FilesChanged) > 0 {
		b.WriteString("### Changed Files\n")
		limit := len(report.FilesChanged)
		if limit > 20 {
			limit = 20
		}
		for _, f := range report.FilesChanged[:limit] {
			fmt.Fprintf(&b, "- %s\n", f)
		}
		if len(report.FilesChanged) > 20 {
			fmt.Fprintf(&b, "- ... and %d more\n", len(report.FilesChanged)-20)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "ID: %s\n", report.ID)
	fmt.Fprintf(&b, "Created: %s", report.CreatedAt)

	return Truncate(b.String(), maxChars)
}

// FormatHistory renders stored assessments as a plain-text list.
func FormatHistory(assessments []models.StoredAssessment, maxChars int) string {
	if len(assessments) == 0 {
		return "No assessments found."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Assessment History (%d results)\n\n", len(assessments))
	for _, a := range assessments {
		fmt.Fprintf(&b, "- **%s** | mutation=%.1f%% | static=%d issues | %d files | %s | id=%s\n",
			a.Grade, a.MutationScore, a.StaticIssues, len(a.FilesChanged),
			a.CreatedAt, shortID(a.ID))
	}
	return Truncate(strings.TrimSuffix(b.String(), "\n"), maxChars)
}

// FormatMutations renders mutation results grouped by status.
func FormatMutations(mutations []models.MutationResult, score float64, maxChars int) string {
	if len(mutations) == 0 {
		return "No mutation results. Score: 100%"
	}

	var b strings.Builder
	b.WriteString("## Mutation Testing Results\n")
	fmt.Fprintf(&b, "Score: %.1f%%\n", score)
	fmt.Fprintf(&b, "Total mutants: %d\n\n", len(mutations))

	byStatus := map[string][]models.MutationResult{}
	for _, m := range mutations {
		byStatus[string(m.Status)] = append(byStatus[string(m.Status)], m)
	}
	statuses := make([]string, 0, len(byStatus))
	for s := range byStatus {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)

	for _, status := range statuses {
		muts := byStatus[status]
		fmt.Fprintf(&b, "### %s (%d)\n", titleCase(status), len(muts))
		limit := len(muts)
		if limit > 10 {
			limit = 10
		}
		for _, m := range muts[:limit] {
			line := "?"
			if m.LineNumber > 0 {
				line = fmt.Sprint(m.LineNumber)
			}
			fmt.Fprintf(&b, "- %s:%s [%s]\n", m.FilePath, line, m.Operator)
		}
		if len(muts) > 10 {
			fmt.Fprintf(&b, "- ... and %d more\n", len(muts)-10)
		}
		b.WriteString("\n")
	}
	return Truncate(strings.TrimSuffix(b.String(), "\n"), maxChars)
}

// FormatFeedbackResponse confirms a recorded feedback.
func FormatFeedbackResponse(assessmentID, outcome string) string {
	return fmt.Sprintf("Feedback recorded: %s for assessment %s", outcome, shortID(assessmentID))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	if id == "" {
		return "?"
	}
	return id
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
