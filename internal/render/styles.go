package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"verdict/internal/models"
)

var (
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 2)

	titleStyle = lipgloss.NewStyle().
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	gapHeaderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")).
			Bold(true)

	gradeStyles = map[models.Grade]lipgloss.Style{
		models.GradeA: lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		models.GradeB: lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true),
		models.GradeC: lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true),
		models.GradeD: lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		models.GradeF: lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
	}
)

func gradeStyle(g models.Grade) lipgloss.Style {
	if s, ok := gradeStyles[g]; ok {
		return s
	}
	return lipgloss.NewStyle()
}

// DisplayReport renders the styled CLI view of a report: a header panel, a
// dimension table, gaps, and the assessment id.
func DisplayReport(report *models.AssessmentReport) string {
	var b strings.Builder

	header := fmt.Sprintf("%s (%.1f/100) | %d files changed",
		gradeStyle(report.OverallGrade).Render(string(report.OverallGrade)),
		report.OverallScore, len(report.FilesChanged))
	b.WriteString(panelStyle.Render(titleStyle.Render("Verdict Assessment") + "\n" + header))
	b.WriteString("\n\n")

	b.WriteString(renderDimensionTable(report.Dimensions))

	if len(report.Gaps) > 0 {
		b.WriteString("\n")
		b.WriteString(gapHeaderStyle.Render("Gaps (Need Attention):"))
		b.WriteString("\n")
		for _, gap := range report.Gaps {
			fmt.Fprintf(&b, "  - %s\n", gap)
		}
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render("ID: " + report.ID))
	b.WriteString("\n")
	return b.String()
}

func renderDimensionTable(dims []models.DimensionScore) string {
	rows := make([][]string, 0, len(dims))
	for _, d := range dims {
		weight := fmt.Sprintf("%d%%", int(d.Weight*100))
		if d.Evaluated {
			rows = append(rows, []string{
				d.Name,
				gradeStyle(d.Grade).Render(string(d.Grade)),
				fmt.Sprintf("%.1f%%", d.RawScore),
				weight,
				d.Details,
			})
		} else {
			rows = append(rows, []string{
				d.Name,
				dimStyle.Render("N/A"),
				"-",
				weight,
				dimStyle.Render("Not evaluated"),
			})
		}
	}
	return renderTable([]string{"Dimension", "Grade", "Score", "Weight", "Details"}, rows)
}

// DisplayHistory renders stored assessments as a styled table.
func DisplayHistory(assessments []models.StoredAssessment) string {
	if len(assessments) == 0 {
		return dimStyle.Render("No assessments found.") + "\n"
	}

	rows := make([][]string, 0, len(assessments))
	for _, a := range assessments {
		rows = append(rows, []string{
			shortID(a.ID),
			gradeStyle(models.Grade(a.Grade)).Render(a.Grade),
			fmt.Sprintf("%.1f%%", a.MutationScore),
			fmt.Sprint(a.StaticIssues),
			fmt.Sprint(len(a.FilesChanged)),
			a.CreatedAt,
		})
	}
	return titleStyle.Render("Assessment History") + "\n" +
		renderTable([]string{"ID", "Grade", "Mutation", "Static", "Files", "Created"}, rows)
}

// renderTable lays out padded columns. Column widths size to content;
// lipgloss.Width ignores the styling escape codes.
func renderTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := lipgloss.Width(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var b strings.Builder
	writeRow := func(cells []string, style *lipgloss.Style) {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			pad := widths[i] - lipgloss.Width(cell)
			text := cell + strings.Repeat(" ", pad)
			if style != nil {
				text = style.Render(text)
			}
			parts[i] = text
		}
		b.WriteString(strings.TrimRight(strings.Join(parts, "  "), " "))
		b.WriteString("\n")
	}

	headerStyle := lipgloss.NewStyle().Bold(true).Underline(true)
	writeRow(headers, &headerStyle)
	for _, row := range rows {
		writeRow(row, nil)
	}
	return b.String()
}
