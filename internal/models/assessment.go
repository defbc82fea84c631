package models

import (
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
)

// TimeFormat is the canonical timestamp layout persisted everywhere.
const TimeFormat = "2006-01-02 15:04:05"

// UTCNow returns the current time in the canonical layout.
func UTCNow() string {
	return time.Now().UTC().Format(TimeFormat)
}

// NewID returns a fresh row identifier.
func NewID() string {
	return uuid.NewString()
}

// Round1 rounds to one decimal place. All user-visible scores pass through it.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// LineRange is a (start, length) pair of changed lines within a file.
type LineRange struct {
	Start  int `json:"start"`
	Length int `json:"length"`
}

// FileChange is one file in a parsed diff with its changed line ranges.
type FileChange struct {
	Path         string      `json:"path"`
	AddedLines   []LineRange `json:"added_lines,omitempty"`
	DeletedLines []LineRange `json:"deleted_lines,omitempty"`
	IsNew        bool        `json:"is_new,omitempty"`
	IsDeleted    bool        `json:"is_deleted,omitempty"`
}

// DiffResult is the ordered set of file changes for one change set.
type DiffResult struct {
	Files     []FileChange
	RefBefore string
	RefAfter  string
}

// FilePaths returns every changed path in diff order.
func (d *DiffResult) FilePaths() []string {
	paths := make([]string, 0, len(d.Files))
	for _, f := range d.Files {
		paths = append(paths, f.Path)
	}
	return paths
}

// PythonFiles returns the changed .py paths in diff order.
func (d *DiffResult) PythonFiles() []string {
	var paths []string
	for _, f := range d.Files {
		if len(f.Path) > 3 && f.Path[len(f.Path)-3:] == ".py" {
			paths = append(paths, f.Path)
		}
	}
	return paths
}

// MutationResult is the outcome of a single mutant.
type MutationResult struct {
	ID         string       `json:"id"`
	FilePath   string       `json:"file_path"`
	MutantID   string       `json:"mutant_id"`
	Operator   string       `json:"operator"`
	LineNumber int          `json:"line_number,omitempty"`
	Status     MutantStatus `json:"status"`
	CreatedAt  string       `json:"created_at"`
}

// NewMutationResult fills in the id and timestamp.
func NewMutationResult(filePath, mutantID, operator string, line int, status MutantStatus) MutationResult {
	return MutationResult{
		ID:         NewID(),
		FilePath:   filePath,
		MutantID:   mutantID,
		Operator:   operator,
		LineNumber: line,
		Status:     status,
		CreatedAt:  UTCNow(),
	}
}

// StaticFinding is a single lint or type-check diagnostic.
type StaticFinding struct {
	FilePath   string       `json:"file_path"`
	LineNumber int          `json:"line_number"`
	Column     int          `json:"column,omitempty"`
	Code       string       `json:"code"`
	Message    string       `json:"message"`
	Severity   Severity     `json:"severity"`
	Analyzer   AnalyzerType `json:"analyzer"`
}

// SecurityFinding is a diagnostic from one of the security scanners.
type SecurityFinding struct {
	FilePath   string       `json:"file_path"`
	LineNumber int          `json:"line_number"`
	Column     int          `json:"column,omitempty"`
	Code       string       `json:"code"`
	Message    string       `json:"message"`
	Severity   Severity     `json:"severity"`
	Analyzer   AnalyzerType `json:"analyzer"`
	CWEID      string       `json:"cwe_id,omitempty"`
	Confidence string       `json:"confidence,omitempty"`
	SourceLine string       `json:"source_line,omitempty"`
}

// BaselineResult is the outcome of the test-stability probe.
type BaselineResult struct {
	ID         string   `json:"id"`
	RepoPath   string   `json:"repo_path"`
	TestCmd    string   `json:"test_cmd"`
	RunCount   int      `json:"run_count"`
	FlakyTests []string `json:"flaky_tests"`
	PassRate   float64  `json:"pass_rate"`
	CreatedAt  string   `json:"created_at"`
}

// PitfallMatch is a sentinel pitfall matched against a changed file.
type PitfallMatch struct {
	PitfallID    string `json:"pitfall_id"`
	Description  string `json:"description"`
	Severity     string `json:"severity"`
	HowToPrevent string `json:"how_to_prevent"`
	MatchedFile  string `json:"matched_file"`
	MatchType    string `json:"match_type"` // "file_path" or "code_pattern"
}

// HotFileInfo is historical churn data for a changed file.
type HotFileInfo struct {
	FilePath    string  `json:"file_path"`
	ChurnScore  float64 `json:"churn_score"`
	ChangeCount int     `json:"change_count"`
	BugFixCount int     `json:"bug_fix_count"`
	RevertCount int     `json:"revert_count"`
}

// MissingCoChange is a historical co-change partner absent from the diff.
type MissingCoChange struct {
	SourceFile  string `json:"source_file"`
	PartnerFile string `json:"partner_file"`
	ChangeCount int    `json:"change_count"`
}

// SentinelSignals bundles the knowledge oracle's answers for one diff.
type SentinelSignals struct {
	Available        bool              `json:"available"`
	PitfallMatches   []PitfallMatch    `json:"pitfall_matches,omitempty"`
	HotFiles         []HotFileInfo     `json:"hot_files,omitempty"`
	MissingCoChanges []MissingCoChange `json:"missing_co_changes,omitempty"`
}

// DimensionScore is one axis of the assessment.
type DimensionScore struct {
	Name          string  `json:"name"`
	RawScore      float64 `json:"raw_score"`
	Weight        float64 `json:"weight"`
	WeightedScore float64 `json:"weighted_score"`
	Grade         Grade   `json:"grade"`
	Details       string  `json:"details"`
	Evaluated     bool    `json:"evaluated"`
}

// Feedback is a user's verdict on a stored assessment.
type Feedback struct {
	ID           string          `json:"id"`
	AssessmentID string          `json:"assessment_id"`
	Outcome      FeedbackOutcome `json:"outcome"`
	Context      string          `json:"context,omitempty"`
	CreatedAt    string          `json:"created_at"`
}

// NewFeedback fills in the id and timestamp.
func NewFeedback(assessmentID string, outcome FeedbackOutcome, context string) Feedback {
	return Feedback{
		ID:           NewID(),
		AssessmentID: assessmentID,
		Outcome:      outcome,
		Context:      context,
		CreatedAt:    UTCNow(),
	}
}

// AssessmentReport is the complete result of one pipeline run. Reports are
// immutable once built; the store persists them exactly once.
type AssessmentReport struct {
	ID               string            `json:"id"`
	RepoPath         string            `json:"repo_path"`
	RefBefore        string            `json:"ref_before,omitempty"`
	RefAfter         string            `json:"ref_after,omitempty"`
	FilesChanged     []string          `json:"files_changed"`
	Dimensions       []DimensionScore  `json:"dimensions"`
	OverallScore     float64           `json:"overall_score"`
	OverallGrade     Grade             `json:"overall_grade"`
	MutationScore    float64           `json:"mutation_score"`
	StaticIssues     int               `json:"static_issues"`
	SentinelWarnings int               `json:"sentinel_warnings"`
	BaselineFlaky    int               `json:"baseline_flaky"`
	Gaps             []string          `json:"gaps"`
	Mutations        []MutationResult  `json:"-"`
	StaticFindings   []StaticFinding   `json:"-"`
	SecurityFindings []SecurityFinding `json:"-"`
	Baseline         *BaselineResult   `json:"-"`
	Sentinel         SentinelSignals   `json:"-"`
	CreatedAt        string            `json:"created_at"`
}

// reportJSON is the archival wire shape. Drill-down data is persisted in
// child tables, not in the JSON document.
type reportJSON struct {
	ID               string           `json:"id"`
	RepoPath         string           `json:"repo_path"`
	RefBefore        string           `json:"ref_before"`
	RefAfter         string           `json:"ref_after"`
	FilesChanged     []string         `json:"files_changed"`
	OverallScore     float64          `json:"overall_score"`
	OverallGrade     Grade            `json:"overall_grade"`
	Dimensions       []DimensionScore `json:"dimensions"`
	MutationScore    float64          `json:"mutation_score"`
	StaticIssues     int              `json:"static_issues"`
	SentinelWarnings int              `json:"sentinel_warnings"`
	BaselineFlaky    int              `json:"baseline_flaky"`
	Gaps             []string         `json:"gaps"`
	CreatedAt        string           `json:"created_at"`
}

// ToJSON serializes the report in its canonical archival form. All scores
// are rounded to one decimal.
func (r *AssessmentReport) ToJSON() (string, error) {
	dims := make([]DimensionScore, len(r.Dimensions))
	for i, d := range r.Dimensions {
		d.RawScore = Round1(d.RawScore)
		d.WeightedScore = Round1(d.WeightedScore)
		dims[i] = d
	}
	files := r.FilesChanged
	if files == nil {
		files = []string{}
	}
	gaps := r.Gaps
	if gaps == nil {
		gaps = []string{}
	}
	out := reportJSON{
		ID:               r.ID,
		RepoPath:         r.RepoPath,
		RefBefore:        r.RefBefore,
		RefAfter:         r.RefAfter,
		FilesChanged:     files,
		OverallScore:     Round1(r.OverallScore),
		OverallGrade:     r.OverallGrade,
		Dimensions:       dims,
		MutationScore:    Round1(r.MutationScore),
		StaticIssues:     r.StaticIssues,
		SentinelWarnings: r.SentinelWarnings,
		BaselineFlaky:    r.BaselineFlaky,
		Gaps:             gaps,
		CreatedAt:        r.CreatedAt,
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ParseReportJSON decodes a report's archival JSON form.
func ParseReportJSON(data string) (*AssessmentReport, error) {
	var in reportJSON
	if err := json.Unmarshal([]byte(data), &in); err != nil {
		return nil, err
	}
	return &AssessmentReport{
		ID:               in.ID,
		RepoPath:         in.RepoPath,
		RefBefore:        in.RefBefore,
		RefAfter:         in.RefAfter,
		FilesChanged:     in.FilesChanged,
		Dimensions:       in.Dimensions,
		OverallScore:     in.OverallScore,
		OverallGrade:     in.OverallGrade,
		MutationScore:    in.MutationScore,
		StaticIssues:     in.StaticIssues,
		SentinelWarnings: in.SentinelWarnings,
		BaselineFlaky:    in.BaselineFlaky,
		Gaps:             in.Gaps,
		CreatedAt:        in.CreatedAt,
	}, nil
}
