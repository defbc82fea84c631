package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verdict/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), ".verdict", "verdict.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleReport(repoPath string) *models.AssessmentReport {
	return &models.AssessmentReport{
		ID:           models.NewID(),
		RepoPath:     repoPath,
		RefBefore:    "HEAD~1",
		RefAfter:     "HEAD",
		FilesChanged: []string{"src/app.py", "src/util.py"},
		OverallScore: 82.5,
		OverallGrade: models.GradeB,
		MutationScore: 75.0,
		StaticIssues:  2,
		BaselineFlaky: 1,
		Mutations: []models.MutationResult{
			models.NewMutationResult("src/app.py", "1", "number", 10, models.MutantKilled),
			models.NewMutationResult("src/app.py", "2", "string", 20, models.MutantSurvived),
		},
		Baseline: &models.BaselineResult{
			ID:         models.NewID(),
			RepoPath:   repoPath,
			TestCmd:    "pytest",
			RunCount:   3,
			FlakyTests: []string{"tests/test_app.py::test_x"},
			PassRate:   0.95,
			CreatedAt:  models.UTCNow(),
		},
		CreatedAt: models.UTCNow(),
	}
}

func TestSaveAndGetAssessment(t *testing.T) {
	s := newTestStore(t)
	report := sampleReport("/repo")
	require.NoError(t, s.SaveAssessment(report))

	got, err := s.GetAssessment(report.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, report.ID, got.ID)
	assert.Equal(t, "/repo", got.RepoPath)
	assert.Equal(t, "HEAD~1", got.RefBefore)
	assert.Equal(t, []string{"src/app.py", "src/util.py"}, got.FilesChanged)
	assert.Equal(t, 75.0, got.MutationScore)
	assert.Equal(t, 2, got.StaticIssues)
	assert.Equal(t, 1, got.BaselineFlaky)
	assert.Equal(t, "B", got.Grade)
	assert.NotEmpty(t, got.ReportJSON)

	// The full report survives the JSON round trip.
	parsed, err := models.ParseReportJSON(got.ReportJSON)
	require.NoError(t, err)
	assert.Equal(t, 82.5, parsed.OverallScore)

	mutations, err := s.GetMutations(report.ID)
	require.NoError(t, err)
	require.Len(t, mutations, 2)
	assert.Equal(t, report.ID, mutations[0].AssessmentID)

	baseline, err := s.GetLatestBaseline("/repo")
	require.NoError(t, err)
	require.NotNil(t, baseline)
	assert.Equal(t, []string{"tests/test_app.py::test_x"}, baseline.FlakyTests)
	assert.Equal(t, 0.95, baseline.PassRate)
}

func TestGetAssessmentAbsent(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetAssessment("no-such-id")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetAssessmentsFilterAndLimit(t *testing.T) {
	s := newTestStore(t)

	a := sampleReport("/repo-a")
	b := sampleReport("/repo-b")
	require.NoError(t, s.SaveAssessment(a))
	require.NoError(t, s.SaveAssessment(b))

	all, err := s.GetAssessments(10, 0, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyA, err := s.GetAssessments(10, 0, "/repo-a")
	require.NoError(t, err)
	require.Len(t, onlyA, 1)
	assert.Equal(t, a.ID, onlyA[0].ID)

	limited, err := s.GetAssessments(1, 0, "")
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestFeedbackRoundTrip(t *testing.T) {
	s := newTestStore(t)
	report := sampleReport("/repo")
	require.NoError(t, s.SaveAssessment(report))

	fb := models.NewFeedback(report.ID, models.FeedbackAccepted, "merged as-is")
	require.NoError(t, s.SaveFeedback(fb))

	got, err := s.GetFeedback(report.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "accepted", got[0].Outcome)
	assert.Equal(t, "merged as-is", got[0].Context)
}

func TestPrune(t *testing.T) {
	s := newTestStore(t)

	old := sampleReport("/repo")
	recent := sampleReport("/repo")
	require.NoError(t, s.SaveAssessment(old))
	require.NoError(t, s.SaveAssessment(recent))
	require.NoError(t, s.SaveFeedback(models.NewFeedback(old.ID, models.FeedbackRejected, "")))

	// Age the first assessment and its baseline past the retention window.
	_, err := s.db.Exec(
		`UPDATE assessments SET created_at = datetime('now', '-200 days') WHERE id = ?`, old.ID)
	require.NoError(t, err)
	_, err = s.db.Exec(
		`UPDATE baselines SET created_at = datetime('now', '-200 days') WHERE id = ?`, old.Baseline.ID)
	require.NoError(t, err)

	counts, err := s.Prune(90)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Assessments)
	assert.Equal(t, 2, counts.MutationCache)
	assert.Equal(t, 1, counts.Baselines)
	assert.Equal(t, 1, counts.Feedback)
	assert.Equal(t, 5, counts.Total())

	gone, err := s.GetAssessment(old.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	kept, err := s.GetAssessment(recent.ID)
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestPruneNothingOld(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveAssessment(sampleReport("/repo")))

	counts, err := s.Prune(90)
	require.NoError(t, err)
	assert.Zero(t, counts.Total())
}

func TestMigrateFromV1(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "verdict.db")
	s, err := Open(dbPath)
	require.NoError(t, err)
	_, err = s.db.Exec(`UPDATE verdict_meta SET value = '1' WHERE key = 'schema_version'`)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(dbPath)
	require.NoError(t, err)
	defer s.Close()

	var version string
	require.NoError(t, s.db.QueryRow(
		`SELECT value FROM verdict_meta WHERE key = 'schema_version'`).Scan(&version))
	assert.Equal(t, "2", version)
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveAssessment(sampleReport("/repo")))

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats["assessments"])
	assert.Equal(t, 2, stats["mutation_cache"])
	assert.Equal(t, 1, stats["baselines"])
	assert.Equal(t, 0, stats["feedback"])
}
