// Package store is the SQLite persistence layer for assessments, mutation
// results, baselines, and feedback. One database file per repository.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"verdict/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS verdict_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS assessments (
	id                TEXT PRIMARY KEY,
	repo_path         TEXT NOT NULL,
	ref_before        TEXT,
	ref_after         TEXT,
	files_changed     TEXT NOT NULL,
	mutation_score    REAL,
	static_issues     INTEGER,
	sentinel_warnings INTEGER,
	baseline_flaky    INTEGER DEFAULT 0,
	grade             TEXT NOT NULL,
	report_json       TEXT NOT NULL,
	created_at        TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS baselines (
	id          TEXT PRIMARY KEY,
	repo_path   TEXT NOT NULL,
	test_cmd    TEXT NOT NULL,
	run_count   INTEGER NOT NULL DEFAULT 3,
	flaky_tests TEXT,
	pass_rate   REAL,
	created_at  TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS mutation_cache (
	id            TEXT PRIMARY KEY,
	assessment_id TEXT NOT NULL REFERENCES assessments(id),
	file_path     TEXT NOT NULL,
	mutant_id     TEXT NOT NULL,
	operator      TEXT NOT NULL,
	line_number   INTEGER,
	status        TEXT NOT NULL,
	created_at    TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS feedback (
	id            TEXT PRIMARY KEY,
	assessment_id TEXT NOT NULL REFERENCES assessments(id),
	outcome       TEXT NOT NULL,
	context       TEXT,
	created_at    TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_assessments_repo_created ON assessments(repo_path, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_assessments_created ON assessments(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_mutation_cache_assessment ON mutation_cache(assessment_id, file_path);
CREATE INDEX IF NOT EXISTS idx_baselines_repo_created ON baselines(repo_path, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_feedback_assessment ON feedback(assessment_id, created_at DESC);
`

// Store wraps the per-repo database connection.
type Store struct {
	db     *sql.DB
	dbPath string
}

// Open creates or opens the database, applies session pragmas, initializes
// the schema, and runs any pending migrations.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	s := &Store{db: db, dbPath: dbPath}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}

	var stored string
	err := s.db.QueryRow(`SELECT value FROM verdict_meta WHERE key = 'schema_version'`).Scan(&stored)
	if err == sql.ErrNoRows {
		_, err = s.db.Exec(
			`INSERT INTO verdict_meta (key, value) VALUES ('schema_version', ?)`,
			fmt.Sprint(schemaVersion))
		if err != nil {
			return fmt.Errorf("write schema version: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	return s.migrate(stored)
}

// SaveAssessment persists a report and its child rows in one transaction.
func (s *Store) SaveAssessment(report *models.AssessmentReport) error {
	filesJSON, err := json.Marshal(report.FilesChanged)
	if err != nil {
		return fmt.Errorf("marshal files_changed: %w", err)
	}
	reportJSON, err := report.ToJSON()
	if err != nil {
		return fmt.Errorf("serialize report: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO assessments
		 (id, repo_path, ref_before, ref_after, files_changed,
		  mutation_score, static_issues, sentinel_warnings,
		  baseline_flaky, grade, report_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.ID, report.RepoPath, report.RefBefore, report.RefAfter,
		string(filesJSON), report.MutationScore, report.StaticIssues,
		report.SentinelWarnings, report.BaselineFlaky,
		string(report.OverallGrade), reportJSON, report.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert assessment: %w", err)
	}

	for _, m := range report.Mutations {
		_, err = tx.Exec(
			`INSERT INTO mutation_cache
			 (id, assessment_id, file_path, mutant_id, operator, line_number, status, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, report.ID, m.FilePath, m.MutantID, m.Operator,
			m.LineNumber, string(m.Status), m.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert mutation: %w", err)
		}
	}

	if report.Baseline != nil {
		b := report.Baseline
		flakyJSON, err := json.Marshal(b.FlakyTests)
		if err != nil {
			return fmt.Errorf("marshal flaky_tests: %w", err)
		}
		_, err = tx.Exec(
			`INSERT INTO baselines
			 (id, repo_path, test_cmd, run_count, flaky_tests, pass_rate, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			b.ID, b.RepoPath, b.TestCmd, b.RunCount, string(flakyJSON), b.PassRate, b.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert baseline: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit assessment: %w", err)
	}
	return nil
}

// GetAssessment fetches one stored assessment row, or nil if absent.
func (s *Store) GetAssessment(id string) (*models.StoredAssessment, error) {
	row := s.db.QueryRow(
		`SELECT id, repo_path, ref_before, ref_after, files_changed,
		        mutation_score, static_issues, sentinel_warnings,
		        baseline_flaky, grade, report_json, created_at
		 FROM assessments WHERE id = ?`, id)
	a, err := scanAssessment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get assessment: %w", err)
	}
	return a, nil
}

// GetAssessments lists stored assessments newest first. A non-empty repoPath
// filters to one repository.
func (s *Store) GetAssessments(limit, offset int, repoPath string) ([]models.StoredAssessment, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if repoPath != "" {
		rows, err = s.db.Query(
			`SELECT id, repo_path, ref_before, ref_after, files_changed,
			        mutation_score, static_issues, sentinel_warnings,
			        baseline_flaky, grade, report_json, created_at
			 FROM assessments WHERE repo_path = ?
			 ORDER BY created_at DESC LIMIT ? OFFSET ?`, repoPath, limit, offset)
	} else {
		rows, err = s.db.Query(
			`SELECT id, repo_path, ref_before, ref_after, files_changed,
			        mutation_score, static_issues, sentinel_warnings,
			        baseline_flaky, grade, report_json, created_at
			 FROM assessments ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	defer rows.Close()

	var out []models.StoredAssessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assessment: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssessment(row rowScanner) (*models.StoredAssessment, error) {
	var (
		a         models.StoredAssessment
		refBefore sql.NullString
		refAfter  sql.NullString
		files     string
	)
	err := row.Scan(&a.ID, &a.RepoPath, &refBefore, &refAfter, &files,
		&a.MutationScore, &a.StaticIssues, &a.SentinelWarnings,
		&a.BaselineFlaky, &a.Grade, &a.ReportJSON, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.RefBefore = refBefore.String
	a.RefAfter = refAfter.String
	if err := json.Unmarshal([]byte(files), &a.FilesChanged); err != nil {
		return nil, fmt.Errorf("decode files_changed: %w", err)
	}
	return &a, nil
}

// GetMutations lists the mutation rows of one assessment, ordered by file.
func (s *Store) GetMutations(assessmentID string) ([]models.StoredMutation, error) {
	rows, err := s.db.Query(
		`SELECT id, assessment_id, file_path, mutant_id, operator, line_number, status, created_at
		 FROM mutation_cache WHERE assessment_id = ? ORDER BY file_path`, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("list mutations: %w", err)
	}
	defer rows.Close()

	var out []models.StoredMutation
	for rows.Next() {
		var (
			m    models.StoredMutation
			line sql.NullInt64
		)
		if err := rows.Scan(&m.ID, &m.AssessmentID, &m.FilePath, &m.MutantID,
			&m.Operator, &line, &m.Status, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan mutation: %w", err)
		}
		m.LineNumber = int(line.Int64)
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetLatestBaseline fetches the most recent baseline for a repository, or
// nil if none exists.
func (s *Store) GetLatestBaseline(repoPath string) (*models.StoredBaseline, error) {
	var (
		b     models.StoredBaseline
		flaky sql.NullString
	)
	err := s.db.QueryRow(
		`SELECT id, repo_path, test_cmd, run_count, flaky_tests, pass_rate, created_at
		 FROM baselines WHERE repo_path = ? ORDER BY created_at DESC LIMIT 1`, repoPath).
		Scan(&b.ID, &b.RepoPath, &b.TestCmd, &b.RunCount, &flaky, &b.PassRate, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest baseline: %w", err)
	}
	if flaky.Valid && flaky.String != "" {
		if err := json.Unmarshal([]byte(flaky.String), &b.FlakyTests); err != nil {
			return nil, fmt.Errorf("decode flaky_tests: %w", err)
		}
	}
	return &b, nil
}

// SaveFeedback records a user's verdict on an assessment.
func (s *Store) SaveFeedback(fb models.Feedback) error {
	_, err := s.db.Exec(
		`INSERT INTO feedback (id, assessment_id, outcome, context, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		fb.ID, fb.AssessmentID, string(fb.Outcome), fb.Context, fb.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

// GetFeedback lists feedback for one assessment, newest first.
func (s *Store) GetFeedback(assessmentID string) ([]models.StoredFeedback, error) {
	rows, err := s.db.Query(
		`SELECT id, assessment_id, outcome, context, created_at
		 FROM feedback WHERE assessment_id = ? ORDER BY created_at DESC`, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	defer rows.Close()

	var out []models.StoredFeedback
	for rows.Next() {
		var (
			fb  models.StoredFeedback
			cxt sql.NullString
		)
		if err := rows.Scan(&fb.ID, &fb.AssessmentID, &fb.Outcome, &cxt, &fb.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		fb.Context = cxt.String
		out = append(out, fb)
	}
	return out, rows.Err()
}

// Stats returns row counts per table.
func (s *Store) Stats() (map[string]int, error) {
	out := map[string]int{}
	for _, table := range []string{"assessments", "baselines", "feedback", "mutation_cache"} {
		var n int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		out[table] = n
	}
	return out, nil
}
