package sentinel

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// seedKnowledgeDB creates a .sentinel/sentinel.db with the oracle tables.
func seedKnowledgeDB(t *testing.T, repoPath string, statements ...string) {
	t.Helper()
	dir := filepath.Join(repoPath, ".sentinel")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	db, err := sql.Open("sqlite", filepath.Join(dir, "sentinel.db"))
	require.NoError(t, err)
	defer db.Close()

	schema := []string{
		`CREATE TABLE pitfalls (
			id TEXT PRIMARY KEY,
			description TEXT NOT NULL,
			severity TEXT NOT NULL,
			how_to_prevent TEXT,
			code_pattern TEXT,
			file_paths TEXT,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE TABLE hot_files (
			file_path TEXT PRIMARY KEY,
			churn_score REAL NOT NULL,
			change_count INTEGER NOT NULL,
			bug_fix_count INTEGER NOT NULL,
			revert_count INTEGER NOT NULL
		)`,
		`CREATE TABLE co_changes (
			file_a TEXT NOT NULL,
			file_b TEXT NOT NULL,
			change_count INTEGER NOT NULL
		)`,
	}
	for _, stmt := range append(schema, statements...) {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
}

func TestOpenMissingDatabase(t *testing.T) {
	b := Open(t.TempDir())
	defer b.Close()

	assert.False(t, b.Available())
	signals := b.RiskSignals([]string{"src/app.py"})
	assert.False(t, signals.Available)
	assert.Empty(t, signals.PitfallMatches)
}

func TestPitfallFilePathMatch(t *testing.T) {
	repo := t.TempDir()
	seedKnowledgeDB(t, repo,
		`INSERT INTO pitfalls (id, description, severity, how_to_prevent, file_paths) VALUES
			('p1', 'Race in cache invalidation', 'high', 'Hold the lock', '["src/cache.py"]'),
			('p2', 'Unrelated pitfall', 'low', NULL, '["src/other.py"]')`)

	b := Open(repo)
	defer b.Close()
	require.True(t, b.Available())

	signals := b.RiskSignals([]string{"src/cache.py"})
	require.Len(t, signals.PitfallMatches, 1)
	m := signals.PitfallMatches[0]
	assert.Equal(t, "p1", m.PitfallID)
	assert.Equal(t, "src/cache.py", m.MatchedFile)
	assert.Equal(t, "file_path", m.MatchType)
	assert.Equal(t, "Hold the lock", m.HowToPrevent)
}

func TestPitfallCodePatternMatch(t *testing.T) {
	repo := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(repo, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(repo, "src", "db.py"),
		[]byte("cursor.execute(\"SELECT * FROM t WHERE id = %s\" % user_id)\n"), 0o644))

	seedKnowledgeDB(t, repo,
		`INSERT INTO pitfalls (id, description, severity, code_pattern) VALUES
			('p1', 'String-formatted SQL', 'critical', 'execute\(.*%')`)

	b := Open(repo)
	defer b.Close()

	signals := b.RiskSignals([]string{"src/db.py"})
	require.Len(t, signals.PitfallMatches, 1)
	assert.Equal(t, "code_pattern", signals.PitfallMatches[0].MatchType)
	assert.Equal(t, "src/db.py", signals.PitfallMatches[0].MatchedFile)
}

func TestPitfallInvalidRegexSkipped(t *testing.T) {
	repo := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(repo, "app.py"), []byte("x = 1\n"), 0o644))
	seedKnowledgeDB(t, repo,
		`INSERT INTO pitfalls (id, description, severity, code_pattern) VALUES
			('p1', 'Broken pattern', 'high', '[unclosed')`)

	b := Open(repo)
	defer b.Close()

	signals := b.RiskSignals([]string{"app.py"})
	assert.Empty(t, signals.PitfallMatches)
}

func TestHotFiles(t *testing.T) {
	repo := t.TempDir()
	seedKnowledgeDB(t, repo,
		`INSERT INTO hot_files (file_path, churn_score, change_count, bug_fix_count, revert_count) VALUES
			('src/hot.py', 42.5, 30, 5, 1),
			('src/cold.py', 1.0, 2, 0, 0)`)

	b := Open(repo)
	defer b.Close()

	signals := b.RiskSignals([]string{"src/hot.py", "src/new.py"})
	require.Len(t, signals.HotFiles, 1)
	assert.Equal(t, "src/hot.py", signals.HotFiles[0].FilePath)
	assert.Equal(t, 42.5, signals.HotFiles[0].ChurnScore)
	assert.Equal(t, 30, signals.HotFiles[0].ChangeCount)
}

func TestMissingCoChanges(t *testing.T) {
	repo := t.TempDir()
	seedKnowledgeDB(t, repo,
		`INSERT INTO co_changes (file_a, file_b, change_count) VALUES
			('src/a.py', 'src/b.py', 12),
			('src/a.py', 'src/c.py', 3),
			('src/d.py', 'src/a.py', 12),
			('src/a.py', 'src/changed_too.py', 50)`)

	b := Open(repo)
	defer b.Close()

	signals := b.RiskSignals([]string{"src/a.py", "src/changed_too.py"})
	require.Len(t, signals.MissingCoChanges, 3)

	// Sorted by change count descending, partner path ascending on ties.
	assert.Equal(t, "src/b.py", signals.MissingCoChanges[0].PartnerFile)
	assert.Equal(t, "src/d.py", signals.MissingCoChanges[1].PartnerFile)
	assert.Equal(t, "src/c.py", signals.MissingCoChanges[2].PartnerFile)
	assert.Equal(t, 12, signals.MissingCoChanges[0].ChangeCount)
	assert.Equal(t, "src/a.py", signals.MissingCoChanges[0].SourceFile)
}

func TestMissingCoChangesDeduped(t *testing.T) {
	repo := t.TempDir()
	seedKnowledgeDB(t, repo,
		`INSERT INTO co_changes (file_a, file_b, change_count) VALUES
			('src/a.py', 'src/shared.py', 9),
			('src/b.py', 'src/shared.py', 4)`)

	b := Open(repo)
	defer b.Close()

	signals := b.RiskSignals([]string{"src/a.py", "src/b.py"})
	require.Len(t, signals.MissingCoChanges, 1)
	assert.Equal(t, "src/shared.py", signals.MissingCoChanges[0].PartnerFile)
	assert.Equal(t, 9, signals.MissingCoChanges[0].ChangeCount)
}
