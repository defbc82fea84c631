package analyzer

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verdict/internal/models"
)

func TestMapMutmutStatus(t *testing.T) {
	assert.Equal(t, models.MutantKilled, mapMutmutStatus("killed"))
	assert.Equal(t, models.MutantKilled, mapMutmutStatus("ok_killed"))
	assert.Equal(t, models.MutantKilled, mapMutmutStatus("OK"))
	assert.Equal(t, models.MutantSurvived, mapMutmutStatus("survived"))
	assert.Equal(t, models.MutantSurvived, mapMutmutStatus("bad_survived"))
	assert.Equal(t, models.MutantTimeout, mapMutmutStatus("timeout"))
	assert.Equal(t, models.MutantSkipped, mapMutmutStatus("skipped"))
	assert.Equal(t, models.MutantError, mapMutmutStatus("something-else"))
	assert.Equal(t, models.MutantError, mapMutmutStatus(""))
}

func TestParseFromCache(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cache.sqlite3")
	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE mutant (
		id INTEGER PRIMARY KEY,
		operator TEXT,
		line_number INTEGER,
		status TEXT,
		source_file TEXT
	)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO mutant (id, operator, line_number, status, source_file) VALUES
		(1, 'number', 12, 'ok_killed', 'src/app.py'),
		(2, 'string', 30, 'bad_survived', 'src/app.py'),
		(3, NULL, NULL, 'timeout', 'src/app.py'),
		(4, 'number', 5, 'ok_killed', 'src/other.py')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	results := parseFromCache(dbPath, "src/app.py")
	require.Len(t, results, 3)

	assert.Equal(t, "1", results[0].MutantID)
	assert.Equal(t, "number", results[0].Operator)
	assert.Equal(t, 12, results[0].LineNumber)
	assert.Equal(t, models.MutantKilled, results[0].Status)

	assert.Equal(t, models.MutantSurvived, results[1].Status)

	// NULL columns fall back to placeholder values.
	assert.Equal(t, "unknown", results[2].Operator)
	assert.Zero(t, results[2].LineNumber)
	assert.Equal(t, models.MutantTimeout, results[2].Status)

	for _, r := range results {
		assert.Equal(t, "src/app.py", r.FilePath)
		assert.NotEmpty(t, r.ID)
	}
}

func TestParseFromCacheMissingFile(t *testing.T) {
	results := parseFromCache(filepath.Join(t.TempDir(), "nope", "cache.sqlite3"), "src/app.py")
	assert.Empty(t, results)
}

func TestIsDigits(t *testing.T) {
	assert.True(t, isDigits("42"))
	assert.False(t, isDigits(""))
	assert.False(t, isDigits("4a"))
	assert.False(t, isDigits("-1"))
}
