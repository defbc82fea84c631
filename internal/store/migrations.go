package store

import (
	"database/sql"
	"fmt"
	"strconv"

	"verdict/internal/logging"
)

// schemaVersion is the current schema version. Bump it when registering a
// new migration.
const schemaVersion = 2

// migrations maps a version k to the function that advances the schema from
// k to k+1. Migrations are forward-only and may add tables, columns, and
// indices. A missing entry for an intermediate version is a no-op.
var migrations = map[int]func(*sql.Tx) error{
	1: migrateV1ToV2,
}

// migrateV1ToV2 adds indices for the common query patterns.
func migrateV1ToV2(tx *sql.Tx) error {
	for _, stmt := range []string{
		`CREATE INDEX IF NOT EXISTS idx_assessments_repo_created ON assessments(repo_path, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_assessments_created ON assessments(created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_mutation_cache_assessment ON mutation_cache(assessment_id, file_path)`,
		`CREATE INDEX IF NOT EXISTS idx_baselines_repo_created ON baselines(repo_path, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_feedback_assessment ON feedback(assessment_id, created_at DESC)`,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// migrate runs the pending migrations from the stored version up to the
// current one inside a single transaction, then updates the meta row.
func (s *Store) migrate(stored string) error {
	current, err := strconv.Atoi(stored)
	if err != nil {
		return fmt.Errorf("invalid schema version %q: %w", stored, err)
	}
	if current >= schemaVersion {
		return nil
	}

	log := logging.Get(logging.CategoryStore)

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback()

	for v := current; v < schemaVersion; v++ {
		fn, ok := migrations[v]
		if !ok {
			continue
		}
		log.Infow("running schema migration", "from", v, "to", v+1)
		if err := fn(tx); err != nil {
			return fmt.Errorf("migrate v%d to v%d: %w", v, v+1, err)
		}
	}

	_, err = tx.Exec(
		`INSERT OR REPLACE INTO verdict_meta (key, value) VALUES ('schema_version', ?)`,
		strconv.Itoa(schemaVersion))
	if err != nil {
		return fmt.Errorf("update schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}
