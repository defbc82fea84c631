package store

import (
	"fmt"
	"strings"
)

// PruneCounts holds rows deleted per table by one prune run.
type PruneCounts struct {
	Feedback      int
	MutationCache int
	Baselines     int
	Assessments   int
}

// Total is the number of rows deleted across all tables.
func (p PruneCounts) Total() int {
	return p.Feedback + p.MutationCache + p.Baselines + p.Assessments
}

// Prune deletes data older than retentionDays. Child rows go first so the
// foreign keys hold throughout; baselines are keyed by their own timestamp.
// Reclaims file space when anything was deleted.
func (s *Store) Prune(retentionDays int) (PruneCounts, error) {
	var counts PruneCounts
	cutoff := fmt.Sprintf("datetime('now', '-%d days')", retentionDays)

	rows, err := s.db.Query(`SELECT id FROM assessments WHERE created_at < ` + cutoff)
	if err != nil {
		return counts, fmt.Errorf("select old assessments: %w", err)
	}
	var oldIDs []any
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return counts, fmt.Errorf("scan assessment id: %w", err)
		}
		oldIDs = append(oldIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return counts, err
	}

	if len(oldIDs) == 0 {
		return counts, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(oldIDs)), ",")

	tx, err := s.db.Begin()
	if err != nil {
		return counts, fmt.Errorf("begin prune: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`DELETE FROM feedback WHERE assessment_id IN (`+placeholders+`)`, oldIDs...)
	if err != nil {
		return counts, fmt.Errorf("prune feedback: %w", err)
	}
	n, _ := res.RowsAffected()
	counts.Feedback = int(n)

	res, err = tx.Exec(
		`DELETE FROM mutation_cache WHERE assessment_id IN (`+placeholders+`)`, oldIDs...)
	if err != nil {
		return counts, fmt.Errorf("prune mutation_cache: %w", err)
	}
	n, _ = res.RowsAffected()
	counts.MutationCache = int(n)

	res, err = tx.Exec(`DELETE FROM baselines WHERE created_at < ` + cutoff)
	if err != nil {
		return counts, fmt.Errorf("prune baselines: %w", err)
	}
	n, _ = res.RowsAffected()
	counts.Baselines = int(n)

	res, err = tx.Exec(
		`DELETE FROM assessments WHERE id IN (`+placeholders+`)`, oldIDs...)
	if err != nil {
		return counts, fmt.Errorf("prune assessments: %w", err)
	}
	n, _ = res.RowsAffected()
	counts.Assessments = int(n)

	if err := tx.Commit(); err != nil {
		return counts, fmt.Errorf("commit prune: %w", err)
	}

	if counts.Total() > 0 {
		if _, err := s.db.Exec("VACUUM"); err != nil {
			return counts, fmt.Errorf("vacuum: %w", err)
		}
	}
	return counts, nil
}
