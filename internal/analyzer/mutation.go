package analyzer

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	_ "modernc.org/sqlite"

	"verdict/internal/logging"
	"verdict/internal/models"
)

// MutationRunResult wraps mutation output with tool availability.
type MutationRunResult struct {
	Results       []models.MutationResult
	ToolAvailable bool
}

// RunMutations mutates each changed Python file in turn with mutmut. Files
// are processed one at a time so a single pathological file cannot consume
// the whole budget; a per-file timeout yields a synthetic timeout mutant
// instead of an error.
func RunMutations(ctx context.Context, repoPath string, files []string, timeoutPerFile, resultsTimeout time.Duration) MutationRunResult {
	result := MutationRunResult{}

	for _, f := range files {
		if !strings.HasSuffix(f, ".py") {
			continue
		}
		if _, err := os.Stat(filepath.Join(repoPath, f)); err != nil {
			continue
		}

		results, available := mutateSingleFile(ctx, repoPath, f, timeoutPerFile, resultsTimeout)
		result.Results = append(result.Results, results...)
		if available {
			result.ToolAvailable = true
		}
	}
	return result
}

func mutateSingleFile(ctx context.Context, repoPath, filePath string, timeout, resultsTimeout time.Duration) ([]models.MutationResult, bool) {
	log := logging.Get(logging.CategoryAnalyzer)

	_, _, err := runTool(ctx, repoPath, timeout, "mutmut",
		"run", "--paths-to-mutate", filePath, "--no-progress")
	switch {
	case err == errToolMissing:
		log.Warnw("mutmut not found on PATH")
		return nil, false
	case errors.Is(err, context.DeadlineExceeded):
		return []models.MutationResult{
			models.NewMutationResult(filePath, "timeout", "all", 0, models.MutantTimeout),
		}, true
	case err != nil:
		log.Warnw("mutmut run failed", "file", filePath, "error", err)
		return nil, true
	}

	return parseMutmutResults(ctx, repoPath, filePath, resultsTimeout), true
}

// parseMutmutResults prefers mutmut's SQLite cache and falls back to the
// `mutmut results` text report.
func parseMutmutResults(ctx context.Context, repoPath, filePath string, resultsTimeout time.Duration) []models.MutationResult {
	cachePath := filepath.Join(repoPath, ".mutmut-cache")
	if info, err := os.Stat(cachePath); err == nil {
		if info.IsDir() {
			cachePath = filepath.Join(cachePath, "db.sqlite3")
		}
		return parseFromCache(cachePath, filePath)
	}
	return parseFromCommand(ctx, repoPath, filePath, resultsTimeout)
}

func parseFromCache(dbPath, filePath string) []models.MutationResult {
	log := logging.Get(logging.CategoryAnalyzer)

	db, err := sql.Open("sqlite", "file:"+dbPath+"?mode=ro")
	if err != nil {
		log.Debugw("failed to open mutmut cache", "path", dbPath, "error", err)
		return nil
	}
	defer db.Close()

	rows, err := db.Query(
		`SELECT id, operator, line_number, status FROM mutant WHERE source_file = ?`, filePath)
	if err != nil {
		log.Debugw("failed to query mutmut cache", "path", dbPath, "error", err)
		return nil
	}
	defer rows.Close()

	var results []models.MutationResult
	for rows.Next() {
		var (
			id       string
			operator sql.NullString
			line     sql.NullInt64
			status   sql.NullString
		)
		if err := rows.Scan(&id, &operator, &line, &status); err != nil {
			log.Debugw("unexpected schema in mutmut cache", "error", err)
			return results
		}
		op := "unknown"
		if operator.Valid && operator.String != "" {
			op = operator.String
		}
		results = append(results, models.NewMutationResult(
			filePath, id, op, int(line.Int64), mapMutmutStatus(status.String)))
	}
	return results
}

// parseFromCommand buckets ids out of the `mutmut results` report, which
// lists ids in comma-separated runs beneath Survived/Killed/Timeout headers.
func parseFromCommand(ctx context.Context, repoPath, filePath string, resultsTimeout time.Duration) []models.MutationResult {
	log := logging.Get(logging.CategoryAnalyzer)

	stdout, _, err := runTool(ctx, repoPath, resultsTimeout, "mutmut", "results")
	if err != nil {
		log.Debugw("mutmut results unavailable", "file", filePath, "error", err)
		return nil
	}

	var results []models.MutationResult
	currentStatus := models.MutantSurvived
	for _, line := range strings.Split(string(stdout), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "Survived"):
			currentStatus = models.MutantSurvived
		case strings.HasPrefix(line, "Killed"):
			currentStatus = models.MutantKilled
		case strings.HasPrefix(line, "Timeout"):
			currentStatus = models.MutantTimeout
		case line != "" && unicode.IsDigit(rune(line[0])):
			for _, id := range strings.Split(line, ",") {
				id = strings.TrimSpace(id)
				if isDigits(id) {
					results = append(results, models.NewMutationResult(
						filePath, id, "unknown", 0, currentStatus))
				}
			}
		}
	}
	return results
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// mapMutmutStatus normalizes the cache's status strings, which vary across
// mutmut versions ("ok_killed", "bad_survived", ...).
func mapMutmutStatus(status string) models.MutantStatus {
	lower := strings.ToLower(status)
	switch {
	case strings.Contains(lower, "killed"), strings.Contains(lower, "ok"):
		return models.MutantKilled
	case strings.Contains(lower, "survived"), strings.Contains(lower, "bad"):
		return models.MutantSurvived
	case strings.Contains(lower, "timeout"):
		return models.MutantTimeout
	case strings.Contains(lower, "skipped"):
		return models.MutantSkipped
	default:
		return models.MutantError
	}
}
