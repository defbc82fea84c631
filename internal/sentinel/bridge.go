// Package sentinel adapts the sibling knowledge database into risk signals
// for an assessment. The bridge is read-only and degrades to "unavailable"
// when the database is missing or cannot be opened.
package sentinel

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	_ "modernc.org/sqlite"

	"verdict/internal/logging"
	"verdict/internal/models"
)

// Bridge holds a read-only handle to the sentinel database. Callers must
// Close it; Close is safe on an unavailable bridge.
type Bridge struct {
	repoPath  string
	db        *sql.DB
	available bool
}

// Open looks for <repo>/.sentinel/sentinel.db and opens it read-only. A
// missing or unopenable database yields an unavailable bridge, never an
// error.
func Open(repoPath string) *Bridge {
	b := &Bridge{repoPath: repoPath}
	log := logging.Get(logging.CategorySentinel)

	dbPath := filepath.Join(repoPath, ".sentinel", "sentinel.db")
	if _, err := os.Stat(dbPath); err != nil {
		return b
	}

	db, err := sql.Open("sqlite", "file:"+dbPath+"?mode=ro")
	if err != nil {
		log.Debugw("failed to open sentinel database", "path", dbPath, "error", err)
		return b
	}
	if err := db.Ping(); err != nil {
		log.Debugw("sentinel database unreadable", "path", dbPath, "error", err)
		db.Close()
		return b
	}

	b.db = db
	b.available = true
	return b
}

// Available reports whether the knowledge database was opened.
func (b *Bridge) Available() bool {
	return b.available
}

// Close releases the database handle.
func (b *Bridge) Close() {
	if b.db != nil {
		b.db.Close()
		b.db = nil
		b.available = false
	}
}

// RiskSignals answers the three oracle queries for the changed files.
func (b *Bridge) RiskSignals(changedFiles []string) models.SentinelSignals {
	if !b.available {
		return models.SentinelSignals{Available: false}
	}
	return models.SentinelSignals{
		Available:        true,
		PitfallMatches:   b.matchPitfalls(changedFiles),
		HotFiles:         b.hotFiles(changedFiles),
		MissingCoChanges: b.missingCoChanges(changedFiles),
	}
}

// pitfallFetchLimit bounds the pitfall scan per assessment.
const pitfallFetchLimit = 200

type pitfallRow struct {
	id           string
	description  string
	severity     string
	howToPrevent string
	codePattern  string
	filePaths    []string
}

// matchPitfalls tries the pitfall's file-path association first, then falls
// back to searching changed file contents with its code-pattern regex. One
// match per pitfall.
func (b *Bridge) matchPitfalls(changedFiles []string) []models.PitfallMatch {
	log := logging.Get(logging.CategorySentinel)

	rows, err := b.db.Query(
		`SELECT id, description, severity, how_to_prevent, code_pattern, file_paths
		 FROM pitfalls ORDER BY created_at DESC LIMIT ?`, pitfallFetchLimit)
	if err != nil {
		log.Debugw("pitfall query failed", "error", err)
		return nil
	}
	defer rows.Close()

	changedSet := make(map[string]bool, len(changedFiles))
	for _, f := range changedFiles {
		changedSet[f] = true
	}

	var matches []models.PitfallMatch
	for rows.Next() {
		var (
			p         pitfallRow
			howTo     sql.NullString
			pattern   sql.NullString
			pathsJSON sql.NullString
		)
		if err := rows.Scan(&p.id, &p.description, &p.severity, &howTo, &pattern, &pathsJSON); err != nil {
			log.Debugw("pitfall row scan failed", "error", err)
			continue
		}
		p.howToPrevent = howTo.String
		p.codePattern = pattern.String
		if pathsJSON.Valid && pathsJSON.String != "" {
			if err := json.Unmarshal([]byte(pathsJSON.String), &p.filePaths); err != nil {
				p.filePaths = nil
			}
		}

		if m, ok := matchByFilePath(p, changedSet); ok {
			matches = append(matches, m)
			continue
		}
		if m, ok := b.matchByPattern(p, changedFiles); ok {
			matches = append(matches, m)
		}
	}
	return matches
}

func matchByFilePath(p pitfallRow, changedSet map[string]bool) (models.PitfallMatch, bool) {
	for _, f := range p.filePaths {
		if changedSet[f] {
			return models.PitfallMatch{
				PitfallID:    p.id,
				Description:  p.description,
				Severity:     p.severity,
				HowToPrevent: p.howToPrevent,
				MatchedFile:  f,
				MatchType:    "file_path",
			}, true
		}
	}
	return models.PitfallMatch{}, false
}

func (b *Bridge) matchByPattern(p pitfallRow, changedFiles []string) (models.PitfallMatch, bool) {
	if p.codePattern == "" {
		return models.PitfallMatch{}, false
	}
	re, err := regexp.Compile(p.codePattern)
	if err != nil {
		// Invalid patterns are skipped, not reported.
		return models.PitfallMatch{}, false
	}

	for _, f := range changedFiles {
		content, err := os.ReadFile(filepath.Join(b.repoPath, f))
		if err != nil {
			continue
		}
		if re.Match(content) {
			return models.PitfallMatch{
				PitfallID:    p.id,
				Description:  p.description,
				Severity:     p.severity,
				HowToPrevent: p.howToPrevent,
				MatchedFile:  f,
				MatchType:    "code_pattern",
			}, true
		}
	}
	return models.PitfallMatch{}, false
}

func (b *Bridge) hotFiles(changedFiles []string) []models.HotFileInfo {
	log := logging.Get(logging.CategorySentinel)

	var hot []models.HotFileInfo
	for _, f := range changedFiles {
		var info models.HotFileInfo
		err := b.db.QueryRow(
			`SELECT file_path, churn_score, change_count, bug_fix_count, revert_count
			 FROM hot_files WHERE file_path = ?`, f).
			Scan(&info.FilePath, &info.ChurnScore, &info.ChangeCount, &info.BugFixCount, &info.RevertCount)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			log.Debugw("hot file query failed", "file", f, "error", err)
			continue
		}
		hot = append(hot, info)
	}
	return hot
}

// missingCoChanges collects historical co-change partners absent from the
// diff, de-duplicated by partner path, sorted by change count descending
// with ties broken by partner path.
func (b *Bridge) missingCoChanges(changedFiles []string) []models.MissingCoChange {
	log := logging.Get(logging.CategorySentinel)

	changedSet := make(map[string]bool, len(changedFiles))
	for _, f := range changedFiles {
		changedSet[f] = true
	}

	seen := map[string]bool{}
	var missing []models.MissingCoChange
	for _, f := range changedFiles {
		rows, err := b.db.Query(
			`SELECT file_a, file_b, change_count FROM co_changes
			 WHERE file_a = ? OR file_b = ?`, f, f)
		if err != nil {
			log.Debugw("co-change query failed", "file", f, "error", err)
			continue
		}
		for rows.Next() {
			var fileA, fileB string
			var count int
			if err := rows.Scan(&fileA, &fileB, &count); err != nil {
				continue
			}
			partner := fileB
			if fileA != f {
				partner = fileA
			}
			if changedSet[partner] || seen[partner] {
				continue
			}
			seen[partner] = true
			missing = append(missing, models.MissingCoChange{
				SourceFile:  f,
				PartnerFile: partner,
				ChangeCount: count,
			})
		}
		rows.Close()
	}

	sort.SliceStable(missing, func(i, j int) bool {
		if missing[i].ChangeCount != missing[j].ChangeCount {
			return missing[i].ChangeCount > missing[j].ChangeCount
		}
		return missing[i].PartnerFile < missing[j].PartnerFile
	})
	return missing
}
