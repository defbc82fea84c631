package analyzer

import (
	"path"
	"regexp"
	"strings"

	"verdict/internal/config"
	"verdict/internal/models"
)

// Post-filters that drop likely false positives from the security scanners
// using syntactic heuristics on the captured source line.

// Bandit test ids for hardcoded password checks (CWE-259).
var credentialCodes = map[string]bool{"B105": true, "B106": true, "B107": true}

// Source-line shapes that indicate a non-credential context: comparisons,
// dict lookups, env reads, empty/None defaults, truthiness and length checks.
var credentialFPRe = regexp.MustCompile(`(?i)` +
	`[!=]=` +
	`|\.get\s*\(` +
	`|\.pop\s*\(` +
	`|\.setdefault\s*\(` +
	`|getenv\s*\(` +
	`|environ\b` +
	`|=\s*[\"'][\"']` +
	`|=\s*None\b` +
	`|\bif\s+` +
	`|\bassert\b` +
	`|\braise\b` +
	`|\blen\s*\(`)

// Context words that indicate non-cryptographic use of random().
var randomBenignContextRe = regexp.MustCompile(`(?i)jitter|retry|backoff|sleep`)

// File-name patterns indicating demo/test/seed data.
var randomBenignFilesRe = regexp.MustCompile(`(?i)(^|/)demo|seed|test`)

// FilterSecurityFindings removes configured skip codes, hardcoded-credential
// findings in non-credential contexts, and weak-randomness findings in
// benign files or contexts. Input order is preserved.
func FilterSecurityFindings(findings []models.SecurityFinding, sec config.SecurityConfig) []models.SecurityFinding {
	skip := make(map[string]bool, len(sec.BanditSkip))
	for _, code := range sec.BanditSkip {
		skip[code] = true
	}

	filtered := make([]models.SecurityFinding, 0, len(findings))
	for _, f := range findings {
		if skip[f.Code] {
			continue
		}
		if credentialCodes[f.Code] && credentialFPRe.MatchString(f.SourceLine) {
			continue
		}
		if f.Code == "B311" {
			if randomBenignFilesRe.MatchString(f.FilePath) {
				continue
			}
			if randomBenignContextRe.MatchString(f.SourceLine) {
				continue
			}
		}
		filtered = append(filtered, f)
	}
	return filtered
}

// matchesAnyPattern reports whether filePath matches one of the exclusion
// glob patterns. Directory prefixes ("tests/") match everything beneath
// them, and "**/" prefixed patterns also match at the repository root.
func matchesAnyPattern(filePath string, patterns []string) bool {
	for _, pattern := range patterns {
		effective := pattern
		if strings.HasSuffix(pattern, "/") {
			effective = pattern + "*"
			if strings.HasPrefix(filePath, pattern) {
				return true
			}
		}
		if ok, err := path.Match(effective, filePath); err == nil && ok {
			return true
		}
		if strings.HasPrefix(effective, "**/") {
			stripped := strings.TrimPrefix(effective, "**/")
			if strings.HasSuffix(stripped, "/*") {
				dir := strings.TrimSuffix(stripped, "/*")
				if strings.HasPrefix(filePath, dir+"/") || strings.Contains(filePath, "/"+dir+"/") {
					return true
				}
			}
			if ok, err := path.Match(stripped, filePath); err == nil && ok {
				return true
			}
		}
	}
	return false
}

// ExcludeFiles removes paths matching the exclusion globs before a scanner
// invocation. relTo converts each absolute path back for matching.
func ExcludeFiles(absFiles []string, repoPath string, patterns []string) []string {
	if len(patterns) == 0 {
		return absFiles
	}
	kept := make([]string, 0, len(absFiles))
	for _, abs := range absFiles {
		rel := toRelative(abs, repoPath)
		if !matchesAnyPattern(rel, patterns) {
			kept = append(kept, abs)
		}
	}
	return kept
}
