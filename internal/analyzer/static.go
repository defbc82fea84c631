package analyzer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"verdict/internal/logging"
	"verdict/internal/models"
)

// StaticRunResult bundles lint/type findings with per-tool configuration
// presence. Findings from unconfigured tools are persisted but excluded from
// scoring by the caller.
type StaticRunResult struct {
	Findings   []models.StaticFinding
	ToolConfig map[string]bool // {"ruff": bool, "mypy": bool}
}

// RunStatic invokes ruff and mypy on the changed Python files.
func RunStatic(ctx context.Context, repoPath string, files []string, timeout time.Duration) StaticRunResult {
	result := StaticRunResult{ToolConfig: DetectToolConfig(repoPath)}

	abs := absPythonFiles(repoPath, files)
	if len(abs) == 0 {
		return result
	}

	result.Findings = append(result.Findings, runRuff(ctx, repoPath, abs, timeout)...)
	result.Findings = append(result.Findings, runMypy(ctx, repoPath, abs, timeout)...)
	return result
}

// DetectToolConfig probes for ruff and mypy configuration files and markers.
// It does not parse TOML, only checks for section header strings.
func DetectToolConfig(repoPath string) map[string]bool {
	ruffConfigured := fileExists(repoPath, "ruff.toml") || fileExists(repoPath, ".ruff.toml")
	mypyConfigured := fileExists(repoPath, "mypy.ini") || fileExists(repoPath, ".mypy.ini")

	if !mypyConfigured {
		if data, err := os.ReadFile(filepath.Join(repoPath, "setup.cfg")); err == nil {
			mypyConfigured = strings.Contains(string(data), "[mypy]")
		}
	}
	if data, err := os.ReadFile(filepath.Join(repoPath, "pyproject.toml")); err == nil {
		content := string(data)
		mypyConfigured = mypyConfigured || strings.Contains(content, "[tool.mypy]")
		ruffConfigured = ruffConfigured || strings.Contains(content, "[tool.ruff]")
	}

	return map[string]bool{"ruff": ruffConfigured, "mypy": mypyConfigured}
}

func fileExists(repoPath, name string) bool {
	_, err := os.Stat(filepath.Join(repoPath, name))
	return err == nil
}

// ruffIssue is the subset of ruff's JSON diagnostic shape we consume.
type ruffIssue struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Filename string `json:"filename"`
	Location struct {
		Row    int `json:"row"`
		Column int `json:"column"`
	} `json:"location"`
}

func runRuff(ctx context.Context, repoPath string, abs []string, timeout time.Duration) []models.StaticFinding {
	log := logging.Get(logging.CategoryAnalyzer)

	args := append([]string{"check", "--output-format=json", "--no-fix"}, abs...)
	stdout, _, err := runTool(ctx, repoPath, timeout, "ruff", args...)
	if err != nil {
		if err == errToolMissing {
			log.Warnw("ruff not found on PATH")
		} else {
			log.Warnw("ruff failed", "error", err)
		}
		return nil
	}
	if len(stdout) == 0 {
		return nil
	}

	var issues []ruffIssue
	if err := json.Unmarshal(stdout, &issues); err != nil {
		log.Debugw("ruff JSON parse failed", "error", err)
		return nil
	}

	findings := make([]models.StaticFinding, 0, len(issues))
	for _, issue := range issues {
		findings = append(findings, models.StaticFinding{
			FilePath:   toRelative(issue.Filename, repoPath),
			LineNumber: issue.Location.Row,
			Column:     issue.Location.Column,
			Code:       issue.Code,
			Message:    issue.Message,
			Severity:   ruffSeverity(issue.Code),
			Analyzer:   models.AnalyzerRuff,
		})
	}
	return findings
}

// ruffSeverity maps rule-code prefixes onto severities: security rules and
// hard errors are high, style rules low, everything else medium.
func ruffSeverity(code string) models.Severity {
	switch {
	case strings.HasPrefix(code, "S"):
		return models.SeverityHigh
	case strings.HasPrefix(code, "E9"), strings.HasPrefix(code, "F"):
		return models.SeverityHigh
	case strings.HasPrefix(code, "E"), strings.HasPrefix(code, "W"):
		return models.SeverityLow
	default:
		return models.SeverityMedium
	}
}

func runMypy(ctx context.Context, repoPath string, abs []string, timeout time.Duration) []models.StaticFinding {
	log := logging.Get(logging.CategoryAnalyzer)

	args := append([]string{"--no-color-output", "--no-error-summary"}, abs...)
	stdout, _, err := runTool(ctx, repoPath, timeout, "mypy", args...)
	if err != nil {
		if err == errToolMissing {
			log.Warnw("mypy not found on PATH")
		} else {
			log.Warnw("mypy failed", "error", err)
		}
		return nil
	}

	var findings []models.StaticFinding
	for _, line := range strings.Split(string(stdout), "\n") {
		if f, ok := parseMypyLine(line, repoPath); ok {
			findings = append(findings, f)
		}
	}
	return findings
}

// parseMypyLine parses one colon-delimited diagnostic:
// "file:line: kind: message [code]".
func parseMypyLine(line, repoPath string) (models.StaticFinding, bool) {
	parts := strings.SplitN(line, ":", 4)
	if len(parts) < 4 {
		return models.StaticFinding{}, false
	}

	lineNumber, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return models.StaticFinding{}, false
	}

	rest := strings.TrimSpace(parts[2]) + ":" + parts[3]
	severity := models.SeverityMedium
	message := strings.TrimSpace(rest)
	for prefix, sev := range map[string]models.Severity{
		"error":   models.SeverityHigh,
		"warning": models.SeverityMedium,
		"note":    models.SeverityInfo,
	} {
		if strings.HasPrefix(rest, prefix) {
			severity = sev
			if idx := strings.Index(rest, ":"); idx >= 0 {
				message = strings.TrimSpace(rest[idx+1:])
			}
			break
		}
	}

	// Trailing "[code]" marker.
	code := ""
	if strings.HasSuffix(message, "]") {
		if idx := strings.LastIndex(message, "["); idx >= 0 {
			code = message[idx+1 : len(message)-1]
			message = strings.TrimSpace(message[:idx])
		}
	}

	return models.StaticFinding{
		FilePath:   toRelative(strings.TrimSpace(parts[0]), repoPath),
		LineNumber: lineNumber,
		Code:       code,
		Message:    message,
		Severity:   severity,
		Analyzer:   models.AnalyzerMypy,
	}, true
}
