package analyzer

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"verdict/internal/config"
	"verdict/internal/logging"
	"verdict/internal/models"
)

// SecurityRunResult bundles scanner findings with per-tool availability.
type SecurityRunResult struct {
	Findings       []models.SecurityFinding
	ToolsAvailable map[string]bool
}

// RunSecurity invokes the enabled scanners on the changed Python files. The
// scanners run concurrently but findings are assembled in the fixed order
// bandit, semgrep, detect-secrets so output is deterministic.
func RunSecurity(ctx context.Context, repoPath string, files []string, cfg *config.Config) SecurityRunResult {
	result := SecurityRunResult{ToolsAvailable: map[string]bool{}}
	timeout := time.Duration(cfg.Timeouts.Security) * time.Second

	abs := absPythonFiles(repoPath, files)
	if len(abs) == 0 {
		return result
	}

	var (
		mu       sync.Mutex
		buckets  [3][]models.SecurityFinding
		availSet = func(name string, ok bool) {
			mu.Lock()
			result.ToolsAvailable[name] = ok
			mu.Unlock()
		}
	)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Security.BanditEnabled {
		g.Go(func() error {
			findings, available := runBandit(gctx, repoPath, abs, timeout)
			buckets[0] = findings
			availSet("bandit", available)
			return nil
		})
	}
	if cfg.Security.SemgrepEnabled {
		g.Go(func() error {
			findings, available := runSemgrep(gctx, repoPath, abs, timeout, cfg.Security.SemgrepRules)
			buckets[1] = findings
			availSet("semgrep", available)
			return nil
		})
	}
	if cfg.Security.DetectSecretsEnabled {
		g.Go(func() error {
			dsFiles := ExcludeFiles(abs, repoPath, cfg.Security.DetectSecretsExclude)
			if len(dsFiles) == 0 {
				availSet("detect-secrets", true)
				return nil
			}
			findings, available := runDetectSecrets(gctx, repoPath, dsFiles, timeout)
			buckets[2] = findings
			availSet("detect-secrets", available)
			return nil
		})
	}

	_ = g.Wait() // scanner funcs never return errors; degraded results instead

	var all []models.SecurityFinding
	for _, bucket := range buckets {
		all = append(all, bucket...)
	}
	result.Findings = FilterSecurityFindings(all, cfg.Security)
	return result
}

var banditSeverity = map[string]models.Severity{
	"HIGH":   models.SeverityHigh,
	"MEDIUM": models.SeverityMedium,
	"LOW":    models.SeverityLow,
}

type banditReport struct {
	Results []struct {
		Filename        string `json:"filename"`
		LineNumber      int    `json:"line_number"`
		ColOffset       int    `json:"col_offset"`
		TestID          string `json:"test_id"`
		IssueText       string `json:"issue_text"`
		IssueSeverity   string `json:"issue_severity"`
		IssueConfidence string `json:"issue_confidence"`
		Code            string `json:"code"`
	} `json:"results"`
}

func runBandit(ctx context.Context, repoPath string, abs []string, timeout time.Duration) ([]models.SecurityFinding, bool) {
	log := logging.Get(logging.CategoryAnalyzer)

	args := append([]string{"-f", "json", "-q"}, abs...)
	stdout, stderr, err := runTool(ctx, repoPath, timeout, "bandit", args...)
	if err != nil {
		if err == errToolMissing {
			log.Warnw("bandit not found on PATH")
			return nil, false
		}
		log.Warnw("bandit failed", "error", err)
		return nil, true
	}

	output := stdout
	if len(output) == 0 {
		output = stderr
	}
	if len(output) == 0 {
		return nil, true
	}

	var report banditReport
	if err := json.Unmarshal(output, &report); err != nil {
		log.Debugw("bandit JSON parse failed", "error", err)
		return nil, true
	}

	findings := make([]models.SecurityFinding, 0, len(report.Results))
	for _, issue := range report.Results {
		severity, ok := banditSeverity[issue.IssueSeverity]
		if !ok {
			severity = models.SeverityMedium
		}
		findings = append(findings, models.SecurityFinding{
			FilePath:   toRelative(issue.Filename, repoPath),
			LineNumber: issue.LineNumber,
			Column:     issue.ColOffset,
			Code:       issue.TestID,
			Message:    issue.IssueText,
			Severity:   severity,
			Analyzer:   models.AnalyzerBandit,
			CWEID:      banditCWEMap[issue.TestID],
			Confidence: issue.IssueConfidence,
			SourceLine: strings.TrimSpace(issue.Code),
		})
	}
	return findings, true
}

var semgrepSeverity = map[string]models.Severity{
	"ERROR":   models.SeverityHigh,
	"WARNING": models.SeverityMedium,
	"INFO":    models.SeverityLow,
}

type semgrepReport struct {
	Results []struct {
		CheckID string `json:"check_id"`
		Path    string `json:"path"`
		Start   struct {
			Line int `json:"line"`
			Col  int `json:"col"`
		} `json:"start"`
		Extra struct {
			Message  string `json:"message"`
			Severity string `json:"severity"`
			Metadata struct {
				CWE json.RawMessage `json:"cwe"`
			} `json:"metadata"`
		} `json:"extra"`
	} `json:"results"`
}

func runSemgrep(ctx context.Context, repoPath string, abs []string, timeout time.Duration, rules string) ([]models.SecurityFinding, bool) {
	log := logging.Get(logging.CategoryAnalyzer)

	args := append([]string{"--json", "--config", rules}, abs...)
	stdout, _, err := runTool(ctx, repoPath, timeout, "semgrep", args...)
	if err != nil {
		if err == errToolMissing {
			log.Warnw("semgrep not found on PATH")
			return nil, false
		}
		log.Warnw("semgrep failed", "error", err)
		return nil, true
	}
	if len(stdout) == 0 {
		return nil, true
	}

	var report semgrepReport
	if err := json.Unmarshal(stdout, &report); err != nil {
		log.Debugw("semgrep JSON parse failed", "error", err)
		return nil, true
	}

	findings := make([]models.SecurityFinding, 0, len(report.Results))
	for _, r := range report.Results {
		severity, ok := semgrepSeverity[r.Extra.Severity]
		if !ok {
			severity = models.SeverityMedium
		}
		findings = append(findings, models.SecurityFinding{
			FilePath:   toRelative(r.Path, repoPath),
			LineNumber: r.Start.Line,
			Column:     r.Start.Col,
			Code:       r.CheckID,
			Message:    r.Extra.Message,
			Severity:   severity,
			Analyzer:   models.AnalyzerSemgrep,
			CWEID:      extractSemgrepCWE(r.Extra.Metadata.CWE),
		})
	}
	return findings, true
}

// extractSemgrepCWE pulls the first CWE id out of semgrep's metadata, which
// reports CWEs either as {"id": "CWE-94"} objects or "CWE-94: ..." strings.
func extractSemgrepCWE(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return ""
	}
	for _, item := range items {
		var obj struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(item, &obj); err == nil && obj.ID != "" {
			return obj.ID
		}
		var s string
		if err := json.Unmarshal(item, &s); err == nil && strings.HasPrefix(s, "CWE-") {
			return strings.SplitN(s, ":", 2)[0]
		}
	}
	return ""
}

// detectSecretsSeverity maps secret types to severities; unknown types
// default to high.
var detectSecretsSeverity = map[string]models.Severity{
	"Private Key":                models.SeverityHigh,
	"Secret Keyword":             models.SeverityHigh,
	"Basic Auth Credentials":     models.SeverityHigh,
	"JSON Web Token":             models.SeverityHigh,
	"Hex High Entropy String":    models.SeverityMedium,
	"Base64 High Entropy String": models.SeverityMedium,
	"Twilio API Key":             models.SeverityHigh,
	"AWS Access Key":             models.SeverityHigh,
	"Slack Token":                models.SeverityHigh,
	"Stripe API Key":             models.SeverityHigh,
	"Artifactory Credentials":    models.SeverityHigh,
	"Mailchimp Access Key":       models.SeverityHigh,
	"IBM Cloud IAM Key":          models.SeverityHigh,
	"SendGrid API Key":           models.SeverityHigh,
	"Square OAuth Secret":        models.SeverityHigh,
}

type detectSecretsReport struct {
	Results map[string][]struct {
		Type       string `json:"type"`
		LineNumber int    `json:"line_number"`
	} `json:"results"`
}

func runDetectSecrets(ctx context.Context, repoPath string, abs []string, timeout time.Duration) ([]models.SecurityFinding, bool) {
	log := logging.Get(logging.CategoryAnalyzer)

	args := append([]string{"scan"}, abs...)
	stdout, _, err := runTool(ctx, repoPath, timeout, "detect-secrets", args...)
	if err != nil {
		if err == errToolMissing {
			log.Warnw("detect-secrets not found on PATH")
			return nil, false
		}
		log.Warnw("detect-secrets failed", "error", err)
		return nil, true
	}
	if len(stdout) == 0 {
		return nil, true
	}

	var report detectSecretsReport
	if err := json.Unmarshal(stdout, &report); err != nil {
		log.Debugw("detect-secrets JSON parse failed", "error", err)
		return nil, true
	}

	// detect-secrets keys results by file; sort for deterministic output.
	paths := make([]string, 0, len(report.Results))
	for p := range report.Results {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var findings []models.SecurityFinding
	for _, p := range paths {
		for _, secret := range report.Results[p] {
			severity, ok := detectSecretsSeverity[secret.Type]
			if !ok {
				severity = models.SeverityHigh
			}
			findings = append(findings, models.SecurityFinding{
				FilePath:   toRelative(p, repoPath),
				LineNumber: secret.LineNumber,
				Code:       secret.Type,
				Message:    "Possible secret: " + orUnknown(secret.Type),
				Severity:   severity,
				Analyzer:   models.AnalyzerDetectSecrets,
				CWEID:      "CWE-798",
			})
		}
	}
	return findings, true
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
