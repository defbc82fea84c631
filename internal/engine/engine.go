// Package engine drives the seven-stage assessment pipeline: diff, baseline,
// mutate, static, security, sentinel, then score and persist. Stages 2-6 run
// inside error boundaries; no single analyzer failure fails the assessment.
package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"verdict/internal/analyzer"
	"verdict/internal/config"
	"verdict/internal/diff"
	"verdict/internal/logging"
	"verdict/internal/models"
	"verdict/internal/scoring"
	"verdict/internal/sentinel"
	"verdict/internal/store"
)

// Options tune one engine instance. Zero values fall back to the config.
type Options struct {
	TestCmd       string
	BaselineRuns  int
	SkipBaseline  bool
	SkipMutations bool
}

// Engine runs assessments against one store.
type Engine struct {
	store *store.Store
	cfg   *config.Config
	opts  Options
}

// New builds an engine. The store is owned by the caller.
func New(st *store.Store, cfg *config.Config, opts Options) *Engine {
	if opts.TestCmd == "" {
		opts.TestCmd = cfg.Pipeline.TestCmd
	}
	if opts.BaselineRuns == 0 {
		opts.BaselineRuns = cfg.Pipeline.BaselineRuns
	}
	return &Engine{store: st, cfg: cfg, opts: opts}
}

// Assess runs the full pipeline over the change set and persists the report
// exactly once. Empty diffs produce a perfect-score report.
func (e *Engine) Assess(ctx context.Context, repoPath, refBefore, refAfter string) (*models.AssessmentReport, error) {
	log := logging.Get(logging.CategoryPipeline)

	repo, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, fmt.Errorf("resolve repo path: %w", err)
	}
	s := e.cfg.Scoring

	// Stage 1: diff.
	diffResult := diff.Parse(ctx, repo, refBefore, refAfter, time.Duration(e.cfg.Timeouts.Diff)*time.Second)
	pyFiles := diffResult.PythonFiles()
	allFiles := diffResult.FilePaths()

	if len(allFiles) == 0 {
		report := scoring.BuildReport(scoring.ReportInput{
			RepoPath:      repo,
			RefBefore:     refBefore,
			RefAfter:      refAfter,
			FilesChanged:  []string{},
			MutationScore: 100, StaticScore: 100, BaselineScore: 100,
			RiskScore: 100, CoChangeScore: 100, SecurityScore: 100,
			Sentinel:  models.SentinelSignals{},
			Evaluated: map[string]bool{},
		}, s)
		if err := e.store.SaveAssessment(report); err != nil {
			return nil, fmt.Errorf("persist report: %w", err)
		}
		return report, nil
	}

	evaluated := map[string]bool{
		scoring.DimStatic:       len(pyFiles) > 0,
		scoring.DimSentinelRisk: true,
		scoring.DimCoChange:     true,
	}

	// Stage 2: baseline.
	var baseline *models.BaselineResult
	baselineScore := 100.0
	if !e.opts.SkipBaseline && len(pyFiles) > 0 {
		b := e.runBaseline(ctx, repo)
		if b != nil {
			baseline = b
			baselineScore = scoring.BaselineScore(baseline, s)
			evaluated[scoring.DimBaseline] = true
		}
	}

	// Stage 3: mutate.
	var mutations []models.MutationResult
	mutationScore := 100.0
	if !e.opts.SkipMutations && len(pyFiles) > 0 {
		run := e.runMutations(ctx, repo, pyFiles)
		mutations = run.Results
		// Tool present but zero mutants leaves the dimension unevaluated
		// so a hollow 100 never enters the overall.
		if len(mutations) > 0 {
			mutationScore = scoring.MutationScore(mutations)
			evaluated[scoring.DimMutation] = true
		}
	}

	// Stage 4: static.
	var staticFindings []models.StaticFinding
	staticScore := 100.0
	if len(pyFiles) > 0 {
		run := e.runStatic(ctx, repo, pyFiles)
		staticFindings = run.Findings
		// Findings from unconfigured tools are persisted but not scored.
		var scoreable []models.StaticFinding
		for _, f := range run.Findings {
			if configured, ok := run.ToolConfig[string(f.Analyzer)]; !ok || configured {
				scoreable = append(scoreable, f)
			}
		}
		staticScore = scoring.StaticScore(scoreable, len(pyFiles), s)
	}

	// Stage 5: security.
	var securityFindings []models.SecurityFinding
	securityScore := 100.0
	if len(pyFiles) > 0 && e.cfg.Security.AnyScannerEnabled() {
		run := e.runSecurity(ctx, repo, pyFiles)
		securityFindings = run.Findings
		if len(run.Findings) > 0 || anyTrue(run.ToolsAvailable) {
			securityScore = scoring.SecurityScore(run.Findings, len(pyFiles), s, analyzer.CWEWeight)
			evaluated[scoring.DimSecurity] = true
		}
	}

	// Stage 6: sentinel.
	signals := e.runSentinel(repo, allFiles)
	riskScore := scoring.RiskScore(signals, s)
	coChangeScore := scoring.CoChangeScore(signals, allFiles)

	// Stage 7: score and persist.
	report := scoring.BuildReport(scoring.ReportInput{
		RepoPath:         repo,
		RefBefore:        refBefore,
		RefAfter:         refAfter,
		FilesChanged:     allFiles,
		MutationScore:    mutationScore,
		StaticScore:      staticScore,
		BaselineScore:    baselineScore,
		RiskScore:        riskScore,
		CoChangeScore:    coChangeScore,
		SecurityScore:    securityScore,
		Mutations:        mutations,
		StaticFindings:   staticFindings,
		SecurityFindings: securityFindings,
		Baseline:         baseline,
		Sentinel:         signals,
		Evaluated:        evaluated,
	}, s)

	if err := e.store.SaveAssessment(report); err != nil {
		return nil, fmt.Errorf("persist report: %w", err)
	}

	if e.cfg.Retention.AutoPrune {
		if counts, err := e.store.Prune(e.cfg.Retention.RetentionDays); err != nil {
			log.Warnw("auto-prune failed", "error", err)
		} else if counts.Total() > 0 {
			log.Debugw("auto-prune", "rows", counts.Total())
		}
	}

	log.Debugw("assessment complete",
		"id", report.ID,
		"files", len(allFiles),
		"score", report.OverallScore,
		"grade", report.OverallGrade)
	return report, nil
}

// MutateOnly runs just the mutation dimension and persists the result. The
// other dimensions are marked not evaluated.
func (e *Engine) MutateOnly(ctx context.Context, repoPath, refBefore, refAfter string) (*models.AssessmentReport, error) {
	repo, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, fmt.Errorf("resolve repo path: %w", err)
	}

	diffResult := diff.Parse(ctx, repo, refBefore, refAfter, time.Duration(e.cfg.Timeouts.Diff)*time.Second)
	pyFiles := diffResult.PythonFiles()

	var mutations []models.MutationResult
	mutationScore := 100.0
	evaluated := map[string]bool{}
	if len(pyFiles) > 0 {
		run := analyzer.RunMutations(ctx, repo, pyFiles,
			time.Duration(e.cfg.Timeouts.MutationPerFile)*time.Second,
			time.Duration(e.cfg.Timeouts.MutmutResults)*time.Second)
		mutations = run.Results
		if len(mutations) > 0 {
			mutationScore = scoring.MutationScore(mutations)
			evaluated[scoring.DimMutation] = true
		}
	}

	report := scoring.BuildReport(scoring.ReportInput{
		RepoPath:      repo,
		RefBefore:     refBefore,
		RefAfter:      refAfter,
		FilesChanged:  diffResult.FilePaths(),
		MutationScore: mutationScore,
		StaticScore:   100, BaselineScore: 100, RiskScore: 100,
		CoChangeScore: 100, SecurityScore: 100,
		Mutations: mutations,
		Sentinel:  models.SentinelSignals{},
		Evaluated: evaluated,
	}, e.cfg.Scoring)

	if err := e.store.SaveAssessment(report); err != nil {
		return nil, fmt.Errorf("persist report: %w", err)
	}
	return report, nil
}

// Stage wrappers. Each recovers from panics so a misbehaving adapter
// degrades its own dimension instead of the whole assessment.

func (e *Engine) runBaseline(ctx context.Context, repo string) (result *models.BaselineResult) {
	defer stageBoundary("baseline", func() { result = nil })
	b, err := analyzer.RunBaseline(ctx, repo, e.opts.TestCmd, e.opts.BaselineRuns,
		time.Duration(e.cfg.Timeouts.BaselinePerRun)*time.Second)
	if err != nil {
		logging.Get(logging.CategoryPipeline).Debugw("baseline probe failed", "error", err)
		return nil
	}
	return &b
}

func (e *Engine) runMutations(ctx context.Context, repo string, pyFiles []string) (result analyzer.MutationRunResult) {
	defer stageBoundary("mutation", func() { result = analyzer.MutationRunResult{} })
	return analyzer.RunMutations(ctx, repo, pyFiles,
		time.Duration(e.cfg.Timeouts.MutationPerFile)*time.Second,
		time.Duration(e.cfg.Timeouts.MutmutResults)*time.Second)
}

func (e *Engine) runStatic(ctx context.Context, repo string, pyFiles []string) (result analyzer.StaticRunResult) {
	defer stageBoundary("static", func() { result = analyzer.StaticRunResult{} })
	return analyzer.RunStatic(ctx, repo, pyFiles,
		time.Duration(e.cfg.Timeouts.StaticAnalysis)*time.Second)
}

func (e *Engine) runSecurity(ctx context.Context, repo string, pyFiles []string) (result analyzer.SecurityRunResult) {
	defer stageBoundary("security", func() { result = analyzer.SecurityRunResult{} })
	return analyzer.RunSecurity(ctx, repo, pyFiles, e.cfg)
}

func (e *Engine) runSentinel(repo string, allFiles []string) (signals models.SentinelSignals) {
	defer stageBoundary("sentinel", func() { signals = models.SentinelSignals{} })
	bridge := sentinel.Open(repo)
	defer bridge.Close()
	return bridge.RiskSignals(allFiles)
}

// stageBoundary converts a stage panic into a degraded outcome.
func stageBoundary(stage string, degrade func()) {
	if r := recover(); r != nil {
		logging.Get(logging.CategoryPipeline).Debugw("stage failed", "stage", stage, "panic", r)
		degrade()
	}
}

func anyTrue(m map[string]bool) bool {
	for _, v := range m {
		if v {
			return true
		}
	}
	return false
}
