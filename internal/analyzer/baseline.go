package analyzer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"verdict/internal/models"
)

// RunBaseline runs the unmutated test suite runCount times to find flaky
// tests. A test is flaky if it fails in some runs but not all of them. The
// returned pass rate reflects average failures per run against the unique
// failing set. A missing test binary or a run that cannot start is an error:
// a probe that never ran must not report a stable suite.
func RunBaseline(ctx context.Context, repoPath, testCmd string, runCount int, timeout time.Duration) (models.BaselineResult, error) {
	allFailures := make([]map[string]bool, 0, runCount)
	for i := 0; i < runCount; i++ {
		failures, err := runTestsOnce(ctx, repoPath, testCmd, timeout)
		if err != nil {
			return models.BaselineResult{}, fmt.Errorf("baseline run %d: %w", i+1, err)
		}
		allFailures = append(allFailures, failures)
	}

	flaky, passRate := summarizeRuns(allFailures, runCount)
	return models.BaselineResult{
		ID:         models.NewID(),
		RepoPath:   repoPath,
		TestCmd:    testCmd,
		RunCount:   runCount,
		FlakyTests: flaky,
		PassRate:   passRate,
		CreatedAt:  models.UTCNow(),
	}, nil
}

// summarizeRuns derives the flaky set and overall pass rate from per-run
// failure sets.
func summarizeRuns(allFailures []map[string]bool, runCount int) ([]string, float64) {
	allTestIDs := map[string]bool{}
	for _, failures := range allFailures {
		for id := range failures {
			allTestIDs[id] = true
		}
	}

	var flaky []string
	for id := range allTestIDs {
		failCount := 0
		for _, failures := range allFailures {
			if failures[id] {
				failCount++
			}
		}
		if failCount > 0 && failCount < runCount {
			flaky = append(flaky, id)
		}
	}
	sort.Strings(flaky)

	passRate := 1.0
	if len(allTestIDs) > 0 {
		totalFailures := 0
		for _, failures := range allFailures {
			totalFailures += len(failures)
		}
		avgFailures := float64(totalFailures) / float64(runCount)
		passRate = 1 - avgFailures/float64(len(allTestIDs))
		if passRate < 0 {
			passRate = 0
		}
	}
	return flaky, round4(passRate)
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// runTestsOnce executes the test command and returns the set of failed test
// ids. A run that exceeds the timeout counts as a single "__timeout__"
// failure so it weighs into the pass rate; any other failure to run the
// command propagates.
func runTestsOnce(ctx context.Context, repoPath, testCmd string, timeout time.Duration) (map[string]bool, error) {
	parts := strings.Fields(testCmd)
	if len(parts) == 0 {
		return nil, errors.New("empty test command")
	}
	// Verbose output carries the per-test ids we parse.
	if parts[0] == "pytest" && !contains(parts, "-v") {
		parts = append(parts, "-v")
	}

	stdout, _, err := runTool(ctx, repoPath, timeout, parts[0], parts[1:]...)
	if errors.Is(err, context.DeadlineExceeded) {
		return map[string]bool{"__timeout__": true}, nil
	}
	if err != nil {
		return nil, err
	}
	return parsePytestFailures(string(stdout)), nil
}

// parsePytestFailures extracts failed test ids from pytest -v output lines
// like "tests/test_foo.py::test_bar FAILED".
func parsePytestFailures(output string) map[string]bool {
	failures := map[string]bool{}
	for _, line := range strings.Split(output, "\n") {
		if idx := strings.Index(line, " FAILED"); idx >= 0 {
			id := strings.TrimSpace(line[:idx])
			if id != "" {
				failures[id] = true
			}
		}
	}
	return failures
}

func contains(items []string, want string) bool {
	for _, item := range items {
		if item == want {
			return true
		}
	}
	return false
}
