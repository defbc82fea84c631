// Package analyzer wraps the external analysis tools verdict orchestrates:
// ruff and mypy (static), bandit, semgrep and detect-secrets (security),
// mutmut (mutation), and the pytest flakiness baseline. Each adapter
// normalizes tool output into internal finding types and reports whether the
// tool was available at all.
package analyzer

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// errToolMissing marks a binary absent from PATH. Adapters translate it into
// a tool_available=false result instead of failing the stage.
var errToolMissing = errors.New("tool not found")

// runTool executes an external tool in repoPath with a timeout and returns
// its combined stdout/stderr. A non-zero exit with output is not an error:
// most linters exit 1 when they find issues.
func runTool(ctx context.Context, repoPath string, timeout time.Duration, name string, args ...string) (stdout, stderr []byte, err error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, name, args...)
	cmd.Dir = repoPath
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	runErr := cmd.Run()
	if runErr != nil {
		var execErr *exec.Error
		if errors.As(runErr, &execErr) {
			return nil, nil, errToolMissing
		}
		if cctx.Err() != nil {
			return outBuf.Bytes(), errBuf.Bytes(), cctx.Err()
		}
		// Exit code != 0 with captured output: let the parser decide.
	}
	return outBuf.Bytes(), errBuf.Bytes(), nil
}

// toRelative converts an absolute tool-reported path back to repo-relative.
func toRelative(path, repoPath string) string {
	rel, err := filepath.Rel(repoPath, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

// absPythonFiles maps repo-relative paths to absolute ones, keeping only
// Python sources, in input order.
func absPythonFiles(repoPath string, files []string) []string {
	var abs []string
	for _, f := range files {
		if strings.HasSuffix(f, ".py") {
			abs = append(abs, filepath.Join(repoPath, f))
		}
	}
	return abs
}
