// Package diff shells out to git for a zero-context unified diff and parses
// it into FileChange records. Missing binary, timeouts, and unborn HEAD all
// degrade to an empty or staged-only result rather than an error.
package diff

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	godiff "github.com/sourcegraph/go-diff/diff"

	"verdict/internal/logging"
	"verdict/internal/models"
)

// Parse runs git diff for the given change set and returns structured file
// changes in diff order.
//
// Ref semantics: both refs → refBefore..refAfter; only refBefore →
// refBefore..HEAD; neither → working tree against HEAD, falling back to the
// staged diff when no HEAD exists yet.
func Parse(ctx context.Context, repoPath, refBefore, refAfter string, timeout time.Duration) *models.DiffResult {
	log := logging.Get(logging.CategoryDiff)
	result := &models.DiffResult{RefBefore: refBefore, RefAfter: refAfter}

	args := []string{"diff", "--unified=0"}
	switch {
	case refBefore != "" && refAfter != "":
		args = append(args, refBefore+".."+refAfter)
	case refBefore != "":
		args = append(args, refBefore+"..HEAD")
	default:
		args = append(args, "HEAD")
	}

	stdout, stderr, err := runGit(ctx, repoPath, timeout, args...)
	if err != nil {
		if isHeadError(stderr) {
			// Fresh repository without commits: diff the index instead.
			stdout, _, err = runGit(ctx, repoPath, timeout, "diff", "--unified=0", "--cached")
			if err != nil {
				log.Debugw("staged diff failed", "repo", repoPath, "error", err)
				return result
			}
		} else {
			log.Debugw("git diff failed", "repo", repoPath, "error", err)
			return result
		}
	}

	result.Files = parseUnified(stdout)
	log.Debugw("diff parsed", "repo", repoPath, "files", len(result.Files))
	return result
}

// ParseText parses raw unified diff text directly. Used by tests and by
// callers that already hold diff output.
func ParseText(text string) *models.DiffResult {
	return &models.DiffResult{Files: parseUnified([]byte(text))}
}

func runGit(ctx context.Context, repoPath string, timeout time.Duration, args ...string) ([]byte, []byte, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, "git", args...)
	cmd.Dir = repoPath
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

func isHeadError(stderr []byte) bool {
	return bytes.Contains(stderr, []byte("HEAD"))
}

// parseUnified converts git's unified diff output into FileChange records,
// preserving file and hunk order.
func parseUnified(raw []byte) []models.FileChange {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}

	fileDiffs, err := godiff.NewMultiFileDiffReader(bytes.NewReader(raw)).ReadAllFiles()
	if err != nil {
		logging.Get(logging.CategoryDiff).Debugw("unified diff parse failed", "error", err)
		return nil
	}

	changes := make([]models.FileChange, 0, len(fileDiffs))
	for _, fd := range fileDiffs {
		fc := models.FileChange{Path: changePath(fd)}
		fc.IsNew = fd.OrigName == "/dev/null"
		fc.IsDeleted = fd.NewName == "/dev/null"
		for _, ext := range fd.Extended {
			if strings.HasPrefix(ext, "new file mode") {
				fc.IsNew = true
			}
			if strings.HasPrefix(ext, "deleted file mode") {
				fc.IsDeleted = true
			}
		}
		for _, h := range fd.Hunks {
			if h.OrigLines > 0 {
				fc.DeletedLines = append(fc.DeletedLines, models.LineRange{
					Start:  int(h.OrigStartLine),
					Length: int(h.OrigLines),
				})
			}
			if h.NewLines > 0 {
				fc.AddedLines = append(fc.AddedLines, models.LineRange{
					Start:  int(h.NewStartLine),
					Length: int(h.NewLines),
				})
			}
		}
		changes = append(changes, fc)
	}
	return changes
}

// changePath strips git's a/ b/ prefixes, preferring the post-image name.
func changePath(fd *godiff.FileDiff) string {
	name := fd.NewName
	if name == "" || name == "/dev/null" {
		name = fd.OrigName
	}
	name = strings.TrimPrefix(name, "b/")
	name = strings.TrimPrefix(name, "a/")
	return name
}
