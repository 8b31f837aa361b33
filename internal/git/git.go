// Package git identifies the source revision a CI run was made against.
package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ErrNotRepository is returned when dir is not inside a git work tree.
var ErrNotRepository = errors.New("not a git repository")

// Revision is a commit and, when known, the branch it was checked out on.
type Revision struct {
	Commit string
	Branch string
}

// IsZero reports whether nothing is known about the revision.
func (r Revision) IsZero() bool {
	return r.Commit == "" && r.Branch == ""
}

// Short returns the abbreviated commit hash.
func (r Revision) Short() string {
	if len(r.Commit) > 7 {
		return r.Commit[:7]
	}
	return r.Commit
}

// Head returns the commit and branch checked out in dir. A detached HEAD
// has an empty branch.
func Head(ctx context.Context, dir string) (Revision, error) {
	commit, err := revParse(ctx, dir, "HEAD")
	if err != nil {
		return Revision{}, err
	}
	branch, err := revParse(ctx, dir, "--abbrev-ref", "HEAD")
	if err != nil {
		return Revision{}, err
	}
	if branch == "HEAD" {
		branch = ""
	}
	return Revision{Commit: commit, Branch: branch}, nil
}

// Detect prefers the revision a CI runner exports (GITHUB_SHA and
// GITHUB_HEAD_REF or GITHUB_REF_NAME) and falls back to Head.
func Detect(ctx context.Context, dir string) (Revision, error) {
	return detect(ctx, dir, os.Getenv)
}

func detect(ctx context.Context, dir string, getenv func(string) string) (Revision, error) {
	if sha := getenv("GITHUB_SHA"); sha != "" {
		branch := getenv("GITHUB_HEAD_REF")
		if branch == "" {
			branch = getenv("GITHUB_REF_NAME")
		}
		return Revision{Commit: sha, Branch: branch}, nil
	}
	return Head(ctx, dir)
}

func revParse(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"rev-parse"}, args...)...)
	if dir != "" {
		cmd.Dir = dir
	}
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			stderr := string(exitErr.Stderr)
			if strings.Contains(stderr, "not a git repository") {
				return "", ErrNotRepository
			}
			return "", fmt.Errorf("git rev-parse %s: %w\n%s", strings.Join(args, " "), err, stderr)
		}
		return "", fmt.Errorf("git rev-parse %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(output)), nil
}
