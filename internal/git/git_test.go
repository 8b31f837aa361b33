package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
		"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
		"GIT_CONFIG_GLOBAL=/dev/null", "GIT_CONFIG_NOSYSTEM=1",
	)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
}

func newRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	runGit(t, dir, "init", "-q", "-b", "trunk")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("hi\n"), 0644))
	runGit(t, dir, "add", "README")
	runGit(t, dir, "commit", "-q", "-m", "initial")
	return dir
}

func TestHead(t *testing.T) {
	requireGit(t)
	dir := newRepo(t)

	rev, err := Head(context.Background(), dir)
	require.NoError(t, err)
	assert.Len(t, rev.Commit, 40)
	assert.Equal(t, "trunk", rev.Branch)
	assert.Len(t, rev.Short(), 7)
	assert.False(t, rev.IsZero())
}

func TestHead_Detached(t *testing.T) {
	requireGit(t)
	dir := newRepo(t)
	runGit(t, dir, "checkout", "-q", "--detach")

	rev, err := Head(context.Background(), dir)
	require.NoError(t, err)
	assert.NotEmpty(t, rev.Commit)
	assert.Empty(t, rev.Branch)
}

func TestHead_NotRepository(t *testing.T) {
	requireGit(t)
	_, err := Head(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, ErrNotRepository)
}

func TestDetect_PrefersCIEnvironment(t *testing.T) {
	env := map[string]string{
		"GITHUB_SHA":      "abc123",
		"GITHUB_REF_NAME": "main",
	}
	rev, err := detect(context.Background(), t.TempDir(), func(k string) string { return env[k] })
	require.NoError(t, err)
	assert.Equal(t, Revision{Commit: "abc123", Branch: "main"}, rev)

	// pull requests report the source branch
	env["GITHUB_HEAD_REF"] = "feature/x"
	rev, err = detect(context.Background(), t.TempDir(), func(k string) string { return env[k] })
	require.NoError(t, err)
	assert.Equal(t, "feature/x", rev.Branch)
}

func TestRevision(t *testing.T) {
	assert.True(t, Revision{}.IsZero())
	assert.Equal(t, "abc", Revision{Commit: "abc"}.Short())
}
