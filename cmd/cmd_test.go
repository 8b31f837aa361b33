package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newhook/runlens/internal/db"
	"github.com/newhook/runlens/internal/project"
	"github.com/newhook/runlens/internal/render"
	"github.com/newhook/runlens/internal/result"
	"github.com/newhook/runlens/internal/testutil"
)

var (
	failingLog = testutil.NewActLog("CI").
		StartJob("test").
		Step("test", "Main npm test", false, 2, "AssertionError: expected 3 to equal 4").
		EndJob("test", false).
		String()
	fixedLog = testutil.NewActLog("CI").
		StartJob("test").
		Step("test", "Main npm test", true, 2, "all tests passed").
		EndJob("test", true).
		String()
)

// resetFlags restores flag variables and their Changed state between runs
// of the shared root command.
func resetFlags() {
	flagProject, flagVerbose, flagFormat = "", false, "console"
	flagAnalyzeSave, flagAnalyzeExitCode = false, false
	flagDiffFiles = false
	flagHistoryLimit, flagHistoryKeep = 20, -1
	flagWatchPattern, flagWatchDebounce = "", 0

	var visit func(c *cobra.Command)
	visit = func(c *cobra.Command) {
		c.Flags().VisitAll(func(f *pflag.Flag) { f.Changed = false })
		for _, sub := range c.Commands() {
			visit(sub)
		}
	}
	visit(rootCmd)
	rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) { f.Changed = false })
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeLog(t *testing.T, dir, name, text string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(text), 0644))
	return path
}

func initProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	_, err := execute(t, "", "init", dir)
	require.NoError(t, err)
	return dir
}

func TestInit(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "", "init", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Initialized runlens project")
	assert.FileExists(t, filepath.Join(dir, project.ConfigDir, project.ConfigFile))
	assert.FileExists(t, filepath.Join(dir, project.ConfigDir, project.HistoryDB))

	_, err = execute(t, "", "init", dir)
	assert.Error(t, err, "init twice should fail")
}

func TestAnalyze_JSONFromFile(t *testing.T) {
	dir := t.TempDir()
	path := writeLog(t, dir, "ci.log", failingLog)

	out, err := execute(t, "", "--project", dir, "--format", "json", "analyze", path)
	require.NoError(t, err)

	var run result.ExecutionResult
	require.NoError(t, json.Unmarshal([]byte(out), &run))
	assert.False(t, run.Success)
	assert.Equal(t, path, run.LogPath)
	require.Equal(t, 1, run.TotalFailures())
	assert.Equal(t, result.KindAssertion, run.Failures()[0].Kind)

	// analyzing without --save leaves no history behind
	assert.NoDirExists(t, filepath.Join(dir, project.ConfigDir))
}

func TestAnalyze_Stdin(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, fixedLog, "--project", dir, "analyze")
	require.NoError(t, err)
	assert.Contains(t, out, "PASSED")
	assert.Contains(t, out, "Main npm test")
}

func TestAnalyze_ExitCode(t *testing.T) {
	dir := t.TempDir()
	path := writeLog(t, dir, "ci.log", failingLog)

	_, err := execute(t, "", "--project", dir, "analyze", "--exit-code", path)
	assert.ErrorIs(t, err, errRunFailed)

	_, err = execute(t, "", "--project", dir, "analyze", path)
	assert.NoError(t, err)
}

func TestAnalyze_EmptyInput(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "  \n", "--project", dir, "analyze")
	assert.Error(t, err)
}

func TestAnalyze_BadFormat(t *testing.T) {
	dir := t.TempDir()
	path := writeLog(t, dir, "ci.log", failingLog)
	_, err := execute(t, "", "--project", dir, "--format", "xml", "analyze", path)
	assert.Error(t, err)
}

func TestSaveHistoryAndDiff(t *testing.T) {
	dir := initProject(t)
	first := writeLog(t, dir, "first.log", failingLog)
	second := writeLog(t, dir, "second.log", fixedLog)

	out, err := execute(t, "", "--project", dir, "analyze", "--save", first)
	require.NoError(t, err)
	assert.Contains(t, out, "Saved run")

	out, err = execute(t, "", "--project", dir, "--format", "json", "analyze", "--save", second)
	require.NoError(t, err)

	dec := json.NewDecoder(strings.NewReader(out))
	var run result.ExecutionResult
	require.NoError(t, dec.Decode(&run))
	assert.True(t, run.Success)
	assert.Contains(t, run.LogPath, filepath.Join(project.ConfigDir, project.LogsDir))
	var doc render.ComparisonDocument
	require.NoError(t, dec.Decode(&doc))
	assert.Len(t, doc.ResolvedFailures, 1)
	assert.Equal(t, 1.0, doc.ImprovementScore)

	out, err = execute(t, "", "--project", dir, "--format", "json", "history", "list")
	require.NoError(t, err)
	var runs []db.RunSummary
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs, 2)
	assert.True(t, runs[0].Success, "newest first")
	assert.False(t, runs[1].Success)

	out, err = execute(t, "", "--project", dir, "--format", "json", "diff")
	require.NoError(t, err)
	var diff map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &diff))
	assert.Equal(t, "improved", diff["trend"])

	// explicit ids, reversed
	out, err = execute(t, "", "--project", dir, "--format", "json", "diff", db.ShortID(runs[1].ID), runs[0].ID)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &diff))
	assert.Equal(t, "regressed", diff["trend"])

	out, err = execute(t, "", "--project", dir, "history", "show", db.ShortID(runs[1].ID))
	require.NoError(t, err)
	assert.Contains(t, out, "FAILED")
	assert.Contains(t, out, "failures by kind")
	assert.Contains(t, out, "assertion")

	out, err = execute(t, "", "--project", dir, "history", "prune", "--keep", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Pruned 1 run(s)")
	_, err = os.Stat(runs[1].LogPath)
	assert.True(t, os.IsNotExist(err), "pruned run's log should be removed")
}

func TestDiff_FirstRunHasNothingToCompare(t *testing.T) {
	dir := initProject(t)
	path := writeLog(t, dir, "ci.log", failingLog)
	_, err := execute(t, "", "--project", dir, "analyze", "--save", path)
	require.NoError(t, err)

	out, err := execute(t, "", "--project", dir, "diff")
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing to compare")
}

func TestDiff_Files(t *testing.T) {
	dir := t.TempDir()
	cur := writeLog(t, dir, "cur.log", failingLog)
	prev := writeLog(t, dir, "prev.log", fixedLog)

	out, err := execute(t, "", "--project", dir, "--format", "markdown", "diff", "--files", cur, prev)
	require.NoError(t, err)
	assert.Contains(t, out, "## Comparison: regressed")
	assert.Contains(t, out, "### New failures (1)")

	_, err = execute(t, "", "--project", dir, "diff", "--files", cur)
	assert.Error(t, err)
}

func TestHistoryMigrateStatus(t *testing.T) {
	dir := initProject(t)
	out, err := execute(t, "", "--project", dir, "history", "migrate", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Applied migrations (2)")
	assert.Contains(t, out, "002")
	assert.NotContains(t, out, "Pending")
}
