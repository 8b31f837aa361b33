package workflow

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ci.yml", `
name: CI
on: push
jobs:
  build:
    runs-on: ubuntu-latest
  test:
    name: Unit tests
    runs-on: ubuntu-latest
`)
	writeFile(t, dir, "release.yaml", "on: push\njobs: {}\n")
	writeFile(t, dir, "nested/nightly.yml", "name: Nightly\n")
	writeFile(t, dir, "README.md", "# not a workflow")
	writeFile(t, dir, "broken.yml", "name: [unterminated\n")

	workflows, err := Discover(dir)
	require.NoError(t, err)
	require.Len(t, workflows, 3)

	byFile := make(map[string]Workflow)
	for _, w := range workflows {
		byFile[w.File] = w
	}
	ci := byFile["ci.yml"]
	assert.Equal(t, "CI", ci.Name)
	assert.Equal(t, map[string]string{"build": "build", "test": "Unit tests"}, ci.Jobs)
	assert.Equal(t, "release", byFile["release.yaml"].Name)
	assert.Equal(t, "Nightly", byFile["nested/nightly.yml"].Name)

	assert.Equal(t, []string{"CI", "Nightly", "release"}, Names(workflows))
}

func TestDiscover_MissingDir(t *testing.T) {
	workflows, err := Discover(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, workflows)

	_, err = Discover("")
	assert.Error(t, err)
}

func TestDiscoverNames_Dedup(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yml", "name: CI\n")
	writeFile(t, dir, "b.yml", "name: CI\n")

	names, err := DiscoverNames(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"CI"}, names)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, validate([]byte("name: CI\n\tjobs: {}\r\n")))
	assert.Error(t, validate([]byte("name: CI\x00")))
	assert.Error(t, validate([]byte(strings.Repeat("\x01", 11))))
	assert.Error(t, validate(make([]byte, maxWorkflowSize+1)))
}
