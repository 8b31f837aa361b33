package project

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndFind(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	p, err := Create(ctx, root)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	assert.FileExists(t, filepath.Join(root, ConfigDir, ConfigFile))
	assert.FileExists(t, filepath.Join(root, ConfigDir, HistoryDB))

	_, err = Create(ctx, root)
	assert.Error(t, err)

	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))
	found, err := Find(ctx, nested)
	require.NoError(t, err)
	wantRoot, err := filepath.Abs(root)
	require.NoError(t, err)
	assert.Equal(t, wantRoot, found.Root)
	assert.Equal(t, filepath.Base(wantRoot), found.Config.Project.Name)
}

func TestFind_NoProject(t *testing.T) {
	_, err := Find(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, ErrNoProject)
}

func TestFindOrDefault(t *testing.T) {
	root := t.TempDir()
	p, err := FindOrDefault(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, root, p.Root)
	assert.Equal(t, filepath.Join(root, ".github/workflows"), p.WorkflowsDir())
	assert.Equal(t, filepath.Join(root, ".runlens/logs"), p.Logs().Dir())

	_, err = os.Stat(filepath.Join(root, ConfigDir))
	assert.True(t, os.IsNotExist(err), "nothing is written until the store is used")
}

func TestProjectDB_Lazy(t *testing.T) {
	ctx := context.Background()
	p := &Project{Root: t.TempDir(), Config: &Config{}}
	t.Cleanup(func() { p.Close() })

	first, err := p.DB(ctx)
	require.NoError(t, err)
	second, err := p.DB(ctx)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestPath(t *testing.T) {
	p := &Project{Root: "/repo", Config: &Config{}}
	assert.Equal(t, filepath.Join("/repo", "x/y"), p.Path("x/y"))
	assert.Equal(t, "/abs", p.Path("/abs"))
}
