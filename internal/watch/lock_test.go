package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watch.lock")

	lock, err := AcquireLock(path)
	require.NoError(t, err)
	assert.Equal(t, path, lock.Path())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), fmt.Sprint(os.Getpid()))

	require.NoError(t, lock.Release())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestAcquireLock_HeldByLiveProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watch.lock")
	// The parent process (the test runner) is alive for the whole test.
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getppid())), 0644))

	_, err := AcquireLock(path)
	require.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestAcquireLock_ReacquireOwnLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watch.lock")
	first, err := AcquireLock(path)
	require.NoError(t, err)
	defer first.Release()

	// Same pid: the lock is already ours.
	second, err := AcquireLock(path)
	require.NoError(t, err)
	assert.Equal(t, first.Path(), second.Path())
}
