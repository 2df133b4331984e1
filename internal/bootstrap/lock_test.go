package bootstrap

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splax/swapdeploy/pkg/deployerr"
)

func TestRunLockExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), LockName)

	a, err := acquireLock(path)
	require.NoError(t, err)

	_, err = acquireLock(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, deployerr.ErrConcurrentRun))

	require.NoError(t, a.release())
	b, err := acquireLock(path)
	require.NoError(t, err)

	// A second release of a lock that was already handed over is a no-op
	// and must not free the current holder.
	require.NoError(t, a.release())
	_, err = acquireLock(path)
	assert.True(t, errors.Is(err, deployerr.ErrConcurrentRun))

	require.NoError(t, b.release())
	c, err := acquireLock(path)
	require.NoError(t, err)
	require.NoError(t, c.release())
}

func TestRunLockLeftoverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), LockName)
	require.NoError(t, os.WriteFile(path, []byte("left by a crashed run"), 0o600))

	lock, err := acquireLock(path)
	require.NoError(t, err)
	require.NoError(t, lock.release())
}

func TestRunLockMissingDirectory(t *testing.T) {
	_, err := acquireLock(filepath.Join(t.TempDir(), "missing", LockName))
	require.Error(t, err)
	assert.True(t, errors.Is(err, deployerr.ErrIO))
}

func TestRunLockReleaseNil(t *testing.T) {
	var lock *runLock
	assert.NoError(t, lock.release())
}
