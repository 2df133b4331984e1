package main

import (
	"os/signal"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetachFromClient(t *testing.T) {
	t.Cleanup(func() { signal.Reset(syscall.SIGHUP, syscall.SIGPIPE) })

	detachFromClient()

	assert.True(t, signal.Ignored(syscall.SIGHUP))
	assert.True(t, signal.Ignored(syscall.SIGPIPE))
}

func TestDeployDirExplicit(t *testing.T) {
	dir := t.TempDir()

	got, script, err := deployDir(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, got)
	assert.Empty(t, script)
}

func TestDeployDirFromExecutable(t *testing.T) {
	got, script, err := deployDir("")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))
	assert.NotEmpty(t, script)
}
