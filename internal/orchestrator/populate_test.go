package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splax/swapdeploy/pkg/config"
)

func TestDirPopulator(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, ".git", "objects"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, ".git", "HEAD"), []byte("ref"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(src, "lib"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "lib", "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "run.sh"), []byte("#!/bin/sh\n"), 0o755))
	require.NoError(t, os.Symlink(filepath.Join(src, "lib", "a.txt"), filepath.Join(src, "link.txt")))
	require.NoError(t, os.Symlink(filepath.Join(src, "lib"), filepath.Join(src, "linkdir")))

	dst := filepath.Join(src, "build")
	require.NoError(t, os.MkdirAll(dst, 0o755))

	require.NoError(t, DirPopulator{Source: src}.Populate(context.Background(), dst))

	assert.FileExists(t, filepath.Join(dst, "lib", "a.txt"))
	assert.NoDirExists(t, filepath.Join(dst, ".git"))
	assert.NoDirExists(t, filepath.Join(dst, "build"))
	assert.NoFileExists(t, filepath.Join(dst, "linkdir"))

	link, err := os.Lstat(filepath.Join(dst, "link.txt"))
	require.NoError(t, err)
	assert.True(t, link.Mode().IsRegular())

	script, err := os.Stat(filepath.Join(dst, "run.sh"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), script.Mode().Perm())
}

func TestDirPopulatorCustomSkip(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "secret.env"), []byte("x"), 0o644))
	dst := t.TempDir()

	require.NoError(t, DirPopulator{Source: src, Skip: []string{"secret.env"}}.Populate(context.Background(), dst))

	assert.DirExists(t, filepath.Join(dst, ".git"))
	assert.NoFileExists(t, filepath.Join(dst, "secret.env"))
}

func TestDirPopulatorRequiresSource(t *testing.T) {
	assert.Error(t, DirPopulator{}.Populate(context.Background(), t.TempDir()))
}

func TestDefaultPopulator(t *testing.T) {
	assert.Equal(t, DirPopulator{Source: "."}, defaultPopulator(config.OrchestratorConfig{BuildSource: "."}))
	assert.Equal(t, GitPopulator{URL: "https://git.example.com/site.git", Ref: "main"},
		defaultPopulator(config.OrchestratorConfig{BuildSource: ".", BuildRepository: "https://git.example.com/site.git", BuildRef: "main"}))
}
