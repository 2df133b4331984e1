package orchestrator

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// GitPopulator fills the build folder with a shallow clone of a repository.
// The .git directory is removed so it never ships.
type GitPopulator struct {
	URL string
	// Ref is a branch or tag; empty means the remote HEAD.
	Ref string
}

func (p GitPopulator) Populate(ctx context.Context, buildDir string) error {
	if p.URL == "" {
		return fmt.Errorf("repository URL cannot be empty")
	}
	if buildDir == "" {
		return fmt.Errorf("destination cannot be empty")
	}
	args := []string{"clone", "--depth", "1"}
	if p.Ref != "" {
		args = append(args, "--branch", p.Ref)
	}
	args = append(args, p.URL, ".")
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = buildDir
	// Prevent git from prompting for credentials interactively.
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git clone failed: %w: %s", err, string(output))
	}
	return os.RemoveAll(filepath.Join(buildDir, ".git"))
}
