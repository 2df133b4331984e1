package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Populator fills the build folder with the files to deploy.
type Populator interface {
	Populate(ctx context.Context, buildDir string) error
}

// PopulatorFunc adapts a function to Populator.
type PopulatorFunc func(ctx context.Context, buildDir string) error

func (f PopulatorFunc) Populate(ctx context.Context, buildDir string) error {
	return f(ctx, buildDir)
}

// DirPopulator copies a local source tree into the build folder. Symlinks to
// files are copied as regular files, symlinks to directories are skipped.
type DirPopulator struct {
	Source string
	// Skip lists base names left out; nil means ".git".
	Skip []string
}

func (p DirPopulator) Populate(ctx context.Context, buildDir string) error {
	if p.Source == "" {
		return errors.New("no build source configured")
	}
	src, err := filepath.Abs(p.Source)
	if err != nil {
		return err
	}
	dst, err := filepath.Abs(buildDir)
	if err != nil {
		return err
	}
	skip := map[string]bool{".git": true}
	if p.Skip != nil {
		skip = make(map[string]bool, len(p.Skip))
		for _, name := range p.Skip {
			skip[name] = true
		}
	}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		// The build folder may live below the source tree.
		if path == dst {
			return filepath.SkipDir
		}
		if path != src && skip[d.Name()] {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("stat %s: %w", rel, err)
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		return copyFile(path, target, info.Mode().Perm())
	})
}

func copyFile(src, dst string, mode fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
