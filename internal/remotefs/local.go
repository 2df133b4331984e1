package remotefs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Local maps remote paths below Root. It serves tests and targets whose
// document root is mounted on the CI machine.
type Local struct {
	Root string
}

// NewLocal returns a Local rooted at root. An empty root maps remote paths
// to the local filesystem unchanged.
func NewLocal(root string) *Local {
	return &Local{Root: root}
}

func (l *Local) resolve(p string) string {
	clean := path.Clean("/" + strings.TrimPrefix(p, "/"))
	if l.Root == "" {
		return filepath.FromSlash(clean)
	}
	return filepath.Join(l.Root, filepath.FromSlash(clean))
}

func (l *Local) CreateDirectory(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full := l.resolve(p)
	if err := os.Mkdir(full, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("create directory %s: %w", p, fs.ErrExist)
		}
		return fmt.Errorf("create directory %s: %w", p, err)
	}
	return nil
}

func (l *Local) WriteStream(ctx context.Context, p string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full := l.resolve(p)
	f, err := os.OpenFile(full, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", p, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", p, err)
	}
	return f.Close()
}

func (l *Local) Write(ctx context.Context, p string, data []byte) error {
	return l.WriteStream(ctx, p, bytes.NewReader(data))
}

func (l *Local) ListContents(ctx context.Context, p string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full := l.resolve(p)
	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", p, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// Chmod sets the mode of an uploaded file.
func (l *Local) Chmod(ctx context.Context, p string, mode fs.FileMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return os.Chmod(l.resolve(p), mode)
}

func (l *Local) Close() error { return nil }
