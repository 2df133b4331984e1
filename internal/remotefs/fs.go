// Package remotefs is the file transfer capability the orchestrator uploads
// through. Paths are slash separated and either absolute or relative to the
// login directory on the remote host.
package remotefs

import (
	"context"
	"io"
	"io/fs"
)

// FS is the remote filesystem seen by the orchestrator.
type FS interface {
	// CreateDirectory creates a single directory. It returns an error
	// wrapping fs.ErrExist when the directory is already there.
	CreateDirectory(ctx context.Context, path string) error
	WriteStream(ctx context.Context, path string, r io.Reader) error
	Write(ctx context.Context, path string, data []byte) error
	// ListContents returns the base names of the entries in path.
	ListContents(ctx context.Context, path string) ([]string, error)
	Close() error
}

// Chmoder is implemented by adapters that can set file modes. The uploaded
// bootstrap binary has to be executable.
type Chmoder interface {
	Chmod(ctx context.Context, path string, mode fs.FileMode) error
}
