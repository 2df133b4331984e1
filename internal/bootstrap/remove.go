package bootstrap

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// RemoveAll deletes path and everything below it, children first. Symbolic
// links are unlinked and never followed, whether they point at files or
// directories. A missing path is not an error.
func RemoveAll(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if err := RemoveAll(filepath.Join(path, entry.Name())); err != nil {
				return err
			}
		}
	}
	return os.Remove(path)
}
