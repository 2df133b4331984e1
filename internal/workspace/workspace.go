// Package workspace derives the collision-free random paths a deployment
// works with, locally under the tmp dir and remotely under the public path.
package workspace

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/splax/swapdeploy/pkg/deployerr"
)

// RandomBytes is the entropy of one random path component.
const RandomBytes = 18

// RemoteAttempts bounds the search for an unused remote directory name.
const RemoteAttempts = 10

// RandomComponent reads RandomBytes from r and encodes them URL-safe
// without padding, giving a 24 character name.
func RandomComponent(r io.Reader) (string, error) {
	buf := make([]byte, RandomBytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Manager owns the local working paths of one deployment under a common root.
type Manager struct {
	root   string
	random io.Reader
}

// New ensures the workspace root exists and is accessible. A nil random
// source means crypto/rand.
func New(root string, random io.Reader) (*Manager, error) {
	if root == "" {
		return nil, fmt.Errorf("workspace root cannot be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	if random == nil {
		random = rand.Reader
	}
	return &Manager{root: root, random: random}, nil
}

// Random returns a fresh random path component.
func (m *Manager) Random() (string, error) {
	return RandomComponent(m.random)
}

// UnusedPath returns root/<random><suffix> for a name nothing occupies yet.
// It retries until one is free.
func (m *Manager) UnusedPath(suffix string) (string, error) {
	for {
		name, err := m.Random()
		if err != nil {
			return "", err
		}
		candidate := filepath.Join(m.root, name+suffix)
		_, err = os.Lstat(candidate)
		if errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("check workspace path: %w", err)
		}
	}
}

// Cleanup removes a path previously handed out by the manager.
func (m *Manager) Cleanup(path string) error {
	if path == "" {
		return nil
	}
	// Only paths within the configured root are removed.
	rel, err := filepath.Rel(m.root, path)
	if err != nil || rel == "." || rel == "" || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("refusing to cleanup path outside workspace root")
	}
	return os.RemoveAll(path)
}

// UnusedName draws up to RemoteAttempts names from random and returns the
// first that is not in existing.
func UnusedName(random io.Reader, existing []string) (string, error) {
	taken := make(map[string]struct{}, len(existing))
	for _, name := range existing {
		taken[name] = struct{}{}
	}
	for i := 0; i < RemoteAttempts; i++ {
		name, err := RandomComponent(random)
		if err != nil {
			return "", err
		}
		if _, ok := taken[name]; !ok {
			return name, nil
		}
	}
	return "", deployerr.ResourceExhaustion("could not find an unused directory name")
}
