package workspace

import (
	"bytes"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splax/swapdeploy/pkg/deployerr"
)

// block returns RandomBytes bytes of b.
func block(b byte) []byte {
	return bytes.Repeat([]byte{b}, RandomBytes)
}

func name(b byte) string {
	return base64.RawURLEncoding.EncodeToString(block(b))
}

func TestRandomComponent(t *testing.T) {
	got, err := RandomComponent(bytes.NewReader([]byte{
		0xfb, 0xff, 0xbf, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}))
	require.NoError(t, err)
	assert.Len(t, got, 24)
	assert.True(t, strings.HasPrefix(got, "-_-_"), got)
	assert.NotContains(t, got, "=")
}

func TestRandomComponentShortSource(t *testing.T) {
	_, err := RandomComponent(bytes.NewReader([]byte{1, 2, 3}))
	assert.Error(t, err)
}

func TestUnusedPathSkipsExisting(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, name(1)), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, name(2)+".zip"), nil, 0o644))

	random := bytes.NewReader(bytes.Join([][]byte{block(1), block(3), block(2), block(4)}, nil))
	m, err := New(root, random)
	require.NoError(t, err)

	dir, err := m.UnusedPath("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, name(3)), dir)

	zip, err := m.UnusedPath(".zip")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, name(4)+".zip"), zip)
}

func TestNewRejectsEmptyRoot(t *testing.T) {
	_, err := New("", nil)
	assert.Error(t, err)
}

func TestCleanupRefusesOutsideRoot(t *testing.T) {
	root := t.TempDir()
	m, err := New(root, nil)
	require.NoError(t, err)

	assert.Error(t, m.Cleanup(root))
	assert.Error(t, m.Cleanup(filepath.Dir(root)))

	inside := filepath.Join(root, "build")
	require.NoError(t, os.MkdirAll(filepath.Join(inside, "sub"), 0o755))
	require.NoError(t, m.Cleanup(inside))
	_, err = os.Stat(inside)
	assert.True(t, os.IsNotExist(err))
}

func TestUnusedNameThirdAttempt(t *testing.T) {
	random := bytes.NewReader(bytes.Join([][]byte{block(1), block(2), block(3), block(4)}, nil))
	got, err := UnusedName(random, []string{name(1), name(2), "index.html"})
	require.NoError(t, err)
	assert.Equal(t, name(3), got)
	// Only three draws were consumed.
	assert.Equal(t, RandomBytes, random.Len())
}

func TestUnusedNameExhausted(t *testing.T) {
	random := bytes.NewReader(bytes.Repeat(block(7), RemoteAttempts))
	_, err := UnusedName(random, []string{name(7)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, deployerr.ErrResourceExhaustion))
	assert.Equal(t, "could not find an unused directory name", err.Error())
}
