package remotefs

import (
	"context"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalCreateDirectory(t *testing.T) {
	root := t.TempDir()
	l := NewLocal(root)
	ctx := context.Background()

	require.NoError(t, l.CreateDirectory(ctx, "/public_html"))
	err := l.CreateDirectory(ctx, "/public_html")
	assert.ErrorIs(t, err, fs.ErrExist)

	err = l.CreateDirectory(ctx, "/missing/child")
	require.Error(t, err)
	assert.NotErrorIs(t, err, fs.ErrExist)
}

func TestLocalWriteAndList(t *testing.T) {
	root := t.TempDir()
	l := NewLocal(root)
	ctx := context.Background()

	require.NoError(t, l.CreateDirectory(ctx, "/www"))
	require.NoError(t, l.WriteStream(ctx, "/www/deploy.zip", strings.NewReader("zipdata")))
	require.NoError(t, l.Write(ctx, "/www/deploy.json", []byte("{}")))
	require.NoError(t, l.Chmod(ctx, "/www/deploy.json", 0o600))

	names, err := l.ListContents(ctx, "/www")
	require.NoError(t, err)
	sort.Strings(names)
	assert.Equal(t, []string{"deploy.json", "deploy.zip"}, names)

	data, err := os.ReadFile(filepath.Join(root, "www", "deploy.zip"))
	require.NoError(t, err)
	assert.Equal(t, "zipdata", string(data))
	info, err := os.Stat(filepath.Join(root, "www", "deploy.json"))
	require.NoError(t, err)
	assert.Equal(t, fs.FileMode(0o600), info.Mode().Perm())
}

func TestLocalStaysBelowRoot(t *testing.T) {
	root := t.TempDir()
	l := NewLocal(filepath.Join(root, "inner"))
	require.NoError(t, os.Mkdir(filepath.Join(root, "inner"), 0o755))

	require.NoError(t, l.Write(context.Background(), "/../../escape.txt", []byte("x")))
	_, err := os.Stat(filepath.Join(root, "inner", "escape.txt"))
	assert.NoError(t, err)
}

func TestLocalCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLocal(t.TempDir()).ListContents(ctx, "/")
	assert.ErrorIs(t, err, context.Canceled)
}

func newInMemorySFTP(t *testing.T) *SFTP {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	server := sftp.NewRequestServer(serverConn, sftp.InMemHandler())
	go func() { _ = server.Serve() }()
	client, err := sftp.NewClientPipe(clientConn, clientConn)
	require.NoError(t, err)
	s := &SFTP{client: client}
	t.Cleanup(func() {
		_ = s.Close()
		_ = server.Close()
	})
	return s
}

func TestSFTPAdapter(t *testing.T) {
	s := newInMemorySFTP(t)
	ctx := context.Background()

	require.NoError(t, s.CreateDirectory(ctx, "/public_html"))
	assert.ErrorIs(t, s.CreateDirectory(ctx, "/public_html"), fs.ErrExist)

	require.NoError(t, s.WriteStream(ctx, "/public_html/deploy.zip", strings.NewReader("zipdata")))
	require.NoError(t, s.Write(ctx, "/public_html/deploy.json", []byte("{}")))

	names, err := s.ListContents(ctx, "/public_html")
	require.NoError(t, err)
	sort.Strings(names)
	assert.Equal(t, []string{"deploy.json", "deploy.zip"}, names)
}

func TestHostKeyCallbackRequiresChoice(t *testing.T) {
	_, err := hostKeyCallback(SFTPConfig{})
	assert.Error(t, err)

	cb, err := hostKeyCallback(SFTPConfig{InsecureIgnoreHostKey: true})
	require.NoError(t, err)
	assert.NotNil(t, cb)

	_, err = hostKeyCallback(SFTPConfig{KnownHosts: filepath.Join(t.TempDir(), "missing")})
	assert.ErrorContains(t, err, "load known hosts")
}
