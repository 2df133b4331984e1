package remotefs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SFTPConfig holds connection settings for an SFTP target.
type SFTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// KnownHosts is a known_hosts file used to verify the server key.
	KnownHosts string
	// InsecureIgnoreHostKey skips host key verification. Only honoured when
	// KnownHosts is empty.
	InsecureIgnoreHostKey bool
	Timeout               time.Duration
}

// SFTP uploads over an SSH connection.
type SFTP struct {
	conn   *ssh.Client
	client *sftp.Client
}

func hostKeyCallback(cfg SFTPConfig) (ssh.HostKeyCallback, error) {
	if cfg.KnownHosts != "" {
		cb, err := knownhosts.New(cfg.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("load known hosts: %w", err)
		}
		return cb, nil
	}
	if cfg.InsecureIgnoreHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	return nil, errors.New("no known_hosts file configured and insecure_ignore_host_key is off")
}

// DialSFTP connects with password authentication.
func DialSFTP(ctx context.Context, cfg SFTPConfig) (*SFTP, error) {
	callback, err := hostKeyCallback(cfg)
	if err != nil {
		return nil, err
	}
	port := cfg.Port
	if port == 0 {
		port = 22
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	sshConfig := &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(cfg.Password)},
		HostKeyCallback: callback,
		Timeout:         timeout,
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	dialer := net.Dialer{Timeout: timeout}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	c, chans, reqs, err := ssh.NewClientConn(netConn, addr, sshConfig)
	if err != nil {
		netConn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	conn := ssh.NewClient(c, chans, reqs)

	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("start sftp session: %w", err)
	}
	return &SFTP{conn: conn, client: client}, nil
}

func (s *SFTP) CreateDirectory(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.client.Mkdir(path); err != nil {
		// SFTP servers report an existing directory as a generic failure.
		if info, statErr := s.client.Stat(path); statErr == nil && info.IsDir() {
			return fmt.Errorf("create directory %s: %w", path, fs.ErrExist)
		}
		return fmt.Errorf("create directory %s: %w", path, err)
	}
	return nil
}

func (s *SFTP) WriteStream(ctx context.Context, path string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := s.client.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY)
	if err != nil {
		return fmt.Errorf("open remote %s: %w", path, err)
	}
	if _, err := f.ReadFrom(r); err != nil {
		f.Close()
		return fmt.Errorf("write remote %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close remote %s: %w", path, err)
	}
	return nil
}

func (s *SFTP) Write(ctx context.Context, path string, data []byte) error {
	return s.WriteStream(ctx, path, bytes.NewReader(data))
}

func (s *SFTP) ListContents(ctx context.Context, path string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	infos, err := s.client.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("list remote %s: %w", path, err)
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	return names, nil
}

func (s *SFTP) Chmod(ctx context.Context, path string, mode fs.FileMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.client.Chmod(path, mode); err != nil {
		return fmt.Errorf("chmod remote %s: %w", path, err)
	}
	return nil
}

func (s *SFTP) Close() error {
	err := s.client.Close()
	if s.conn != nil {
		err = errors.Join(err, s.conn.Close())
	}
	return err
}
