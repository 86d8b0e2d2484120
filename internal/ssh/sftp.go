package ssh

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/sftp"
	xssh "golang.org/x/crypto/ssh"
)

// Session is an SFTP view of a remote file tree over one SSH connection.
type Session struct {
	conn *xssh.Client
	sf   *sftp.Client
}

// OpenSession dials c and starts an SFTP subsystem on it.
func OpenSession(ctx context.Context, c *Client) (*Session, error) {
	conn, err := Dial(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s: %w", c.Addr, err)
	}
	sf, err := sftp.NewClient(conn)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("sftp client: %w", err)
	}
	return &Session{conn: conn, sf: sf}, nil
}

// ReadDir lists a remote directory.
func (s *Session) ReadDir(path string) ([]os.FileInfo, error) {
	return s.sf.ReadDir(path)
}

// Exists reports whether a remote path is present.
func (s *Session) Exists(path string) bool {
	_, err := s.sf.Stat(path)
	return err == nil
}

// ReadFile returns the content of a small remote file.
func (s *Session) ReadFile(path string) ([]byte, error) {
	f, err := s.sf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// PullFile downloads a remote file to a local path.
func (s *Session) PullFile(ctx context.Context, remotePath, localPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return fmt.Errorf("mkdir local: %w", err)
	}
	src, err := s.sf.Open(remotePath)
	if err != nil {
		return fmt.Errorf("open remote: %w", err)
	}
	defer src.Close()
	dst, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create local: %w", err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	return nil
}

func (s *Session) Close() error {
	_ = s.sf.Close()
	return s.conn.Close()
}
