package ingest

import (
	"context"
	"io"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// parseFTPURL extracts host (with port) and path from an FTP URL.
func parseFTPURL(rawURL string) (host string, path string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", eris.Wrap(err, "ingest: parse ftp url")
	}
	if u.Scheme != "ftp" {
		return "", "", eris.Errorf("ingest: expected ftp scheme, got %q", u.Scheme)
	}

	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}

	path = u.Path
	if path == "" {
		return "", "", eris.New("ingest: empty path in ftp url")
	}

	return host, path, nil
}

// downloadFTP retrieves a remote submission file to a temp file and returns
// the local path. The cleanup func removes the temp file.
func downloadFTP(ctx context.Context, ftpURL string, timeout time.Duration) (string, func(), error) {
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	host, remote, err := parseFTPURL(ftpURL)
	if err != nil {
		return "", nil, err
	}

	zap.L().Debug("ftp: connecting", zap.String("host", host), zap.String("path", remote))

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return "", nil, eris.Wrap(err, "ingest: ftp dial")
	}
	defer conn.Quit()

	if err := conn.Login("anonymous", "anonymous@"); err != nil {
		return "", nil, eris.Wrap(err, "ingest: ftp login")
	}

	resp, err := conn.Retr(remote)
	if err != nil {
		return "", nil, eris.Wrap(err, "ingest: ftp retrieve")
	}
	defer resp.Close()

	tmp, err := os.CreateTemp("", "submission-*"+filepath.Ext(remote))
	if err != nil {
		return "", nil, eris.Wrap(err, "ingest: create temp file")
	}

	if _, err := io.Copy(tmp, resp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, eris.Wrap(err, "ingest: write temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", nil, eris.Wrap(err, "ingest: close temp file")
	}

	name := tmp.Name()
	return name, func() { os.Remove(name) }, nil
}
