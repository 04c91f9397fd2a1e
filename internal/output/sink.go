package output

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/pgzip"
)

// Create opens path for writing. "-" writes to stdout (which is not closed);
// a ".gz" suffix compresses with parallel gzip.
func Create(path string, stdout io.Writer) (io.WriteCloser, error) {
	if path == "-" {
		return nopWriteCloser{stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(strings.ToLower(path), ".gz") {
		return f, nil
	}
	return &gzipWriteCloser{zw: pgzip.NewWriter(f), f: f}, nil
}

// EnsureDir creates the parent directory of path when it is missing and
// reports whether it had to.
func EnsureDir(path string) (bool, error) {
	if path == "-" {
		return false, nil
	}
	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, err
	}
	return true, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

type gzipWriteCloser struct {
	zw *pgzip.Writer
	f  *os.File
}

func (g *gzipWriteCloser) Write(p []byte) (int, error) { return g.zw.Write(p) }

func (g *gzipWriteCloser) Close() error {
	zerr := g.zw.Close()
	ferr := g.f.Close()
	if zerr != nil {
		return zerr
	}
	return ferr
}
