package xmlstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/pgzip"

	"xmlbar/internal/metrics"
)

// Input describes where an XML document comes from.
//
// Path may be "-" for Stdin, an http(s) URL, a file, or a directory (every
// regular file in it, by name). A ".gz" suffix turns on gzip decoding.
type Input struct {
	Path   string
	Stdin  io.Reader
	Client *http.Client
}

// IsRemote reports whether path is fetched over HTTP.
func IsRemote(path string) bool {
	p := strings.ToLower(path)
	return strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://")
}

// Sources expands in.Path into the list of documents to read. Directories
// expand to their regular *.xml and *.xml.gz files (any case) sorted by name;
// everything else is returned as-is.
func Sources(path string) ([]string, error) {
	if path == "-" || IsRemote(path) {
		return []string{path}, nil
	}
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat input: %w", err)
	}
	if !st.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	var out []string
	for _, e := range entries {
		if !e.Type().IsRegular() || !isXMLName(e.Name()) {
			continue
		}
		out = append(out, filepath.Join(path, e.Name()))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("input directory %s has no .xml or .xml.gz files", path)
	}
	return out, nil
}

func isXMLName(name string) bool {
	n := strings.ToLower(name)
	return strings.HasSuffix(n, ".xml") || strings.HasSuffix(n, ".xml.gz")
}

// Open returns a reader for one source as listed by Sources.
//
// On non-2xx HTTP responses the error carries the status code and up to 4KB
// of the response body for debugging.
func Open(ctx context.Context, in Input) (io.ReadCloser, error) {
	var rc io.ReadCloser
	switch {
	case in.Path == "-":
		if in.Stdin == nil {
			return io.NopCloser(strings.NewReader("")), nil
		}
		rc = io.NopCloser(in.Stdin)
	case IsRemote(in.Path):
		body, err := fetch(ctx, in.Client, in.Path)
		if err != nil {
			return nil, err
		}
		rc = body
	default:
		f, err := os.Open(in.Path)
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		rc = f
	}

	if !strings.HasSuffix(strings.ToLower(in.Path), ".gz") {
		return rc, nil
	}
	zr, err := pgzip.NewReader(rc)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("gzip input %s: %w", in.Path, err)
	}
	return &gzipReadCloser{Reader: zr, under: rc}, nil
}

func fetch(ctx context.Context, client *http.Client, url string) (io.ReadCloser, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", "xml2bar/1.0")

	resp, err := client.Do(req)
	if err != nil {
		metrics.IncCounter(metrics.HTTPRequestsTotal, 1, metrics.Labels{"status": "error"})
		return nil, fmt.Errorf("http get: %w", err)
	}
	metrics.IncCounter(metrics.HTTPRequestsTotal, 1, metrics.Labels{"status": strconv.Itoa(resp.StatusCode)})
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp.Body, nil
}

type gzipReadCloser struct {
	*pgzip.Reader
	under io.Closer
}

func (g *gzipReadCloser) Close() error {
	zerr := g.Reader.Close()
	if err := g.under.Close(); err != nil {
		return err
	}
	return zerr
}
