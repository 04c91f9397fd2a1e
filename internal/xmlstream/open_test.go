package xmlstream

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSources_Directory lists XML files sorted by name and skips the rest.
func TestSources_Directory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, n := range []string{"b.xml", "a.xml", "C.XML.GZ", "README.md", "template.json", ".DS_Store", "notes.xml.bak"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("<r/>"), 0o600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.xml"), 0o700))

	got, err := Sources(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "C.XML.GZ"), filepath.Join(dir, "a.xml"), filepath.Join(dir, "b.xml")}, got)

	empty := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(empty, "README.md"), nil, 0o600))
	_, err = Sources(empty)
	assert.Error(t, err)

	got, err = Sources("-")
	require.NoError(t, err)
	assert.Equal(t, []string{"-"}, got)

	_, err = Sources(filepath.Join(dir, "missing.xml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

// TestOpen_Gzip decodes .gz files transparently.
func TestOpen_Gzip(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "in.xml.gz")
	f, err := os.Create(p)
	require.NoError(t, err)
	zw := pgzip.NewWriter(f)
	_, err = zw.Write([]byte("<r><a>1</a></r>"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	rc, err := Open(context.Background(), Input{Path: p})
	require.NoError(t, err)
	defer rc.Close()

	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "<r><a>1</a></r>", string(b))
}

// TestOpen_HTTP fetches remote input and reports non-2xx bodies.
func TestOpen_HTTP(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.Error(w, "nope", http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("<r/>"))
	}))
	defer srv.Close()

	rc, err := Open(context.Background(), Input{Path: srv.URL + "/doc.xml", Client: srv.Client()})
	require.NoError(t, err)
	b, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "<r/>", string(b))

	_, err = Open(context.Background(), Input{Path: srv.URL + "/missing", Client: srv.Client()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "nope")
}

// TestOpen_Stdin reads "-" from the provided reader.
func TestOpen_Stdin(t *testing.T) {
	t.Parallel()

	rc, err := Open(context.Background(), Input{Path: "-", Stdin: strings.NewReader("<x/>")})
	require.NoError(t, err)
	b, _ := io.ReadAll(rc)
	assert.Equal(t, "<x/>", string(b))
}
