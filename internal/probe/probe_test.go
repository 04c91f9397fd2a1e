package probe

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"xmlbar/internal/extract"
	"xmlbar/internal/template"
)

const catalog = `<?xml version="1.0"?>
<catalog xmlns="urn:c">
  <meta><generated>2024-01-01</generated></meta>
  <book id="b1" lang="en">
    <title>Go</title>
    <author><name>Ann</name><country>NZ</country></author>
    <tags><tag>a</tag><tag>b</tag></tags>
    <chapter n="1"><heading>One</heading></chapter>
    <chapter n="2"><heading>Two</heading></chapter>
  </book>
  <book id="b2">
    <title>XML</title>
    <price currency="EUR"/>
  </book>
</catalog>
`

// TestGuessRecordTag picks the most frequent child of the document element.
func TestGuessRecordTag(t *testing.T) {
	t.Parallel()

	got, err := GuessRecordTag([]byte(catalog))
	if err != nil {
		t.Fatalf("GuessRecordTag: %v", err)
	}
	if got != "book" {
		t.Fatalf("got %q, want book", got)
	}

	// Truncated samples still count what was seen.
	got, err = GuessRecordTag([]byte(`<r><a/><b/><b/><a/><b><x>`))
	if err != nil || got != "b" {
		t.Fatalf("got %q, %v; want b", got, err)
	}

	if _, err := GuessRecordTag([]byte(`<only/>`)); err == nil {
		t.Fatalf("expected error for a document without children")
	}
}

// TestSampleShape merges attributes and children from all records.
func TestSampleShape(t *testing.T) {
	t.Parallel()

	shape, n, err := SampleShape([]byte(catalog), "book", 0)
	if err != nil {
		t.Fatalf("SampleShape: %v", err)
	}
	if n != 2 {
		t.Fatalf("records = %d, want 2", n)
	}

	want := strings.Join([]string{
		"book @id @lang",
		"  title #text",
		"  author",
		"    name #text",
		"    country #text",
		"  tags",
		"    tag* #text",
		"  chapter* @n",
		"    heading #text",
		"  price @currency",
		"",
	}, "\n")
	if got := Describe(shape); got != want {
		t.Fatalf("shape mismatch:\n got:\n%s\nwant:\n%s", got, want)
	}
}

// TestSampleShape_Limit stops after maxRecords and tolerates a cut sample.
func TestSampleShape_Limit(t *testing.T) {
	t.Parallel()

	cut := catalog[:strings.Index(catalog, "<price")]
	shape, n, err := SampleShape([]byte(cut), "book", 5)
	if err != nil {
		t.Fatalf("SampleShape: %v", err)
	}
	if n != 1 {
		t.Fatalf("records = %d, want 1", n)
	}
	if strings.Contains(Describe(shape), "price") {
		t.Fatalf("partial record should not be merged")
	}

	if _, _, err := SampleShape([]byte(catalog), "missing", 0); err == nil {
		t.Fatalf("expected error when no record matches")
	}
}

// TestStarterTemplate checks the generated keys and that the template runs.
func TestStarterTemplate(t *testing.T) {
	t.Parallel()

	shape, _, err := SampleShape([]byte(catalog), "book", 0)
	if err != nil {
		t.Fatalf("SampleShape: %v", err)
	}
	tpl := StarterTemplate(shape)

	var buf bytes.Buffer
	if err := template.WriteJSON(&buf, tpl); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	reloaded, err := template.Parse(buf.Bytes(), template.FormatJSON)
	if err != nil {
		t.Fatalf("generated template does not load: %v\n%s", err, buf.String())
	}

	var keys []string
	for _, e := range reloaded.Root.Entries {
		keys = append(keys, e.Key+":"+e.Kind.String())
	}
	wantKeys := []string{
		".:fields",
		"./title:fields",
		"./author/name:fields",
		"./author/country:fields",
		"./tags/tag:fields",
		"./chapter:nested",
		"./price:fields",
	}
	if strings.Join(keys, ",") != strings.Join(wantKeys, ",") {
		t.Fatalf("keys = %v, want %v", keys, wantKeys)
	}

	ex, err := extract.New(reloaded, extract.Options{Delimiter: "|"})
	if err != nil {
		t.Fatalf("extract.New: %v", err)
	}
	got, err := ex.Extract([]byte(`<book id="b9"><title>T</title><price currency="USD"/></book>`))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(got, ".|b9|") || !strings.Contains(got, "./title|T") || !strings.Contains(got, "./price|USD") {
		t.Fatalf("unexpected extraction output:\n%s", got)
	}
}

// TestProbe_File runs the whole probe over a file with auto-detection.
func TestProbe_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "catalog.xml")
	if err := os.WriteFile(path, []byte(catalog), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := Probe(context.Background(), Options{Input: path, MaxRecords: 1})
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if res.RootTag != "book" || res.Records != 1 || res.Template.RootTag != "book" {
		t.Fatalf("unexpected result: root=%q records=%d", res.RootTag, res.Records)
	}
}

// TestProbe_Empty rejects blank input.
func TestProbe_Empty(t *testing.T) {
	t.Parallel()

	_, err := Probe(context.Background(), Options{Input: "-", Stdin: strings.NewReader("  \n")})
	if err == nil {
		t.Fatalf("expected error for empty input")
	}
}
