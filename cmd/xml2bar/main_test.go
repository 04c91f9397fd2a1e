package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"xmlbar/internal/config"
	"xmlbar/internal/pipeline"
)

const (
	orderXML      = `<orders><order><id>7</id><items><item><sku>A1</sku><qty>2</qty></item></items></order></orders>`
	orderTemplate = `{"order": {"./id": ["./text()"], "./items/item": {"./sku": ["./text()"], "./qty": ["./text()"]}}}`
)

// fakeRunner records calls and returns canned results.
type fakeRunner struct {
	sum   pipeline.Summary
	err   error
	calls atomic.Int64
	last  config.Config
}

func (r *fakeRunner) Run(_ context.Context, cfg config.Config) (pipeline.Summary, error) {
	r.calls.Add(1)
	r.last = cfg
	return r.sum, r.err
}

func (r *fakeRunner) Debug(_ context.Context, cfg config.Config, _ io.Writer) (int, error) {
	r.calls.Add(1)
	r.last = cfg
	return 0, r.err
}

func noMetrics(context.Context, config.MetricsConfig, *zap.Logger) (func(), error) {
	return func() {}, nil
}

func noEnv(string) string { return "" }

func realDeps() appDeps {
	d := defaultDeps(http.DefaultClient)
	d.getenv = noEnv
	d.initMetrics = noMetrics
	return d
}

func fakeDeps(fr *fakeRunner) appDeps {
	return appDeps{
		newRunner:   func(*zap.Logger, io.Reader, io.Writer) runner { return fr },
		initMetrics: noMetrics,
		getenv:      noEnv,
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

// TestRun_UsageErrors verifies exit code 2 and that nothing runs.
func TestRun_UsageErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := writeFile(t, dir, "in.xml", orderXML)
	tpl := writeFile(t, dir, "t.json", orderTemplate)

	tests := []struct {
		name      string
		args      []string
		wantInErr string
	}{
		{"no_args", nil, "Missing Arguments"},
		{"too_few", []string{in, tpl}, "Missing Arguments"},
		{"too_many", []string{in, tpl, "o", "|", "w", "x"}, "Missing Arguments"},
		{"unknown_flag", []string{"--nope", in, tpl, "o"}, "unknown flag"},
		{"empty_delimiter", []string{"-d", "", in, tpl, filepath.Join(dir, "o")}, "error: delimiter"},
		{"bad_on_error", []string{"--on-error", "retry", in, tpl, filepath.Join(dir, "o")}, "error: on-error"},
		{"missing_input", []string{filepath.Join(dir, "nope.xml"), tpl, "o"}, "ERROR: The input file '" + filepath.Join(dir, "nope.xml") + "' does not exist!"},
		{"missing_template", []string{in, filepath.Join(dir, "nope.json"), "o"}, "ERROR: The template file"},
		{"debug_without_root", []string{"--selector", "./id", in}, "error: root"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			fr := &fakeRunner{}
			var stdout, stderr bytes.Buffer
			code := run(context.Background(), tc.args, nil, &stdout, &stderr, fakeDeps(fr))

			if code != 2 {
				t.Fatalf("exit code=%d, want 2; stderr=%q", code, stderr.String())
			}
			if !strings.Contains(stderr.String(), tc.wantInErr) {
				t.Fatalf("stderr=%q, want contains %q", stderr.String(), tc.wantInErr)
			}
			if stdout.Len() != 0 {
				t.Fatalf("stdout=%q, want empty", stdout.String())
			}
			if fr.calls.Load() != 0 {
				t.Fatalf("runner must not be called")
			}
		})
	}
}

// TestRun_PositionalArgs maps DELIMITER and WRAPPER onto the configuration.
func TestRun_PositionalArgs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := writeFile(t, dir, "in.xml", orderXML)
	tpl := writeFile(t, dir, "t.json", orderTemplate)
	out := filepath.Join(dir, "out.txt")

	fr := &fakeRunner{}
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--parallel=false", in, tpl, out, ";", "<batch>"}, nil, &stdout, &stderr, fakeDeps(fr))
	if code != 0 {
		t.Fatalf("exit code=%d; stderr=%q", code, stderr.String())
	}
	if fr.last.Delimiter != ";" || fr.last.Wrapper != "<batch>" || fr.last.Parallel {
		t.Fatalf("unexpected config: %+v", fr.last)
	}
	if fr.last.Metrics.Backend != "none" {
		t.Fatalf("metrics backend=%q, want none", fr.last.Metrics.Backend)
	}
}

// TestRun_EndToEnd runs the real pipeline over a small document.
func TestRun_EndToEnd(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := writeFile(t, dir, "in.xml", orderXML)
	tpl := writeFile(t, dir, "t.json", orderTemplate)
	out := filepath.Join(dir, "nested", "out.txt")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--parallel=false", "-w", "batch", in, tpl, out}, nil, &stdout, &stderr, realDeps())
	if code != 0 {
		t.Fatalf("exit code=%d; stderr=%q", code, stderr.String())
	}

	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	want := "<batch>\n<order>\n./id|7\n./sku|A1|./qty|2\n</order>\n</batch>\n"
	if string(b) != want {
		t.Fatalf("output=%q, want %q", b, want)
	}

	if !strings.Contains(stderr.String(), "WARNING: The output directory") {
		t.Fatalf("stderr=%q, want directory warning", stderr.String())
	}
	for _, line := range []string{"Total records extracted: 1\n", "Empty records: 0\n", "Skipped records: 0\n", "seconds ---\n"} {
		if !strings.Contains(stdout.String(), line) {
			t.Fatalf("stdout=%q, want contains %q", stdout.String(), line)
		}
	}
}

// TestRun_StdoutOutput writes units to stdout and the summary to stderr.
func TestRun_StdoutOutput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tpl := writeFile(t, dir, "t.json", orderTemplate)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--format", "plain", "-", tpl, "-"}, strings.NewReader(orderXML), &stdout, &stderr, realDeps())
	if code != 0 {
		t.Fatalf("exit code=%d; stderr=%q", code, stderr.String())
	}
	if got := stdout.String(); got != "./id|7\n./sku|A1|./qty|2\n" {
		t.Fatalf("stdout=%q", got)
	}
	if !strings.Contains(stderr.String(), "Total records extracted: 1") {
		t.Fatalf("stderr=%q, want summary", stderr.String())
	}
}

// TestRun_TemplateErrors exits 2 for malformed templates and selectors.
func TestRun_TemplateErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := writeFile(t, dir, "in.xml", orderXML)

	for name, content := range map[string]string{
		"not_json":     `{"order": `,
		"two_roots":    `{"a": {}, "b": {}}`,
		"bad_selector": `{"order": {"./id[": ["."]}}`,
	} {
		tpl := writeFile(t, dir, name+".json", content)
		var stdout, stderr bytes.Buffer
		code := run(context.Background(), []string{in, tpl, filepath.Join(dir, name+".out")}, nil, &stdout, &stderr, realDeps())
		if code != 2 {
			t.Fatalf("%s: exit code=%d, want 2; stderr=%q", name, code, stderr.String())
		}
		if !strings.Contains(stderr.String(), "ERROR:") {
			t.Fatalf("%s: stderr=%q", name, stderr.String())
		}
	}
}

// TestRun_RuntimeError exits 1 and still reports progress.
func TestRun_RuntimeError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := writeFile(t, dir, "in.xml", orderXML)
	tpl := writeFile(t, dir, "t.json", orderTemplate)

	fr := &fakeRunner{
		sum: pipeline.Summary{Records: 3, Extracted: 1, Skipped: 1, Errors: map[string]int{"worker": 1, "child_element": 2}},
		err: errors.New("disk full"),
	}
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{in, tpl, filepath.Join(dir, "o.txt")}, nil, &stdout, &stderr, fakeDeps(fr))
	if code != 1 {
		t.Fatalf("exit code=%d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "ERROR: disk full") {
		t.Fatalf("stderr=%q", stderr.String())
	}
	if !strings.Contains(stdout.String(), "Skipped records: 1 (child_element=2, worker=1)") {
		t.Fatalf("stdout=%q", stdout.String())
	}
}

// TestRun_MetricsInitFailure stops before running.
func TestRun_MetricsInitFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := writeFile(t, dir, "in.xml", orderXML)
	tpl := writeFile(t, dir, "t.json", orderTemplate)

	fr := &fakeRunner{}
	deps := fakeDeps(fr)
	var cleanups atomic.Int64
	deps.initMetrics = func(context.Context, config.MetricsConfig, *zap.Logger) (func(), error) {
		return func() { cleanups.Add(1) }, errors.New("no gateway")
	}

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{in, tpl, filepath.Join(dir, "o.txt")}, nil, &stdout, &stderr, deps)
	if code != 1 || fr.calls.Load() != 0 || cleanups.Load() != 0 {
		t.Fatalf("code=%d runner calls=%d cleanups=%d", code, fr.calls.Load(), cleanups.Load())
	}
}

// TestRun_Debug prints selector matches without a template.
func TestRun_Debug(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := writeFile(t, dir, "in.xml", orderXML)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--selector", "./items/item/sku", "--text", "--root", "order", in}, nil, &stdout, &stderr, realDeps())
	if code != 0 {
		t.Fatalf("exit code=%d; stderr=%q", code, stderr.String())
	}
	if got := stdout.String(); got != "=== record 1 ===\nA1\n\n" {
		t.Fatalf("stdout=%q", got)
	}
}

// TestRun_Help exits 0.
func TestRun_Help(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"--help"}, nil, &stdout, &stderr, fakeDeps(&fakeRunner{})); code != 0 {
		t.Fatalf("exit code=%d, want 0", code)
	}
	if !strings.Contains(stderr.String(), "usage: xml2bar") {
		t.Fatalf("stderr=%q", stderr.String())
	}
}
