// Command xml2bar streams an XML document, applies an extraction template to
// every record and writes delimited (or re-wrapped XML) output.
//
// Usage:
//
//	xml2bar [flags] INPUT TEMPLATE OUTPUT [DELIMITER [WRAPPER]]
//
// INPUT may be a file, a directory of files, "-" for stdin or an http(s) URL;
// ".gz" inputs are decompressed. OUTPUT may be "-" for stdout; a ".gz" output
// is compressed.
//
// Debug (print what a selector matches in the first records):
//
//	xml2bar --selector './items/item' --text --limit 3 INPUT TEMPLATE
//	xml2bar --selector './items/item' --root order INPUT
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"xmlbar/internal/config"
	"xmlbar/internal/extract"
	"xmlbar/internal/output"
	"xmlbar/internal/pipeline"
	"xmlbar/internal/template"
	"xmlbar/internal/xmlstream"

	// Every sink backend and the SQL Server driver.
	_ "xmlbar/internal/storage/all"
)

// runner is the slice of *pipeline.Runner the command drives.
type runner interface {
	Run(ctx context.Context, cfg config.Config) (pipeline.Summary, error)
	Debug(ctx context.Context, cfg config.Config, w io.Writer) (int, error)
}

// appDeps are the command's side-effecting collaborators.
type appDeps struct {
	newRunner   func(logger *zap.Logger, stdin io.Reader, stdout io.Writer) runner
	initMetrics func(ctx context.Context, mc config.MetricsConfig, logger *zap.Logger) (func(), error)
	getenv      func(string) string
}

func defaultDeps(client *http.Client) appDeps {
	return appDeps{
		newRunner: func(logger *zap.Logger, stdin io.Reader, stdout io.Writer) runner {
			return &pipeline.Runner{Logger: logger, Stdin: stdin, Stdout: stdout, HTTPClient: client}
		},
		initMetrics: initMetrics,
		getenv:      os.Getenv,
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr, defaultDeps(http.DefaultClient))
	stop()
	os.Exit(code)
}

// run returns a Unix-style exit code:
//   - 0 for success
//   - 2 for usage, configuration, missing files and template errors
//   - 1 for runtime errors
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer, deps appDeps) int {
	cfg := config.Default()
	var (
		onError string
		envFile string
		verbose bool
	)

	fs := pflag.NewFlagSet("xml2bar", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: xml2bar [flags] INPUT TEMPLATE OUTPUT [DELIMITER [WRAPPER]]")
		fs.PrintDefaults()
	}

	fs.StringVarP(&cfg.Delimiter, "delimiter", "d", cfg.Delimiter, "field delimiter")
	fs.StringVarP(&cfg.Wrapper, "wrapper", "w", cfg.Wrapper, "tag wrapping the whole output")
	fs.BoolVar(&cfg.Parallel, "parallel", cfg.Parallel, "process records on all cores (completion order)")
	fs.BoolVar(&cfg.Ordered, "ordered", cfg.Ordered, "restore document order in parallel mode")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "worker count (0 = physical cores)")
	fs.IntVar(&cfg.ChunkSize, "chunk-size", cfg.ChunkSize, "records handed to a worker at once")
	fs.IntVar(&cfg.QueueDepth, "queue-depth", cfg.QueueDepth, "records buffered ahead of the workers (0 = by host memory)")
	fs.BoolVar(&cfg.Whole, "whole", cfg.Whole, "write the whole record instead of extracted fields")
	fs.StringVar(&cfg.WholePolicy, "whole-policy", cfg.WholePolicy, "when --whole writes a record: any|all|always")
	fs.BoolVar(&cfg.Raw, "raw", cfg.Raw, "write matched nodes as XML instead of text")
	fs.StringVar(&cfg.Format, "format", cfg.Format, "output framing: envelope|plain")
	fs.BoolVar(&cfg.LinePerField, "line-per-field", cfg.LinePerField, "one output line per field list")
	fs.StringVar(&onError, "on-error", string(cfg.OnError), "failing records: skip|abort")

	fs.StringVar(&cfg.Sink.Kind, "sink", cfg.Sink.Kind, "output sink: file|sqlite|postgres|mssql")
	fs.StringVar(&cfg.Sink.DSN, "dsn", "", "database DSN (env XMLBAR_DSN)")
	fs.StringVar(&cfg.Sink.Table, "table", cfg.Sink.Table, "database table for units")
	fs.IntVar(&cfg.Sink.BatchSize, "batch-size", cfg.Sink.BatchSize, "rows per database insert batch")

	fs.StringVar(&cfg.Metrics.Backend, "metrics-backend", "", "metrics backend: none|datadog|pushgateway (env METRICS_BACKEND)")
	fs.StringVar(&cfg.Metrics.PushgatewayURL, "pushgateway-url", "", "Pushgateway base URL (env PUSHGATEWAY_URL)")
	fs.StringVar(&cfg.Metrics.Job, "job", cfg.Metrics.Job, "job name for metrics")

	fs.StringVar(&cfg.Debug.Selector, "selector", "", "debug: print matches of this XPath in each record")
	fs.BoolVar(&cfg.Debug.Text, "text", false, "debug: print text instead of XML")
	fs.IntVar(&cfg.Debug.Limit, "limit", cfg.Debug.Limit, "debug: records to inspect (0 = all)")
	fs.StringVar(&cfg.Debug.Root, "root", "", "debug: record tag when no template is given")

	fs.StringVar(&envFile, "env-file", ".env", "KEY=VALUE file loaded into the environment if present")
	fs.BoolVarP(&verbose, "verbose", "v", false, "verbose logs")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	cfg.OnError = config.OnError(onError)

	errOut := newErrPrinter(stderr)

	pos := fs.Args()
	if cfg.Debug.Enabled() {
		if len(pos) < 1 || len(pos) > 2 {
			errOut("ERROR: Missing Arguments! usage: xml2bar --selector XPATH INPUT [TEMPLATE]")
			return 2
		}
		cfg.Input = pos[0]
		if len(pos) == 2 {
			cfg.Template = pos[1]
		}
	} else {
		if len(pos) < 3 || len(pos) > 5 {
			errOut("ERROR: Missing Arguments! usage: xml2bar [flags] INPUT TEMPLATE OUTPUT [DELIMITER [WRAPPER]]")
			return 2
		}
		cfg.Input, cfg.Template, cfg.Output = pos[0], pos[1], pos[2]
		if len(pos) >= 4 {
			cfg.Delimiter = pos[3]
		}
		if len(pos) == 5 {
			cfg.Wrapper = pos[4]
		}
		if cfg.Sink.Kind != config.SinkFile && cfg.Output == "-" {
			cfg.Output = ""
		}
	}

	if envFile != "" {
		if err := config.LoadDotEnv(envFile); err != nil {
			errOut("WARNING: env file %s: %v", envFile, err)
		}
	}
	config.ApplyEnv(&cfg, deps.getenv)

	logger := newLogger(stderr, verbose)
	defer func() { _ = logger.Sync() }()

	issues := config.Validate(cfg)
	for _, iss := range issues {
		fmt.Fprintf(stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		return 2
	}

	if !exists(cfg.Input) {
		errOut("ERROR: The input file '%s' does not exist!", cfg.Input)
		return 2
	}
	if cfg.Template != "" && !exists(cfg.Template) {
		errOut("ERROR: The template file '%s' does not exist!", cfg.Template)
		return 2
	}

	r := deps.newRunner(logger, stdin, stdout)

	if cfg.Debug.Enabled() {
		if _, err := r.Debug(ctx, cfg, stdout); err != nil {
			errOut("ERROR: %v", err)
			return exitCode(err)
		}
		return 0
	}

	if cfg.Sink.Kind == config.SinkFile {
		created, err := output.EnsureDir(cfg.Output)
		if err != nil {
			errOut("ERROR: The output file path '%s' could not be created: %v", cfg.Output, err)
			return 2
		}
		if created {
			errOut("WARNING: The output directory '%s' did not exist! Created it.", dirOf(cfg.Output))
		}
	}

	cleanup, err := deps.initMetrics(ctx, cfg.Metrics, logger)
	if err != nil {
		errOut("ERROR: metrics: %v", err)
		return 1
	}
	defer cleanup()

	sum, err := r.Run(ctx, cfg)

	// Keep stdout clean when it carries the output itself.
	report := stdout
	if cfg.Output == "-" {
		report = stderr
	}
	if err != nil {
		var te *template.Error
		if errors.As(err, &te) {
			errOut("ERROR: Invalid template file! %v", err)
			return 2
		}
		if sum.Records > 0 {
			printSummary(report, sum)
		}
		errOut("ERROR: %v", err)
		return exitCode(err)
	}
	printSummary(report, sum)
	return 0
}

func printSummary(w io.Writer, sum pipeline.Summary) {
	fmt.Fprintf(w, "Total records extracted: %d\n", sum.Extracted)
	fmt.Fprintf(w, "Empty records: %d\n", sum.Empty)
	fmt.Fprintf(w, "Skipped records: %d%s\n", sum.Skipped, formatKinds(sum.Errors))
	fmt.Fprintf(w, "--- %.3f seconds ---\n", sum.Elapsed.Seconds())
}

// formatKinds renders per-kind error counts as " (a=1, b=2)", sorted by kind.
func formatKinds(m map[string]int) string {
	if len(m) == 0 {
		return ""
	}
	kinds := make([]string, 0, len(m))
	for k := range m {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = fmt.Sprintf("%s=%d", k, m[k])
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

// exitCode maps pre-flight style errors to 2 and everything else to 1.
func exitCode(err error) int {
	var te *template.Error
	var se *extract.SelectorError
	if errors.As(err, &te) || errors.As(err, &se) {
		return 2
	}
	return 1
}

func exists(path string) bool {
	if path == "-" || xmlstream.IsRemote(path) {
		return true
	}
	_, err := os.Stat(path)
	return err == nil
}

func dirOf(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[:i]
	}
	return "."
}

// newErrPrinter prints one diagnostic line, red when w is a color terminal.
func newErrPrinter(w io.Writer) func(format string, a ...any) {
	c := color.New(color.FgRed)
	if _, ok := w.(*os.File); !ok {
		c.DisableColor()
	}
	return func(format string, a ...any) {
		c.Fprintf(w, format, a...)
		fmt.Fprintln(w)
	}
}

// newLogger logs to w: debug and up with -v, warnings and up otherwise.
func newLogger(w io.Writer, verbose bool) *zap.Logger {
	level := zapcore.WarnLevel
	encCfg := zap.NewProductionEncoderConfig()
	if verbose {
		level = zapcore.DebugLevel
		encCfg = zap.NewDevelopmentEncoderConfig()
	}
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(w), level)
	return zap.New(core)
}
