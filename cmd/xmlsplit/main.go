// Command xmlsplit cuts an XML document into numbered files of at most COUNT
// records, each wrapped in WRAPPER.
//
// Usage:
//
//	xmlsplit [flags] INPUT ROOT_TAG WRAPPER COUNT OUTPUT
//
// OUTPUT names the chunks: "out/part.xml" produces out/part1.xml,
// out/part2.xml and so on ("out/part.xml.gz" compresses them).
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"xmlbar/internal/output"
	"xmlbar/internal/split"
	"xmlbar/internal/xmlstream"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr, http.DefaultClient)
	stop()
	os.Exit(code)
}

// run returns 0 on success, 2 for usage and input errors and 1 otherwise.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer, client *http.Client) int {
	var verbose bool

	fs := pflag.NewFlagSet("xmlsplit", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: xmlsplit [flags] INPUT ROOT_TAG WRAPPER COUNT OUTPUT")
		fs.PrintDefaults()
	}
	fs.BoolVarP(&verbose, "verbose", "v", false, "verbose logs")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	errOut := newErrPrinter(stderr)

	pos := fs.Args()
	if len(pos) != 5 {
		errOut("ERROR: Missing Arguments! usage: xmlsplit [flags] INPUT ROOT_TAG WRAPPER COUNT OUTPUT")
		return 2
	}
	input, rootTag, wrapper, outPath := pos[0], pos[1], pos[2], pos[4]
	count, err := strconv.Atoi(pos[3])
	if err != nil || count <= 0 {
		errOut("ERROR: COUNT must be a positive integer, got %q", pos[3])
		return 2
	}

	if input != "-" && !xmlstream.IsRemote(input) {
		st, err := os.Stat(input)
		if err != nil || !st.Mode().IsRegular() {
			errOut("ERROR: Not a Valid Input File! File: %s", input)
			return 2
		}
		if st.Size() == 0 {
			errOut("ERROR: Empty input file: %s", input)
			return 2
		}
	}

	created, err := output.EnsureDir(outPath)
	if err != nil {
		errOut("ERROR: The output path '%s' could not be created: %v", outPath, err)
		return 2
	}
	if created {
		errOut("WARNING: The output directory for '%s' did not exist! Created it.", outPath)
	}

	logger := newLogger(stderr, verbose)
	defer func() { _ = logger.Sync() }()

	rc, err := xmlstream.Open(ctx, xmlstream.Input{Path: input, Stdin: stdin, Client: client})
	if err != nil {
		errOut("ERROR: %v", err)
		return 1
	}
	defer rc.Close()

	files := split.NumberedFiles(outPath)
	announce := func(n int) (io.WriteCloser, string, error) {
		w, name, err := files(n)
		if err == nil {
			fmt.Fprintf(stdout, "Created new file: %s\n", name)
		}
		return w, name, err
	}

	start := time.Now()
	res, err := split.Split(ctx, rc, split.Options{RootTag: rootTag, Wrapper: wrapper, Count: count}, announce, logger)
	if err != nil {
		errOut("ERROR: %v", err)
		return 1
	}
	fmt.Fprintf(stdout, "Total records: %d in %d files\n", res.Records, len(res.Files))
	fmt.Fprintf(stdout, "--- %.3f seconds ---\n", time.Since(start).Seconds())
	return 0
}

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

func newLogger(w io.Writer, verbose bool) *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return zap.New(zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(w), zapcore.DebugLevel))
}
