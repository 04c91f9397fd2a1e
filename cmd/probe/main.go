// Command probe samples the start of an XML document and prints a starter
// extraction template for xml2bar.
//
// It reads a bounded prefix of the input (default 1 MiB), picks the record
// tag (the most frequent element directly under the document root unless
// -root is given), merges the first records into one structural shape and
// emits either:
//
//   - Default mode: the starter template as JSON on stdout (or -out).
//   - Report mode (-report): an indented outline of the record shape, where
//     "*" marks repeated elements. No template is printed.
//
// The template is a starting point: review the selectors before running
// xml2bar on the full document.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"xmlbar/internal/probe"
	"xmlbar/internal/template"
)

func main() {
	var (
		// flagInput is a local path, "-" for stdin or an http(s) URL. ".gz"
		// inputs are decompressed before sampling.
		flagInput = flag.String("input", "", "Path, URL or - of the XML document")

		flagBytes   = flag.Int("bytes", 1<<20, "Number of (decompressed) bytes to sample from the start of the input")
		flagRecords = flag.Int("records", 100, "Maximum number of records merged into the shape")
		flagRoot    = flag.String("root", "", "Record tag; detected from the sample when empty")

		// flagOut writes the template to a file instead of stdout.
		flagOut = flag.String("out", "", "Write the template to this file instead of stdout")

		flagReport = flag.Bool("report", false, "Print the record shape outline (suppresses template output)")

		// flagAllowInsecure skips TLS verification for https inputs.
		flagAllowInsecure = flag.Bool("allow-insecure", false, "Allow insecure TLS")
	)
	flag.Parse()

	if strings.TrimSpace(*flagInput) == "" {
		fmt.Fprintln(os.Stderr, "missing -input")
		flag.Usage()
		os.Exit(2)
	}

	client := http.DefaultClient
	if *flagAllowInsecure {
		client = &http.Client{Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}}
	}

	// Probing reads a prefix only; a slow source should fail fast.
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	res, err := probe.Probe(ctx, probe.Options{
		Input:      *flagInput,
		MaxBytes:   *flagBytes,
		MaxRecords: *flagRecords,
		RootTag:    *flagRoot,
		Stdin:      os.Stdin,
		Client:     client,
	})
	if err != nil {
		log.Fatalf("probe: %v", err)
	}

	if *flagReport {
		fmt.Fprintf(os.Stdout, "record tag: %s (%d records sampled)\n", res.RootTag, res.Records)
		fmt.Fprint(os.Stdout, probe.Describe(res.Shape))
		return
	}

	if *flagOut == "" {
		if err := template.WriteJSON(os.Stdout, res.Template); err != nil {
			log.Fatalf("write template: %v", err)
		}
		return
	}

	f, err := os.Create(*flagOut)
	if err != nil {
		log.Fatalf("create %s: %v", *flagOut, err)
	}
	if err := template.WriteJSON(f, res.Template); err != nil {
		_ = f.Close()
		log.Fatalf("write template: %v", err)
	}
	if err := f.Close(); err != nil {
		log.Fatalf("close %s: %v", *flagOut, err)
	}
	fmt.Fprintf(os.Stderr, "wrote template for <%s> to %s\n", res.RootTag, *flagOut)
}
