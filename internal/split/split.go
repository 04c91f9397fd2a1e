// Package split cuts a document into files of at most N records, each file
// wrapped in its own wrapper element.
package split

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"xmlbar/internal/output"
	"xmlbar/internal/xmlstream"
)

// Options describe one split.
type Options struct {
	RootTag string
	Wrapper string // angle brackets optional
	Count   int    // records per file
}

// FileFactory creates the n-th output file (1-based) and returns it with the
// name to report.
type FileFactory func(n int) (io.WriteCloser, string, error)

// Result lists what Split wrote.
type Result struct {
	Records int
	Files   []string
}

// Split streams r and writes every record, namespace declarations removed,
// into chunk files from create. Files are opened only when a record needs
// them, so there is never an empty trailing file. Input without any record is
// an error.
func Split(ctx context.Context, r io.Reader, opts Options, create FileFactory, logger *zap.Logger) (Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Count <= 0 {
		return Result{}, fmt.Errorf("split: count must be > 0, got %d", opts.Count)
	}
	wrapper := output.TagName(opts.Wrapper)
	if wrapper == "" {
		return Result{}, errors.New("split: wrapper tag is empty")
	}

	rd, err := xmlstream.NewReader(r, opts.RootTag, xmlstream.Options{})
	if err != nil {
		return Result{}, err
	}

	var (
		res     Result
		cur     io.WriteCloser
		inChunk int
	)
	closeCur := func() error {
		if cur == nil {
			return nil
		}
		_, werr := io.WriteString(cur, "</"+wrapper+">\n")
		cerr := cur.Close()
		cur = nil
		if werr != nil {
			return werr
		}
		return cerr
	}

	for {
		if err := ctx.Err(); err != nil {
			_ = closeCur()
			return res, err
		}
		f, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			_ = closeCur()
			return res, err
		}

		if cur == nil {
			w, name, err := create(len(res.Files) + 1)
			if err != nil {
				f.Drop()
				return res, fmt.Errorf("split: create chunk %d: %w", len(res.Files)+1, err)
			}
			cur = w
			res.Files = append(res.Files, name)
			logger.Info("created file", zap.String("file", name))
			if _, err := io.WriteString(cur, "<"+wrapper+">\n"); err != nil {
				f.Drop()
				_ = closeCur()
				return res, err
			}
		}

		_, err = cur.Write(xmlstream.StripNamespaceDecls(f.Bytes))
		if err == nil {
			_, err = io.WriteString(cur, "\n")
		}
		f.Free()
		if err != nil {
			_ = closeCur()
			return res, err
		}
		res.Records++
		inChunk++

		if inChunk == opts.Count {
			inChunk = 0
			if err := closeCur(); err != nil {
				return res, err
			}
		}
	}

	if err := closeCur(); err != nil {
		return res, err
	}
	if res.Records == 0 {
		return res, fmt.Errorf("split: no <%s> records in input", opts.RootTag)
	}
	return res, nil
}

// NumberedFiles names chunks after outputPath: "out/part.xml" yields
// out/part1.xml, out/part2.xml and so on. The stem ends at the first dot of
// the base name. A ".gz" outputPath produces gzip-compressed chunks named
// part1.xml.gz, part2.xml.gz.
func NumberedFiles(outputPath string) FileFactory {
	dir := filepath.Dir(outputPath)
	base := filepath.Base(outputPath)
	stem := base
	if i := strings.IndexByte(base, '.'); i > 0 {
		stem = base[:i]
	}
	ext := ".xml"
	if strings.HasSuffix(strings.ToLower(base), ".gz") {
		ext += ".gz"
	}

	return func(n int) (io.WriteCloser, string, error) {
		name := filepath.Join(dir, stem+strconv.Itoa(n)+ext)
		w, err := output.Create(name, nil)
		if err != nil {
			return nil, "", err
		}
		return w, name, nil
	}
}
