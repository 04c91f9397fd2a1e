// Package output writes extraction results to a text sink or a database table.
package output

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// Format selects how extracted text units are framed.
type Format string

const (
	// FormatEnvelope wraps each unit in <roottag>...</roottag>.
	FormatEnvelope Format = "envelope"
	// FormatPlain writes the delimited lines only, without any XML framing.
	FormatPlain Format = "plain"
)

// ParseFormat accepts "" as FormatEnvelope.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatEnvelope:
		return FormatEnvelope, nil
	case FormatPlain:
		return FormatPlain, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want envelope|plain)", s)
	}
}

// Unit is one record's output as produced by the extractor.
type Unit struct {
	Index int
	Text  string
}

// UnitWriter receives units from the single consumer goroutine.
// Close returns how many non-empty units were written.
type UnitWriter interface {
	Open(ctx context.Context) error
	Write(ctx context.Context, u Unit) error
	Close(ctx context.Context) (int, error)
}

// Options configure a text Writer.
type Options struct {
	Format Format
	// Wrapper is the overall wrapper tag; angle brackets are optional.
	// Empty means no wrapper lines.
	Wrapper string
	// Envelope is the per-record tag, normally the template root tag.
	Envelope string
	// Whole means units are raw fragments and get no envelope.
	Whole bool
}

// Writer writes units as text. It is not safe for concurrent use.
type Writer struct {
	w     *bufio.Writer
	opts  Options
	count int
}

// NewWriter returns a Writer on w. The caller owns w and closes it after
// Close.
func NewWriter(w io.Writer, opts Options) *Writer {
	if opts.Format == "" {
		opts.Format = FormatEnvelope
	}
	return &Writer{w: bufio.NewWriterSize(w, 64*1024), opts: opts}
}

// Open writes the opening wrapper tag, if any.
func (w *Writer) Open(context.Context) error {
	if w.opts.Format == FormatPlain || w.opts.Wrapper == "" {
		return nil
	}
	_, err := w.w.WriteString("<" + TagName(w.opts.Wrapper) + ">\n")
	return err
}

// Write writes one unit. Empty units are skipped and not counted.
func (w *Writer) Write(_ context.Context, u Unit) error {
	if u.Text == "" {
		return nil
	}
	var err error
	switch {
	case w.opts.Whole:
		_, err = w.w.WriteString(ensureNewline(u.Text))
	case w.opts.Format == FormatPlain || w.opts.Envelope == "":
		_, err = w.w.WriteString(ensureNewline(u.Text))
	default:
		tag := TagName(w.opts.Envelope)
		_, err = fmt.Fprintf(w.w, "<%s>\n%s</%s>\n", tag, ensureNewline(u.Text), tag)
	}
	if err != nil {
		return err
	}
	w.count++
	return nil
}

// Close writes the closing wrapper tag and flushes.
func (w *Writer) Close(context.Context) (int, error) {
	if w.opts.Format != FormatPlain && w.opts.Wrapper != "" {
		if _, err := w.w.WriteString("</" + TagName(w.opts.Wrapper) + ">\n"); err != nil {
			return w.count, err
		}
	}
	return w.count, w.w.Flush()
}

// TagName accepts "tag", "<tag>" and "</tag>".
func TagName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "<")
	s = strings.TrimPrefix(s, "/")
	return strings.TrimSuffix(s, ">")
}

func ensureNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
