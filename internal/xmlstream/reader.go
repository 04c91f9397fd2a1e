package xmlstream

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Options tunes a Reader.
type Options struct {
	// Strict makes a malformed record a fatal error. By default the bytes of
	// a broken record come through as a fragment of their own, left to the
	// extractor to reject, and reading resumes at the next record.
	Strict bool
}

// Reader yields one fragment per element whose local name equals the root
// tag, in document order.
//
// Semantics:
//   - Matching ignores any namespace prefix ("ns:order" matches "order").
//   - Only the outermost match forms a record; a same-named element nested
//     inside a record stays part of that record.
//   - Fragment bytes are exactly the input bytes from the opening '<' to the
//     closing '>' (converted to UTF-8 when the prolog declares another charset).
//   - A record with malformed markup spans from its opening '<' up to the next
//     record's start tag, trailing whitespace trimmed. Markup errors outside
//     records are fatal, except the unmatched outer end tags left over after
//     such a skip.
//   - Input ending inside a record is an error.
//
// Memory stays bounded by the largest record plus the decoder's read-ahead.
type Reader struct {
	dec      *xml.Decoder
	decBase  int64 // absolute offset where dec started reading
	src      *captureReader
	rootTag  string
	strict   bool
	resynced bool
	index    int
	err      error
}

// NewReader prepares a Reader over r. rootTag may carry a prefix; only its
// local part is matched.
func NewReader(r io.Reader, rootTag string, opts Options) (*Reader, error) {
	rootTag = localName(strings.TrimSpace(rootTag))
	if rootTag == "" {
		return nil, errors.New("xmlstream: root tag is empty")
	}
	utf8, err := utf8Reader(r)
	if err != nil {
		return nil, err
	}

	rd := &Reader{src: &captureReader{r: utf8}, rootTag: rootTag, strict: opts.Strict}
	rd.restart(0)
	return rd, nil
}

// restart points a fresh decoder at absolute offset at.
func (r *Reader) restart(at int64) {
	r.src.rewind(at)
	dec := xml.NewDecoder(r.src)
	dec.Strict = true
	// Input is already UTF-8 by the time the decoder sees it.
	dec.CharsetReader = func(_ string, in io.Reader) (io.Reader, error) { return in, nil }
	r.dec, r.decBase = dec, at
}

func (r *Reader) offset() int64 { return r.decBase + r.dec.InputOffset() }

// Next returns the next record. It returns io.EOF once the input is exhausted.
// The caller owns the returned Fragment and must Free or Drop it.
func (r *Reader) Next() (*Fragment, error) {
	if r.err != nil {
		return nil, r.err
	}

	depth := 0
	var start int64
	for {
		off := r.offset()
		tok, err := r.dec.Token()
		if err != nil {
			f, err := r.recover(err, depth, start)
			if f != nil || err != nil {
				return f, err
			}
			depth = 0
			continue
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if depth > 0 {
				depth++
			} else if t.Name.Local == r.rootTag {
				depth = 1
				start = off
			}
		case xml.EndElement:
			if depth == 0 {
				break
			}
			depth--
			if depth == 0 {
				end := r.offset()
				r.index++
				f := NewFragment(r.index, r.src.span(start, end))
				r.src.discard(end)
				return f, nil
			}
		}

		if depth == 0 {
			r.src.discard(r.offset())
		}
	}
}

// recover handles a tokenizer error. It returns a fragment for a broken
// record, an error that ends the reader, or neither when scanning resumed at
// the next record.
func (r *Reader) recover(err error, depth int, start int64) (*Fragment, error) {
	var se *xml.SyntaxError
	isSyntax := errors.As(err, &se)

	switch {
	case errors.Is(err, io.EOF) && depth == 0:
		return nil, r.fail(io.EOF)

	case depth > 0 && (errors.Is(err, io.EOF) || isSyntax && se.Msg == "unexpected EOF"):
		return nil, r.fail(fmt.Errorf("xmlstream: input ended inside <%s> record %d", r.rootTag, r.index+1))

	case depth > 0 && isSyntax && !r.strict:
		next, serr := r.nextRecordStart(r.offset())
		if serr != nil {
			return nil, r.fail(serr)
		}
		end := next
		if next < 0 {
			end = r.src.end()
		}
		r.index++
		f := NewFragment(r.index, bytes.TrimRight(r.src.span(start, end), " \t\r\n"))
		if next < 0 {
			r.err = io.EOF
		} else {
			r.resync(next)
		}
		return f, nil

	case depth == 0 && isSyntax && r.resynced:
		// The restarted decoder never saw the document's outer start tags.
		next, serr := r.nextRecordStart(r.offset())
		if serr != nil {
			return nil, r.fail(serr)
		}
		if next < 0 {
			return nil, r.fail(io.EOF)
		}
		r.resync(next)
		return nil, nil

	default:
		return nil, r.fail(fmt.Errorf("xmlstream: after record %d: %w", r.index, err))
	}
}

func (r *Reader) fail(err error) error {
	r.err = err
	return err
}

func (r *Reader) resync(at int64) {
	r.src.discard(at)
	r.restart(at)
	r.resynced = true
}

// nextRecordStart finds the absolute offset of the next start tag named
// rootTag at or after from, reading more input as needed. It returns -1 when
// the input ends first.
func (r *Reader) nextRecordStart(from int64) (int64, error) {
	for {
		at, partial := recordStart(r.src.from(from), r.rootTag)
		if at >= 0 {
			return from + int64(at), nil
		}
		if partial >= 0 {
			from += int64(partial)
		} else {
			from = r.src.end()
		}
		n, err := r.src.fill()
		if n == 0 && err != nil {
			if errors.Is(err, io.EOF) {
				return -1, nil
			}
			return -1, err
		}
	}
}

// recordStart returns the index of the first start tag in b whose local name
// is tag, or -1. partial is the index of a tag name cut off by the end of b,
// or -1.
func recordStart(b []byte, tag string) (at, partial int) {
	for i := 0; i < len(b); i++ {
		if b[i] != '<' {
			continue
		}
		j := i + 1
		for j < len(b) && !isNameEnd(b[j]) {
			j++
		}
		if j == len(b) {
			return -1, i
		}
		if localName(string(b[i+1:j])) == tag {
			return i, -1
		}
	}
	return -1, -1
}

func isNameEnd(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '>', '/':
		return true
	}
	return false
}

// Count is the number of records returned so far.
func (r *Reader) Count() int { return r.index }

// Stream sends every record to out until the input is exhausted or ctx is
// done. firstIndex is added to each record's position so several inputs can
// share one numbering; it returns the number of records sent.
func Stream(ctx context.Context, rd *Reader, firstIndex int, out chan<- *Fragment) (int, error) {
	sent := 0
	for {
		f, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return sent, nil
		}
		if err != nil {
			return sent, err
		}
		f.Index += firstIndex
		select {
		case out <- f:
			sent++
		case <-ctx.Done():
			f.Drop()
			return sent, ctx.Err()
		}
	}
}

func localName(tag string) string {
	tag = strings.TrimSuffix(strings.TrimPrefix(tag, "<"), ">")
	if i := strings.LastIndexByte(tag, ':'); i >= 0 {
		return tag[i+1:]
	}
	return tag
}
