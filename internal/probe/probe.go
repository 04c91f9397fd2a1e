// Package probe samples the start of an XML document and proposes a starter
// extraction template.
//
// The probe reads a bounded prefix of the input, picks the record tag (or
// uses the given one), merges the structure of the first records into a
// Shape tree and turns that tree into a template:
//   - leaf elements become field lists of their text and attributes,
//   - containers that repeat inside one parent become nested nodes,
//   - containers that occur once are flattened into "./a/b" keys.
//
// Inference is best-effort; a sample cut in the middle of a record simply
// ends the sample.
package probe

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"xmlbar/internal/template"
	"xmlbar/internal/xmlstream"
)

// Options control sampling.
type Options struct {
	// Input is a file path, "-" or an http(s) URL; ".gz" is decompressed.
	Input string
	// MaxBytes bounds the sample (decompressed). Default 1 MiB.
	MaxBytes int
	// MaxRecords bounds how many records are merged. Default 100.
	MaxRecords int
	// RootTag skips record tag detection when set.
	RootTag string

	Stdin  io.Reader
	Client *http.Client
}

// Result is a probe outcome.
type Result struct {
	RootTag  string
	Records  int // records merged into Shape
	Shape    *Shape
	Template *template.Template
}

// Probe samples opt.Input and builds a starter template.
func Probe(ctx context.Context, opt Options) (Result, error) {
	if opt.MaxBytes <= 0 {
		opt.MaxBytes = 1 << 20
	}
	if opt.MaxRecords <= 0 {
		opt.MaxRecords = 100
	}

	sample, err := peek(ctx, opt)
	if err != nil {
		return Result{}, err
	}
	if len(bytes.TrimSpace(sample)) == 0 {
		return Result{}, errors.New("probe: input is empty")
	}

	root := strings.TrimSpace(opt.RootTag)
	if root == "" {
		if root, err = GuessRecordTag(sample); err != nil {
			return Result{}, err
		}
	}

	shape, n, err := SampleShape(sample, root, opt.MaxRecords)
	if err != nil {
		return Result{}, err
	}
	return Result{
		RootTag:  root,
		Records:  n,
		Shape:    shape,
		Template: StarterTemplate(shape),
	}, nil
}

func peek(ctx context.Context, opt Options) ([]byte, error) {
	rc, err := xmlstream.Open(ctx, xmlstream.Input{Path: opt.Input, Stdin: opt.Stdin, Client: opt.Client})
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(rc, int64(opt.MaxBytes))); err != nil {
		return nil, fmt.Errorf("probe: read sample: %w", err)
	}
	return buf.Bytes(), nil
}

// GuessRecordTag returns the most frequent child element name of the document
// element. Ties go to the name seen first.
func GuessRecordTag(sample []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(sample))
	dec.Strict = false
	dec.CharsetReader = func(_ string, in io.Reader) (io.Reader, error) { return in, nil }

	counts := map[string]int{}
	var order []string
	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			// A truncated sample ends the scan.
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 2 {
				if counts[t.Name.Local] == 0 {
					order = append(order, t.Name.Local)
				}
				counts[t.Name.Local]++
			}
		case xml.EndElement:
			depth--
		}
	}
	if len(order) == 0 {
		return "", errors.New("probe: no record candidates below the document element")
	}

	best := order[0]
	for _, name := range order[1:] {
		if counts[name] > counts[best] {
			best = name
		}
	}
	return best, nil
}

// Shape is the merged structure of one element name at one position.
type Shape struct {
	Name     string
	Attrs    []string // first-seen order
	Children []*Shape // first-seen order
	HasText  bool
	// MaxCount is the largest number of times the element occurred under a
	// single parent instance.
	MaxCount int
}

// Leaf reports whether s never had element children.
func (s *Shape) Leaf() bool { return len(s.Children) == 0 }

func (s *Shape) child(name string) *Shape {
	for _, c := range s.Children {
		if c.Name == name {
			return c
		}
	}
	c := &Shape{Name: name}
	s.Children = append(s.Children, c)
	return c
}

func (s *Shape) addAttrs(attrs []xml.Attr) {
	for _, a := range attrs {
		if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
			continue
		}
		name := a.Name.Local
		found := false
		for _, have := range s.Attrs {
			if have == name {
				found = true
				break
			}
		}
		if !found {
			s.Attrs = append(s.Attrs, name)
		}
	}
}

// SampleShape merges up to maxRecords records of rootTag from sample. It
// returns the merged shape and the number of records merged.
func SampleShape(sample []byte, rootTag string, maxRecords int) (*Shape, int, error) {
	rd, err := xmlstream.NewReader(bytes.NewReader(sample), rootTag, xmlstream.Options{})
	if err != nil {
		return nil, 0, err
	}

	root := &Shape{Name: localName(rootTag), MaxCount: 1}
	n := 0
	for maxRecords <= 0 || n < maxRecords {
		f, err := rd.Next()
		if err != nil {
			// EOF, or the sample was cut inside a record.
			break
		}
		mergeRecord(root, f.Bytes)
		f.Free()
		n++
	}
	if n == 0 {
		return nil, 0, fmt.Errorf("probe: no <%s> records in sample", rootTag)
	}
	return root, n, nil
}

type frame struct {
	shape  *Shape
	counts map[string]int
}

func mergeRecord(root *Shape, fragment []byte) {
	dec := xml.NewDecoder(bytes.NewReader(fragment))
	dec.Strict = false
	dec.CharsetReader = func(_ string, in io.Reader) (io.Reader, error) { return in, nil }

	var stack []frame
	for {
		tok, err := dec.Token()
		if err != nil {
			return
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if len(stack) == 0 {
				root.addAttrs(t.Attr)
				stack = append(stack, frame{shape: root, counts: map[string]int{}})
				continue
			}
			top := stack[len(stack)-1]
			c := top.shape.child(t.Name.Local)
			top.counts[t.Name.Local]++
			c.MaxCount = max(c.MaxCount, top.counts[t.Name.Local])
			c.addAttrs(t.Attr)
			stack = append(stack, frame{shape: c, counts: map[string]int{}})
		case xml.CharData:
			if len(stack) > 0 && len(bytes.TrimSpace(t)) > 0 {
				stack[len(stack)-1].shape.HasText = true
			}
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
}

// StarterTemplate turns a merged record shape into a template.
func StarterTemplate(root *Shape) *template.Template {
	node := &template.Node{}
	if len(root.Attrs) > 0 {
		node.Entries = append(node.Entries, fieldsEntry(".", root, false))
	}
	addChildren(node, root, ".")
	return &template.Template{RootTag: root.Name, Root: node}
}

func addChildren(node *template.Node, s *Shape, prefix string) {
	for _, c := range s.Children {
		key := prefix + "/" + c.Name
		switch {
		case c.Leaf():
			node.Entries = append(node.Entries, fieldsEntry(key, c, true))
		case c.MaxCount > 1:
			nested := &template.Node{}
			if len(c.Attrs) > 0 || c.HasText {
				nested.Entries = append(nested.Entries, fieldsEntry(".", c, false))
			}
			addChildren(nested, c, ".")
			node.Entries = append(node.Entries, template.Entry{Key: key, Kind: template.KindNested, Nested: nested})
		default:
			if len(c.Attrs) > 0 || c.HasText {
				node.Entries = append(node.Entries, fieldsEntry(key, c, false))
			}
			addChildren(node, c, key)
		}
	}
}

// fieldsEntry lists the element's text (always for leaves) and attributes.
func fieldsEntry(key string, s *Shape, leaf bool) template.Entry {
	var fields []string
	if s.HasText || (leaf && len(s.Attrs) == 0) {
		fields = append(fields, "./text()")
	}
	for _, a := range s.Attrs {
		fields = append(fields, "./@"+a)
	}
	return template.Entry{Key: key, Kind: template.KindFields, Fields: fields}
}

// Describe renders the shape as an indented outline, one element per line,
// with "*" marking elements that repeat within one parent.
func Describe(s *Shape) string {
	var b strings.Builder
	describe(&b, s, 0)
	return b.String()
}

func describe(b *strings.Builder, s *Shape, depth int) {
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString(s.Name)
	if s.MaxCount > 1 {
		b.WriteString("*")
	}
	if len(s.Attrs) > 0 {
		attrs := append([]string(nil), s.Attrs...)
		sort.Strings(attrs)
		b.WriteString(" @" + strings.Join(attrs, " @"))
	}
	if s.HasText {
		b.WriteString(" #text")
	}
	b.WriteString("\n")
	for _, c := range s.Children {
		describe(b, c, depth+1)
	}
}

func localName(tag string) string {
	if i := strings.LastIndexByte(tag, ':'); i >= 0 {
		return tag[i+1:]
	}
	return tag
}
