// Package extract applies a template to one record fragment.
package extract

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"xmlbar/internal/template"
	"xmlbar/internal/xmlstream"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

// WholePolicy decides when whole-fragment mode returns the record itself.
type WholePolicy string

const (
	// WholeAny returns the fragment as soon as any line is produced.
	WholeAny WholePolicy = "any"
	// WholeAll returns the fragment only if every top-level entry produced output.
	WholeAll WholePolicy = "all"
	// WholeAlways returns every fragment without evaluating the template.
	WholeAlways WholePolicy = "always"
)

// ParseWholePolicy accepts "any", "all" or "always" (case-insensitive).
func ParseWholePolicy(s string) (WholePolicy, error) {
	switch p := WholePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case WholeAny, WholeAll, WholeAlways:
		return p, nil
	case "":
		return WholeAny, nil
	default:
		return "", fmt.Errorf("unknown whole-fragment policy %q (want any|all|always)", s)
	}
}

// Options is the per-run extraction mode.
type Options struct {
	Delimiter    string
	Raw          bool // leaf values are serialized XML instead of text
	LinePerField bool // one line per field list instead of per node visit
	Whole        bool
	WholePolicy  WholePolicy
}

// Extractor evaluates a template against record fragments.
//
// Compiled expressions keep evaluation state, so an Extractor must not be
// used from more than one goroutine at a time; create one per worker.
type Extractor struct {
	root  *template.Node
	opts  Options
	exprs map[string]*xpath.Expr
}

// New compiles every expression in tpl. A bad expression is a *SelectorError.
func New(tpl *template.Template, opts Options) (*Extractor, error) {
	if tpl == nil || tpl.Root == nil {
		return nil, errors.New("extract: nil template")
	}
	if opts.Delimiter == "" {
		opts.Delimiter = "|"
	}
	if opts.WholePolicy == "" {
		opts.WholePolicy = WholeAny
	}

	e := &Extractor{root: tpl.Root, opts: opts, exprs: make(map[string]*xpath.Expr)}
	for _, s := range tpl.Root.Expressions() {
		x, err := xpath.Compile(s)
		if err != nil {
			return nil, &SelectorError{Expr: s, Err: err}
		}
		e.exprs[s] = x
	}
	return e, nil
}

// Extract produces the result text for one record.
//
// Semantics:
//   - Entries are visited in template order.
//   - A field list key selects nodes; each value expression is evaluated
//     against every selected node and yields one slot. Missing values are
//     empty slots; a segment whose slots are all empty is dropped.
//   - A nested key selects nodes and the sub-template runs on each of them in
//     document order.
//   - In whole-fragment mode the namespace-stripped fragment is returned
//     instead, subject to the configured policy, or "" when the policy is not
//     met.
//
// Every non-empty result line ends in "\n".
func (e *Extractor) Extract(fragment []byte) (string, error) {
	if e.opts.Whole && e.opts.WholePolicy == WholeAlways {
		return string(xmlstream.StripNamespaceDecls(fragment)), nil
	}

	rec, err := parseRecord(fragment)
	if err != nil {
		return "", err
	}

	out := lines{delim: e.opts.Delimiter, perField: e.opts.LinePerField}

	if !e.opts.Whole {
		if err := e.visit(rec, e.root, &out); err != nil {
			return "", err
		}
		return out.String(), nil
	}

	// Whole-fragment mode: only the presence of output matters.
	matched := 0
	for i := range e.root.Entries {
		before := out.produced
		if err := e.visitEntry(rec, &e.root.Entries[i], &out); err != nil {
			return "", err
		}
		if out.produced > before {
			matched++
			if e.opts.WholePolicy == WholeAny {
				break
			}
		}
	}
	switch {
	case e.opts.WholePolicy == WholeAny && matched > 0,
		e.opts.WholePolicy == WholeAll && matched == e.root.Len() && matched > 0:
		return string(xmlstream.StripNamespaceDecls(fragment)), nil
	default:
		return "", nil
	}
}

func (e *Extractor) visit(ctx *xmlquery.Node, node *template.Node, out *lines) error {
	for i := range node.Entries {
		if err := e.visitEntry(ctx, &node.Entries[i], out); err != nil {
			return err
		}
	}
	out.flush()
	return nil
}

func (e *Extractor) visitEntry(ctx *xmlquery.Node, ent *template.Entry, out *lines) error {
	switch ent.Kind {
	case template.KindFields:
		for _, m := range e.selectNodes(ctx, ent.Key) {
			seg, ok, err := e.segment(m, ent)
			if err != nil {
				return err
			}
			if ok {
				out.add(seg)
			}
		}
	case template.KindNested:
		out.flush()
		for _, m := range e.selectNodes(ctx, ent.Key) {
			if err := e.visit(m, ent.Nested, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// segment renders "key DELIM v1 DELIM ... vK" for one selected node. ok is
// false when every value is empty.
func (e *Extractor) segment(ctx *xmlquery.Node, ent *template.Entry) (string, bool, error) {
	var b strings.Builder
	b.WriteString(ent.Key)
	nonEmpty := false
	for _, f := range ent.Fields {
		v, err := e.value(ctx, f)
		if err != nil {
			return "", false, err
		}
		if v != "" {
			nonEmpty = true
		}
		b.WriteString(e.opts.Delimiter)
		b.WriteString(v)
	}
	return b.String(), nonEmpty, nil
}

func (e *Extractor) selectNodes(ctx *xmlquery.Node, expr string) []*xmlquery.Node {
	x, ok := e.exprs[expr]
	if !ok {
		return nil
	}
	var out []*xmlquery.Node
	iter := x.Select(xmlquery.CreateXPathNavigator(ctx))
	for iter.MoveNext() {
		if nav, ok := iter.Current().(*xmlquery.NodeNavigator); ok {
			out = append(out, nav.Current())
		}
	}
	return out
}

// value evaluates one value expression against ctx and returns its scalar
// form. Node-set results use the first node.
func (e *Extractor) value(ctx *xmlquery.Node, expr string) (string, error) {
	x, ok := e.exprs[expr]
	if !ok {
		return "", nil
	}
	switch v := x.Evaluate(xmlquery.CreateXPathNavigator(ctx)).(type) {
	case *xpath.NodeIterator:
		if !v.MoveNext() {
			return "", nil
		}
		return e.nodeValue(v.Current(), expr)
	case string:
		return strings.TrimSpace(v), nil
	case float64:
		if math.IsNaN(v) {
			return "", nil
		}
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return fmt.Sprint(v), nil
	}
}

func (e *Extractor) nodeValue(nav xpath.NodeNavigator, expr string) (string, error) {
	qn, ok := nav.(*xmlquery.NodeNavigator)
	if !ok || nav.NodeType() != xpath.ElementNode {
		return strings.TrimSpace(nav.Value()), nil
	}

	n := qn.Current()
	if e.opts.Raw {
		return n.OutputXML(true), nil
	}
	if hasChildElement(n) {
		return "", &ChildElementError{Tag: n.Data, Expr: expr}
	}
	return strings.TrimSpace(n.InnerText()), nil
}

// lines accumulates output. Segments on one line are joined with the
// delimiter; a flush ends the current line.
type lines struct {
	delim    string
	perField bool
	buf      strings.Builder
	cur      []string
	produced int
}

func (l *lines) add(seg string) {
	l.cur = append(l.cur, seg)
	l.produced++
	if l.perField {
		l.flush()
	}
}

func (l *lines) flush() {
	if len(l.cur) == 0 {
		return
	}
	for i, s := range l.cur {
		if i > 0 {
			l.buf.WriteString(l.delim)
		}
		l.buf.WriteString(s)
	}
	l.buf.WriteByte('\n')
	l.cur = l.cur[:0]
}

func (l *lines) String() string { return l.buf.String() }
