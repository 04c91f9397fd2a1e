package extract

import (
	"fmt"
	"io"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

// DebugPrintSelector prints either the outer XML or the text of every node
// the expression selects inside one record, each followed by a blank line.
// It is used by the command's --selector debug mode and returns the number of
// matches.
func DebugPrintSelector(w io.Writer, fragment []byte, expr string, textOnly bool) (int, error) {
	x, err := xpath.Compile(expr)
	if err != nil {
		return 0, &SelectorError{Expr: expr, Err: err}
	}
	rec, err := parseRecord(fragment)
	if err != nil {
		return 0, err
	}

	n := 0
	iter := x.Select(xmlquery.CreateXPathNavigator(rec))
	for iter.MoveNext() {
		nav, ok := iter.Current().(*xmlquery.NodeNavigator)
		if !ok {
			continue
		}
		n++
		if textOnly {
			fmt.Fprintln(w, strings.TrimSpace(nav.Value()))
		} else {
			fmt.Fprintln(w, nav.Current().OutputXML(true))
		}
		fmt.Fprintln(w)
	}
	return n, nil
}
