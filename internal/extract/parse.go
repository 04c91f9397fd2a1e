package extract

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"

	"github.com/antchfx/xmlquery"
)

// parseRecord parses one fragment into a tree with every namespace removed:
// prefixes are dropped from element and attribute names and xmlns
// declarations disappear, so "./id" matches <ns:id>.
//
// The fragment is first checked by a strict tokenizer; any failure there is
// a *FragmentParseError.
func parseRecord(fragment []byte) (*xmlquery.Node, error) {
	var buf bytes.Buffer
	buf.Grow(len(fragment))

	dec := xml.NewDecoder(bytes.NewReader(fragment))
	dec.CharsetReader = func(_ string, in io.Reader) (io.Reader, error) { return in, nil }
	enc := xml.NewEncoder(&buf)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &FragmentParseError{Err: err}
		}

		switch t := tok.(type) {
		case xml.StartElement:
			attrs := make([]xml.Attr, 0, len(t.Attr))
			for _, a := range t.Attr {
				if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
					continue
				}
				a.Name.Space = ""
				attrs = append(attrs, a)
			}
			t.Name.Space = ""
			t.Attr = attrs
			tok = t
		case xml.EndElement:
			t.Name.Space = ""
			tok = t
		case xml.ProcInst:
			if t.Target == "xml" {
				continue
			}
		case xml.Directive:
			continue
		}
		if err := enc.EncodeToken(tok); err != nil {
			return nil, &FragmentParseError{Err: err}
		}
	}
	if err := enc.Flush(); err != nil {
		return nil, &FragmentParseError{Err: err}
	}

	doc, err := xmlquery.Parse(&buf)
	if err != nil {
		return nil, &FragmentParseError{Err: err}
	}
	for n := doc.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == xmlquery.ElementNode {
			return n, nil
		}
	}
	return nil, &FragmentParseError{Err: errors.New("fragment has no element")}
}

func hasChildElement(n *xmlquery.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			return true
		}
	}
	return false
}
