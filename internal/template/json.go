package template

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// decodeJSON reads a template from JSON, preserving key order.
//
// encoding/json maps lose key order, so the document is walked token by token.
func decodeJSON(data []byte) (*Template, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, &Error{Reason: "invalid JSON", Err: err}
	}
	if tok != json.Delim('{') {
		return nil, errorf("", "top level must be an object with exactly one key, got %s", describeJSON(tok))
	}

	var tpl *Template
	keys := 0
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return nil, &Error{Reason: "invalid JSON", Err: err}
		}
		key, _ := kt.(string)
		keys++
		if keys > 1 {
			return nil, errorf("", "top level must have exactly one key, found another key %q", key)
		}
		if key == "" {
			return nil, errorf("", "root tag key is empty")
		}

		vt, err := dec.Token()
		if err != nil {
			return nil, &Error{Path: key, Reason: "invalid JSON", Err: err}
		}
		if vt != json.Delim('{') {
			return nil, errorf(key, "root value must be a mapping of selectors, got %s", describeJSON(vt))
		}
		root, err := decodeJSONNode(dec, key)
		if err != nil {
			return nil, err
		}
		tpl = &Template{RootTag: key, Root: root}
	}
	if _, err := dec.Token(); err != nil {
		return nil, &Error{Reason: "invalid JSON", Err: err}
	}
	if keys == 0 {
		return nil, errorf("", "top level must have exactly one key, found none")
	}

	// Anything after the closing brace is an error.
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err == nil {
			return nil, errorf("", "unexpected data after template object")
		}
		return nil, &Error{Reason: "invalid JSON", Err: err}
	}
	return tpl, nil
}

// decodeJSONNode consumes the members of an object whose '{' was already read,
// including the closing '}'.
func decodeJSONNode(dec *json.Decoder, path string) (*Node, error) {
	n := &Node{}
	seen := make(map[string]bool)
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return nil, &Error{Path: path, Reason: "invalid JSON", Err: err}
		}
		key, _ := kt.(string)
		if key == "" {
			return nil, errorf(path, "selector key is empty")
		}
		if seen[key] {
			return nil, errorf(path, "duplicate selector key %q", key)
		}
		seen[key] = true
		child := joinPath(path, key)

		vt, err := dec.Token()
		if err != nil {
			return nil, &Error{Path: child, Reason: "invalid JSON", Err: err}
		}
		switch vt {
		case json.Delim('['):
			fields, err := decodeJSONFields(dec, child)
			if err != nil {
				return nil, err
			}
			n.Entries = append(n.Entries, Entry{Key: key, Kind: KindFields, Fields: fields})
		case json.Delim('{'):
			sub, err := decodeJSONNode(dec, child)
			if err != nil {
				return nil, err
			}
			n.Entries = append(n.Entries, Entry{Key: key, Kind: KindNested, Nested: sub})
		default:
			return nil, errorf(child, "value must be a list of expressions or a nested mapping, got %s", describeJSON(vt))
		}
	}
	if _, err := dec.Token(); err != nil {
		return nil, &Error{Path: path, Reason: "invalid JSON", Err: err}
	}
	return n, nil
}

// decodeJSONFields consumes a field list whose '[' was already read.
// null elements become empty placeholders.
func decodeJSONFields(dec *json.Decoder, path string) ([]string, error) {
	fields := []string{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, &Error{Path: path, Reason: "invalid JSON", Err: err}
		}
		switch v := tok.(type) {
		case string:
			fields = append(fields, v)
		case nil:
			fields = append(fields, "")
		default:
			return nil, errorf(path, "field list element %d must be a string, got %s", len(fields), describeJSON(tok))
		}
	}
	if _, err := dec.Token(); err != nil {
		return nil, &Error{Path: path, Reason: "invalid JSON", Err: err}
	}
	return fields, nil
}

func describeJSON(tok json.Token) string {
	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '[':
			return "array"
		case '{':
			return "object"
		}
		return fmt.Sprintf("%q", v.String())
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", tok)
	}
}
