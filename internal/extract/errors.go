package extract

import "fmt"

// ChildElementError reports a value expression that matched an element with
// element children where a text leaf was expected.
type ChildElementError struct {
	Tag  string
	Expr string
}

func (e *ChildElementError) Error() string {
	return fmt.Sprintf("element '%s' has child elements instead of a value (expression %q)", e.Tag, e.Expr)
}

// FragmentParseError reports a record fragment that is not well-formed XML.
type FragmentParseError struct {
	Err error
}

func (e *FragmentParseError) Error() string { return "parse record: " + e.Err.Error() }

func (e *FragmentParseError) Unwrap() error { return e.Err }

// SelectorError reports a template expression that does not compile.
type SelectorError struct {
	Expr string
	Err  error
}

func (e *SelectorError) Error() string {
	return fmt.Sprintf("invalid expression %q: %v", e.Expr, e.Err)
}

func (e *SelectorError) Unwrap() error { return e.Err }
