package template

import "fmt"

// Error reports a malformed template document. Path is a slash separated
// location inside the document (e.g. "order/./items"), empty for top-level
// problems.
type Error struct {
	Path   string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := "template"
	if e.Path != "" {
		msg += " " + fmt.Sprintf("%q", e.Path)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func errorf(path, format string, args ...any) *Error {
	return &Error{Path: path, Reason: fmt.Sprintf(format, args...)}
}

func joinPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "/" + key
}
