package xmlstream

import "regexp"

var nsDecl = regexp.MustCompile(`\s+xmlns(?::[A-Za-z_][\w.\-]*)?\s*=\s*(?:"[^"]*"|'[^']*')`)

// StripNamespaceDecls removes every xmlns / xmlns:prefix attribute from an
// XML fragment. Element and attribute prefixes are left alone.
func StripNamespaceDecls(b []byte) []byte {
	return nsDecl.ReplaceAll(b, nil)
}
