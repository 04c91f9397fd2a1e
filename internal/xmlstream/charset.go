package xmlstream

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

var encodingDecl = regexp.MustCompile(`^(?:\x{FEFF})?\s*<\?xml[^>]*?\sencoding\s*=\s*["']([A-Za-z0-9._:-]+)["']`)

// utf8Reader converts r to UTF-8 when its XML declaration names another
// charset. Undeclared or UTF-8 input is passed through unchanged.
func utf8Reader(r io.Reader) (io.Reader, error) {
	br := bufio.NewReaderSize(r, 4096)
	// A short or failing peek simply means there is no declaration to honor;
	// the decoder reports the underlying read error itself.
	head, _ := br.Peek(512)

	m := encodingDecl.FindSubmatch(head)
	if m == nil {
		return br, nil
	}
	label := strings.ToLower(string(m[1]))
	switch label {
	case "utf-8", "utf8", "us-ascii", "ascii":
		return br, nil
	}

	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("xmlstream: unsupported document encoding %q", label)
	}
	return transform.NewReader(br, enc.NewDecoder()), nil
}
