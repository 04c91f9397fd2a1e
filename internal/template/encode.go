package template

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// WriteJSON writes t as an indented JSON document that Parse reads back to an
// equal template. Key order is preserved.
func WriteJSON(w io.Writer, t *Template) error {
	bw := bufio.NewWriter(w)
	bw.WriteString("{\n")
	writeKey(bw, 1, t.RootTag)
	writeNode(bw, 1, t.Root)
	bw.WriteString("\n}\n")
	return bw.Flush()
}

func writeNode(bw *bufio.Writer, depth int, n *Node) {
	if n.Len() == 0 {
		bw.WriteString("{}")
		return
	}
	bw.WriteString("{\n")
	for i, e := range n.Entries {
		writeKey(bw, depth+1, e.Key)
		switch e.Kind {
		case KindNested:
			writeNode(bw, depth+1, e.Nested)
		default:
			bw.WriteByte('[')
			for j, f := range e.Fields {
				if j > 0 {
					bw.WriteString(", ")
				}
				bw.Write(quote(f))
			}
			bw.WriteByte(']')
		}
		if i < len(n.Entries)-1 {
			bw.WriteByte(',')
		}
		bw.WriteByte('\n')
	}
	bw.WriteString(strings.Repeat("  ", depth))
	bw.WriteByte('}')
}

func writeKey(bw *bufio.Writer, depth int, key string) {
	bw.WriteString(strings.Repeat("  ", depth))
	bw.Write(quote(key))
	bw.WriteString(": ")
}

func quote(s string) []byte {
	b, _ := json.Marshal(s)
	return b
}
