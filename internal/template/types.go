package template

import "strings"

// Kind tells which of the two value shapes an Entry carries.
type Kind int

const (
	// KindFields marks an entry whose value is an ordered list of value expressions.
	KindFields Kind = iota + 1
	// KindNested marks an entry whose value is another Node.
	KindNested
)

func (k Kind) String() string {
	switch k {
	case KindFields:
		return "fields"
	case KindNested:
		return "nested"
	default:
		return "unknown"
	}
}

// Entry is one selector key of a Node together with its value.
//
// Exactly one of Fields / Nested is meaningful, depending on Kind. An empty
// string inside Fields is a placeholder that yields an empty output slot.
type Entry struct {
	Key    string
	Kind   Kind
	Fields []string
	Nested *Node
}

// Node is an ordered selector -> value mapping. Entry order is the order the
// keys appeared in the template document and drives output order.
type Node struct {
	Entries []Entry
}

// Template is a loaded extraction template.
//
// RootTag is the element name that delimits records in the input; Root is the
// node applied to every record.
type Template struct {
	RootTag string
	Root    *Node
}

// Len returns the number of entries in n.
func (n *Node) Len() int {
	if n == nil {
		return 0
	}
	return len(n.Entries)
}

// Expressions returns every non-empty selector key and value expression in
// the subtree rooted at n, in document order, without duplicates.
func (n *Node) Expressions() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(s string) {
		if strings.TrimSpace(s) == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	var walk func(*Node)
	walk = func(n *Node) {
		if n == nil {
			return
		}
		for _, e := range n.Entries {
			add(e.Key)
			switch e.Kind {
			case KindFields:
				for _, f := range e.Fields {
					add(f)
				}
			case KindNested:
				walk(e.Nested)
			}
		}
	}
	walk(n)
	return out
}

// Depth returns the maximum nesting depth below n. A node with only field
// lists has depth 1.
func (n *Node) Depth() int {
	if n.Len() == 0 {
		return 0
	}
	d := 1
	for _, e := range n.Entries {
		if e.Kind == KindNested {
			if sub := 1 + e.Nested.Depth(); sub > d {
				d = sub
			}
		}
	}
	return d
}
