package template

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// decodeYAML reads a template from YAML. Mapping order is kept through the
// yaml.Node tree.
func decodeYAML(data []byte) (*Template, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &Error{Reason: "invalid YAML", Err: err}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, errorf("", "top level must be a mapping with exactly one key, found an empty document")
	}
	top := doc.Content[0]
	if top.Kind != yaml.MappingNode {
		return nil, errorf("", "top level must be a mapping with exactly one key, got %s", describeYAML(top))
	}
	switch pairs := len(top.Content) / 2; {
	case pairs == 0:
		return nil, errorf("", "top level must have exactly one key, found none")
	case pairs > 1:
		return nil, errorf("", "top level must have exactly one key, found %d", pairs)
	}

	key := top.Content[0].Value
	if key == "" {
		return nil, errorf("", "root tag key is empty")
	}
	val := top.Content[1]
	if val.Kind != yaml.MappingNode {
		return nil, errorf(key, "root value must be a mapping of selectors, got %s", describeYAML(val))
	}
	root, err := decodeYAMLNode(val, key)
	if err != nil {
		return nil, err
	}
	return &Template{RootTag: key, Root: root}, nil
}

func decodeYAMLNode(m *yaml.Node, path string) (*Node, error) {
	n := &Node{}
	seen := make(map[string]bool)
	for i := 0; i+1 < len(m.Content); i += 2 {
		k, v := m.Content[i], m.Content[i+1]
		key := k.Value
		if k.Kind != yaml.ScalarNode || key == "" {
			return nil, errorf(path, "selector key on line %d must be a non-empty string", k.Line)
		}
		if seen[key] {
			return nil, errorf(path, "duplicate selector key %q", key)
		}
		seen[key] = true
		child := joinPath(path, key)

		switch v.Kind {
		case yaml.SequenceNode:
			fields := make([]string, 0, len(v.Content))
			for j, f := range v.Content {
				switch {
				case f.Kind == yaml.ScalarNode && f.Tag == "!!null":
					fields = append(fields, "")
				case f.Kind == yaml.ScalarNode:
					fields = append(fields, f.Value)
				default:
					return nil, errorf(child, "field list element %d must be a string, got %s", j, describeYAML(f))
				}
			}
			n.Entries = append(n.Entries, Entry{Key: key, Kind: KindFields, Fields: fields})
		case yaml.MappingNode:
			sub, err := decodeYAMLNode(v, child)
			if err != nil {
				return nil, err
			}
			n.Entries = append(n.Entries, Entry{Key: key, Kind: KindNested, Nested: sub})
		default:
			return nil, errorf(child, "value must be a list of expressions or a nested mapping, got %s", describeYAML(v))
		}
	}
	return n, nil
}

func describeYAML(n *yaml.Node) string {
	switch n.Kind {
	case yaml.MappingNode:
		return "mapping"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return "null"
		}
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return fmt.Sprintf("node kind %d", n.Kind)
	}
}
