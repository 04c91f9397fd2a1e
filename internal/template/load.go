package template

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Format selects the template document syntax.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks YAML for .yaml/.yml files and JSON otherwise.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Load reads and validates a template file.
//
// I/O failures are returned wrapped; malformed documents are returned as *Error.
func Load(path string) (*Template, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template file: %w", err)
	}
	return Parse(b, FormatFromPath(path))
}

// Parse decodes a template document in the given format.
func Parse(data []byte, format Format) (*Template, error) {
	switch format {
	case FormatYAML:
		return decodeYAML(data)
	case FormatJSON, "":
		return decodeJSON(data)
	default:
		return nil, fmt.Errorf("unknown template format %q", format)
	}
}
