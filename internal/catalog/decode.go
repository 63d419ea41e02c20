package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format names a catalog document encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

//go:embed default.yaml
var defaultDocument []byte

var loadDefault = sync.OnceValues(func() (*Catalog, error) {
	return Decode(defaultDocument, FormatYAML)
})

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return loadDefault()
}

type document struct {
	Version  string              `yaml:"version" toml:"version" json:"version"`
	Packages []PackageDefinition `yaml:"packages" toml:"packages" json:"packages"`
}

// ParseFormat accepts a format name or a file extension, with or without the leading dot.
func ParseFormat(value string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(value), ".")) {
	case "yaml", "yml":
		return FormatYAML, nil
	case "toml":
		return FormatTOML, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("catalog: unsupported format %q", value)
	}
}

// FormatFromPath infers the format from a file or object name.
func FormatFromPath(name string) (Format, error) {
	ext := path.Ext(name)
	if ext == "" {
		return "", fmt.Errorf("catalog: cannot infer format of %q", name)
	}
	return ParseFormat(ext)
}

// Decode parses a catalog document and validates it with New.
func Decode(data []byte, format Format) (*Catalog, error) {
	var doc document
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &doc)
	case FormatTOML:
		err = toml.Unmarshal(data, &doc)
	case FormatJSON:
		err = json.Unmarshal(data, &doc)
	default:
		return nil, fmt.Errorf("catalog: unsupported format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: decode %s: %w", format, err)
	}
	return New(doc.Version, doc.Packages...)
}

// Encode renders c as a document that Decode accepts.
func Encode(c *Catalog, format Format) ([]byte, error) {
	doc := document{Version: c.Version()}
	for _, id := range c.IDs() {
		def, _ := c.Lookup(id)
		doc.Packages = append(doc.Packages, def)
	}
	switch format {
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("catalog: encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("catalog: encode yaml: %w", err)
		}
		return buf.Bytes(), nil
	case FormatTOML:
		out, err := toml.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("catalog: encode toml: %w", err)
		}
		return out, nil
	case FormatJSON:
		out, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("catalog: encode json: %w", err)
		}
		return append(out, '\n'), nil
	default:
		return nil, fmt.Errorf("catalog: unsupported format %q", format)
	}
}
