// Package marshal serializes model objects into the descriptor stored with each entity.
package marshal

import (
	"encoding/xml"
	"fmt"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Marshaller converts a model object to and from its descriptor.
type Marshaller interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error

	// Format names the encoding, e.g. "json".
	Format() string
}

// JSON encodes descriptors as JSON.
type JSON struct{}

func (JSON) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (JSON) Format() string                     { return "json" }

// XML encodes descriptors as XML. Model objects need an XMLName or a struct name that
// is a valid element name.
type XML struct{}

func (XML) Marshal(v any) ([]byte, error)      { return xml.Marshal(v) }
func (XML) Unmarshal(data []byte, v any) error { return xml.Unmarshal(data, v) }
func (XML) Format() string                     { return "xml" }

// YAML encodes descriptors as YAML.
type YAML struct{}

func (YAML) Marshal(v any) ([]byte, error)      { return yaml.Marshal(v) }
func (YAML) Unmarshal(data []byte, v any) error { return yaml.Unmarshal(data, v) }
func (YAML) Format() string                     { return "yaml" }

// ByFormat returns the marshaller for format.
func ByFormat(format string) (Marshaller, error) {
	switch format {
	case "", "json":
		return JSON{}, nil
	case "xml":
		return XML{}, nil
	case "yaml", "yml":
		return YAML{}, nil
	}
	return nil, fmt.Errorf("marshal: unsupported format %q", format)
}
