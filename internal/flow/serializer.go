package flow

import (
	"fmt"
)

type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatYAML, FormatJSON:
		return Format(s), nil
	default:
		return "", fmt.Errorf("invalid flow format: %s", s)
	}
}

// Serializer turns a flow definition into the document an engine loads.
type Serializer interface {
	Serialize(d *Definition) ([]byte, error)
}

// SerializerFor returns the agent serializer for the format.
func SerializerFor(format Format) (Serializer, error) {
	switch format {
	case FormatYAML:
		return MinifiYAMLSerializer{}, nil
	case FormatJSON:
		return MinifiJSONSerializer{}, nil
	default:
		return nil, fmt.Errorf("no serializer for flow format %q", format)
	}
}
