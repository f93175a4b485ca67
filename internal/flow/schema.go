package flow

import (
	"bytes"
	"compress/gzip"
	_ "embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema/minifi_flow.schema.json
var minifiFlowSchema []byte

// ValidateMinifiJSON checks a serialized agent JSON flow against the bundled schema.
func ValidateMinifiJSON(data []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(minifiFlowSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return fmt.Errorf("failed to validate flow json: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("flow json does not match schema: %s", strings.Join(msgs, "; "))
}

// Gzip compresses a serialized flow. NiFi loads its flow from flow.json.gz.
func Gzip(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("failed to compress flow: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress flow: %w", err)
	}
	return buf.Bytes(), nil
}
