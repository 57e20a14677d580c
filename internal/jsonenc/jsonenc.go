// Package jsonenc renders query-parameter JSON the way the collector expects:
// compact, with '<', '>' and '&' left as is.
package jsonenc

import (
	"bytes"
	"encoding/json"
)

// Marshal is json.Marshal without HTML escaping.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	// Encode always terminates with a newline that Marshal does not.
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
