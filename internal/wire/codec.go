package wire

import (
	"encoding/json"
	"fmt"

	"github.com/attentive-mobile/attentive-android-sdk-sub000/internal/jsonenc"
)

// Products is serialized as a JSON string holding a JSON array, i.e.
// {"products":"[{...}]"} rather than {"products":[{...}]}. The collector
// reads it that way.
type Products []Product

func (p Products) MarshalJSON() ([]byte, error) {
	list := []Product(p)
	if list == nil {
		list = []Product{}
	}
	return marshalAsString(list)
}

func (p *Products) UnmarshalJSON(data []byte) error {
	var list []Product
	if err := unmarshalFromString(data, &list); err != nil {
		return fmt.Errorf("products: %w", err)
	}
	*p = list
	return nil
}

// Properties is serialized as a JSON string holding a JSON object, the same
// way as Products.
type Properties map[string]string

func (p Properties) MarshalJSON() ([]byte, error) {
	m := map[string]string(p)
	if m == nil {
		m = map[string]string{}
	}
	return marshalAsString(m)
}

func (p *Properties) UnmarshalJSON(data []byte) error {
	var m map[string]string
	if err := unmarshalFromString(data, &m); err != nil {
		return fmt.Errorf("properties: %w", err)
	}
	*p = m
	return nil
}

// EncodeMetadata renders m as the "m" query value.
func EncodeMetadata(m Metadata) (string, error) {
	if m == nil {
		return "", fmt.Errorf("encode metadata: nil payload")
	}
	data, err := jsonenc.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode %s metadata: %w", m.EventType(), err)
	}
	return string(data), nil
}

// DecodeMetadata parses an "m" value into the payload shape for t.
func DecodeMetadata(t EventType, data []byte) (Metadata, error) {
	m, err := NewMetadata(t)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("decode %s metadata: %w", t, err)
	}
	return m, nil
}

func marshalAsString(v any) ([]byte, error) {
	inner, err := jsonenc.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonenc.Marshal(string(inner))
}

func unmarshalFromString(data []byte, v any) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return json.Unmarshal([]byte(s), v)
}
