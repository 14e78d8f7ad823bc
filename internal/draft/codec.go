// ABOUTME: Value serialization for persisted drafts
// ABOUTME: JSON by default, matching what browser-side drafts already hold

package draft

import "encoding/json"

// Codec converts values to and from their persisted text form.
type Codec interface {
	Encode(v any) (string, error)
	Decode(data string, v any) error
}

// JSONCodec encodes values as compact JSON text.
type JSONCodec struct{}

func (JSONCodec) Encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (JSONCodec) Decode(data string, v any) error {
	return json.Unmarshal([]byte(data), v)
}
