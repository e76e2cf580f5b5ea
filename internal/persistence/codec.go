package persistence

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

func init() {
	// Types the built-in steps and feature tables produce.
	gob.Register(map[string]any{})
	gob.Register([]any{})
	gob.Register([]string{})
	gob.Register([][]string{})
}

// EncodeValue serializes a scenario value with encoding/gob. The value is
// boxed in an interface so DecodeValue can recover its dynamic type. Nil
// encodes to nil.
func EncodeValue(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	boxed := v
	if err := gob.NewEncoder(&buf).Encode(&boxed); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return buf.Bytes(), nil
}

// DecodeValue reverses EncodeValue. Empty input decodes to the zero T.
func DecodeValue[T any](data []byte) (T, error) {
	var zero T
	if len(data) == 0 {
		return zero, nil
	}
	var boxed any
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&boxed); err != nil {
		return zero, err
	}
	if boxed == nil {
		return zero, nil
	}
	v, ok := boxed.(T)
	if !ok {
		return zero, fmt.Errorf("gob: decoded %T is not assignable to %T", boxed, zero)
	}
	return v, nil
}
