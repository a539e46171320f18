package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// storedValue is the at-rest representation of a Value
type storedValue struct {
	Type string          `json:"t"`
	Raw  json.RawMessage `json:"v"`
}

// Encode serializes v for a backing store
func Encode(v Value) ([]byte, error) {
	if v.IsZero() {
		return nil, fmt.Errorf("%w: cannot encode an empty value", ErrUnknownType)
	}
	raw, err := json.Marshal(v.Interface())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s value: %w", v.Type(), err)
	}
	return json.Marshal(storedValue{Type: v.Type().String(), Raw: raw})
}

// Decode parses bytes written by Encode
func Decode(data []byte) (Value, error) {
	var sv storedValue
	if err := json.Unmarshal(data, &sv); err != nil {
		return Value{}, fmt.Errorf("failed to unmarshal stored value: %w", err)
	}
	t, err := ParseType(sv.Type)
	if err != nil {
		return Value{}, err
	}

	dec := json.NewDecoder(bytes.NewReader(sv.Raw))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Value{}, fmt.Errorf("failed to decode %s payload: %w", t, err)
	}
	return FromAny(t, normalizeNumber(raw))
}

// normalizeNumber turns json.Number into int64 when integral, else float64,
// so LONG values beyond 2^53 survive the round trip.
func normalizeNumber(raw any) any {
	n, ok := raw.(json.Number)
	if !ok {
		return raw
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	f, _ := n.Float64()
	return f
}
