package schema

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Type is the declared type of a setting value
type Type int

const (
	TypeString Type = iota + 1
	TypeInt
	TypeBool
	TypeFloat
	TypeLong
	TypeStringSet
)

var typeNames = map[Type]string{
	TypeString:    "STRING",
	TypeInt:       "INTEGER",
	TypeBool:      "BOOLEAN",
	TypeFloat:     "FLOAT",
	TypeLong:      "LONG",
	TypeStringSet: "STRING_SET",
}

// String returns the wire name used in export envelopes
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseType parses a wire type name (case-insensitive)
func ParseType(name string) (Type, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for t, n := range typeNames {
		if n == upper {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownType, name)
}

// Value is a typed setting value. The zero Value has no type and is
// treated as "absent" by the stores.
type Value struct {
	typ Type
	str string
	num int64
	flt float64
	set []string
}

// String creates a STRING value
func String(s string) Value {
	return Value{typ: TypeString, str: s}
}

// Int creates an INTEGER value
func Int(i int) Value {
	return Value{typ: TypeInt, num: int64(i)}
}

// Bool creates a BOOLEAN value
func Bool(b bool) Value {
	v := Value{typ: TypeBool}
	if b {
		v.num = 1
	}
	return v
}

// Float creates a FLOAT value
func Float(f float64) Value {
	return Value{typ: TypeFloat, flt: f}
}

// Long creates a LONG value
func Long(l int64) Value {
	return Value{typ: TypeLong, num: l}
}

// StringSet creates a STRING_SET value. Members are deduplicated and sorted.
func StringSet(members ...string) Value {
	seen := make(map[string]struct{}, len(members))
	set := make([]string, 0, len(members))
	for _, m := range members {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		set = append(set, m)
	}
	sort.Strings(set)
	return Value{typ: TypeStringSet, set: set}
}

// Type returns the value's declared type
func (v Value) Type() Type { return v.typ }

// IsZero reports whether v carries no value at all
func (v Value) IsZero() bool { return v.typ == 0 }

func (v Value) AsString() (string, bool) { return v.str, v.typ == TypeString }

func (v Value) AsInt() (int, bool) { return int(v.num), v.typ == TypeInt }

func (v Value) AsBool() (bool, bool) { return v.num != 0, v.typ == TypeBool }

func (v Value) AsFloat() (float64, bool) { return v.flt, v.typ == TypeFloat }

func (v Value) AsLong() (int64, bool) { return v.num, v.typ == TypeLong }

// AsStringSet returns a copy of the set members
func (v Value) AsStringSet() ([]string, bool) {
	if v.typ != TypeStringSet {
		return nil, false
	}
	out := make([]string, len(v.set))
	copy(out, v.set)
	return out, true
}

// Interface returns the native Go representation used for JSON/YAML output
func (v Value) Interface() any {
	switch v.typ {
	case TypeString:
		return v.str
	case TypeInt:
		return int(v.num)
	case TypeBool:
		return v.num != 0
	case TypeFloat:
		return v.flt
	case TypeLong:
		return v.num
	case TypeStringSet:
		out, _ := v.AsStringSet()
		return out
	default:
		return nil
	}
}

// Equal reports whether both values have the same type and content
func (v Value) Equal(o Value) bool {
	if v.typ != o.typ {
		return false
	}
	switch v.typ {
	case TypeString:
		return v.str == o.str
	case TypeFloat:
		return v.flt == o.flt
	case TypeStringSet:
		if len(v.set) != len(o.set) {
			return false
		}
		for i := range v.set {
			if v.set[i] != o.set[i] {
				return false
			}
		}
		return true
	default:
		return v.num == o.num
	}
}

// Format renders the value for humans (CLI output, logs)
func (v Value) Format() string {
	switch v.typ {
	case TypeString:
		return v.str
	case TypeInt, TypeLong:
		return strconv.FormatInt(v.num, 10)
	case TypeBool:
		return strconv.FormatBool(v.num != 0)
	case TypeFloat:
		return strconv.FormatFloat(v.flt, 'g', -1, 64)
	case TypeStringSet:
		return strings.Join(v.set, ",")
	default:
		return ""
	}
}

// Parse converts command-line text into a value of type t
func Parse(t Type, text string) (Value, error) {
	switch t {
	case TypeString:
		return String(text), nil
	case TypeInt:
		i, err := strconv.ParseInt(strings.TrimSpace(text), 10, 32)
		if errors.Is(err, strconv.ErrRange) {
			return Value{}, fmt.Errorf("%w: %q overflows INTEGER", ErrTypeMismatch, text)
		}
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q is not a valid integer", ErrTypeMismatch, text)
		}
		return Int(int(i)), nil
	case TypeBool:
		// Accept: true, false, 1, 0, yes, no (case-insensitive)
		switch strings.ToLower(strings.TrimSpace(text)) {
		case "true", "1", "yes", "on":
			return Bool(true), nil
		case "false", "0", "no", "off":
			return Bool(false), nil
		}
		return Value{}, fmt.Errorf("%w: %q is not a valid boolean", ErrTypeMismatch, text)
	case TypeFloat:
		f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q is not a valid float", ErrTypeMismatch, text)
		}
		return Float(f), nil
	case TypeLong:
		l, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q is not a valid long", ErrTypeMismatch, text)
		}
		return Long(l), nil
	case TypeStringSet:
		if strings.TrimSpace(text) == "" {
			return StringSet(), nil
		}
		parts := strings.Split(text, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return StringSet(parts...), nil
	}
	return Value{}, fmt.Errorf("%w: %d", ErrUnknownType, t)
}

// FromAny converts a decoded JSON (including json.Number) or YAML scalar
// into a value of type t.
// Numbers must be integral for INTEGER and LONG; nothing is coerced across
// kinds (a string "8" is not an INTEGER).
func FromAny(t Type, raw any) (Value, error) {
	mismatch := func() (Value, error) {
		return Value{}, fmt.Errorf("%w: %T is not %s", ErrTypeMismatch, raw, t)
	}
	raw = normalizeNumber(raw)

	switch t {
	case TypeString:
		s, ok := raw.(string)
		if !ok {
			return mismatch()
		}
		return String(s), nil
	case TypeBool:
		b, ok := raw.(bool)
		if !ok {
			return mismatch()
		}
		return Bool(b), nil
	case TypeInt, TypeLong:
		n, ok := integral(raw)
		if !ok {
			return mismatch()
		}
		if t == TypeInt {
			if n > math.MaxInt32 || n < math.MinInt32 {
				return Value{}, fmt.Errorf("%w: %d overflows INTEGER", ErrTypeMismatch, n)
			}
			return Int(int(n)), nil
		}
		return Long(n), nil
	case TypeFloat:
		switch f := raw.(type) {
		case float64:
			return Float(f), nil
		case float32:
			return Float(float64(f)), nil
		case int:
			return Float(float64(f)), nil
		case int64:
			return Float(float64(f)), nil
		}
		return mismatch()
	case TypeStringSet:
		switch items := raw.(type) {
		case []string:
			return StringSet(items...), nil
		case []any:
			members := make([]string, 0, len(items))
			for _, item := range items {
				s, ok := item.(string)
				if !ok {
					return mismatch()
				}
				members = append(members, s)
			}
			return StringSet(members...), nil
		}
		return mismatch()
	}
	return Value{}, fmt.Errorf("%w: %d", ErrUnknownType, t)
}

func integral(raw any) (int64, bool) {
	switch n := raw.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || n > math.MaxInt64 || n < math.MinInt64 {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}
