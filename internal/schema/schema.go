// Package schema declares the typed keys a settings module owns: their
// defaults, sensitivity, and validation ranges.
package schema

import (
	"fmt"
	"math"
	"unicode/utf8"
)

// Field declares one setting key of a module
type Field struct {
	Key         string
	Type        Type
	Default     Value
	Sensitive   bool
	Description string

	hasRange bool
	min, max float64
	maxLen   int
	allowed  []string
}

func StringField(key, def string) Field {
	return Field{Key: key, Type: TypeString, Default: String(def)}
}

func IntField(key string, def int) Field {
	return Field{Key: key, Type: TypeInt, Default: Int(def)}
}

func BoolField(key string, def bool) Field {
	return Field{Key: key, Type: TypeBool, Default: Bool(def)}
}

func FloatField(key string, def float64) Field {
	return Field{Key: key, Type: TypeFloat, Default: Float(def)}
}

func LongField(key string, def int64) Field {
	return Field{Key: key, Type: TypeLong, Default: Long(def)}
}

func StringSetField(key string, def ...string) Field {
	return Field{Key: key, Type: TypeStringSet, Default: StringSet(def...)}
}

// Range sets an inclusive numeric range; out-of-range writes are clamped
func (f Field) Range(lo, hi float64) Field {
	f.hasRange = true
	f.min, f.max = lo, hi
	return f
}

// MaxLen limits string length in runes; longer writes are rejected
func (f Field) MaxLen(n int) Field {
	f.maxLen = n
	return f
}

// OneOf restricts a string field to a fixed set of values
func (f Field) OneOf(values ...string) Field {
	f.allowed = append([]string(nil), values...)
	return f
}

// Secret marks the field sensitive: encrypted at rest and never exported
func (f Field) Secret() Field {
	f.Sensitive = true
	return f
}

// Describe attaches a human readable description
func (f Field) Describe(text string) Field {
	f.Description = text
	return f
}

// Bounds returns the numeric range, if the field declares one
func (f Field) Bounds() (lo, hi float64, ok bool) {
	return f.min, f.max, f.hasRange
}

// Allowed returns the permitted values of an enumerated string field
func (f Field) Allowed() []string {
	return append([]string(nil), f.allowed...)
}

// Normalize checks v against the field declaration. Numeric values outside
// the range are clamped; values with no sensible clamp (wrong type, not in
// the allowed set, too long, NaN) are rejected.
func (f Field) Normalize(v Value) (Value, error) {
	if v.Type() != f.Type {
		return Value{}, fmt.Errorf("%w: %s expects %s, got %s", ErrTypeMismatch, f.Key, f.Type, v.Type())
	}

	switch f.Type {
	case TypeInt:
		i, _ := v.AsInt()
		if i > math.MaxInt32 || i < math.MinInt32 {
			return Value{}, fmt.Errorf("%w: %s value %d overflows INTEGER", ErrTypeMismatch, f.Key, i)
		}
		if f.hasRange {
			i = int(clamp(float64(i), f.min, f.max))
		}
		return Int(i), nil
	case TypeLong:
		l, _ := v.AsLong()
		if f.hasRange {
			l = int64(clamp(float64(l), f.min, f.max))
		}
		return Long(l), nil
	case TypeFloat:
		fl, _ := v.AsFloat()
		if math.IsNaN(fl) || math.IsInf(fl, 0) {
			return Value{}, fmt.Errorf("%w: %s", ErrInvalidNumber, f.Key)
		}
		if f.hasRange {
			fl = clamp(fl, f.min, f.max)
		}
		return Float(fl), nil
	case TypeString:
		s, _ := v.AsString()
		if f.maxLen > 0 && utf8.RuneCountInString(s) > f.maxLen {
			return Value{}, fmt.Errorf("%w: %s allows %d characters", ErrTooLong, f.Key, f.maxLen)
		}
		if len(f.allowed) > 0 && !contains(f.allowed, s) {
			return Value{}, fmt.Errorf("%w: %s must be one of %v", ErrNotAllowed, f.Key, f.allowed)
		}
	}
	return v, nil
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// Schema is the ordered, immutable set of fields a module declares
type Schema struct {
	fields []Field
	index  map[string]int
}

// New builds a schema. Duplicate keys and defaults that fail their own
// field declaration are rejected.
func New(fields ...Field) (*Schema, error) {
	s := &Schema{
		fields: make([]Field, 0, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	for _, f := range fields {
		if f.Key == "" {
			return nil, fmt.Errorf("schema field with empty key")
		}
		if _, dup := s.index[f.Key]; dup {
			return nil, fmt.Errorf("duplicate schema key %q", f.Key)
		}
		if _, err := f.Normalize(f.Default); err != nil {
			return nil, fmt.Errorf("invalid default for %q: %w", f.Key, err)
		}
		s.index[f.Key] = len(s.fields)
		s.fields = append(s.fields, f)
	}
	return s, nil
}

// MustNew is New for package-level schema declarations
func MustNew(fields ...Field) *Schema {
	s, err := New(fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Field looks up a field by key
func (s *Schema) Field(key string) (Field, bool) {
	i, ok := s.index[key]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Fields returns the fields in declaration order
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Keys returns the keys in declaration order
func (s *Schema) Keys() []string {
	keys := make([]string, len(s.fields))
	for i, f := range s.fields {
		keys[i] = f.Key
	}
	return keys
}

// IsSensitive reports whether key is declared sensitive. Unknown keys are not.
func (s *Schema) IsSensitive(key string) bool {
	f, ok := s.Field(key)
	return ok && f.Sensitive
}

// Default returns the declared default for key
func (s *Schema) Default(key string) (Value, bool) {
	f, ok := s.Field(key)
	if !ok {
		return Value{}, false
	}
	return f.Default, true
}

func (s *Schema) Len() int { return len(s.fields) }
