package schema

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsDuplicateKeys(t *testing.T) {
	_, err := New(IntField("fontSize", 14), IntField("fontSize", 12))
	assert.Error(t, err)
}

func TestNew_RejectsInvalidDefault(t *testing.T) {
	_, err := New(StringField("mode", "neon").OneOf("light", "dark"))
	assert.Error(t, err)

	_, err = New(Field{Key: "broken", Type: TypeInt, Default: String("x")})
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestMustNew_Panics(t *testing.T) {
	assert.Panics(t, func() {
		MustNew(BoolField("", true))
	})
}

func TestSchema_Lookup(t *testing.T) {
	s := MustNew(
		IntField("fontSize", 14).Range(8, 36),
		StringField("apiKey", "").Secret(),
		BoolField("autoSave", true),
	)

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []string{"fontSize", "apiKey", "autoSave"}, s.Keys())
	assert.True(t, s.IsSensitive("apiKey"))
	assert.False(t, s.IsSensitive("fontSize"))
	assert.False(t, s.IsSensitive("missing"))

	def, ok := s.Default("fontSize")
	require.True(t, ok)
	assert.True(t, def.Equal(Int(14)))

	_, ok = s.Field("missing")
	assert.False(t, ok)
}

func TestField_NormalizeClamps(t *testing.T) {
	f := IntField("fontSize", 14).Range(8, 36)

	tests := []struct {
		in   int
		want int
	}{
		{4, 8},
		{100, 36},
		{8, 8},
		{36, 36},
		{20, 20},
	}
	for _, tt := range tests {
		got, err := f.Normalize(Int(tt.in))
		require.NoError(t, err)
		i, _ := got.AsInt()
		assert.Equal(t, tt.want, i, "input %d", tt.in)
	}

	rate := FloatField("speechRate", 1).Range(0.25, 4)
	got, err := rate.Normalize(Float(9.5))
	require.NoError(t, err)
	fl, _ := got.AsFloat()
	assert.Equal(t, 4.0, fl)

	limit := LongField("timeout", 1000).Range(1000, 3600000)
	got, err = limit.Normalize(Long(1))
	require.NoError(t, err)
	l, _ := got.AsLong()
	assert.Equal(t, int64(1000), l)
}

func TestField_NormalizeRejects(t *testing.T) {
	_, err := IntField("tabSize", 4).Normalize(String("4"))
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = StringField("keymap", "default").OneOf("default", "vim").Normalize(String("nano"))
	assert.ErrorIs(t, err, ErrNotAllowed)

	_, err = StringField("wakeWord", "").MaxLen(3).Normalize(String("hello"))
	assert.ErrorIs(t, err, ErrTooLong)

	_, err = FloatField("pitch", 1).Normalize(Float(math.NaN()))
	assert.ErrorIs(t, err, ErrInvalidNumber)

	_, err = IntField("tabSize", 4).Range(1, 16).Normalize(Int(math.MaxInt32 + 1))
	assert.ErrorIs(t, err, ErrTypeMismatch, "overflow is rejected, not clamped")

	_, err = IntField("offset", 0).Normalize(Int(math.MinInt32 - 1))
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestValue_Accessors(t *testing.T) {
	s, ok := String("x").AsString()
	assert.True(t, ok)
	assert.Equal(t, "x", s)

	_, ok = String("x").AsInt()
	assert.False(t, ok)

	b, ok := Bool(true).AsBool()
	assert.True(t, ok)
	assert.True(t, b)

	set, ok := StringSet("b", "a", "b").AsStringSet()
	assert.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, set)

	assert.True(t, Value{}.IsZero())
	assert.False(t, Int(0).IsZero())
	assert.False(t, Int(1).Equal(Long(1)))
}

func TestParse(t *testing.T) {
	v, err := Parse(TypeBool, "yes")
	require.NoError(t, err)
	assert.True(t, v.Equal(Bool(true)))

	v, err = Parse(TypeStringSet, "b, a")
	require.NoError(t, err)
	assert.True(t, v.Equal(StringSet("a", "b")))

	_, err = Parse(TypeInt, "twelve")
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = Parse(TypeInt, "2147483648")
	assert.ErrorIs(t, err, ErrTypeMismatch)

	v, err = Parse(TypeInt, " -2147483648 ")
	require.NoError(t, err)
	assert.True(t, v.Equal(Int(math.MinInt32)))

	_, err = ParseType("DECIMAL")
	assert.ErrorIs(t, err, ErrUnknownType)

	typ, err := ParseType("integer")
	require.NoError(t, err)
	assert.Equal(t, TypeInt, typ)
}

func TestFromAny(t *testing.T) {
	v, err := FromAny(TypeInt, float64(8))
	require.NoError(t, err)
	assert.True(t, v.Equal(Int(8)))

	_, err = FromAny(TypeInt, 8.5)
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = FromAny(TypeInt, "8")
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = FromAny(TypeInt, float64(math.MaxInt32)+1)
	assert.ErrorIs(t, err, ErrTypeMismatch)

	v, err = FromAny(TypeStringSet, []any{"x", "y"})
	require.NoError(t, err)
	assert.True(t, v.Equal(StringSet("x", "y")))

	_, err = FromAny(TypeStringSet, []any{"x", 1})
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestCodec_RoundTrip(t *testing.T) {
	values := []Value{
		String("hello"),
		Int(-42),
		Bool(true),
		Float(0.7),
		Float(2),
		Long(math.MaxInt64),
		StringSet("--info", "--stacktrace"),
		StringSet(),
	}
	for _, v := range values {
		data, err := Encode(v)
		require.NoError(t, err)

		got, err := Decode(data)
		require.NoError(t, err)
		assert.True(t, v.Equal(got), "round trip of %s %q", v.Type(), v.Format())
	}

	_, err := Encode(Value{})
	assert.Error(t, err)

	_, err = Decode([]byte("not json"))
	assert.Error(t, err)
}
