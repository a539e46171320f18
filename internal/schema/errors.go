package schema

import "errors"

var (
	// ErrUnknownType is returned for a type name or tag that is not part of the value union
	ErrUnknownType = errors.New("unknown setting type")

	// ErrTypeMismatch is returned when a value does not match the declared field type
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrUnknownKey is returned when a key is not declared by the schema
	ErrUnknownKey = errors.New("unknown setting key")

	// ErrNotAllowed is returned when a value is outside a field's allowed set
	ErrNotAllowed = errors.New("value not allowed")

	// ErrTooLong is returned when a string exceeds the field's maximum length
	ErrTooLong = errors.New("value too long")

	// ErrInvalidNumber is returned for NaN or infinite floats
	ErrInvalidNumber = errors.New("invalid number")
)
