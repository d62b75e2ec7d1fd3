package events

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownEvent is returned when event_name matches no known event.
	ErrUnknownEvent = errors.New("unknown event name")

	// ErrNonNumeric is returned when a numeric field holds non-numeric text.
	ErrNonNumeric = errors.New("non-numeric value")

	// ErrInvalidBoolean is returned when a boolean field is neither "0" nor "1".
	ErrInvalidBoolean = errors.New("invalid boolean")

	// ErrUnknownEnumValue is returned when an enumeration code is not recognised.
	ErrUnknownEnumValue = errors.New("unknown enum value")

	// ErrMissingField is returned when a required field is absent.
	ErrMissingField = errors.New("missing field")

	// ErrNotString is returned when a field that must be a JSON string is not.
	ErrNotString = errors.New("value is not a string")
)

// FieldParseError describes a single field coercion failure. Kind is one of
// the sentinel errors above and is what errors.Is matches against.
type FieldParseError struct {
	Field string
	Value string
	Kind  error
	Err   error
}

func (e *FieldParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("field %s=%q: %v: %v", e.Field, e.Value, e.Kind, e.Err)
	}
	return fmt.Sprintf("field %s=%q: %v", e.Field, e.Value, e.Kind)
}

func (e *FieldParseError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}
