package protocol

import (
	"errors"
	"fmt"

	"github.com/nextlevelbuilder/auraxis/pkg/events"
)

var (
	// ErrUnknownDiscriminator is returned when an envelope's type, or a
	// service message's event_name, matches nothing known.
	ErrUnknownDiscriminator = errors.New("unknown discriminator")

	// ErrMalformedPayload is returned when a recognised envelope's body
	// cannot be parsed into its expected shape.
	ErrMalformedPayload = errors.New("malformed payload")
)

// DecodeError wraps an inbound frame decoding failure. errors.Is matches Kind
// as well as anything in the Err chain (e.g. *events.FieldParseError).
type DecodeError struct {
	Kind error
	Type string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("decode %q: %v", e.Type, e.Kind)
	}
	return fmt.Sprintf("decode %q: %v: %v", e.Type, e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func malformed(kind string, err error) *DecodeError {
	return &DecodeError{Kind: ErrMalformedPayload, Type: kind, Err: err}
}

func payloadError(err error) *DecodeError {
	if errors.Is(err, events.ErrUnknownEvent) {
		return &DecodeError{Kind: ErrUnknownDiscriminator, Type: TypeServiceMessage, Err: err}
	}
	return malformed(TypeServiceMessage, err)
}
