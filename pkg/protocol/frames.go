// Package protocol defines the wire format of the Census push service:
// outbound actions, inbound envelopes and the subscription settings they carry.
package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/nextlevelbuilder/auraxis/pkg/events"
)

// Envelope types, from the "type" discriminator.
const (
	TypeConnectionStateChanged = "connectionStateChanged"
	TypeHeartbeat              = "heartbeat"
	TypeServiceStateChanged    = "serviceStateChanged"
	TypeSubscription           = "subscription"
	TypeServiceMessage         = "serviceMessage"
)

// Envelope is a decoded inbound frame.
type Envelope interface {
	EnvelopeType() string
}

// ConnectionStateChanged is the handshake frame. Connected=true means the
// server is ready to accept a subscription.
type ConnectionStateChanged struct {
	Connected bool
}

// Heartbeat reports which upstream event endpoints are online.
type Heartbeat struct {
	Online map[string]bool
}

// ServiceStateChanged reports an upstream endpoint going on or offline.
type ServiceStateChanged struct {
	Online bool
	Detail string
}

// Subscription echoes the filters the server now holds for this connection.
type Subscription struct {
	CharacterCount uint64   `json:"characterCount"`
	Characters     []string `json:"characters,omitempty"`
	EventNames     []string `json:"eventNames"`
	LogicalAnd     bool     `json:"logicalAndCharactersWithWorlds"`
	Worlds         []string `json:"worlds"`
}

// ServiceMessage carries one domain event.
type ServiceMessage struct {
	Event events.Event
}

func (ConnectionStateChanged) EnvelopeType() string { return TypeConnectionStateChanged }
func (Heartbeat) EnvelopeType() string              { return TypeHeartbeat }
func (ServiceStateChanged) EnvelopeType() string    { return TypeServiceStateChanged }
func (Subscription) EnvelopeType() string           { return TypeSubscription }
func (ServiceMessage) EnvelopeType() string         { return TypeServiceMessage }

type rawEnvelope struct {
	Type         string           `json:"type"`
	Connected    json.RawMessage  `json:"connected"`
	Online       json.RawMessage  `json:"online"`
	Detail       string           `json:"detail"`
	Payload      json.RawMessage  `json:"payload"`
	Subscription *json.RawMessage `json:"subscription"`
}

// ParseFrameType extracts the envelope discriminator without decoding the
// body, so the reader can route a frame cheaply.
func ParseFrameType(data []byte) (string, error) {
	var raw struct {
		Type         string           `json:"type"`
		Subscription *json.RawMessage `json:"subscription"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return "", err
	}
	if raw.Type == "" && raw.Subscription != nil {
		return TypeSubscription, nil
	}
	return raw.Type, nil
}

// DecodeEnvelope decodes one inbound text frame. A frame without "type" but
// with a top-level "subscription" object is a subscription confirmation; the
// live service sends those untyped.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var raw rawEnvelope
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, malformed("", err)
	}
	kind := raw.Type
	if kind == "" && raw.Subscription != nil {
		kind = TypeSubscription
	}

	switch kind {
	case TypeConnectionStateChanged:
		connected, err := parseStringBool(raw.Connected)
		if err != nil {
			return nil, malformed(kind, fmt.Errorf("connected: %w", err))
		}
		return ConnectionStateChanged{Connected: connected}, nil

	case TypeHeartbeat:
		var online map[string]string
		if len(raw.Online) > 0 {
			if err := json.Unmarshal(raw.Online, &online); err != nil {
				return nil, malformed(kind, fmt.Errorf("online: %w", err))
			}
		}
		hb := Heartbeat{Online: make(map[string]bool, len(online))}
		for endpoint, v := range online {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, malformed(kind, fmt.Errorf("online[%s]: %w", endpoint, err))
			}
			hb.Online[endpoint] = b
		}
		return hb, nil

	case TypeServiceStateChanged:
		online, err := parseStringBool(raw.Online)
		if err != nil {
			return nil, malformed(kind, fmt.Errorf("online: %w", err))
		}
		return ServiceStateChanged{Online: online, Detail: raw.Detail}, nil

	case TypeSubscription:
		if raw.Subscription == nil {
			return nil, malformed(kind, fmt.Errorf("missing subscription body"))
		}
		var sub Subscription
		if err := json.Unmarshal(*raw.Subscription, &sub); err != nil {
			return nil, malformed(kind, err)
		}
		return sub, nil

	case TypeServiceMessage:
		if len(raw.Payload) == 0 {
			return nil, malformed(kind, fmt.Errorf("missing payload"))
		}
		ev, err := events.Decode(raw.Payload)
		if err != nil {
			return nil, payloadError(err)
		}
		return ServiceMessage{Event: ev}, nil

	default:
		return nil, &DecodeError{Kind: ErrUnknownDiscriminator, Type: kind}
	}
}

// parseStringBool accepts "true"/"false" and "1"/"0" inside a JSON string.
func parseStringBool(raw json.RawMessage) (bool, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false, fmt.Errorf("expected string boolean, got %s", raw)
	}
	switch s {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}
