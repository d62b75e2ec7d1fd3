package protocol

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/nextlevelbuilder/auraxis/pkg/events"
)

func decodeMap(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	return m
}

func TestEncode_SubscribeScenario(t *testing.T) {
	settings := SubscriptionSettings{
		Events:     EventNames(SelectEvent(events.NamePlayerLogin)),
		Characters: AllCharacters(),
		Worlds:     Worlds(events.WorldEmerald),
		LogicalAnd: Bool(true),
	}

	data, err := Encode(Subscribe{Settings: settings})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	got := decodeMap(t, data)
	want := map[string]any{
		"service":                        "event",
		"action":                         "subscribe",
		"eventNames":                     []any{"PlayerLogin"},
		"worlds":                         []any{"17"},
		"characters":                     []any{"all"},
		"logicalAndCharactersWithWorlds": true,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %s\nwant %v", data, want)
	}
}

func TestEncode_SubscribeOmitsAbsentDimensions(t *testing.T) {
	data, err := Encode(Subscribe{Settings: SubscriptionSettings{
		Characters: Characters(5428010618015189713, 1),
	}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	got := decodeMap(t, data)
	for _, key := range []string{"eventNames", "worlds", "logicalAndCharactersWithWorlds"} {
		if _, ok := got[key]; ok {
			t.Errorf("expected %q to be omitted, got %s", key, data)
		}
	}
	chars, _ := got["characters"].([]any)
	if !reflect.DeepEqual(chars, []any{"5428010618015189713", "1"}) {
		t.Errorf("characters = %v", got["characters"])
	}
}

func TestEncode_ExperienceSelector(t *testing.T) {
	data, err := Encode(Subscribe{Settings: SubscriptionSettings{
		Events: EventNames(SelectExperience(7), SelectEvent(events.NameDeath)),
	}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got := decodeMap(t, data)
	want := []any{"GainExperience_experience_id_7", "Death"}
	if !reflect.DeepEqual(got["eventNames"], want) {
		t.Errorf("eventNames = %v, want %v", got["eventNames"], want)
	}
}

func TestEncode_ClearSubscribe(t *testing.T) {
	data, err := Encode(ClearSubscribe{All: Bool(true)})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got := decodeMap(t, data)
	if got["all"] != "true" || got["action"] != "clearSubscribe" || got["service"] != "event" {
		t.Errorf("unexpected clearSubscribe frame: %s", data)
	}

	data, err = Encode(ClearSubscribe{Worlds: Worlds(events.WorldMiller)})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got = decodeMap(t, data)
	if _, ok := got["all"]; ok {
		t.Errorf("all should be omitted: %s", data)
	}
	if !reflect.DeepEqual(got["worlds"], []any{"10"}) {
		t.Errorf("worlds = %v", got["worlds"])
	}
}

func TestEncode_Echo(t *testing.T) {
	data, err := Encode(Echo{Payload: json.RawMessage(`{"test":"x"}`)})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `{"service":"event","action":"echo","payload":{"test":"x"}}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestEncode_RecentCharacterIDs(t *testing.T) {
	data, err := Encode(RecentCharacterIDsCount{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(data) != `{"service":"event","action":"recentCharacterIdsCount"}` {
		t.Errorf("got %s", data)
	}
}

func TestDecodeEnvelope_ControlFrames(t *testing.T) {
	cases := []struct {
		name  string
		frame string
		want  Envelope
	}{
		{
			name:  "connected true",
			frame: `{"connected":"true","service":"push","type":"connectionStateChanged"}`,
			want:  ConnectionStateChanged{Connected: true},
		},
		{
			name:  "connected numeric",
			frame: `{"connected":"1","service":"push","type":"connectionStateChanged"}`,
			want:  ConnectionStateChanged{Connected: true},
		},
		{
			name:  "disconnected",
			frame: `{"connected":"0","service":"push","type":"connectionStateChanged"}`,
			want:  ConnectionStateChanged{Connected: false},
		},
		{
			name:  "heartbeat",
			frame: `{"online":{"EventServerEndpoint_Connery_1":"true","EventServerEndpoint_Miller_10":"false"},"service":"event","type":"heartbeat"}`,
			want: Heartbeat{Online: map[string]bool{
				"EventServerEndpoint_Connery_1": true,
				"EventServerEndpoint_Miller_10": false,
			}},
		},
		{
			name:  "service state",
			frame: `{"detail":"EventServerEndpoint_Cobalt_13","online":"true","service":"event","type":"serviceStateChanged"}`,
			want:  ServiceStateChanged{Online: true, Detail: "EventServerEndpoint_Cobalt_13"},
		},
		{
			name:  "untyped subscription",
			frame: `{"subscription":{"characterCount":0,"eventNames":["PlayerLogin"],"logicalAndCharactersWithWorlds":true,"worlds":["17"]}}`,
			want: Subscription{
				EventNames: []string{"PlayerLogin"},
				LogicalAnd: true,
				Worlds:     []string{"17"},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env, err := DecodeEnvelope([]byte(tc.frame))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !reflect.DeepEqual(env, tc.want) {
				t.Errorf("got %#v, want %#v", env, tc.want)
			}
		})
	}
}

func TestDecodeEnvelope_ServiceMessage(t *testing.T) {
	frame := `{"payload":{"character_id":"5428521211318128657","event_name":"PlayerLogin","timestamp":"1700000000","world_id":"17"},"service":"event","type":"serviceMessage"}`

	env, err := DecodeEnvelope([]byte(frame))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	msg, ok := env.(ServiceMessage)
	if !ok {
		t.Fatalf("expected ServiceMessage, got %T", env)
	}
	want := events.PlayerLogin{
		CharacterID: 5428521211318128657,
		Timestamp:   events.Unix(1700000000),
		WorldID:     events.WorldEmerald,
	}
	if !reflect.DeepEqual(msg.Event, want) {
		t.Errorf("got %+v, want %+v", msg.Event, want)
	}
}

func TestDecodeEnvelope_UnknownType(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{"type":"somethingElse"}`))
	if !errors.Is(err, ErrUnknownDiscriminator) {
		t.Fatalf("expected ErrUnknownDiscriminator, got %v", err)
	}

	_, err = DecodeEnvelope([]byte(`{"send this for help":{"service":"event","action":"help"}}`))
	if !errors.Is(err, ErrUnknownDiscriminator) {
		t.Fatalf("expected ErrUnknownDiscriminator for help frame, got %v", err)
	}
}

func TestDecodeEnvelope_UnknownEventName(t *testing.T) {
	frame := `{"payload":{"event_name":"NotAnEvent"},"service":"event","type":"serviceMessage"}`
	_, err := DecodeEnvelope([]byte(frame))
	if !errors.Is(err, ErrUnknownDiscriminator) {
		t.Fatalf("expected ErrUnknownDiscriminator, got %v", err)
	}
	if !errors.Is(err, events.ErrUnknownEvent) {
		t.Errorf("expected cause events.ErrUnknownEvent, got %v", err)
	}
}

func TestDecodeEnvelope_MalformedPayload(t *testing.T) {
	frame := `{"payload":{"event_name":"PlayerLogin","character_id":"abc","timestamp":"1","world_id":"17"},"type":"serviceMessage"}`
	_, err := DecodeEnvelope([]byte(frame))
	if !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
	var fe *events.FieldParseError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FieldParseError in chain, got %v", err)
	}
	if fe.Field != "character_id" {
		t.Errorf("field = %q", fe.Field)
	}

	_, err = DecodeEnvelope([]byte(`{"type":"connectionStateChanged","connected":"maybe"}`))
	if !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("expected ErrMalformedPayload for bad connected flag, got %v", err)
	}

	_, err = DecodeEnvelope([]byte(`not json`))
	if !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("expected ErrMalformedPayload for invalid json, got %v", err)
	}
}

func TestSubscriptionSettings_CloneIsIndependent(t *testing.T) {
	orig := SubscriptionSettings{
		Events:     EventNames(SelectEvent(events.NameDeath)),
		Worlds:     Worlds(events.WorldCobalt),
		LogicalAnd: Bool(false),
	}
	clone := orig.Clone()

	*orig.LogicalAnd = true
	orig.Worlds.worlds[0] = events.WorldBriggs

	if *clone.LogicalAnd {
		t.Error("clone LogicalAnd followed original")
	}
	if clone.Worlds.Worlds()[0] != events.WorldCobalt {
		t.Error("clone worlds followed original")
	}
	if clone.Characters != nil {
		t.Error("absent dimension should stay absent")
	}
}

func TestParseFrameType(t *testing.T) {
	cases := map[string]string{
		`{"type":"serviceMessage","payload":{}}`:  TypeServiceMessage,
		`{"type":"heartbeat"}`:                    TypeHeartbeat,
		`{"subscription":{"eventNames":[]}}`:      TypeSubscription,
		`{"send this for help":{"action":"help"}}`: "",
	}
	for frame, want := range cases {
		got, err := ParseFrameType([]byte(frame))
		if err != nil {
			t.Fatalf("ParseFrameType(%s): %v", frame, err)
		}
		if got != want {
			t.Errorf("ParseFrameType(%s) = %q, want %q", frame, got, want)
		}
	}
	if _, err := ParseFrameType([]byte("{")); err == nil {
		t.Error("expected error for invalid json")
	}
}
