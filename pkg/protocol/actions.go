package protocol

import (
	"encoding/json"
	"fmt"
)

// Outbound action names.
const (
	ActionSubscribe               = "subscribe"
	ActionClearSubscribe          = "clearSubscribe"
	ActionEcho                    = "echo"
	ActionRecentCharacterIDs      = "recentCharacterIds"
	ActionRecentCharacterIDsCount = "recentCharacterIdsCount"
)

// Action is an outbound control command.
type Action interface {
	ActionName() string
}

// Subscribe adds the settings' filters to the server-side subscription.
type Subscribe struct {
	Settings SubscriptionSettings
}

// ClearSubscribe removes filters from the server-side subscription. All
// clears everything regardless of the other fields.
type ClearSubscribe struct {
	All        *bool
	Events     *EventFilter
	Characters *CharacterFilter
	Worlds     *WorldFilter
}

// Echo asks the server to send Payload back verbatim.
type Echo struct {
	Payload json.RawMessage
}

type RecentCharacterIDs struct{}

type RecentCharacterIDsCount struct{}

func (Subscribe) ActionName() string               { return ActionSubscribe }
func (ClearSubscribe) ActionName() string          { return ActionClearSubscribe }
func (Echo) ActionName() string                    { return ActionEcho }
func (RecentCharacterIDs) ActionName() string      { return ActionRecentCharacterIDs }
func (RecentCharacterIDsCount) ActionName() string { return ActionRecentCharacterIDsCount }

type subscribeFrame struct {
	Service    string           `json:"service"`
	Action     string           `json:"action"`
	EventNames *EventFilter     `json:"eventNames,omitempty"`
	Characters *CharacterFilter `json:"characters,omitempty"`
	Worlds     *WorldFilter     `json:"worlds,omitempty"`
	LogicalAnd *bool            `json:"logicalAndCharactersWithWorlds,omitempty"`
}

type clearSubscribeFrame struct {
	Service    string           `json:"service"`
	Action     string           `json:"action"`
	All        string           `json:"all,omitempty"`
	EventNames *EventFilter     `json:"eventNames,omitempty"`
	Characters *CharacterFilter `json:"characters,omitempty"`
	Worlds     *WorldFilter     `json:"worlds,omitempty"`
}

type echoFrame struct {
	Service string          `json:"service"`
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

type bareFrame struct {
	Service string `json:"service"`
	Action  string `json:"action"`
}

// Encode serializes an action to its text frame.
func Encode(a Action) ([]byte, error) {
	switch a := a.(type) {
	case Subscribe:
		return json.Marshal(subscribeFrame{
			Service:    ServiceEvent,
			Action:     ActionSubscribe,
			EventNames: a.Settings.Events,
			Characters: a.Settings.Characters,
			Worlds:     a.Settings.Worlds,
			LogicalAnd: a.Settings.LogicalAnd,
		})
	case ClearSubscribe:
		f := clearSubscribeFrame{
			Service:    ServiceEvent,
			Action:     ActionClearSubscribe,
			EventNames: a.Events,
			Characters: a.Characters,
			Worlds:     a.Worlds,
		}
		if a.All != nil {
			// The service expects the flag as a string here.
			f.All = fmt.Sprint(*a.All)
		}
		return json.Marshal(f)
	case Echo:
		payload := a.Payload
		if len(payload) == 0 {
			payload = json.RawMessage("{}")
		}
		return json.Marshal(echoFrame{Service: ServiceEvent, Action: ActionEcho, Payload: payload})
	case RecentCharacterIDs, RecentCharacterIDsCount:
		return json.Marshal(bareFrame{Service: ServiceEvent, Action: a.ActionName()})
	default:
		return nil, fmt.Errorf("unsupported action %T", a)
	}
}
