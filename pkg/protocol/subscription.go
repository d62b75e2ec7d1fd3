package protocol

import (
	"encoding/json"
	"strconv"

	"github.com/nextlevelbuilder/auraxis/pkg/events"
)

// ServiceEvent is the only push service this client speaks to.
const ServiceEvent = "event"

const filterAll = "all"

var allFilter = []string{filterAll}

// EventSelector names an event to subscribe to. Most selectors are plain
// event names; GainExperience may be narrowed to one experience type.
type EventSelector string

// SelectEvent returns the selector for an event name.
func SelectEvent(name events.Name) EventSelector {
	return EventSelector(name)
}

// SelectExperience returns the GainExperience selector narrowed to one
// experience type.
func SelectExperience(id events.ExperienceID) EventSelector {
	return EventSelector("GainExperience_experience_id_" + strconv.FormatUint(uint64(id), 10))
}

// EventFilter is either every event or an explicit set of selectors.
type EventFilter struct {
	all       bool
	selectors []EventSelector
}

// AllEvents matches every event.
func AllEvents() *EventFilter { return &EventFilter{all: true} }

// EventNames matches the given selectors only.
func EventNames(selectors ...EventSelector) *EventFilter {
	return &EventFilter{selectors: append([]EventSelector(nil), selectors...)}
}

// All reports whether the filter matches every event.
func (f *EventFilter) All() bool { return f.all }

// Selectors returns a copy of the explicit selectors.
func (f *EventFilter) Selectors() []EventSelector {
	return append([]EventSelector(nil), f.selectors...)
}

func (f *EventFilter) MarshalJSON() ([]byte, error) {
	if f.all {
		return json.Marshal(allFilter)
	}
	out := make([]string, len(f.selectors))
	for i, s := range f.selectors {
		out[i] = string(s)
	}
	return json.Marshal(out)
}

// CharacterFilter is either every character or an explicit set of ids.
type CharacterFilter struct {
	all bool
	ids []events.CharacterID
}

// AllCharacters matches every character.
func AllCharacters() *CharacterFilter { return &CharacterFilter{all: true} }

// Characters matches the given character ids only.
func Characters(ids ...events.CharacterID) *CharacterFilter {
	return &CharacterFilter{ids: append([]events.CharacterID(nil), ids...)}
}

func (f *CharacterFilter) All() bool { return f.all }

func (f *CharacterFilter) IDs() []events.CharacterID {
	return append([]events.CharacterID(nil), f.ids...)
}

func (f *CharacterFilter) MarshalJSON() ([]byte, error) {
	if f.all {
		return json.Marshal(allFilter)
	}
	out := make([]string, len(f.ids))
	for i, id := range f.ids {
		out[i] = strconv.FormatUint(uint64(id), 10)
	}
	return json.Marshal(out)
}

// WorldFilter is either every world or an explicit set of worlds.
type WorldFilter struct {
	all    bool
	worlds []events.World
}

// AllWorlds matches every world.
func AllWorlds() *WorldFilter { return &WorldFilter{all: true} }

// Worlds matches the given worlds only.
func Worlds(worlds ...events.World) *WorldFilter {
	return &WorldFilter{worlds: append([]events.World(nil), worlds...)}
}

func (f *WorldFilter) All() bool { return f.all }

func (f *WorldFilter) Worlds() []events.World {
	return append([]events.World(nil), f.worlds...)
}

func (f *WorldFilter) MarshalJSON() ([]byte, error) {
	if f.all {
		return json.Marshal(allFilter)
	}
	out := make([]string, len(f.worlds))
	for i, w := range f.worlds {
		out[i] = strconv.Itoa(int(w))
	}
	return json.Marshal(out)
}

// SubscriptionSettings is the desired subscription. A nil filter leaves that
// dimension out of the subscribe action entirely.
type SubscriptionSettings struct {
	Events     *EventFilter
	Characters *CharacterFilter
	Worlds     *WorldFilter

	// LogicalAnd combines the character and world filters with AND instead
	// of OR. Nil leaves the server default.
	LogicalAnd *bool
}

// DefaultSubscription subscribes to every event for every character on
// every world.
func DefaultSubscription() SubscriptionSettings {
	return SubscriptionSettings{
		Events:     AllEvents(),
		Characters: AllCharacters(),
		Worlds:     AllWorlds(),
	}
}

// Clone returns a deep copy, so the result shares nothing with s.
func (s SubscriptionSettings) Clone() SubscriptionSettings {
	out := SubscriptionSettings{}
	if s.Events != nil {
		out.Events = &EventFilter{all: s.Events.all, selectors: s.Events.Selectors()}
	}
	if s.Characters != nil {
		out.Characters = &CharacterFilter{all: s.Characters.all, ids: s.Characters.IDs()}
	}
	if s.Worlds != nil {
		out.Worlds = &WorldFilter{all: s.Worlds.all, worlds: s.Worlds.Worlds()}
	}
	if s.LogicalAnd != nil {
		v := *s.LogicalAnd
		out.LogicalAnd = &v
	}
	return out
}

// Bool returns a pointer to v, for LogicalAnd.
func Bool(v bool) *bool { return &v }
