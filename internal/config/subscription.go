package config

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/nextlevelbuilder/auraxis/pkg/events"
	"github.com/nextlevelbuilder/auraxis/pkg/protocol"
)

const (
	filterAll        = "all"
	experiencePrefix = "GainExperience_experience_id_"
)

// SubscriptionConfig is the subscription in file form. Each list is either
// ["all"], explicit entries, or empty to leave the dimension out.
type SubscriptionConfig struct {
	Events     []string `json:"events" env:"EVENTS" envSeparator:","`         // event names or GainExperience_experience_id_<n>
	Characters []string `json:"characters" env:"CHARACTERS" envSeparator:","` // character ids
	Worlds     []string `json:"worlds" env:"WORLDS" envSeparator:","`         // world names or ids
	LogicalAnd *bool    `json:"logical_and,omitempty" env:"LOGICAL_AND"`
}

func (s SubscriptionConfig) clone() SubscriptionConfig {
	out := SubscriptionConfig{
		Events:     slices.Clone(s.Events),
		Characters: slices.Clone(s.Characters),
		Worlds:     slices.Clone(s.Worlds),
	}
	if s.LogicalAnd != nil {
		v := *s.LogicalAnd
		out.LogicalAnd = &v
	}
	return out
}

func isAll(list []string) bool {
	return slices.ContainsFunc(list, func(v string) bool {
		return strings.EqualFold(strings.TrimSpace(v), filterAll)
	})
}

// Settings converts the section to protocol settings.
func (s SubscriptionConfig) Settings() (protocol.SubscriptionSettings, error) {
	var out protocol.SubscriptionSettings

	switch {
	case len(s.Events) == 0:
	case isAll(s.Events):
		out.Events = protocol.AllEvents()
	default:
		selectors := make([]protocol.EventSelector, 0, len(s.Events))
		for _, raw := range s.Events {
			sel, err := parseEventSelector(strings.TrimSpace(raw))
			if err != nil {
				return out, fmt.Errorf("subscription.events: %w", err)
			}
			selectors = append(selectors, sel)
		}
		out.Events = protocol.EventNames(selectors...)
	}

	switch {
	case len(s.Characters) == 0:
	case isAll(s.Characters):
		out.Characters = protocol.AllCharacters()
	default:
		ids := make([]events.CharacterID, 0, len(s.Characters))
		for _, raw := range s.Characters {
			id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
			if err != nil {
				return out, fmt.Errorf("subscription.characters: invalid id %q", raw)
			}
			ids = append(ids, events.CharacterID(id))
		}
		out.Characters = protocol.Characters(ids...)
	}

	switch {
	case len(s.Worlds) == 0:
	case isAll(s.Worlds):
		out.Worlds = protocol.AllWorlds()
	default:
		worlds := make([]events.World, 0, len(s.Worlds))
		for _, raw := range s.Worlds {
			w, err := events.ParseWorld(strings.TrimSpace(raw))
			if err != nil {
				return out, fmt.Errorf("subscription.worlds: %w", err)
			}
			worlds = append(worlds, w)
		}
		out.Worlds = protocol.Worlds(worlds...)
	}

	if s.LogicalAnd != nil {
		out.LogicalAnd = protocol.Bool(*s.LogicalAnd)
	}
	return out, nil
}

func parseEventSelector(raw string) (protocol.EventSelector, error) {
	if rest, ok := strings.CutPrefix(raw, experiencePrefix); ok {
		id, err := strconv.ParseUint(rest, 10, 16)
		if err != nil {
			return "", fmt.Errorf("invalid experience id in %q", raw)
		}
		return protocol.SelectExperience(events.ExperienceID(id)), nil
	}
	name := events.Name(raw)
	if !slices.Contains(events.Names(), name) {
		return "", fmt.Errorf("unknown event %q", raw)
	}
	return protocol.SelectEvent(name), nil
}
