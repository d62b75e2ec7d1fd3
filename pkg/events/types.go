// Package events defines the Census push event payloads and the decoder that
// turns a service-message payload into one of them.
package events

import (
	"fmt"
	"strconv"
	"strings"
)

// Identifier types used across event payloads.
type (
	CharacterID  uint64
	OutfitID     uint64
	ZoneID       uint32
	FacilityID   uint32
	WeaponID     uint32
	FiremodeID   uint32
	ExperienceID uint16
	VehicleID    uint16
)

// Faction is the empire a player, loadout or facility belongs to.
type Faction int16

const (
	FactionUnknown Faction = 0
	FactionVS      Faction = 1
	FactionNC      Faction = 2
	FactionTR      Faction = 3
	FactionNS      Faction = 4
)

var factionNames = map[Faction]string{
	FactionUnknown: "Unknown",
	FactionVS:      "VS",
	FactionNC:      "NC",
	FactionTR:      "TR",
	FactionNS:      "NS",
}

func (f Faction) String() string {
	if name, ok := factionNames[f]; ok {
		return name
	}
	return "Faction(" + strconv.Itoa(int(f)) + ")"
}

func (f Faction) valid() bool {
	_, ok := factionNames[f]
	return ok
}

// Loadout is a class/faction combination.
type Loadout int16

const (
	LoadoutUnknown        Loadout = 0
	LoadoutNCInfiltrator  Loadout = 1
	LoadoutNCLightAssault Loadout = 3
	LoadoutNCMedic        Loadout = 4
	LoadoutNCEngineer     Loadout = 5
	LoadoutNCHeavyAssault Loadout = 6
	LoadoutNCMAX          Loadout = 7
	LoadoutTRInfiltrator  Loadout = 8
	LoadoutTRLightAssault Loadout = 10
	LoadoutTRMedic        Loadout = 11
	LoadoutTREngineer     Loadout = 12
	LoadoutTRHeavyAssault Loadout = 13
	LoadoutTRMAX          Loadout = 14
	LoadoutVSInfiltrator  Loadout = 15
	LoadoutVSLightAssault Loadout = 17
	LoadoutVSMedic        Loadout = 18
	LoadoutVSEngineer     Loadout = 19
	LoadoutVSHeavyAssault Loadout = 20
	LoadoutVSMAX          Loadout = 21
	LoadoutNSInfiltrator  Loadout = 28
	LoadoutNSLightAssault Loadout = 29
	LoadoutNSMedic        Loadout = 30
	LoadoutNSEngineer     Loadout = 31
	LoadoutNSHeavyAssault Loadout = 32
	LoadoutNSMAX          Loadout = 45
)

var loadoutFactions = map[Loadout]Faction{
	LoadoutUnknown:        FactionUnknown,
	LoadoutNCInfiltrator:  FactionNC,
	LoadoutNCLightAssault: FactionNC,
	LoadoutNCMedic:        FactionNC,
	LoadoutNCEngineer:     FactionNC,
	LoadoutNCHeavyAssault: FactionNC,
	LoadoutNCMAX:          FactionNC,
	LoadoutTRInfiltrator:  FactionTR,
	LoadoutTRLightAssault: FactionTR,
	LoadoutTRMedic:        FactionTR,
	LoadoutTREngineer:     FactionTR,
	LoadoutTRHeavyAssault: FactionTR,
	LoadoutTRMAX:          FactionTR,
	LoadoutVSInfiltrator:  FactionVS,
	LoadoutVSLightAssault: FactionVS,
	LoadoutVSMedic:        FactionVS,
	LoadoutVSEngineer:     FactionVS,
	LoadoutVSHeavyAssault: FactionVS,
	LoadoutVSMAX:          FactionVS,
	LoadoutNSInfiltrator:  FactionNS,
	LoadoutNSLightAssault: FactionNS,
	LoadoutNSMedic:        FactionNS,
	LoadoutNSEngineer:     FactionNS,
	LoadoutNSHeavyAssault: FactionNS,
	LoadoutNSMAX:          FactionNS,
}

// Faction returns the empire the loadout belongs to.
func (l Loadout) Faction() Faction {
	return loadoutFactions[l]
}

func (l Loadout) valid() bool {
	_, ok := loadoutFactions[l]
	return ok
}

// World is a game server.
type World int16

const (
	WorldConnery World = 1
	WorldMiller  World = 10
	WorldCobalt  World = 13
	WorldEmerald World = 17
	WorldJaeger  World = 19
	WorldBriggs  World = 25
	WorldSoltech World = 40
)

var worldNames = map[World]string{
	WorldConnery: "Connery",
	WorldMiller:  "Miller",
	WorldCobalt:  "Cobalt",
	WorldEmerald: "Emerald",
	WorldJaeger:  "Jaeger",
	WorldBriggs:  "Briggs",
	WorldSoltech: "Soltech",
}

func (w World) String() string {
	if name, ok := worldNames[w]; ok {
		return name
	}
	return "World(" + strconv.Itoa(int(w)) + ")"
}

func (w World) valid() bool {
	_, ok := worldNames[w]
	return ok
}

// Worlds returns every known world ordered by id.
func Worlds() []World {
	return []World{WorldConnery, WorldMiller, WorldCobalt, WorldEmerald, WorldJaeger, WorldBriggs, WorldSoltech}
}

// ParseWorld accepts a world name (case-insensitive) or its numeric id.
func ParseWorld(s string) (World, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 16); err == nil {
		w := World(n)
		if !w.valid() {
			return 0, fmt.Errorf("unknown world id %d", n)
		}
		return w, nil
	}
	for w, name := range worldNames {
		if strings.EqualFold(name, s) {
			return w, nil
		}
	}
	return 0, fmt.Errorf("unknown world %q", s)
}
