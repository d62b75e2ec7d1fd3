package events

import (
	"fmt"
	"strconv"
	"time"
)

// Name is the event_name discriminator carried by every payload.
type Name string

const (
	NamePlayerLogin           Name = "PlayerLogin"
	NamePlayerLogout          Name = "PlayerLogout"
	NameDeath                 Name = "Death"
	NameVehicleDestroy        Name = "VehicleDestroy"
	NameGainExperience        Name = "GainExperience"
	NamePlayerFacilityCapture Name = "PlayerFacilityCapture"
	NamePlayerFacilityDefend  Name = "PlayerFacilityDefend"
	NameContinentLock         Name = "ContinentLock"
	NameContinentUnlock       Name = "ContinentUnlock"
	NameFacilityControl       Name = "FacilityControl"
	NameMetagameEvent         Name = "MetagameEvent"
	NameItemAdded             Name = "ItemAdded"
	NameAchievementEarned     Name = "AchievementEarned"
	NameSkillAdded            Name = "SkillAdded"
	NameBattleRankUp          Name = "BattleRankUp"
)

// Names returns every event name the decoder understands.
func Names() []Name {
	return append([]Name(nil), nameOrder...)
}

var nameOrder = []Name{
	NamePlayerLogin, NamePlayerLogout, NameDeath, NameVehicleDestroy, NameGainExperience,
	NamePlayerFacilityCapture, NamePlayerFacilityDefend, NameContinentLock, NameContinentUnlock,
	NameFacilityControl, NameMetagameEvent, NameItemAdded, NameAchievementEarned,
	NameSkillAdded, NameBattleRankUp,
}

// Event is a decoded, consumer-visible occurrence.
type Event interface {
	EventName() Name
}

// Timestamp is a UTC instant. The service sends epoch seconds; it marshals
// back to JSON as epoch milliseconds.
type Timestamp struct {
	time.Time
}

// Unix builds a Timestamp from epoch seconds.
func Unix(sec int64) Timestamp {
	return Timestamp{time.Unix(sec, 0).UTC()}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return strconv.AppendInt(nil, t.UnixMilli(), 10), nil
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	ms, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	t.Time = time.UnixMilli(ms).UTC()
	return nil
}

// Duration is a whole number of seconds on the wire.
type Duration struct {
	time.Duration
}

// Seconds builds a Duration from whole seconds.
func Seconds(sec int64) Duration {
	return Duration{time.Duration(sec) * time.Second}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return strconv.AppendInt(nil, int64(d.Duration/time.Second), 10), nil
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	sec, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	d.Duration = time.Duration(sec) * time.Second
	return nil
}

type PlayerLogin struct {
	CharacterID CharacterID `json:"character_id"`
	Timestamp   Timestamp   `json:"timestamp"`
	WorldID     World       `json:"world_id"`
}

type PlayerLogout struct {
	CharacterID CharacterID `json:"character_id"`
	Timestamp   Timestamp   `json:"timestamp"`
	WorldID     World       `json:"world_id"`
}

type Death struct {
	AttackerCharacterID CharacterID `json:"attacker_character_id"`
	AttackerFireModeID  FiremodeID  `json:"attacker_fire_mode_id"`
	AttackerLoadoutID   Loadout     `json:"attacker_loadout_id"`
	AttackerVehicleID   VehicleID   `json:"attacker_vehicle_id"`
	AttackerWeaponID    WeaponID    `json:"attacker_weapon_id"`
	CharacterID         CharacterID `json:"character_id"`
	CharacterLoadoutID  Loadout     `json:"character_loadout_id"`
	IsHeadshot          bool        `json:"is_headshot"`
	Timestamp           Timestamp   `json:"timestamp"`
	VehicleID           VehicleID   `json:"vehicle_id"`
	WorldID             World       `json:"world_id"`
	ZoneID              ZoneID      `json:"zone_id"`
}

type VehicleDestroy struct {
	AttackerCharacterID CharacterID `json:"attacker_character_id"`
	AttackerLoadoutID   Loadout     `json:"attacker_loadout_id"`
	AttackerVehicleID   VehicleID   `json:"attacker_vehicle_id"`
	AttackerWeaponID    WeaponID    `json:"attacker_weapon_id"`
	CharacterID         CharacterID `json:"character_id"`
	FacilityID          FacilityID  `json:"facility_id"`
	FactionID           Faction     `json:"faction_id"`
	Timestamp           Timestamp   `json:"timestamp"`
	VehicleID           VehicleID   `json:"vehicle_id"`
	WorldID             World       `json:"world_id"`
	ZoneID              ZoneID      `json:"zone_id"`
}

type GainExperience struct {
	CharacterID  CharacterID  `json:"character_id"`
	ExperienceID ExperienceID `json:"experience_id"`
	LoadoutID    Loadout      `json:"loadout_id"`
	OtherID      CharacterID  `json:"other_id"`
	Timestamp    Timestamp    `json:"timestamp"`
	WorldID      World        `json:"world_id"`
	ZoneID       ZoneID       `json:"zone_id"`
	Amount       uint16       `json:"amount"`
	TeamID       Faction      `json:"team_id"`
}

type PlayerFacilityCapture struct {
	CharacterID CharacterID `json:"character_id"`
	FacilityID  FacilityID  `json:"facility_id"`
	OutfitID    OutfitID    `json:"outfit_id"`
	Timestamp   Timestamp   `json:"timestamp"`
	WorldID     World       `json:"world_id"`
	ZoneID      ZoneID      `json:"zone_id"`
}

type PlayerFacilityDefend struct {
	CharacterID CharacterID `json:"character_id"`
	FacilityID  FacilityID  `json:"facility_id"`
	OutfitID    OutfitID    `json:"outfit_id"`
	Timestamp   Timestamp   `json:"timestamp"`
	WorldID     World       `json:"world_id"`
	ZoneID      ZoneID      `json:"zone_id"`
}

type FacilityControl struct {
	DurationHeld Duration   `json:"duration_held"`
	FacilityID   FacilityID `json:"facility_id"`
	NewFactionID Faction    `json:"new_faction_id"`
	OldFactionID Faction    `json:"old_faction_id"`
	OutfitID     OutfitID   `json:"outfit_id"`
	Timestamp    Timestamp  `json:"timestamp"`
	WorldID      World      `json:"world_id"`
	ZoneID       ZoneID     `json:"zone_id"`
}

// ContinentLock and ContinentUnlock share a shape.
type ContinentLock struct {
	Timestamp         Timestamp `json:"timestamp"`
	WorldID           World     `json:"world_id"`
	ZoneID            ZoneID    `json:"zone_id"`
	TriggeringFaction Faction   `json:"triggering_faction"`
	PreviousFaction   Faction   `json:"previous_faction"`
	VSPopulation      uint16    `json:"vs_population"`
	NCPopulation      uint16    `json:"nc_population"`
	TRPopulation      uint16    `json:"tr_population"`
	MetagameEventID   uint8     `json:"metagame_event_id"`
}

type ContinentUnlock ContinentLock

type MetagameEvent struct {
	Timestamp              Timestamp `json:"timestamp"`
	WorldID                World     `json:"world_id"`
	InstanceID             uint32    `json:"instance_id"`
	ExperienceBonus        float32   `json:"experience_bonus"`
	FactionNC              float32   `json:"faction_nc"`
	FactionTR              float32   `json:"faction_tr"`
	FactionVS              float32   `json:"faction_vs"`
	MetagameEventID        uint8     `json:"metagame_event_id"`
	MetagameEventState     uint8     `json:"metagame_event_state"`
	MetagameEventStateName string    `json:"metagame_event_state_name"`
	ZoneID                 ZoneID    `json:"zone_id"`
}

// Notification-only events carry no payload beyond their name.
type (
	ItemAdded         struct{}
	AchievementEarned struct{}
	SkillAdded        struct{}
	BattleRankUp      struct{}
)

func (PlayerLogin) EventName() Name           { return NamePlayerLogin }
func (PlayerLogout) EventName() Name          { return NamePlayerLogout }
func (Death) EventName() Name                 { return NameDeath }
func (VehicleDestroy) EventName() Name        { return NameVehicleDestroy }
func (GainExperience) EventName() Name        { return NameGainExperience }
func (PlayerFacilityCapture) EventName() Name { return NamePlayerFacilityCapture }
func (PlayerFacilityDefend) EventName() Name  { return NamePlayerFacilityDefend }
func (ContinentLock) EventName() Name         { return NameContinentLock }
func (ContinentUnlock) EventName() Name       { return NameContinentUnlock }
func (FacilityControl) EventName() Name       { return NameFacilityControl }
func (MetagameEvent) EventName() Name         { return NameMetagameEvent }
func (ItemAdded) EventName() Name             { return NameItemAdded }
func (AchievementEarned) EventName() Name     { return NameAchievementEarned }
func (SkillAdded) EventName() Name            { return NameSkillAdded }
func (BattleRankUp) EventName() Name          { return NameBattleRankUp }
