package events

import (
	"encoding/json"
	"fmt"
	"strconv"
)

type decodeFunc func(r *fieldReader) Event

var decoders = map[Name]decodeFunc{
	NamePlayerLogin:           decodePlayerLogin,
	NamePlayerLogout:          decodePlayerLogout,
	NameDeath:                 decodeDeath,
	NameVehicleDestroy:        decodeVehicleDestroy,
	NameGainExperience:        decodeGainExperience,
	NamePlayerFacilityCapture: decodeFacilityCapture,
	NamePlayerFacilityDefend:  decodeFacilityDefend,
	NameContinentLock:         decodeContinentLock,
	NameContinentUnlock:       decodeContinentUnlock,
	NameFacilityControl:       decodeFacilityControl,
	NameMetagameEvent:         decodeMetagameEvent,
	NameItemAdded:             func(*fieldReader) Event { return ItemAdded{} },
	NameAchievementEarned:     func(*fieldReader) Event { return AchievementEarned{} },
	NameSkillAdded:            func(*fieldReader) Event { return SkillAdded{} },
	NameBattleRankUp:          func(*fieldReader) Event { return BattleRankUp{} },
}

// Decode maps a service-message payload to its event variant using the
// payload's event_name field. It has no side effects; a failure only
// concerns this payload.
func Decode(payload []byte) (Event, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("payload: %w", err)
	}

	r := &fieldReader{fields: fields}
	name := Name(r.str("event_name"))
	if r.err != nil {
		return nil, r.err
	}

	decode, ok := decoders[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}

	ev := decode(r)
	if r.err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, r.err)
	}
	return ev, nil
}

// fieldReader pulls string-encoded fields out of a payload. The first
// failure sticks in err and later reads return zero values.
type fieldReader struct {
	fields map[string]json.RawMessage
	err    error
}

func (r *fieldReader) fail(field, value string, kind, cause error) {
	if r.err == nil {
		r.err = &FieldParseError{Field: field, Value: value, Kind: kind, Err: cause}
	}
}

func (r *fieldReader) lookup(field string) (string, bool) {
	if r.err != nil {
		return "", false
	}
	raw, ok := r.fields[field]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		r.fail(field, string(raw), ErrNotString, nil)
		return "", false
	}
	return s, true
}

func (r *fieldReader) str(field string) string {
	s, ok := r.lookup(field)
	if !ok && r.err == nil {
		r.fail(field, "", ErrMissingField, nil)
	}
	return s
}

func (r *fieldReader) unsigned(field string, bits int) uint64 {
	s := r.str(field)
	if r.err != nil {
		return 0
	}
	return r.parseUint(field, s, bits)
}

// optionalUint returns 0 when the field is absent.
func (r *fieldReader) optionalUint(field string, bits int) uint64 {
	s, ok := r.lookup(field)
	if !ok {
		return 0
	}
	return r.parseUint(field, s, bits)
}

func (r *fieldReader) parseUint(field, s string, bits int) uint64 {
	n, err := strconv.ParseUint(s, 10, bits)
	if err != nil {
		r.fail(field, s, ErrNonNumeric, err)
		return 0
	}
	return n
}

func (r *fieldReader) signed(field string, bits int) int64 {
	s := r.str(field)
	if r.err != nil {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, bits)
	if err != nil {
		r.fail(field, s, ErrNonNumeric, err)
		return 0
	}
	return n
}

func (r *fieldReader) float(field string) float32 {
	s := r.str(field)
	if r.err != nil {
		return 0
	}
	f, err := strconv.ParseFloat(s, 32)
	if err != nil {
		r.fail(field, s, ErrNonNumeric, err)
		return 0
	}
	return float32(f)
}

func (r *fieldReader) flag(field string) bool {
	s := r.str(field)
	if r.err != nil {
		return false
	}
	switch s {
	case "0":
		return false
	case "1":
		return true
	}
	r.fail(field, s, ErrInvalidBoolean, nil)
	return false
}

func (r *fieldReader) timestamp(field string) Timestamp {
	sec := r.signed(field, 64)
	if r.err != nil {
		return Timestamp{}
	}
	return Unix(sec)
}

func (r *fieldReader) duration(field string) Duration {
	sec := r.signed(field, 64)
	if r.err != nil {
		return Duration{}
	}
	return Seconds(sec)
}

func (r *fieldReader) faction(field string) Faction {
	f := Faction(r.signed(field, 16))
	if r.err == nil && !f.valid() {
		r.fail(field, strconv.Itoa(int(f)), ErrUnknownEnumValue, nil)
	}
	return f
}

func (r *fieldReader) loadout(field string) Loadout {
	l := Loadout(r.signed(field, 16))
	if r.err == nil && !l.valid() {
		r.fail(field, strconv.Itoa(int(l)), ErrUnknownEnumValue, nil)
	}
	return l
}

func (r *fieldReader) world(field string) World {
	w := World(r.signed(field, 16))
	if r.err == nil && !w.valid() {
		r.fail(field, strconv.Itoa(int(w)), ErrUnknownEnumValue, nil)
	}
	return w
}

func (r *fieldReader) character(field string) CharacterID {
	return CharacterID(r.unsigned(field, 64))
}

func (r *fieldReader) zone(field string) ZoneID {
	return ZoneID(r.unsigned(field, 32))
}

func (r *fieldReader) facility(field string) FacilityID {
	return FacilityID(r.unsigned(field, 32))
}

func (r *fieldReader) outfit(field string) OutfitID {
	return OutfitID(r.unsigned(field, 64))
}

func (r *fieldReader) vehicle(field string) VehicleID {
	return VehicleID(r.unsigned(field, 16))
}

func decodePlayerLogin(r *fieldReader) Event {
	return PlayerLogin{
		CharacterID: r.character("character_id"),
		Timestamp:   r.timestamp("timestamp"),
		WorldID:     r.world("world_id"),
	}
}

func decodePlayerLogout(r *fieldReader) Event {
	return PlayerLogout{
		CharacterID: r.character("character_id"),
		Timestamp:   r.timestamp("timestamp"),
		WorldID:     r.world("world_id"),
	}
}

func decodeDeath(r *fieldReader) Event {
	return Death{
		AttackerCharacterID: r.character("attacker_character_id"),
		AttackerFireModeID:  FiremodeID(r.unsigned("attacker_fire_mode_id", 32)),
		AttackerLoadoutID:   r.loadout("attacker_loadout_id"),
		AttackerVehicleID:   r.vehicle("attacker_vehicle_id"),
		AttackerWeaponID:    WeaponID(r.unsigned("attacker_weapon_id", 32)),
		CharacterID:         r.character("character_id"),
		CharacterLoadoutID:  r.loadout("character_loadout_id"),
		IsHeadshot:          r.flag("is_headshot"),
		Timestamp:           r.timestamp("timestamp"),
		VehicleID:           VehicleID(r.optionalUint("vehicle_id", 16)),
		WorldID:             r.world("world_id"),
		ZoneID:              r.zone("zone_id"),
	}
}

func decodeVehicleDestroy(r *fieldReader) Event {
	return VehicleDestroy{
		AttackerCharacterID: r.character("attacker_character_id"),
		AttackerLoadoutID:   r.loadout("attacker_loadout_id"),
		AttackerVehicleID:   r.vehicle("attacker_vehicle_id"),
		AttackerWeaponID:    WeaponID(r.unsigned("attacker_weapon_id", 32)),
		CharacterID:         r.character("character_id"),
		FacilityID:          r.facility("facility_id"),
		FactionID:           r.faction("faction_id"),
		Timestamp:           r.timestamp("timestamp"),
		VehicleID:           r.vehicle("vehicle_id"),
		WorldID:             r.world("world_id"),
		ZoneID:              r.zone("zone_id"),
	}
}

func decodeGainExperience(r *fieldReader) Event {
	return GainExperience{
		CharacterID:  r.character("character_id"),
		ExperienceID: ExperienceID(r.unsigned("experience_id", 16)),
		LoadoutID:    r.loadout("loadout_id"),
		OtherID:      r.character("other_id"),
		Timestamp:    r.timestamp("timestamp"),
		WorldID:      r.world("world_id"),
		ZoneID:       r.zone("zone_id"),
		Amount:       uint16(r.unsigned("amount", 16)),
		TeamID:       r.faction("team_id"),
	}
}

func decodeFacilityCapture(r *fieldReader) Event {
	return PlayerFacilityCapture{
		CharacterID: r.character("character_id"),
		FacilityID:  r.facility("facility_id"),
		OutfitID:    r.outfit("outfit_id"),
		Timestamp:   r.timestamp("timestamp"),
		WorldID:     r.world("world_id"),
		ZoneID:      r.zone("zone_id"),
	}
}

func decodeFacilityDefend(r *fieldReader) Event {
	return PlayerFacilityDefend{
		CharacterID: r.character("character_id"),
		FacilityID:  r.facility("facility_id"),
		OutfitID:    r.outfit("outfit_id"),
		Timestamp:   r.timestamp("timestamp"),
		WorldID:     r.world("world_id"),
		ZoneID:      r.zone("zone_id"),
	}
}

func decodeFacilityControl(r *fieldReader) Event {
	return FacilityControl{
		DurationHeld: r.duration("duration_held"),
		FacilityID:   r.facility("facility_id"),
		NewFactionID: r.faction("new_faction_id"),
		OldFactionID: r.faction("old_faction_id"),
		OutfitID:     r.outfit("outfit_id"),
		Timestamp:    r.timestamp("timestamp"),
		WorldID:      r.world("world_id"),
		ZoneID:       r.zone("zone_id"),
	}
}

func readContinentLock(r *fieldReader) ContinentLock {
	return ContinentLock{
		Timestamp:         r.timestamp("timestamp"),
		WorldID:           r.world("world_id"),
		ZoneID:            r.zone("zone_id"),
		TriggeringFaction: r.faction("triggering_faction"),
		PreviousFaction:   r.faction("previous_faction"),
		VSPopulation:      uint16(r.unsigned("vs_population", 16)),
		NCPopulation:      uint16(r.unsigned("nc_population", 16)),
		TRPopulation:      uint16(r.unsigned("tr_population", 16)),
		MetagameEventID:   uint8(r.unsigned("metagame_event_id", 8)),
	}
}

func decodeContinentLock(r *fieldReader) Event {
	return readContinentLock(r)
}

func decodeContinentUnlock(r *fieldReader) Event {
	return ContinentUnlock(readContinentLock(r))
}

func decodeMetagameEvent(r *fieldReader) Event {
	return MetagameEvent{
		Timestamp:              r.timestamp("timestamp"),
		WorldID:                r.world("world_id"),
		InstanceID:             uint32(r.unsigned("instance_id", 32)),
		ExperienceBonus:        r.float("experience_bonus"),
		FactionNC:              r.float("faction_nc"),
		FactionTR:              r.float("faction_tr"),
		FactionVS:              r.float("faction_vs"),
		MetagameEventID:        uint8(r.unsigned("metagame_event_id", 8)),
		MetagameEventState:     uint8(r.unsigned("metagame_event_state", 8)),
		MetagameEventStateName: r.str("metagame_event_state_name"),
		ZoneID:                 r.zone("zone_id"),
	}
}
