package device

// LockState is the interpreted state of a Lock.
type LockState int

const (
	LockUnknown LockState = iota
	Locked
	Unlocked
)

func (s LockState) String() string {
	switch s {
	case Locked:
		return "locked"
	case Unlocked:
		return "unlocked"
	default:
		return "unknown"
	}
}

func parseLockState(v any) LockState {
	b, ok := v.(bool)
	switch {
	case !ok:
		return LockUnknown
	case b:
		return Locked
	default:
		return Unlocked
	}
}

// SensorState is the interpreted state of a wireless Sensor.
type SensorState int

const (
	SensorUnknown SensorState = iota
	SensorOpened
	SensorClosed
)

func (s SensorState) String() string {
	switch s {
	case SensorOpened:
		return "opened"
	case SensorClosed:
		return "closed"
	default:
		return "unknown"
	}
}

func parseSensorState(v any) SensorState {
	b, ok := v.(bool)
	switch {
	case !ok:
		return SensorUnknown
	case b:
		return SensorOpened
	default:
		return SensorClosed
	}
}

// GarageDoorState mirrors the remote garage door codes 0..5.
type GarageDoorState int

const (
	GarageDoorUnknown GarageDoorState = iota
	GarageDoorClosed
	GarageDoorClosing
	GarageDoorStopped
	GarageDoorOpening
	GarageDoorOpened
)

var garageDoorNames = [...]string{"unknown", "closed", "closing", "stopped", "opening", "opened"}

func (s GarageDoorState) String() string {
	if s < 0 || int(s) >= len(garageDoorNames) {
		return "unknown"
	}
	return garageDoorNames[s]
}

// parseGarageDoorState maps codes outside 0..5, and non-numbers, to
// GarageDoorUnknown.
func parseGarageDoorState(v any) GarageDoorState {
	code, ok := intValue(v)
	if !ok || code < int(GarageDoorUnknown) || code > int(GarageDoorOpened) {
		return GarageDoorUnknown
	}
	return GarageDoorState(code)
}

// ArmState is a panel partition's arm state. Values are the remote codes.
type ArmState int

const (
	ArmStateUnknown               ArmState = -1
	ArmStateDisarmed              ArmState = 0
	ArmStateArmingAwayInExitDelay ArmState = 1
	ArmStateArmingStayInExitDelay ArmState = 2
	ArmStateArmedStay             ArmState = 3
	ArmStateArmedAway             ArmState = 4
	ArmStateArmedStayInEntryDelay ArmState = 5
	ArmStateArmedAwayInEntryDelay ArmState = 6
	ArmStateAlarm                 ArmState = 7
	ArmStateAlarmFire             ArmState = 8
	ArmStateDisabled              ArmState = 11
	ArmStateWalkTest              ArmState = 12
)

var armStateNames = map[ArmState]string{
	ArmStateDisarmed:              "disarmed",
	ArmStateArmingAwayInExitDelay: "arming_away_in_exit_delay",
	ArmStateArmingStayInExitDelay: "arming_stay_in_exit_delay",
	ArmStateArmedStay:             "armed_stay",
	ArmStateArmedAway:             "armed_away",
	ArmStateArmedStayInEntryDelay: "armed_stay_in_entry_delay",
	ArmStateArmedAwayInEntryDelay: "armed_away_in_entry_delay",
	ArmStateAlarm:                 "alarm",
	ArmStateAlarmFire:             "alarm_fire",
	ArmStateDisabled:              "disabled",
	ArmStateWalkTest:              "walk_test",
}

func (s ArmState) String() string {
	if name, ok := armStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether s is one of the known remote codes.
func (s ArmState) Valid() bool {
	_, ok := armStateNames[s]
	return ok
}

// Armed reports whether s counts as armed: armed, in an entry delay or in
// alarm. Exit delays are not armed yet.
func (s ArmState) Armed() bool {
	switch s {
	case ArmStateArmedStay, ArmStateArmedAway,
		ArmStateArmedStayInEntryDelay, ArmStateArmedAwayInEntryDelay,
		ArmStateAlarm, ArmStateAlarmFire:
		return true
	}
	return false
}

// ParseArmState maps a raw code to an ArmState. Unknown codes and
// non-numbers give ArmStateUnknown.
func ParseArmState(v any) ArmState {
	code, ok := intValue(v)
	if !ok {
		return ArmStateUnknown
	}
	s := ArmState(code)
	if !s.Valid() {
		return ArmStateUnknown
	}
	return s
}

// ArmStateByName resolves the String() form back to an ArmState.
func ArmStateByName(name string) (ArmState, bool) {
	for s, n := range armStateNames {
		if n == name {
			return s, true
		}
	}
	return ArmStateUnknown, false
}
