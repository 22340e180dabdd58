// Package alarmtypes holds the shared data model of the alarm mesh: the
// condition byte encoding, the alarm message tuple, and the session
// lifecycle states, independent of wire codec or state-machine concerns.
package alarmtypes

import "fmt"

// Source identifies the high nibble of a Condition byte: which sensor class
// raised it.
type Source uint8

const (
	SourceSmoke       Source = 0x1
	SourceTemperature Source = 0x2
	SourceCO          Source = 0x3
	SourceCH4         Source = 0x4
	SourceHumidity    Source = 0x5
	SourceOther       Source = 0xF
)

// State identifies the low nibble of a Condition byte: the alarm's position
// in its lifecycle.
type State uint8

const (
	StateStandby             State = 0x0
	StateHeadsUp1            State = 0x1
	StateHeadsUp2            State = 0x2
	StateHeadsUpHush         State = 0x3
	StateAlarmHushable       State = 0x4
	StateAlarmNonHushable    State = 0x5
	StateGlobalHush          State = 0x6
	StateRemoteHush          State = 0x7
	StateSelfTest            State = 0x8
	StateAnnounceHeadsUp1    State = 0x9
	StateAnnounceHeadsUp2    State = 0xA
)

var sourceNames = map[Source]string{
	SourceSmoke:       "smoke",
	SourceTemperature: "temperature",
	SourceCO:          "co",
	SourceCH4:         "ch4",
	SourceHumidity:    "humidity",
	SourceOther:       "other",
}

// String renders a Source by name, falling back to its raw nibble value
// for anything outside the known set.
func (s Source) String() string {
	if name, ok := sourceNames[s]; ok {
		return name
	}
	return fmt.Sprintf("source(0x%x)", uint8(s))
}

var stateNames = map[State]string{
	StateStandby:          "standby",
	StateHeadsUp1:         "heads_up_1",
	StateHeadsUp2:         "heads_up_2",
	StateHeadsUpHush:      "heads_up_hush",
	StateAlarmHushable:    "alarm_hushable",
	StateAlarmNonHushable: "alarm_non_hushable",
	StateGlobalHush:       "global_hush",
	StateRemoteHush:       "remote_hush",
	StateSelfTest:         "self_test",
	StateAnnounceHeadsUp1: "announce_heads_up_1",
	StateAnnounceHeadsUp2: "announce_heads_up_2",
}

// String renders a State by name, falling back to its raw nibble value
// for anything outside the known set.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(0x%x)", uint8(s))
}

// Condition is a single alarm condition byte: high nibble source, low
// nibble state. 0xFF denotes an invalid/absent condition.
type Condition uint8

// Invalid is the sentinel condition value.
const Invalid Condition = 0xFF

// MaxConditions is the hard cap on conditions carried by a single alarm
// message (length ≤ 8).
const MaxConditions = 8

// NewCondition packs a source/state pair into a Condition byte.
func NewCondition(src Source, st State) Condition {
	return Condition(uint8(src)<<4 | uint8(st)&0x0F)
}

// Source returns the high nibble.
func (c Condition) Source() Source { return Source(uint8(c) >> 4) }

// State returns the low nibble.
func (c Condition) State() State { return State(uint8(c) & 0x0F) }

// IsValid reports whether c is not the 0xFF sentinel.
func (c Condition) IsValid() bool { return c != Invalid }

// keepsRebroadcasting reports whether this condition's state alone demands
// continued rebroadcast — i.e. it is not one of the quiescent states.
func (c Condition) keepsRebroadcasting() bool {
	switch c.State() {
	case StateStandby, StateSelfTest, StateAnnounceHeadsUp1, StateAnnounceHeadsUp2:
		return false
	default:
		return true
	}
}
