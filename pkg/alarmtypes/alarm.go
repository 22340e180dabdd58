package alarmtypes

// Alarm is the in-memory representation of an alarm message: the ordered
// tuple of sequence, location, and condition fields, independent of
// whether it arrived as v1 or v2 wire bytes.
type Alarm struct {
	// AlarmCtr is the legacy 8-bit sequence. When SessionIDValid, it must
	// equal the low byte of ExtEvtSN.
	AlarmCtr uint8

	// Conditions holds 0..MaxConditions condition bytes.
	Conditions []Condition

	// Where is the spoken-location id.
	Where uint8

	// SessionIDValid reports whether the v2 extension fields below were
	// present on the wire (or have been populated locally).
	SessionIDValid bool

	// SessionID is the per-originator-epoch random session identifier.
	SessionID uint32

	// ExtEvtSN is the monotone 32-bit sequence within the session.
	ExtEvtSN uint32
}

// Clone returns a deep copy; Conditions is never shared between the
// original and the copy.
func (a Alarm) Clone() Alarm {
	out := a
	out.Conditions = make([]Condition, len(a.Conditions))
	copy(out.Conditions, a.Conditions)
	return out
}

// Equal compares two alarms ignoring AlarmCtr/ExtEvtSN, only
// Where and Conditions participate.
func (a Alarm) Equal(b Alarm) bool {
	if a.Where != b.Where {
		return false
	}
	if len(a.Conditions) != len(b.Conditions) {
		return false
	}
	for i := range a.Conditions {
		if a.Conditions[i] != b.Conditions[i] {
			return false
		}
	}
	return true
}

// KeepRebroadcasting implements keep_rebroadcasting predicate:
// true iff any condition's state is not one of the quiescent states
// (standby, selftest, announce-heads-up-1, announce-heads-up-2).
func (a Alarm) KeepRebroadcasting() bool {
	for _, c := range a.Conditions {
		if c.keepsRebroadcasting() {
			return true
		}
	}
	return false
}

// SameSequence compares the replay-suppression identity of two alarms the
// way handle_alarm does: by ExtEvtSN when both carry a valid
// v2 session id, otherwise by the legacy AlarmCtr.
func SameSequence(current, incoming Alarm) bool {
	if current.SessionIDValid && incoming.SessionIDValid {
		return current.ExtEvtSN == incoming.ExtEvtSN
	}
	return current.AlarmCtr == incoming.AlarmCtr
}
