// Package alarmcodec implements the bit-exact alarm message wire format:
// pack/parse between alarmtypes.Alarm and the v1/v2 byte layout,
// little-endian for all multi-byte fields.
package alarmcodec

import (
	"encoding/binary"

	"github.com/alarmweave/alarmweave/pkg/alarmerr"
	"github.com/alarmweave/alarmweave/pkg/alarmtypes"
)

// v2HeaderLen is the size in bytes of the v2 tail (session_id + ext_evt_sn).
const v2HeaderLen = 8

// Pack writes a into the v1+v2 wire layout:
//
//	[alarm_ctr, length, conditions…, where, session_id(LE32), ext_evt_sn(LE32)]
//
// It fails with IncorrectState if a.SessionIDValid is false — every
// newly-sent alarm must carry v2 fields — or if len(a.Conditions) > 8.
func Pack(a alarmtypes.Alarm) ([]byte, error) {
	if !a.SessionIDValid {
		return nil, alarmerr.ErrIncorrectState
	}
	if len(a.Conditions) > alarmtypes.MaxConditions {
		return nil, alarmerr.ErrIncorrectState
	}

	length := len(a.Conditions)
	buf := make([]byte, 3+length+v2HeaderLen)
	buf[0] = a.AlarmCtr
	buf[1] = uint8(length)
	for i, c := range a.Conditions {
		buf[2+i] = uint8(c)
	}
	buf[2+length] = a.Where
	binary.LittleEndian.PutUint32(buf[3+length:], a.SessionID)
	binary.LittleEndian.PutUint32(buf[7+length:], a.ExtEvtSN)
	return buf, nil
}

// Parse reads the v1 prefix unconditionally and the v2 tail iff the buffer
// is long enough to hold it (>= 11+length bytes). When the v2 tail is
// absent, the result has SessionIDValid == false and legacy counter
// semantics apply.
func Parse(buf []byte) (alarmtypes.Alarm, error) {
	if len(buf) < 2 {
		return alarmtypes.Alarm{}, alarmerr.ErrMessageIncomplete
	}

	length := int(buf[1])
	if length > alarmtypes.MaxConditions {
		return alarmtypes.Alarm{}, alarmerr.ErrInvalidMessageLength
	}

	v1Len := 3 + length
	if len(buf) < v1Len {
		return alarmtypes.Alarm{}, alarmerr.ErrMessageIncomplete
	}

	out := alarmtypes.Alarm{
		AlarmCtr:   buf[0],
		Conditions: make([]alarmtypes.Condition, length),
	}
	for i := 0; i < length; i++ {
		out.Conditions[i] = alarmtypes.Condition(buf[2+i])
	}
	out.Where = buf[2+length]

	v2Len := 11 + length
	if len(buf) >= v2Len {
		out.SessionID = binary.LittleEndian.Uint32(buf[3+length:])
		out.ExtEvtSN = binary.LittleEndian.Uint32(buf[7+length:])
		out.SessionIDValid = true
	}

	return out, nil
}
