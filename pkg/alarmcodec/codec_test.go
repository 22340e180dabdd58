package alarmcodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alarmweave/alarmweave/pkg/alarmerr"
	"github.com/alarmweave/alarmweave/pkg/alarmtypes"
)

func TestPackParse_V2RoundTrip(t *testing.T) {
	a := alarmtypes.Alarm{
		AlarmCtr: 0x23,
		Conditions: []alarmtypes.Condition{
			alarmtypes.NewCondition(alarmtypes.SourceCO, alarmtypes.StateHeadsUp1),
			alarmtypes.NewCondition(alarmtypes.SourceSmoke, alarmtypes.StateAlarmHushable),
		},
		Where:          3,
		SessionIDValid: true,
		SessionID:      0xDEADBEEF,
		ExtEvtSN:       0x00000123,
	}

	buf, err := Pack(a)
	require.NoError(t, err)
	require.Equal(t, 13, len(buf))
	assert.Equal(t, []byte{
		0x23, 0x02, 0x31, 0x14, 0x03,
		0xEF, 0xBE, 0xAD, 0xDE,
		0x23, 0x01, 0x00, 0x00,
	}, buf)

	got, err := Parse(buf)
	require.NoError(t, err)
	assert.Equal(t, a, got)
}

func TestParse_V1Legacy(t *testing.T) {
	buf := []byte{0x05, 0x00, 0x07}
	got, err := Parse(buf)
	require.NoError(t, err)
	assert.False(t, got.SessionIDValid)
	assert.Equal(t, uint8(0x05), got.AlarmCtr)
	assert.Equal(t, 0, len(got.Conditions))
	assert.Equal(t, uint8(0x07), got.Where)
}

func TestPack_RequiresSessionID(t *testing.T) {
	_, err := Pack(alarmtypes.Alarm{SessionIDValid: false})
	assert.ErrorIs(t, err, alarmerr.ErrIncorrectState)
}

func TestPack_RejectsTooManyConditions(t *testing.T) {
	conds := make([]alarmtypes.Condition, 9)
	_, err := Pack(alarmtypes.Alarm{SessionIDValid: true, Conditions: conds})
	assert.ErrorIs(t, err, alarmerr.ErrIncorrectState)
}

func TestParse_RejectsTooManyConditions(t *testing.T) {
	buf := []byte{0x01, 0x09, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	_, err := Parse(buf)
	assert.ErrorIs(t, err, alarmerr.ErrInvalidMessageLength)
}

func TestParse_Incomplete(t *testing.T) {
	_, err := Parse([]byte{0x01})
	assert.ErrorIs(t, err, alarmerr.ErrMessageIncomplete)

	buf := []byte{0x01, 0x02, 0xAA} // length=2 but only 1 condition byte present
	_, err = Parse(buf)
	assert.ErrorIs(t, err, alarmerr.ErrMessageIncomplete)
}

func TestAlarm_EqualIgnoresCounters(t *testing.T) {
	a := alarmtypes.Alarm{AlarmCtr: 1, ExtEvtSN: 10, Where: 5, Conditions: []alarmtypes.Condition{alarmtypes.NewCondition(alarmtypes.SourceSmoke, alarmtypes.StateStandby)}}
	b := a
	b.AlarmCtr = 2
	b.ExtEvtSN = 99
	assert.True(t, a.Equal(b))

	c := a
	c.Where = 6
	assert.False(t, a.Equal(c))
}

func TestKeepRebroadcasting(t *testing.T) {
	standbyOnly := alarmtypes.Alarm{Conditions: []alarmtypes.Condition{
		alarmtypes.NewCondition(alarmtypes.SourceSmoke, alarmtypes.StateStandby),
		alarmtypes.NewCondition(alarmtypes.SourceCO, alarmtypes.StateSelfTest),
	}}
	assert.False(t, standbyOnly.KeepRebroadcasting())

	active := alarmtypes.Alarm{Conditions: []alarmtypes.Condition{
		alarmtypes.NewCondition(alarmtypes.SourceSmoke, alarmtypes.StateAlarmHushable),
	}}
	assert.True(t, active.KeepRebroadcasting())
}
