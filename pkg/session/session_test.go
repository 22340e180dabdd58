package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alarmweave/alarmweave/pkg/alarmerr"
	"github.com/alarmweave/alarmweave/pkg/alarmtypes"
	"github.com/alarmweave/alarmweave/pkg/config"
	"github.com/alarmweave/alarmweave/pkg/transport"
	"github.com/alarmweave/alarmweave/pkg/transport/transporttest"
)

type fakeDelegate struct {
	transitions []State
	dropped     []alarmtypes.Alarm
}

func (d *fakeDelegate) OnAlarmClientStateChange(s *Session) { d.transitions = append(d.transitions, s.State()) }
func (d *fakeDelegate) OnNewRemoteAlarmDropped(a alarmtypes.Alarm) {
	d.dropped = append(d.dropped, a)
}
func (d *fakeDelegate) CompareSeverity(a, b alarmtypes.Alarm) int { return 0 }
func (d *fakeDelegate) OnHushRequest(ex transport.Exchange, proximityCode uint32, sig [20]byte) {}

func smokeHushable() alarmtypes.Alarm {
	return alarmtypes.Alarm{
		Conditions: []alarmtypes.Condition{alarmtypes.NewCondition(alarmtypes.SourceSmoke, alarmtypes.StateAlarmHushable)},
		Where:      1,
	}
}

func TestSendAlarm_TransitionsToActiveAndPacks(t *testing.T) {
	d := &fakeDelegate{}
	sched := transporttest.NewScheduler()
	s, err := New(0, true, 0, d, sched, config.DefaultEngine())
	require.NoError(t, err)

	ex := &transporttest.Exchange{}
	require.NoError(t, s.SendAlarm(smokeHushable(), ex))

	assert.Equal(t, StateActive, s.State())
	assert.Len(t, ex.Submissions, 1)
	assert.True(t, ex.Submissions[0].Flags.Has(transport.FlagRetransmitTrickle))
	assert.Equal(t, uint32(1), s.CurrentAlarm().ExtEvtSN)
	assert.Equal(t, uint8(1), s.CurrentAlarm().AlarmCtr)
}

func TestSendAlarm_RequiresLocalAndValidSession(t *testing.T) {
	d := &fakeDelegate{}
	sched := transporttest.NewScheduler()
	s, err := New(0, false, 9, d, sched, config.DefaultEngine())
	require.NoError(t, err)

	ex := &transporttest.Exchange{}
	err = s.SendAlarm(smokeHushable(), ex)
	assert.ErrorIs(t, err, alarmerr.ErrIncorrectState)
}

func TestSendAlarm_CounterWrapRegeneratesSession(t *testing.T) {
	d := &fakeDelegate{}
	sched := transporttest.NewScheduler()
	s, err := New(0, true, 0, d, sched, config.DefaultEngine())
	require.NoError(t, err)

	oldSessionID := s.CurrentAlarm().SessionID
	s.currentAlarm.ExtEvtSN = 0xFFFFFFFE

	ex := &transporttest.Exchange{}
	require.NoError(t, s.SendAlarm(smokeHushable(), ex))
	assert.Equal(t, uint32(0xFFFFFFFF), s.CurrentAlarm().ExtEvtSN)

	require.NoError(t, s.SendAlarm(smokeHushable(), ex))
	assert.NotEqual(t, oldSessionID, s.CurrentAlarm().SessionID)
	assert.Equal(t, uint32(1), s.CurrentAlarm().ExtEvtSN)
	assert.Equal(t, uint8(1), s.CurrentAlarm().AlarmCtr)
}

func TestHandleAlarm_FirstMessageAdmittedUnconditionally(t *testing.T) {
	d := &fakeDelegate{}
	sched := transporttest.NewScheduler()
	s, err := New(1, false, 42, d, sched, config.DefaultEngine())
	require.NoError(t, err)
	ex := &transporttest.Exchange{}
	s.BindExchange(ex)

	incoming := alarmtypes.Alarm{SessionIDValid: true, SessionID: 7, ExtEvtSN: 1, AlarmCtr: 1}
	raw := []byte{0x01, 0x00, 0x00}

	require.NoError(t, s.HandleAlarm(incoming, raw, transport.PacketInfo{}))
	assert.Equal(t, StateActive, s.State())
	assert.Len(t, ex.Submissions, 1)
	assert.Equal(t, raw, ex.Submissions[0].Payload)
}

func TestHandleAlarm_DuplicateCountsAgainstTrickle(t *testing.T) {
	d := &fakeDelegate{}
	sched := transporttest.NewScheduler()
	s, err := New(1, false, 42, d, sched, config.DefaultEngine())
	require.NoError(t, err)
	ex := &transporttest.Exchange{}
	s.BindExchange(ex)

	incoming := alarmtypes.Alarm{SessionIDValid: true, SessionID: 7, ExtEvtSN: 1, AlarmCtr: 1}
	require.NoError(t, s.HandleAlarm(incoming, []byte{0x01}, transport.PacketInfo{}))

	require.NoError(t, s.HandleAlarm(incoming, []byte{0x01}, transport.PacketInfo{}))
	assert.Equal(t, 1, ex.Duplicates)
	assert.Len(t, ex.Submissions, 1)
}

func TestHandleAlarm_RejectsStaleV2Sequence(t *testing.T) {
	d := &fakeDelegate{}
	sched := transporttest.NewScheduler()
	s, err := New(1, false, 42, d, sched, config.DefaultEngine())
	require.NoError(t, err)
	ex := &transporttest.Exchange{}
	s.BindExchange(ex)

	fresh := alarmtypes.Alarm{SessionIDValid: true, SessionID: 7, ExtEvtSN: 10, AlarmCtr: 10}
	require.NoError(t, s.HandleAlarm(fresh, []byte{0x0A}, transport.PacketInfo{}))

	stale := alarmtypes.Alarm{SessionIDValid: true, SessionID: 7, ExtEvtSN: 5, AlarmCtr: 5}
	require.NoError(t, s.HandleAlarm(stale, []byte{0x05}, transport.PacketInfo{}))
	assert.Equal(t, uint32(10), s.CurrentAlarm().ExtEvtSN)
}

func TestHandleAlarm_RejectsWrongInterface(t *testing.T) {
	d := &fakeDelegate{}
	sched := transporttest.NewScheduler()
	cfg := config.DefaultEngine()
	cfg.MandatoryIface = "wlan0"
	s, err := New(1, false, 42, d, sched, cfg)
	require.NoError(t, err)
	ex := &transporttest.Exchange{}
	s.BindExchange(ex)

	incoming := alarmtypes.Alarm{SessionIDValid: true, SessionID: 7, ExtEvtSN: 1, AlarmCtr: 1}
	err = s.HandleAlarm(incoming, []byte{0x01}, transport.PacketInfo{Iface: "eth0"})
	assert.ErrorIs(t, err, alarmerr.ErrNoEndpoint)
}

func TestHandleAlarm_LocalSessionDropsForeignTraffic(t *testing.T) {
	d := &fakeDelegate{}
	sched := transporttest.NewScheduler()
	s, err := New(0, true, 0, d, sched, config.DefaultEngine())
	require.NoError(t, err)

	ex := &transporttest.Exchange{}
	require.NoError(t, s.SendAlarm(smokeHushable(), ex))

	foreign := alarmtypes.Alarm{SessionIDValid: true, SessionID: 999, ExtEvtSN: 5, AlarmCtr: 5}
	require.NoError(t, s.HandleAlarm(foreign, []byte{0x01}, transport.PacketInfo{}))
	assert.Equal(t, uint32(1), s.CurrentAlarm().ExtEvtSN) // untouched
}

func TestOnRetransmitTimeout_LocalKeepsRebroadcasting(t *testing.T) {
	d := &fakeDelegate{}
	sched := transporttest.NewScheduler()
	s, err := New(0, true, 0, d, sched, config.DefaultEngine())
	require.NoError(t, err)

	ex := &transporttest.Exchange{}
	require.NoError(t, s.SendAlarm(smokeHushable(), ex))

	s.OnRetransmitTimeout()
	assert.Equal(t, StateActive, s.State())
	assert.Len(t, ex.Submissions, 2)
	assert.Equal(t, uint32(2), s.CurrentAlarm().ExtEvtSN)
}

func TestOnRetransmitTimeout_LocalQuiescesToLinger(t *testing.T) {
	d := &fakeDelegate{}
	sched := transporttest.NewScheduler()
	s, err := New(0, true, 0, d, sched, config.DefaultEngine())
	require.NoError(t, err)

	quiesced := alarmtypes.Alarm{
		Conditions: []alarmtypes.Condition{alarmtypes.NewCondition(alarmtypes.SourceSmoke, alarmtypes.StateStandby)},
	}
	ex := &transporttest.Exchange{}
	require.NoError(t, s.SendAlarm(quiesced, ex))

	s.OnRetransmitTimeout()
	assert.Equal(t, StateLinger, s.State())
}

func TestOnRetransmitTimeout_RemoteEntersGraceThenLinger(t *testing.T) {
	d := &fakeDelegate{}
	sched := transporttest.NewScheduler()
	s, err := New(1, false, 42, d, sched, config.DefaultEngine())
	require.NoError(t, err)
	ex := &transporttest.Exchange{}
	s.BindExchange(ex)

	incoming := alarmtypes.Alarm{SessionIDValid: true, SessionID: 7, ExtEvtSN: 1, AlarmCtr: 1}
	require.NoError(t, s.HandleAlarm(incoming, []byte{0x01}, transport.PacketInfo{}))

	s.OnRetransmitTimeout()
	assert.Equal(t, StateGracePeriod, s.State())
	require.True(t, s.hasGraceTimer)

	require.True(t, sched.Fire(s.graceTimer))
	assert.Equal(t, StateLinger, s.State())
}

func TestClose_CancelsTimersAndClosesExchange(t *testing.T) {
	d := &fakeDelegate{}
	sched := transporttest.NewScheduler()
	s, err := New(1, false, 42, d, sched, config.DefaultEngine())
	require.NoError(t, err)
	ex := &transporttest.Exchange{}
	s.BindExchange(ex)

	incoming := alarmtypes.Alarm{SessionIDValid: true, SessionID: 7, ExtEvtSN: 1, AlarmCtr: 1}
	require.NoError(t, s.HandleAlarm(incoming, []byte{0x01}, transport.PacketInfo{}))

	s.OnRetransmitTimeout() // -> GracePeriod, arms grace timer
	require.NoError(t, s.Close(true))

	assert.Equal(t, StateClosed, s.State())
	assert.True(t, ex.Closed)
	assert.False(t, s.hasGraceTimer)
	assert.Equal(t, 0, sched.Pending())
}
