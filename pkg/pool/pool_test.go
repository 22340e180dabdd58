package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alarmweave/alarmweave/pkg/alarmcodec"
	"github.com/alarmweave/alarmweave/pkg/alarmerr"
	"github.com/alarmweave/alarmweave/pkg/alarmtypes"
	"github.com/alarmweave/alarmweave/pkg/config"
	"github.com/alarmweave/alarmweave/pkg/session"
	"github.com/alarmweave/alarmweave/pkg/transport"
	"github.com/alarmweave/alarmweave/pkg/transport/transporttest"
)

// severityDelegate orders alarms purely by AlarmCtr, lowest least severe,
// so tests can construct deterministic eviction scenarios.
type severityDelegate struct {
	dropped []alarmtypes.Alarm
}

func (d *severityDelegate) OnAlarmClientStateChange(s *session.Session) {}
func (d *severityDelegate) OnNewRemoteAlarmDropped(a alarmtypes.Alarm) {
	d.dropped = append(d.dropped, a)
}
func (d *severityDelegate) CompareSeverity(a, b alarmtypes.Alarm) int {
	switch {
	case a.AlarmCtr < b.AlarmCtr:
		return -1
	case a.AlarmCtr > b.AlarmCtr:
		return 1
	default:
		return 0
	}
}
func (d *severityDelegate) OnHushRequest(ex transport.Exchange, proximityCode uint32, sig [20]byte) {}

func wireFor(t *testing.T, ctr uint8, sessionID, sn uint32) []byte {
	t.Helper()
	buf, err := alarmcodec.Pack(alarmtypes.Alarm{
		AlarmCtr:       ctr,
		Conditions:     []alarmtypes.Condition{alarmtypes.NewCondition(alarmtypes.SourceSmoke, alarmtypes.StateAlarmHushable)},
		Where:          1,
		SessionIDValid: true,
		SessionID:      sessionID,
		ExtEvtSN:       sn,
	})
	require.NoError(t, err)
	return buf
}

func newTestPool(cfg config.Engine) (*Pool, *severityDelegate, *transporttest.Dialer, *transporttest.Scheduler) {
	d := &severityDelegate{}
	dialer := &transporttest.Dialer{}
	sched := transporttest.NewScheduler()
	p := New(0, d, dialer, sched, cfg)
	return p, d, dialer, sched
}

func TestDispatch_AdmitsNewRemoteSession(t *testing.T) {
	p, _, dialer, _ := newTestPool(config.DefaultEngine())

	raw := wireFor(t, 1, 0xAAAA, 1)
	require.NoError(t, p.Dispatch(raw, transport.PacketInfo{SourceNode: 0x01}))

	require.Len(t, dialer.Opened, 1)
	assert.Equal(t, raw, dialer.Opened[0].Exchange.LastSubmission().Payload)
	assert.True(t, dialer.Opened[0].Flags.Has(transport.FlagAllowDuplicateMsgs), "admission must mark the exchange as tolerating the overheard rebroadcast of its own triggering message")
	require.Len(t, p.Sessions(), 1)
	assert.Equal(t, session.StateActive, p.Sessions()[0].State())
}

func TestDispatch_RoutesSecondMessageToSameSessionWithoutNewExchange(t *testing.T) {
	p, _, dialer, _ := newTestPool(config.DefaultEngine())

	require.NoError(t, p.Dispatch(wireFor(t, 1, 0xAAAA, 1), transport.PacketInfo{SourceNode: 0x01}))
	require.Len(t, dialer.Opened, 1)

	require.NoError(t, p.Dispatch(wireFor(t, 2, 0xAAAA, 2), transport.PacketInfo{SourceNode: 0x01}))
	assert.Len(t, dialer.Opened, 1, "existing session must reuse its bound exchange")
	assert.Len(t, dialer.Opened[0].Exchange.Submissions, 2)
}

func TestDispatch_DropsEchoOfOwnNode(t *testing.T) {
	p, d, dialer, _ := newTestPool(config.DefaultEngine())

	require.NoError(t, p.Dispatch(wireFor(t, 1, 0xAAAA, 1), transport.PacketInfo{SourceNode: 0}))
	assert.Empty(t, dialer.Opened)
	assert.Empty(t, d.dropped)
	assert.Empty(t, p.Sessions())
}

func TestDispatch_DropsOnBadParse(t *testing.T) {
	p, d, _, _ := newTestPool(config.DefaultEngine())
	require.NoError(t, p.Dispatch([]byte{0x01}, transport.PacketInfo{SourceNode: 5}))
	assert.Len(t, d.dropped, 1)
}

func TestDispatch_SeverityEvictionPass1(t *testing.T) {
	cfg := config.DefaultEngine()
	cfg.MaxConcurrentSessions = 2
	p, _, _, _ := newTestPool(cfg)

	require.NoError(t, p.Dispatch(wireFor(t, 5, 0x01, 5), transport.PacketInfo{SourceNode: 0x01}))
	require.NoError(t, p.Dispatch(wireFor(t, 10, 0x02, 10), transport.PacketInfo{SourceNode: 0x02}))

	// incoming has AlarmCtr=20, strictly more severe than node 0x01's 5.
	require.NoError(t, p.Dispatch(wireFor(t, 20, 0x03, 20), transport.PacketInfo{SourceNode: 0x03}))

	originators := map[uint64]bool{}
	for _, s := range p.Sessions() {
		originators[s.Originator] = true
	}
	assert.False(t, originators[0x01], "less-severe session must be evicted")
	assert.True(t, originators[0x02])
	assert.True(t, originators[0x03])
}

func TestDispatch_SeverityEvictionPass2TieBreakOnNodeID(t *testing.T) {
	cfg := config.DefaultEngine()
	cfg.MaxConcurrentSessions = 2
	p, _, _, _ := newTestPool(cfg)

	require.NoError(t, p.Dispatch(wireFor(t, 10, 0x02, 10), transport.PacketInfo{SourceNode: 0x02}))
	require.NoError(t, p.Dispatch(wireFor(t, 10, 0x03, 10), transport.PacketInfo{SourceNode: 0x03}))

	// incoming has equal severity (ctr=10); only node ids strictly greater
	// than source (0x01) are eligible, so the higher-numbered existing
	// session (0x03) is the tie-broken victim. Node 0x00 is the pool's own
	// id, so it cannot serve as the incoming source here.
	require.NoError(t, p.Dispatch(wireFor(t, 10, 0x04, 10), transport.PacketInfo{SourceNode: 0x01}))

	originators := map[uint64]bool{}
	for _, s := range p.Sessions() {
		originators[s.Originator] = true
	}
	assert.True(t, originators[0x02])
	assert.False(t, originators[0x03])
	assert.True(t, originators[0x01])
}

func TestDispatch_OutOfPoolWhenNoVictim(t *testing.T) {
	cfg := config.DefaultEngine()
	cfg.MaxConcurrentSessions = 1
	p, d, _, _ := newTestPool(cfg)

	require.NoError(t, p.Dispatch(wireFor(t, 50, 0x01, 50), transport.PacketInfo{SourceNode: 0x01}))

	// incoming is less severe than the sole occupant and the occupant's
	// node id is already the minimum, so neither pass finds a victim.
	err := p.Dispatch(wireFor(t, 1, 0x02, 1), transport.PacketInfo{SourceNode: 0x02})
	assert.ErrorIs(t, err, alarmerr.ErrOutOfPool)
	assert.Len(t, d.dropped, 1)
}

func TestAcquireLocal_NeverEvictsRemote(t *testing.T) {
	cfg := config.DefaultEngine()
	cfg.MaxConcurrentSessions = 1
	p, _, _, _ := newTestPool(cfg)

	require.NoError(t, p.Dispatch(wireFor(t, 1, 0x01, 1), transport.PacketInfo{SourceNode: 0x01}))

	_, err := p.AcquireLocal()
	assert.ErrorIs(t, err, alarmerr.ErrOutOfPool)
	assert.Len(t, p.Sessions(), 1)
}
