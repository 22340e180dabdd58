// Package session implements the AlarmClient state machine: one pooled
// session per alarm originator, driving Trickle-style rebroadcast, replay
// suppression, and grace/linger lifecycle timing.
package session

import (
	"math"

	"github.com/alarmweave/alarmweave/pkg/alarmcodec"
	"github.com/alarmweave/alarmweave/pkg/alarmerr"
	"github.com/alarmweave/alarmweave/pkg/alarmtypes"
	"github.com/alarmweave/alarmweave/pkg/config"
	"github.com/alarmweave/alarmweave/pkg/log"
	"github.com/alarmweave/alarmweave/pkg/security"
	"github.com/alarmweave/alarmweave/pkg/transport"
	"github.com/rs/zerolog"
)

// Session is one pool slot's AlarmClient: the state machine tracking a
// single originator's alarm, local or remote.
type Session struct {
	Idx        int
	IsLocal    bool
	Originator uint64

	state        State
	established  bool
	currentAlarm alarmtypes.Alarm

	exchange  transport.Exchange
	scheduler transport.Scheduler
	delegate  Delegate
	cfg       config.Engine

	graceTimer     transport.TimerHandle
	hasGraceTimer  bool
	lingerTimer    transport.TimerHandle
	hasLingerTimer bool
}

// New constructs a session bound to the given pool slot. A local session
// reserves its slot by starting directly in Linger and only becomes Active
// on its first SendAlarm; a remote session starts Closed and unestablished,
// accepting its first message unconditionally.
func New(idx int, isLocal bool, originator uint64, delegate Delegate, sched transport.Scheduler, cfg config.Engine) (*Session, error) {
	s := &Session{
		Idx:        idx,
		IsLocal:    isLocal,
		Originator: originator,
		state:      StateClosed,
		delegate:   delegate,
		scheduler:  sched,
		cfg:        cfg,
	}
	if isLocal {
		if err := s.regenerateSessionID(); err != nil {
			return nil, err
		}
		s.state = StateLinger
	}
	return s, nil
}

// State returns the session's current lifecycle state.
func (s *Session) State() State { return s.state }

// CurrentAlarm returns a copy of the alarm this session currently tracks.
func (s *Session) CurrentAlarm() alarmtypes.Alarm { return s.currentAlarm.Clone() }

func (s *Session) logger() zerolog.Logger { return log.WithSession(s.Idx, s.Originator) }

func (s *Session) regenerateSessionID() error {
	id, err := security.RandomSessionID()
	if err != nil {
		s.currentAlarm.SessionIDValid = false
		return err
	}
	s.currentAlarm.SessionID = id
	s.currentAlarm.ExtEvtSN = 0
	s.currentAlarm.AlarmCtr = 0
	s.currentAlarm.SessionIDValid = true
	return nil
}

// advanceSequenceOnLinger implements sequence-advance rule used
// when a local session quiesces into Linger: round up to the next 0x100
// boundary, or regenerate the session id if that would overflow.
func (s *Session) advanceSequenceOnLinger() error {
	sn := s.currentAlarm.ExtEvtSN
	next := ((sn + 0xFF) >> 8) << 8
	if next > sn {
		s.currentAlarm.ExtEvtSN = next
		s.currentAlarm.AlarmCtr = uint8(next & 0xFF)
		return nil
	}
	return s.regenerateSessionID()
}

// SendAlarm implements send path. Only valid on local sessions
// with a currently-valid session id.
func (s *Session) SendAlarm(payload alarmtypes.Alarm, ex transport.Exchange) error {
	if !s.IsLocal || !s.currentAlarm.SessionIDValid {
		return alarmerr.ErrIncorrectState
	}

	if s.currentAlarm.ExtEvtSN == math.MaxUint32 {
		if err := s.regenerateSessionID(); err != nil {
			return err
		}
	}

	s.currentAlarm.ExtEvtSN++
	if s.currentAlarm.ExtEvtSN&0xFF == 0 {
		s.currentAlarm.ExtEvtSN++
	}

	next := payload.Clone()
	next.SessionID = s.currentAlarm.SessionID
	next.SessionIDValid = true
	next.ExtEvtSN = s.currentAlarm.ExtEvtSN
	next.AlarmCtr = uint8(next.ExtEvtSN & 0xFF)
	s.currentAlarm = next

	buf, err := alarmcodec.Pack(s.currentAlarm)
	if err != nil {
		s.enterLingerLocal()
		return err
	}

	ex.ConfigureTrickle(transport.TrickleConfig{
		Period:            s.cfg.RebroadcastPeriod(),
		SuppressionThresh: s.cfg.RebroadcastThreshold,
		RefreshTimeout:    s.cfg.RefreshPeriod(),
	})
	if err := ex.Submit(buf, transport.FlagRetransmitTrickle); err != nil {
		s.enterLingerLocal()
		return err
	}

	s.exchange = ex
	s.established = true
	s.transitionTo(StateActive, true)
	return nil
}

// forwardProgress implements forward-progress check.
func (s *Session) forwardProgress(incoming alarmtypes.Alarm) bool {
	if s.currentAlarm.SessionIDValid && incoming.SessionIDValid {
		return incoming.ExtEvtSN >= s.currentAlarm.ExtEvtSN
	}
	dist := (int(incoming.AlarmCtr) - int(s.currentAlarm.AlarmCtr)) & 0xFF
	return dist <= int(s.cfg.ForwardCounterDistanceLimit)
}

// BindExchange sets the exchange a newly admitted remote session submits
// and suppresses duplicates on. The pool calls this exactly once, at
// admission time, before the first HandleAlarm call; a
// session that was already admitted keeps using the same exchange across
// every subsequent dispatch.
func (s *Session) BindExchange(ex transport.Exchange) {
	s.exchange = ex
}

// HandleAlarm implements remote receive path. raw is the
// verbatim wire payload incoming was parsed from; it is re-broadcast
// byte-for-byte on acceptance rather than re-encoded. The session must
// already have a bound exchange — see BindExchange.
func (s *Session) HandleAlarm(incoming alarmtypes.Alarm, raw []byte, pkt transport.PacketInfo) error {
	if s.cfg.MandatoryIface != "" && pkt.Iface != s.cfg.MandatoryIface {
		return alarmerr.ErrNoEndpoint
	}

	sameSeq := alarmtypes.SameSequence(s.currentAlarm, incoming)

	if s.state == StateActive && sameSeq {
		if s.exchange != nil {
			s.exchange.NoteDuplicate()
		}
		return nil
	}

	if s.IsLocal {
		return nil
	}

	if (s.state == StateLinger || s.state == StateGracePeriod) && sameSeq {
		return nil
	}

	if s.established && !s.forwardProgress(incoming) {
		return nil
	}

	if len(raw) > s.cfg.MaxIncomingAlarmSize {
		return alarmerr.ErrBufferTooSmall
	}

	if s.exchange == nil {
		return alarmerr.ErrIncorrectState
	}

	buf := make([]byte, len(raw))
	copy(buf, raw)

	s.currentAlarm = incoming.Clone()
	s.established = true

	s.exchange.ConfigureTrickle(transport.TrickleConfig{
		Period:            s.cfg.RebroadcastPeriod(),
		SuppressionThresh: s.cfg.RebroadcastThreshold,
		RefreshTimeout:    s.cfg.RefreshPeriod() + s.cfg.RebroadcastPeriod(),
	})
	flags := transport.FlagRetransmitTrickle | transport.FlagDelaySend | transport.FlagReuseMessageID |
		transport.FlagReuseSourceID | transport.FlagFromInitiator
	if err := s.exchange.Submit(buf, flags); err != nil {
		return err
	}

	s.transitionTo(StateActive, true)
	return nil
}

// OnRetransmitTimeout implements "Retransmission timeout"
// table: the lower layer invokes this when a session's trickle/refresh
// timer expires without having been refreshed.
func (s *Session) OnRetransmitTimeout() {
	if s.IsLocal {
		if s.currentAlarm.KeepRebroadcasting() {
			s.refreshLocal()
			return
		}
		s.enterLingerLocal()
		return
	}
	s.enterGracePeriod()
}

func (s *Session) refreshLocal() {
	if s.exchange == nil {
		return
	}
	_ = s.SendAlarm(s.currentAlarm, s.exchange)
}

func (s *Session) enterLingerLocal() {
	_ = s.advanceSequenceOnLinger()
	s.cancelTimers()
	s.transitionTo(StateLinger, true)
	s.armLingerTimer()
}

func (s *Session) enterLingerRemote() {
	s.cancelTimers()
	s.transitionTo(StateLinger, true)
	s.armLingerTimer()
}

func (s *Session) enterGracePeriod() {
	s.cancelTimers()
	s.transitionTo(StateGracePeriod, true)
	if s.scheduler == nil {
		return
	}
	s.graceTimer = s.scheduler.Arm(s.cfg.GracePeriod(), s.onGraceExpiry)
	s.hasGraceTimer = true
}

func (s *Session) onGraceExpiry() {
	s.hasGraceTimer = false
	if s.cfg.LingerPeriod() <= 0 {
		s.Close(true)
		return
	}
	s.enterLingerRemote()
}

func (s *Session) armLingerTimer() {
	if s.scheduler == nil {
		return
	}
	s.lingerTimer = s.scheduler.Arm(s.cfg.LingerPeriod(), s.onLingerExpiry)
	s.hasLingerTimer = true
}

func (s *Session) onLingerExpiry() {
	s.hasLingerTimer = false
	s.Close(true)
}

func (s *Session) cancelTimers() {
	if s.scheduler == nil {
		return
	}
	if s.hasGraceTimer {
		s.scheduler.Cancel(s.graceTimer)
		s.hasGraceTimer = false
	}
	if s.hasLingerTimer {
		s.scheduler.Cancel(s.lingerTimer)
		s.hasLingerTimer = false
	}
}

func (s *Session) transitionTo(next State, notify bool) {
	prev := s.state
	s.state = next
	if prev != next {
		sessLogger := s.logger()
		sessLogger.Debug().Str("from", prev.String()).Str("to", next.String()).Msg("session state transition")
	}
	if notify && s.delegate != nil {
		s.delegate.OnAlarmClientStateChange(s)
	}
}

// Close cancels all timers bound to this session, closes its exchange, and
// transitions it to Closed. notify controls whether the delegate is told;
// callers forcing closure after a fatal resource error may suppress it.
func (s *Session) Close(notify bool) error {
	if s.state == StateClosed {
		return nil
	}
	s.cancelTimers()
	var err error
	if s.exchange != nil {
		err = s.exchange.Close()
		s.exchange = nil
	}
	s.established = false
	s.transitionTo(StateClosed, notify)
	return err
}

// CloseOnFatalError forces the session to Closed after a fatal resource
// error: any state → Closed, delegate notified unless the
// caller suppresses it.
func (s *Session) CloseOnFatalError(suppressNotify bool) error {
	return s.Close(!suppressNotify)
}
