// Package pool implements the fixed-size session pool and incoming-alarm
// dispatcher: routing every incoming alarm message to the right Session,
// admitting new remote sessions, and running severity-based eviction when
// the pool is full.
package pool

import (
	"fmt"

	"github.com/alarmweave/alarmweave/pkg/alarmcodec"
	"github.com/alarmweave/alarmweave/pkg/alarmerr"
	"github.com/alarmweave/alarmweave/pkg/alarmtypes"
	"github.com/alarmweave/alarmweave/pkg/config"
	"github.com/alarmweave/alarmweave/pkg/log"
	"github.com/alarmweave/alarmweave/pkg/metrics"
	"github.com/alarmweave/alarmweave/pkg/session"
	"github.com/alarmweave/alarmweave/pkg/transport"
)

// Pool owns a fixed-size array of sessions and routes incoming alarm
// traffic to them, admitting new remote sessions and evicting existing
// ones by severity when every slot is taken.
type Pool struct {
	sessions []*session.Session
	delegate session.Delegate
	dialer   transport.Dialer
	sched    transport.Scheduler
	cfg      config.Engine
	selfNode uint64
}

// New builds a pool sized by cfg.MaxConcurrentSessions.
func New(selfNode uint64, delegate session.Delegate, dialer transport.Dialer, sched transport.Scheduler, cfg config.Engine) *Pool {
	return &Pool{
		sessions: make([]*session.Session, cfg.MaxConcurrentSessions),
		delegate: delegate,
		dialer:   dialer,
		sched:    sched,
		cfg:      cfg,
		selfNode: selfNode,
	}
}

// Capacity returns the total number of session slots, for metrics
// collection.
func (p *Pool) Capacity() int { return len(p.sessions) }

// SessionStates returns a count of live sessions grouped by their current
// lifecycle state, for metrics collection.
func (p *Pool) SessionStates() map[string]int {
	out := make(map[string]int)
	for _, s := range p.sessions {
		if s == nil {
			continue
		}
		out[s.State().String()]++
	}
	return out
}

// Sessions returns the live (non-nil) sessions currently held, for
// introspection and metrics collection.
func (p *Pool) Sessions() []*session.Session {
	out := make([]*session.Session, 0, len(p.sessions))
	for _, s := range p.sessions {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// AcquireLocal allocates a session for a locally-originated alarm. It
// returns ErrOutOfPool if no free slot exists — local sessions never evict
// a remote session on acquisition; a local alarm source is expected to
// hold its slot for the application's lifetime.
func (p *Pool) AcquireLocal() (*session.Session, error) {
	idx, ok := p.freeSlot()
	if !ok {
		return nil, alarmerr.ErrOutOfPool
	}
	s, err := session.New(idx, true, p.selfNode, p.delegate, p.sched, p.cfg)
	if err != nil {
		return nil, err
	}
	p.sessions[idx] = s
	return s, nil
}

func (p *Pool) freeSlot() (int, bool) {
	for i, s := range p.sessions {
		if s == nil {
			return i, true
		}
	}
	return 0, false
}

// Dispatch routes one incoming wire message to its matching session,
// admitting or evicting as needed.
func (p *Pool) Dispatch(raw []byte, pkt transport.PacketInfo) error {
	incoming, err := alarmcodec.Parse(raw)
	if err != nil {
		poolLogger := log.WithComponent("pool")
		poolLogger.Warn().Err(err).Msg("dropping unparsable alarm")
		p.delegate.OnNewRemoteAlarmDropped(alarmtypes.Alarm{})
		return nil
	}

	if p.cfg.MandatoryIface != "" && pkt.Iface != p.cfg.MandatoryIface {
		return nil
	}

	// An already-admitted session dispatches over the exchange it was
	// bound with at admission time; no new exchange is opened.
	if s := p.findMatchingSession(incoming, pkt.SourceNode); s != nil {
		return s.HandleAlarm(incoming, raw, pkt)
	}

	if pkt.SourceNode == p.selfNode {
		// stale echo of our own retired local session; drop silently.
		return nil
	}

	idx, ok := p.freeSlot()
	if !ok {
		idx, ok = p.evictForSeverity(incoming, pkt.SourceNode)
		if !ok {
			metrics.AdmissionDropsTotal.Inc()
			p.delegate.OnNewRemoteAlarmDropped(incoming)
			return alarmerr.ErrOutOfPool
		}
	}

	s, err := session.New(idx, false, pkt.SourceNode, p.delegate, p.sched, p.cfg)
	if err != nil {
		return err
	}
	p.sessions[idx] = s
	return p.admitAndForward(s, incoming, raw, pkt)
}

// admitAndForward allocates an exchange for a newly admitted session,
// binds it, and forwards the triggering message. FlagAllowDuplicateMsgs is
// set on the open call because the triggering message is about to be
// rebroadcast and will likely be overheard again before this session has
// sent anything of its own — that overhearing must not count against its
// exchange's trickle suppression.
func (p *Pool) admitAndForward(s *session.Session, incoming alarmtypes.Alarm, raw []byte, pkt transport.PacketInfo) error {
	ex, err := p.dialer.Open(pkt.SourceNode, true, transport.FlagAllowDuplicateMsgs, func(ex transport.Exchange) { s.OnRetransmitTimeout() })
	if err != nil {
		return fmt.Errorf("open exchange for originator %d: %w", pkt.SourceNode, err)
	}
	s.BindExchange(ex)
	return s.HandleAlarm(incoming, raw, pkt)
}

// findMatchingSession returns the session whose originator equals the
// source node, whose session-id-validity matches, and (for v2 traffic)
// whose session id equals incoming's.
func (p *Pool) findMatchingSession(incoming alarmtypes.Alarm, sourceNode uint64) *session.Session {
	for _, s := range p.sessions {
		if s == nil || s.Originator != sourceNode {
			continue
		}
		current := s.CurrentAlarm()
		if current.SessionIDValid != incoming.SessionIDValid {
			continue
		}
		if incoming.SessionIDValid && current.SessionID != incoming.SessionID {
			continue
		}
		return s
	}
	return nil
}

// evictForSeverity implements two-pass severity-based eviction.
// It never evicts a local session.
//
// Pass 1: close the first remote session whose current alarm is strictly
// less severe than incoming.
// Pass 2: close the remote session with the highest node id whose severity
// equals incoming's and whose node id is strictly greater than source.
func (p *Pool) evictForSeverity(incoming alarmtypes.Alarm, source uint64) (int, bool) {
	for i, s := range p.sessions {
		if s == nil || s.IsLocal {
			continue
		}
		if p.delegate.CompareSeverity(s.CurrentAlarm(), incoming) < 0 {
			s.Close(true)
			p.sessions[i] = nil
			metrics.EvictionsTotal.Inc()
			return i, true
		}
	}

	victim := -1
	for i, s := range p.sessions {
		if s == nil || s.IsLocal {
			continue
		}
		if s.Originator <= source {
			continue
		}
		if p.delegate.CompareSeverity(s.CurrentAlarm(), incoming) != 0 {
			continue
		}
		if victim == -1 || s.Originator > p.sessions[victim].Originator {
			victim = i
		}
	}
	if victim == -1 {
		return 0, false
	}
	p.sessions[victim].Close(true)
	p.sessions[victim] = nil
	metrics.EvictionsTotal.Inc()
	return victim, true
}
