// Package transporttest provides an in-memory fake of pkg/transport's
// collaborator interfaces, driving the session and pool state machines
// against a mock message layer instead of real sockets: no networking, no
// timers, every scheduled callback fireable by the test on demand.
package transporttest

import (
	"sync"
	"time"

	"github.com/alarmweave/alarmweave/pkg/transport"
)

// Submission records one call to Exchange.Submit.
type Submission struct {
	Payload []byte
	Flags   transport.SubmitFlags
}

// Exchange is a fake transport.Exchange that records every call instead of
// sending anything.
type Exchange struct {
	mu sync.Mutex

	Originator uint64
	// OpenFlags records the flags the exchange was opened with, so a test
	// can assert that admission set FlagAllowDuplicateMsgs.
	OpenFlags   transport.SubmitFlags
	Submissions []Submission
	Trickle     transport.TrickleConfig
	Duplicates  int
	Closed      bool

	// SubmitErr, when non-nil, is returned by the next Submit call.
	SubmitErr error
}

func (e *Exchange) Submit(payload []byte, flags transport.SubmitFlags) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.SubmitErr != nil {
		err := e.SubmitErr
		e.SubmitErr = nil
		return err
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	e.Submissions = append(e.Submissions, Submission{Payload: cp, Flags: flags})
	return nil
}

func (e *Exchange) ConfigureTrickle(cfg transport.TrickleConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Trickle = cfg
}

func (e *Exchange) NoteDuplicate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Duplicates++
}

func (e *Exchange) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Closed = true
	return nil
}

// LastSubmission returns the most recent submission, or the zero value if
// none occurred.
func (e *Exchange) LastSubmission() Submission {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.Submissions) == 0 {
		return Submission{}
	}
	return e.Submissions[len(e.Submissions)-1]
}

// Dialer is a fake transport.Dialer that hands out Exchange fakes and
// records the retransmit callback each one was opened with, so a test can
// invoke it directly to simulate a trickle/refresh timeout firing.
type Dialer struct {
	mu sync.Mutex

	Opened []*OpenedExchange

	// OpenErr, when non-nil, is returned by the next Open call.
	OpenErr error
}

// OpenedExchange pairs a fake Exchange with the callback it was opened
// with, so tests can drive "the lower layer fired this session's
// retransmit timeout" directly.
type OpenedExchange struct {
	Exchange            *Exchange
	AsInitiator         bool
	Flags               transport.SubmitFlags
	OnRetransmitTimeout transport.RetransmitCallback
}

// Fire invokes the retransmit-timeout callback as if the lower layer's
// trickle/refresh timer had expired for this exchange.
func (o *OpenedExchange) Fire() {
	o.OnRetransmitTimeout(o.Exchange)
}

func (d *Dialer) Open(originator uint64, asInitiator bool, flags transport.SubmitFlags, cb transport.RetransmitCallback) (transport.Exchange, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.OpenErr != nil {
		err := d.OpenErr
		d.OpenErr = nil
		return nil, err
	}
	ex := &Exchange{Originator: originator, OpenFlags: flags}
	d.Opened = append(d.Opened, &OpenedExchange{Exchange: ex, AsInitiator: asInitiator, Flags: flags, OnRetransmitTimeout: cb})
	return ex, nil
}

// scheduledCall is one pending Scheduler.Arm invocation.
type scheduledCall struct {
	handle    transport.TimerHandle
	delay     time.Duration
	callback  func()
	cancelled bool
}

// Scheduler is a fake transport.Scheduler: Arm never starts a real timer,
// it only records the call so a test can invoke Fire(handle) deliberately.
type Scheduler struct {
	mu      sync.Mutex
	next    transport.TimerHandle
	pending map[transport.TimerHandle]*scheduledCall
}

func NewScheduler() *Scheduler {
	return &Scheduler{pending: make(map[transport.TimerHandle]*scheduledCall)}
}

func (s *Scheduler) Arm(d time.Duration, callback func()) transport.TimerHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	h := s.next
	s.pending[h] = &scheduledCall{handle: h, delay: d, callback: callback}
	return h
}

func (s *Scheduler) Cancel(h transport.TimerHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.pending[h]; ok {
		c.cancelled = true
	}
}

// Fire invokes the callback registered for h if it is still pending and was
// not cancelled. It reports whether the callback ran.
func (s *Scheduler) Fire(h transport.TimerHandle) bool {
	s.mu.Lock()
	c, ok := s.pending[h]
	if ok && !c.cancelled {
		delete(s.pending, h)
	}
	s.mu.Unlock()
	if !ok || c.cancelled {
		return false
	}
	c.callback()
	return true
}

// Pending reports how many timers are armed and not cancelled.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.pending {
		if !c.cancelled {
			n++
		}
	}
	return n
}
