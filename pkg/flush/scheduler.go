package flush

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/alarmweave/alarmweave/pkg/config"
	"github.com/alarmweave/alarmweave/pkg/log"
	"github.com/alarmweave/alarmweave/pkg/metrics"
	"github.com/alarmweave/alarmweave/pkg/transport"
)

// Uploader is the offload destination: something that can start an upload
// attempt and reports how far into the event stream it has already sent.
// A nil Uploader, or an empty Destination on the Scheduler, means offload
// is not configured yet — schedule_flush_if_needed retries later instead
// of erroring.
type Uploader interface {
	// Position returns the byte offset into the written stream this
	// uploader has confirmed delivery up to.
	Position() uint64

	// Start begins an asynchronous upload attempt. The caller is
	// responsible for eventually calling Scheduler.SignalUploadDone once
	// the attempt completes, successfully or not.
	Start() error
}

// Scheduler drives the Idle/InProgress/Holdoff/Shutdown state machine.
// Every field other than uploadRequested and throttled is guarded by mu,
// both in the work item it schedules onto sched and in the methods callers
// invoke directly; uploadRequested and throttled are the two fields
// external producers may touch without the lock, and both are plain
// atomics.
type Scheduler struct {
	mu    sync.Mutex
	state State

	uploadRequested atomic.Bool
	throttled       atomic.Int32

	uploader    Uploader
	destination string

	cfg   config.Flush
	sched transport.Scheduler

	timer    transport.TimerHandle
	hasTimer bool

	bytesWritten          uint64
	minSubscriberPosition uint64
}

// New builds a Scheduler in the Idle state. uploader and destination may
// be set later via Configure once the offload transport is ready.
func New(cfg config.Flush, sched transport.Scheduler) *Scheduler {
	return &Scheduler{cfg: cfg, sched: sched, state: StateIdle}
}

// Configure wires (or clears, with an empty destination) the upload
// destination.
func (s *Scheduler) Configure(uploader Uploader, destination string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploader = uploader
	s.destination = destination
}

// State returns the scheduler's current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Throttle and Unthrottle implement a reentrant atomic guard: a producer
// that must temporarily block ring mutation while an upload reads from it
// increments on entry and decrements on exit. IsThrottled reports whether
// any such guard is currently held.
func (s *Scheduler) Throttle()   { s.throttled.Add(1) }
func (s *Scheduler) Unthrottle() { s.throttled.Add(-1) }
func (s *Scheduler) IsThrottled() bool { return s.throttled.Load() > 0 }

// ScheduleFlushIfNeeded CASes uploadRequested from false to true and, only
// on that transition, schedules the work item that actually evaluates
// state. Concurrent callers that lose the CAS race are calls that arrive
// while a schedule is already pending — their request is satisfied by the
// one already in flight.
func (s *Scheduler) ScheduleFlushIfNeeded(request bool) {
	if !request {
		return
	}
	if s.uploadRequested.CompareAndSwap(false, true) {
		s.sched.Arm(0, s.runWorkItem)
	}
}

// runWorkItem is the single-threaded work item that evaluates the current
// state and decides whether to start an upload or arm a retry timer.
func (s *Scheduler) runWorkItem() {
	s.uploadRequested.Store(false)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateHoldoff:
		s.state = StateIdle
		fallthrough
	case StateIdle:
		if s.uploader != nil && s.destination != "" {
			s.state = StateInProgress
			metrics.FlushState.Set(float64(s.state))
			if err := s.uploader.Start(); err != nil {
				flushLogger := log.WithComponent("flush")
				flushLogger.Warn().Err(err).Msg("upload start failed")
				s.state = StateHoldoff
				metrics.FlushState.Set(float64(s.state))
				s.armTimer(s.cfg.MinUploadInterval())
			}
			return
		}
		s.armTimer(s.cfg.MaxUploadInterval())
	case StateInProgress, StateShutdown:
		// no-op: an upload is already running, or the scheduler is torn down.
	}
}

// SignalUploadDone is called by the uploader once an attempt completes,
// successfully or not: InProgress moves to Holdoff and a min-upload-
// interval timer is armed before the scheduler will try again.
func (s *Scheduler) SignalUploadDone() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInProgress {
		return
	}
	s.state = StateHoldoff
	metrics.FlushState.Set(float64(s.state))
	s.armTimer(s.cfg.MinUploadInterval())
}

// Shutdown cancels any pending timer and moves the scheduler to its
// terminal state. Further ScheduleFlushIfNeeded calls schedule work items
// that immediately no-op.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelTimer()
	s.state = StateShutdown
	metrics.FlushState.Set(float64(s.state))
}

func (s *Scheduler) armTimer(d time.Duration) {
	s.cancelTimer()
	s.timer = s.sched.Arm(d, func() { s.ScheduleFlushIfNeeded(true) })
	s.hasTimer = true
}

func (s *Scheduler) cancelTimer() {
	if s.hasTimer {
		s.sched.Cancel(s.timer)
		s.hasTimer = false
	}
}

// NoteBytesWritten records the event log's current write position and
// evaluates the bulk trigger predicate: bytes written minus the
// uploader's confirmed position exceeding the upload threshold.
func (s *Scheduler) NoteBytesWritten(bytesWritten uint64) {
	s.mu.Lock()
	s.bytesWritten = bytesWritten
	uploader := s.uploader
	threshold := uint64(s.cfg.UploadThresholdBytes)
	s.mu.Unlock()

	if uploader == nil {
		return
	}
	if bytesWritten-uploader.Position() > threshold {
		s.ScheduleFlushIfNeeded(true)
	}
}

// NoteSubscriberPosition records the slowest subscriber's delivered
// position and evaluates the notification trigger predicate: bytes
// written minus the minimum subscriber position exceeding the byte
// threshold.
func (s *Scheduler) NoteSubscriberPosition(minSubscriberPosition uint64) {
	s.mu.Lock()
	s.minSubscriberPosition = minSubscriberPosition
	bytesWritten := s.bytesWritten
	threshold := uint64(s.cfg.ByteThresholdBytes)
	s.mu.Unlock()

	if bytesWritten-minSubscriberPosition > threshold {
		s.ScheduleFlushIfNeeded(true)
	}
}
