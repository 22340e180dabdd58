package localnet

import (
	"sync"
	"time"

	"github.com/alarmweave/alarmweave/pkg/transport"
)

// Scheduler arms real time.AfterFunc timers behind transport.Scheduler's
// handle/cancel surface.
type Scheduler struct {
	mu     sync.Mutex
	timers map[transport.TimerHandle]*time.Timer
	next   transport.TimerHandle
}

// NewScheduler returns a Scheduler with no timers armed.
func NewScheduler() *Scheduler {
	return &Scheduler{timers: make(map[transport.TimerHandle]*time.Timer)}
}

// Arm schedules callback to run after d and returns a handle that Cancel
// can later use to stop it before it fires.
func (s *Scheduler) Arm(d time.Duration, callback func()) transport.TimerHandle {
	s.mu.Lock()
	s.next++
	h := s.next
	s.mu.Unlock()

	t := time.AfterFunc(d, func() {
		s.mu.Lock()
		_, stillArmed := s.timers[h]
		delete(s.timers, h)
		s.mu.Unlock()
		if stillArmed {
			callback()
		}
	})

	s.mu.Lock()
	s.timers[h] = t
	s.mu.Unlock()
	return h
}

// Cancel stops the timer identified by h, if it is still pending. Canceling
// an unknown or already-fired handle is a no-op.
func (s *Scheduler) Cancel(h transport.TimerHandle) {
	s.mu.Lock()
	t, ok := s.timers[h]
	delete(s.timers, h)
	s.mu.Unlock()
	if ok {
		t.Stop()
	}
}
