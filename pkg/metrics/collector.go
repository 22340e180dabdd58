package metrics

import (
	"fmt"
	"time"
)

// SessionSource is the subset of pool.Pool the collector needs. Declared
// here rather than imported directly so this package has no dependency on
// pkg/pool (which in turn depends on pkg/metrics for counter increments).
type SessionSource interface {
	Capacity() int
	SessionStates() map[string]int
}

// RingSource is the subset of eventlog.Log the collector needs.
type RingSource interface {
	RingFillLevels() map[uint8]struct{ Fill, Capacity int }
}

// Collector polls the session pool and event log on a ticker and updates
// the corresponding gauges.
type Collector struct {
	sessions SessionSource
	rings    RingSource
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector builds a Collector. A zero interval defaults to 15s.
func NewCollector(sessions SessionSource, rings RingSource, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{sessions: sessions, rings: rings, interval: interval, stopCh: make(chan struct{})}
}

// Start begins polling on its own goroutine.
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts polling.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	if c.sessions != nil {
		SessionsCapacity.Set(float64(c.sessions.Capacity()))
		active := 0
		for state, count := range c.sessions.SessionStates() {
			SessionsByState.WithLabelValues(state).Set(float64(count))
			active += count
		}
		SessionsActive.Set(float64(active))
	}

	if c.rings != nil {
		for priority, level := range c.rings.RingFillLevels() {
			label := fmt.Sprintf("%d", priority)
			RingFillBytes.WithLabelValues(label).Set(float64(level.Fill))
			RingCapacityBytes.WithLabelValues(label).Set(float64(level.Capacity))
		}
	}
}
