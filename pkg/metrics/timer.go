package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Timer measures elapsed wall-clock time for a single operation and
// reports it to a histogram on completion.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer started. It may be
// called more than once; each call reflects the time up to that call.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed time on h.
func (t *Timer) ObserveDuration(h prometheus.Histogram) {
	h.Observe(t.Duration().Seconds())
}

// ObserveDurationVec records the elapsed time on the vec's series matching
// labelValues.
func (t *Timer) ObserveDurationVec(v *prometheus.HistogramVec, labelValues ...string) {
	v.WithLabelValues(labelValues...).Observe(t.Duration().Seconds())
}
