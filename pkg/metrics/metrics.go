package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SessionsActive is the number of occupied slots in the session pool.
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "alarmweave_sessions_active",
			Help: "Number of occupied session pool slots",
		},
	)

	SessionsCapacity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "alarmweave_sessions_capacity",
			Help: "Total session pool slot count",
		},
	)

	SessionsByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "alarmweave_sessions_by_state",
			Help: "Number of sessions currently in each state",
		},
		[]string{"state"},
	)

	AdmissionDropsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "alarmweave_admission_drops_total",
			Help: "Total incoming alarms dropped for lack of a free or evictable session slot",
		},
	)

	EvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "alarmweave_evictions_total",
			Help: "Total remote sessions evicted by severity-based admission",
		},
	)

	TrickleSuppressionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "alarmweave_trickle_suppressions_total",
			Help: "Total duplicate alarm retransmissions suppressed by an exchange",
		},
	)

	RingFillBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "alarmweave_ring_fill_bytes",
			Help: "Bytes currently stored in an event log ring",
		},
		[]string{"priority"},
	)

	RingCapacityBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "alarmweave_ring_capacity_bytes",
			Help: "Configured byte capacity of an event log ring",
		},
		[]string{"priority"},
	)

	RingEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "alarmweave_ring_evictions_total",
			Help: "Total event records dropped permanently from their final-destination ring",
		},
	)

	RingPromotionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "alarmweave_ring_promotions_total",
			Help: "Total event records promoted from one ring into the next",
		},
	)

	FlushState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "alarmweave_flush_state",
			Help: "Current offload flush state (0=Idle, 1=InProgress, 2=Holdoff, 3=Shutdown)",
		},
	)

	EventLogFetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "alarmweave_eventlog_fetch_duration_seconds",
			Help:    "Time taken by fetch_events_since calls",
			Buckets: prometheus.DefBuckets,
		},
	)

	EventLogEnsureSpaceDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "alarmweave_eventlog_ensure_space_duration_seconds",
			Help:    "Time taken by ensure_space calls",
			Buckets: prometheus.DefBuckets,
		},
	)

	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alarmweave_api_requests_total",
			Help: "Total admin API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "alarmweave_api_request_duration_seconds",
			Help:    "Admin API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(
		SessionsActive,
		SessionsCapacity,
		SessionsByState,
		AdmissionDropsTotal,
		EvictionsTotal,
		TrickleSuppressionsTotal,
		RingFillBytes,
		RingCapacityBytes,
		RingEvictionsTotal,
		RingPromotionsTotal,
		FlushState,
		EventLogFetchDuration,
		EventLogEnsureSpaceDuration,
		APIRequestsTotal,
		APIRequestDuration,
	)
}

// Handler returns the Prometheus HTTP scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
