package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/alarmweave/alarmweave/pkg/eventlog"
	"github.com/alarmweave/alarmweave/pkg/metrics"
	"github.com/alarmweave/alarmweave/pkg/pool"
)

// HealthServer exposes liveness, readiness, and metrics scraping on their
// own mux, independent of the admin Server's routes. Readiness is
// re-derived from the pool and event log on every request and pushed into
// pkg/metrics's component tracker before delegating to its handlers, so a
// /ready hit and an out-of-band /metrics scrape never disagree about
// component state.
type HealthServer struct {
	pool     *pool.Pool
	eventLog *eventlog.Log
	mux      *http.ServeMux
	srv      *http.Server
}

// NewHealthServer builds a HealthServer. A nil pool or eventLog is
// accepted during startup, before both are fully wired; the corresponding
// readiness check reports not-registered until one is supplied.
func NewHealthServer(p *pool.Pool, l *eventlog.Log) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{pool: p, eventLog: l, mux: mux}

	mux.HandleFunc("/health", hs.healthHandler)
	mux.HandleFunc("/ready", hs.readyHandler)
	mux.HandleFunc("/live", func(w http.ResponseWriter, r *http.Request) { metrics.LivenessHandler()(w, r) })
	mux.Handle("/metrics", metrics.Handler())

	return hs
}

// Start runs the health server on addr, blocking until it stops or fails.
func (hs *HealthServer) Start(addr string) error {
	hs.srv = &http.Server{
		Addr:         addr,
		Handler:      hs.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return hs.srv.ListenAndServe()
}

// Stop gracefully shuts the health server down, letting in-flight scrapes
// and probes finish.
func (hs *HealthServer) Stop(ctx context.Context) error {
	if hs.srv == nil {
		return nil
	}
	return hs.srv.Shutdown(ctx)
}

func (hs *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	metrics.HealthHandler()(w, r)
}

func (hs *HealthServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if hs.pool != nil {
		occupied := len(hs.pool.Sessions())
		capacity := hs.pool.Capacity()
		// A fully occupied pool cannot admit a new local session or
		// forward a new remote alarm until eviction frees a slot.
		healthy := occupied < capacity
		metrics.UpdateComponent("pool", healthy, fmt.Sprintf("%d/%d sessions occupied", occupied, capacity))
	}
	if hs.eventLog != nil {
		floor := hs.eventLog.CurrentImportance()
		fills := hs.eventLog.RingFillLevels()
		entry := fills[floor]
		// A saturated lowest-priority ring means every subsequent write
		// must evict or promote before it can land, regardless of that
		// write's own importance — the log is one busy tick away from
		// discarding events rather than retaining them.
		healthy := entry.Capacity == 0 || entry.Fill < entry.Capacity
		metrics.UpdateComponent("eventlog", healthy, fmt.Sprintf("lowest ring (importance %d) at %d/%d bytes", floor, entry.Fill, entry.Capacity))
	}

	metrics.ReadyHandler()(w, r)
}

// GetHandler returns the registered routes, for embedding in a combined
// listener or a test harness.
func (hs *HealthServer) GetHandler() http.Handler { return hs.mux }
