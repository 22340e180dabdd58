package api

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alarmweave/alarmweave/pkg/alarmerr"
	"github.com/alarmweave/alarmweave/pkg/alarmtypes"
	"github.com/alarmweave/alarmweave/pkg/eventlog"
	"github.com/alarmweave/alarmweave/pkg/flush"
	"github.com/alarmweave/alarmweave/pkg/hush"
	"github.com/alarmweave/alarmweave/pkg/log"
	"github.com/alarmweave/alarmweave/pkg/metrics"
	"github.com/alarmweave/alarmweave/pkg/pool"
	"github.com/alarmweave/alarmweave/pkg/security"
	"github.com/alarmweave/alarmweave/pkg/session"
	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Server is the admin/introspection surface: read access to the session
// pool and event log, plus the ability to mint and hand back a signed hush
// request for out-of-band transmission. It deliberately never touches the
// transport layer itself — submitting a hush request onto the mesh is the
// caller's job once this returns the packed bytes.
type Server struct {
	pool     *pool.Pool
	eventLog *eventlog.Log
	flush    *flush.Scheduler
	signer   *security.Signer

	mux *http.ServeMux
	srv *http.Server
}

// NewServer builds a Server and registers its routes on a dedicated mux.
// signer may be nil, in which case SendHushRequest reports unavailable.
func NewServer(p *pool.Pool, l *eventlog.Log, f *flush.Scheduler, signer *security.Signer) *Server {
	s := &Server{pool: p, eventLog: l, flush: f, signer: signer, mux: http.NewServeMux()}

	s.mux.HandleFunc("/sessions", s.handleListSessions)
	s.mux.HandleFunc("/sessions/", s.handleGetSessionState)
	s.mux.HandleFunc("/events", s.handleFetchEvents)
	s.mux.HandleFunc("/log", s.handleLogSummary)
	s.mux.HandleFunc("/flush", s.handleFlushState)
	s.mux.HandleFunc("/hush", s.handleSendHushRequest)

	metrics.RegisterComponent("api", true, "routes registered")
	return s
}

// Start begins serving on addr, blocking until the server stops or fails.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	apiLogger := log.WithComponent("api")
	apiLogger.Info().Str("addr", addr).Msg("admin API listening")
	return s.srv.ListenAndServe()
}

// Stop gracefully shuts the server down, honoring ctx's deadline.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// Mux returns the registered routes, for embedding in a test harness or a
// combined listener alongside the health server.
func (s *Server) Mux() http.Handler { return s.mux }

type conditionJSON struct {
	Source string `json:"source"`
	State  string `json:"state"`
	Byte   uint8  `json:"byte"`
}

func conditionToJSON(c alarmtypes.Condition) conditionJSON {
	if !c.IsValid() {
		return conditionJSON{Source: "invalid", State: "invalid", Byte: uint8(c)}
	}
	return conditionJSON{Source: c.Source().String(), State: c.State().String(), Byte: uint8(c)}
}

type alarmJSON struct {
	AlarmCtr       uint8           `json:"alarm_ctr"`
	Where          uint8           `json:"where"`
	Conditions     []conditionJSON `json:"conditions"`
	SessionIDValid bool            `json:"session_id_valid"`
	SessionID      uint32          `json:"session_id,omitempty"`
	ExtEvtSN       uint32          `json:"ext_evt_sn,omitempty"`
}

func alarmToJSON(a alarmtypes.Alarm) alarmJSON {
	out := alarmJSON{
		AlarmCtr:       a.AlarmCtr,
		Where:          a.Where,
		Conditions:     make([]conditionJSON, len(a.Conditions)),
		SessionIDValid: a.SessionIDValid,
		SessionID:      a.SessionID,
		ExtEvtSN:       a.ExtEvtSN,
	}
	for i, c := range a.Conditions {
		out.Conditions[i] = conditionToJSON(c)
	}
	return out
}

type sessionJSON struct {
	Index      int       `json:"index"`
	Originator uint64    `json:"originator"`
	Local      bool      `json:"local"`
	State      string    `json:"state"`
	Alarm      alarmJSON `json:"current_alarm"`
}

func sessionToJSON(s *session.Session) sessionJSON {
	return sessionJSON{
		Index:      s.Idx,
		Originator: s.Originator,
		Local:      s.IsLocal,
		State:      s.State().String(),
		Alarm:      alarmToJSON(s.CurrentAlarm()),
	}
}

// handleListSessions serves GET /sessions: every occupied pool slot.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	timer := metrics.NewTimer()
	sessions := s.pool.Sessions()
	out := make([]sessionJSON, len(sessions))
	for i, sess := range sessions {
		out[i] = sessionToJSON(sess)
	}
	timer.ObserveDurationVec(metrics.APIRequestDuration, "ListSessions")
	metrics.APIRequestsTotal.WithLabelValues("ListSessions", "success").Inc()
	writeJSON(w, http.StatusOK, out)
}

// handleGetSessionState serves GET /sessions/{index}: one pool slot by its
// numeric index.
func (s *Server) handleGetSessionState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	idxStr := strings.TrimPrefix(r.URL.Path, "/sessions/")
	idx, err := strconv.Atoi(idxStr)
	if err != nil {
		metrics.APIRequestsTotal.WithLabelValues("GetSessionState", "error").Inc()
		httpError(w, http.StatusBadRequest, "session index must be an integer")
		return
	}

	for _, sess := range s.pool.Sessions() {
		if sess.Idx == idx {
			metrics.APIRequestsTotal.WithLabelValues("GetSessionState", "success").Inc()
			writeJSON(w, http.StatusOK, sessionToJSON(sess))
			return
		}
	}
	metrics.APIRequestsTotal.WithLabelValues("GetSessionState", "error").Inc()
	httpError(w, http.StatusNotFound, fmt.Sprintf("no occupied slot at index %d", idx))
}

// handleLogSummary serves GET /log: the importance range the event log
// currently accepts and each ring's fill level.
func (s *Server) handleLogSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	fill := s.eventLog.RingFillLevels()
	rings := make([]ringSummaryJSON, 0, len(fill))
	for priority, lvl := range fill {
		rings = append(rings, ringSummaryJSON{Priority: priority, FillBytes: lvl.Fill, CapacityBytes: lvl.Capacity})
	}
	metrics.APIRequestsTotal.WithLabelValues("LogSummary", "success").Inc()
	writeJSON(w, http.StatusOK, logSummaryJSON{
		CurrentImportance: s.eventLog.CurrentImportance(),
		MaxImportance:     s.eventLog.MaxImportance(),
		Rings:             rings,
	})
}

type ringSummaryJSON struct {
	Priority      uint8 `json:"priority"`
	FillBytes     int   `json:"fill_bytes"`
	CapacityBytes int   `json:"capacity_bytes"`
}

type logSummaryJSON struct {
	CurrentImportance uint8             `json:"current_importance"`
	MaxImportance     uint8             `json:"max_importance"`
	Rings             []ringSummaryJSON `json:"rings"`
}

// handleFlushState serves GET /flush: the offload scheduler's lifecycle
// state, for an operator confirming an upload is actually progressing.
func (s *Server) handleFlushState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if s.flush == nil {
		httpError(w, http.StatusServiceUnavailable, "flush scheduler not configured")
		return
	}
	metrics.APIRequestsTotal.WithLabelValues("FlushState", "success").Inc()
	writeJSON(w, http.StatusOK, map[string]string{"state": s.flush.State().String()})
}

// collectingWriter is an eventlog.EventWriter that accumulates records
// in memory instead of re-packing them into wire bytes, for handlers that
// want to marshal them straight to JSON.
type collectingWriter struct {
	limit   int
	records []eventlog.EventRecord
}

func (w *collectingWriter) WriteEvent(rec eventlog.EventRecord) error {
	if len(w.records) >= w.limit {
		return alarmerr.ErrBufferTooSmall
	}
	w.records = append(w.records, rec)
	return nil
}

const defaultFetchLimit = 100

type eventJSON struct {
	Importance   uint8                  `json:"importance"`
	EventID      uint64                 `json:"event_id"`
	Timestamp    *timestamppb.Timestamp `json:"timestamp"`
	UTCTimestamp *timestamppb.Timestamp `json:"utc_timestamp,omitempty"`

	RelatedImportance uint8  `json:"related_importance,omitempty"`
	RelatedEventID    uint64 `json:"related_event_id,omitempty"`

	TraitProfileID json.RawMessage `json:"trait_profile_id"`

	ResourceID      uint64 `json:"resource_id,omitempty"`
	TraitInstanceID uint64 `json:"trait_instance_id,omitempty"`

	EventType uint32 `json:"event_type"`

	PayloadB64 string `json:"payload_base64"`
}

// traitProfileIDJSON mirrors the original TLV encoding's scalar-or-array
// choice: a record on the default schema (version 1, min-compatible
// version 1) encodes its trait profile id as a bare number; any other
// schema version encodes it as [profileID, schemaVersion, minCompatVersion].
func traitProfileIDJSON(rec eventlog.EventRecord) json.RawMessage {
	if rec.SchemaVersion == 1 && rec.MinCompatVersion == 1 {
		b, _ := json.Marshal(rec.ProfileID)
		return b
	}
	b, _ := json.Marshal([]uint32{rec.ProfileID, uint32(rec.SchemaVersion), uint32(rec.MinCompatVersion)})
	return b
}

// eventToJSON renders a fetched event record. EventID is only populated
// for the first event of a retrieval window, mirroring the wire
// convention BufferWriter encodes (*eventlog.BufferWriter.WriteEvent):
// events after the first are identified purely by their position in the
// response's Events slice.
func eventToJSON(rec eventlog.EventRecord) eventJSON {
	out := eventJSON{
		Importance:     rec.Importance,
		EventID:        rec.EventID,
		Timestamp:      timestamppb.New(time.UnixMilli(rec.Timestamp)),
		TraitProfileID: traitProfileIDJSON(rec),
		EventType:      rec.EventType,
		PayloadB64:     base64.StdEncoding.EncodeToString(rec.Payload),
	}
	if rec.HasUTC {
		out.UTCTimestamp = timestamppb.New(time.UnixMilli(rec.UTCTimestamp))
	}
	if rec.HasRelatedEvent() {
		out.RelatedImportance = rec.RelatedImportance
		out.RelatedEventID = rec.RelatedEventID
	}
	if rec.HasResource() {
		out.ResourceID = rec.ResourceID
		out.TraitInstanceID = rec.TraitInstanceID
	}
	return out
}

type fetchEventsResponse struct {
	RequestID string      `json:"request_id"`
	NextSince uint64      `json:"next_since"`
	Events    []eventJSON `json:"events"`
}

// handleFetchEvents serves GET /events?importance=N&since=ID&limit=N,
// draining fetch_events_since into a JSON array instead of the wire
// buffer format a real subscriber would use.
func (s *Server) handleFetchEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	importance, err := parseUint8Query(r, "importance")
	if err != nil {
		metrics.APIRequestsTotal.WithLabelValues("FetchEvents", "error").Inc()
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	since := parseUint64Query(r, "since", 0)
	limit := parseIntQuery(r, "limit", defaultFetchLimit)

	cw := &collectingWriter{limit: limit}
	timer := metrics.NewTimer()
	err = s.eventLog.FetchEventsSince(cw, importance, &since)
	timer.ObserveDurationVec(metrics.APIRequestDuration, "FetchEvents")

	if err != nil && !errors.Is(err, alarmerr.ErrEndOfStream) {
		metrics.APIRequestsTotal.WithLabelValues("FetchEvents", "error").Inc()
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := fetchEventsResponse{
		RequestID: uuid.NewString(),
		NextSince: since,
		Events:    make([]eventJSON, len(cw.records)),
	}
	for i, rec := range cw.records {
		resp.Events[i] = eventToJSON(rec)
	}
	metrics.APIRequestsTotal.WithLabelValues("FetchEvents", "success").Inc()
	writeJSON(w, http.StatusOK, resp)
}

type hushRequestBody struct {
	ChallengeHex  string `json:"challenge_hex"`
	ProximityCode uint32 `json:"proximity_code"`
}

type hushRequestResponse struct {
	RequestID string `json:"request_id"`
	KeyID     uint16 `json:"key_id"`
	PackedHex string `json:"packed_hex"`
}

// handleSendHushRequest serves POST /hush: it signs the given challenge
// and proximity code with this node's configured key and hands back the
// packed wire bytes, hex-encoded, for the caller to submit onto the mesh.
// It never transmits anything itself.
func (s *Server) handleSendHushRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.signer == nil {
		metrics.APIRequestsTotal.WithLabelValues("SendHushRequest", "error").Inc()
		httpError(w, http.StatusServiceUnavailable, "hush signer not configured on this node")
		return
	}

	var body hushRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		metrics.APIRequestsTotal.WithLabelValues("SendHushRequest", "error").Inc()
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	challenge, err := hex.DecodeString(body.ChallengeHex)
	if err != nil {
		metrics.APIRequestsTotal.WithLabelValues("SendHushRequest", "error").Inc()
		httpError(w, http.StatusBadRequest, "challenge_hex must be hex-encoded")
		return
	}

	sig := s.signer.Sign(challenge, body.ProximityCode)
	req := hush.Request{
		ProximityCode: body.ProximityCode,
		KeyID:         s.signer.KeyID(),
		Signature:     sig,
		Signed:        true,
	}
	packed, err := hush.PackRequest(req)
	if err != nil {
		metrics.APIRequestsTotal.WithLabelValues("SendHushRequest", "error").Inc()
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}

	metrics.APIRequestsTotal.WithLabelValues("SendHushRequest", "success").Inc()
	writeJSON(w, http.StatusOK, hushRequestResponse{
		RequestID: uuid.NewString(),
		KeyID:     req.KeyID,
		PackedHex: hex.EncodeToString(packed),
	})
}

func methodNotAllowed(w http.ResponseWriter) {
	httpError(w, http.StatusMethodNotAllowed, "method not allowed")
}

type errorResponse struct {
	Error string `json:"error"`
}

func httpError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseUint8Query(r *http.Request, key string) (uint8, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	v, err := strconv.ParseUint(raw, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer in [0,255]: %w", key, err)
	}
	return uint8(v), nil
}

func parseUint64Query(r *http.Request, key string, def uint64) uint64 {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return def
	}
	return v
}

func parseIntQuery(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
