package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Client talks to one node's admin API (pkg/api.Server) over JSON.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a Client against an admin API listening at baseURL,
// e.g. "http://127.0.0.1:9090".
func NewClient(baseURL string) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: 10 * time.Second}}
}

// Condition mirrors the server's condition JSON shape.
type Condition struct {
	Source string `json:"source"`
	State  string `json:"state"`
	Byte   uint8  `json:"byte"`
}

// Alarm mirrors the server's alarm JSON shape.
type Alarm struct {
	AlarmCtr       uint8       `json:"alarm_ctr"`
	Where          uint8       `json:"where"`
	Conditions     []Condition `json:"conditions"`
	SessionIDValid bool        `json:"session_id_valid"`
	SessionID      uint32      `json:"session_id,omitempty"`
	ExtEvtSN       uint32      `json:"ext_evt_sn,omitempty"`
}

// Session mirrors one occupied pool slot.
type Session struct {
	Index      int    `json:"index"`
	Originator uint64 `json:"originator"`
	Local      bool   `json:"local"`
	State      string `json:"state"`
	Alarm      Alarm  `json:"current_alarm"`
}

// Event mirrors one fetched event record.
type Event struct {
	Importance   uint8      `json:"importance"`
	EventID      uint64     `json:"event_id"`
	Timestamp    *Timestamp `json:"timestamp"`
	UTCTimestamp *Timestamp `json:"utc_timestamp,omitempty"`

	RelatedImportance uint8  `json:"related_importance,omitempty"`
	RelatedEventID    uint64 `json:"related_event_id,omitempty"`

	// TraitProfileID is a bare number on the default schema, or
	// [profileID, schemaVersion, minCompatVersion] on any other.
	TraitProfileID json.RawMessage `json:"trait_profile_id"`

	ResourceID      uint64 `json:"resource_id,omitempty"`
	TraitInstanceID uint64 `json:"trait_instance_id,omitempty"`

	EventType uint32 `json:"event_type"`

	PayloadB64 string `json:"payload_base64"`
}

// Timestamp mirrors google.golang.org/protobuf/types/known/timestamppb's
// wire shape closely enough to decode the server's JSON without importing
// the protobuf runtime into a client that never builds or inspects a
// protobuf message.
type Timestamp struct {
	Seconds int64 `json:"seconds"`
	Nanos   int32 `json:"nanos"`
}

// FetchEventsResponse mirrors the server's /events response.
type FetchEventsResponse struct {
	RequestID string  `json:"request_id"`
	NextSince uint64  `json:"next_since"`
	Events    []Event `json:"events"`
}

// HushResponse mirrors the server's /hush response.
type HushResponse struct {
	RequestID string `json:"request_id"`
	KeyID     uint16 `json:"key_id"`
	PackedHex string `json:"packed_hex"`
}

// RingSummary mirrors one ring's fill level in the /log response.
type RingSummary struct {
	Priority      uint8 `json:"priority"`
	FillBytes     int   `json:"fill_bytes"`
	CapacityBytes int   `json:"capacity_bytes"`
}

// LogSummary mirrors the server's /log response.
type LogSummary struct {
	CurrentImportance uint8         `json:"current_importance"`
	MaxImportance     uint8         `json:"max_importance"`
	Rings             []RingSummary `json:"rings"`
}

// ListSessions fetches every occupied session pool slot.
func (c *Client) ListSessions(ctx context.Context) ([]Session, error) {
	var out []Session
	if err := c.doGet(ctx, "/sessions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSessionState fetches one pool slot by its numeric index.
func (c *Client) GetSessionState(ctx context.Context, index int) (Session, error) {
	var out Session
	path := "/sessions/" + strconv.Itoa(index)
	if err := c.doGet(ctx, path, nil, &out); err != nil {
		return Session{}, err
	}
	return out, nil
}

// FetchEvents fetches up to limit events of the given importance, starting
// at sinceID.
func (c *Client) FetchEvents(ctx context.Context, importance uint8, sinceID uint64, limit int) (FetchEventsResponse, error) {
	q := url.Values{}
	q.Set("importance", strconv.Itoa(int(importance)))
	q.Set("since", strconv.FormatUint(sinceID, 10))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var out FetchEventsResponse
	if err := c.doGet(ctx, "/events", q, &out); err != nil {
		return FetchEventsResponse{}, err
	}
	return out, nil
}

// LogSummary fetches the event log's current ring fill levels.
func (c *Client) LogSummary(ctx context.Context) (LogSummary, error) {
	var out LogSummary
	if err := c.doGet(ctx, "/log", nil, &out); err != nil {
		return LogSummary{}, err
	}
	return out, nil
}

// FlushState fetches the offload scheduler's current lifecycle state.
func (c *Client) FlushState(ctx context.Context) (string, error) {
	var out map[string]string
	if err := c.doGet(ctx, "/flush", nil, &out); err != nil {
		return "", err
	}
	return out["state"], nil
}

// SendHushRequest asks the node to sign challengeHex (hex-encoded) and
// proximityCode with its configured hush key, returning the packed wire
// bytes hex-encoded. It never submits anything onto the mesh itself.
func (c *Client) SendHushRequest(ctx context.Context, challengeHex string, proximityCode uint32) (HushResponse, error) {
	body, err := json.Marshal(map[string]interface{}{
		"challenge_hex":  challengeHex,
		"proximity_code": proximityCode,
	})
	if err != nil {
		return HushResponse{}, err
	}

	var out HushResponse
	if err := c.doPost(ctx, "/hush", body, &out); err != nil {
		return HushResponse{}, err
	}
	return out, nil
}

func (c *Client) doGet(ctx context.Context, path string, query url.Values, out interface{}) error {
	u := c.baseURL + path
	if query != nil {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) doPost(ctx context.Context, path string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, apiErr.Error)
		}
		return fmt.Errorf("%s: %s", resp.Status, string(data))
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

// HealthProbe dials target's grpc.health.v1 endpoint with insecure
// transport credentials and checks the named service, empty string
// meaning the engine's overall status. It is a thin, genuinely functional
// use of google.golang.org/grpc distinct from the JSON client above: some
// deployments front alarmweaved with a service mesh that expects native
// gRPC health probing instead of an HTTP /ready hit, and the health
// checking protocol's stubs ship inside the grpc module itself, needing no
// generated code of our own.
func HealthProbe(ctx context.Context, target, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("dial %s: %w", target, err)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.Status, nil
}
