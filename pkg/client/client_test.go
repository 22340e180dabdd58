package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alarmweave/alarmweave/pkg/alarmcodec"
	"github.com/alarmweave/alarmweave/pkg/alarmtypes"
	"github.com/alarmweave/alarmweave/pkg/api"
	"github.com/alarmweave/alarmweave/pkg/config"
	"github.com/alarmweave/alarmweave/pkg/eventlog"
	"github.com/alarmweave/alarmweave/pkg/flush"
	"github.com/alarmweave/alarmweave/pkg/pool"
	"github.com/alarmweave/alarmweave/pkg/security"
	"github.com/alarmweave/alarmweave/pkg/session"
	"github.com/alarmweave/alarmweave/pkg/transport"
	"github.com/alarmweave/alarmweave/pkg/transport/transporttest"
)

type noopDelegate struct{}

func (noopDelegate) OnAlarmClientStateChange(s *session.Session) {}
func (noopDelegate) OnNewRemoteAlarmDropped(a alarmtypes.Alarm)  {}
func (noopDelegate) CompareSeverity(a, b alarmtypes.Alarm) int   { return 0 }
func (noopDelegate) OnHushRequest(ex transport.Exchange, proximityCode uint32, sig [20]byte) {
}

func newTestAPIServer(t *testing.T) *httptest.Server {
	t.Helper()

	p := pool.New(0, noopDelegate{}, &transporttest.Dialer{}, transporttest.NewScheduler(), config.DefaultEngine())
	raw, err := alarmcodec.Pack(alarmtypes.Alarm{
		AlarmCtr:       1,
		Conditions:     []alarmtypes.Condition{alarmtypes.NewCondition(alarmtypes.SourceCO, alarmtypes.StateAlarmNonHushable)},
		Where:          2,
		SessionIDValid: true,
		SessionID:      0xABCD,
		ExtEvtSN:       1,
	})
	require.NoError(t, err)
	require.NoError(t, p.Dispatch(raw, transport.PacketInfo{SourceNode: 0x02}))

	l, err := eventlog.NewLog([]config.RingLayout{{Priority: 1, CapacityBytes: 512}}, nil)
	require.NoError(t, err)
	_, err = l.AddEvent(1, 2000, 0, false, eventlog.EventOptions{}, []byte("x"))
	require.NoError(t, err)

	f := flush.New(config.DefaultFlush(), transporttest.NewScheduler())
	signer, err := security.NewSigner(3, []byte("sixteen-byte-key"))
	require.NoError(t, err)

	srv := api.NewServer(p, l, f, signer)
	return httptest.NewServer(srv.Mux())
}

func TestClientListAndGetSession(t *testing.T) {
	ts := newTestAPIServer(t)
	defer ts.Close()

	c := NewClient(ts.URL)
	sessions, err := c.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "co", sessions[0].Alarm.Conditions[0].Source)

	got, err := c.GetSessionState(context.Background(), sessions[0].Index)
	require.NoError(t, err)
	assert.Equal(t, sessions[0].Originator, got.Originator)

	_, err = c.GetSessionState(context.Background(), 99)
	assert.Error(t, err)
}

func TestClientFetchEvents(t *testing.T) {
	ts := newTestAPIServer(t)
	defer ts.Close()

	c := NewClient(ts.URL)
	resp, err := c.FetchEvents(context.Background(), 1, 0, 10)
	require.NoError(t, err)
	require.Len(t, resp.Events, 1)
	assert.EqualValues(t, 1, resp.Events[0].Importance)
}

func TestClientSendHushRequest(t *testing.T) {
	ts := newTestAPIServer(t)
	defer ts.Close()

	c := NewClient(ts.URL)
	resp, err := c.SendHushRequest(context.Background(), "aa55aa55", 7)
	require.NoError(t, err)
	assert.EqualValues(t, 3, resp.KeyID)
	assert.NotEmpty(t, resp.PackedHex)
}

func TestClientLogSummaryAndFlushState(t *testing.T) {
	ts := newTestAPIServer(t)
	defer ts.Close()

	c := NewClient(ts.URL)
	summary, err := c.LogSummary(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, summary.CurrentImportance)

	state, err := c.FlushState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "idle", state)
}

func TestClientErrorResponseSurfacesMessage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sessions/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"no occupied slot at index 5"}`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c := NewClient(ts.URL)
	_, err := c.GetSessionState(context.Background(), 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no occupied slot at index 5")
}
