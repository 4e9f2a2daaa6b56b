package web

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"guestbook/models"
)

// newHubServer upgrades every request into a hub-registered connection and
// hands the server-side conns back for the test to manipulate.
func newHubServer(t *testing.T) (*Hub, *httptest.Server, chan *websocket.Conn) {
	t.Helper()
	hub := NewHub()
	conns := make(chan *websocket.Conn, 4)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Add(conn)
		conns <- conn
	}))
	t.Cleanup(ts.Close)
	return hub, ts, conns
}

func dialWS(t *testing.T, rawURL string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(rawURL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readRecord(t *testing.T, conn *websocket.Conn) models.Record {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var rec models.Record
	require.NoError(t, conn.ReadJSON(&rec))
	return rec
}

func TestBroadcastReachesClient(t *testing.T) {
	hub, ts, conns := newHubServer(t)
	client := dialWS(t, ts.URL)
	<-conns

	want := models.Record{MessageID: "1", Username: "Alice", Message: "Hi", Timestamp: "2024-01-01 00:00:00.000000"}
	hub.Broadcast(want)

	require.Equal(t, want, readRecord(t, client))
}

func TestBroadcastEvictsFailedClientOnly(t *testing.T) {
	hub, ts, conns := newHubServer(t)

	healthyClient := dialWS(t, ts.URL)
	<-conns
	dialWS(t, ts.URL)
	failing := <-conns
	require.Equal(t, 2, hub.Count())

	// Poison the second conn so its next write fails.
	require.NoError(t, failing.SetWriteDeadline(time.Now().Add(-time.Second)))

	want := models.Record{MessageID: "1", Username: "Alice", Message: "Hi", Timestamp: "2024-01-01 00:00:00.000000"}
	hub.Broadcast(want)

	require.Equal(t, 1, hub.Count())
	require.Equal(t, want, readRecord(t, healthyClient))
	// The eviction already removed it; a second Remove must be a no-op.
	require.False(t, hub.Remove(failing))
}

func TestRemoveIsSingleShot(t *testing.T) {
	hub, ts, conns := newHubServer(t)
	dialWS(t, ts.URL)
	conn := <-conns

	require.True(t, hub.Remove(conn))
	require.False(t, hub.Remove(conn))
	require.Zero(t, hub.Count())
}

func TestEvictedClientDecrementsGaugeOnce(t *testing.T) {
	srv := newTestServer(t, &mockForwarder{}, &mockReader{})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	before := wsGauge(t, ts.URL)
	dialWS(t, ts.URL+"/ws")
	require.Eventually(t, func() bool { return srv.hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, before+1, wsGauge(t, ts.URL))

	srv.hub.mu.RLock()
	var sconn *websocket.Conn
	for c := range srv.hub.clients {
		sconn = c
	}
	srv.hub.mu.RUnlock()
	require.NoError(t, sconn.SetWriteDeadline(time.Now().Add(-time.Second)))

	srv.Hub().Broadcast(models.Record{MessageID: "1", Username: "Alice", Message: "Hi", Timestamp: "2024-01-01 00:00:00.000000"})
	require.Eventually(t, func() bool { return srv.hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)

	// Give the reader goroutine's deferred Remove time to run; it must not
	// decrement a second time.
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, before, wsGauge(t, ts.URL))
}

func TestFeedRedeliversNothingAcrossTimestampTie(t *testing.T) {
	hub, ts, conns := newHubServer(t)
	client := dialWS(t, ts.URL)
	<-conns

	tie := "2024-01-01 00:00:00.000000"
	all := []models.Record{
		{MessageID: "a", Username: "u", Message: "1", Timestamp: tie},
		{MessageID: "b", Username: "u", Message: "2", Timestamp: tie},
	}

	// First poll sees a page cut in the middle of the tie.
	reader := &mockReader{recent: all[:1]}
	f := NewFeed(reader, hub, time.Second)
	f.lastTS = ""
	f.poll(context.Background())
	require.Equal(t, "a", readRecord(t, client).MessageID)

	// The tail of the tie appears on the next poll and only it is sent.
	reader.recent = all
	f.poll(context.Background())
	require.Equal(t, "b", readRecord(t, client).MessageID)

	f.poll(context.Background())
	require.NoError(t, client.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	var extra models.Record
	require.Error(t, client.ReadJSON(&extra), "no record may be delivered twice")
}

func wsGauge(t *testing.T, baseURL string) int {
	t.Helper()
	resp, err := http.Get(baseURL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	for _, line := range strings.Split(string(body), "\n") {
		if v, ok := strings.CutPrefix(line, "guestbook_ws_connections "); ok {
			n, err := strconv.Atoi(v)
			require.NoError(t, err)
			return n
		}
	}
	t.Fatal("ws connections gauge not found in exposition")
	return 0
}
