package live

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/kidandcat/communityconnect/internal/metrics"
)

func newTestServer(t *testing.T, h *Hub) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, _ := strconv.ParseInt(r.URL.Query().Get("user"), 10, 64)
		h.ServeWS(w, r, uid)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, user int) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + strconv.Itoa(user)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestBroadcastAndSendToUser(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := metrics.New()
	h := NewHub(nil, m)
	srv := newTestServer(t, h)

	alice := dial(t, srv, 1)
	bob := dial(t, srv, 2)
	require.Eventually(t, func() bool { return h.Count() == 2 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.LiveConnections))
	assert.True(t, h.Connected(1))
	assert.False(t, h.Connected(3))

	assert.Equal(t, 2, h.Broadcast(Event{Type: EventIncident, Data: map[string]string{"id": "traffic:1"}}))
	for _, c := range []*websocket.Conn{alice, bob} {
		ev := readEvent(t, c)
		assert.Equal(t, EventIncident, ev.Type)
		assert.Equal(t, map[string]any{"id": "traffic:1"}, ev.Data)
	}

	assert.Equal(t, 1, h.SendToUser(2, Event{Type: EventMessage, Data: "hi bob"}))
	ev := readEvent(t, bob)
	assert.Equal(t, EventMessage, ev.Type)
	assert.Equal(t, "hi bob", ev.Data)
	assert.Zero(t, h.SendToUser(9, Event{Type: EventMessage}))

	h.Close()
	require.Eventually(t, func() bool { return h.Count() == 0 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.LiveConnections))

	// the server closes the socket
	require.NoError(t, alice.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := alice.ReadMessage()
	assert.Error(t, err)

	alice.Close()
	bob.Close()
	srv.Close()
}

func TestClientDisconnectUnregisters(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := NewHub(nil, nil)
	srv := newTestServer(t, h)

	conn := dial(t, srv, 1)
	require.Eventually(t, func() bool { return h.Count() == 1 }, 5*time.Second, 10*time.Millisecond)

	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()
	require.Eventually(t, func() bool { return h.Count() == 0 }, 5*time.Second, 10*time.Millisecond)
	srv.Close()
}

func TestSlowClientIsDropped(t *testing.T) {
	h := NewHub(nil, nil)
	c := &client{id: "slow", userID: 5, send: make(chan []byte, 1)}
	h.clients[c] = struct{}{}

	assert.Equal(t, 1, h.SendToUser(5, Event{Type: EventNotification}))
	// queue is full now
	assert.Equal(t, 0, h.SendToUser(5, Event{Type: EventNotification}))
	assert.Zero(t, h.Count())

	_, ok := <-c.send
	assert.True(t, ok, "queued message is still readable")
	_, ok = <-c.send
	assert.False(t, ok, "queue closed after drop")
}

func TestClosedHubRefusesClients(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := NewHub(nil, nil)
	h.Close()
	srv := newTestServer(t, h)

	conn := dial(t, srv, 1)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway))
	assert.Zero(t, h.Count())

	conn.Close()
	srv.Close()
}
