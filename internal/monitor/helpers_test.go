package monitor

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"proctorboard/pkg/types"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newTestConn creates a real WebSocket pair: the server side wrapped in a
// Connection (as the registry holds it) and the raw client side for
// observing deliveries.
func newTestConn(t *testing.T, examID string) (*Connection, *websocket.Conn) {
	t.Helper()

	serverCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverCh <- c
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial test server: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	var serverSide *websocket.Conn
	select {
	case serverSide = <-serverCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server-side connection")
	}

	conn := NewConnection(serverSide, examID, 100)
	t.Cleanup(func() { _ = conn.Close() })

	return conn, client
}

// readBroadcast reads one studentViolation frame from a client.
func readBroadcast(t *testing.T, client *websocket.Conn) *types.ViolationBroadcast {
	t.Helper()

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame types.ViolationBroadcast
	if err := client.ReadJSON(&frame); err != nil {
		t.Fatalf("failed to read broadcast: %v", err)
	}
	return &frame
}

// expectNoMessage asserts no frame arrives on a client within the window.
func expectNoMessage(t *testing.T, client *websocket.Conn) {
	t.Helper()

	_ = client.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if _, _, err := client.ReadMessage(); err == nil {
		t.Fatal("expected no message, but one was delivered")
	}
}
