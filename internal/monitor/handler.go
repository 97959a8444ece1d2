package monitor

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"proctorboard/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is the deployment's concern; the channel itself
		// is exam-scoped, not authenticated.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Handler upgrades monitoring connections and feeds their frames into the
// hub. A connection is bound to one exam for its whole lifetime via the
// examId query parameter; students and teacher monitors connect the same
// way and the transport does not distinguish them.
type Handler struct {
	registry     *Registry
	hub          *Hub
	pingInterval time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration
	bufferSize   int
}

// NewHandler creates a WebSocket handler. Zero durations fall back to the
// keepalive defaults (30s pings, 60s read deadline, 10s control writes).
func NewHandler(registry *Registry, hub *Hub, pingInterval, readTimeout, writeTimeout time.Duration, bufferSize int) *Handler {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	if readTimeout <= 0 {
		readTimeout = 60 * time.Second
	}
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &Handler{
		registry:     registry,
		hub:          hub,
		pingInterval: pingInterval,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		bufferSize:   bufferSize,
	}
}

// HandleWebSocket handles connection requests on /ws. Parameter validation
// happens before the upgrade so bad requests get proper HTTP errors.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	examID := r.URL.Query().Get("examId")
	if examID == "" {
		http.Error(w, "Missing required query parameter: examId", http.StatusBadRequest)
		return
	}

	if !types.IsValidID(examID) {
		http.Error(w, "Invalid examId format", http.StatusBadRequest)
		return
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	conn := NewConnection(wsConn, examID, h.bufferSize)
	h.registry.Register(examID, conn)

	go h.handleConnection(conn)
}

// handleConnection owns the connection's read side for its lifetime.
// Every exit path unregisters the connection; leaving it registered would
// leak memory and risk sends to a dead peer.
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		h.registry.Unregister(conn.ExamID(), conn)
		_ = conn.Close()
	}()

	// Ping/pong keepalive: read deadline refreshed on pong, pings on a
	// fixed interval.
	if err := conn.conn.SetReadDeadline(time.Now().Add(h.readTimeout)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	})

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(h.writeTimeout)); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error on exam %s: %v", conn.ExamID(), err)
			}
			break
		}

		if messageType != websocket.TextMessage {
			continue
		}

		if err := h.hub.Submit(conn.ExamID(), data); err != nil {
			// Dropped frame; the protocol is best-effort and has no
			// negative-acknowledgement, so the connection stays open.
			log.Printf("Dropped frame on exam %s: %v", conn.ExamID(), err)
		}
	}
}
