// Package agent implements the client side of the exam monitoring
// protocol: a long-lived per-exam channel carrying periodic heartbeats
// and violation reports, with fixed-delay reconnection. The production
// detector runs in the student's browser; this implementation exists for
// load tooling and integration tests, and its wire behavior matches the
// browser agent exactly.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"proctorboard/pkg/types"
)

// Options tune the agent's timing. Zero values take the protocol
// defaults: 30-second heartbeats, 3-second reconnect delay.
type Options struct {
	HeartbeatInterval time.Duration
	ReconnectDelay    time.Duration
}

// Agent is a monitoring client for one (exam, student) pair. It connects,
// heartbeats while connected, and on unexpected closure retries after a
// fixed delay, indefinitely, with no backoff growth. Violations raised
// while disconnected are dropped, never queued; the protocol has no
// replay.
type Agent struct {
	serverURL string
	examID    string
	studentID string
	opts      Options

	events chan *types.ViolationBroadcast

	mu        sync.RWMutex
	writeMu   sync.Mutex
	conn      *websocket.Conn
	connected bool
	closed    bool
	started   bool
}

// New creates an agent. Start must be called before it does anything.
func New(serverURL, examID, studentID string, opts Options) *Agent {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 3 * time.Second
	}
	return &Agent{
		serverURL: serverURL,
		examID:    examID,
		studentID: studentID,
		opts:      opts,
		events:    make(chan *types.ViolationBroadcast, 100),
	}
}

// Start launches the connect/heartbeat/reconnect loop. It returns
// immediately; the loop runs until the context is cancelled or Close is
// called.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return fmt.Errorf("agent already started")
	}
	if a.closed {
		a.mu.Unlock()
		return fmt.Errorf("agent is closed")
	}
	a.started = true
	a.mu.Unlock()

	go a.run(ctx)
	return nil
}

// run is the reconnect loop: dial, hold the session until it drops, wait
// the fixed delay, dial again with the same exam id.
func (a *Agent) run(ctx context.Context) {
	for {
		if a.stopped(ctx) {
			return
		}

		conn, err := a.dial(ctx)
		if err != nil {
			log.Printf("Monitoring connect failed for exam %s: %v", a.examID, err)
			if !a.wait(ctx) {
				return
			}
			continue
		}

		a.setConn(conn)
		a.session(ctx, conn)
		a.setConn(nil)
		_ = conn.Close()

		if a.stopped(ctx) {
			return
		}
		if !a.wait(ctx) {
			return
		}
	}
}

// dial establishes the channel, carrying the exam id as a query
// parameter.
func (a *Agent) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(a.serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}

	u.Path = "/ws"
	query := u.Query()
	query.Set("examId", a.examID)
	u.RawQuery = query.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	return conn, nil
}

// session holds one connection: a read loop forwarding broadcasts and a
// heartbeat ticker. Returns when the connection drops or the agent stops.
func (a *Agent) session(ctx context.Context, conn *websocket.Conn) {
	readDone := make(chan struct{})

	go func() {
		defer close(readDone)
		for {
			var frame types.ViolationBroadcast
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			if frame.Type != types.EventTypeStudentViolation {
				continue
			}
			select {
			case a.events <- &frame:
			default:
				// Consumer is behind; drop rather than stall the channel.
			}
		}
	}()

	// Heartbeat immediately on (re)connect, then on the fixed interval.
	a.sendHeartbeat()

	ticker := time.NewTicker(a.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.sendHeartbeat()
		case <-readDone:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (a *Agent) sendHeartbeat() {
	err := a.writeEvent(&types.Event{
		Type:      types.EventTypeHeartbeat,
		StudentID: a.studentID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		log.Printf("Heartbeat send failed for exam %s: %v", a.examID, err)
	}
}

// ReportViolation sends one violation event. Returns ErrNotConnected when
// the channel is down; the event is lost, matching the browser agent's
// silent data loss window during disconnects.
func (a *Agent) ReportViolation(description string) error {
	return a.writeEvent(&types.Event{
		Type:      types.EventTypeViolation,
		StudentID: a.studentID,
		Violation: description,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// ReportFullscreenExit reports the canonical fullscreen-exit violation.
func (a *Agent) ReportFullscreenExit() error {
	return a.ReportViolation(types.ViolationFullscreenExit)
}

// ReportTabSwitch reports the canonical tab/window-switch violation.
func (a *Agent) ReportTabSwitch() error {
	return a.ReportViolation(types.ViolationTabSwitch)
}

// ReportFocusLoss reports the canonical focus-loss violation.
func (a *Agent) ReportFocusLoss() error {
	return a.ReportViolation(types.ViolationFocusLoss)
}

// Events exposes studentViolation broadcasts received on the channel,
// which is how a teacher-monitor client consumes the feed.
func (a *Agent) Events() <-chan *types.ViolationBroadcast {
	return a.events
}

// IsConnected reports whether the channel is currently open. Connectivity
// state is derived purely from the connection itself; the server sends no
// acknowledgements.
func (a *Agent) IsConnected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.connected
}

// Close stops the agent and closes any open connection. The reconnect
// loop exits; a closed agent cannot be restarted.
func (a *Agent) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	conn := a.conn
	a.conn = nil
	a.connected = false
	a.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (a *Agent) writeEvent(event *types.Event) error {
	a.mu.RLock()
	conn := a.conn
	connected := a.connected
	a.mu.RUnlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// gorilla/websocket allows one concurrent writer; heartbeats and
	// violation reports share this mutex.
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send event: %w", err)
	}
	return nil
}

func (a *Agent) setConn(conn *websocket.Conn) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed && conn != nil {
		// Lost the race with Close; drop the fresh connection.
		_ = conn.Close()
		return
	}
	a.conn = conn
	a.connected = conn != nil
}

func (a *Agent) stopped(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.closed
}

// wait sleeps the fixed reconnect delay; false means the agent stopped
// while waiting.
func (a *Agent) wait(ctx context.Context) bool {
	timer := time.NewTimer(a.opts.ReconnectDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return !a.stopped(ctx)
	case <-ctx.Done():
		return false
	}
}
