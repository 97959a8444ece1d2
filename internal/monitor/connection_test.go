package monitor

import (
	"errors"
	"testing"
	"time"

	"proctorboard/pkg/types"
)

func TestConnection_WriteJSONDelivers(t *testing.T) {
	conn, client := newTestConn(t, "exam1")

	frame := types.NewViolationBroadcast("s1", types.ViolationFocusLoss, testTime())
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatalf("failed to write frame: %v", err)
	}

	got := readBroadcast(t, client)
	if got.StudentID != "s1" || got.Violation != types.ViolationFocusLoss {
		t.Errorf("got frame %+v", got)
	}
}

func TestConnection_WriteAfterClose(t *testing.T) {
	conn, _ := newTestConn(t, "exam1")

	if err := conn.Close(); err != nil {
		t.Fatalf("failed to close connection: %v", err)
	}
	if conn.IsOpen() {
		t.Error("connection reports open after close")
	}

	err := conn.WriteJSON(types.NewViolationBroadcast("s1", types.ViolationTabSwitch, testTime()))
	if !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("got %v writing to closed connection, want ErrConnectionClosed", err)
	}
}

func TestConnection_CloseIdempotent(t *testing.T) {
	conn, _ := newTestConn(t, "exam1")

	if err := conn.Close(); err != nil {
		t.Fatalf("first close failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
}

func TestConnection_TransportFailureClosesConnection(t *testing.T) {
	conn, _ := newTestConn(t, "exam1")

	// Kill the socket underneath the wrapper, as a dying peer would,
	// without going through Close.
	_ = conn.conn.Close()

	frame := types.NewViolationBroadcast("s1", types.ViolationTabSwitch, testTime())
	_ = conn.WriteJSON(frame) // queued; the writer trips on the dead socket

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && conn.IsOpen() {
		time.Sleep(10 * time.Millisecond)
	}
	if conn.IsOpen() {
		t.Fatal("connection reports open after transport failure")
	}

	// A later write must fail cleanly, never panic.
	if err := conn.WriteJSON(frame); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("got %v writing after transport failure, want ErrConnectionClosed", err)
	}
}

func TestConnection_WriteUnmarshalableValue(t *testing.T) {
	conn, _ := newTestConn(t, "exam1")

	err := conn.WriteJSON(make(chan int))
	if !errors.Is(err, ErrInvalidJSON) {
		t.Errorf("got %v for unmarshalable value, want ErrInvalidJSON", err)
	}
}
