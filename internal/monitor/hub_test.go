package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"proctorboard/pkg/types"
)

func TestHub_StartStopLifecycle(t *testing.T) {
	hub := NewHub(NewRouter(NewRegistry(), newFakeStore()))

	if err := hub.Stop(); !errors.Is(err, ErrHubNotRunning) {
		t.Errorf("got %v stopping idle hub, want ErrHubNotRunning", err)
	}

	if err := hub.Start(context.Background()); err != nil {
		t.Fatalf("failed to start hub: %v", err)
	}
	if err := hub.Start(context.Background()); !errors.Is(err, ErrHubAlreadyRunning) {
		t.Errorf("got %v starting running hub, want ErrHubAlreadyRunning", err)
	}

	if err := hub.Stop(); err != nil {
		t.Fatalf("failed to stop hub: %v", err)
	}
	if err := hub.Stop(); !errors.Is(err, ErrHubNotRunning) {
		t.Errorf("got %v stopping stopped hub, want ErrHubNotRunning", err)
	}
}

func TestHub_RestartAfterStop(t *testing.T) {
	store := newFakeStore()
	store.seedSession("exam1", "s1")

	registry := NewRegistry()
	teacherConn, teacherClient := newTestConn(t, "exam1")
	registry.Register("exam1", teacherConn)

	hub := NewHub(NewRouter(registry, store))
	if err := hub.Start(context.Background()); err != nil {
		t.Fatalf("failed to start hub: %v", err)
	}
	if err := hub.Stop(); err != nil {
		t.Fatalf("failed to stop hub: %v", err)
	}

	// A restarted hub dispatches again; it must not accept frames into a
	// dead loop.
	if err := hub.Start(context.Background()); err != nil {
		t.Fatalf("failed to restart hub: %v", err)
	}
	defer hub.Stop()

	err := hub.Submit("exam1",
		[]byte(`{"type":"violation","studentId":"s1","violation":"Window lost focus","timestamp":"2025-03-14T09:30:00Z"}`))
	if err != nil {
		t.Fatalf("failed to submit after restart: %v", err)
	}

	if frame := readBroadcast(t, teacherClient); frame.Violation != types.ViolationFocusLoss {
		t.Errorf("got violation %q after restart, want %q", frame.Violation, types.ViolationFocusLoss)
	}
}

func TestHub_SubmitRequiresRunningHub(t *testing.T) {
	hub := NewHub(NewRouter(NewRegistry(), newFakeStore()))

	err := hub.Submit("exam1", []byte(`{"type":"heartbeat","studentId":"s1"}`))
	if !errors.Is(err, ErrHubNotRunning) {
		t.Errorf("got %v submitting to idle hub, want ErrHubNotRunning", err)
	}
}

func TestHub_DispatchesSubmittedEvents(t *testing.T) {
	store := newFakeStore()
	store.seedSession("exam1", "s1")

	registry := NewRegistry()
	teacherConn, teacherClient := newTestConn(t, "exam1")
	registry.Register("exam1", teacherConn)

	hub := NewHub(NewRouter(registry, store))
	if err := hub.Start(context.Background()); err != nil {
		t.Fatalf("failed to start hub: %v", err)
	}
	defer hub.Stop()

	err := hub.Submit("exam1",
		[]byte(`{"type":"violation","studentId":"s1","violation":"Tab/window switched away","timestamp":"2025-03-14T09:30:00Z"}`))
	if err != nil {
		t.Fatalf("failed to submit event: %v", err)
	}

	if frame := readBroadcast(t, teacherClient); frame.Violation != types.ViolationTabSwitch {
		t.Errorf("got violation %q, want %q", frame.Violation, types.ViolationTabSwitch)
	}
}

func TestHub_SerializesEventsInOrder(t *testing.T) {
	store := newFakeStore()
	session := store.seedSession("exam1", "s1")

	hub := NewHub(NewRouter(NewRegistry(), store))
	if err := hub.Start(context.Background()); err != nil {
		t.Fatalf("failed to start hub: %v", err)
	}
	defer hub.Stop()

	violations := []string{
		types.ViolationFullscreenExit,
		types.ViolationTabSwitch,
		types.ViolationFocusLoss,
	}
	for _, v := range violations {
		event := `{"type":"violation","studentId":"s1","violation":"` + v + `","timestamp":"2025-03-14T09:30:00Z"}`
		if err := hub.Submit("exam1", []byte(event)); err != nil {
			t.Fatalf("failed to submit %q: %v", v, err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(store.violationLog(session.ID)) == len(violations) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	log := store.violationLog(session.ID)
	if len(log) != len(violations) {
		t.Fatalf("got %d persisted violations, want %d", len(log), len(violations))
	}
	for i, v := range violations {
		if got := log[i]; len(got) < len(v) || got[:len(v)] != v {
			t.Errorf("position %d: got %q, want prefix %q", i, got, v)
		}
	}
}
