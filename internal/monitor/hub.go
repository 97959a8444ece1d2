package monitor

import (
	"context"
	"log"
	"sync"
	"time"
)

// Hub serializes event processing onto a single goroutine. Inbound frames
// from all connections are handled one at a time, which gives each exam's
// broadcasts a stable order and keeps router logic free of its own
// locking. Store calls happen on this goroutine, so a slow write delays
// later events rather than interleaving with them.
type Hub struct {
	eventChannel    chan *eventContext // 1000 buffer absorbs exam-start bursts
	shutdownChannel chan struct{}

	router *Router

	running bool
	mu      sync.RWMutex
}

// eventContext wraps a raw frame with its channel binding.
type eventContext struct {
	examID   string
	data     []byte
	received time.Time
}

// NewHub creates a hub dispatching to the given router.
func NewHub(router *Router) *Hub {
	return &Hub{
		eventChannel: make(chan *eventContext, 1000),
		router:       router,
	}
}

// Start begins hub processing on a background goroutine. Each start gets
// a fresh shutdown channel, so a stopped hub can be started again.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.shutdownChannel = make(chan struct{})
	shutdown := h.shutdownChannel
	h.mu.Unlock()

	log.Println("Starting event hub...")

	go h.run(ctx, shutdown)

	return nil
}

// Stop shuts down the hub. Events already queued are discarded; the
// channel promises at-most-once handling, not draining on shutdown.
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return ErrHubNotRunning
	}
	h.running = false

	log.Println("Stopping event hub...")

	close(h.shutdownChannel)

	return nil
}

// Submit queues an inbound frame for dispatch. Non-blocking: when the
// buffer is full the frame is dropped and ErrEventChannelFull returned,
// so a stalled store cannot back-pressure connection read loops forever.
func (h *Hub) Submit(examID string, data []byte) error {
	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return ErrHubNotRunning
	}
	h.mu.RUnlock()

	ev := &eventContext{
		examID:   examID,
		data:     data,
		received: time.Now(),
	}

	select {
	case h.eventChannel <- ev:
		return nil
	default:
		return ErrEventChannelFull
	}
}

// run is the single dispatch loop. It holds its own shutdown channel so
// a restart cannot race it against a recreated field.
func (h *Hub) run(ctx context.Context, shutdown <-chan struct{}) {
	defer log.Println("Event hub stopped")

	for {
		select {
		case ev := <-h.eventChannel:
			h.router.HandleEvent(ctx, ev.examID, ev.data)

		case <-shutdown:
			return

		case <-ctx.Done():
			return
		}
	}
}
