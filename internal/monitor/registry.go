package monitor

import (
	"log"
	"sync"
)

// Registry tracks, per exam, the set of currently-open monitoring
// connections. Pure process-local state: it starts empty, is rebuilt from
// nothing on restart, and carries no role distinction; teachers and
// students share the same exam channel.
//
// Register and Unregister run on handler goroutines while Broadcast runs
// on the hub's dispatch goroutine, so every map access holds the mutex.
type Registry struct {
	mu    sync.RWMutex
	exams map[string]map[*Connection]struct{} // examID -> connection set
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		exams: make(map[string]map[*Connection]struct{}),
	}
}

// Register adds a connection to its exam's set, creating the set if
// absent. Idempotent for the same connection.
func (r *Registry) Register(examID string, conn *Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	set, exists := r.exams[examID]
	if !exists {
		set = make(map[*Connection]struct{})
		r.exams[examID] = set
	}
	set[conn] = struct{}{}
}

// Unregister removes a connection from its exam's set. No-op if the
// connection was never registered or was already removed; empty sets are
// deleted to keep the map from leaking exam keys.
func (r *Registry) Unregister(examID string, conn *Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	set, exists := r.exams[examID]
	if !exists {
		return
	}

	delete(set, conn)
	if len(set) == 0 {
		delete(r.exams, examID)
	}
}

// Broadcast delivers a message to every open connection registered under
// examID. Delivery is best-effort: a connection found closed at send time
// is skipped, and a failed send never affects the other recipients.
func (r *Registry) Broadcast(examID string, v interface{}) {
	r.mu.RLock()
	set, exists := r.exams[examID]
	if !exists {
		r.mu.RUnlock()
		return
	}

	// Snapshot under the read lock; a connection may close mid-delivery
	// and must not hold up or corrupt the iteration.
	connections := make([]*Connection, 0, len(set))
	for conn := range set {
		connections = append(connections, conn)
	}
	r.mu.RUnlock()

	for _, conn := range connections {
		if !conn.IsOpen() {
			continue
		}
		if err := conn.WriteJSON(v); err != nil {
			log.Printf("Failed to deliver broadcast on exam %s: %v", examID, err)
		}
	}
}

// CountConnections returns the number of connections registered under an
// exam, for snapshot reporting.
func (r *Registry) CountConnections(examID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.exams[examID])
}

// CloseAll closes every registered connection and clears the registry.
// Called once at process shutdown; in-flight client state is not persisted.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for examID, set := range r.exams {
		for conn := range set {
			if err := conn.Close(); err != nil {
				log.Printf("Failed to close connection on exam %s: %v", examID, err)
			}
		}
	}
	r.exams = make(map[string]map[*Connection]struct{})
}

// Stats returns registry counters for monitoring and the health endpoint.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, set := range r.exams {
		total += len(set)
	}

	return map[string]int{
		"watched_exams":     len(r.exams),
		"total_connections": total,
	}
}
