// Package events is the notification fan-out shared by the websocket client
// (server-pushed events) and the poll coordinator (snapshot updates).
package events

import (
	"log"
	"sync"
)

// Type names one class of event. Server-pushed types match the MessageType
// discriminator on the wire.
type Type string

const (
	Sessions           Type = "Sessions"
	SessionData        Type = "SessionData"
	Playstate          Type = "Playstate"
	UserDataChanged    Type = "UserDataChanged"
	ServerShuttingDown Type = "ServerShuttingDown"
	ServerRestarting   Type = "ServerRestarting"

	// SnapshotUpdated is raised locally by the coordinator; its payload is a
	// *models.Snapshot.
	SnapshotUpdated Type = "SnapshotUpdated"
)

// Listener receives the payload attached to an event. For server-pushed
// events the payload is the raw JSON of the message's Data field.
type Listener func(payload any)

// Registry maps event types to ordered listener lists. Registering the same
// listener twice yields two invocations per event; callers guard against
// double registration themselves.
type Registry struct {
	mu        sync.Mutex
	listeners map[Type][]Listener
}

func NewRegistry() *Registry {
	return &Registry{listeners: make(map[Type][]Listener)}
}

func (r *Registry) Subscribe(t Type, fn Listener) {
	r.mu.Lock()
	r.listeners[t] = append(r.listeners[t], fn)
	r.mu.Unlock()
}

// Notify invokes every listener registered for t, in registration order. A
// panicking listener is logged and skipped; it never affects delivery to the
// remaining listeners.
func (r *Registry) Notify(t Type, payload any) {
	r.mu.Lock()
	fns := make([]Listener, len(r.listeners[t]))
	copy(fns, r.listeners[t])
	r.mu.Unlock()

	for _, fn := range fns {
		invoke(t, fn, payload)
	}
}

func invoke(t Type, fn Listener, payload any) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("events: listener for %s panicked: %v", t, rec)
		}
	}()
	fn(payload)
}

// Clear drops all registrations.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.listeners = make(map[Type][]Listener)
	r.mu.Unlock()
}
