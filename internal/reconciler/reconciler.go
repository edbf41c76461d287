// Package reconciler turns snapshot membership into create/unavailable
// decisions for dynamically discovered control handles.
package reconciler

import (
	"context"
	"sort"
	"sync"

	"embymirror/internal/models"
)

// Kind is the capability a handle exposes.
type Kind string

const (
	// KindMediaPlayer is device-scoped: the same physical client reconnecting
	// with a fresh session id reuses its handle.
	KindMediaPlayer Kind = "media_player"
	// KindRemote and KindStopButton are session-scoped; a vanished session
	// leaves them permanently unavailable.
	KindRemote     Kind = "remote"
	KindStopButton Kind = "stop_button"
)

// Handle is one materialized control surface for a session.
type Handle struct {
	Kind       Kind   `json:"kind"`
	Key        string `json:"key"`
	SessionID  string `json:"session_id"`
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
	ClientName string `json:"client_name"`
	AppVersion string `json:"app_version,omitempty"`
}

// HandleStatus pairs a handle with its availability in the latest snapshot.
type HandleStatus struct {
	Handle
	Available bool `json:"available"`
}

// Reconciler remembers every handle it has ever announced. Handles are never
// deleted; absence from the current snapshot only makes them unavailable.
type Reconciler struct {
	mu      sync.Mutex
	known   map[Kind]map[string]Handle
	ignored map[string]struct{}
	latest  *models.Snapshot
	onNew   func([]Handle)
}

func New(ignoredClients []string) *Reconciler {
	ignored := make(map[string]struct{}, len(ignoredClients))
	for _, name := range ignoredClients {
		ignored[name] = struct{}{}
	}
	return &Reconciler{
		known: map[Kind]map[string]Handle{
			KindMediaPlayer: {},
			KindRemote:      {},
			KindStopButton:  {},
		},
		ignored: ignored,
	}
}

// OnNew registers a callback invoked with each batch of newly discovered
// handles.
func (r *Reconciler) OnNew(fn func([]Handle)) {
	r.mu.Lock()
	r.onNew = fn
	r.mu.Unlock()
}

// Run consumes a coordinator subscription until the context is cancelled or
// the channel closes.
func (r *Reconciler) Run(ctx context.Context, sub <-chan *models.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-sub:
			if !ok {
				return
			}
			r.Apply(snap)
		}
	}
}

// Apply diffs snap against the known handle set and returns the handles that
// are new with this snapshot. Device-scoped handles of a reconnected device
// are refreshed in place with the new session id.
func (r *Reconciler) Apply(snap *models.Snapshot) []Handle {
	r.mu.Lock()
	r.latest = snap

	var created []Handle
	for _, sess := range snap.Sessions {
		if !r.eligible(sess) {
			continue
		}
		deviceKey := sess.DeviceID
		if deviceKey == "" {
			deviceKey = sess.ID
		}

		created = append(created, r.observeLocked(KindMediaPlayer, deviceKey, sess)...)
		created = append(created, r.observeLocked(KindRemote, sess.ID, sess)...)
		created = append(created, r.observeLocked(KindStopButton, sess.ID, sess)...)
	}
	onNew := r.onNew
	r.mu.Unlock()

	if len(created) > 0 && onNew != nil {
		onNew(created)
	}
	return created
}

func (r *Reconciler) eligible(sess models.Session) bool {
	if !sess.SupportsRemoteControl {
		return false
	}
	if _, skip := r.ignored[sess.Client]; skip {
		return false
	}
	return sess.ID != ""
}

func (r *Reconciler) observeLocked(kind Kind, key string, sess models.Session) []Handle {
	if existing, ok := r.known[kind][key]; ok {
		// same device, possibly a fresh session
		if existing.SessionID != sess.ID {
			existing.SessionID = sess.ID
			r.known[kind][key] = existing
		}
		return nil
	}
	name := sess.DeviceName
	if name == "" {
		name = "Unknown Device"
	}
	h := Handle{
		Kind:       kind,
		Key:        key,
		SessionID:  sess.ID,
		DeviceID:   sess.DeviceID,
		DeviceName: name,
		ClientName: sess.Client,
		AppVersion: sess.ApplicationVersion,
	}
	r.known[kind][key] = h
	return []Handle{h}
}

// Available reports whether the handle's underlying session or device is
// present in the latest snapshot. Unknown handles are unavailable.
func (r *Reconciler) Available(kind Kind, key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.known[kind][key]; !ok {
		return false
	}
	return r.availableLocked(kind, key)
}

// Handles lists every handle ever announced with its current availability,
// ordered by kind then key.
func (r *Reconciler) Handles() []HandleStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []HandleStatus
	for kind, byKey := range r.known {
		for key, h := range byKey {
			out = append(out, HandleStatus{Handle: h, Available: r.availableLocked(kind, key)})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func (r *Reconciler) availableLocked(kind Kind, key string) bool {
	h := r.known[kind][key]
	if r.latest == nil {
		return false
	}
	if kind == KindMediaPlayer && h.DeviceID != "" {
		return r.latest.HasDevice(h.DeviceID)
	}
	return r.latest.HasSession(h.SessionID)
}
