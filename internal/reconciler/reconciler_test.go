package reconciler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"embymirror/internal/models"
)

func snapshotWith(sessions ...models.Session) *models.Snapshot {
	return &models.Snapshot{Sessions: sessions}
}

func controllable(id, deviceID, deviceName, client string) models.Session {
	return models.Session{
		ID:                    id,
		DeviceID:              deviceID,
		DeviceName:            deviceName,
		Client:                client,
		SupportsRemoteControl: true,
	}
}

func TestApplyCreatesHandlesForNewSession(t *testing.T) {
	r := New(nil)

	created := r.Apply(snapshotWith(controllable("A", "D1", "Living Room", "Emby for Roku")))

	require.Len(t, created, 3)
	kinds := map[Kind]Handle{}
	for _, h := range created {
		kinds[h.Kind] = h
	}
	assert.Equal(t, "D1", kinds[KindMediaPlayer].Key, "media player is device-scoped")
	assert.Equal(t, "A", kinds[KindRemote].Key, "remote is session-scoped")
	assert.Equal(t, "A", kinds[KindStopButton].Key, "stop button is session-scoped")
}

func TestApplyIsIncremental(t *testing.T) {
	r := New(nil)
	snap := snapshotWith(controllable("A", "D1", "Living Room", "Emby for Roku"))

	first := r.Apply(snap)
	require.Len(t, first, 3)

	second := r.Apply(snap)
	assert.Empty(t, second, "an unchanged snapshot must create nothing")
}

func TestVanishedSessionBecomesUnavailableNotRemoved(t *testing.T) {
	r := New(nil)
	r.Apply(snapshotWith(controllable("A", "D1", "Living Room", "Emby for Roku")))

	r.Apply(snapshotWith()) // session gone

	handles := r.Handles()
	require.Len(t, handles, 3, "handles are never deleted")
	for _, h := range handles {
		assert.False(t, h.Available, "%s handle must be unavailable", h.Kind)
	}
	assert.False(t, r.Available(KindMediaPlayer, "D1"))
	assert.False(t, r.Available(KindStopButton, "A"))
}

func TestReconnectedDeviceReusesMediaPlayerHandle(t *testing.T) {
	r := New(nil)
	r.Apply(snapshotWith(controllable("A", "D1", "Living Room", "Emby for Roku")))
	r.Apply(snapshotWith()) // device disappears

	// the same physical device returns with a fresh session id
	created := r.Apply(snapshotWith(controllable("B", "D1", "Living Room", "Emby for Roku")))

	var kinds []Kind
	for _, h := range created {
		kinds = append(kinds, h.Kind)
	}
	assert.NotContains(t, kinds, KindMediaPlayer, "device-scoped handle must be reused")
	assert.Contains(t, kinds, KindRemote)
	assert.Contains(t, kinds, KindStopButton)

	assert.True(t, r.Available(KindMediaPlayer, "D1"))

	// the reused handle now controls the new session
	for _, h := range r.Handles() {
		if h.Kind == KindMediaPlayer && h.Key == "D1" {
			assert.Equal(t, "B", h.SessionID)
		}
	}
}

func TestSessionScopedHandleStaysDeadAfterReconnect(t *testing.T) {
	r := New(nil)
	r.Apply(snapshotWith(controllable("A", "D1", "Living Room", "Emby for Roku")))
	r.Apply(snapshotWith(controllable("B", "D1", "Living Room", "Emby for Roku")))

	assert.False(t, r.Available(KindRemote, "A"), "old session's remote stays unavailable")
	assert.True(t, r.Available(KindRemote, "B"))
}

func TestNotRemoteControllableIsSkipped(t *testing.T) {
	r := New(nil)
	sess := controllable("A", "D1", "Web", "Emby Web")
	sess.SupportsRemoteControl = false

	created := r.Apply(snapshotWith(sess))

	assert.Empty(t, created)
	assert.Empty(t, r.Handles())
}

func TestIgnoredClientIsSkipped(t *testing.T) {
	r := New([]string{"Emby Theater"})

	created := r.Apply(snapshotWith(
		controllable("A", "D1", "HTPC", "Emby Theater"),
		controllable("B", "D2", "Living Room", "Emby for Roku"),
	))

	require.Len(t, created, 3)
	for _, h := range created {
		assert.Equal(t, "D2", h.DeviceID)
	}
}

func TestSessionWithoutDeviceIDFallsBackToSessionID(t *testing.T) {
	r := New(nil)

	created := r.Apply(snapshotWith(controllable("A", "", "Mystery Box", "Emby for LG")))

	require.Len(t, created, 3)
	for _, h := range created {
		if h.Kind == KindMediaPlayer {
			assert.Equal(t, "A", h.Key)
		}
	}
	assert.True(t, r.Available(KindMediaPlayer, "A"))
}

func TestEmptySnapshotYieldsNoHandles(t *testing.T) {
	r := New(nil)
	created := r.Apply(snapshotWith())
	assert.Empty(t, created)
	assert.Empty(t, r.Handles())
}

func TestOnNewCallback(t *testing.T) {
	r := New(nil)
	var batches [][]Handle
	r.OnNew(func(hs []Handle) { batches = append(batches, hs) })

	r.Apply(snapshotWith(controllable("A", "D1", "Living Room", "Emby for Roku")))
	r.Apply(snapshotWith(controllable("A", "D1", "Living Room", "Emby for Roku")))

	require.Len(t, batches, 1, "callback fires only for new handles")
	assert.Len(t, batches[0], 3)
}

func TestUnknownHandleIsUnavailable(t *testing.T) {
	r := New(nil)
	r.Apply(snapshotWith(controllable("A", "D1", "Living Room", "Emby for Roku")))
	assert.False(t, r.Available(KindMediaPlayer, "no-such-key"))
}
