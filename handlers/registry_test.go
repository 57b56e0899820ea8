package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperreflector/signal-server/models"
)

func TestRegistryAdmitAndGet(t *testing.T) {
	registry := NewRegistry()
	transport := &fakeTransport{}

	admitted := registry.Admit(models.SocketUser{UID: "u1", UserName: "alice", Email: "a@example.com"}, transport)
	assert.Equal(t, "u1", admitted.UID)
	assert.NotZero(t, admitted.JoinedAt)

	user, ok := registry.Get("u1")
	require.True(t, ok)
	assert.Equal(t, "alice", user.UserName)
	assert.Equal(t, 1, registry.Count())
}

func TestRegistryRejoinReplacesTransportKeepsState(t *testing.T) {
	registry := NewRegistry()
	first := &fakeTransport{}
	second := &fakeTransport{}

	registry.Admit(models.SocketUser{UID: "u1", UserName: "alice", Stability: true}, first)
	registry.Patch("u1", models.UserPatch{
		WinStreak: models.Int(4),
		Geo:       &models.GeoFields{Lat: 10, Lon: 20, CountryCode: "se"},
	})

	// Re-join with a sparse profile: accumulated state must survive.
	registry.Admit(models.SocketUser{UID: "u1"}, second)

	user, ok := registry.Get("u1")
	require.True(t, ok)
	assert.Equal(t, "alice", user.UserName)
	assert.Equal(t, 4, user.WinStreak)
	assert.True(t, user.Stability, "omitted field must not clobber the flag")
	assert.True(t, user.HasGeo)

	assert.False(t, registry.IsCurrentTransport("u1", first))
	assert.True(t, registry.IsCurrentTransport("u1", second))
}

func TestRegistryPatchFiresRosterHook(t *testing.T) {
	registry := NewRegistry()
	var notified []string
	registry.SetRosterNotifier(func(lobbyID string) {
		notified = append(notified, lobbyID)
	})

	admitUser(registry, "u1")
	registry.Patch("u1", models.UserPatch{LobbyID: models.String("Main")})
	registry.Patch("u1", models.UserPatch{WinStreak: models.Int(2)})

	// A heartbeat-only patch must not re-broadcast rosters.
	registry.Touch("u1")
	registry.Patch("u1", models.UserPatch{LastHeartbeat: models.Int64(models.NowMillis())})

	assert.Equal(t, []string{"Main", "Main"}, notified)
}

func TestRegistryPatchClampsWinStreak(t *testing.T) {
	registry := NewRegistry()
	admitUser(registry, "u1")

	user, ok := registry.Patch("u1", models.UserPatch{WinStreak: models.Int(-3)})
	require.True(t, ok)
	assert.Equal(t, 0, user.WinStreak)
}

func TestRegistryRemove(t *testing.T) {
	registry := NewRegistry()
	admitUser(registry, "u1")

	user, ok := registry.Remove("u1")
	require.True(t, ok)
	assert.Equal(t, "u1", user.UID)
	assert.Equal(t, 0, registry.Count())

	_, ok = registry.Remove("u1")
	assert.False(t, ok)
}

func TestRegistrySnapshotOrdered(t *testing.T) {
	registry := NewRegistry()
	admitUser(registry, "b")
	admitUser(registry, "a")
	admitUser(registry, "c")

	snapshot := registry.Snapshot()
	require.Len(t, snapshot, 3)
	assert.Equal(t, "a", snapshot[0].UID)
	assert.Equal(t, "b", snapshot[1].UID)
	assert.Equal(t, "c", snapshot[2].UID)
}

func TestRegistrySendToMissingUser(t *testing.T) {
	registry := NewRegistry()
	assert.False(t, registry.SendTo("ghost", models.NewErrorEvent("nope")))

	transport := admitUser(registry, "u1")
	assert.True(t, registry.SendTo("u1", models.NewErrorEvent("hello")))
	assert.Len(t, transport.events(), 1)
}
