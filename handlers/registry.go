package handlers

import (
	"sort"
	"sync"

	"github.com/hyperreflector/signal-server/models"
)

// Registry owns the authoritative table of connected users. Every component
// reads and mutates user state through it; nothing else holds user records.
type Registry struct {
	mu    sync.RWMutex
	users map[string]*models.ConnectedUser

	// onRosterChange fires after any mutation that alters lobby-visible
	// state, with the affected user's lobby id. Stale rosters are a
	// user-visible bug, so this is wired before the server accepts traffic.
	onRosterChange func(lobbyID string)
}

func NewRegistry() *Registry {
	return &Registry{
		users: make(map[string]*models.ConnectedUser),
	}
}

// SetRosterNotifier installs the roster re-broadcast hook. Must be called
// before any connection is admitted.
func (r *Registry) SetRosterNotifier(fn func(lobbyID string)) {
	r.onRosterChange = fn
}

// Admit registers a user. A re-join for a live uid replaces the transport
// and refreshes provided profile fields while preserving accumulated state
// (join time, geo, pings, streaks, mute list).
func (r *Registry) Admit(profile models.SocketUser, transport models.Transport) models.ConnectedUser {
	now := models.NowMillis()

	r.mu.Lock()
	existing, ok := r.users[profile.UID]
	if !ok {
		user := &models.ConnectedUser{
			SocketUser:    profile,
			JoinedAt:      now,
			LastHeartbeat: now,
			Transport:     transport,
		}
		r.users[profile.UID] = user
		snapshot := user.Clone()
		r.mu.Unlock()
		return snapshot
	}

	existing.Transport = transport
	existing.LastHeartbeat = now
	mergeProfile(existing, profile)
	snapshot := existing.Clone()
	r.mu.Unlock()
	return snapshot
}

// mergeProfile overlays non-zero profile fields onto a live record, leaving
// accumulated state alone when the client did not send a value.
func mergeProfile(user *models.ConnectedUser, profile models.SocketUser) {
	if profile.Email != "" {
		user.Email = profile.Email
	}
	if profile.UserName != "" {
		user.UserName = profile.UserName
	}
	if profile.UserProfilePic != "" {
		user.UserProfilePic = profile.UserProfilePic
	}
	if profile.UserTitle != "" {
		user.UserTitle = profile.UserTitle
	}
	if profile.AccountElo != 0 {
		user.AccountElo = profile.AccountElo
	}
	if profile.WinStreak != 0 {
		user.WinStreak = profile.WinStreak
	}
	if profile.RpsElo != 0 {
		user.RpsElo = profile.RpsElo
	}
	if profile.MutedUsers != nil {
		user.MutedUsers = append([]string(nil), profile.MutedUsers...)
	}
	if profile.Stability {
		user.Stability = true
	}
}

// Get returns a snapshot of the user's record.
func (r *Registry) Get(uid string) (models.ConnectedUser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[uid]
	if !ok {
		return models.ConnectedUser{}, false
	}
	return user.Clone(), true
}

// Patch shallow-merges the given fields and returns the new snapshot.
// Lobby-visible changes trigger a roster re-broadcast after the lock is
// released.
func (r *Registry) Patch(uid string, patch models.UserPatch) (models.ConnectedUser, bool) {
	r.mu.Lock()
	user, ok := r.users[uid]
	if !ok {
		r.mu.Unlock()
		return models.ConnectedUser{}, false
	}
	patch.Apply(user)
	snapshot := user.Clone()
	r.mu.Unlock()

	if patch.Visible() && snapshot.LobbyID != "" && r.onRosterChange != nil {
		r.onRosterChange(snapshot.LobbyID)
	}
	return snapshot, true
}

// Touch records an inbound heartbeat.
func (r *Registry) Touch(uid string) {
	r.mu.Lock()
	if user, ok := r.users[uid]; ok {
		user.LastHeartbeat = models.NowMillis()
	}
	r.mu.Unlock()
}

// Remove destroys the user's record, returning the final snapshot.
func (r *Registry) Remove(uid string) (models.ConnectedUser, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[uid]
	if !ok {
		return models.ConnectedUser{}, false
	}
	delete(r.users, uid)
	return user.Clone(), true
}

// IsCurrentTransport reports whether the transport is still the user's live
// handle. A superseded connection closing must not tear down the new one.
func (r *Registry) IsCurrentTransport(uid string, transport models.Transport) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[uid]
	return ok && user.Transport == transport
}

// Snapshot returns copies of every connected user, ordered by uid.
func (r *Registry) Snapshot() []models.ConnectedUser {
	r.mu.RLock()
	users := make([]models.ConnectedUser, 0, len(r.users))
	for _, user := range r.users {
		users = append(users, user.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(users, func(i, j int) bool { return users[i].UID < users[j].UID })
	return users
}

// SendTo pushes a payload to a user's transport if it is connected and
// writable; a missing or dead target is dropped, never an error.
func (r *Registry) SendTo(uid string, v any) bool {
	r.mu.RLock()
	user, ok := r.users[uid]
	var transport models.Transport
	if ok {
		transport = user.Transport
	}
	r.mu.RUnlock()

	if transport == nil {
		return false
	}
	return transport.Send(v) == nil
}

// Count reports the number of connected users.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}
