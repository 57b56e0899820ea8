package handlers

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hyperreflector/signal-server/models"
)

var (
	ErrLobbyExists     = errors.New("Lobby already exists")
	ErrInvalidPassword = errors.New("Invalid password for lobby")
)

// LobbyManager groups connections into named rooms. Membership and
// ConnectedUser.LobbyID always agree because every move goes through the
// same mutation path: evict from the previous lobby, add to the new one,
// then patch the registry (which re-broadcasts the destination roster).
type LobbyManager struct {
	mu      sync.Mutex
	members map[string]map[string]bool
	meta    map[string]*models.LobbyMeta
	timers  map[string]*time.Timer

	registry *Registry
	hub      *Hub

	defaultLobby string
	idleTimeout  time.Duration

	countsDone chan struct{}
}

func NewLobbyManager(registry *Registry, hub *Hub, defaultLobby string, idleTimeout time.Duration) *LobbyManager {
	m := &LobbyManager{
		members:      make(map[string]map[string]bool),
		meta:         make(map[string]*models.LobbyMeta),
		timers:       make(map[string]*time.Timer),
		registry:     registry,
		hub:          hub,
		defaultLobby: defaultLobby,
		idleTimeout:  idleTimeout,
		countsDone:   make(chan struct{}),
	}
	m.EnsureLobby(defaultLobby)
	return m
}

// EnsureLobby creates the lobby if absent.
func (m *LobbyManager) EnsureLobby(lobbyID string) {
	m.mu.Lock()
	m.ensureLocked(lobbyID)
	m.mu.Unlock()
}

func (m *LobbyManager) ensureLocked(lobbyID string) {
	if _, ok := m.members[lobbyID]; !ok {
		m.members[lobbyID] = make(map[string]bool)
	}
}

// Assign moves a user into a lobby without a password gate. Used for the
// join flow, where the default (or re-joined) lobby is never protected.
func (m *LobbyManager) Assign(uid, lobbyID string) {
	m.mu.Lock()
	prevLobby, prevHasMembers := m.removeLocked(uid)
	m.ensureLocked(lobbyID)
	m.cancelTimerLocked(lobbyID)
	m.members[lobbyID][uid] = true
	m.mu.Unlock()

	if prevHasMembers && prevLobby != lobbyID {
		m.BroadcastUserList(prevLobby)
	}
	m.registry.Patch(uid, models.UserPatch{LobbyID: models.String(lobbyID)})
}

// Create makes a new protected or open lobby owned by the user and moves
// them into it. Fails if the name is taken.
func (m *LobbyManager) Create(uid, lobbyID, pass string, isPrivate bool) error {
	var passHash []byte
	if pass != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(pass), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		passHash = hash
	}

	m.mu.Lock()
	if _, exists := m.members[lobbyID]; exists {
		m.mu.Unlock()
		return ErrLobbyExists
	}
	prevLobby, prevHasMembers := m.removeLocked(uid)
	m.ensureLocked(lobbyID)
	m.cancelTimerLocked(lobbyID)
	m.members[lobbyID][uid] = true
	m.meta[lobbyID] = &models.LobbyMeta{
		PassHash:  passHash,
		IsPrivate: isPrivate,
		OwnerUID:  uid,
	}
	m.mu.Unlock()

	if prevHasMembers {
		m.BroadcastUserList(prevLobby)
	}
	m.registry.Patch(uid, models.UserPatch{LobbyID: models.String(lobbyID)})
	m.registry.SendTo(uid, models.LobbyJoinedEvent{Type: models.EvtLobbyJoined, LobbyID: lobbyID})
	m.BroadcastCounts()
	return nil
}

// Change moves a user into an existing (or new) lobby, validating its
// password first. A mismatch leaves membership untouched.
func (m *LobbyManager) Change(uid, lobbyID, pass string) error {
	m.mu.Lock()
	var passHash []byte
	if meta, ok := m.meta[lobbyID]; ok {
		passHash = meta.PassHash
	}
	m.mu.Unlock()

	if passHash != nil {
		if err := bcrypt.CompareHashAndPassword(passHash, []byte(pass)); err != nil {
			return ErrInvalidPassword
		}
	}

	m.Assign(uid, lobbyID)
	m.BroadcastCounts()
	return nil
}

// RemoveFromAll evicts the user from whichever lobby holds them. An empty
// non-default lobby gets an idle-eviction timer; one already armed is left
// alone.
func (m *LobbyManager) RemoveFromAll(uid string) {
	m.mu.Lock()
	prevLobby, prevHasMembers := m.removeLocked(uid)
	m.mu.Unlock()

	if prevHasMembers {
		m.BroadcastUserList(prevLobby)
	}
}

// removeLocked drops the uid from its lobby, arming the idle timer when the
// lobby empties. Returns the lobby left and whether it still has members.
func (m *LobbyManager) removeLocked(uid string) (string, bool) {
	for lobbyID, members := range m.members {
		if !members[uid] {
			continue
		}
		delete(members, uid)

		if len(members) == 0 && lobbyID != m.defaultLobby {
			if _, armed := m.timers[lobbyID]; !armed {
				id := lobbyID
				m.timers[lobbyID] = time.AfterFunc(m.idleTimeout, func() {
					m.expireLobby(id)
				})
			}
			return lobbyID, false
		}
		return lobbyID, len(members) > 0
	}
	return "", false
}

func (m *LobbyManager) cancelTimerLocked(lobbyID string) {
	if timer, ok := m.timers[lobbyID]; ok {
		timer.Stop()
		delete(m.timers, lobbyID)
	}
}

// expireLobby fires when a lobby stayed empty for the idle window. The
// timer may have been superseded by a re-join; re-check under the lock.
func (m *LobbyManager) expireLobby(lobbyID string) {
	m.mu.Lock()
	if _, armed := m.timers[lobbyID]; !armed {
		m.mu.Unlock()
		return
	}
	delete(m.timers, lobbyID)
	if members, ok := m.members[lobbyID]; !ok || len(members) > 0 {
		m.mu.Unlock()
		return
	}
	delete(m.members, lobbyID)
	delete(m.meta, lobbyID)
	m.mu.Unlock()

	log.Printf("lobby %q closed after idle timeout", lobbyID)
	m.hub.Broadcast(models.LobbyClosedEvent{Type: models.EvtLobbyClosed, LobbyID: lobbyID})
	m.BroadcastCounts()
}

// MembersOf returns the uids currently in the lobby.
func (m *LobbyManager) MembersOf(lobbyID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	members, ok := m.members[lobbyID]
	if !ok {
		return nil
	}
	uids := make([]string, 0, len(members))
	for uid := range members {
		uids = append(uids, uid)
	}
	return uids
}

// LobbyOf returns the lobby currently holding the uid.
func (m *LobbyManager) LobbyOf(uid string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for lobbyID, members := range m.members {
		if members[uid] {
			return lobbyID, true
		}
	}
	return "", false
}

// BroadcastUserList pushes the lobby's roster to every member.
func (m *LobbyManager) BroadcastUserList(lobbyID string) {
	uids := m.MembersOf(lobbyID)
	if uids == nil {
		return
	}

	users := make([]models.ConnectedUser, 0, len(uids))
	for _, uid := range uids {
		if user, ok := m.registry.Get(uid); ok {
			users = append(users, user)
		}
	}

	event := models.ConnectedUsersEvent{
		Type:  models.EvtConnectedUsers,
		Users: users,
		Count: len(users),
	}
	for _, uid := range uids {
		m.registry.SendTo(uid, event)
	}
}

// BroadcastCounts pushes every lobby's name, size and privacy flags to all
// connections. Clients reconcile missed targeted events from this.
func (m *LobbyManager) BroadcastCounts() {
	m.mu.Lock()
	updates := make([]models.LobbyCount, 0, len(m.members))
	for lobbyID, members := range m.members {
		count := models.LobbyCount{
			Name:  lobbyID,
			Users: len(members),
		}
		if meta, ok := m.meta[lobbyID]; ok {
			count.HasPass = meta.PassHash != nil
			count.IsPrivate = meta.IsPrivate
		}
		updates = append(updates, count)
	}
	m.mu.Unlock()

	m.hub.Broadcast(models.LobbyCountsEvent{Type: models.EvtLobbyUserCounts, Updates: updates})
}

// StartCountsTicker emits lobby-user-counts on a fixed interval until Stop.
func (m *LobbyManager) StartCountsTicker(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.BroadcastCounts()
			case <-m.countsDone:
				return
			}
		}
	}()
}

// Stop cancels the counts ticker and any pending idle timers.
func (m *LobbyManager) Stop() {
	close(m.countsDone)
	m.mu.Lock()
	for lobbyID, timer := range m.timers {
		timer.Stop()
		delete(m.timers, lobbyID)
	}
	m.mu.Unlock()
}

// BroadcastRoomMessage delivers a chat line to the sender's lobby.
func (m *LobbyManager) BroadcastRoomMessage(sender models.ConnectedUser, text, messageID string) {
	lobbyID := sender.LobbyID
	if lobbyID == "" {
		lobbyID = m.defaultLobby
	}
	if messageID == "" {
		messageID = uuid.NewString()
	}

	event := models.RoomMessageEvent{
		Type:      models.EvtRoomMessage,
		ID:        messageID,
		TimeStamp: models.NowMillis(),
		Message:   text,
		Sender:    sender,
	}
	for _, uid := range m.MembersOf(lobbyID) {
		m.registry.SendTo(uid, event)
	}
}
