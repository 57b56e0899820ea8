package handlers

import (
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/hyperreflector/signal-server/models"
)

// PunchNotifier tears down NAT mappings on the hole-punch coordinator when
// a match ends.
type PunchNotifier interface {
	Kill(uid, peerUID, matchID string)
}

// MatchManager owns active match records and the idle → in-match → idle
// transitions of every user. All match creation and destruction is
// serialized through its mutex, so the pair of CurrentMatchID updates for a
// match always lands together.
type MatchManager struct {
	mu      sync.Mutex
	matches map[string]*models.ActiveMatch

	registry *Registry
	lobbies  *LobbyManager
	hub      *Hub
	punch    PunchNotifier

	punchHost    string
	punchPort    int
	defaultLobby string
}

func NewMatchManager(registry *Registry, lobbies *LobbyManager, hub *Hub, punch PunchNotifier, punchHost string, punchPort int, defaultLobby string) *MatchManager {
	return &MatchManager{
		matches:      make(map[string]*models.ActiveMatch),
		registry:     registry,
		lobbies:      lobbies,
		hub:          hub,
		punch:        punch,
		punchHost:    punchHost,
		punchPort:    punchPort,
		defaultLobby: defaultLobby,
	}
}

// RequestMatch pairs two connected, matchless users into a new match. A
// party carrying a stale match reference is force-closed first; crashed
// clients leak match state and the next request must self-heal it. If a
// party is gone after reconciliation, only the requester hears about it.
func (m *MatchManager) RequestMatch(req models.RequestMatchMessage, requester models.Transport) {
	if req.ChallengerID == "" || req.OpponentID == "" {
		return
	}

	if challenger, ok := m.registry.Get(req.ChallengerID); ok && challenger.CurrentMatchID != "" {
		log.Printf("challenger %s still had active match %s; forcing cleanup", req.ChallengerID, challenger.CurrentMatchID)
		m.ForceCloseMatchForUser(req.ChallengerID, "stale-current-match")
	}
	if opponent, ok := m.registry.Get(req.OpponentID); ok && opponent.CurrentMatchID != "" {
		log.Printf("opponent %s still had active match %s; forcing cleanup", req.OpponentID, opponent.CurrentMatchID)
		m.ForceCloseMatchForUser(req.OpponentID, "stale-current-match")
	}

	challenger, challengerOK := m.registry.Get(req.ChallengerID)
	opponent, opponentOK := m.registry.Get(req.OpponentID)
	if !challengerOK || !opponentOK {
		if requester != nil {
			requester.Send(models.MatchStartErrorEvent{
				Type:         models.EvtMatchStartError,
				ChallengerID: req.ChallengerID,
				OpponentID:   req.OpponentID,
				Reason:       "Opponent is no longer online.",
			})
		}
		return
	}

	lobbyID := req.LobbyID
	if lobbyID == "" {
		lobbyID = challenger.LobbyID
	}
	if lobbyID == "" {
		lobbyID = opponent.LobbyID
	}
	if lobbyID == "" {
		lobbyID = m.defaultLobby
	}

	// The requester's preferred slot is honored as-is; the other party
	// takes the complement.
	challengerSlot := 0
	if req.PreferredSlot == 1 {
		challengerSlot = 1
	}
	opponentSlot := 1 - challengerSlot

	matchID := uuid.New().String()
	match := &models.ActiveMatch{
		ID:        matchID,
		LobbyID:   lobbyID,
		StartedAt: models.NowMillis(),
		GameName:  req.GameName,
		Players: []models.MatchPlayer{
			models.MatchPlayerFromUser(challenger, challengerSlot),
			models.MatchPlayerFromUser(opponent, opponentSlot),
		},
	}

	m.mu.Lock()
	m.matches[matchID] = match
	m.registry.Patch(req.ChallengerID, models.UserPatch{CurrentMatchID: models.String(matchID)})
	m.registry.Patch(req.OpponentID, models.UserPatch{CurrentMatchID: models.String(matchID)})
	m.mu.Unlock()

	m.sendMatchStart(req, matchID, lobbyID, req.ChallengerID, challengerSlot, req.OpponentID)
	m.sendMatchStart(req, matchID, lobbyID, req.OpponentID, opponentSlot, req.ChallengerID)

	m.lobbies.BroadcastUserList(lobbyID)
	m.BroadcastList()
}

func (m *MatchManager) sendMatchStart(req models.RequestMatchMessage, matchID, lobbyID, uid string, slot int, opponentUID string) {
	m.registry.SendTo(uid, models.MatchStartEvent{
		Type:        models.EvtMatchStart,
		MatchID:     matchID,
		LobbyID:     lobbyID,
		GameName:    req.GameName,
		ServerHost:  m.punchHost,
		ServerPort:  m.punchPort,
		RequestedBy: req.RequestedBy,
		PlayerSlot:  slot,
		OpponentUID: opponentUID,
	})
}

// ForceCloseMatchForUser tears down whatever match the user is in: clears
// both CurrentMatchID references, notifies the other participant, drops the
// hole-punch mappings, and refreshes roster and match list. Calling it for
// a user with no active match is a no-op, never an error.
func (m *MatchManager) ForceCloseMatchForUser(uid, reason string) {
	if uid == "" {
		return
	}
	user, ok := m.registry.Get(uid)
	if !ok || user.CurrentMatchID == "" {
		return
	}
	matchID := user.CurrentMatchID
	if reason == "" {
		reason = "match-ended"
	}

	m.mu.Lock()
	match, found := m.matches[matchID]
	if found {
		delete(m.matches, matchID)
	}

	participants := []models.MatchPlayer{{UID: uid}}
	lobbyID := user.LobbyID
	if found {
		participants = match.Players
		lobbyID = match.LobbyID
	}
	if lobbyID == "" {
		lobbyID = m.defaultLobby
	}

	for _, player := range participants {
		m.registry.Patch(player.UID, models.UserPatch{CurrentMatchID: models.String("")})
	}
	m.mu.Unlock()

	for _, player := range participants {
		if player.UID == uid {
			continue
		}
		m.registry.SendTo(player.UID, models.MatchForceCloseEvent{
			Type:       models.EvtMatchForceClose,
			MatchID:    matchID,
			OpponentID: uid,
			Reason:     reason,
		})
	}

	if len(participants) > 1 && m.punch != nil {
		for _, player := range participants {
			if opponent, ok := match.Opponent(player.UID); ok {
				m.punch.Kill(player.UID, opponent.UID, matchID)
			}
		}
	}

	m.lobbies.BroadcastUserList(lobbyID)
	m.BroadcastList()
}

// Snapshot serializes every active match, refreshing player display fields
// from the registry so the list never shows stale profiles.
func (m *MatchManager) Snapshot() models.MatchListEvent {
	m.mu.Lock()
	matches := make([]models.ActiveMatch, 0, len(m.matches))
	for _, match := range m.matches {
		matches = append(matches, *match)
	}
	m.mu.Unlock()

	for i := range matches {
		players := make([]models.MatchPlayer, len(matches[i].Players))
		copy(players, matches[i].Players)
		for j, player := range players {
			if source, ok := m.registry.Get(player.UID); ok {
				players[j] = models.MatchPlayerFromUser(source, player.PlayerSlot)
			}
		}
		matches[i].Players = players
	}

	return models.MatchListEvent{Type: models.EvtMatchList, Matches: matches}
}

// SendListTo pushes the current match list to one transport.
func (m *MatchManager) SendListTo(transport models.Transport) {
	if transport == nil {
		return
	}
	transport.Send(m.Snapshot())
}

// BroadcastList pushes the current match list to every connection.
func (m *MatchManager) BroadcastList() {
	m.hub.Broadcast(m.Snapshot())
}

// MatchCount reports the number of active matches.
func (m *MatchManager) MatchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.matches)
}

// Get returns a match by id.
func (m *MatchManager) Get(matchID string) (models.ActiveMatch, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	match, ok := m.matches[matchID]
	if !ok {
		return models.ActiveMatch{}, false
	}
	return *match, true
}
