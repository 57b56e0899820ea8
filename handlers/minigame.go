package handlers

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hyperreflector/signal-server/models"
)

const defaultRpsRating = 1200

// timerSlack pads expiry timers so the deadline check never races the clock
// comparison inside the callback.
const timerSlack = 100 * time.Millisecond

type rpsSession struct {
	id           string
	challengerID string
	opponentID   string
	gameType     string
	phase        models.MiniGamePhase
	expiresAt    int64
	choices      map[string]*models.MiniGameChoice
	timer        *time.Timer
}

func (s *rpsSession) member(uid string) bool {
	return uid == s.challengerID || uid == s.opponentID
}

func (s *rpsSession) other(uid string) string {
	if uid == s.challengerID {
		return s.opponentID
	}
	return s.challengerID
}

// MiniGameManager runs the rock-paper-scissors challenge flow: one pending
// session per pair, invite and choice deadlines, and a per-direction
// re-challenge cooldown after a decline. Sessions are memory only; a server
// restart simply clears the board.
type MiniGameManager struct {
	mu        sync.Mutex
	sessions  map[string]*rpsSession
	pairIndex map[string]string
	cooldowns map[string]int64

	registry *Registry
	api      AccountAPI

	inviteWindow time.Duration
	choiceWindow time.Duration
	cooldown     time.Duration
}

func NewMiniGameManager(registry *Registry, api AccountAPI, inviteWindow, choiceWindow, cooldown time.Duration) *MiniGameManager {
	return &MiniGameManager{
		sessions:     make(map[string]*rpsSession),
		pairIndex:    make(map[string]string),
		cooldowns:    make(map[string]int64),
		registry:     registry,
		api:          api,
		inviteWindow: inviteWindow,
		choiceWindow: choiceWindow,
		cooldown:     cooldown,
	}
}

// pairKey is order-independent: one pending session per pair, regardless of
// who challenged whom.
func pairKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair[0] + "|" + pair[1]
}

// cooldownKey is directional: a decline blocks only the declined challenger
// from re-challenging, not the other way around.
func cooldownKey(from, to string) string {
	return from + ">" + to
}

// Challenge opens an invite-phase session, or tells the challenger why it
// cannot: unsupported game, target offline, target muted them, a session
// already pending for the pair, or the directed pair inside its cooldown.
func (m *MiniGameManager) Challenge(msg models.MiniGameChallengeMessage) {
	if msg.ChallengerID == "" || msg.OpponentID == "" || msg.ChallengerID == msg.OpponentID {
		return
	}
	if msg.GameType != "rps" {
		m.deny(msg, "unsupported", "Unknown mini-game type.", 0)
		return
	}
	opponent, ok := m.registry.Get(msg.OpponentID)
	if !ok {
		m.deny(msg, "offline", "Opponent is not online.", 0)
		return
	}
	if opponent.Muted(msg.ChallengerID) {
		m.deny(msg, "muted", "This user is not accepting challenges from you.", 0)
		return
	}

	now := models.NowMillis()
	m.mu.Lock()
	if _, pending := m.pairIndex[pairKey(msg.ChallengerID, msg.OpponentID)]; pending {
		m.mu.Unlock()
		m.deny(msg, "pending", "A challenge between you is already pending.", 0)
		return
	}
	key := cooldownKey(msg.ChallengerID, msg.OpponentID)
	if until, ok := m.cooldowns[key]; ok {
		if until > now {
			m.mu.Unlock()
			m.deny(msg, "cooldown", "You challenged this player too recently. Try again later.", until-now)
			return
		}
		delete(m.cooldowns, key)
	}

	session := &rpsSession{
		id:           msg.SessionID,
		challengerID: msg.ChallengerID,
		opponentID:   msg.OpponentID,
		gameType:     msg.GameType,
		phase:        models.PhaseInvite,
		expiresAt:    now + m.inviteWindow.Milliseconds(),
		choices:      make(map[string]*models.MiniGameChoice),
	}
	if session.id == "" {
		session.id = uuid.NewString()
	}
	sessionID := session.id
	session.timer = time.AfterFunc(m.inviteWindow+timerSlack, func() {
		m.expire(sessionID)
	})
	m.sessions[session.id] = session
	m.pairIndex[pairKey(msg.ChallengerID, msg.OpponentID)] = session.id
	event := m.challengeEvent(session)
	m.mu.Unlock()

	m.registry.SendTo(msg.ChallengerID, event)
	m.registry.SendTo(msg.OpponentID, event)
}

func (m *MiniGameManager) deny(msg models.MiniGameChallengeMessage, reason, message string, retryIn int64) {
	m.registry.SendTo(msg.ChallengerID, models.MiniGameDeniedEvent{
		Type:         models.EvtMiniGameDenied,
		Reason:       reason,
		Message:      message,
		ChallengerID: msg.ChallengerID,
		OpponentID:   msg.OpponentID,
		RetryInMs:    retryIn,
	})
}

func (m *MiniGameManager) challengeEvent(s *rpsSession) models.MiniGameChallengeEvent {
	return models.MiniGameChallengeEvent{
		Type:         models.EvtMiniGameChallenge,
		SessionID:    s.id,
		ChallengerID: s.challengerID,
		OpponentID:   s.opponentID,
		GameType:     s.gameType,
		ExpiresAt:    s.expiresAt,
		Phase:        s.phase,
	}
}

// Accept moves an invite-phase session to the active phase and restarts the
// deadline with the shorter choice window. Only the challenged party can
// accept.
func (m *MiniGameManager) Accept(msg models.MiniGameAcceptMessage) {
	m.mu.Lock()
	session, ok := m.sessions[msg.SessionID]
	if !ok || session.phase != models.PhaseInvite {
		m.mu.Unlock()
		return
	}
	if msg.PlayerID != "" && msg.PlayerID != session.opponentID {
		m.mu.Unlock()
		return
	}

	session.phase = models.PhaseActive
	session.expiresAt = models.NowMillis() + m.choiceWindow.Milliseconds()
	session.timer.Stop()
	sessionID := session.id
	session.timer = time.AfterFunc(m.choiceWindow+timerSlack, func() {
		m.expire(sessionID)
	})
	event := m.challengeEvent(session)
	challengerID, opponentID := session.challengerID, session.opponentID
	m.mu.Unlock()

	m.registry.SendTo(challengerID, event)
	m.registry.SendTo(opponentID, event)
}

// Choice records a hand for an active session. The first submission per
// player sticks; once both hands are in, the round resolves immediately
// instead of waiting out the deadline.
func (m *MiniGameManager) Choice(msg models.MiniGameChoiceMessage) {
	if !msg.Choice.Valid() {
		return
	}

	m.mu.Lock()
	session, ok := m.sessions[msg.SessionID]
	if !ok || session.phase != models.PhaseActive || !session.member(msg.PlayerID) {
		m.mu.Unlock()
		return
	}
	if _, already := session.choices[msg.PlayerID]; already {
		m.mu.Unlock()
		return
	}
	choice := msg.Choice
	session.choices[msg.PlayerID] = &choice

	if len(session.choices) < 2 {
		m.mu.Unlock()
		return
	}
	m.removeLocked(session)
	m.mu.Unlock()

	go m.resolve(session, "")
}

// Decline ends the session from either side and arms the re-challenge
// cooldown against the original challenger.
func (m *MiniGameManager) Decline(msg models.MiniGameDeclineMessage) {
	m.mu.Lock()
	session, ok := m.sessions[msg.SessionID]
	if !ok || !session.member(msg.PlayerID) {
		m.mu.Unlock()
		return
	}
	m.removeLocked(session)
	m.mu.Unlock()

	go m.finishDeclined(session, msg.PlayerID)
}

// DropUser resolves every session the user is part of, as if they had
// declined (invite phase) or forfeited (active phase). Called from the
// disconnect cascade.
func (m *MiniGameManager) DropUser(uid string) {
	m.mu.Lock()
	var dropped []*rpsSession
	for _, session := range m.sessions {
		if session.member(uid) {
			dropped = append(dropped, session)
		}
	}
	for _, session := range dropped {
		m.removeLocked(session)
	}
	m.mu.Unlock()

	for _, session := range dropped {
		if session.phase == models.PhaseInvite {
			go m.finishDeclined(session, uid)
		} else {
			go m.forfeit(session, uid)
		}
	}
}

// forfeit awards an active session to the player who stayed.
func (m *MiniGameManager) forfeit(session *rpsSession, leaverUID string) {
	winnerUID := session.other(leaverUID)
	event := models.MiniGameResultEvent{
		Type:         models.EvtMiniGameResult,
		SessionID:    session.id,
		ChallengerID: session.challengerID,
		OpponentID:   session.opponentID,
		GameType:     session.gameType,
		Choices:      session.choices,
		Outcome:      models.OutcomeForfeit,
		ActorID:      leaverUID,
		WinnerUID:    winnerUID,
		LoserUID:     leaverUID,
	}
	if m.api != nil {
		event.Ratings, event.RatingChanges = m.syncRatings(session, winnerUID)
	}
	m.registry.SendTo(session.challengerID, event)
	m.registry.SendTo(session.opponentID, event)
}

// expire fires on the session deadline. Accept rearms the timer, so a stale
// callback re-checks the recorded deadline before acting.
func (m *MiniGameManager) expire(sessionID string) {
	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	if !ok || models.NowMillis() < session.expiresAt {
		m.mu.Unlock()
		return
	}
	m.removeLocked(session)
	m.mu.Unlock()

	if session.phase == models.PhaseInvite {
		// An ignored invite counts as the opponent declining it.
		m.finishDeclined(session, session.opponentID)
		return
	}
	m.resolve(session, "")
}

// removeLocked takes the session out of both indexes and stops its timer;
// whichever path gets here first owns the finish. Every termination —
// played round, decline, timeout, disconnect — arms the directed cooldown
// against the challenger.
func (m *MiniGameManager) removeLocked(session *rpsSession) {
	delete(m.sessions, session.id)
	delete(m.pairIndex, pairKey(session.challengerID, session.opponentID))
	if session.timer != nil {
		session.timer.Stop()
	}
	m.cooldowns[cooldownKey(session.challengerID, session.opponentID)] = models.NowMillis() + m.cooldown.Milliseconds()
}

// finishDeclined reports an un-played session: declined, no winner, no
// rating movement. Both players appear in choices with no hand.
func (m *MiniGameManager) finishDeclined(session *rpsSession, actorID string) {
	event := models.MiniGameResultEvent{
		Type:         models.EvtMiniGameResult,
		SessionID:    session.id,
		ChallengerID: session.challengerID,
		OpponentID:   session.opponentID,
		GameType:     session.gameType,
		Choices: map[string]*models.MiniGameChoice{
			session.challengerID: nil,
			session.opponentID:   nil,
		},
		Outcome: models.OutcomeDeclined,
		ActorID: actorID,
	}
	m.registry.SendTo(session.challengerID, event)
	m.registry.SendTo(session.opponentID, event)
}

// resolve evaluates a played (or abandoned mid-play) session, syncs ratings
// for decisive results, and reports to both players.
func (m *MiniGameManager) resolve(session *rpsSession, actorID string) {
	var challengerChoice, opponentChoice models.MiniGameChoice
	if c := session.choices[session.challengerID]; c != nil {
		challengerChoice = *c
	}
	if c := session.choices[session.opponentID]; c != nil {
		opponentChoice = *c
	}
	verdict := models.EvaluateRps(challengerChoice, opponentChoice)

	event := models.MiniGameResultEvent{
		Type:         models.EvtMiniGameResult,
		SessionID:    session.id,
		ChallengerID: session.challengerID,
		OpponentID:   session.opponentID,
		GameType:     session.gameType,
		Choices:      session.choices,
		Outcome:      verdict.Outcome,
		ActorID:      actorID,
	}
	switch verdict.Winner {
	case models.RoleChallenger:
		event.WinnerUID = session.challengerID
		event.LoserUID = session.opponentID
	case models.RoleOpponent:
		event.WinnerUID = session.opponentID
		event.LoserUID = session.challengerID
	}

	if event.WinnerUID != "" && m.api != nil {
		event.Ratings, event.RatingChanges = m.syncRatings(session, event.WinnerUID)
	}

	m.registry.SendTo(session.challengerID, event)
	m.registry.SendTo(session.opponentID, event)
}

// syncRatings records the result with the account service and folds the new
// ratings into the registry. Deltas are computed against each player's last
// cached rating so the clients can animate the change.
func (m *MiniGameManager) syncRatings(session *rpsSession, winnerUID string) (map[string]int, map[string]int) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ratings, err := m.api.ReportRpsResult(ctx, session.challengerID, session.opponentID, winnerUID)
	if err != nil {
		log.Printf("mini-game: reporting result for session %s failed: %v", session.id, err)
		return nil, nil
	}

	changes := make(map[string]int, len(ratings))
	for uid, rating := range ratings {
		previous := defaultRpsRating
		if user, ok := m.registry.Get(uid); ok && user.RpsElo != 0 {
			previous = user.RpsElo
		}
		changes[uid] = rating - previous
		m.registry.Patch(uid, models.UserPatch{RpsElo: models.Int(rating)})
	}
	return ratings, changes
}

// SideLock relays a side-lock announcement to both parties named in the
// owner entry. The entries are opaque beyond the routing uids.
func (m *MiniGameManager) SideLock(msg models.MiniGameSideLockMessage) {
	var owner models.SideLockEntry
	if err := json.Unmarshal(msg.OwnerEntry, &owner); err != nil || owner.OwnerUID == "" {
		return
	}

	event := models.MiniGameSideLockEvent{
		Type:          models.EvtMiniGameSideLock,
		OwnerEntry:    msg.OwnerEntry,
		OpponentEntry: msg.OpponentEntry,
	}
	m.registry.SendTo(owner.OwnerUID, event)
	if owner.OpponentUID != "" && owner.OpponentUID != owner.OwnerUID {
		m.registry.SendTo(owner.OpponentUID, event)
	}
}

// Stop cancels all pending session timers.
func (m *MiniGameManager) Stop() {
	m.mu.Lock()
	for _, session := range m.sessions {
		if session.timer != nil {
			session.timer.Stop()
		}
	}
	m.sessions = make(map[string]*rpsSession)
	m.pairIndex = make(map[string]string)
	m.mu.Unlock()
}

// SessionCount reports the number of open sessions.
func (m *MiniGameManager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
