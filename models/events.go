package models

import "encoding/json"

// Outbound event types.
const (
	EvtConnectedUsers    = "connected-users"
	EvtLobbyUserCounts   = "lobby-user-counts"
	EvtLobbyJoined       = "lobby-joined"
	EvtLobbyClosed       = "lobby-closed"
	EvtMatchStart        = "match-start"
	EvtMatchStartError   = "match-start-error"
	EvtMatchForceClose   = "match-force-close"
	EvtMatchList         = "match-list"
	EvtRoomMessage       = "getRoomMessage"
	EvtUpdateUserPinged  = "update-user-pinged"
	EvtMiniGameChallenge = "mini-game-challenge"
	EvtMiniGameDenied    = "mini-game-challenge-denied"
	EvtMiniGameResult    = "mini-game-result"
	EvtMiniGameSideLock  = "mini-game-side-lock"
	EvtUserDisconnect    = "userDisconnect"
	EvtMatchEndedClose   = "matchEndedClose"
	EvtError             = "error"
)

type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewErrorEvent(message string) ErrorEvent {
	return ErrorEvent{Type: EvtError, Message: message}
}

type ConnectedUsersEvent struct {
	Type  string          `json:"type"`
	Users []ConnectedUser `json:"users"`
	Count int             `json:"count,omitempty"`
}

type LobbyCountsEvent struct {
	Type    string       `json:"type"`
	Updates []LobbyCount `json:"updates"`
}

type LobbyJoinedEvent struct {
	Type    string `json:"type"`
	LobbyID string `json:"lobbyId"`
}

type LobbyClosedEvent struct {
	Type    string `json:"type"`
	LobbyID string `json:"lobbyId"`
}

type MatchStartEvent struct {
	Type        string `json:"type"`
	MatchID     string `json:"matchId"`
	LobbyID     string `json:"lobbyId"`
	GameName    string `json:"gameName,omitempty"`
	ServerHost  string `json:"serverHost"`
	ServerPort  int    `json:"serverPort"`
	RequestedBy string `json:"requestedBy,omitempty"`
	PlayerSlot  int    `json:"playerSlot"`
	OpponentUID string `json:"opponentUid"`
}

type MatchStartErrorEvent struct {
	Type         string `json:"type"`
	ChallengerID string `json:"challengerId"`
	OpponentID   string `json:"opponentId"`
	Reason       string `json:"reason"`
}

type MatchForceCloseEvent struct {
	Type       string `json:"type"`
	MatchID    string `json:"matchId"`
	OpponentID string `json:"opponentId"`
	Reason     string `json:"reason"`
}

type MatchListEvent struct {
	Type    string        `json:"type"`
	Matches []ActiveMatch `json:"matches"`
}

type RoomMessageEvent struct {
	Type      string        `json:"type"`
	ID        string        `json:"id"`
	TimeStamp int64         `json:"timeStamp"`
	Message   string        `json:"message"`
	Sender    ConnectedUser `json:"sender"`
}

type UpdateUserPingedEvent struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type MiniGameChallengeEvent struct {
	Type         string        `json:"type"`
	SessionID    string        `json:"sessionId"`
	ChallengerID string        `json:"challengerId"`
	OpponentID   string        `json:"opponentId"`
	GameType     string        `json:"gameType"`
	ExpiresAt    int64         `json:"expiresAt"`
	Phase        MiniGamePhase `json:"phase"`
}

// MiniGameDeniedEvent rejects a challenge. Reason is a machine-readable
// code (muted, pending, cooldown, offline, unsupported); Message carries
// the display text.
type MiniGameDeniedEvent struct {
	Type         string `json:"type"`
	Reason       string `json:"reason"`
	Message      string `json:"message,omitempty"`
	ChallengerID string `json:"challengerId"`
	OpponentID   string `json:"opponentId"`
	RetryInMs    int64  `json:"retryInMs,omitempty"`
}

type MiniGameResultEvent struct {
	Type          string                     `json:"type"`
	SessionID     string                     `json:"sessionId"`
	ChallengerID  string                     `json:"challengerId"`
	OpponentID    string                     `json:"opponentId"`
	GameType      string                     `json:"gameType"`
	Choices       map[string]*MiniGameChoice `json:"choices"`
	WinnerUID     string                     `json:"winnerUid,omitempty"`
	LoserUID      string                     `json:"loserUid,omitempty"`
	Outcome       string                     `json:"outcome"`
	ActorID       string                     `json:"actorId,omitempty"`
	Ratings       map[string]int             `json:"ratings,omitempty"`
	RatingChanges map[string]int             `json:"ratingChanges,omitempty"`
}

type MiniGameSideLockEvent struct {
	Type          string          `json:"type"`
	OwnerEntry    json.RawMessage `json:"ownerEntry"`
	OpponentEntry json.RawMessage `json:"opponentEntry,omitempty"`
}

type UserDisconnectEvent struct {
	Type    string `json:"type"`
	UserUID string `json:"userUID"`
}

type MatchEndedCloseEvent struct {
	Type    string `json:"type"`
	UserUID string `json:"userUID"`
}
