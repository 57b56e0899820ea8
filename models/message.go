package models

import "encoding/json"

// Inbound message types.
const (
	MsgJoin              = "join"
	MsgUpdateSocketState = "updateSocketState"
	MsgCreateLobby       = "createLobby"
	MsgChangeLobby       = "changeLobby"
	MsgRequestMatch      = "request-match"
	MsgUserDisconnect    = "userDisconnect"
	MsgSendMessage       = "sendMessage"
	MsgMatchEnd          = "matchEnd"
	MsgEstimatePingUsers = "estimate-ping-users"
	MsgMatchStatus       = "match-status"

	MsgWebRTCPingOffer     = "webrtc-ping-offer"
	MsgWebRTCPingAnswer    = "webrtc-ping-answer"
	MsgWebRTCPingDecline   = "webrtc-ping-decline"
	MsgWebRTCPingCandidate = "webrtc-ping-candidate"

	MsgPeerLatencyOffer     = "peer-latency-offer"
	MsgPeerLatencyAnswer    = "peer-latency-answer"
	MsgPeerLatencyDecline   = "peer-latency-decline"
	MsgPeerLatencyCandidate = "peer-latency-candidate"

	MsgMiniGameChallenge = "mini-game-challenge"
	MsgMiniGameChoice    = "mini-game-choice"
	MsgMiniGameDecline   = "mini-game-decline"
	MsgMiniGameAccept    = "mini-game-accept"
	MsgMiniGameSideLock  = "mini-game-side-lock"
)

// Envelope carries only the discriminator; the full body is re-decoded into
// the typed message for the given type before any handler runs.
type Envelope struct {
	Type string `json:"type"`
}

type JoinMessage struct {
	User    SocketUser `json:"user"`
	LobbyID string     `json:"lobbyId,omitempty"`
}

type StateUpdate struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

type UpdateSocketStatePayload struct {
	UID           string      `json:"uid"`
	LobbyID       string      `json:"lobbyId"`
	StateToUpdate StateUpdate `json:"stateToUpdate"`
}

type UpdateSocketStateMessage struct {
	Data UpdateSocketStatePayload `json:"data"`
}

type CreateLobbyMessage struct {
	LobbyID   string     `json:"lobbyId"`
	Pass      string     `json:"pass,omitempty"`
	IsPrivate bool       `json:"isPrivate,omitempty"`
	User      SocketUser `json:"user"`
}

type ChangeLobbyMessage struct {
	NewLobbyID string     `json:"newLobbyId"`
	Pass       string     `json:"pass,omitempty"`
	User       SocketUser `json:"user"`
}

type RequestMatchMessage struct {
	ChallengerID  string `json:"challengerId"`
	OpponentID    string `json:"opponentId"`
	RequestedBy   string `json:"requestedBy"`
	LobbyID       string `json:"lobbyId,omitempty"`
	GameName      string `json:"gameName,omitempty"`
	PreferredSlot int    `json:"preferredSlot,omitempty"`
}

type UserDisconnectMessage struct {
	UserUID string `json:"userUID"`
}

type SendMessageMessage struct {
	Sender    SocketUser `json:"sender"`
	Message   string     `json:"message"`
	MessageID string     `json:"messageId,omitempty"`
}

type MatchEndMessage struct {
	UserUID string `json:"userUID"`
}

// RelayMessage is decoded from the webrtc-ping-* and peer-latency-* family
// only for routing; the raw body is forwarded to the target verbatim.
type RelayMessage struct {
	To   string `json:"to"`
	From string `json:"from"`
}

type EstimatePingUser struct {
	ID        string `json:"id"`
	Stability bool   `json:"stability,omitempty"`
}

type EstimatePingUsersPayload struct {
	UserA EstimatePingUser `json:"userA"`
	UserB EstimatePingUser `json:"userB"`
}

type EstimatePingUsersMessage struct {
	Data EstimatePingUsersPayload `json:"data"`
}

type MiniGameChallengeMessage struct {
	SessionID    string `json:"sessionId,omitempty"`
	ChallengerID string `json:"challengerId"`
	OpponentID   string `json:"opponentId"`
	GameType     string `json:"gameType"`
}

type MiniGameChoiceMessage struct {
	SessionID string         `json:"sessionId"`
	PlayerID  string         `json:"playerId"`
	Choice    MiniGameChoice `json:"choice"`
}

type MiniGameDeclineMessage struct {
	SessionID string `json:"sessionId"`
	PlayerID  string `json:"playerId"`
}

type MiniGameAcceptMessage struct {
	SessionID string `json:"sessionId"`
	PlayerID  string `json:"playerId,omitempty"`
}

// SideLockEntry is the part of a side-lock payload the server inspects; the
// rest of the entry travels opaquely.
type SideLockEntry struct {
	OwnerUID    string `json:"ownerUid"`
	OpponentUID string `json:"opponentUid,omitempty"`
}

type MiniGameSideLockMessage struct {
	OwnerEntry    json.RawMessage `json:"ownerEntry"`
	OpponentEntry json.RawMessage `json:"opponentEntry,omitempty"`
}

type MatchStatusMessage struct {
	Status string `json:"status"`
}
