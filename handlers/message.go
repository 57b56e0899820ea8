package handlers

import (
	"encoding/json"

	"github.com/hyperreflector/signal-server/models"
)

// dispatch decodes the envelope discriminator and routes the frame. Each
// handler re-decodes the full body into its own type; a frame that fails
// either decode earns the sender an error event instead of a disconnect.
func (s *Server) dispatch(conn *Connection, raw []byte) {
	var envelope models.Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		conn.Send(models.NewErrorEvent("Invalid message format"))
		return
	}

	switch envelope.Type {
	case models.MsgJoin:
		var msg models.JoinMessage
		if decode(conn, raw, &msg) {
			s.handleJoin(conn, msg)
		}

	case models.MsgUpdateSocketState:
		var msg models.UpdateSocketStateMessage
		if decode(conn, raw, &msg) {
			s.handleStateUpdate(msg)
		}

	case models.MsgCreateLobby:
		var msg models.CreateLobbyMessage
		if decode(conn, raw, &msg) {
			if err := s.lobbies.Create(msg.User.UID, msg.LobbyID, msg.Pass, msg.IsPrivate); err != nil {
				conn.Send(models.NewErrorEvent(err.Error()))
			}
		}

	case models.MsgChangeLobby:
		var msg models.ChangeLobbyMessage
		if decode(conn, raw, &msg) {
			if err := s.lobbies.Change(msg.User.UID, msg.NewLobbyID, msg.Pass); err != nil {
				conn.Send(models.NewErrorEvent(err.Error()))
			}
		}

	case models.MsgRequestMatch:
		var msg models.RequestMatchMessage
		if decode(conn, raw, &msg) {
			s.matches.RequestMatch(msg, conn)
		}

	case models.MsgMatchEnd:
		var msg models.MatchEndMessage
		if decode(conn, raw, &msg) {
			s.handleMatchEnd(msg)
		}

	case models.MsgMatchStatus:
		var msg models.MatchStatusMessage
		if decode(conn, raw, &msg) {
			s.handleMatchStatus(conn, msg)
		}

	case models.MsgSendMessage:
		var msg models.SendMessageMessage
		if decode(conn, raw, &msg) {
			if sender, ok := s.registry.Get(msg.Sender.UID); ok {
				s.lobbies.BroadcastRoomMessage(sender, msg.Message, msg.MessageID)
			}
		}

	case models.MsgUserDisconnect:
		var msg models.UserDisconnectMessage
		if decode(conn, raw, &msg) {
			s.handleUserDisconnect(conn, msg)
		}

	case models.MsgEstimatePingUsers:
		var msg models.EstimatePingUsersMessage
		if decode(conn, raw, &msg) {
			s.pings.EstimatePingUsers(msg.Data)
		}

	case models.MsgWebRTCPingOffer, models.MsgWebRTCPingAnswer,
		models.MsgWebRTCPingDecline, models.MsgWebRTCPingCandidate,
		models.MsgPeerLatencyOffer, models.MsgPeerLatencyAnswer,
		models.MsgPeerLatencyDecline, models.MsgPeerLatencyCandidate:
		var msg models.RelayMessage
		if decode(conn, raw, &msg) {
			s.relay.Forward(raw, msg, envelope.Type)
		}

	case models.MsgMiniGameChallenge:
		var msg models.MiniGameChallengeMessage
		if decode(conn, raw, &msg) {
			s.miniGames.Challenge(msg)
		}

	case models.MsgMiniGameAccept:
		var msg models.MiniGameAcceptMessage
		if decode(conn, raw, &msg) {
			s.miniGames.Accept(msg)
		}

	case models.MsgMiniGameChoice:
		var msg models.MiniGameChoiceMessage
		if decode(conn, raw, &msg) {
			s.miniGames.Choice(msg)
		}

	case models.MsgMiniGameDecline:
		var msg models.MiniGameDeclineMessage
		if decode(conn, raw, &msg) {
			s.miniGames.Decline(msg)
		}

	case models.MsgMiniGameSideLock:
		var msg models.MiniGameSideLockMessage
		if decode(conn, raw, &msg) {
			s.miniGames.SideLock(msg)
		}

	default:
		conn.Send(models.NewErrorEvent("Unknown message type: " + envelope.Type))
	}
}

func decode(conn *Connection, raw []byte, v any) bool {
	if err := json.Unmarshal(raw, v); err != nil {
		conn.Send(models.NewErrorEvent("Invalid message format"))
		return false
	}
	return true
}
