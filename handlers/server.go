package handlers

import (
	"context"
	"encoding/json"
	"log"
	"strconv"

	"github.com/hyperreflector/signal-server/account"
	"github.com/hyperreflector/signal-server/config"
	"github.com/hyperreflector/signal-server/geo"
	"github.com/hyperreflector/signal-server/models"
)

// Server wires the signaling components together and owns the lifecycle of a
// client connection from upgrade to cleanup.
type Server struct {
	cfg *config.Config

	hub       *Hub
	registry  *Registry
	lobbies   *LobbyManager
	matches   *MatchManager
	miniGames *MiniGameManager
	pings     *PingService
	relay     *Relay

	api AccountAPI
}

func NewServer(cfg *config.Config, api AccountAPI, resolver geo.Resolver, punch PunchNotifier) *Server {
	registry := NewRegistry()
	hub := NewHub(cfg.HeartbeatInterval)
	lobbies := NewLobbyManager(registry, hub, cfg.DefaultLobbyID, cfg.LobbyIdleTimeout)
	registry.SetRosterNotifier(lobbies.BroadcastUserList)

	return &Server{
		cfg:       cfg,
		hub:       hub,
		registry:  registry,
		lobbies:   lobbies,
		matches:   NewMatchManager(registry, lobbies, hub, punch, cfg.PunchHost, cfg.PunchPort, cfg.DefaultLobbyID),
		miniGames: NewMiniGameManager(registry, api, cfg.MiniGameInviteWindow, cfg.MiniGameChoiceWindow, cfg.MiniGameCooldown),
		pings:     NewPingService(registry, resolver, api),
		relay:     NewRelay(registry),
		api:       api,
	}
}

// Start launches the hub loop and the periodic lobby-counts broadcast.
func (s *Server) Start() {
	go s.hub.Run()
	s.lobbies.StartCountsTicker(s.cfg.LobbyCountsInterval)
}

// Stop tears down background loops and timers.
func (s *Server) Stop() {
	s.miniGames.Stop()
	s.lobbies.Stop()
	s.hub.Stop()
}

// Registry exposes the user table, for the internal HTTP surface.
func (s *Server) Registry() *Registry {
	return s.registry
}

// handleJoin admits the user, places them in a lobby, and sends them the
// current world state. A duplicate uid takes over the previous connection.
func (s *Server) handleJoin(conn *Connection, msg models.JoinMessage) {
	if msg.User.UID == "" {
		conn.Send(models.NewErrorEvent("join requires a user with a uid"))
		return
	}
	conn.setUID(msg.User.UID)
	user := s.registry.Admit(msg.User, conn)

	lobbyID := msg.LobbyID
	if lobbyID == "" {
		lobbyID = user.LobbyID
	}
	if lobbyID == "" {
		lobbyID = s.cfg.DefaultLobbyID
	}
	s.lobbies.Assign(user.UID, lobbyID)

	conn.Send(models.ConnectedUsersEvent{
		Type:  models.EvtConnectedUsers,
		Users: s.registry.Snapshot(),
		Count: s.registry.Count(),
	})
	s.matches.SendListTo(conn)
	s.lobbies.BroadcastCounts()

	if !user.HasGeo {
		go s.pings.PopulateGeo(user.UID, conn.ip)
	}
}

// handleStateUpdate patches one profile field and mirrors it to the account
// service. Unknown keys are forwarded untouched; the account service owns
// the full schema.
func (s *Server) handleStateUpdate(msg models.UpdateSocketStateMessage) {
	uid := msg.Data.UID
	key := msg.Data.StateToUpdate.Key
	raw := msg.Data.StateToUpdate.Value
	if uid == "" || key == "" {
		return
	}

	var patch models.UserPatch
	var value any
	decoded := true
	switch key {
	case "userName", "userProfilePic", "userTitle":
		var v string
		decoded = json.Unmarshal(raw, &v) == nil
		value = v
		switch key {
		case "userName":
			patch.UserName = &v
		case "userProfilePic":
			patch.UserProfilePic = &v
		case "userTitle":
			patch.UserTitle = &v
		}
	case "accountElo", "winStreak", "rpsElo":
		var v int
		decoded = json.Unmarshal(raw, &v) == nil
		value = v
		switch key {
		case "accountElo":
			patch.AccountElo = &v
		case "winStreak":
			patch.WinStreak = &v
		case "rpsElo":
			patch.RpsElo = &v
		}
	case "stability":
		var v bool
		decoded = json.Unmarshal(raw, &v) == nil
		value = v
		patch.Stability = &v
	case "mutedUsers":
		var v []string
		decoded = json.Unmarshal(raw, &v) == nil
		value = v
		patch.MutedUsers = v
	default:
		var v any
		decoded = json.Unmarshal(raw, &v) == nil
		value = v
	}
	if !decoded {
		log.Printf("state update for %q: unusable value for key %q", uid, key)
		return
	}

	s.registry.Patch(uid, patch)
	if s.api != nil {
		account.Async("update-user-data "+uid, func(ctx context.Context) error {
			return s.api.UpdateUserData(ctx, uid, map[string]any{key: value})
		})
	}
}

// handleMatchEnd closes the sender's match cleanly. Everyone hears the
// matchEndedClose so spectating clients can drop the match from their UI,
// then the generic force-close teardown runs.
func (s *Server) handleMatchEnd(msg models.MatchEndMessage) {
	if msg.UserUID == "" {
		return
	}
	s.hub.Broadcast(models.MatchEndedCloseEvent{
		Type:    models.EvtMatchEndedClose,
		UserUID: msg.UserUID,
	})
	s.matches.ForceCloseMatchForUser(msg.UserUID, "match-end-event")
}

// handleMatchStatus reacts to client-reported emulator state. Anything that
// means the game process is gone tears the match down.
func (s *Server) handleMatchStatus(conn *Connection, msg models.MatchStatusMessage) {
	uid := conn.UID()
	if uid == "" {
		return
	}
	switch msg.Status {
	case "end", "closed", "crashed":
		s.matches.ForceCloseMatchForUser(uid, "match-complete")
	default:
		log.Printf("match status %q from %q", msg.Status, uid)
	}
}

// handleUserDisconnect is the client-initiated goodbye. The connection is
// closed after cleanup; the read pump's exit then finds the registry entry
// already gone.
func (s *Server) handleUserDisconnect(conn *Connection, msg models.UserDisconnectMessage) {
	uid := msg.UserUID
	if uid == "" {
		uid = conn.UID()
	}
	s.hub.Broadcast(models.UserDisconnectEvent{Type: models.EvtUserDisconnect, UserUID: uid})
	s.cleanupUser(conn, uid)
	conn.Close()
}

// disconnect is the single cleanup path for a closing connection, whatever
// killed it. A connection superseded by a re-join must not tear down the
// live record.
func (s *Server) disconnect(conn *Connection) {
	uid := conn.UID()
	if uid == "" {
		return
	}
	if !s.registry.IsCurrentTransport(uid, conn) {
		log.Printf("connection for %q superseded, skipping cleanup", uid)
		return
	}
	s.cleanupUser(conn, uid)
}

func (s *Server) cleanupUser(conn *Connection, uid string) {
	if uid == "" || !s.registry.IsCurrentTransport(uid, conn) {
		return
	}

	s.matches.ForceCloseMatchForUser(uid, "user-disconnected")
	s.miniGames.DropUser(uid)
	s.lobbies.RemoveFromAll(uid)

	user, existed := s.registry.Remove(uid)
	if !existed {
		return
	}
	s.lobbies.BroadcastCounts()
	log.Printf("user %q disconnected (%d connected)", uid, s.registry.Count())

	if user.Email != "" && s.api != nil {
		account.Async("log-out "+uid, func(ctx context.Context) error {
			return s.api.Logout(ctx, user.UID, user.Email)
		})
	}
}

// Addr returns the listen address for the HTTP server.
func (s *Server) Addr() string {
	return ":" + s.cfg.SignalPort
}

// PunchAddr is the hole-punch endpoint advertised in match-start events.
func (s *Server) PunchAddr() string {
	return s.cfg.PunchHost + ":" + strconv.Itoa(s.cfg.PunchPort)
}
