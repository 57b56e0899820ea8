package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hyperreflector/signal-server/geo"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Desktop clients connect from app:// and file:// origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WsHandler upgrades the request and starts the connection's pumps. All
// state about the user arrives later, in the join message.
func (s *Server) WsHandler(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	conn := newConnection(ws, geo.ClientIP(r))
	s.hub.Register(conn)

	go s.writePump(conn)
	go s.readPump(conn)
}

// readPump is the only reader on the socket. Its exit is the one place
// connection teardown happens, so every failure mode funnels here.
func (s *Server) readPump(conn *Connection) {
	defer func() {
		s.hub.Unregister(conn)
		s.disconnect(conn)
	}()

	conn.ws.SetReadLimit(maxMessageSize)
	conn.ws.SetPongHandler(func(string) error {
		conn.isAlive.Store(true)
		if uid := conn.UID(); uid != "" {
			s.registry.Touch(uid)
		}
		return nil
	})

	for {
		_, raw, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("websocket read error for %q: %v", conn.UID(), err)
			}
			return
		}
		s.dispatch(conn, raw)
	}
}

// writePump is the only writer of data frames on the socket. It drains the
// send queue until Close closes it, then tells the client goodbye.
func (s *Server) writePump(conn *Connection) {
	for data := range conn.send {
		conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.ws.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Printf("websocket write error for %q: %v", conn.UID(), err)
			conn.Close()
			break
		}
	}
	conn.ws.WriteControl(websocket.CloseMessage, nil, time.Now().Add(writeWait))
}
