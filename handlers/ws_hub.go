package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

var (
	errConnectionClosed = errors.New("connection closed")
	errSendBufferFull   = errors.New("send buffer full")
)

// Connection represents a WebSocket connection and the user it belongs to.
// The uid is empty until the client's join message arrives.
type Connection struct {
	ws   *websocket.Conn
	send chan []byte
	ip   string

	mu     sync.Mutex
	uid    string
	closed bool

	isAlive atomic.Bool
}

func newConnection(ws *websocket.Conn, ip string) *Connection {
	c := &Connection{
		ws:   ws,
		send: make(chan []byte, 256),
		ip:   ip,
	}
	c.isAlive.Store(true)
	return c
}

func (c *Connection) UID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uid
}

func (c *Connection) setUID(uid string) {
	c.mu.Lock()
	c.uid = uid
	c.mu.Unlock()
}

// Send marshals the payload and queues it for the write pump. The queue is
// never allowed to block a caller: a full buffer counts as a dead client.
func (c *Connection) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

func (c *Connection) enqueue(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnectionClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return errSendBufferFull
	}
}

// Close terminates the connection once; safe to call from any goroutine and
// from every cleanup path.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()
	if c.ws == nil {
		return nil
	}
	return c.ws.Close()
}

func (c *Connection) ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
}

// Hub maintains the set of active connections, broadcasts messages to all of
// them, and drives the heartbeat that terminates dead clients.
type Hub struct {
	// Registered connections.
	connections map[*Connection]bool

	broadcast  chan []byte
	register   chan *Connection
	unregister chan *Connection
	done       chan struct{}

	heartbeat time.Duration
}

func NewHub(heartbeat time.Duration) *Hub {
	return &Hub{
		connections: make(map[*Connection]bool),
		broadcast:   make(chan []byte, 64),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		done:        make(chan struct{}),
		heartbeat:   heartbeat,
	}
}

func (h *Hub) Register(c *Connection)   { h.register <- c }
func (h *Hub) Unregister(c *Connection) { h.unregister <- c }

// Broadcast sends the payload to every connected client, joined or not.
func (h *Hub) Broadcast(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("error marshalling broadcast payload: %v", err)
		return
	}
	select {
	case h.broadcast <- data:
	case <-h.done:
	}
}

func (h *Hub) Stop() {
	close(h.done)
}

// Run owns the connection set; all membership changes and broadcasts are
// serialized through this loop.
func (h *Hub) Run() {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case connection := <-h.register:
			h.connections[connection] = true
		case connection := <-h.unregister:
			if _, ok := h.connections[connection]; ok {
				delete(h.connections, connection)
				connection.Close()
			}
		case message := <-h.broadcast:
			for connection := range h.connections {
				if err := connection.enqueue(message); err != nil {
					delete(h.connections, connection)
					connection.Close()
				}
			}
		case <-ticker.C:
			h.checkHeartbeats()
		case <-h.done:
			for connection := range h.connections {
				connection.Close()
			}
			return
		}
	}
}

// checkHeartbeats terminates every connection that did not pong since the
// previous tick, then clears the flag and pings again. Termination funnels
// into the same cleanup cascade as an explicit disconnect via the read pump.
func (h *Hub) checkHeartbeats() {
	for connection := range h.connections {
		if !connection.isAlive.Load() {
			log.Printf("terminating stale connection %q: missed heartbeat", connection.UID())
			delete(h.connections, connection)
			connection.Close()
			continue
		}
		connection.isAlive.Store(false)
		if err := connection.ping(); err != nil {
			log.Printf("failed to ping %q, terminating: %v", connection.UID(), err)
			delete(h.connections, connection)
			connection.Close()
		}
	}
}
