// Package holepunch is the UDP rendezvous used to establish direct
// peer-to-peer connectivity. Clients fire {uid, peerUid} datagrams at the
// coordinator; once both sides of a pair have been observed, each receives
// the other's public endpoint. Everything is best-effort UDP: the exchange
// only seeds a separately-reliable connection attempt between the peers.
package holepunch

import (
	"encoding/json"
	"log"
	"net"
	"sync"

	"github.com/google/uuid"
)

// Peer is an observed public endpoint for a uid.
type Peer struct {
	UID     string `json:"uid"`
	Address string `json:"address"`
	Port    int    `json:"port"`
}

// Packet is the JSON datagram clients and the signal server send.
type Packet struct {
	UID     string `json:"uid"`
	PeerUID string `json:"peerUid"`
	Kill    bool   `json:"kill,omitempty"`
	MatchID string `json:"matchId,omitempty"`
}

// MatchPayload is sent to both peers once the pair is complete.
type MatchPayload struct {
	Peer    Peer   `json:"peer"`
	MatchID string `json:"matchId"`
}

// Coordinator records observed endpoints and pairs them up.
type Coordinator struct {
	conn *net.UDPConn

	mu    sync.Mutex
	peers map[string]Peer
}

func NewCoordinator() *Coordinator {
	return &Coordinator{
		peers: make(map[string]Peer),
	}
}

// Listen binds the coordinator to the given UDP port.
func (c *Coordinator) Listen(port int) error {
	addr := net.UDPAddr{
		Port: port,
		IP:   net.ParseIP("0.0.0.0"),
	}
	conn, err := net.ListenUDP("udp", &addr)
	if err != nil {
		return err
	}
	c.conn = conn
	log.Println("UDP hole-punch coordinator listening on", conn.LocalAddr())
	return nil
}

// Addr returns the bound address; valid after Listen.
func (c *Coordinator) Addr() net.Addr {
	return c.conn.LocalAddr()
}

// Serve reads datagrams until the connection is closed. The read buffer is
// copied per packet before the handler goroutine takes it.
func (c *Coordinator) Serve() {
	buf := make([]byte, 2048)
	for {
		n, remoteAddr, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			log.Println("hole-punch read error:", err)
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		go c.handlePacket(data, remoteAddr)
	}
}

func (c *Coordinator) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Coordinator) handlePacket(data []byte, remote *net.UDPAddr) {
	var packet Packet
	if err := json.Unmarshal(data, &packet); err != nil {
		log.Println("hole-punch invalid JSON:", err)
		return
	}
	if packet.UID == "" || packet.PeerUID == "" {
		log.Println("hole-punch packet missing uid/peerUid")
		return
	}

	if packet.Kill {
		c.Remove(packet.UID, packet.PeerUID)
		return
	}

	sender := Peer{
		UID:     packet.UID,
		Address: remote.IP.String(),
		Port:    remote.Port,
	}

	c.mu.Lock()
	c.peers[packet.UID] = sender
	peer, paired := c.peers[packet.PeerUID]
	c.mu.Unlock()

	log.Printf("hole-punch stored %s at %s:%d", packet.UID, remote.IP, remote.Port)

	if paired {
		c.exchange(sender, peer, packet.MatchID)
	}
}

// Remove drops both entries of a pair so a stale endpoint can never leak
// into a future match.
func (c *Coordinator) Remove(uid, peerUID string) {
	c.mu.Lock()
	delete(c.peers, uid)
	delete(c.peers, peerUID)
	remaining := len(c.peers)
	c.mu.Unlock()
	log.Printf("hole-punch kill processed, %d entries remaining", remaining)
}

// PeerCount reports the number of stored endpoints.
func (c *Coordinator) PeerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.peers)
}

func (c *Coordinator) exchange(a, b Peer, matchID string) {
	if matchID == "" {
		matchID = uuid.New().String()
	}

	toA, _ := json.Marshal(MatchPayload{Peer: b, MatchID: matchID})
	toB, _ := json.Marshal(MatchPayload{Peer: a, MatchID: matchID})

	c.send(toA, a)
	c.send(toB, b)
	log.Printf("hole-punch exchanged endpoints for %s and %s", a.UID, b.UID)
}

func (c *Coordinator) send(msg []byte, peer Peer) {
	addr := net.UDPAddr{
		IP:   net.ParseIP(peer.Address),
		Port: peer.Port,
	}
	if _, err := c.conn.WriteToUDP(msg, &addr); err != nil {
		log.Printf("hole-punch send to %s failed: %v", peer.UID, err)
	}
}
