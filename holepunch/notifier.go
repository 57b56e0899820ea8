package holepunch

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
)

// Notifier is the signal server's handle to the coordinator. It only ever
// sends kill packets; endpoint registration is done by the game clients
// themselves.
type Notifier struct {
	conn *net.UDPConn
}

func NewNotifier(host string, port int) (*Notifier, error) {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, err
	}
	return &Notifier{conn: conn}, nil
}

// Kill tells the coordinator to drop the NAT mapping for both uids.
// Best-effort: a failure is logged, never surfaced to match teardown.
func (n *Notifier) Kill(uid, peerUID, matchID string) {
	if uid == "" || peerUID == "" {
		return
	}
	payload, err := json.Marshal(Packet{
		UID:     uid,
		PeerUID: peerUID,
		Kill:    true,
		MatchID: matchID,
	})
	if err != nil {
		return
	}
	if _, err := n.conn.Write(payload); err != nil {
		log.Printf("failed to notify hole-punch coordinator about match close: %v", err)
	}
}

func (n *Notifier) Close() error {
	return n.conn.Close()
}
