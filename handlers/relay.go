package handlers

import (
	"encoding/json"
	"log"

	"github.com/hyperreflector/signal-server/models"
)

// Relay forwards WebRTC negotiation traffic between two clients. The body is
// opaque to the server; only the routing fields are decoded, and the raw
// bytes travel untouched so candidate payloads survive round-tripping.
type Relay struct {
	registry *Registry
}

func NewRelay(registry *Registry) *Relay {
	return &Relay{registry: registry}
}

// Forward routes the raw frame to its "to" target. Self-addressed frames and
// frames for offline peers are dropped silently; relay traffic is best-effort
// and the caller retries at the WebRTC layer.
func (r *Relay) Forward(raw []byte, msg models.RelayMessage, msgType string) {
	if msg.To == "" || msg.To == msg.From {
		return
	}
	if !r.registry.SendTo(msg.To, json.RawMessage(raw)) {
		log.Printf("dropping %s frame from %q: target %q not reachable", msgType, msg.From, msg.To)
	}
}
