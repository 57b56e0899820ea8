package handlers

import (
	"context"
	"log"
	"time"

	"github.com/hyperreflector/signal-server/account"
	"github.com/hyperreflector/signal-server/geo"
	"github.com/hyperreflector/signal-server/models"
)

// AccountAPI is the slice of the account service the handlers call. Tests
// substitute a fake; production wires account.Client.
type AccountAPI interface {
	UpdateUserData(ctx context.Context, uid string, fields map[string]any) error
	UpdateUserPing(ctx context.Context, uid string, fields map[string]any) error
	GetUser(ctx context.Context, uid string) (*account.RemoteUser, error)
	ReportRpsResult(ctx context.Context, challengerUID, opponentUID, winnerUID string) (map[string]int, error)
	Logout(ctx context.Context, uid, email string) error
}

// PingService estimates round-trip times between users from geolocation.
// Real measured pings come from the clients over the relay channel; these
// estimates seed the UI before any direct connection exists.
type PingService struct {
	registry *Registry
	resolver geo.Resolver
	api      AccountAPI

	// estimate-ping-users races the target's geo resolution on join, so
	// lookups retry briefly before giving up.
	retries    int
	retryDelay time.Duration
}

func NewPingService(registry *Registry, resolver geo.Resolver, api AccountAPI) *PingService {
	return &PingService{
		registry:   registry,
		resolver:   resolver,
		api:        api,
		retries:    5,
		retryDelay: 250 * time.Millisecond,
	}
}

// PopulateGeo resolves the joining user's location, fans estimated pings out
// to every located peer in both directions, and pushes the result to the
// account service. Runs once per join, off the read pump.
func (s *PingService) PopulateGeo(uid, ip string) {
	if s.resolver == nil {
		return
	}
	location, err := s.resolver.Lookup(ip)
	if err != nil {
		log.Printf("geo lookup for %q (%s) failed: %v", uid, ip, err)
		return
	}

	self, ok := s.registry.Patch(uid, models.UserPatch{Geo: &models.GeoFields{
		Lat:         location.Lat,
		Lon:         location.Lon,
		CountryCode: location.CountryCode,
		IP:          ip,
	}})
	if !ok {
		return
	}

	selfPings := append([]models.PingEntry(nil), self.LastKnownPings...)
	for _, peer := range s.registry.Snapshot() {
		if peer.UID == uid || !peer.HasGeo {
			continue
		}
		rtt := geo.EstimateRTT(geo.DistanceKm(location.Lat, location.Lon, peer.PingLat, peer.PingLon))
		unstable := self.Stability || peer.Stability

		selfPings = mergePing(selfPings, models.PingEntry{
			ID:          peer.UID,
			Ping:        rtt,
			IsUnstable:  unstable,
			CountryCode: peer.CountryCode,
		})

		peerPings := mergePing(peer.LastKnownPings, models.PingEntry{
			ID:          uid,
			Ping:        rtt,
			IsUnstable:  unstable,
			CountryCode: location.CountryCode,
		})
		s.registry.Patch(peer.UID, models.UserPatch{LastKnownPings: peerPings})
		s.registry.SendTo(peer.UID, models.UpdateUserPingedEvent{
			Type: models.EvtUpdateUserPinged,
			Data: peerPings,
		})
	}

	s.registry.Patch(uid, models.UserPatch{LastKnownPings: selfPings})
	s.registry.SendTo(uid, models.UpdateUserPingedEvent{
		Type: models.EvtUpdateUserPinged,
		Data: selfPings,
	})

	if s.api != nil {
		account.Async("update-user-ping "+uid, func(ctx context.Context) error {
			return s.api.UpdateUserPing(ctx, uid, map[string]any{
				"pingLat":        location.Lat,
				"pingLon":        location.Lon,
				"countryCode":    location.CountryCode,
				"lastKnownPings": selfPings,
			})
		})
	}
}

// EstimatePingUsers refreshes user A's ping list with an estimate against
// the connected user B. A's coordinates and stored list come from the
// account service (A may hold a stale list or no longer be connected); the
// merged result is written back there, and pushed to A's transport when A is
// online. Asynchronous; retries while B's location is still being resolved.
func (s *PingService) EstimatePingUsers(req models.EstimatePingUsersPayload) {
	if req.UserA.ID == "" || req.UserB.ID == "" || req.UserA.ID == req.UserB.ID {
		return
	}
	go s.estimate(req)
}

func (s *PingService) estimate(req models.EstimatePingUsersPayload) {
	for attempt := 0; attempt < s.retries; attempt++ {
		if attempt > 0 {
			time.Sleep(s.retryDelay)
		}

		userB, ok := s.registry.Get(req.UserB.ID)
		if !ok {
			return
		}
		if !userB.HasGeo {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		remote, err := s.api.GetUser(ctx, req.UserA.ID)
		cancel()
		if err != nil {
			log.Printf("estimate-ping: fetching %q failed: %v", req.UserA.ID, err)
			continue
		}
		if !remote.Located() {
			continue
		}

		entry := models.PingEntry{
			ID:          req.UserB.ID,
			Ping:        geo.EstimateRTT(geo.DistanceKm(remote.PingLat, remote.PingLon, userB.PingLat, userB.PingLon)),
			IsUnstable:  req.UserA.Stability || req.UserB.Stability,
			CountryCode: userB.CountryCode,
		}

		// A live record is fresher than the account service's copy.
		base := remote.LastKnownPings
		if live, connected := s.registry.Get(req.UserA.ID); connected {
			base = live.LastKnownPings
		}
		pings := mergePing(base, entry)

		s.registry.Patch(req.UserA.ID, models.UserPatch{LastKnownPings: pings})
		s.registry.SendTo(req.UserA.ID, models.UpdateUserPingedEvent{
			Type: models.EvtUpdateUserPinged,
			Data: pings,
		})
		account.Async("update-user-ping "+req.UserA.ID, func(ctx context.Context) error {
			return s.api.UpdateUserPing(ctx, req.UserA.ID, map[string]any{"lastKnownPings": pings})
		})
		return
	}
	log.Printf("estimate-ping: gave up pairing %q and %q", req.UserA.ID, req.UserB.ID)
}

// mergePing replaces the entry for the same peer id or appends a new one.
func mergePing(entries []models.PingEntry, entry models.PingEntry) []models.PingEntry {
	merged := append([]models.PingEntry(nil), entries...)
	for i := range merged {
		if merged[i].ID == entry.ID {
			merged[i] = entry
			return merged
		}
	}
	return append(merged, entry)
}
