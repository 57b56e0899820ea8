package handlers

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/hyperreflector/signal-server/account"
	"github.com/hyperreflector/signal-server/geo"
	"github.com/hyperreflector/signal-server/models"
)

// fakeTransport records everything sent through it as raw JSON so tests can
// inspect exactly what a client would have received.
type fakeTransport struct {
	mu     sync.Mutex
	sent   []json.RawMessage
	closed bool
}

func (f *fakeTransport) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.sent = append(f.sent, data)
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) events() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	decoded := make([]map[string]any, 0, len(f.sent))
	for _, raw := range f.sent {
		var event map[string]any
		if json.Unmarshal(raw, &event) == nil {
			decoded = append(decoded, event)
		}
	}
	return decoded
}

func (f *fakeTransport) eventsOfType(typ string) []map[string]any {
	var matched []map[string]any
	for _, event := range f.events() {
		if event["type"] == typ {
			matched = append(matched, event)
		}
	}
	return matched
}

func (f *fakeTransport) lastOfType(typ string) (map[string]any, bool) {
	matched := f.eventsOfType(typ)
	if len(matched) == 0 {
		return nil, false
	}
	return matched[len(matched)-1], true
}

type killCall struct {
	uid, peerUID, matchID string
}

type fakePunch struct {
	mu    sync.Mutex
	kills []killCall
}

func (f *fakePunch) Kill(uid, peerUID, matchID string) {
	f.mu.Lock()
	f.kills = append(f.kills, killCall{uid, peerUID, matchID})
	f.mu.Unlock()
}

func (f *fakePunch) killCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.kills)
}

// fakeResolver maps exact IPs to fixed locations.
type fakeResolver struct {
	locations map[string]geo.Location
}

func (f *fakeResolver) Lookup(ip string) (*geo.Location, error) {
	location, ok := f.locations[ip]
	if !ok {
		return nil, errNoLocation
	}
	return &location, nil
}

var errNoLocation = errLookup("no location for ip")

type errLookup string

func (e errLookup) Error() string { return string(e) }

// fakeAccount implements AccountAPI with recorded calls and pluggable
// responses.
type fakeAccount struct {
	mu          sync.Mutex
	remoteUsers map[string]*account.RemoteUser
	rpsRatings  map[string]int
	rpsReports  [][3]string
	pingPushes  map[string]map[string]any
	dataPushes  map[string]map[string]any
	logouts     []string
}

func newFakeAccount() *fakeAccount {
	return &fakeAccount{
		remoteUsers: make(map[string]*account.RemoteUser),
		pingPushes:  make(map[string]map[string]any),
		dataPushes:  make(map[string]map[string]any),
	}
}

func (f *fakeAccount) UpdateUserData(_ context.Context, uid string, fields map[string]any) error {
	f.mu.Lock()
	f.dataPushes[uid] = fields
	f.mu.Unlock()
	return nil
}

func (f *fakeAccount) UpdateUserPing(_ context.Context, uid string, fields map[string]any) error {
	f.mu.Lock()
	f.pingPushes[uid] = fields
	f.mu.Unlock()
	return nil
}

func (f *fakeAccount) GetUser(_ context.Context, uid string) (*account.RemoteUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.remoteUsers[uid]
	if !ok {
		return nil, errLookup("unknown user " + uid)
	}
	return user, nil
}

func (f *fakeAccount) ReportRpsResult(_ context.Context, challengerUID, opponentUID, winnerUID string) (map[string]int, error) {
	f.mu.Lock()
	f.rpsReports = append(f.rpsReports, [3]string{challengerUID, opponentUID, winnerUID})
	ratings := f.rpsRatings
	f.mu.Unlock()
	if ratings == nil {
		ratings = map[string]int{challengerUID: defaultRpsRating, opponentUID: defaultRpsRating}
	}
	return ratings, nil
}

func (f *fakeAccount) Logout(_ context.Context, uid, _ string) error {
	f.mu.Lock()
	f.logouts = append(f.logouts, uid)
	f.mu.Unlock()
	return nil
}

func (f *fakeAccount) pingPushFor(uid string) (map[string]any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fields, ok := f.pingPushes[uid]
	return fields, ok
}

// admitUser puts a user straight into the registry with a fake transport.
func admitUser(registry *Registry, uid string) *fakeTransport {
	transport := &fakeTransport{}
	registry.Admit(models.SocketUser{UID: uid, UserName: "user-" + uid}, transport)
	return transport
}
