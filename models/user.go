package models

import "time"

// Transport is the write side of a client connection. The registry owns the
// mapping from uid to transport; everything else sends through it.
type Transport interface {
	Send(v any) error
	Close() error
}

// PingEntry is one peer-id to estimated round-trip-time mapping.
type PingEntry struct {
	ID          string `json:"id"`
	Ping        int    `json:"ping"`
	IsUnstable  bool   `json:"isUnstable,omitempty"`
	CountryCode string `json:"countryCode,omitempty"`
}

// SocketUser is the profile a client presents on join. The account service
// owns these fields; we only cache them for rosters and match records.
type SocketUser struct {
	UID            string   `json:"uid"`
	Email          string   `json:"email,omitempty"`
	UserName       string   `json:"userName,omitempty"`
	UserProfilePic string   `json:"userProfilePic,omitempty"`
	UserTitle      string   `json:"userTitle,omitempty"`
	AccountElo     int      `json:"accountElo,omitempty"`
	LobbyID        string   `json:"lobbyId,omitempty"`
	WinStreak      int      `json:"winStreak,omitempty"`
	Stability      bool     `json:"stability,omitempty"`
	RpsElo         int      `json:"rpsElo,omitempty"`
	MutedUsers     []string `json:"mutedUsers,omitempty"`
}

// ConnectedUser is the registry's record for a live connection.
type ConnectedUser struct {
	SocketUser

	JoinedAt       int64       `json:"joinedAt"`
	LastHeartbeat  int64       `json:"lastHeartbeat"`
	IP             string      `json:"-"`
	PingLat        float64     `json:"pingLat,omitempty"`
	PingLon        float64     `json:"pingLon,omitempty"`
	CountryCode    string      `json:"countryCode,omitempty"`
	HasGeo         bool        `json:"-"`
	CurrentMatchID string      `json:"currentMatchId,omitempty"`
	LastKnownPings []PingEntry `json:"lastKnownPings,omitempty"`

	Transport Transport `json:"-"`
}

// Muted reports whether the user has muted the given uid.
func (u *ConnectedUser) Muted(uid string) bool {
	for _, muted := range u.MutedUsers {
		if muted == uid {
			return true
		}
	}
	return false
}

// GeoFields is the location data resolved for a connecting peer.
type GeoFields struct {
	Lat         float64 `json:"pingLat"`
	Lon         float64 `json:"pingLon"`
	CountryCode string  `json:"countryCode"`
	IP          string  `json:"ip,omitempty"`
}

// UserPatch is a shallow merge applied to a ConnectedUser. Nil pointers mean
// "leave unchanged"; slices replace only when non-nil. CurrentMatchID set to
// a pointer at the empty string clears the match reference.
type UserPatch struct {
	UserName       *string
	UserProfilePic *string
	UserTitle      *string
	AccountElo     *int
	WinStreak      *int
	Stability      *bool
	RpsElo         *int
	MutedUsers     []string
	LobbyID        *string
	CurrentMatchID *string
	Geo            *GeoFields
	LastKnownPings []PingEntry
	LastHeartbeat  *int64
}

// Visible reports whether the patch touches any field that appears in lobby
// rosters. Patches that do must trigger a roster re-broadcast.
func (p UserPatch) Visible() bool {
	return p.UserName != nil || p.UserProfilePic != nil || p.UserTitle != nil ||
		p.AccountElo != nil || p.WinStreak != nil || p.Stability != nil ||
		p.RpsElo != nil || p.MutedUsers != nil || p.CurrentMatchID != nil ||
		p.LobbyID != nil || p.Geo != nil || p.LastKnownPings != nil
}

// Apply merges the patch into the user in place.
func (p UserPatch) Apply(u *ConnectedUser) {
	if p.UserName != nil {
		u.UserName = *p.UserName
	}
	if p.UserProfilePic != nil {
		u.UserProfilePic = *p.UserProfilePic
	}
	if p.UserTitle != nil {
		u.UserTitle = *p.UserTitle
	}
	if p.AccountElo != nil {
		u.AccountElo = *p.AccountElo
	}
	if p.WinStreak != nil {
		streak := *p.WinStreak
		if streak < 0 {
			streak = 0
		}
		u.WinStreak = streak
	}
	if p.Stability != nil {
		u.Stability = *p.Stability
	}
	if p.RpsElo != nil {
		u.RpsElo = *p.RpsElo
	}
	if p.MutedUsers != nil {
		u.MutedUsers = append([]string(nil), p.MutedUsers...)
	}
	if p.LobbyID != nil {
		u.LobbyID = *p.LobbyID
	}
	if p.CurrentMatchID != nil {
		u.CurrentMatchID = *p.CurrentMatchID
	}
	if p.Geo != nil {
		u.PingLat = p.Geo.Lat
		u.PingLon = p.Geo.Lon
		u.CountryCode = p.Geo.CountryCode
		if p.Geo.IP != "" {
			u.IP = p.Geo.IP
		}
		u.HasGeo = true
	}
	if p.LastKnownPings != nil {
		u.LastKnownPings = append([]PingEntry(nil), p.LastKnownPings...)
	}
	if p.LastHeartbeat != nil {
		u.LastHeartbeat = *p.LastHeartbeat
	}
}

// Clone returns a deep copy safe to hand out across goroutines.
func (u *ConnectedUser) Clone() ConnectedUser {
	copied := *u
	copied.MutedUsers = append([]string(nil), u.MutedUsers...)
	copied.LastKnownPings = append([]PingEntry(nil), u.LastKnownPings...)
	return copied
}

// NowMillis is the epoch-milliseconds clock used for all wire timestamps.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// String returns a pointer to s, for building patches.
func String(s string) *string { return &s }

// Int returns a pointer to n, for building patches.
func Int(n int) *int { return &n }

// Bool returns a pointer to b, for building patches.
func Bool(b bool) *bool { return &b }

// Int64 returns a pointer to n, for building patches.
func Int64(n int64) *int64 { return &n }
