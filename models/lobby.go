package models

// LobbyMeta is the metadata stored for a named lobby. The password is kept
// as a bcrypt hash and never serialized.
type LobbyMeta struct {
	PassHash  []byte `json:"-"`
	IsPrivate bool   `json:"isPrivate"`
	OwnerUID  string `json:"ownerUid"`
}

// LobbyCount is one entry of the periodic lobby-user-counts broadcast.
type LobbyCount struct {
	Name      string `json:"name"`
	Users     int    `json:"users"`
	HasPass   bool   `json:"hasPass"`
	IsPrivate bool   `json:"isPrivate"`
}
