package models

// MatchPlayer is one of the two slot records of an active match. Display
// fields are cached at match creation and refreshed from the registry when
// the match list is serialized.
type MatchPlayer struct {
	UID            string `json:"uid"`
	PlayerSlot     int    `json:"playerSlot"`
	UserName       string `json:"userName,omitempty"`
	UserProfilePic string `json:"userProfilePic,omitempty"`
	CountryCode    string `json:"countryCode,omitempty"`
	UserTitle      string `json:"userTitle,omitempty"`
	AccountElo     int    `json:"accountElo,omitempty"`
}

// ActiveMatch is a live 1v1 session between two connected users.
type ActiveMatch struct {
	ID        string        `json:"id"`
	LobbyID   string        `json:"lobbyId"`
	StartedAt int64         `json:"startedAt"`
	GameName  string        `json:"gameName,omitempty"`
	Players   []MatchPlayer `json:"players"`
}

// Opponent returns the other participant's slot record.
func (m *ActiveMatch) Opponent(uid string) (MatchPlayer, bool) {
	for _, player := range m.Players {
		if player.UID != uid {
			return player, true
		}
	}
	return MatchPlayer{}, false
}

// MatchPlayerFromUser builds a slot record from a registry snapshot.
func MatchPlayerFromUser(user ConnectedUser, slot int) MatchPlayer {
	return MatchPlayer{
		UID:            user.UID,
		PlayerSlot:     slot,
		UserName:       user.UserName,
		UserProfilePic: user.UserProfilePic,
		CountryCode:    user.CountryCode,
		UserTitle:      user.UserTitle,
		AccountElo:     user.AccountElo,
	}
}
