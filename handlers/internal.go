package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/hyperreflector/signal-server/models"
	"github.com/hyperreflector/signal-server/responses"
	"github.com/hyperreflector/signal-server/utils"
)

type winStreakRequest struct {
	UserUID   string `json:"userUID"`
	WinStreak int    `json:"winStreak"`
}

// WinStreakHandler lets the account service push a user's new win streak
// into the live roster. A miss is not an error: the user may simply have
// disconnected between the match report and this call.
func (s *Server) WinStreakHandler(w http.ResponseWriter, r *http.Request) {
	var req winStreakRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserUID == "" {
		utils.HandleError(w, responses.BadRequestError{Msg: "userUID is required"})
		return
	}

	_, updated := s.registry.Patch(req.UserUID, models.UserPatch{WinStreak: models.Int(req.WinStreak)})
	utils.HandleSuccess(w, models.SuccessResponse(map[string]bool{"updated": updated}))
}
