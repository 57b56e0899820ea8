package handlers

import (
	"github.com/gorilla/mux"

	"github.com/hyperreflector/signal-server/middleware"
)

// NewRouter builds the HTTP surface: the public websocket endpoint and the
// token-guarded internal routes for collaborator services.
func NewRouter(s *Server, secret string) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.WsHandler)

	internal := r.PathPrefix("/internal").Subrouter()
	internal.Use(middleware.ServerAuth(secret))
	internal.HandleFunc("/win-streak", s.WinStreakHandler).Methods("POST")

	return r
}
