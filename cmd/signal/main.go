package main

import (
	"log"
	"net/http"

	"github.com/joho/godotenv"

	"github.com/hyperreflector/signal-server/account"
	"github.com/hyperreflector/signal-server/config"
	"github.com/hyperreflector/signal-server/geo"
	"github.com/hyperreflector/signal-server/handlers"
	"github.com/hyperreflector/signal-server/holepunch"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}
	cfg := config.LoadConfig()

	var resolver geo.Resolver
	if maxmind, err := geo.Open(cfg.GeoDBPath); err != nil {
		log.Printf("geoip database unavailable, ping estimates disabled: %v", err)
	} else {
		defer maxmind.Close()
		resolver = maxmind
	}

	var punch handlers.PunchNotifier
	if notifier, err := holepunch.NewNotifier(cfg.PunchHost, cfg.PunchPort); err != nil {
		log.Printf("hole-punch coordinator unreachable, match kills disabled: %v", err)
	} else {
		defer notifier.Close()
		punch = notifier
	}

	api := account.New(cfg.AccountAPIURL, cfg.ServerSecret)
	server := handlers.NewServer(cfg, api, resolver, punch)
	server.Start()
	defer server.Stop()

	router := handlers.NewRouter(server, cfg.ServerSecret)
	log.Printf("Signal server listening on %s (hole-punch at %s)", server.Addr(), server.PunchAddr())
	log.Fatal(http.ListenAndServe(server.Addr(), router))
}
