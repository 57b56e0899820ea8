package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/hyperreflector/signal-server/config"
	"github.com/hyperreflector/signal-server/holepunch"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}
	cfg := config.LoadConfig()

	coordinator := holepunch.NewCoordinator()
	if err := coordinator.Listen(cfg.PunchPort); err != nil {
		log.Fatal("failed to bind UDP port: ", err)
	}
	defer coordinator.Close()

	coordinator.Serve()
}
