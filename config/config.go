package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

type Config struct {
	SignalPort     string
	PunchHost      string
	PunchPort      int
	AccountAPIURL  string
	ServerSecret   string
	DefaultLobbyID string
	GeoDBPath      string

	HeartbeatInterval   time.Duration
	LobbyIdleTimeout    time.Duration
	LobbyCountsInterval time.Duration

	MiniGameInviteWindow time.Duration
	MiniGameChoiceWindow time.Duration
	MiniGameCooldown     time.Duration
}

func LoadConfig() *Config {
	return &Config{
		SignalPort:     getEnv("SIGNAL_PORT", "3004"),
		PunchHost:      getEnv("PUNCH_HOST", "127.0.0.1"),
		PunchPort:      getEnvInt("PUNCH_PORT", 33334),
		AccountAPIURL:  getEnv("ACCOUNT_API_URL", "http://127.0.0.1:3001"),
		ServerSecret:   getEnv("SERVER_SECRET", "secret"),
		DefaultLobbyID: getEnv("DEFAULT_LOBBY", "Hyper Reflector"),
		GeoDBPath:      getEnv("GEOIP_DB_PATH", "GeoLite2-City.mmdb"),

		HeartbeatInterval:   getEnvMillis("HEARTBEAT_INTERVAL_MS", 30000),
		LobbyIdleTimeout:    getEnvMillis("LOBBY_IDLE_TIMEOUT_MS", 30000),
		LobbyCountsInterval: getEnvMillis("LOBBY_COUNTS_INTERVAL_MS", 15000),

		MiniGameInviteWindow: getEnvMillis("MINIGAME_INVITE_WINDOW_MS", 30000),
		MiniGameChoiceWindow: getEnvMillis("MINIGAME_CHOICE_WINDOW_MS", 10000),
		MiniGameCooldown:     getEnvMillis("MINIGAME_COOLDOWN_MS", 60000),
	}
}

// getEnv reads an environment variable and returns its value or a default value
func getEnv(key, defaultValue string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		value = defaultValue
		log.Printf("Environment variable %s not set, using default value: %s", key, defaultValue)
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("Environment variable %s is not a number, using default value: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvMillis(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvInt(key, defaultValue)) * time.Millisecond
}
