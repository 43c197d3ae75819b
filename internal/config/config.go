package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/seungmin-w/molip-backend/internal/game"
)

type Config struct {
	Addr        string
	DatabaseURL string // empty disables match archiving
	Rules       game.Rules
}

// Load reads .env (if present) then the environment. Missing values fall
// back to defaults, so a bare `go run ./cmd/server` works.
func Load() *Config {
	_ = godotenv.Load()

	rules := game.DefaultRules()
	rules.MaxPlayers = envInt("MAX_PLAYERS", rules.MaxPlayers)
	rules.TickHz = envInt("TICK_HZ", rules.TickHz)
	rules.ManagerMinSec = envInt("MANAGER_MIN_SEC", rules.ManagerMinSec)
	rules.ManagerMaxSec = envInt("MANAGER_MAX_SEC", rules.ManagerMaxSec)
	rules.ExercisePct = envInt("EXERCISE_PCT", rules.ExercisePct)

	return &Config{
		Addr:        envStr("ADDR", ":3001"),
		DatabaseURL: envStr("DATABASE_URL", ""),
		Rules:       rules,
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
