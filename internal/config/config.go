package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          string
	DBPath        string
	MigrationsDir string
	CORSOrigins   []string

	// LivenessWindow bounds how long a member stays listed without activity.
	LivenessWindow time.Duration
	// HeartbeatInterval is how often the push hub refreshes connected members.
	HeartbeatInterval time.Duration
	// ShutdownTimeout caps graceful HTTP shutdown.
	ShutdownTimeout time.Duration

	LogLevel  string
	LogFormat string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:              getEnv("PORT", "8080"),
		DBPath:            getEnv("DB_PATH", "./data/focusroom.db"),
		MigrationsDir:     getEnv("MIGRATIONS_DIR", "./migrations"),
		CORSOrigins:       getEnvList("CORS_ORIGINS", []string{"http://localhost:3000", "http://127.0.0.1:3000"}),
		LivenessWindow:    getEnvSeconds("LIVENESS_WINDOW_SECONDS", 5*time.Minute),
		HeartbeatInterval: getEnvSeconds("HEARTBEAT_INTERVAL_SECONDS", time.Minute),
		ShutdownTimeout:   getEnvSeconds("SHUTDOWN_TIMEOUT_SECONDS", 10*time.Second),
		LogLevel:          strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:         strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}
}

// Validate rejects combinations under which connected push members would
// drop out of pull listings between heartbeats.
func (c Config) Validate() error {
	if c.HeartbeatInterval >= c.LivenessWindow {
		return fmt.Errorf("HEARTBEAT_INTERVAL_SECONDS (%s) must be shorter than LIVENESS_WINDOW_SECONDS (%s)",
			c.HeartbeatInterval, c.LivenessWindow)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}

func (c Config) Addr() string {
	return ":" + c.Port
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

// getEnvSeconds reads a positive whole number of seconds.
func getEnvSeconds(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return time.Duration(parsed) * time.Second
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	items := make([]string, 0)
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	if len(items) == 0 {
		return fallback
	}
	return items
}
