package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime setting for starchart.
type Config struct {
	Port     string
	DBPath   string
	LogLevel string
	// LogFormat is "text" or "json".
	LogFormat string
	// Timezone decides where days, weeks and months begin when tasks are
	// evaluated. "Local" uses the host zone.
	Timezone      string
	MaxProofBytes int
	HTTP          HTTPConfig
}

type HTTPConfig struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Load reads configuration from the environment, seeded from a .env file
// in the working directory when one exists. Variables already set in the
// environment win over the file.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Port:          getString("STARCHART_PORT", "8080"),
		DBPath:        getString("STARCHART_DB_PATH", "starchart.db"),
		LogLevel:      getString("STARCHART_LOG_LEVEL", "info"),
		LogFormat:     getString("STARCHART_LOG_FORMAT", "text"),
		Timezone:      getString("STARCHART_TIMEZONE", "Local"),
		MaxProofBytes: getInt("STARCHART_MAX_PROOF_BYTES", 2<<20),
		HTTP: HTTPConfig{
			ReadTimeout:     getDuration("STARCHART_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getDuration("STARCHART_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getDuration("STARCHART_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getDuration("STARCHART_SHUTDOWN_TIMEOUT", 5*time.Second),
		},
	}

	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	if cfg.MaxProofBytes <= 0 {
		return nil, fmt.Errorf("STARCHART_MAX_PROOF_BYTES must be positive, got %d", cfg.MaxProofBytes)
	}
	return cfg, nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return ":" + c.Port
}

func getString(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}
