// Package config loads and validates process configuration from the
// environment. Validation runs once at startup so a misconfigured process
// fails before touching Redis or the database.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the validated process configuration shared by the scheduler and
// worker binaries.
type Config struct {
	// RedisURL locates the Redis instance backing schedules, triggers and
	// events.
	RedisURL string
	// DatabaseURL locates the MongoDB deployment holding workflow
	// definitions.
	DatabaseURL string
	// DatabaseName is the database holding the workflow collections.
	DatabaseName string
	// SecretKey signs API-facing tokens. Unused by the backend processes
	// themselves but validated here so one settings module covers the
	// deployment.
	SecretKey string
	// CredentialsKey is the raw 32-byte key sealing node credentials.
	CredentialsKey []byte
	// PublicURL is the externally reachable base URL for webhook routes.
	// Optional; telegram triggers are disabled without it.
	PublicURL string
	// TickInterval is the scheduler drain cadence.
	TickInterval time.Duration
	// WorkerCount is the number of trigger stream consumers a worker
	// process runs.
	WorkerCount int
}

// Load reads configuration from the environment and validates it. All
// problems are reported at once.
func Load() (*Config, error) {
	cfg := &Config{
		RedisURL:     os.Getenv("REDIS_URL"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		DatabaseName: envDefault("DATABASE_NAME", "weft"),
		SecretKey:    os.Getenv("SECRET_KEY"),
		PublicURL:    os.Getenv("PUBLIC_URL"),
		TickInterval: time.Second,
		WorkerCount:  4,
	}

	var errs []error
	if cfg.RedisURL == "" {
		errs = append(errs, errors.New("REDIS_URL is required"))
	}
	if cfg.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if cfg.SecretKey == "" {
		errs = append(errs, errors.New("SECRET_KEY is required"))
	}

	switch encoded := os.Getenv("CREDENTIALS_SECRET_KEY"); {
	case encoded == "":
		errs = append(errs, errors.New("CREDENTIALS_SECRET_KEY is required"))
	default:
		key, err := base64.URLEncoding.DecodeString(encoded)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("CREDENTIALS_SECRET_KEY is not base64url: %w", err))
		case len(key) != 32:
			errs = append(errs, fmt.Errorf("CREDENTIALS_SECRET_KEY must decode to 32 bytes, got %d", len(key)))
		default:
			cfg.CredentialsKey = key
		}
	}

	if raw := os.Getenv("SCHEDULER_TICK_SECONDS"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs <= 0 {
			errs = append(errs, fmt.Errorf("SCHEDULER_TICK_SECONDS must be a positive integer, got %q", raw))
		} else {
			cfg.TickInterval = time.Duration(secs) * time.Second
		}
	}
	if raw := os.Getenv("WORKER_COUNT"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			errs = append(errs, fmt.Errorf("WORKER_COUNT must be a positive integer, got %q", raw))
		} else {
			cfg.WorkerCount = n
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return cfg, nil
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
