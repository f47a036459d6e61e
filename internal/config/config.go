// Package config loads the ingest service's runtime configuration.
//
// Config loading lives outside the upload core's contract, so this
// package stays deliberately thin: defaults plus env var overrides,
// optionally seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds every option recognized by the ingest service.
type Config struct {
	ChunkSize          int64
	MaxFileSize        int64
	MaxFiles           int
	AllowedTypes       []string
	StorageRoot        string
	StagingRoot        string
	ChunkTimeoutSecs   int
	RetentionDays      int
	MaxParallelUploads int

	HTTPAddr  string
	LogPath   string
	SessionDB string
	EnvFile   string
}

// defaults returns the built-in option values used when no override is
// set via the environment.
func defaults() Config {
	return Config{
		ChunkSize:          1048576,
		MaxFileSize:        524288000,
		MaxFiles:           10,
		AllowedTypes:       defaultAllowedTypes(),
		StorageRoot:        "./data/storage",
		StagingRoot:        "./data/staging",
		ChunkTimeoutSecs:   1800,
		RetentionDays:      30,
		MaxParallelUploads: 3,
		HTTPAddr:           ":8085",
		LogPath:            "./data/logs/ingest.log",
		SessionDB:          "./data/sessions.db",
	}
}

func defaultAllowedTypes() []string {
	return []string{
		"image/jpeg", "image/png", "image/gif", "image/webp",
		"video/mp4", "video/quicktime", "video/x-msvideo", "video/mpeg",
	}
}

// Load reads configuration from the environment, optionally pre-seeded
// from a .env file (godotenv.Load is a no-op error when the file is
// absent; a missing .env must never be fatal in production).
func Load() (Config, error) {
	cfg := defaults()

	envFile := os.Getenv("INGEST_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile)
	cfg.EnvFile = envFile

	if v := os.Getenv("INGEST_CHUNK_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("INGEST_CHUNK_SIZE: %w", err)
		}
		cfg.ChunkSize = n
	}
	if v := os.Getenv("INGEST_MAX_FILE_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("INGEST_MAX_FILE_SIZE: %w", err)
		}
		cfg.MaxFileSize = n
	}
	if v := os.Getenv("INGEST_MAX_FILES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("INGEST_MAX_FILES: %w", err)
		}
		cfg.MaxFiles = n
	}
	if v := os.Getenv("INGEST_ALLOWED_TYPES"); v != "" {
		cfg.AllowedTypes = strings.Split(v, ",")
	}
	if v := os.Getenv("INGEST_STORAGE_ROOT"); v != "" {
		cfg.StorageRoot = v
	}
	if v := os.Getenv("INGEST_STAGING_ROOT"); v != "" {
		cfg.StagingRoot = v
	}
	if v := os.Getenv("INGEST_CHUNK_TIMEOUT_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("INGEST_CHUNK_TIMEOUT_SECONDS: %w", err)
		}
		cfg.ChunkTimeoutSecs = n
	}
	if v := os.Getenv("INGEST_RETENTION_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("INGEST_RETENTION_DAYS: %w", err)
		}
		cfg.RetentionDays = n
	}
	if v := os.Getenv("INGEST_MAX_PARALLEL_UPLOADS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("INGEST_MAX_PARALLEL_UPLOADS: %w", err)
		}
		cfg.MaxParallelUploads = n
	}
	if v := os.Getenv("INGEST_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("INGEST_LOG_PATH"); v != "" {
		cfg.LogPath = v
	}
	if v := os.Getenv("INGEST_SESSION_DB"); v != "" {
		cfg.SessionDB = v
	}

	return cfg, nil
}
