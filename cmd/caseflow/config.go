package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds all caseflow gateway configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	ListenAddr       string `json:"listen_addr" validate:"required"`
	EngineURL        string `json:"engine_url" validate:"required,url"`
	EnginePathPrefix string `json:"engine_path_prefix"`
	DBPath           string `json:"db_path" validate:"required"`
	LogLevel         string `json:"log_level" validate:"oneof=debug info warn error"`
	FormAcceptExpr   string `json:"form_accept_expr"`

	Encryption EncryptionConfig `json:"encryption"`
	Storage    StorageConfig    `json:"storage" validate:"required"`
	Search     SearchConfig     `json:"search"`
	Retry      RetryConfig      `json:"retry"`
	Sweeper    SweeperConfig    `json:"sweeper"`
}

// EncryptionConfig controls the variable sealing pipeline.
type EncryptionConfig struct {
	Enabled    bool   `json:"enabled"`
	Passphrase string `json:"passphrase" validate:"required_if=Enabled true"`
	Salt       string `json:"salt" validate:"required_if=Enabled true"`
}

// StorageConfig selects and parameterizes the object-store backend.
type StorageConfig struct {
	Backend          string `json:"backend" validate:"oneof=s3 local"`
	BucketNamePrefix string `json:"bucket_name_prefix"`
	CaseBucketName   string `json:"case_bucket_name" validate:"required"`
	Region           string `json:"region"`
}

// SearchConfig points at the Elasticsearch cluster. Empty addresses disable
// indexing entirely.
type SearchConfig struct {
	Addresses []string `json:"addresses"`
}

// RetryConfig bounds storage and index write attempts.
type RetryConfig struct {
	Attempts int    `json:"attempts" validate:"min=1"`
	Delay    string `json:"delay"`
}

// SweeperConfig schedules dead-letter replay.
type SweeperConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule" validate:"required_if=Enabled true"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr:       ":4300",
		EngineURL:        "http://localhost:8080/engine-rest",
		EnginePathPrefix: "/engine-rest",
		DBPath:           filepath.Join(caseflowDir(), "caseflow.db"),
		LogLevel:         "info",
		Storage: StorageConfig{
			Backend:        "local",
			CaseBucketName: "case-data",
		},
		Retry: RetryConfig{
			Attempts: 3,
			Delay:    "1s",
		},
		Sweeper: SweeperConfig{
			Enabled:  true,
			Schedule: "*/5 * * * *",
		},
	}
}

func caseflowDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".caseflow"
	}
	return filepath.Join(home, ".caseflow")
}

func settingsPath() string {
	return filepath.Join(caseflowDir(), "settings.json")
}

func loadConfig() (Config, error) {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", settingsPath(), err)
		}
	}

	// Layer 3: env vars override.
	applyEnv(&cfg)

	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("CASEFLOW_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("CASEFLOW_ENGINE_URL"); v != "" {
		cfg.EngineURL = v
	}
	if v := os.Getenv("CASEFLOW_ENGINE_PATH_PREFIX"); v != "" {
		cfg.EnginePathPrefix = v
	}
	if v := os.Getenv("CASEFLOW_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("CASEFLOW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CASEFLOW_FORM_ACCEPT_EXPR"); v != "" {
		cfg.FormAcceptExpr = v
	}
	if v := os.Getenv("CASEFLOW_ENCRYPTION_ENABLED"); v != "" {
		cfg.Encryption.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("CASEFLOW_ENCRYPTION_PASSPHRASE"); v != "" {
		cfg.Encryption.Passphrase = v
	}
	if v := os.Getenv("CASEFLOW_ENCRYPTION_SALT"); v != "" {
		cfg.Encryption.Salt = v
	}
	if v := os.Getenv("CASEFLOW_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("CASEFLOW_BUCKET_NAME_PREFIX"); v != "" {
		cfg.Storage.BucketNamePrefix = v
	}
	if v := os.Getenv("CASEFLOW_CASE_BUCKET_NAME"); v != "" {
		cfg.Storage.CaseBucketName = v
	}
	if v := os.Getenv("CASEFLOW_STORAGE_REGION"); v != "" {
		cfg.Storage.Region = v
	}
	if v := os.Getenv("CASEFLOW_SEARCH_ADDRESSES"); v != "" {
		cfg.Search.Addresses = splitNonEmpty(v)
	}
	if v := os.Getenv("CASEFLOW_RETRY_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retry.Attempts = n
		}
	}
	if v := os.Getenv("CASEFLOW_RETRY_DELAY"); v != "" {
		cfg.Retry.Delay = v
	}
	if v := os.Getenv("CASEFLOW_SWEEPER_ENABLED"); v != "" {
		cfg.Sweeper.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("CASEFLOW_SWEEPER_SCHEDULE"); v != "" {
		cfg.Sweeper.Schedule = v
	}
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// retryDelay parses the configured delay, defaulting to one second.
func (c RetryConfig) retryDelay() time.Duration {
	d, err := time.ParseDuration(c.Delay)
	if err != nil || d < 0 {
		return time.Second
	}
	return d
}
