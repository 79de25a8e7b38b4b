// Package config loads and holds all store configuration.
// Settings are layered: defaults → store-config.json → environment variables (env vars win).
package config

import (
	"encoding/json"
	"log"
	"os"
	"strconv"
)

// Config holds the full store configuration.
type Config struct {
	// Backend selects the StorageController: "map" (in-memory) or "bbolt"
	// (embedded, file-backed).
	Backend string `json:"backend"`
	DBFile  string `json:"dbFile"`

	VersionControl    bool    `json:"versionControl"`
	VersionLimitMB    float64 `json:"versionLimitMB"`
	QueueStoreLimitMB float64 `json:"queueStoreLimitMB"`

	// EvictionPolicy selects "fifo", "lru", or "s3fifo" for a memory-limited backend.
	EvictionPolicy string  `json:"evictionPolicy"`
	MaxMemoryMB    float64 `json:"maxMemoryMB"` // 0 disables eviction

	// EncryptorPublicKeyFile/EncryptorPrivateKeyFile, if set, enable the
	// reference RSAChunkEncryptor. Either or both may be set.
	EncryptorPublicKeyFile  string `json:"encryptorPublicKeyFile"`
	EncryptorPrivateKeyFile string `json:"encryptorPrivateKeyFile"`
	EncryptorCompress       bool   `json:"encryptorCompress"`

	LogLevel string `json:"logLevel"`
}

// Load returns config with defaults overridden by store-config.json and env vars.
func Load() *Config {
	cfg := defaults()
	loadFile(cfg, "store-config.json")
	loadEnv(cfg)
	return cfg
}

func defaults() *Config {
	return &Config{
		Backend:           "map",
		DBFile:            "store.db",
		VersionControl:    true,
		VersionLimitMB:    128,
		QueueStoreLimitMB: 1024,
		EvictionPolicy:    "lru",
		MaxMemoryMB:       0,
		LogLevel:          "info",
	}
}

func loadFile(cfg *Config, path string) {
	data, err := os.ReadFile(path) //nolint:gosec // G703: path is a controlled config file path, not user input
	if err != nil {
		return // file is optional
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		log.Printf("[CONFIG] Warning: could not parse %s: %v", path, err)
	} else {
		log.Printf("[CONFIG] Loaded %s", path)
	}
}

func loadEnv(cfg *Config) {
	if v := os.Getenv("STORE_BACKEND"); v != "" {
		cfg.Backend = v
	}
	if v := os.Getenv("STORE_DB_FILE"); v != "" {
		cfg.DBFile = v
	}
	if v := os.Getenv("STORE_VERSION_CONTROL"); v == "false" {
		cfg.VersionControl = false
	}
	if v := os.Getenv("STORE_VERSION_LIMIT_MB"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.VersionLimitMB = f
		}
	}
	if v := os.Getenv("STORE_QUEUE_LIMIT_MB"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.QueueStoreLimitMB = f
		}
	}
	if v := os.Getenv("STORE_EVICTION_POLICY"); v != "" {
		cfg.EvictionPolicy = v
	}
	if v := os.Getenv("STORE_MAX_MEMORY_MB"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.MaxMemoryMB = f
		}
	}
	if v := os.Getenv("STORE_ENCRYPTOR_PUBLIC_KEY_FILE"); v != "" {
		cfg.EncryptorPublicKeyFile = v
	}
	if v := os.Getenv("STORE_ENCRYPTOR_PRIVATE_KEY_FILE"); v != "" {
		cfg.EncryptorPrivateKeyFile = v
	}
	if v := os.Getenv("STORE_ENCRYPTOR_COMPRESS"); v == "true" {
		cfg.EncryptorCompress = true
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}
