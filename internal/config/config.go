// Package config loads wagerd's process configuration: the required
// environment variables, plus an optional YAML overlay of defaults for the
// values operators most commonly want to template across environments.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all settings the daemon needs to start.
type Config struct {
	AppBindAddr          string `yaml:"app_bind_addr"`
	DatabaseURL          string `yaml:"database_url"`
	SolanaRPCURL         string `yaml:"solana_rpc_url"`
	ProgramID            string `yaml:"program_id"`
	AuthorityPubkey      string `yaml:"authority_pubkey"`
	AuthorityKeypairPath string `yaml:"authority_keypair_path"`
	InternalHMACSecret   string `yaml:"internal_hmac_secret"`
	JoinTimeoutSeconds   int64  `yaml:"join_timeout_seconds"`
	SettleTimeoutSeconds int64  `yaml:"settle_timeout_seconds"`
	FinalizerPollMs      int64  `yaml:"finalizer_poll_ms"`
	TimeoutWatcherPollMs int64  `yaml:"timeout_watcher_poll_ms"`
	LogLevel             string `yaml:"log_level"`
}

// FinalizerPollInterval is FinalizerPollMs as a time.Duration.
func (c *Config) FinalizerPollInterval() time.Duration {
	return time.Duration(c.FinalizerPollMs) * time.Millisecond
}

// TimeoutWatcherPollInterval is TimeoutWatcherPollMs as a time.Duration.
func (c *Config) TimeoutWatcherPollInterval() time.Duration {
	return time.Duration(c.TimeoutWatcherPollMs) * time.Millisecond
}

// required names every environment variable the daemon must see, mirroring
// the original backend's Config::from_env.
var required = []string{
	"APP_BIND_ADDR",
	"DATABASE_URL",
	"SOLANA_RPC_URL",
	"PROGRAM_ID",
	"AUTHORITY_PUBKEY",
	"AUTHORITY_KEYPAIR_PATH",
	"INTERNAL_HMAC_SECRET",
	"JOIN_TIMEOUT_SECONDS",
	"SETTLE_TIMEOUT_SECONDS",
	"FINALIZER_POLL_MS",
	"TIMEOUT_WATCHER_POLL_MS",
}

// Load builds the Config from an optional YAML overlay (configFile, may be
// empty) followed by the environment. Environment variables always win over
// the file. If configFile is empty, the CONFIG_FILE environment variable is
// used as a fallback.
func Load(configFile string) (*Config, error) {
	cfg := &Config{LogLevel: "info"}

	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
	}

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configFile, err)
		}
	}

	for _, name := range required {
		if v, ok := os.LookupEnv(name); ok {
			if err := apply(cfg, name, v); err != nil {
				return nil, err
			}
		}
	}
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func apply(cfg *Config, name, value string) error {
	switch name {
	case "APP_BIND_ADDR":
		cfg.AppBindAddr = value
	case "DATABASE_URL":
		cfg.DatabaseURL = value
	case "SOLANA_RPC_URL":
		cfg.SolanaRPCURL = value
	case "PROGRAM_ID":
		cfg.ProgramID = value
	case "AUTHORITY_PUBKEY":
		cfg.AuthorityPubkey = value
	case "AUTHORITY_KEYPAIR_PATH":
		cfg.AuthorityKeypairPath = value
	case "INTERNAL_HMAC_SECRET":
		cfg.InternalHMACSecret = value
	case "JOIN_TIMEOUT_SECONDS":
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid value for JOIN_TIMEOUT_SECONDS: %s", value)
		}
		cfg.JoinTimeoutSeconds = v
	case "SETTLE_TIMEOUT_SECONDS":
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid value for SETTLE_TIMEOUT_SECONDS: %s", value)
		}
		cfg.SettleTimeoutSeconds = v
	case "FINALIZER_POLL_MS":
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid value for FINALIZER_POLL_MS: %s", value)
		}
		cfg.FinalizerPollMs = v
	case "TIMEOUT_WATCHER_POLL_MS":
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid value for TIMEOUT_WATCHER_POLL_MS: %s", value)
		}
		cfg.TimeoutWatcherPollMs = v
	}
	return nil
}

func (c *Config) validate() error {
	missing := []string{}
	if c.AppBindAddr == "" {
		missing = append(missing, "APP_BIND_ADDR")
	}
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.SolanaRPCURL == "" {
		missing = append(missing, "SOLANA_RPC_URL")
	}
	if c.ProgramID == "" {
		missing = append(missing, "PROGRAM_ID")
	}
	if c.AuthorityPubkey == "" {
		missing = append(missing, "AUTHORITY_PUBKEY")
	}
	if c.AuthorityKeypairPath == "" {
		missing = append(missing, "AUTHORITY_KEYPAIR_PATH")
	}
	if c.InternalHMACSecret == "" {
		missing = append(missing, "INTERNAL_HMAC_SECRET")
	}
	if c.JoinTimeoutSeconds == 0 {
		missing = append(missing, "JOIN_TIMEOUT_SECONDS")
	}
	if c.SettleTimeoutSeconds == 0 {
		missing = append(missing, "SETTLE_TIMEOUT_SECONDS")
	}
	if c.FinalizerPollMs == 0 {
		missing = append(missing, "FINALIZER_POLL_MS")
	}
	if c.TimeoutWatcherPollMs == 0 {
		missing = append(missing, "TIMEOUT_WATCHER_POLL_MS")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %v", missing)
	}
	return nil
}
