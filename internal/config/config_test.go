package config

import (
	"os"
	"testing"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	env := map[string]string{
		"APP_BIND_ADDR":           ":8080",
		"DATABASE_URL":            "postgres://localhost/wagerd",
		"SOLANA_RPC_URL":          "https://api.devnet.solana.com",
		"PROGRAM_ID":              "11111111111111111111111111111111",
		"AUTHORITY_PUBKEY":        "11111111111111111111111111111111",
		"AUTHORITY_KEYPAIR_PATH":  "/tmp/authority.json",
		"INTERNAL_HMAC_SECRET":    "shared-secret",
		"JOIN_TIMEOUT_SECONDS":    "120",
		"SETTLE_TIMEOUT_SECONDS":  "300",
		"FINALIZER_POLL_MS":       "1000",
		"TIMEOUT_WATCHER_POLL_MS": "5000",
	}
	for k, v := range env {
		t.Setenv(k, v)
	}
}

func TestLoadFromEnv(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.AppBindAddr != ":8080" {
		t.Errorf("AppBindAddr = %q", cfg.AppBindAddr)
	}
	if cfg.JoinTimeoutSeconds != 120 {
		t.Errorf("JoinTimeoutSeconds = %d", cfg.JoinTimeoutSeconds)
	}
	if cfg.FinalizerPollInterval().Milliseconds() != 1000 {
		t.Errorf("FinalizerPollInterval = %v", cfg.FinalizerPollInterval())
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default LogLevel info, got %q", cfg.LogLevel)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("APP_BIND_ADDR", "")
	os.Unsetenv("APP_BIND_ADDR")
	os.Unsetenv("DATABASE_URL")
	os.Unsetenv("SOLANA_RPC_URL")
	os.Unsetenv("PROGRAM_ID")
	os.Unsetenv("AUTHORITY_PUBKEY")
	os.Unsetenv("AUTHORITY_KEYPAIR_PATH")
	os.Unsetenv("INTERNAL_HMAC_SECRET")
	os.Unsetenv("JOIN_TIMEOUT_SECONDS")
	os.Unsetenv("SETTLE_TIMEOUT_SECONDS")
	os.Unsetenv("FINALIZER_POLL_MS")
	os.Unsetenv("TIMEOUT_WATCHER_POLL_MS")

	if _, err := Load(""); err == nil {
		t.Fatal("expected error for missing required configuration")
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LOG_LEVEL", "debug")

	path := t.TempDir() + "/wagerd.yaml"
	if err := os.WriteFile(path, []byte("log_level: warn\n"), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestLoadUsesConfigFileEnvVarWhenFlagEmpty(t *testing.T) {
	setRequiredEnv(t)

	dir := t.TempDir()
	path := dir + "/wagerd.yaml"
	if err := os.WriteFile(path, []byte("log_level: warn\n"), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn from CONFIG_FILE overlay", cfg.LogLevel)
	}
}
