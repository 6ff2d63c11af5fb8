package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILE", "DISCORD_WEBHOOK_URL", "TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID",
		"STORAGE_BACKEND", "DATABASE_PATH", "DATA_DIR", "IMAGE_DIR", "ZIPCODE",
		"RADIUS_MILES", "SEARCH_URLS", "KEYWORDS", "EXCLUDE_KEYWORDS",
		"CHECK_INTERVAL_MINUTES", "MAX_CHECKS_PER_CYCLE", "RETENTION_DAYS",
		"METRICS_ADDR", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DISCORD_WEBHOOK_URL", "https://discord.example.com/api/webhooks/1/x")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.StorageBackend != "sqlite" {
		t.Errorf("StorageBackend = %q, want sqlite", cfg.StorageBackend)
	}
	if cfg.Zipcode != "30135" || cfg.RadiusMiles != 250 {
		t.Errorf("search area defaults = %q/%d", cfg.Zipcode, cfg.RadiusMiles)
	}
	if cfg.CheckIntervalMinutes != 5 || cfg.MaxChecksPerCycle != 10 || cfg.RetentionDays != 30 {
		t.Errorf("cycle defaults = %d/%d/%d", cfg.CheckIntervalMinutes, cfg.MaxChecksPerCycle, cfg.RetentionDays)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestLoadRequiresNotifier(t *testing.T) {
	clearEnv(t)

	if _, err := Load(); err == nil {
		t.Fatal("expected error when no notification channel is configured")
	}
}

func TestTelegramRequiresChatID(t *testing.T) {
	clearEnv(t)
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when TELEGRAM_CHAT_ID is missing")
	}

	t.Setenv("TELEGRAM_CHAT_ID", "-100200300")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TelegramChatID != -100200300 {
		t.Errorf("TelegramChatID = %d", cfg.TelegramChatID)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DISCORD_WEBHOOK_URL", "https://discord.example.com/api/webhooks/1/x")
	t.Setenv("STORAGE_BACKEND", "json")
	t.Setenv("ZIPCODE", "35203")
	t.Setenv("RADIUS_MILES", "50")
	t.Setenv("KEYWORDS", "pokemon, elite trainer ,,booster")
	t.Setenv("SEARCH_URLS", "/search?q=pokemon,/search?q=mtg")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StorageBackend != "json" || cfg.Zipcode != "35203" || cfg.RadiusMiles != 50 {
		t.Errorf("overrides not applied: %q/%q/%d", cfg.StorageBackend, cfg.Zipcode, cfg.RadiusMiles)
	}
	if diff := cmp.Diff([]string{"pokemon", "elite trainer", "booster"}, cfg.Keywords); diff != "" {
		t.Errorf("keywords mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"/search?q=pokemon", "/search?q=mtg"}, cfg.SearchURLs); diff != "" {
		t.Errorf("search urls mismatch (-want +got):\n%s", diff)
	}
}

func TestConfigFileMergedUnderEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"discord_webhook_url":"https://discord.example.com/api/webhooks/2/y","zipcode":"10001","radius_miles":25,"keywords":["signed"]}`
	if err := os.WriteFile(path, []byte(body), 0o640); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("ZIPCODE", "90210")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RadiusMiles != 25 {
		t.Errorf("file value not merged, RadiusMiles = %d", cfg.RadiusMiles)
	}
	if cfg.Zipcode != "90210" {
		t.Errorf("env must win over file, Zipcode = %q", cfg.Zipcode)
	}
	if diff := cmp.Diff([]string{"signed"}, cfg.Keywords); diff != "" {
		t.Errorf("keywords mismatch (-want +got):\n%s", diff)
	}
}

func TestMissingConfigFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("DISCORD_WEBHOOK_URL", "https://discord.example.com/api/webhooks/1/x")
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.json"))

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestInvalidValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("DISCORD_WEBHOOK_URL", "https://discord.example.com/api/webhooks/1/x")

	t.Setenv("RADIUS_MILES", "not-a-number")
	if _, err := Load(); err == nil {
		t.Error("expected error for non-numeric RADIUS_MILES")
	}
	t.Setenv("RADIUS_MILES", "")

	t.Setenv("STORAGE_BACKEND", "oracle")
	if _, err := Load(); err == nil {
		t.Error("expected error for unknown storage backend")
	}
}
