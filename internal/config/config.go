// Package config handles application configuration from environment
// variables and an optional JSON override file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"dario.cat/mergo"
)

// Config holds the application configuration.
type Config struct {
	DiscordWebhookURL string `json:"discord_webhook_url"`
	TelegramBotToken  string `json:"telegram_bot_token"`
	TelegramChatID    int64  `json:"telegram_chat_id"`

	StorageBackend string `json:"storage_backend"` // "sqlite" or "json"
	DatabasePath   string `json:"database_path"`
	DataDir        string `json:"data_dir"`
	ImageDir       string `json:"image_dir"`

	Zipcode         string   `json:"zipcode"`
	RadiusMiles     int      `json:"radius_miles"`
	SearchURLs      []string `json:"search_urls"`
	Keywords        []string `json:"keywords"`
	ExcludeKeywords []string `json:"exclude_keywords"`

	CheckIntervalMinutes int `json:"check_interval_minutes"`
	MaxChecksPerCycle    int `json:"max_checks_per_cycle"`
	RetentionDays        int `json:"retention_days"`

	MetricsAddr string `json:"metrics_addr"`
	LogLevel    string `json:"log_level"`
}

func defaults() *Config {
	return &Config{
		StorageBackend:       "sqlite",
		DatabasePath:         "./data/bamwatch.db",
		DataDir:              "./data",
		ImageDir:             "./data/images",
		Zipcode:              "30135",
		RadiusMiles:          250,
		CheckIntervalMinutes: 5,
		MaxChecksPerCycle:    10,
		RetentionDays:        30,
		MetricsAddr:          "",
		LogLevel:             "info",
	}
}

// Load builds the configuration: defaults, then the optional JSON file
// named by CONFIG_FILE merged over them, then environment variables on top.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		fileCfg, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		if err := mergo.Merge(cfg, fileCfg, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merge config file: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if cfg.DiscordWebhookURL == "" && cfg.TelegramBotToken == "" {
		return nil, fmt.Errorf("at least one of DISCORD_WEBHOOK_URL or TELEGRAM_BOT_TOKEN is required")
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID == 0 {
		return nil, fmt.Errorf("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}
	if cfg.StorageBackend != "sqlite" && cfg.StorageBackend != "json" {
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
	return cfg, nil
}

func loadFile(path string) (Config, error) {
	var fileCfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fileCfg, fmt.Errorf("config file %s does not exist", path)
		}
		return fileCfg, fmt.Errorf("read config file: %w", err)
	}
	if err := json.Unmarshal(data, &fileCfg); err != nil {
		return fileCfg, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return fileCfg, nil
}

func applyEnv(cfg *Config) error {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString("DISCORD_WEBHOOK_URL", &cfg.DiscordWebhookURL)
	setString("TELEGRAM_BOT_TOKEN", &cfg.TelegramBotToken)
	setString("STORAGE_BACKEND", &cfg.StorageBackend)
	setString("DATABASE_PATH", &cfg.DatabasePath)
	setString("DATA_DIR", &cfg.DataDir)
	setString("IMAGE_DIR", &cfg.ImageDir)
	setString("ZIPCODE", &cfg.Zipcode)
	setString("METRICS_ADDR", &cfg.MetricsAddr)
	setString("LOG_LEVEL", &cfg.LogLevel)

	for key, dst := range map[string]*int{
		"RADIUS_MILES":           &cfg.RadiusMiles,
		"CHECK_INTERVAL_MINUTES": &cfg.CheckIntervalMinutes,
		"MAX_CHECKS_PER_CYCLE":   &cfg.MaxChecksPerCycle,
		"RETENTION_DAYS":         &cfg.RetentionDays,
	} {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value %q for %s: %w", v, key, err)
			}
			*dst = n
		}
	}

	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid TELEGRAM_CHAT_ID %q: %w", v, err)
		}
		cfg.TelegramChatID = id
	}
	if v := os.Getenv("SEARCH_URLS"); v != "" {
		cfg.SearchURLs = splitList(v)
	}
	if v := os.Getenv("KEYWORDS"); v != "" {
		cfg.Keywords = splitList(v)
	}
	if v := os.Getenv("EXCLUDE_KEYWORDS"); v != "" {
		cfg.ExcludeKeywords = splitList(v)
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
