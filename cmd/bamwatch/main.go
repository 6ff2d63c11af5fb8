package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"bamwatch/internal/config"
	"bamwatch/internal/fetcher"
	"bamwatch/internal/gate"
	"bamwatch/internal/images"
	"bamwatch/internal/metrics"
	"bamwatch/internal/notify"
	"bamwatch/internal/scheduler"
	"bamwatch/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	store, err := openStorage(cfg, log)
	if err != nil {
		log.Error("open storage", "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	notifier, err := buildNotifier(cfg)
	if err != nil {
		log.Error("create notifier", "error", err)
		os.Exit(1)
	}

	client := fetcher.New(fetcher.Config{
		Zipcode:     cfg.Zipcode,
		RadiusMiles: cfg.RadiusMiles,
	}, store, log)

	g := gate.New(store, log)

	worker := scheduler.New(store, client, g, notifier, scheduler.Config{
		SearchURLs:        cfg.SearchURLs,
		Keywords:          cfg.Keywords,
		ExcludeKeywords:   cfg.ExcludeKeywords,
		MaxChecksPerCycle: cfg.MaxChecksPerCycle,
		RetentionDays:     cfg.RetentionDays,
	}, log)
	worker.SetTickInterval(time.Duration(cfg.CheckIntervalMinutes) * time.Minute)

	if imgFetcher, err := images.New(cfg.ImageDir); err != nil {
		log.Warn("image mirroring disabled", "error", err)
	} else {
		worker.SetImageFetcher(imgFetcher)
	}

	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		worker.SetMetrics(metrics.NewPrometheus(reg))
		go serveMetrics(cfg.MetricsAddr, reg, log)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client.RestoreCookies(ctx)

	log.Info("starting monitor", "backend", cfg.StorageBackend, "interval_minutes", cfg.CheckIntervalMinutes)

	worker.Run(ctx)

	log.Info("monitor stopped")
}

func openStorage(cfg *config.Config, log *slog.Logger) (storage.Storage, error) {
	if cfg.StorageBackend == "json" {
		return storage.NewJSONFile(cfg.DataDir, log)
	}
	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, err
		}
	}
	return storage.NewSQLite(cfg.DatabasePath)
}

func buildNotifier(cfg *config.Config) (notify.Notifier, error) {
	var channels notify.Multi
	if cfg.DiscordWebhookURL != "" {
		channels = append(channels, notify.NewDiscord(cfg.DiscordWebhookURL))
	}
	if cfg.TelegramBotToken != "" {
		tg, err := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID)
		if err != nil {
			return nil, err
		}
		channels = append(channels, tg)
	}
	return channels, nil
}

func serveMetrics(addr string, reg *prometheus.Registry, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("metrics server", "error", err)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
