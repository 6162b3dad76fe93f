package app

import (
	"fmt"
	"strings"
	"time"

	"tgnotify/internal/config"
	"tgnotify/internal/httpserver"
	"tgnotify/internal/mirror"
	"tgnotify/internal/relay"
	"tgnotify/internal/storage"
	"tgnotify/internal/telemetry"
	"tgnotify/internal/transport/telegram"
	"tgnotify/pkg/logx"
)

const (
	defaultAddr        = "127.0.0.1:8080"
	defaultPerSource   = 10
	defaultWindow      = 60 * time.Second
	defaultMaxSources  = 10000
	defaultDedupWindow = 30 * time.Second
	defaultMaxEntries  = 10000
	defaultSweepEvery  = "@every 1m"
	defaultSendTimeout = 10 * time.Second
	defaultRetention   = 168 * time.Hour
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		JSON:    cfg.Logging.JSON,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapRelayConfig(cfg *config.Config) (relay.Config, error) {
	window, err := config.ParseDurationOrDefault("rate_limit.window", cfg.RateLimit.Window, defaultWindow)
	if err != nil {
		return relay.Config{}, err
	}
	dedupWindow, err := config.ParseOptionalDuration("dedup.window", cfg.Dedup.Window, defaultDedupWindow)
	if err != nil {
		return relay.Config{}, err
	}
	per := cfg.RateLimit.PerSource
	if per <= 0 {
		per = defaultPerSource
	}
	return relay.Config{
		DefaultChatID:      strings.TrimSpace(cfg.Telegram.ChatID),
		DefaultThreadID:    cfg.Telegram.ThreadID,
		RateLimitPerSource: per,
		RateLimitWindow:    window,
		DedupWindow:        dedupWindow,
	}, nil
}

func mapCaps(cfg *config.Config) (maxSources, maxEntries int) {
	maxSources, maxEntries = cfg.RateLimit.MaxSources, cfg.Dedup.MaxEntries
	if maxSources <= 0 {
		maxSources = defaultMaxSources
	}
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return maxSources, maxEntries
}

func mapTelegramConfig(cfg *config.Config) (telegram.Config, error) {
	timeout, err := config.ParseDurationOrDefault("telegram.timeout", cfg.Telegram.Timeout, defaultSendTimeout)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:   strings.TrimSpace(cfg.Telegram.Token),
		APIURL:  strings.TrimSpace(cfg.Telegram.APIURL),
		Timeout: timeout,
	}, nil
}

// newSender returns nil (not a typed nil) when no token is configured.
func newSender(tc telegram.Config) (relay.Sender, error) {
	if tc.Token == "" {
		return nil, nil
	}
	s, err := telegram.New(tc)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func mapRouterConfig(cfg *config.Config) httpserver.RouterConfig {
	return httpserver.RouterConfig{
		Enabled:        cfg.IsEnabled(),
		EndpointPath:   cfg.Server.EndpointPath,
		TrustedProxies: cfg.Server.TrustedProxies,
		Pprof: httpserver.PprofConfig{
			Enabled: cfg.Pprof.Enabled,
			Token:   cfg.Pprof.Token,
		},
	}
}

func mapServerConfig(cfg *config.Config) (httpserver.ServerConfig, error) {
	read, err := config.ParseDurationOrDefault("server.read_timeout", cfg.Server.ReadTimeout, 15*time.Second)
	if err != nil {
		return httpserver.ServerConfig{}, err
	}
	write, err := config.ParseDurationOrDefault("server.write_timeout", cfg.Server.WriteTimeout, 30*time.Second)
	if err != nil {
		return httpserver.ServerConfig{}, err
	}
	idle, err := config.ParseDurationOrDefault("server.idle_timeout", cfg.Server.IdleTimeout, 60*time.Second)
	if err != nil {
		return httpserver.ServerConfig{}, err
	}
	addr := strings.TrimSpace(cfg.Server.Addr)
	if addr == "" {
		addr = defaultAddr
	}
	return httpserver.ServerConfig{Addr: addr, ReadTimeout: read, WriteTimeout: write, IdleTimeout: idle}, nil
}

func mapSweepSpec(cfg *config.Config) string {
	if s := strings.TrimSpace(cfg.SweepEvery); s != "" {
		return s
	}
	return defaultSweepEvery
}

// mapStorageConfig returns the store config, whether storage is on, and the
// audit retention (0 keeps everything).
func mapStorageConfig(cfg *config.Config) (storage.Config, bool, time.Duration, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, 0, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, 0, nil
	}
	path := strings.TrimSpace(sc.Path)
	retention, err := config.ParseOptionalDuration("storage.retention", sc.Retention, defaultRetention)
	if err != nil {
		return storage.Config{}, false, 0, err
	}

	switch driver {
	case "file":
		return storage.Config{Driver: "file", Path: path}, true, retention, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, 0, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, 0, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, retention, nil
	default:
		return storage.Config{}, false, 0, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapMirrorConfig(cfg *config.Config) (mirror.Config, bool) {
	mc := cfg.Mirror
	if mc == nil || !mc.Enabled {
		return mirror.Config{}, false
	}
	return mirror.Config{
		Addr:     strings.TrimSpace(mc.Addr),
		Password: mc.Password,
		DB:       mc.DB,
		Channel:  strings.TrimSpace(mc.Channel),
	}, true
}

func newMetrics(cfg *config.Config) (telemetry.Provider, error) {
	mc := cfg.Metrics
	if mc == nil || !mc.Enabled {
		return telemetry.NoopProvider{}, nil
	}
	p, err := telemetry.NewStatsd(telemetry.StatsdConfig{
		Addr:      strings.TrimSpace(mc.Addr),
		Namespace: strings.TrimSpace(mc.Namespace),
		Tags:      mc.Tags,
	})
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	return p, nil
}

// validateMapped rejects configs that pass config.Validate but cannot be
// mapped onto the running components.
func validateMapped(cfg *config.Config) error {
	if _, err := mapRelayConfig(cfg); err != nil {
		return err
	}
	if _, err := mapTelegramConfig(cfg); err != nil {
		return err
	}
	if _, err := mapServerConfig(cfg); err != nil {
		return err
	}
	if _, _, _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	return nil
}
