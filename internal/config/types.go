package config

// Config is the relay's on-disk configuration (JSON or YAML).
//
// Durations are Go duration strings ("500ms", "10s", "1m").
// Secrets (telegram.token, pprof.token, mirror.password) are never logged.
type Config struct {
	// Enabled registers the notification endpoint. Omitted means true.
	Enabled *bool `json:"enabled,omitempty"`

	Server    ServerConfig    `json:"server"`
	Telegram  TelegramConfig  `json:"telegram"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Dedup     DedupConfig     `json:"dedup"`

	// SweepEvery is a cron spec for pruning expired limiter/dedup state
	// (default "@every 1m").
	SweepEvery string `json:"sweep_every,omitempty"`

	Logging LoggingConfig  `json:"logging"`
	Storage *StorageConfig `json:"storage,omitempty"`
	Mirror  *MirrorConfig  `json:"mirror,omitempty"`
	Metrics *MetricsConfig `json:"metrics,omitempty"`
	Pprof   PprofConfig    `json:"pprof,omitempty"`
}

// IsEnabled resolves the master switch.
func (c *Config) IsEnabled() bool { return c == nil || c.Enabled == nil || *c.Enabled }

type ServerConfig struct {
	Addr         string `json:"addr,omitempty"`          // default "127.0.0.1:8080"
	EndpointPath string `json:"endpoint_path,omitempty"` // default "/api/telegram-notify"
	// TrustedProxies restricts which peers may set X-Forwarded-For.
	TrustedProxies []string `json:"trusted_proxies,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// ChatID is the default destination (numeric id or @username).
	ChatID   string `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
	// APIURL targets a self-hosted Bot API server.
	APIURL string `json:"api_url,omitempty"`
	// Timeout bounds one sendMessage call (default "10s").
	Timeout string `json:"timeout,omitempty"`
}

// RateLimitConfig defaults: per_source 10, window "60s", max_sources 10000.
type RateLimitConfig struct {
	PerSource  int    `json:"per_source,omitempty"`
	Window     string `json:"window,omitempty"`
	MaxSources int    `json:"max_sources,omitempty"`
}

// DedupConfig controls server-side duplicate suppression.
// An omitted window means "30s"; "0s" disables dedup.
type DedupConfig struct {
	Window     string `json:"window,omitempty"`
	MaxEntries int    `json:"max_entries,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	JSON    bool        `json:"json,omitempty"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig enables the audit trail of dispatch outcomes.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./tgnotify_audit" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
	// Retention drops audit records older than this (default "168h", "0s" keeps all).
	Retention string `json:"retention,omitempty"`
}

// MirrorConfig republishes delivered notifications on a Redis channel.
type MirrorConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
	Channel  string `json:"channel,omitempty"` // default "tgnotify.delivered"
}

// MetricsConfig sends counters to a DogStatsD agent.
type MetricsConfig struct {
	Enabled   bool     `json:"enabled"`
	Addr      string   `json:"addr,omitempty"`
	Namespace string   `json:"namespace,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

// PprofConfig mounts /debug/pprof on the relay router. A token is required.
type PprofConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token,omitempty"`
}
