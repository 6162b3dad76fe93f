package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate checks values that would otherwise fail at apply time.
// A missing telegram.token is not an error: the relay then answers 500.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	check := func(path, raw string) {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	check("server.read_timeout", cfg.Server.ReadTimeout)
	check("server.write_timeout", cfg.Server.WriteTimeout)
	check("server.idle_timeout", cfg.Server.IdleTimeout)
	check("telegram.timeout", cfg.Telegram.Timeout)
	check("rate_limit.window", cfg.RateLimit.Window)
	check("dedup.window", cfg.Dedup.Window)

	if cfg.RateLimit.PerSource < 0 {
		errs = append(errs, fmt.Errorf("rate_limit.per_source: must be >= 0"))
	}
	if cfg.RateLimit.MaxSources < 0 {
		errs = append(errs, fmt.Errorf("rate_limit.max_sources: must be >= 0"))
	}
	if cfg.Dedup.MaxEntries < 0 {
		errs = append(errs, fmt.Errorf("dedup.max_entries: must be >= 0"))
	}
	if cfg.Telegram.ThreadID < 0 {
		errs = append(errs, fmt.Errorf("telegram.thread_id: must be >= 0"))
	}
	if p := strings.TrimSpace(cfg.Server.EndpointPath); p != "" && strings.ContainsAny(p, " ?#") {
		errs = append(errs, fmt.Errorf("server.endpoint_path: invalid path %q", p))
	}
	if s := strings.TrimSpace(cfg.SweepEvery); s != "" {
		if _, err := cron.ParseStandard(s); err != nil {
			errs = append(errs, fmt.Errorf("sweep_every: %w", err))
		}
	}

	if st := cfg.Storage; st != nil {
		switch strings.ToLower(strings.TrimSpace(st.Driver)) {
		case "", "none", "file", "sqlite":
		default:
			errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", st.Driver))
		}
		check("storage.busy_timeout", st.BusyTimeout)
		check("storage.retention", st.Retention)
	}
	if mc := cfg.Mirror; mc != nil && mc.Enabled && strings.TrimSpace(mc.Addr) == "" {
		errs = append(errs, errors.New("mirror.addr: required when mirror is enabled"))
	}
	if cfg.Pprof.Enabled && strings.TrimSpace(cfg.Pprof.Token) == "" {
		errs = append(errs, errors.New("pprof.token: required when pprof is enabled"))
	}
	return errors.Join(errs...)
}
