package config

import (
	"reflect"
	"sort"
	"strings"

	"tgnotify/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and safe
// structured fields for logging. Secrets are reported only as "*_set" flags.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 24)
	set := func(s string) bool { return strings.TrimSpace(s) != "" }

	if oldCfg.IsEnabled() != newCfg.IsEnabled() {
		changed = append(changed, "enabled")
		attrs = append(attrs, logx.Bool("enabled", newCfg.IsEnabled()))
	}

	if !reflect.DeepEqual(oldCfg.Server, newCfg.Server) {
		changed = append(changed, "server")
		attrs = append(attrs,
			logx.String("server.addr", newCfg.Server.Addr),
			logx.String("server.endpoint_path", newCfg.Server.EndpointPath),
			logx.Int("server.trusted_proxies", len(newCfg.Server.TrustedProxies)),
		)
	}

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.Token != nt.Token || ot.ChatID != nt.ChatID || ot.ThreadID != nt.ThreadID ||
		strings.TrimSpace(ot.APIURL) != strings.TrimSpace(nt.APIURL) ||
		strings.TrimSpace(ot.Timeout) != strings.TrimSpace(nt.Timeout) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_set", set(nt.Token)),
			logx.Bool("telegram.token_changed", ot.Token != nt.Token),
			logx.Bool("telegram.chat_id_set", set(nt.ChatID)),
			logx.Int("telegram.thread_id", nt.ThreadID),
			logx.Bool("telegram.api_url_set", set(nt.APIURL)),
			logx.String("telegram.timeout", strings.TrimSpace(nt.Timeout)),
		)
	}

	if oldCfg.RateLimit != newCfg.RateLimit {
		changed = append(changed, "rate_limit")
		attrs = append(attrs,
			logx.Int("rate_limit.per_source", newCfg.RateLimit.PerSource),
			logx.String("rate_limit.window", newCfg.RateLimit.Window),
			logx.Int("rate_limit.max_sources", newCfg.RateLimit.MaxSources),
		)
	}

	if oldCfg.Dedup != newCfg.Dedup {
		changed = append(changed, "dedup")
		attrs = append(attrs,
			logx.String("dedup.window", newCfg.Dedup.Window),
			logx.Int("dedup.max_entries", newCfg.Dedup.MaxEntries),
		)
	}

	if strings.TrimSpace(oldCfg.SweepEvery) != strings.TrimSpace(newCfg.SweepEvery) {
		changed = append(changed, "sweep_every")
		attrs = append(attrs, logx.String("sweep_every", newCfg.SweepEvery))
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.json", newCfg.Logging.JSON),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	var oS, nS StorageConfig
	if oldCfg.Storage != nil {
		oS = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		nS = *newCfg.Storage
	}
	if oS != nS {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nS.Driver)),
			logx.Bool("storage.path_set", set(nS.Path)),
			logx.String("storage.retention", strings.TrimSpace(nS.Retention)),
		)
	}

	var oM, nM MirrorConfig
	if oldCfg.Mirror != nil {
		oM = *oldCfg.Mirror
	}
	if newCfg.Mirror != nil {
		nM = *newCfg.Mirror
	}
	if oM != nM {
		changed = append(changed, "mirror")
		attrs = append(attrs,
			logx.Bool("mirror.enabled", nM.Enabled),
			logx.String("mirror.addr", nM.Addr),
			logx.Bool("mirror.password_set", set(nM.Password)),
			logx.String("mirror.channel", nM.Channel),
		)
	}

	var oMt, nMt MetricsConfig
	if oldCfg.Metrics != nil {
		oMt = *oldCfg.Metrics
	}
	if newCfg.Metrics != nil {
		nMt = *newCfg.Metrics
	}
	if !reflect.DeepEqual(oMt, nMt) {
		changed = append(changed, "metrics")
		attrs = append(attrs,
			logx.Bool("metrics.enabled", nMt.Enabled),
			logx.String("metrics.addr", nMt.Addr),
		)
	}

	if oldCfg.Pprof.Enabled != newCfg.Pprof.Enabled || oldCfg.Pprof.Token != newCfg.Pprof.Token {
		changed = append(changed, "pprof")
		attrs = append(attrs,
			logx.Bool("pprof.enabled", newCfg.Pprof.Enabled),
			logx.Bool("pprof.token_set", set(newCfg.Pprof.Token)),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
