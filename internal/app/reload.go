package app

import (
	"context"
	"strings"

	"tgnotify/internal/config"
	"tgnotify/pkg/logx"
)

// reloadLoop applies published configs until ctx ends.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			if newCfg == nil {
				continue
			}
			a.applyConfig(lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

// applyConfig swaps live settings. Sections that need a restart are logged.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	changed := map[string]bool{}
	for _, s := range sections {
		changed[s] = true
	}

	if changed["logging"] {
		a.logs.Apply(mapLogConfig(newCfg))
	}

	if rc, err := mapRelayConfig(newCfg); err != nil {
		a.log.Warn("invalid relay config; keeping previous", logx.Err(err))
	} else {
		a.relay.Apply(rc)
	}
	maxSources, maxEntries := mapCaps(newCfg)
	a.limiter.SetMaxKeys(maxSources)
	a.dedup.SetMaxEntries(maxEntries)

	if changed["telegram"] && telegramTransportChanged(oldCfg, newCfg) {
		tc, err := mapTelegramConfig(newCfg)
		if err == nil {
			sender, serr := newSender(tc)
			if serr != nil {
				err = serr
			} else {
				a.relay.SetSender(sender)
				if sender == nil {
					a.log.Warn("telegram.token removed; notifications will fail with 500")
				}
			}
		}
		if err != nil {
			a.log.Warn("invalid telegram config; keeping previous sender", logx.Err(err))
		}
	}

	if changed["enabled"] || changed["server"] || changed["pprof"] {
		router, err := a.newRouter(newCfg)
		if err != nil {
			a.log.Warn("router rebuild failed; keeping previous", logx.Err(err))
		} else {
			a.server.SetHandler(router)
		}
		if serverRestartNeeded(oldCfg, newCfg) {
			a.log.Warn("server address or timeouts changed; restart required for them to take effect")
		}
	}

	if changed["sweep_every"] {
		if err := a.reschedule(mapSweepSpec(newCfg)); err != nil {
			a.log.Warn("invalid sweep_every; keeping previous schedule", logx.Err(err))
		}
	}

	if changed["storage"] {
		if _, _, retention, err := mapStorageConfig(newCfg); err == nil {
			a.mu.Lock()
			a.retention = retention
			a.mu.Unlock()
		}
		if storageRestartNeeded(oldCfg, newCfg) {
			a.log.Warn("storage driver or path changed; restart required for it to take effect")
		}
	}
	for _, s := range []string{"mirror", "metrics"} {
		if changed[s] {
			a.log.Warn(s + " config changed; restart required for changes to take effect")
		}
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func telegramTransportChanged(o, n *config.Config) bool {
	return strings.TrimSpace(o.Telegram.Token) != strings.TrimSpace(n.Telegram.Token) ||
		strings.TrimSpace(o.Telegram.APIURL) != strings.TrimSpace(n.Telegram.APIURL) ||
		strings.TrimSpace(o.Telegram.Timeout) != strings.TrimSpace(n.Telegram.Timeout)
}

func serverRestartNeeded(o, n *config.Config) bool {
	a, b := o.Server, n.Server
	return strings.TrimSpace(a.Addr) != strings.TrimSpace(b.Addr) ||
		a.ReadTimeout != b.ReadTimeout || a.WriteTimeout != b.WriteTimeout || a.IdleTimeout != b.IdleTimeout
}

func storageRestartNeeded(o, n *config.Config) bool {
	var od, op, nd, np string
	if o.Storage != nil {
		od, op = o.Storage.Driver, o.Storage.Path
	}
	if n.Storage != nil {
		nd, np = n.Storage.Driver, n.Storage.Path
	}
	return !strings.EqualFold(strings.TrimSpace(od), strings.TrimSpace(nd)) || strings.TrimSpace(op) != strings.TrimSpace(np)
}
