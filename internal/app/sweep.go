package app

import (
	"context"
	"time"

	"tgnotify/pkg/logx"
)

// sweep is the cron job: expire limiter and dedup state, prune old audit
// records, and report events dropped by slow bus subscribers.
func (a *App) sweep() {
	buckets, keys := a.relay.Sweep()

	a.mu.Lock()
	retention := a.retention
	dropped := a.bus.Dropped()
	newlyDropped := dropped - a.dropped
	a.dropped = dropped
	a.mu.Unlock()

	pruned := 0
	if a.store != nil && retention > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		n, err := a.store.PruneAudit(ctx, time.Now().Add(-retention))
		cancel()
		if err != nil {
			a.log.Warn("audit prune failed", logx.Err(err))
		}
		pruned = n
	}
	if newlyDropped > 0 {
		a.log.Warn("event subscribers fell behind", logx.Int64("dropped", int64(newlyDropped)))
	}
	if buckets+keys+pruned > 0 {
		a.log.Debug("sweep",
			logx.Int("buckets", buckets),
			logx.Int("dedup_keys", keys),
			logx.Int("audit_pruned", pruned),
		)
	}
}
