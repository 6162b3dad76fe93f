package app

import (
	"context"
	"time"

	"tgnotify/internal/eventbus"
	"tgnotify/internal/relay"
	"tgnotify/internal/storage"
	"tgnotify/pkg/logx"
)

// runAudit persists every relay outcome until events closes or ctx ends.
func (a *App) runAudit(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			ev, ok := e.Data.(relay.Event)
			if !ok {
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			if err := a.store.AppendAudit(wctx, auditEntry(ev)); err != nil {
				a.log.Warn("audit write failed", logx.String("outcome", string(ev.Outcome)), logx.Err(err))
			}
			cancel()
		}
	}
}

func auditEntry(ev relay.Event) storage.AuditEntry {
	return storage.AuditEntry{
		At:       ev.At,
		Outcome:  string(ev.Outcome),
		Source:   ev.Source,
		Type:     ev.Type,
		Title:    ev.Title,
		ChatID:   ev.ChatID,
		ThreadID: ev.ThreadID,
		Error:    ev.Error,
		TookMS:   ev.Elapsed.Milliseconds(),
	}
}
