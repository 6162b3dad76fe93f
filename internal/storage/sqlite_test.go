//go:build sqlite

package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgnotify/pkg/logx"
)

func TestSQLiteStore(t *testing.T) {
	st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "audit.db"), BusyTimeout: time.Second}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.AppendAudit(ctx, AuditEntry{At: base, Outcome: "delivered", Source: "a", ChatID: "-1"}))
	require.NoError(t, st.AppendAudit(ctx, AuditEntry{At: base.Add(time.Hour), Outcome: "failed", Source: "b", Error: "boom"}))

	recent, err := st.RecentAudit(ctx, 5)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "failed", recent[0].Outcome)
	assert.Equal(t, "boom", recent[0].Error)
	assert.True(t, recent[1].At.Equal(base))

	n, err := st.PruneAudit(ctx, base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
