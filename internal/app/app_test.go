package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgnotify/internal/config"
)

func fakeTelegram(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bot123:abc/sendMessage", r.URL.Path)
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":7}}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func baseConfig(apiURL, auditPath string) string {
	return fmt.Sprintf(`{
  "server": {"addr": "127.0.0.1:0"},
  "telegram": {"token": "123:abc", "chat_id": "-100", "api_url": %q},
  "logging": {"level": "error", "console": true},
  "storage": {"driver": "file", "path": %q}
}`, apiURL, auditPath)
}

func TestAppDeliversAndAudits(t *testing.T) {
	tg := fakeTelegram(t)
	dir := t.TempDir()
	path := writeConfig(t, dir, baseConfig(tg.URL, filepath.Join(dir, "audit")))

	a, err := New(path, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx))
	defer func() { _ = a.Stop(context.Background(), StopAppStop) }()

	require.Eventually(t, func() bool { return a.Addr() != "" }, 3*time.Second, 10*time.Millisecond)

	resp, err := http.Post("http://"+a.Addr()+"/api/telegram-notify", "application/json",
		strings.NewReader(`{"type":"success","title":"deploy done"}`))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `"message_id":7`)
	assert.Equal(t, "10", resp.Header.Get("X-RateLimit-Limit"))

	require.Eventually(t, func() bool {
		got, err := a.store.RecentAudit(context.Background(), 10)
		return err == nil && len(got) == 1 && got[0].Outcome == "delivered"
	}, 3*time.Second, 20*time.Millisecond)

	a.sweep()
}

func TestOverrideAppliesBeforeBuild(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{"telegram": {"token": "123:abc"}}`)

	a, err := New(path, func(c *config.Config) {
		c.Telegram.Token = ""
		c.Telegram.ChatID = "-42"
	})
	require.NoError(t, err)
	assert.False(t, a.Dispatcher().Configured())
	assert.Equal(t, "-42", a.Dispatcher().Config().DefaultChatID)
}

func TestNewRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()
	_, err := New(writeConfig(t, dir, `{"storage": {"driver": "sqlite"}}`), nil)
	assert.Error(t, err)

	_, err = New(writeConfig(t, dir, `{"rate_limit": {"window": "soon"}}`), nil)
	assert.Error(t, err)

	_, err = New(filepath.Join(dir, "missing.json"), nil)
	assert.Error(t, err)
}

func TestApplyConfigSwapsLiveSettings(t *testing.T) {
	tg := fakeTelegram(t)
	dir := t.TempDir()
	path := writeConfig(t, dir, baseConfig(tg.URL, filepath.Join(dir, "audit")))
	a, err := New(path, nil)
	require.NoError(t, err)
	defer func() { _ = a.store.Close() }()

	oldCfg := a.cfgm.Get()
	next := *oldCfg
	next.RateLimit = config.RateLimitConfig{PerSource: 2, Window: "10s"}
	next.Dedup = config.DedupConfig{Window: "0s"}
	next.Telegram.Token = ""
	next.Storage = &config.StorageConfig{Driver: "file", Path: oldCfg.Storage.Path, Retention: "1h"}

	a.applyConfig(oldCfg, &next)

	rc := a.Dispatcher().Config()
	assert.Equal(t, 2, rc.RateLimitPerSource)
	assert.Equal(t, 10*time.Second, rc.RateLimitWindow)
	assert.Zero(t, rc.DedupWindow)
	assert.False(t, a.Dispatcher().Configured())
	assert.Equal(t, time.Hour, a.retention)
}

func TestRescheduleSweep(t *testing.T) {
	dir := t.TempDir()
	a, err := New(writeConfig(t, dir, `{}`), nil)
	require.NoError(t, err)

	require.NoError(t, a.startCron())
	defer a.cron.Stop()
	first := a.sweepID

	require.NoError(t, a.reschedule("@every 5m"))
	assert.NotEqual(t, first, a.sweepID)
	assert.Len(t, a.cron.Entries(), 1)

	assert.Error(t, a.reschedule("not a spec"))
	assert.Equal(t, "@every 5m", a.sweepSpec)
}
