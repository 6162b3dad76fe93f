package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgnotify/internal/dedup"
	"tgnotify/internal/eventbus"
	"tgnotify/internal/format"
	"tgnotify/internal/ratelimit"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  []Delivery
	err   error
	reply json.RawMessage
}

func (f *fakeSender) Send(_ context.Context, d Delivery) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, d)
	if f.err != nil {
		return nil, f.err
	}
	if f.reply != nil {
		return f.reply, nil
	}
	return json.RawMessage(`{"message_id":1}`), nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestDispatcher(t *testing.T, cfg Config, s Sender) (*Dispatcher, *ratelimit.Limiter, *clock) {
	t.Helper()
	lim := ratelimit.New(0)
	clk := &clock{t: time.UnixMilli(1_699_999_980_000)}
	d := New(cfg, s, Deps{Limiter: lim, Dedup: dedup.New(0), Now: clk.now})
	return d, lim, clk
}

func baseConfig() Config {
	return Config{DefaultChatID: "-100123", RateLimitPerSource: 10, RateLimitWindow: time.Minute}
}

func TestDispatchDelivers(t *testing.T) {
	s := &fakeSender{}
	d, _, _ := newTestDispatcher(t, baseConfig(), s)

	res, err := d.Dispatch(context.Background(), Request{Type: format.TypeInfo, Title: "hi"}, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.JSONEq(t, `{"message_id":1}`, string(res.Provider))
	require.NotNil(t, res.Rate)
	assert.Equal(t, 10, res.Rate.Limit)
	assert.Equal(t, 9, res.Rate.Remaining)

	require.Equal(t, 1, s.count())
	assert.Equal(t, "-100123", s.sent[0].ChatID)
	assert.Equal(t, "<b>ℹ️ hi</b>", s.sent[0].Text)
}

func TestDispatchRequestOverridesDestination(t *testing.T) {
	s := &fakeSender{}
	cfg := baseConfig()
	cfg.DefaultThreadID = 7
	d, _, _ := newTestDispatcher(t, cfg, s)

	_, err := d.Dispatch(context.Background(), Request{Type: format.TypeInfo, Title: "a", ChatID: "@ops", ThreadID: 42}, "x")
	require.NoError(t, err)
	_, err = d.Dispatch(context.Background(), Request{Type: format.TypeInfo, Title: "b"}, "x")
	require.NoError(t, err)

	assert.Equal(t, Delivery{ChatID: "@ops", ThreadID: 42, Text: "<b>ℹ️ a</b>"}, s.sent[0])
	assert.Equal(t, "-100123", s.sent[1].ChatID)
	assert.Equal(t, 7, s.sent[1].ThreadID)
}

func TestDispatchEleventhRequestIsRateLimited(t *testing.T) {
	s := &fakeSender{}
	d, _, clk := newTestDispatcher(t, baseConfig(), s)

	for i := 0; i < 10; i++ {
		_, err := d.Dispatch(context.Background(), Request{Type: format.TypeWarning, Title: "t", Description: string(rune('a' + i))}, "1.2.3.4")
		require.NoError(t, err, "request %d", i+1)
		clk.advance(time.Second)
	}

	_, err := d.Dispatch(context.Background(), Request{Type: format.TypeWarning, Title: "t"}, "1.2.3.4")
	require.ErrorIs(t, err, ErrRateLimited)
	var re *Error
	require.True(t, errors.As(err, &re))
	require.NotNil(t, re.Rate)
	assert.Equal(t, 0, re.Rate.Remaining)
	assert.Greater(t, re.RetryAfter, time.Duration(0))
	assert.Equal(t, 50*time.Second, re.RetryAfter)
	assert.Equal(t, "Too Many Requests (try again in 50s)", re.Error())
	assert.Equal(t, 10, s.count())

	// A new window admits again.
	clk.advance(50 * time.Second)
	_, err = d.Dispatch(context.Background(), Request{Type: format.TypeWarning, Title: "again"}, "1.2.3.4")
	require.NoError(t, err)
}

func TestDispatchMissingTokenLeavesLimiterUntouched(t *testing.T) {
	d, lim, _ := newTestDispatcher(t, baseConfig(), nil)

	_, err := d.Dispatch(context.Background(), Request{Type: format.TypeInfo, Title: "x"}, "1.2.3.4")
	require.ErrorIs(t, err, ErrMisconfigured)
	assert.Zero(t, lim.Len())
}

func TestDispatchValidation(t *testing.T) {
	s := &fakeSender{}
	d, lim, _ := newTestDispatcher(t, baseConfig(), s)

	_, err := d.Dispatch(context.Background(), Request{Type: "fatal", Title: "x"}, "a")
	require.ErrorIs(t, err, ErrInvalidRequest)
	assert.Equal(t, `Invalid "type"`, err.Error())

	_, err = d.Dispatch(context.Background(), Request{Type: format.TypeInfo, Title: "  "}, "a")
	require.ErrorIs(t, err, ErrInvalidRequest)
	assert.Equal(t, `Field "title" is required`, err.Error())

	assert.Zero(t, lim.Len())
	assert.Zero(t, s.count())
}

func TestDispatchWithoutDestination(t *testing.T) {
	cfg := baseConfig()
	cfg.DefaultChatID = ""
	d, _, _ := newTestDispatcher(t, cfg, &fakeSender{})

	_, err := d.Dispatch(context.Background(), Request{Type: format.TypeInfo, Title: "x"}, "a")
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = d.Dispatch(context.Background(), Request{Type: format.TypeInfo, Title: "x", ChatID: "42"}, "a")
	require.NoError(t, err)
}

func TestDispatchDeliveryFailure(t *testing.T) {
	s := &fakeSender{err: &ProviderError{Code: 400, Description: "Bad Request: chat not found"}}
	cfg := baseConfig()
	cfg.DedupWindow = 30 * time.Second
	d, _, _ := newTestDispatcher(t, cfg, s)

	req := Request{Type: format.TypeError, Title: "x"}
	_, err := d.Dispatch(context.Background(), req, "a")
	require.ErrorIs(t, err, ErrDeliveryFailed)
	assert.Equal(t, "Telegram API error: Bad Request: chat not found", err.Error())
	var re *Error
	require.True(t, errors.As(err, &re))
	assert.NotNil(t, re.Rate)

	// The retry is delivered again rather than deduplicated.
	s.err = nil
	res, err := d.Dispatch(context.Background(), req, "a")
	require.NoError(t, err)
	assert.False(t, res.Deduplicated)
	assert.Equal(t, 2, s.count())
}

func TestFailureDetail(t *testing.T) {
	assert.Equal(t, "boom", failureDetail(errors.New("boom")))
	assert.Equal(t, "unknown", failureDetail(errors.New(" ")))
	assert.Equal(t, "x", failureDetail(&ProviderError{Description: "x"}))
}

func TestDispatchDeduplicates(t *testing.T) {
	s := &fakeSender{}
	cfg := baseConfig()
	cfg.DedupWindow = 30 * time.Second
	d, _, clk := newTestDispatcher(t, cfg, s)
	req := Request{Type: format.TypeError, Title: "same", Stack: "a\nb"}

	_, err := d.Dispatch(context.Background(), req, "a")
	require.NoError(t, err)
	clk.advance(10 * time.Second)
	res, err := d.Dispatch(context.Background(), req, "b")
	require.NoError(t, err)
	assert.True(t, res.Deduplicated)
	assert.Nil(t, res.Provider)

	// Different destination is not a duplicate.
	req.ChatID = "other"
	res, err = d.Dispatch(context.Background(), req, "a")
	require.NoError(t, err)
	assert.False(t, res.Deduplicated)
	assert.Equal(t, 2, s.count())
}

func TestDispatchDedupDisabled(t *testing.T) {
	s := &fakeSender{}
	d, _, _ := newTestDispatcher(t, baseConfig(), s)
	req := Request{Type: format.TypeInfo, Title: "same"}
	for i := 0; i < 3; i++ {
		_, err := d.Dispatch(context.Background(), req, "a")
		require.NoError(t, err)
	}
	assert.Equal(t, 3, s.count())
}

func TestDispatchPublishesEvents(t *testing.T) {
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(8, EventPrefix)
	defer unsub()

	d := New(baseConfig(), &fakeSender{}, Deps{Bus: bus})
	_, err := d.Dispatch(context.Background(), Request{Type: format.TypeSuccess, Title: "ok"}, "")
	require.NoError(t, err)
	_, _ = d.Dispatch(context.Background(), Request{Type: "nope", Title: "ok"}, "")

	e := <-ch
	assert.Equal(t, "relay.delivered", e.Type)
	ev := e.Data.(Event)
	assert.Equal(t, ratelimit.UnknownSource, ev.Source)
	assert.Equal(t, "<b>✅ ok</b>", ev.Text)

	e = <-ch
	assert.Equal(t, "relay.invalid", e.Type)
}

func TestApplyAndSetSender(t *testing.T) {
	d, _, _ := newTestDispatcher(t, baseConfig(), nil)
	d.SetSender(&fakeSender{})
	cfg := baseConfig()
	cfg.RateLimitPerSource = 1
	d.Apply(cfg)

	_, err := d.Dispatch(context.Background(), Request{Type: format.TypeInfo, Title: "a"}, "s")
	require.NoError(t, err)
	_, err = d.Dispatch(context.Background(), Request{Type: format.TypeInfo, Title: "b"}, "s")
	require.ErrorIs(t, err, ErrRateLimited)
}

func TestSweep(t *testing.T) {
	cfg := baseConfig()
	cfg.DedupWindow = time.Second
	d, lim, clk := newTestDispatcher(t, cfg, &fakeSender{})
	_, err := d.Dispatch(context.Background(), Request{Type: format.TypeInfo, Title: "a"}, "s")
	require.NoError(t, err)

	clk.advance(2 * time.Minute)
	buckets, keys := d.Sweep()
	assert.Equal(t, 1, buckets)
	assert.Equal(t, 1, keys)
	assert.Zero(t, lim.Len())
}

func TestChatIDUnmarshal(t *testing.T) {
	var r Request
	require.NoError(t, json.Unmarshal([]byte(`{"type":"info","title":"t","chatId":-1001234567890}`), &r))
	assert.Equal(t, ChatID("-1001234567890"), r.ChatID)

	require.NoError(t, json.Unmarshal([]byte(`{"chatId":"@channel"}`), &r))
	assert.Equal(t, ChatID("@channel"), r.ChatID)

	assert.Error(t, json.Unmarshal([]byte(`{"chatId":1.5}`), &r))
	assert.Error(t, json.Unmarshal([]byte(`{"chatId":true}`), &r))
}

func TestConfigured(t *testing.T) {
	d, _, _ := newTestDispatcher(t, baseConfig(), nil)
	assert.False(t, d.Configured())
	d.SetSender(&fakeSender{})
	assert.True(t, d.Configured())
}
