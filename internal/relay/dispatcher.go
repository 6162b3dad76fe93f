// Package relay is the server-side admission pipeline: validate, rate-limit,
// format, dedupe and deliver one notification.
package relay

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"sync"
	"time"

	"tgnotify/internal/dedup"
	"tgnotify/internal/eventbus"
	"tgnotify/internal/format"
	"tgnotify/internal/ratelimit"
	"tgnotify/internal/telemetry"
	"tgnotify/pkg/logx"
)

// Deps are the dispatcher's collaborators. Nil fields get private defaults.
type Deps struct {
	Limiter *ratelimit.Limiter
	Dedup   *dedup.Cache
	Log     logx.Logger
	Bus     eventbus.Bus
	Metrics telemetry.Provider
	Now     func() time.Time
}

type Dispatcher struct {
	mu     sync.RWMutex
	cfg    Config
	sender Sender

	limiter *ratelimit.Limiter
	dedup   *dedup.Cache
	log     logx.Logger
	bus     eventbus.Bus
	metrics telemetry.Provider
	now     func() time.Time
}

// New builds a dispatcher. A nil sender means no bot token is configured:
// every dispatch then fails with ErrMisconfigured.
func New(cfg Config, sender Sender, deps Deps) *Dispatcher {
	d := &Dispatcher{
		cfg:     cfg.normalize(),
		sender:  sender,
		limiter: deps.Limiter,
		dedup:   deps.Dedup,
		log:     deps.Log,
		bus:     deps.Bus,
		metrics: deps.Metrics,
		now:     deps.Now,
	}
	if d.limiter == nil {
		d.limiter = ratelimit.New(0)
	}
	if d.dedup == nil {
		d.dedup = dedup.New(0)
	}
	if d.metrics == nil {
		d.metrics = telemetry.NoopProvider{}
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// Apply swaps the live settings.
func (d *Dispatcher) Apply(cfg Config) {
	d.mu.Lock()
	d.cfg = cfg.normalize()
	d.mu.Unlock()
}

// SetSender replaces the delivery backend (nil marks the relay misconfigured).
func (d *Dispatcher) SetSender(s Sender) {
	d.mu.Lock()
	d.sender = s
	d.mu.Unlock()
}

// Configured reports whether a delivery backend (bot token) is present.
func (d *Dispatcher) Configured() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.sender != nil
}

func (d *Dispatcher) Config() Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

// Sweep drops expired limiter buckets and dedup keys.
func (d *Dispatcher) Sweep() (buckets, keys int) {
	cfg := d.Config()
	now := d.now()
	buckets = d.limiter.Sweep(now)
	keys = d.dedup.Sweep(now, cfg.DedupWindow)
	d.metrics.Gauge(telemetry.MetricTrackedSources, float64(d.limiter.Len()))
	d.metrics.Gauge(telemetry.MetricTrackedDedup, float64(d.dedup.Len()))
	return buckets, keys
}

// Dispatch runs req through the pipeline. source identifies the caller for
// rate limiting (usually the client IP); empty means "unknown".
//
// Errors are always *Error.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request, source string) (Result, error) {
	d.mu.RLock()
	cfg, sender := d.cfg, d.sender
	d.mu.RUnlock()

	source = strings.TrimSpace(source)
	if source == "" {
		source = ratelimit.UnknownSource
	}
	ev := Event{Source: source, Type: string(req.Type), Title: req.Title}

	if sender == nil {
		return d.fail(ev, OutcomeMisconfig, newError(ErrMisconfigured, "[telegram] Missing bot token in config"))
	}

	if err := format.Validate(req.formatInput()); err != nil {
		return d.fail(ev, OutcomeInvalid, newError(ErrInvalidRequest, validationMessage(err)))
	}

	chatID := string(req.ChatID)
	if chatID == "" {
		chatID = cfg.DefaultChatID
	}
	threadID := req.ThreadID
	if threadID == 0 {
		threadID = cfg.DefaultThreadID
	}
	ev.ChatID, ev.ThreadID = chatID, threadID
	if chatID == "" {
		return d.fail(ev, OutcomeInvalid, newError(ErrInvalidRequest, "chatId is required (telegram.chat_id or in request body)"))
	}

	now := d.now()
	dec := d.limiter.Admit(source, cfg.RateLimitWindow, cfg.RateLimitPerSource, now)
	rate := &RateInfo{Limit: dec.Limit, Remaining: dec.Remaining, ResetAt: dec.ResetAt}
	if !dec.Allowed {
		wait := dec.RetryAfter(now)
		e := &Error{
			Kind:       ErrRateLimited,
			Message:    fmt.Sprintf("Too Many Requests (try again in %ds)", int64(wait/time.Second)),
			RetryAfter: wait,
			Rate:       rate,
		}
		return d.fail(ev, OutcomeRejected, e)
	}

	msg, err := format.Format(req.formatInput())
	if err != nil {
		e := newError(ErrInvalidRequest, validationMessage(err))
		e.Rate = rate
		return d.fail(ev, OutcomeInvalid, e)
	}

	key := fingerprint(chatID, threadID, msg.Unclipped)
	if cfg.DedupWindow > 0 && d.dedup.CheckAndRecord(key, now, cfg.DedupWindow) {
		d.emit(ev, OutcomeDeduplicated)
		d.log.Debug("duplicate notification acknowledged", logx.String("source", source), logx.String("title", req.Title))
		return Result{OK: true, Deduplicated: true, Rate: rate}, nil
	}

	start := time.Now()
	raw, err := sender.Send(ctx, Delivery{ChatID: chatID, ThreadID: threadID, Text: msg.Text})
	ev.Elapsed = time.Since(start)
	d.metrics.Timing(telemetry.MetricDeliveryLatency, ev.Elapsed)
	if err != nil {
		// A failed attempt must not make the caller's retry look like a duplicate.
		if cfg.DedupWindow > 0 {
			d.dedup.Forget(key)
		}
		e := newError(ErrDeliveryFailed, "Telegram API error: "+failureDetail(err))
		e.Rate = rate
		d.log.Warn("telegram delivery failed", logx.String("source", source), logx.String("chat_id", chatID), logx.Err(err), logx.Duration("elapsed", ev.Elapsed))
		return d.fail(ev, OutcomeFailed, e)
	}

	ev.Text = msg.Text
	d.emit(ev, OutcomeDelivered)
	d.log.Info("notification delivered",
		logx.String("source", source),
		logx.String("type", string(req.Type)),
		logx.String("chat_id", chatID),
		logx.Bool("truncated", msg.Truncated),
		logx.Duration("elapsed", ev.Elapsed),
	)
	return Result{OK: true, Provider: raw, Rate: rate}, nil
}

func (d *Dispatcher) fail(ev Event, o Outcome, e *Error) (Result, error) {
	ev.Error = e.Error()
	d.emit(ev, o)
	if o != OutcomeFailed {
		d.log.Debug("notification refused", logx.String("outcome", string(o)), logx.String("source", ev.Source), logx.String("reason", e.Error()))
	}
	return Result{}, e
}

func (d *Dispatcher) emit(ev Event, o Outcome) {
	ev.Outcome = o
	ev.At = d.now()
	d.metrics.IncrementCounter(telemetry.MetricDispatch, 1, "outcome:"+string(o))
	if d.bus != nil {
		d.bus.Publish(eventbus.Event{Type: o.EventType(), Time: ev.At, Data: ev})
	}
}

func validationMessage(err error) string {
	switch {
	case errors.Is(err, format.ErrInvalidType):
		return `Invalid "type"`
	case errors.Is(err, format.ErrTitleRequired):
		return `Field "title" is required`
	default:
		return err.Error()
	}
}

// failureDetail prefers the provider's own description.
func failureDetail(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) && strings.TrimSpace(pe.Description) != "" {
		return pe.Description
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return "unknown"
}

// fingerprint identifies a message by destination and pre-clip content.
func fingerprint(chatID string, threadID int, text string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(chatID))
	_, _ = h.Write([]byte{'|'})
	_, _ = h.Write([]byte(strconv.Itoa(threadID)))
	_, _ = h.Write([]byte{'|'})
	_, _ = h.Write([]byte(text))
	return strconv.FormatUint(h.Sum64(), 16)
}
