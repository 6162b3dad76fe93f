// Package capture forwards errors raised inside a host program to the relay.
//
// Every captured value goes through one chain: normalize, ignore, dedup,
// sample, throttle, then a fire-and-forget dispatch. Nothing in the chain
// blocks the caller or propagates an error back to it.
package capture

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tgnotify/internal/dedup"
	"tgnotify/internal/runtime/supervisor"
	"tgnotify/pkg/logx"
	"tgnotify/pkg/relayclient"
)

// Tag is attached to every captured notification.
const Tag = "AutoCapture"

// Sender delivers one error notification. *relayclient.Client satisfies it.
type Sender interface {
	Error(ctx context.Context, p relayclient.Payload) (*relayclient.Response, error)
}

type Pipeline struct {
	opts     Options
	patterns []Pattern
	sender   Sender
	log      logx.Logger

	dedup   *dedup.Cache
	now     func() time.Time
	rand    func() float64
	limiter *rate.Limiter

	sup    *supervisor.Supervisor
	mu     sync.RWMutex
	closed bool
}

func New(opts Options, sender Sender, log logx.Logger, extra ...Option) *Pipeline {
	log = log.With(logx.String("comp", "capture"))
	p := &Pipeline{
		opts:   opts.normalize(),
		sender: sender,
		log:    log,
		dedup:  dedup.New(1000),
		now:    time.Now,
		rand:   rand.Float64,
	}
	for _, o := range extra {
		o(p)
	}
	for _, src := range p.opts.IgnorePatterns {
		pat := CompilePattern(src)
		if !pat.Valid() {
			log.Warn("ignore pattern does not compile; it will never match", logx.String("pattern", src))
		}
		p.patterns = append(p.patterns, pat)
	}
	if p.opts.MaxPerSecond > 0 {
		burst := int(p.opts.MaxPerSecond)
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(p.opts.MaxPerSecond), burst)
	}
	p.sup = supervisor.New(context.Background(), supervisor.WithLogger(log))
	return p
}

// Options returns the normalized options.
func (p *Pipeline) Options() Options { return p.opts }

// Capture runs v through the filter chain and reports whether a notification
// was dispatched.
func (p *Pipeline) Capture(label string, v any, info string) (sent bool) {
	if p == nil || !p.opts.Enabled || p.sender == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			p.log.Warn("capture failed", logx.Any("panic", r))
			sent = false
		}
	}()

	stack := Normalize(v)
	head := Head(stack, v)
	key := Key(label, head)

	if p.ignored(key) {
		return false
	}
	now := p.now()
	if p.dedup.CheckAndRecord(key, now, p.opts.DedupeWindow) {
		return false
	}
	if p.rand() > p.opts.SampleRate {
		return false
	}
	if p.limiter != nil && !p.limiter.AllowN(now, 1) {
		p.log.Debug("capture throttled", logx.String("key", key))
		return false
	}

	payload := relayclient.Payload{
		Title:       label + ": " + head,
		Description: info,
		Tags:        []string{Tag},
		Stack:       stack,
	}
	if p.opts.Location != nil {
		payload.URL = p.opts.Location()
	}
	return p.dispatch(payload)
}

func (p *Pipeline) ignored(key string) bool {
	if strings.Contains(key, p.opts.Endpoint) {
		return true
	}
	for _, pat := range p.patterns {
		if pat.Match(key) {
			return true
		}
	}
	return false
}

func (p *Pipeline) dispatch(payload relayclient.Payload) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	p.sup.Go("capture.dispatch", func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, p.opts.SendTimeout)
		defer cancel()
		if _, err := p.sender.Error(ctx, payload); err != nil {
			p.log.Warn("capture dispatch failed", logx.String("title", payload.Title), logx.Err(err))
		}
		return nil
	})
	return true
}

// Pending returns how many dispatches are in flight.
func (p *Pipeline) Pending() int64 { return p.sup.Counters().Active }

// Close stops accepting captures and waits for in-flight dispatches until ctx
// is done, then cancels whatever is left.
func (p *Pipeline) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	err := p.sup.Wait(ctx)
	p.sup.Cancel()
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
