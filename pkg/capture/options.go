package capture

import (
	"time"

	"tgnotify/internal/dedup"
)

// DefaultEndpoint is the relay path captured errors are posted to.
const DefaultEndpoint = "/api/telegram-notify"

// Options toggles the capture sources and shapes the filter chain.
//
// Start from DefaultOptions: the zero value has every source off and a
// sample rate of 0.
type Options struct {
	Enabled bool

	IncludeFrameworkErrors bool
	IncludeRuntimeErrors   bool
	IncludeUnhandledAsync  bool
	CaptureLogErrors       bool

	// SampleRate is clamped to [0,1]; 1 keeps everything.
	SampleRate float64
	// DedupeWindow suppresses repeats of the same signature. <=0 disables.
	DedupeWindow time.Duration
	// IgnorePatterns are case-insensitive regular expressions matched
	// against the capture key.
	IgnorePatterns []string
	// Endpoint is the relay path. Errors mentioning it are never captured.
	Endpoint string

	// MaxPerSecond caps dispatches client-side. <=0 means no cap.
	MaxPerSecond float64
	// SendTimeout bounds each dispatch.
	SendTimeout time.Duration

	// Location returns the URL attached to every capture (optional).
	Location func() string
}

func DefaultOptions() Options {
	return Options{
		Enabled:                true,
		IncludeFrameworkErrors: true,
		IncludeRuntimeErrors:   true,
		IncludeUnhandledAsync:  true,
		SampleRate:             1,
		DedupeWindow:           5 * time.Second,
		IgnorePatterns:         []string{"ResizeObserver loop limit exceeded"},
		Endpoint:               DefaultEndpoint,
		SendTimeout:            10 * time.Second,
	}
}

func (o Options) normalize() Options {
	if o.SampleRate < 0 {
		o.SampleRate = 0
	}
	if o.SampleRate > 1 {
		o.SampleRate = 1
	}
	if o.Endpoint == "" {
		o.Endpoint = DefaultEndpoint
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = 10 * time.Second
	}
	return o
}

// Option injects collaborators, mostly for tests.
type Option func(*Pipeline)

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// WithRand replaces the sampling source; it must return values in [0,1).
func WithRand(rnd func() float64) Option {
	return func(p *Pipeline) {
		if rnd != nil {
			p.rand = rnd
		}
	}
}

func WithDedup(c *dedup.Cache) Option {
	return func(p *Pipeline) {
		if c != nil {
			p.dedup = c
		}
	}
}
