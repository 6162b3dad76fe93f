package telemetry

import (
	"fmt"
	"strings"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
)

// StatsdConfig configures the DogStatsD client.
type StatsdConfig struct {
	Addr      string // host:port, default "127.0.0.1:8125"
	Namespace string // metric prefix, default "tgnotify."
	Tags      []string
}

// StatsdProvider forwards metrics to a DogStatsD agent.
type StatsdProvider struct {
	client statsd.ClientInterface
}

// NewStatsd dials the agent (UDP, non-blocking) and returns a provider.
func NewStatsd(cfg StatsdConfig) (*StatsdProvider, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		addr = "127.0.0.1:8125"
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = "tgnotify."
	}
	c, err := statsd.New(addr, statsd.WithNamespace(ns), statsd.WithTags(cfg.Tags))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize statsd client: %w", err)
	}
	return &StatsdProvider{client: c}, nil
}

// NewStatsdWithClient wraps an existing client (tests use statsd.NoOpClient).
func NewStatsdWithClient(c statsd.ClientInterface) *StatsdProvider {
	return &StatsdProvider{client: c}
}

func (p *StatsdProvider) IncrementCounter(name string, value int64, tags ...string) {
	_ = p.client.Count(name, value, tags, 1)
}

func (p *StatsdProvider) Gauge(name string, value float64, tags ...string) {
	_ = p.client.Gauge(name, value, tags, 1)
}

func (p *StatsdProvider) Timing(name string, value time.Duration, tags ...string) {
	_ = p.client.Timing(name, value, tags, 1)
}

func (p *StatsdProvider) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
