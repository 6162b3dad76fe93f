// Package mirror republishes delivered notifications on a Redis pub/sub
// channel so other services can follow what the relay sent.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"tgnotify/internal/eventbus"
	"tgnotify/internal/relay"
	"tgnotify/pkg/logx"
)

const DefaultChannel = "tgnotify.delivered"

type Config struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// Publisher is the subset of *redis.Client the mirror uses.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type Mirror struct {
	pub     Publisher
	channel string
	log     logx.Logger
	closer  func() error
}

// Dial connects to Redis and verifies the connection.
func Dial(ctx context.Context, cfg Config, log logx.Logger) (*Mirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     strings.TrimSpace(cfg.Addr),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: 2,
	})
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	m := New(client, cfg.Channel, log)
	m.closer = client.Close
	return m, nil
}

func New(pub Publisher, channel string, log logx.Logger) *Mirror {
	if strings.TrimSpace(channel) == "" {
		channel = DefaultChannel
	}
	return &Mirror{pub: pub, channel: channel, log: log}
}

func (m *Mirror) Channel() string { return m.channel }

// Publish sends one event to the channel.
func (m *Mirror) Publish(ctx context.Context, ev relay.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	if err := m.pub.Publish(ctx, m.channel, data).Err(); err != nil {
		return fmt.Errorf("publishing to Redis: %w", err)
	}
	return nil
}

// Run forwards relay.delivered events from ch until it closes or ctx ends.
func (m *Mirror) Run(ctx context.Context, ch <-chan eventbus.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			ev, ok := e.Data.(relay.Event)
			if !ok || ev.Outcome != relay.OutcomeDelivered {
				continue
			}
			pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			if err := m.Publish(pctx, ev); err != nil {
				m.log.Warn("mirror publish failed", logx.String("channel", m.channel), logx.Err(err))
			}
			cancel()
		}
	}
}

func (m *Mirror) Close() error {
	if m.closer == nil {
		return nil
	}
	return m.closer()
}
