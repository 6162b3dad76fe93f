package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tgnotify/internal/format"
)

// ChatID is a Telegram chat id or @username. JSON accepts a number or a string.
type ChatID string

func (c *ChatID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*c = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = ChatID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("chatId: expected number or string")
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("chatId: %q is not an integer", n.String())
	}
	*c = ChatID(n.String())
	return nil
}

// Request is an inbound notification.
type Request struct {
	Type        format.Type `json:"type"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Tags        []string    `json:"tags,omitempty"`
	URL         string      `json:"url,omitempty"`
	Stack       string      `json:"stack,omitempty"`

	// ChatID and ThreadID override the configured destination.
	ChatID   ChatID `json:"chatId,omitempty"`
	ThreadID int    `json:"threadId,omitempty"`
}

func (r Request) formatInput() format.Input {
	return format.Input{
		Type:        r.Type,
		Title:       r.Title,
		Description: r.Description,
		Tags:        r.Tags,
		URL:         r.URL,
		Stack:       r.Stack,
	}
}

// Config holds the dispatcher's live settings. It is swapped as a whole on reload.
type Config struct {
	DefaultChatID   string
	DefaultThreadID int

	RateLimitPerSource int
	RateLimitWindow    time.Duration

	// DedupWindow <= 0 disables server-side dedup.
	DedupWindow time.Duration
}

func (c Config) normalize() Config {
	if c.RateLimitPerSource <= 0 {
		c.RateLimitPerSource = 10
	}
	if c.RateLimitWindow <= 0 {
		c.RateLimitWindow = 60 * time.Second
	}
	c.DefaultChatID = strings.TrimSpace(c.DefaultChatID)
	return c
}

// Delivery is one outbound message.
type Delivery struct {
	ChatID   string
	ThreadID int
	Text     string
}

// Sender performs a single delivery attempt. The raw provider result is
// returned verbatim to the caller.
type Sender interface {
	Send(ctx context.Context, d Delivery) (json.RawMessage, error)
}

// ProviderError is a delivery failure reported by the provider itself.
type ProviderError struct {
	Code        int
	Description string
}

func (e *ProviderError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("telegram: %s (%d)", e.Description, e.Code)
	}
	return "telegram: " + e.Description
}

// RateInfo is what the rate check reported for this request.
type RateInfo struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Result is a successful dispatch.
type Result struct {
	OK           bool
	Deduplicated bool
	// Provider is the raw provider response (nil when deduplicated).
	Provider json.RawMessage
	Rate     *RateInfo
}
