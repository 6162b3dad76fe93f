// Package relayclient posts notifications to a tgnotify relay endpoint.
//
// The relay holds the bot token and default chat; clients only know the
// endpoint URL.
package relayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tgnotify/internal/format"
	"tgnotify/internal/relay"
)

// Type is the notification kind; the relay picks the title emoji from it.
type Type string

const (
	TypeInfo    Type = "info"
	TypeSuccess Type = "success"
	TypeWarning Type = "warning"
	TypeError   Type = "error"
)

// Payload is one notification. Err, when set and Stack is empty, is rendered
// with %+v into Stack.
type Payload struct {
	Title       string
	Description string
	Tags        []string
	URL         string
	Stack       string
	Err         error

	// ChatID and ThreadID override the relay's default destination.
	ChatID   string
	ThreadID int
}

// Response is the relay's success body.
type Response struct {
	OK           bool            `json:"ok"`
	Deduplicated bool            `json:"deduplicated,omitempty"`
	Telegram     json.RawMessage `json:"telegram,omitempty"`
}

// Error is a non-2xx relay answer.
type Error struct {
	Status     int
	Message    string
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("relay: http %d", e.Status)
	}
	return fmt.Sprintf("relay: %s (http %d)", e.Message, e.Status)
}

// RateLimited reports whether the relay throttled the request.
func (e *Error) RateLimited() bool { return e.Status == http.StatusTooManyRequests }

type Client struct {
	endpoint string
	http     *http.Client
	header   http.Header
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http = &http.Client{Timeout: d, Transport: c.http.Transport}
		}
	}
}

// WithHeader adds a header to every request (e.g. an auth token for a proxy).
func WithHeader(k, v string) Option {
	return func(c *Client) { c.header.Add(k, v) }
}

// New returns a client for the relay endpoint URL.
func New(endpoint string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return nil, fmt.Errorf("relay endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("relay endpoint: unsupported scheme %q", u.Scheme)
	}
	c := &Client{
		endpoint: u.String(),
		http:     &http.Client{Timeout: 15 * time.Second},
		header:   http.Header{},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Endpoint returns the configured endpoint URL.
func (c *Client) Endpoint() string { return c.endpoint }

func (c *Client) Info(ctx context.Context, p Payload) (*Response, error) {
	return c.Send(ctx, TypeInfo, p)
}

func (c *Client) Success(ctx context.Context, p Payload) (*Response, error) {
	return c.Send(ctx, TypeSuccess, p)
}

func (c *Client) Warning(ctx context.Context, p Payload) (*Response, error) {
	return c.Send(ctx, TypeWarning, p)
}

func (c *Client) Error(ctx context.Context, p Payload) (*Response, error) {
	return c.Send(ctx, TypeError, p)
}

// Send posts one notification of the given type.
func (c *Client) Send(ctx context.Context, typ Type, p Payload) (*Response, error) {
	stack := p.Stack
	if stack == "" && p.Err != nil {
		stack = fmt.Sprintf("%+v", p.Err)
	}
	body, err := json.Marshal(relay.Request{
		Type:        format.Type(typ),
		Title:       p.Title,
		Description: p.Description,
		Tags:        p.Tags,
		URL:         p.URL,
		Stack:       stack,
		ChatID:      relay.ChatID(p.ChatID),
		ThreadID:    p.ThreadID,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode/100 != 2 {
		var out struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(raw, &out)
		e := &Error{Status: resp.StatusCode, Message: out.Error}
		if s, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && s > 0 {
			e.RetryAfter = time.Duration(s) * time.Second
		}
		return nil, e
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("relay: decode response: %w", err)
	}
	if !out.OK {
		return nil, errors.New("relay: response not ok")
	}
	return &out, nil
}
