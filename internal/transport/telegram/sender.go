// Package telegram delivers relay messages through the Bot API sendMessage call.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"tgnotify/internal/relay"
)

const DefaultAPIURL = "https://api.telegram.org"

type Config struct {
	Token string
	// APIURL points at a self-hosted Bot API server (default DefaultAPIURL).
	APIURL  string
	Timeout time.Duration
}

// Sender performs one sendMessage call per delivery. It implements relay.Sender.
type Sender struct {
	bot *tele.Bot
}

// New returns a sender for cfg. It never contacts Telegram.
func New(cfg Config) (*Sender, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("telegram token is empty")
	}
	apiURL := strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     apiURL,
		Token:   token,
		Client:  &http.Client{Timeout: timeout},
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	return &Sender{bot: b}, nil
}

// Send posts d to the Bot API and returns the raw response body.
func (s *Sender) Send(ctx context.Context, d relay.Delivery) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	params := map[string]any{
		"chat_id":                  d.ChatID,
		"text":                     d.Text,
		"parse_mode":               tele.ModeHTML,
		"disable_web_page_preview": true,
	}
	if d.ThreadID != 0 {
		params["message_thread_id"] = d.ThreadID
	}

	data, err := s.bot.Raw("sendMessage", params)
	if err != nil {
		return nil, providerError(err)
	}
	return json.RawMessage(data), nil
}

// "telegram: Bad Request: chat not found (400)"
var apiErrPattern = regexp.MustCompile(`^telegram: (.*) \((\d+)\)$`)

// providerError maps telebot errors to *relay.ProviderError when the Bot API
// itself reported the failure. Transport errors are returned unchanged.
func providerError(err error) error {
	var te *tele.Error
	if errors.As(err, &te) {
		return &relay.ProviderError{Code: te.Code, Description: te.Description}
	}
	if m := apiErrPattern.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[2])
		return &relay.ProviderError{Code: code, Description: m[1]}
	}
	return err
}
