package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/jessevdk/go-flags"

	"tgnotify/internal/app"
	"tgnotify/internal/config"
)

type options struct {
	Config string `short:"c" long:"config" env:"TGNOTIFY_CONFIG" default:"./config.json" description:"path to config (json or yaml)"`

	Telegram struct {
		Token  string `long:"token" env:"TOKEN" description:"bot token, overrides telegram.token"`
		ChatID string `long:"chat-id" env:"CHAT_ID" description:"default chat id, overrides telegram.chat_id"`
	} `group:"telegram" namespace:"telegram" env-namespace:"TGNOTIFY_TELEGRAM"`
}

// overrides keeps secrets supplied by flags or env in effect across reloads.
func (o options) overrides() func(*config.Config) {
	token := strings.TrimSpace(o.Telegram.Token)
	chatID := strings.TrimSpace(o.Telegram.ChatID)
	if token == "" && chatID == "" {
		return nil
	}
	return func(c *config.Config) {
		if token != "" {
			c.Telegram.Token = token
		}
		if chatID != "" {
			c.Telegram.ChatID = chatID
		}
	}
}

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		var fe *flags.Error
		if errors.As(err, &fe) && fe.Type == flags.ErrHelp {
			return
		}
		os.Exit(2)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	a, err := app.New(opts.Config, opts.overrides())
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		fmt.Println("fatal start:", err)
		os.Exit(1)
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	reason := app.StopUnknown
	select {
	case s := <-sigCh:
		reason = app.StopSIGTERM
		if s == os.Interrupt {
			reason = app.StopSIGINT
		}
	case <-a.Done():
		reason = app.StopFatalError
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	_ = a.Stop(stopCtx, reason)
	stopCancel()

	if reason == app.StopFatalError {
		if err := a.Err(); err != nil {
			fmt.Println("fatal:", err)
		}
		os.Exit(1)
	}
}
