// Command relayctl sends one notification through a tgnotify relay.
//
//	relayctl --type warning --title "disk 90%" --tag ops -d "host db-1"
//	some-command 2>&1 | relayctl -t error --title "job failed" --stack-file -
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jessevdk/go-flags"

	"tgnotify/pkg/relayclient"
)

type options struct {
	Endpoint string        `short:"e" long:"endpoint" env:"TGNOTIFY_ENDPOINT" default:"http://127.0.0.1:8080/api/telegram-notify" description:"relay endpoint URL"`
	Timeout  time.Duration `long:"timeout" default:"15s" description:"request timeout"`

	Type        string   `short:"t" long:"type" default:"info" choice:"info" choice:"success" choice:"warning" choice:"error" description:"notification type"`
	Title       string   `long:"title" required:"true" description:"notification title"`
	Description string   `short:"d" long:"description" description:"free text body"`
	Tags        []string `long:"tag" description:"hashtag (repeatable)"`
	URL         string   `long:"url" description:"related link"`
	Stack       string   `long:"stack" description:"stack trace text"`
	StackFile   string   `long:"stack-file" description:"read the stack from a file ('-' for stdin)"`

	ChatID   string `long:"chat-id" description:"override the relay's default chat"`
	ThreadID int    `long:"thread-id" description:"override the relay's default thread"`

	Quiet bool `short:"q" long:"quiet" description:"print nothing on success"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var opts options
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.ParseArgs(args); err != nil {
		var fe *flags.Error
		if errors.As(err, &fe) && fe.Type == flags.ErrHelp {
			fmt.Fprintln(stdout, fe.Message)
			return 0
		}
		fmt.Fprintln(stderr, err)
		return 2
	}

	stack := opts.Stack
	if opts.StackFile != "" {
		b, err := readStack(opts.StackFile, stdin)
		if err != nil {
			fmt.Fprintln(stderr, "read stack:", err)
			return 2
		}
		stack = string(b)
	}

	client, err := relayclient.New(opts.Endpoint, relayclient.WithTimeout(opts.Timeout))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()
	res, err := client.Send(ctx, relayclient.Type(opts.Type), relayclient.Payload{
		Title:       opts.Title,
		Description: opts.Description,
		Tags:        opts.Tags,
		URL:         opts.URL,
		Stack:       stack,
		ChatID:      opts.ChatID,
		ThreadID:    opts.ThreadID,
	})
	if err != nil {
		fmt.Fprintln(stderr, err)
		var re *relayclient.Error
		if errors.As(err, &re) && re.RetryAfter > 0 {
			fmt.Fprintf(stderr, "retry after %s\n", re.RetryAfter)
		}
		return 1
	}
	if !opts.Quiet {
		b, _ := json.Marshal(res)
		fmt.Fprintln(stdout, string(b))
	}
	return 0
}

func readStack(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(io.LimitReader(stdin, 1<<20))
	}
	return os.ReadFile(path)
}
