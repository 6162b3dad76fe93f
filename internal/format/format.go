// Package format turns a notification into Telegram-ready HTML text.
//
// Formatting is deterministic and does no I/O. Output never exceeds
// MaxMessageLen-ReservedMargin UTF-16 units.
package format

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
)

// Telegram limits a message to 4096 UTF-16 units.
const (
	MaxMessageLen  = 4096
	ReservedMargin = 16
	Limit          = MaxMessageLen - ReservedMargin

	// StackLines is how many non-empty stack lines are kept.
	StackLines = 3

	Ellipsis = "…"
)

var (
	ErrInvalidType   = errors.New(`invalid "type"`)
	ErrTitleRequired = errors.New(`field "title" is required`)
)

// Type is the notification kind.
type Type string

const (
	TypeInfo    Type = "info"
	TypeSuccess Type = "success"
	TypeWarning Type = "warning"
	TypeError   Type = "error"
)

var emoji = map[Type]string{
	TypeInfo:    "ℹ️",
	TypeSuccess: "✅",
	TypeWarning: "⚠️",
	TypeError:   "❌",
}

// Valid reports whether t is one of the four recognized kinds.
func (t Type) Valid() bool {
	_, ok := emoji[t]
	return ok
}

// Emoji returns the title prefix for t ("" for unknown kinds).
func (t Type) Emoji() string { return emoji[t] }

// Input is the formatter's view of a notification request.
type Input struct {
	Type        Type
	Title       string
	Description string
	Tags        []string
	URL         string
	Stack       string
}

// Message is provider-ready text.
type Message struct {
	// Text is the clipped HTML sent to the provider.
	Text string
	// Unclipped is the assembled text before clipping (used for dedup fingerprints).
	Unclipped string
	Truncated bool
}

// Validate checks the fields every notification needs.
func Validate(in Input) error {
	if !in.Type.Valid() {
		return ErrInvalidType
	}
	if strings.TrimSpace(in.Title) == "" {
		return ErrTitleRequired
	}
	return nil
}

// Format validates in and renders it.
//
// Layout: tags, bold title with emoji, description, bold Url line, stack block,
// separated by blank lines. Clipping is applied once, last.
func Format(in Input) (Message, error) {
	if err := Validate(in); err != nil {
		return Message{}, err
	}

	parts := make([]string, 0, 5)
	if tags := Hashtags(in.Tags); tags != "" {
		parts = append(parts, Escape(tags))
	}
	parts = append(parts, bold(in.Type.Emoji()+" "+Escape(in.Title)))
	if in.Description != "" {
		parts = append(parts, Escape(in.Description))
	}
	if in.URL != "" {
		parts = append(parts, bold("Url: "+Escape(in.URL)))
	}
	if stack := FirstLines(in.Stack, StackLines); stack != "" {
		parts = append(parts, bold("stack")+"\n"+pre(Escape(stack)))
	}

	full := strings.Join(parts, "\n\n")
	text := Clip(full, Limit)
	return Message{Text: text, Unclipped: full, Truncated: text != full}, nil
}

// Hashtag normalizes one tag: leading '#'s stripped, all whitespace removed,
// a single '#' re-applied. Returns "" when nothing is left.
func Hashtag(raw string) string {
	t := strings.TrimLeft(strings.TrimSpace(raw), "#")
	t = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, t)
	if t == "" {
		return ""
	}
	return "#" + t
}

// Hashtags normalizes and space-joins tags (unescaped).
func Hashtags(tags []string) string {
	out := make([]string, 0, len(tags))
	for _, raw := range tags {
		if h := Hashtag(raw); h != "" {
			out = append(out, h)
		}
	}
	return strings.Join(out, " ")
}

var lineBreak = regexp.MustCompile(`\r?\n`)

// FirstLines returns up to n non-empty lines of s joined by '\n'.
func FirstLines(s string, n int) string {
	if s == "" || n <= 0 {
		return ""
	}
	out := make([]string, 0, n)
	for _, line := range lineBreak.Split(s, -1) {
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == n {
			break
		}
	}
	return strings.Join(out, "\n")
}
