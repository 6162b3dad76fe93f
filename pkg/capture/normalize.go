package capture

import (
	"encoding/json"
	"fmt"
	"strings"

	"tgnotify/internal/format"
)

// MaxKeyLen bounds the capture signature, in UTF-16 units.
const MaxKeyLen = 200

// Normalize renders a captured value as a stack string.
func Normalize(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case error:
		// %+v prints stack traces for errors that carry one.
		return fmt.Sprintf("%+v", x)
	case fmt.Stringer:
		return x.String()
	}
	if b, err := json.Marshal(v); err == nil {
		return string(b)
	}
	return fmt.Sprint(v)
}

// Head is the one-line summary of a captured value.
func Head(stack string, v any) string {
	for _, line := range strings.Split(stack, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	if err, ok := v.(error); ok && err != nil {
		return err.Error()
	}
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// Key is the dedup and ignore signature: label ":" head, cut to MaxKeyLen
// UTF-16 units without splitting a surrogate pair.
func Key(label, head string) string {
	return format.PrefixUnits(label+":"+head, MaxKeyLen)
}

// PanicError wraps a recovered panic value and the stack it was raised on.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

func (e *PanicError) Format(s fmt.State, verb rune) {
	switch {
	case verb == 'v' && s.Flag('+'):
		fmt.Fprintf(s, "%s\n%s", e.Error(), e.Stack)
	default:
		fmt.Fprint(s, e.Error())
	}
}
