package capture

import (
	"runtime/debug"
	"strings"
)

const (
	LabelFramework = "Framework error"
	LabelApp       = "App error"
	LabelRuntime   = "Runtime error"
	LabelPanic     = "Panic"
	LabelAsync     = "Unhandled async error"
	LabelLog       = "log.error"
)

// HookRegistry is a host framework that reports errors through named hooks.
type HookRegistry interface {
	Hook(name string, fn func(err any, info string))
}

// RegisterHooks subscribes to the "error" and "app:error" hooks.
func (p *Pipeline) RegisterHooks(reg HookRegistry) {
	if p == nil || reg == nil || !p.opts.Enabled || !p.opts.IncludeFrameworkErrors {
		return
	}
	reg.Hook("error", func(err any, info string) { p.Capture(LabelFramework, err, info) })
	reg.Hook("app:error", func(err any, info string) { p.Capture(LabelApp, err, info) })
}

// RuntimeError is an error surfaced by the host runtime rather than by code
// that handles it.
type RuntimeError struct {
	Err     error
	Message string
	// Origin is where the error came from (a file, a URL, a subsystem).
	Origin string
}

func (p *Pipeline) HandleRuntimeError(e RuntimeError) bool {
	if p == nil || !p.opts.IncludeRuntimeErrors {
		return false
	}
	if e.Origin != "" && strings.Contains(e.Origin, p.opts.Endpoint) {
		return false
	}
	var v any = e.Message
	if e.Err != nil {
		v = e.Err
	}
	return p.Capture(LabelRuntime, v, e.Origin)
}

// Recover captures a panic and swallows it. Use it directly with defer:
//
//	defer pipeline.Recover()
func (p *Pipeline) Recover() {
	r := recover()
	if r == nil {
		return
	}
	if p == nil || !p.opts.IncludeRuntimeErrors {
		return
	}
	p.Capture(LabelPanic, &PanicError{Value: r, Stack: debug.Stack()}, "")
}

// Go runs fn on its own goroutine and captures the error it returns or the
// panic it raises.
func (p *Pipeline) Go(fn func() error) {
	if fn == nil {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil && p != nil && p.opts.IncludeUnhandledAsync {
				p.Capture(LabelAsync, &PanicError{Value: r, Stack: debug.Stack()}, "")
			}
		}()
		if err := fn(); err != nil && p != nil && p.opts.IncludeUnhandledAsync {
			p.Capture(LabelAsync, err, "")
		}
	}()
}
