package capture

import (
	"encoding/json"
	"io"

	"github.com/rs/zerolog"
)

// LogSink wraps orig so error-level zerolog entries are captured as well as
// written. orig always receives the entry first, unchanged. Entries logged by
// the pipeline itself are never captured.
//
// When log capture is off the returned writer only forwards.
func (p *Pipeline) LogSink(orig io.Writer) zerolog.LevelWriter {
	if orig == nil {
		orig = io.Discard
	}
	return &logSink{orig: orig, p: p}
}

type logSink struct {
	orig io.Writer
	p    *Pipeline
}

func (s *logSink) Write(b []byte) (int, error) {
	n, err := s.orig.Write(b)
	s.capture(b, zerolog.NoLevel)
	return n, err
}

func (s *logSink) WriteLevel(level zerolog.Level, b []byte) (int, error) {
	var (
		n   int
		err error
	)
	if lw, ok := s.orig.(zerolog.LevelWriter); ok {
		n, err = lw.WriteLevel(level, b)
	} else {
		n, err = s.orig.Write(b)
	}
	s.capture(b, level)
	return n, err
}

func (s *logSink) capture(b []byte, level zerolog.Level) {
	p := s.p
	if p == nil || !p.opts.Enabled || !p.opts.CaptureLogErrors {
		return
	}
	if level != zerolog.NoLevel && level < zerolog.ErrorLevel {
		return
	}
	defer func() { _ = recover() }()

	var entry map[string]any
	if err := json.Unmarshal(b, &entry); err != nil {
		return
	}
	if level == zerolog.NoLevel {
		lv, _ := entry[zerolog.LevelFieldName].(string)
		parsed, err := zerolog.ParseLevel(lv)
		if err != nil || parsed < zerolog.ErrorLevel || parsed >= zerolog.NoLevel {
			return
		}
	}
	if comp, _ := entry["comp"].(string); comp == "capture" {
		return
	}
	p.Capture(LabelLog, entryText(entry), "")
}

// entryText renders message, error and stack fields as one stack-like string.
func entryText(entry map[string]any) string {
	str := func(k string) string {
		s, _ := entry[k].(string)
		return s
	}
	text := str(zerolog.MessageFieldName)
	e := str(zerolog.ErrorFieldName)
	if e == "" {
		e = str("error")
	}
	if e != "" {
		if text != "" {
			text += ": "
		}
		text += e
	}
	if st := str("stack"); st != "" {
		text += "\n" + st
	}
	if text == "" {
		b, _ := json.Marshal(entry)
		text = string(b)
	}
	return text
}
