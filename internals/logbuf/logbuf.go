// Package logbuf collects the log lines of one HTTP request and hands them
// back as a single slog attribute when the request ends, so each request
// produces one record.
package logbuf

import (
	"log/slog"
	"sync"
	"time"
)

// MaxEntries bounds a trace. Lines past it are counted, not kept.
const MaxEntries = 100

type Entry struct {
	Level  slog.Level
	Msg    string
	Offset time.Duration
	Attrs  []slog.Attr
}

// Logger is either a template (from New, no trace) or bound to a trace
// (from Begin). Logging on a template is a no-op.
type Logger struct {
	mu    sync.Mutex
	attrs []slog.Attr
	trace *trace
}

type trace struct {
	mu      sync.Mutex
	now     func() time.Time
	start   time.Time
	entries []Entry
	dropped int
}

func New(attrs ...slog.Attr) *Logger {
	return &Logger{attrs: append([]slog.Attr(nil), attrs...)}
}

// Begin starts a new trace carrying l's attrs plus attrs.
func (l *Logger) Begin(attrs ...slog.Attr) *Logger {
	return l.begin(time.Now, attrs...)
}

func (l *Logger) begin(now func() time.Time, attrs ...slog.Attr) *Logger {
	return &Logger{
		attrs: append(l.snapshot(), attrs...),
		trace: &trace{now: now, start: now()},
	}
}

// With returns a logger on the same trace with extra attrs. Attrs added to
// the child later do not leak into l.
func (l *Logger) With(attrs ...slog.Attr) *Logger {
	return &Logger{attrs: append(l.snapshot(), attrs...), trace: l.trace}
}

func (l *Logger) Add(attrs ...slog.Attr) {
	l.mu.Lock()
	l.attrs = append(l.attrs, attrs...)
	l.mu.Unlock()
}

func (l *Logger) Debug(msg string, attrs ...slog.Attr) { l.Log(slog.LevelDebug, msg, attrs...) }
func (l *Logger) Info(msg string, attrs ...slog.Attr)  { l.Log(slog.LevelInfo, msg, attrs...) }
func (l *Logger) Warn(msg string, attrs ...slog.Attr)  { l.Log(slog.LevelWarn, msg, attrs...) }
func (l *Logger) Error(msg string, attrs ...slog.Attr) { l.Log(slog.LevelError, msg, attrs...) }

func (l *Logger) Log(level slog.Level, msg string, attrs ...slog.Attr) {
	t := l.trace
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.entries) >= MaxEntries {
		t.dropped++
		return
	}
	t.entries = append(t.entries, Entry{
		Level:  level,
		Msg:    msg,
		Offset: t.now().Sub(t.start),
		Attrs:  append([]slog.Attr(nil), attrs...),
	})
}

// Level is the highest level logged on the trace so far, or Info.
func (l *Logger) Level() slog.Level {
	level := slog.LevelInfo
	t := l.trace
	if t == nil {
		return level
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, entry := range t.entries {
		if entry.Level > level {
			level = entry.Level
		}
	}
	return level
}

// Flush drains the trace and returns l's attrs with an "entries" list, as an
// inline group ready to pass to slog.
func (l *Logger) Flush() slog.Attr {
	args := make([]any, 0, len(l.attrs)+2)
	for _, attr := range l.snapshot() {
		args = append(args, attr)
	}

	if t := l.trace; t != nil {
		t.mu.Lock()
		entries := t.entries
		dropped := t.dropped
		t.entries = nil
		t.dropped = 0
		t.mu.Unlock()

		args = append(args, slog.Any("entries", entriesPayload(entries)))
		if dropped > 0 {
			args = append(args, slog.Int("entries_dropped", dropped))
		}
	}
	return slog.Group("", args...)
}

func (l *Logger) snapshot() []slog.Attr {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]slog.Attr(nil), l.attrs...)
}

func entriesPayload(entries []Entry) []map[string]any {
	payload := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		item := flatten(entry.Attrs)
		// msg, level and offset win over attrs of the same name.
		item["msg"] = entry.Msg
		item["level"] = entry.Level.String()
		item["offset_ms"] = entry.Offset.Milliseconds()
		payload = append(payload, item)
	}
	return payload
}

func flatten(attrs []slog.Attr) map[string]any {
	out := map[string]any{}
	for _, attr := range attrs {
		value := attr.Value.Resolve()
		if value.Kind() == slog.KindGroup {
			group := flatten(value.Group())
			if attr.Key == "" {
				for k, v := range group {
					out[k] = v
				}
				continue
			}
			out[attr.Key] = group
			continue
		}
		out[attr.Key] = value.Any()
	}
	return out
}
