// Package logger builds the service's slog logger: coloured text in
// development, JSON in production.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

type Config struct {
	Writer      io.Writer
	Environment string
	Level       slog.Level
}

// New returns a JSON logger in production and a line-oriented text logger
// everywhere else.
func New(cfg Config) *slog.Logger {
	w := cfg.Writer
	if w == nil {
		w = os.Stdout
	}
	if cfg.Environment == "production" {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: cfg.Level}))
	}
	return slog.New(&lineHandler{out: &lockedWriter{w: w}, level: cfg.Level})
}

// ParseLevel converts a string to slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var levelTags = map[slog.Level]string{
	slog.LevelDebug: "\033[35mDBG\033[0m",
	slog.LevelInfo:  "\033[32mINF\033[0m",
	slog.LevelWarn:  "\033[33mWRN\033[0m",
	slog.LevelError: "\033[31mERR\033[0m",
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// lineHandler writes "15:04:05 INF message key=value". Groups are flattened.
type lineHandler struct {
	out   *lockedWriter
	level slog.Level
	attrs []slog.Attr
}

func (h *lineHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *lineHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	tag, ok := levelTags[r.Level]
	if !ok {
		tag = r.Level.String()
	}
	fmt.Fprintf(&b, "%s %s %s", r.Time.Format("15:04:05"), tag, r.Message)

	write := func(a slog.Attr) bool {
		fmt.Fprintf(&b, " %s=%s", a.Key, a.Value.Resolve().String())
		return true
	}
	for _, a := range h.attrs {
		write(a)
	}
	r.Attrs(write)
	b.WriteByte('\n')

	_, err := io.WriteString(h.out, b.String())
	return err
}

func (h *lineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := append(append(make([]slog.Attr, 0, len(h.attrs)+len(attrs)), h.attrs...), attrs...)
	return &lineHandler{out: h.out, level: h.level, attrs: merged}
}

func (h *lineHandler) WithGroup(string) slog.Handler {
	return h
}
