// Package log provides the structured logger used across the node. It is a
// thin wrapper around log/slog in the style of go-ethereum's log package:
// every subsystem holds its own Logger instead of calling package-level
// globals, so gossip workers, the apply path and the producer loop can each
// be given a distinct "module" context.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger is the interface every subsystem depends on.
type Logger interface {
	Trace(msg string, ctx ...any)
	Debug(msg string, ctx ...any)
	Info(msg string, ctx ...any)
	Warn(msg string, ctx ...any)
	Error(msg string, ctx ...any)
	Crit(msg string, ctx ...any)
	With(ctx ...any) Logger
}

const (
	levelTrace = slog.Level(-8)
	levelCrit  = slog.Level(12)
)

type logger struct {
	inner *slog.Logger
}

// New returns a Logger writing human-readable lines to stderr, with ctx
// key/value pairs attached to every record (e.g. New("module", "txpool")).
func New(ctx ...any) Logger {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelTrace})
	return &logger{inner: slog.New(h).With(ctx...)}
}

// NewWithWriter is used by tests to capture output.
func NewWithWriter(w io.Writer, ctx ...any) Logger {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: levelTrace})
	return &logger{inner: slog.New(h).With(ctx...)}
}

func (l *logger) log(level slog.Level, msg string, ctx []any) {
	l.inner.Log(context.Background(), level, msg, ctx...)
}

func (l *logger) Trace(msg string, ctx ...any) { l.log(levelTrace, msg, ctx) }
func (l *logger) Debug(msg string, ctx ...any) { l.log(slog.LevelDebug, msg, ctx) }
func (l *logger) Info(msg string, ctx ...any)  { l.log(slog.LevelInfo, msg, ctx) }
func (l *logger) Warn(msg string, ctx ...any)  { l.log(slog.LevelWarn, msg, ctx) }
func (l *logger) Error(msg string, ctx ...any) { l.log(slog.LevelError, msg, ctx) }
func (l *logger) Crit(msg string, ctx ...any)  { l.log(levelCrit, msg, ctx) }

func (l *logger) With(ctx ...any) Logger {
	return &logger{inner: l.inner.With(ctx...)}
}

// root is the default logger used by packages that have not been handed
// one explicitly (e.g. package-level init helpers).
var root Logger = New()

func Root() Logger { return root }

func SetDefault(l Logger) { root = l }

func Trace(msg string, ctx ...any) { root.Trace(msg, ctx...) }
func Debug(msg string, ctx ...any) { root.Debug(msg, ctx...) }
func Info(msg string, ctx ...any)  { root.Info(msg, ctx...) }
func Warn(msg string, ctx ...any)  { root.Warn(msg, ctx...) }
func Error(msg string, ctx ...any) { root.Error(msg, ctx...) }
func Crit(msg string, ctx ...any)  { root.Crit(msg, ctx...) }

// nowNano is a package-level var so tests can freeze time deterministically;
// production code always uses the real clock.
var nowNano = func() int64 { return time.Now().UnixNano() }
