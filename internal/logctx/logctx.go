// Package logctx carries a request-scoped logger and an optional progress
// callback through context.Context.
package logctx

import (
	"context"
	"log/slog"
)

type loggerKey struct{}

type progressKey struct{}

// ProgressFunc receives progress notifications. total is zero when unknown.
type ProgressFunc func(done, total int, message string)

func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger stored in ctx, or slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
			return logger
		}
	}
	return slog.Default()
}

func WithProgress(ctx context.Context, fn ProgressFunc) context.Context {
	if fn == nil {
		return ctx
	}
	return context.WithValue(ctx, progressKey{}, fn)
}

// ReportProgress invokes the callback stored in ctx. It is a no-op when none
// is set.
func ReportProgress(ctx context.Context, done, total int, message string) {
	if ctx == nil {
		return
	}
	if fn, ok := ctx.Value(progressKey{}).(ProgressFunc); ok {
		fn(done, total, message)
	}
}
