// Package debug gates verbose structured logging on a per-invocation flag
// carried in the context.
package debug

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

type contextKey struct{}

// WithDebug returns a context with debug mode enabled or disabled.
func WithDebug(ctx context.Context, enabled bool) context.Context {
	return context.WithValue(ctx, contextKey{}, enabled)
}

// IsEnabled reports whether debug mode is on for this context. The
// UPCALL_DEBUG environment variable turns it on globally.
func IsEnabled(ctx context.Context) bool {
	if v, ok := ctx.Value(contextKey{}).(bool); ok {
		return v
	}
	return envEnabled()
}

func envEnabled() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("UPCALL_DEBUG"))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// SetupLogger installs the default slog logger: debug level when enabled,
// warnings only otherwise, text output on stderr.
func SetupLogger(debugEnabled bool) {
	level := slog.LevelWarn
	if debugEnabled || envEnabled() {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}
