// Package outfmt selects and renders the CLI output format.
package outfmt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// Mode is the output format mode.
type Mode int

const (
	// JSON is indented JSON, the default for API responses.
	JSON Mode = iota
	// JSONL is newline-delimited JSON, one top-level array element per line.
	JSONL
	// Raw passes the response body through untouched.
	Raw
)

type contextKey struct{}

// Parse parses an output mode string.
func Parse(s string) (Mode, error) {
	switch s {
	case "json", "":
		return JSON, nil
	case "jsonl", "ndjson":
		return JSONL, nil
	case "raw":
		return Raw, nil
	default:
		return JSON, fmt.Errorf("invalid output format: %q (use 'json', 'jsonl', 'ndjson', or 'raw')", s)
	}
}

// WithMode stores the output mode in the context.
func WithMode(ctx context.Context, mode Mode) context.Context {
	return context.WithValue(ctx, contextKey{}, mode)
}

// FromContext returns the output mode, defaulting to JSON.
func FromContext(ctx context.Context) Mode {
	if m, ok := ctx.Value(contextKey{}).(Mode); ok {
		return m
	}
	return JSON
}

// Write renders v in the context's output mode.
func Write(ctx context.Context, w io.Writer, v any) error {
	switch FromContext(ctx) {
	case JSONL:
		if items, ok := v.([]any); ok {
			enc := json.NewEncoder(w)
			for _, item := range items {
				if err := enc.Encode(item); err != nil {
					return err
				}
			}
			return nil
		}
		return json.NewEncoder(w).Encode(v)
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}
