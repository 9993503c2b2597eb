package request

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/upcall/upcall-cli/internal/debug"
)

// Dispatch routes execution: a capability credential owns its own transport,
// everything else goes through the default executor. This is the only branch
// this layer is responsible for; request execution belongs to the executor.
func Dispatch(ctx context.Context, cred Credential, opts *Options, exec Executor) (*http.Response, error) {
	if exec == nil {
		exec = defaultExecutor
	}
	switch c := cred.(type) {
	case Capability:
		return c.AuthorizeAndDo(ctx, opts)
	case APIKey:
		// Resolution folds API keys into the "key" parameter; one that
		// survives to dispatch still needs no delegated authorization.
		return exec.Execute(ctx, opts)
	default:
		return exec.Execute(ctx, opts)
	}
}

const (
	defaultMaxRetries = 3
	defaultRetryDelay = 500 * time.Millisecond
)

var defaultExecutor Executor = &HTTPExecutor{}

// HTTPExecutor is the default unauthenticated transport. Idempotent requests
// with replayable bodies are retried on 429 and 5xx with exponential backoff
// unless the options disable retries.
type HTTPExecutor struct {
	Client     *http.Client
	MaxRetries int
	RetryDelay time.Duration
}

func (e *HTTPExecutor) Execute(ctx context.Context, opts *Options) (*http.Response, error) {
	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}
	maxRetries := e.MaxRetries
	if maxRetries == 0 {
		maxRetries = defaultMaxRetries
	}
	retryDelay := e.RetryDelay
	if retryDelay == 0 {
		retryDelay = defaultRetryDelay
	}

	// http.Client.Timeout covers the response body read too, which a
	// context deadline scoped to this call could not.
	if client.Timeout == 0 && opts.Timeout >= 0 {
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		clone := *client
		clone.Timeout = timeout
		client = &clone
	}

	url := buildURL(opts)
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	body, contentType, replayable, err := normalizeBody(opts.Body)
	if err != nil {
		return nil, err
	}

	validate := opts.ValidateStatus
	if validate == nil {
		validate = DefaultValidateStatus
	}

	isIdempotent := method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
	canRetry := !opts.NoRetry && replayable && isIdempotent

	var retries int
	for {
		start := time.Now()
		req, err := http.NewRequestWithContext(ctx, method, url, body.reader())
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		for k, v := range opts.Headers {
			req.Header.Set(k, v)
		}
		if contentType != "" && req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		if debug.IsEnabled(ctx) {
			slog.Debug("request complete",
				"method", method, "url", url,
				"status", resp.StatusCode, "attempt", retries+1,
				"duration", time.Since(start))
		}

		if (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500) &&
			canRetry && retries < maxRetries {
			drain(resp)
			delay := retryDelay * time.Duration(1<<retries)
			slog.Debug("retrying after server response", "status", resp.StatusCode, "delay", delay)
			if err := sleepWithContext(ctx, delay); err != nil {
				return nil, err
			}
			retries++
			continue
		}

		if !validate(resp.StatusCode) {
			errBody := readErrorBody(resp)
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: errBody}
		}
		return resp, nil
	}
}

// buildURL appends the serialized query string to the expanded URL.
func buildURL(opts *Options) string {
	enc := opts.EncodeQuery
	if enc == nil {
		enc = EncodeQuery
	}
	qs := enc(opts.Query)
	if qs == "" {
		return opts.URL
	}
	sep := "?"
	if strings.Contains(opts.URL, "?") {
		sep = "&"
	}
	return opts.URL + sep + qs
}

// requestBody pairs a body's bytes-or-stream form with replayability.
type requestBody struct {
	data   []byte
	stream io.Reader
}

func (b requestBody) reader() io.Reader {
	if b.stream != nil {
		return b.stream
	}
	if b.data == nil {
		return nil
	}
	return bytes.NewReader(b.data)
}

// normalizeBody prepares the outgoing body. Strings and marshaled values are
// replayable across retries; streams are forwarded as-is and consumed once.
func normalizeBody(body any) (requestBody, string, bool, error) {
	switch b := body.(type) {
	case nil:
		return requestBody{}, "", true, nil
	case string:
		return requestBody{data: []byte(b)}, "", true, nil
	case []byte:
		return requestBody{data: b}, "", true, nil
	case io.Reader:
		return requestBody{stream: b}, "", false, nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return requestBody{}, "", false, fmt.Errorf("failed to marshal request body: %w", err)
		}
		return requestBody{data: data}, "application/json", true, nil
	}
}

const maxErrorBodyBytes = 8 << 10

// readErrorBody captures a bounded prefix of a rejected response's body.
func readErrorBody(resp *http.Response) string {
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodyBytes))
	_ = resp.Body.Close()
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
