// Package request turns a declarative description of an API call into a
// fully-formed outbound HTTP request and dispatches it through a pluggable
// executor.
//
// The pipeline has three stages: Resolve merges parameter sources and
// extracts the reserved fields (body, media, auth, headers), Materialize
// expands URL templates and assembles the final transport options (including
// streamed multipart upload bodies), and Dispatch routes the finished options
// to either the credential's own transport or the default executor.
package request

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// DefaultTimeout bounds a single dispatch when the caller sets no timeout.
const DefaultTimeout = 30 * time.Second

// Media is an optional upload payload attached to a call. Body is either a
// string or an io.Reader; readers are streamed and never buffered whole.
type Media struct {
	Body     any
	MimeType string
}

// Descriptor is the input bundle for a single call. Params may carry the
// reserved keys "requestBody", "resource", "media", "auth" and "headers";
// the resolver extracts all of them before anything reaches the query string.
type Descriptor struct {
	Params         map[string]any
	RequiredParams []string
	PathParams     []string

	Method           string
	URLTemplate      string
	MediaURLTemplate string

	// Options are per-call transport options, highest-precedence in the
	// final merge.
	Options Options

	// Context carries per-client defaults; Global carries process-wide
	// defaults. Both may be nil.
	Context *ClientContext
	Global  *Settings

	// Executor handles unauthenticated dispatch. Nil selects the default
	// HTTP executor.
	Executor Executor
}

// Settings holds process-wide default parameters and transport options.
type Settings struct {
	Params         map[string]any
	RequestOptions Options
	Credential     Credential
}

// ClientContext holds per-client default parameters and transport options.
//
// The Params map is shared mutable state: resolving a call that declares
// path parameters deletes those keys from it so they cannot persist as stale
// defaults. The mutex makes each mutation atomic, but concurrent calls that
// strip path parameters against the same context are last-writer-wins.
type ClientContext struct {
	mu             sync.Mutex
	Params         map[string]any
	RequestOptions Options
	Credential     Credential
}

// snapshotParams returns a shallow copy of the default params.
func (c *ClientContext) snapshotParams() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]any, len(c.Params))
	for k, v := range c.Params {
		out[k] = v
	}
	return out
}

// deleteParam removes a default parameter. Visible to every caller sharing
// this context.
func (c *ClientContext) deleteParam(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.Params, name)
}

// SetParam installs a default parameter on the shared context.
func (c *ClientContext) SetParam(name string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Params == nil {
		c.Params = make(map[string]any)
	}
	c.Params[name] = value
}

// Resolved is the output of the resolver: a clean parameter map, the request
// body payload, the upload payload and the credential for dispatch.
type Resolved struct {
	// Params contains no reserved keys, no alias-marked keys and no
	// declared path parameters.
	Params map[string]any

	// Body is the request body payload: the "requestBody" param when
	// present, else "resource". Nil when the call carries no body.
	Body any

	// Media is the upload payload, zero-valued when absent.
	Media Media

	// DefaultMimeType is text/plain for string media bodies, else
	// application/octet-stream.
	DefaultMimeType string

	// Headers are caller-supplied overrides; they win over generated
	// headers on conflicting keys.
	Headers map[string]string

	// Credential authorizes dispatch. Nil after an API key has been
	// folded into the "key" parameter.
	Credential Credential

	// pathValues keeps the stripped path-parameter values so URL template
	// expansion can still see them.
	pathValues map[string]any
}

// Options is the finished transport configuration handed to an executor.
// It deliberately carries no credential: authorization is applied at
// dispatch, never as a plain option.
type Options struct {
	URL     string
	Method  string
	Headers map[string]string

	// Query holds serialized query parameters. Multi-valued keys encode
	// as repeated key=value pairs.
	Query map[string][]string

	// Body is a string, an io.Reader, nil, or any JSON-marshalable value.
	Body any

	// ValidateStatus reports whether a status code is a success. Nil
	// selects DefaultValidateStatus.
	ValidateStatus func(status int) bool

	// NoRetry disables the executor's bounded retry loop. The zero value
	// keeps retries enabled.
	NoRetry bool

	// DisableGzip suppresses the generated Accept-Encoding header.
	DisableGzip bool

	// UserAgent overrides the generated User-Agent product string.
	UserAgent string

	// Timeout bounds a single dispatch including the response body read.
	// Zero selects DefaultTimeout; a negative value disables the bound,
	// which open-ended uploads need.
	Timeout time.Duration

	// OnUploadProgress receives the cumulative byte count each time a
	// chunk is read from a streamed media body.
	OnUploadProgress func(bytesRead int64)

	// EncodeQuery serializes Query. Installed by the materializer;
	// defaults to EncodeQuery.
	EncodeQuery func(map[string][]string) string
}

// Credential is a tagged variant: either an APIKey or a Capability that can
// authorize and execute requests itself.
type Credential interface {
	credential()
}

// APIKey is a raw API key. The resolver folds it into the "key" query
// parameter (unless the caller already set one) and requests no further
// delegated authorization.
type APIKey string

func (APIKey) credential() {}

// Capability is a credential that owns request execution, e.g. an OAuth
// client that refreshes tokens and signs requests.
type Capability interface {
	Credential
	AuthorizeAndDo(ctx context.Context, opts *Options) (*http.Response, error)
}

// CapabilityMarker ties external capability implementations into the sealed
// credential variant. Embed it in any type implementing Capability.
type CapabilityMarker struct{}

func (CapabilityMarker) credential() {}

// Executor performs an unauthenticated request from finished options.
type Executor interface {
	Execute(ctx context.Context, opts *Options) (*http.Response, error)
}

// DefaultValidateStatus accepts 2xx and 304. Not-modified responses count as
// success so conditional GETs with cache validators flow through.
func DefaultValidateStatus(status int) bool {
	return (status >= 200 && status < 300) || status == http.StatusNotModified
}

// Do runs the full pipeline: resolve, materialize, dispatch.
func Do(ctx context.Context, d *Descriptor) (*http.Response, error) {
	resolved, err := Resolve(d)
	if err != nil {
		return nil, err
	}
	opts, err := Materialize(resolved, d)
	if err != nil {
		return nil, err
	}
	return Dispatch(ctx, resolved.Credential, opts, d.Executor)
}
