package request

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/yosida95/uritemplate/v3"

	"github.com/upcall/upcall-cli/internal/version"
)

// Materialize builds the final transport options from resolved parameters:
// URL template expansion, query serialization, the plain/media/multipart
// body decision, header assembly and the option-precedence merge.
func Materialize(r *Resolved, d *Descriptor) (*Options, error) {
	expandVars := make(map[string]any, len(r.Params)+len(r.pathValues))
	for k, v := range r.Params {
		expandVars[k] = v
	}
	for k, v := range r.pathValues {
		expandVars[k] = v
	}

	consumed := make(map[string]bool)
	targetURL, err := expandTemplate(d.URLTemplate, expandVars, consumed)
	if err != nil {
		return nil, err
	}
	mediaURL, err := expandTemplate(d.MediaURLTemplate, expandVars, consumed)
	if err != nil {
		return nil, err
	}

	// Parameters a template referenced are consumed by the expansion;
	// the rest become the query string.
	leftover := make(map[string]any, len(r.Params))
	for k, v := range r.Params {
		if !consumed[k] {
			leftover[k] = v
		}
	}
	query := queryValues(leftover)

	headers := make(map[string]string)
	var body any

	switch {
	case mediaURL != "" && r.Media.Body != nil && r.Body != nil:
		// Metadata and media together: stream-assemble a
		// multipart/related body.
		targetURL = mediaURL
		query["uploadType"] = []string{"multipart"}
		metadata, err := json.Marshal(r.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		boundary := newBoundary()
		headers["Content-Type"] = "multipart/related; boundary=" + boundary
		body = newMultipartStream(boundary, metadata, mediaPartType(r), r.Media.Body, d.Options.OnUploadProgress)

	case mediaURL != "" && r.Media.Body != nil:
		// Media alone: raw payload upload.
		targetURL = mediaURL
		query["uploadType"] = []string{"media"}
		headers["Content-Type"] = mediaPartType(r)
		body = r.Media.Body
		if rd, ok := body.(io.Reader); ok && d.Options.OnUploadProgress != nil {
			body = &progressReader{r: rd, onProgress: d.Options.OnUploadProgress}
		}

	default:
		body = r.Body
	}

	computed := Options{
		URL:         targetURL,
		Method:      d.Method,
		Query:       query,
		Body:        body,
		EncodeQuery: EncodeQuery,
	}
	perCall := overlayOptions(d.Options, computed)

	opts := Options{}
	if d.Global != nil {
		opts = overlayOptions(opts, d.Global.RequestOptions)
	}
	if d.Context != nil {
		opts = overlayOptions(opts, d.Context.RequestOptions)
	}
	opts = overlayOptions(opts, perCall)

	opts.Headers = assembleHeaders(headers, r.Headers, &opts)
	if opts.ValidateStatus == nil {
		opts.ValidateStatus = DefaultValidateStatus
	}
	if opts.EncodeQuery == nil {
		opts.EncodeQuery = EncodeQuery
	}
	return &opts, nil
}

// mediaPartType picks the media Content-Type: the explicit MIME type, then a
// mimeType field on the body payload, then the computed default.
func mediaPartType(r *Resolved) string {
	if r.Media.MimeType != "" {
		return r.Media.MimeType
	}
	if m, ok := r.Body.(map[string]any); ok {
		if s, ok := m["mimeType"].(string); ok && s != "" {
			return s
		}
	}
	return r.DefaultMimeType
}

// expandTemplate expands an RFC 6570 template and records which variables it
// referenced. An empty template expands to "".
func expandTemplate(raw string, vars map[string]any, consumed map[string]bool) (string, error) {
	if raw == "" {
		return "", nil
	}
	tmpl, err := uritemplate.New(raw)
	if err != nil {
		return "", fmt.Errorf("invalid URL template %q: %w", raw, err)
	}
	values := uritemplate.Values{}
	for _, name := range tmpl.Varnames() {
		consumed[name] = true
		if v, ok := vars[name]; ok && v != nil {
			values.Set(name, uritemplate.String(stringifyParam(v)))
		}
	}
	expanded, err := tmpl.Expand(values)
	if err != nil {
		return "", fmt.Errorf("failed to expand URL template %q: %w", raw, err)
	}
	return expanded, nil
}

// assembleHeaders layers generated headers under caller-supplied overrides;
// the caller wins on conflicting keys.
func assembleHeaders(generated map[string]string, userHeaders map[string]string, opts *Options) map[string]string {
	out := make(map[string]string, len(generated)+len(userHeaders)+2)
	for k, v := range generated {
		out[k] = v
	}
	if !opts.DisableGzip {
		out["Accept-Encoding"] = "gzip"
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = "upcall/" + version.Version
	}
	if !opts.DisableGzip {
		ua += " (gzip)"
	}
	out["User-Agent"] = ua
	for k, v := range opts.Headers {
		out[k] = v
	}
	for k, v := range userHeaders {
		out[k] = v
	}
	return out
}

// overlayOptions merges src over dst field by field; set fields in src win.
func overlayOptions(dst, src Options) Options {
	out := dst
	if src.URL != "" {
		out.URL = src.URL
	}
	if src.Method != "" {
		out.Method = src.Method
	}
	if src.Query != nil {
		out.Query = src.Query
	}
	if src.Body != nil {
		out.Body = src.Body
	}
	if src.ValidateStatus != nil {
		out.ValidateStatus = src.ValidateStatus
	}
	if src.NoRetry {
		out.NoRetry = true
	}
	if src.DisableGzip {
		out.DisableGzip = true
	}
	if src.UserAgent != "" {
		out.UserAgent = src.UserAgent
	}
	if src.Timeout != 0 {
		out.Timeout = src.Timeout
	}
	if src.OnUploadProgress != nil {
		out.OnUploadProgress = src.OnUploadProgress
	}
	if src.EncodeQuery != nil {
		out.EncodeQuery = src.EncodeQuery
	}
	if len(src.Headers) > 0 {
		merged := make(map[string]string, len(dst.Headers)+len(src.Headers))
		for k, v := range dst.Headers {
			merged[k] = v
		}
		for k, v := range src.Headers {
			merged[k] = v
		}
		out.Headers = merged
	}
	return out
}
