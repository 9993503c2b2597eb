package request

import (
	"net/http"
	"sort"
	"strings"
)

// Reserved parameter names consumed by the resolver. They never reach the
// path or query stage.
const (
	paramRequestBody = "requestBody"
	paramResource    = "resource" // legacy alias of requestBody
	paramMedia       = "media"
	paramAuth        = "auth"
	paramHeaders     = "headers"
	paramKey         = "key"
)

// aliasMarker suffixes parameters whose base name collides with a reserved
// name, e.g. an endpoint parameter literally called "resource" is passed as
// "resource_".
const aliasMarker = "_"

// Resolve merges the descriptor's parameter sources, extracts the reserved
// fields and validates required parameters.
//
// Merge precedence, lowest first: global defaults < per-client defaults <
// per-call params. The merge is shallow: a later source replaces an earlier
// value wholesale, it never merges into it.
func Resolve(d *Descriptor) (*Resolved, error) {
	params := make(map[string]any)
	if d.Global != nil {
		for k, v := range d.Global.Params {
			params[k] = v
		}
	}
	if d.Context != nil {
		for k, v := range d.Context.snapshotParams() {
			params[k] = v
		}
	}
	for k, v := range d.Params {
		params[k] = v
	}

	out := &Resolved{
		Media:      extractMedia(params),
		Body:       extractBody(params),
		Credential: extractCredential(params, d),
		pathValues: make(map[string]any),
	}

	out.DefaultMimeType = "application/octet-stream"
	if _, ok := out.Media.Body.(string); ok {
		out.DefaultMimeType = "text/plain"
	}

	out.Headers = extractHeaders(params)

	unalias(params)

	var missing []string
	for _, name := range d.RequiredParams {
		if v, ok := params[name]; !ok || v == nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingParametersError{Names: missing}
	}

	// Path parameters must never leak into the query string, nor persist
	// as stale per-client defaults. Their values are kept aside for URL
	// template expansion.
	for _, name := range d.PathParams {
		if v, ok := params[name]; ok {
			out.pathValues[name] = v
			delete(params, name)
		}
		if d.Context != nil {
			d.Context.deleteParam(name)
		}
	}

	// A bare API key becomes the "key" parameter; a key the caller set
	// explicitly always wins. Either way no delegated authorization is
	// requested for it.
	if key, ok := out.Credential.(APIKey); ok {
		if _, exists := params[paramKey]; !exists {
			params[paramKey] = string(key)
		}
		out.Credential = nil
	}

	out.Params = params
	return out, nil
}

func extractMedia(params map[string]any) Media {
	v, ok := params[paramMedia]
	if !ok {
		return Media{}
	}
	delete(params, paramMedia)
	switch m := v.(type) {
	case Media:
		return m
	case *Media:
		if m != nil {
			return *m
		}
	}
	return Media{}
}

// extractBody resolves the request body: requestBody wins over the legacy
// resource field, and both keys are always removed.
func extractBody(params map[string]any) any {
	body, ok := params[paramRequestBody]
	if !ok {
		body = params[paramResource]
	}
	delete(params, paramRequestBody)
	delete(params, paramResource)
	return body
}

// extractCredential resolves the credential: per-call auth beats the client
// context's credential, which beats the process-wide one. The process-wide
// credential is only consulted when a client context exists at all.
func extractCredential(params map[string]any, d *Descriptor) Credential {
	if v, ok := params[paramAuth]; ok {
		delete(params, paramAuth)
		if cred, ok := v.(Credential); ok {
			return cred
		}
		if s, ok := v.(string); ok {
			return APIKey(s)
		}
		return nil
	}
	if d.Context == nil {
		return nil
	}
	if d.Context.Credential != nil {
		return d.Context.Credential
	}
	if d.Global != nil {
		return d.Global.Credential
	}
	return nil
}

func extractHeaders(params map[string]any) map[string]string {
	out := make(map[string]string)
	v, ok := params[paramHeaders]
	if !ok {
		return out
	}
	delete(params, paramHeaders)
	switch h := v.(type) {
	case map[string]string:
		for k, val := range h {
			out[k] = val
		}
	case http.Header:
		for k, vals := range h {
			if len(vals) > 0 {
				out[k] = vals[0]
			}
		}
	}
	return out
}

// unalias renames every key carrying the alias marker suffix to its base
// name, replacing any unmarked key of the same name. Keys are processed in
// sorted order so the result is deterministic.
func unalias(params map[string]any) {
	var marked []string
	for k := range params {
		if strings.HasSuffix(k, aliasMarker) && len(k) > len(aliasMarker) {
			marked = append(marked, k)
		}
	}
	sort.Strings(marked)
	for _, k := range marked {
		params[strings.TrimSuffix(k, aliasMarker)] = params[k]
		delete(params, k)
	}
}
