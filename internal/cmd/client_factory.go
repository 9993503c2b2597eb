package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/upcall/upcall-cli/internal/auth"
	"github.com/upcall/upcall-cli/internal/config"
	"github.com/upcall/upcall-cli/internal/request"
	"github.com/upcall/upcall-cli/internal/resolve"
	"github.com/upcall/upcall-cli/internal/validation"
)

// loadProfile reads and validates the active profile.
var loadProfile = func() (*config.Profile, error) {
	profile, err := config.Load(flags.Profile)
	if err != nil {
		return nil, err
	}
	if profile.BaseURL != "" {
		if err := validation.ValidateBaseURL(profile.BaseURL); err != nil {
			return nil, err
		}
	}
	return profile, nil
}

// buildDescriptor turns a named endpoint plus per-call params into a request
// descriptor wired with the profile's defaults and credential.
func buildDescriptor(profile *config.Profile, endpointName string, params map[string]any, opts request.Options) (*request.Descriptor, error) {
	names := make([]string, 0, len(profile.Endpoints))
	for name := range profile.Endpoints {
		names = append(names, name)
	}
	sort.Strings(names)

	name, err := resolve.Endpoint(endpointName, names)
	if err != nil {
		return nil, err
	}
	endpoint := profile.Endpoints[name]

	defaults := make(map[string]any, len(profile.DefaultParams)+len(endpoint.DefaultParams))
	for k, v := range profile.DefaultParams {
		defaults[k] = v
	}
	for k, v := range endpoint.DefaultParams {
		defaults[k] = v
	}

	opts.Timeout = flags.Timeout

	return &request.Descriptor{
		Params:           params,
		RequiredParams:   endpoint.RequiredParams,
		PathParams:       endpoint.PathParams,
		Method:           methodOrDefault(endpoint.Method),
		URLTemplate:      absoluteTemplate(profile.BaseURL, endpoint.URLTemplate),
		MediaURLTemplate: absoluteTemplate(profile.BaseURL, endpoint.MediaURLTemplate),
		Options:          opts,
		Context: &request.ClientContext{
			Params:     defaults,
			Credential: credentialFor(profile),
		},
	}, nil
}

func methodOrDefault(method string) string {
	if method == "" {
		return "GET"
	}
	return strings.ToUpper(method)
}

// absoluteTemplate anchors relative endpoint templates on the profile base
// URL; absolute templates pass through.
func absoluteTemplate(baseURL, tmpl string) string {
	if tmpl == "" || strings.Contains(tmpl, "://") {
		return tmpl
	}
	return strings.TrimSuffix(baseURL, "/") + "/" + strings.TrimPrefix(tmpl, "/")
}

// credentialFor picks the profile credential: an OAuth token outranks a
// plain API key.
func credentialFor(profile *config.Profile) request.Credential {
	if profile.AccessToken != "" {
		return auth.StaticToken(profile.AccessToken)
	}
	if profile.APIKey != "" {
		return request.APIKey(profile.APIKey)
	}
	return nil
}

// parseParamPairs parses repeated -p key=value flags. A key given several
// times accumulates into a multi-valued parameter.
func parseParamPairs(pairs []string) (map[string]any, error) {
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q (want key=value)", pair)
		}
		switch existing := params[key].(type) {
		case nil:
			params[key] = value
		case string:
			params[key] = []string{existing, value}
		case []string:
			params[key] = append(existing, value)
		}
	}
	return params, nil
}

// parseHeaderPairs parses repeated -H "Key: Value" flags.
func parseHeaderPairs(pairs []string) (map[string]string, error) {
	headers := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, ":")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid header %q (want 'Key: Value')", pair)
		}
		headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return headers, nil
}
