// Package auth provides credential implementations for request dispatch.
//
// An API key is just request.APIKey. This package adds the capability side
// of the variant: OAuth bearer-token credentials that authorize and execute
// requests themselves, backed by an oauth2.TokenSource so refresh is handled
// by the token source, not here.
package auth

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/upcall/upcall-cli/internal/request"
)

// OAuth authorizes requests with bearer tokens from a TokenSource and then
// executes them. It implements request.Capability.
type OAuth struct {
	request.CapabilityMarker

	Source oauth2.TokenSource

	// Executor performs the request after authorization. Nil selects the
	// default HTTP executor.
	Executor request.Executor
}

var _ request.Capability = (*OAuth)(nil)

// AuthorizeAndDo injects the Authorization header and delegates execution.
// A caller-supplied Authorization header is left untouched.
func (o *OAuth) AuthorizeAndDo(ctx context.Context, opts *request.Options) (*http.Response, error) {
	token, err := o.Source.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to obtain access token: %w", err)
	}

	authorized := *opts
	authorized.Headers = make(map[string]string, len(opts.Headers)+1)
	for k, v := range opts.Headers {
		authorized.Headers[k] = v
	}
	if _, ok := authorized.Headers["Authorization"]; !ok {
		typ := token.Type()
		authorized.Headers["Authorization"] = typ + " " + token.AccessToken
	}

	return request.Dispatch(ctx, nil, &authorized, o.Executor)
}

// StaticToken returns an OAuth credential for an already-acquired access
// token. No refresh is attempted.
func StaticToken(accessToken string) *OAuth {
	return &OAuth{
		Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}),
	}
}

// FromTokenSource wraps an arbitrary token source, e.g. a refreshing one
// built from an oauth2.Config.
func FromTokenSource(src oauth2.TokenSource) *OAuth {
	return &OAuth{Source: oauth2.ReuseTokenSource(nil, src)}
}
