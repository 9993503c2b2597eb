package cmd

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/upcall/upcall-cli/internal/auth"
	"github.com/upcall/upcall-cli/internal/config"
	"github.com/upcall/upcall-cli/internal/request"
	"github.com/upcall/upcall-cli/internal/resolve"
)

func testProfile() *config.Profile {
	return &config.Profile{
		BaseURL:       "https://api.example.com",
		DefaultParams: map[string]any{"prettyPrint": "false"},
		Endpoints: map[string]config.Endpoint{
			"items.get": {
				Method:         "GET",
				URLTemplate:    "/items/{id}",
				RequiredParams: []string{"id"},
				PathParams:     []string{"id"},
			},
			"items.create": {
				Method:        "post",
				URLTemplate:   "/items",
				DefaultParams: map[string]any{"notify": "true"},
			},
		},
	}
}

func TestBuildDescriptor(t *testing.T) {
	flags = rootFlags{Timeout: 10 * time.Second}

	d, err := buildDescriptor(testProfile(), "items.get", map[string]any{"id": "42"}, request.Options{})
	if err != nil {
		t.Fatalf("buildDescriptor() error = %v", err)
	}

	if d.Method != "GET" {
		t.Errorf("Method = %q, want GET", d.Method)
	}
	if d.URLTemplate != "https://api.example.com/items/{id}" {
		t.Errorf("URLTemplate = %q", d.URLTemplate)
	}
	if !reflect.DeepEqual(d.RequiredParams, []string{"id"}) {
		t.Errorf("RequiredParams = %v", d.RequiredParams)
	}
	if d.Options.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", d.Options.Timeout)
	}
	if got := d.Context.Params["prettyPrint"]; got != "false" {
		t.Errorf("profile default prettyPrint = %v, want false", got)
	}
}

func TestBuildDescriptorEndpointDefaults(t *testing.T) {
	flags = rootFlags{}

	d, err := buildDescriptor(testProfile(), "items.create", nil, request.Options{})
	if err != nil {
		t.Fatalf("buildDescriptor() error = %v", err)
	}
	if d.Method != "POST" {
		t.Errorf("Method = %q, want POST", d.Method)
	}
	if got := d.Context.Params["notify"]; got != "true" {
		t.Errorf("endpoint default notify = %v, want true", got)
	}
	if got := d.Context.Params["prettyPrint"]; got != "false" {
		t.Errorf("profile default prettyPrint = %v, want false", got)
	}
}

func TestBuildDescriptorFuzzyEndpointName(t *testing.T) {
	flags = rootFlags{}

	d, err := buildDescriptor(testProfile(), "itemsget", map[string]any{"id": "1"}, request.Options{})
	if err != nil {
		t.Fatalf("buildDescriptor() error = %v", err)
	}
	if d.URLTemplate != "https://api.example.com/items/{id}" {
		t.Errorf("fuzzy match resolved to %q", d.URLTemplate)
	}
}

func TestBuildDescriptorUnknownEndpoint(t *testing.T) {
	flags = rootFlags{}

	_, err := buildDescriptor(testProfile(), "zzz", nil, request.Options{})
	if err == nil {
		t.Fatal("expected error for unknown endpoint")
	}
	if !errors.Is(err, resolve.ErrNoMatch) {
		t.Errorf("error = %v, want ErrNoMatch", err)
	}
}

func TestCredentialFor(t *testing.T) {
	if got := credentialFor(&config.Profile{}); got != nil {
		t.Errorf("empty profile credential = %v, want nil", got)
	}
	if got := credentialFor(&config.Profile{APIKey: "k"}); got != request.APIKey("k") {
		t.Errorf("api key credential = %v", got)
	}
	cred := credentialFor(&config.Profile{APIKey: "k", AccessToken: "tok"})
	if _, ok := cred.(*auth.OAuth); !ok {
		t.Errorf("access token credential = %T, want *auth.OAuth", cred)
	}
}

func TestAbsoluteTemplate(t *testing.T) {
	tests := []struct {
		base, tmpl, want string
	}{
		{"https://api.example.com", "/items/{id}", "https://api.example.com/items/{id}"},
		{"https://api.example.com/", "items/{id}", "https://api.example.com/items/{id}"},
		{"https://api.example.com", "https://upload.example.com/files", "https://upload.example.com/files"},
		{"https://api.example.com", "", ""},
	}
	for _, tt := range tests {
		if got := absoluteTemplate(tt.base, tt.tmpl); got != tt.want {
			t.Errorf("absoluteTemplate(%q, %q) = %q, want %q", tt.base, tt.tmpl, got, tt.want)
		}
	}
}

func TestParseParamPairs(t *testing.T) {
	params, err := parseParamPairs([]string{"id=42", "tag=a", "tag=b", "tag=c", "empty="})
	if err != nil {
		t.Fatalf("parseParamPairs() error = %v", err)
	}
	if params["id"] != "42" {
		t.Errorf("id = %v", params["id"])
	}
	if !reflect.DeepEqual(params["tag"], []string{"a", "b", "c"}) {
		t.Errorf("tag = %v, want [a b c]", params["tag"])
	}
	if params["empty"] != "" {
		t.Errorf("empty = %v, want empty string", params["empty"])
	}

	if _, err := parseParamPairs([]string{"no-equals"}); err == nil {
		t.Error("expected error for pair without =")
	}
	if _, err := parseParamPairs([]string{"=value"}); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestParseHeaderPairs(t *testing.T) {
	headers, err := parseHeaderPairs([]string{"X-Trace: abc", "Accept:application/json"})
	if err != nil {
		t.Fatalf("parseHeaderPairs() error = %v", err)
	}
	if headers["X-Trace"] != "abc" {
		t.Errorf("X-Trace = %q", headers["X-Trace"])
	}
	if headers["Accept"] != "application/json" {
		t.Errorf("Accept = %q", headers["Accept"])
	}

	if _, err := parseHeaderPairs([]string{"no-colon"}); err == nil {
		t.Error("expected error for header without colon")
	}
}
