// Package validation checks user-supplied configuration values before they
// reach the network.
package validation

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidateBaseURL checks that a profile base URL is a well-formed absolute
// http(s) URL. Plain http is only allowed for loopback hosts so tokens are
// never sent unencrypted to a remote host.
func ValidateBaseURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("base URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	switch u.Scheme {
	case "https":
	case "http":
		if !isLoopback(u.Hostname()) {
			return fmt.Errorf("base URL must use https (got http for host %q)", u.Hostname())
		}
	default:
		return fmt.Errorf("base URL must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("base URL has no host")
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("base URL must not carry a query or fragment")
	}
	return nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}
