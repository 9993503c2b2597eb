// Package config stores upcall profiles in the system keyring.
//
// A profile bundles everything needed to call one API: the base and upload
// URL prefixes, a credential, per-profile default parameters and transport
// options, and a catalog of named endpoint templates. Profiles are JSON
// blobs in the keyring, one entry per profile plus an index entry and a
// current-profile marker.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/99designs/keyring"
)

const (
	serviceName       = "upcall"
	profilePrefix     = "profile:"
	profileIndexKey   = "profiles_index"
	currentProfileKey = "current_profile"

	// DefaultProfile is used when the caller selects no profile.
	DefaultProfile = "default"

	envKeyringBackend  = "UPCALL_KEYRING_BACKEND"
	envKeyringPassword = "UPCALL_KEYRING_PASSWORD"
	envCredentialsDir  = "UPCALL_CREDENTIALS_DIR"
	envBaseURL         = "UPCALL_BASE_URL"
	envAPIKey          = "UPCALL_API_KEY"
	envAccessToken     = "UPCALL_ACCESS_TOKEN"
)

// openKeyring is a package-level function for opening keyrings. Tests
// replace it with a mock.
var openKeyring = func(cfg keyring.Config) (keyring.Keyring, error) {
	return keyring.Open(cfg)
}

// SetOpenKeyring replaces the keyring opener for testing. Returns a cleanup
// function that restores the original.
func SetOpenKeyring(fn func(keyring.Config) (keyring.Keyring, error)) func() {
	original := openKeyring
	openKeyring = fn
	return func() { openKeyring = original }
}

// Endpoint is a named call template within a profile.
type Endpoint struct {
	Method           string         `json:"method"`
	URLTemplate      string         `json:"url_template"`
	MediaURLTemplate string         `json:"media_url_template,omitempty"`
	RequiredParams   []string       `json:"required_params,omitempty"`
	PathParams       []string       `json:"path_params,omitempty"`
	DefaultParams    map[string]any `json:"default_params,omitempty"`
	Description      string         `json:"description,omitempty"`
}

// Profile holds the connection details for one API.
type Profile struct {
	BaseURL       string              `json:"base_url"`
	APIKey        string              `json:"api_key,omitempty"`
	AccessToken   string              `json:"access_token,omitempty"`
	DefaultParams map[string]any      `json:"default_params,omitempty"`
	Endpoints     map[string]Endpoint `json:"endpoints,omitempty"`
}

// ErrNotConfigured is returned when the requested profile does not exist.
var ErrNotConfigured = errors.New("upcall not configured - run 'upcall auth login' first")

func keyringConfig() keyring.Config {
	cfg := keyring.Config{
		ServiceName:              serviceName,
		KeychainTrustApplication: true,
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv(envKeyringBackend)))
	dir := strings.TrimSpace(os.Getenv(envCredentialsDir))
	if dir == "" {
		if base, err := os.UserConfigDir(); err == nil {
			dir = filepath.Join(base, "upcall", "credentials")
		}
	}
	cfg.FileDir = dir
	cfg.FilePasswordFunc = func(string) (string, error) {
		return os.Getenv(envKeyringPassword), nil
	}

	if backend == "file" {
		cfg.AllowedBackends = []keyring.BackendType{keyring.FileBackend}
	}
	return cfg
}

func open() (keyring.Keyring, error) {
	ring, err := openKeyring(keyringConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}
	return ring, nil
}

// Load reads a profile. Environment variables override stored fields so CI
// and scripts can run without a keyring entry; with UPCALL_BASE_URL set, a
// missing profile is synthesized entirely from the environment.
func Load(name string) (*Profile, error) {
	if name == "" {
		name = CurrentProfile()
	}

	profile, err := loadStored(name)
	if err != nil {
		if !errors.Is(err, ErrNotConfigured) {
			return nil, err
		}
		if os.Getenv(envBaseURL) == "" {
			return nil, err
		}
		profile = &Profile{}
	}

	if v := os.Getenv(envBaseURL); v != "" {
		profile.BaseURL = v
	}
	if v := os.Getenv(envAPIKey); v != "" {
		profile.APIKey = v
	}
	if v := os.Getenv(envAccessToken); v != "" {
		profile.AccessToken = v
	}
	return profile, nil
}

func loadStored(name string) (*Profile, error) {
	ring, err := open()
	if err != nil {
		return nil, err
	}
	item, err := ring.Get(profilePrefix + name)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return nil, ErrNotConfigured
		}
		return nil, fmt.Errorf("failed to read profile %q: %w", name, err)
	}
	var profile Profile
	if err := json.Unmarshal(item.Data, &profile); err != nil {
		return nil, fmt.Errorf("corrupt profile %q: %w", name, err)
	}
	return &profile, nil
}

// Save writes a profile and adds it to the index.
func Save(name string, profile *Profile) error {
	if name == "" {
		name = DefaultProfile
	}
	ring, err := open()
	if err != nil {
		return err
	}
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	if err := ring.Set(keyring.Item{Key: profilePrefix + name, Data: data}); err != nil {
		return fmt.Errorf("failed to store profile %q: %w", name, err)
	}
	return addToIndex(ring, name)
}

// Delete removes a profile and drops it from the index.
func Delete(name string) error {
	ring, err := open()
	if err != nil {
		return err
	}
	if err := ring.Remove(profilePrefix + name); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("failed to remove profile %q: %w", name, err)
	}
	return removeFromIndex(ring, name)
}

// List returns the names of all stored profiles, sorted.
func List() ([]string, error) {
	ring, err := open()
	if err != nil {
		return nil, err
	}
	names := readIndex(ring)
	sort.Strings(names)
	return names, nil
}

// CurrentProfile returns the selected profile name, defaulting to "default".
func CurrentProfile() string {
	if v := strings.TrimSpace(os.Getenv("UPCALL_PROFILE")); v != "" {
		return v
	}
	ring, err := open()
	if err != nil {
		return DefaultProfile
	}
	item, err := ring.Get(currentProfileKey)
	if err != nil || len(item.Data) == 0 {
		return DefaultProfile
	}
	return string(item.Data)
}

// SetCurrentProfile selects the profile used when none is named.
func SetCurrentProfile(name string) error {
	ring, err := open()
	if err != nil {
		return err
	}
	if err := ring.Set(keyring.Item{Key: currentProfileKey, Data: []byte(name)}); err != nil {
		return fmt.Errorf("failed to set current profile: %w", err)
	}
	return nil
}

func readIndex(ring keyring.Keyring) []string {
	item, err := ring.Get(profileIndexKey)
	if err != nil {
		return nil
	}
	var names []string
	if err := json.Unmarshal(item.Data, &names); err != nil {
		return nil
	}
	return names
}

func writeIndex(ring keyring.Keyring, names []string) error {
	data, err := json.Marshal(names)
	if err != nil {
		return err
	}
	return ring.Set(keyring.Item{Key: profileIndexKey, Data: data})
}

func addToIndex(ring keyring.Keyring, name string) error {
	names := readIndex(ring)
	for _, n := range names {
		if n == name {
			return nil
		}
	}
	return writeIndex(ring, append(names, name))
}

func removeFromIndex(ring keyring.Keyring, name string) error {
	names := readIndex(ring)
	out := names[:0]
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	return writeIndex(ring, out)
}
