package config

import (
	"strings"
	"time"
)

const defaultBackendTimeout = 15 * time.Second

// BackendConfig contains the hosted backend connection settings shared by the
// auth API, the RPC endpoint and backend functions.
type BackendConfig struct {
	// URL is the project base URL, e.g. https://xyz.supabase.co.
	URL string `env:"URL"`

	// APIKey is the public (anon) key sent as the apikey header.
	APIKey string `env:"API_KEY"`

	Timeout time.Duration `env:"TIMEOUT" envDefault:"15s"`
}

// Sanitize trims the URL and enforces a positive timeout.
func (c *BackendConfig) Sanitize() {
	c.URL = strings.TrimRight(strings.TrimSpace(c.URL), "/")
	c.APIKey = strings.TrimSpace(c.APIKey)
	if c.Timeout <= 0 {
		c.Timeout = defaultBackendTimeout
	}
}

// IsConfigured reports whether both URL and APIKey are set.
func (c *BackendConfig) IsConfigured() bool {
	return c.URL != "" && c.APIKey != ""
}
