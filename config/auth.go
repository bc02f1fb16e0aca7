package config

import (
	"fmt"
	"strings"
)

// AuthMode represents the identity provider used by the application.
type AuthMode string

const (
	// AuthModeGoTrue talks to the hosted backend's GoTrue auth API.
	AuthModeGoTrue AuthMode = "gotrue"
	// AuthModeMock uses the in-memory dev provider (for development only).
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "gotrue", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: gotrue, mock)", v)
	}
}

// DevAuthConfig seeds the mock provider with one account.
// Used when AUTH_MODE=mock for development and testing.
type DevAuthConfig struct {
	UserID   string `env:"USER_ID"  envDefault:"dev-user"`
	Email    string `env:"EMAIL"    envDefault:"dev@example.com"`
	Password string `env:"PASSWORD"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which identity provider to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"gotrue"`

	// VerifyTokens checks imported access tokens locally before accepting them.
	VerifyTokens bool `env:"AUTH_VERIFY_TOKENS" envDefault:"false"`

	// JWKSURL enables signature verification when VerifyTokens is set.
	// Without it only the issuer and expiry claims are checked.
	JWKSURL string `env:"AUTH_JWKS_URL"`

	// Issuer is the expected iss claim. Empty skips the issuer check.
	Issuer string `env:"AUTH_ISSUER"`

	// SessionKey names the persisted session slot for this device.
	SessionKey string `env:"AUTH_SESSION_KEY" envDefault:"default"`

	// DevAuth configuration (used when Mode=mock).
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`
}

// Sanitize normalises auth configuration values.
func (c *AuthConfig) Sanitize() {
	c.JWKSURL = strings.TrimSpace(c.JWKSURL)
	c.Issuer = strings.TrimSpace(c.Issuer)
	if c.SessionKey = strings.TrimSpace(c.SessionKey); c.SessionKey == "" {
		c.SessionKey = "default"
	}
	c.DevAuth.Email = strings.TrimSpace(c.DevAuth.Email)
}
