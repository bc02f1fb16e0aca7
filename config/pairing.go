package config

import (
	"strings"
	"time"
)

const (
	defaultExchangeFunction = "tv-logins-exchange"
	defaultMaxPollFailures  = 5
	defaultTVLoginTimeout   = 10 * time.Minute
)

// TVLoginConfig controls the device pairing flow.
type TVLoginConfig struct {
	// RedirectBaseURL is where the approving device is sent after sign-in.
	RedirectBaseURL string `env:"REDIRECT_BASE_URL"`

	// DeviceName is shown on the approval page. Optional.
	DeviceName string `env:"DEVICE_NAME"`

	ExchangeFunction string        `env:"EXCHANGE_FUNCTION" envDefault:"tv-logins-exchange"`
	MaxPollFailures  int           `env:"MAX_POLL_FAILURES" envDefault:"5"`
	Timeout          time.Duration `env:"TIMEOUT"           envDefault:"10m"`
}

// Sanitize applies defaults to out-of-range values.
func (c *TVLoginConfig) Sanitize() {
	c.RedirectBaseURL = strings.TrimSpace(c.RedirectBaseURL)
	c.DeviceName = strings.TrimSpace(c.DeviceName)
	if c.ExchangeFunction = strings.TrimSpace(c.ExchangeFunction); c.ExchangeFunction == "" {
		c.ExchangeFunction = defaultExchangeFunction
	}
	if c.MaxPollFailures <= 0 {
		c.MaxPollFailures = defaultMaxPollFailures
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTVLoginTimeout
	}
}
