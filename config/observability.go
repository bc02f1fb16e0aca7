package config

import "strings"

// ObservabilityConfig groups configuration that controls metrics exposure.
type ObservabilityConfig struct {
	Metrics ObservabilityMetricsConfig
}

// Sanitize applies guardrails to observability sub-configs.
func (c *ObservabilityConfig) Sanitize() {
	c.Metrics.Sanitize()
}

// ObservabilityMetricsConfig controls the Prometheus scrape endpoint.
type ObservabilityMetricsConfig struct {
	// Addr is the listen address for /metrics. Empty disables the endpoint.
	Addr string `env:"METRICS_ADDR" envDefault:""`
	Path string `env:"METRICS_PATH" envDefault:"/metrics"`
}

// Sanitize normalises derived fields and enforces safe defaults.
func (c *ObservabilityMetricsConfig) Sanitize() {
	c.Addr = strings.TrimSpace(c.Addr)
	if c.Path = strings.TrimSpace(c.Path); c.Path == "" || !strings.HasPrefix(c.Path, "/") {
		c.Path = "/metrics"
	}
}

// IsEnabled returns true when the metrics endpoint should be served.
func (c *ObservabilityMetricsConfig) IsEnabled() bool {
	return c.Addr != ""
}
