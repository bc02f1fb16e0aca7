package config

import (
	"fmt"
	"strings"
	"time"
)

// SessionStoreKind selects where provider sessions are persisted.
type SessionStoreKind string

const (
	// SessionStoreMemory keeps sessions for the life of the process.
	SessionStoreMemory SessionStoreKind = "memory"
	// SessionStoreRedis persists sessions in Redis.
	SessionStoreRedis SessionStoreKind = "redis"
)

const defaultSessionTTL = 30 * 24 * time.Hour

// UnmarshalText implements encoding.TextUnmarshaler for SessionStoreKind.
func (k *SessionStoreKind) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "memory", "redis":
		*k = SessionStoreKind(v)
		return nil
	default:
		return fmt.Errorf("invalid SessionStoreKind: %q (valid options: memory, redis)", v)
	}
}

// SessionStoreConfig controls session persistence.
type SessionStoreConfig struct {
	Store  SessionStoreKind `env:"SESSION_STORE"  envDefault:"memory"`
	TTL    time.Duration    `env:"SESSION_TTL"    envDefault:"720h"`
	Prefix string           `env:"SESSION_PREFIX" envDefault:"tvsession:"`
}

// Sanitize applies defaults to out-of-range values.
func (c *SessionStoreConfig) Sanitize() {
	if c.TTL <= 0 {
		c.TTL = defaultSessionTTL
	}
	if c.Prefix = strings.TrimSpace(c.Prefix); c.Prefix == "" {
		c.Prefix = "tvsession:"
	}
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
}
