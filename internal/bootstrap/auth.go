package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"

	"github.com/skoruppa/NuvioTV-sub003/config"
	"github.com/skoruppa/NuvioTV-sub003/internal/adapters/devauth"
	"github.com/skoruppa/NuvioTV-sub003/internal/adapters/gotrue"
	"github.com/skoruppa/NuvioTV-sub003/internal/adapters/memory"
	redisadapter "github.com/skoruppa/NuvioTV-sub003/internal/adapters/redis"
	"github.com/skoruppa/NuvioTV-sub003/internal/ports"
)

// IdentityProvider is what the wiring needs from a concrete provider: the port,
// a bearer source for backend calls, and shutdown.
type IdentityProvider interface {
	ports.IdentityProvider
	oauth2.TokenSource
	Close()
}

// SessionStoreConfig contains configuration for session persistence.
type SessionStoreConfig struct {
	Sessions    config.SessionStoreConfig
	RedisClient redis.UniversalClient
}

// BuildSessionStore returns the configured ports.SessionStore.
//
//nolint:ireturn // the store kind is selected at runtime.
func BuildSessionStore(cfg SessionStoreConfig) (ports.SessionStore, error) {
	switch cfg.Sessions.Store {
	case config.SessionStoreRedis:
		if cfg.RedisClient == nil {
			return nil, fmt.Errorf("session store %q requires a redis client", cfg.Sessions.Store)
		}
		return redisadapter.NewSessionStore(cfg.RedisClient, redisadapter.SessionStoreOptions{
			Prefix: cfg.Sessions.Prefix,
			TTL:    cfg.Sessions.TTL,
		}), nil
	case config.SessionStoreMemory, "":
		return memory.NewSessionStore(), nil
	default:
		return nil, fmt.Errorf("unknown session store %q", cfg.Sessions.Store)
	}
}

// IdentityConfig contains configuration for the identity provider.
type IdentityConfig struct {
	Auth    config.AuthConfig
	Backend config.BackendConfig
	Store   ports.SessionStore
	Logger  *slog.Logger
}

// BuildIdentityProvider creates the identity provider for the configured auth
// mode and publishes its initial status.
//
//nolint:ireturn // the provider is selected by AUTH_MODE.
func BuildIdentityProvider(ctx context.Context, cfg IdentityConfig) (IdentityProvider, error) {
	switch cfg.Auth.Mode {
	case config.AuthModeMock:
		prov, err := devauth.NewProvider(devauth.Config{
			UserID:   cfg.Auth.DevAuth.UserID,
			Email:    cfg.Auth.DevAuth.Email,
			Password: cfg.Auth.DevAuth.Password,
		})
		if err != nil {
			return nil, fmt.Errorf("create dev auth provider: %w", err)
		}
		if cfg.Logger != nil {
			cfg.Logger.WarnContext(ctx, "using in-memory dev identity provider", "email", cfg.Auth.DevAuth.Email)
		}
		return prov, nil

	case config.AuthModeGoTrue, "":
		return buildGoTrueProvider(ctx, cfg)

	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Auth.Mode)
	}
}

func buildGoTrueProvider(ctx context.Context, cfg IdentityConfig) (*gotrue.Provider, error) {
	var verifier *gotrue.TokenVerifier
	if cfg.Auth.VerifyTokens {
		verifier = gotrue.NewTokenVerifier(gotrue.VerifierConfig{
			Issuer:  cfg.Auth.Issuer,
			JWKSURL: cfg.Auth.JWKSURL,
		})
	}

	prov, err := gotrue.NewProvider(gotrue.Config{
		BaseURL:    cfg.Backend.URL,
		APIKey:     cfg.Backend.APIKey,
		Timeout:    cfg.Backend.Timeout,
		Store:      cfg.Store,
		SessionKey: cfg.Auth.SessionKey,
		Verifier:   verifier,
		Logger:     cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create gotrue provider: %w", err)
	}

	// A store failure leaves the provider usable but signed out.
	if err := prov.Start(ctx); err != nil && cfg.Logger != nil {
		cfg.Logger.WarnContext(ctx, "could not restore persisted session", "error", err)
	}
	return prov, nil
}
