package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/skoruppa/NuvioTV-sub003/config"
	"github.com/skoruppa/NuvioTV-sub003/internal/adapters/backend"
	"github.com/skoruppa/NuvioTV-sub003/internal/observability/metrics"
	"github.com/skoruppa/NuvioTV-sub003/internal/ports"
	"github.com/skoruppa/NuvioTV-sub003/internal/service"
)

// ServiceContainer holds all application services.
// Resolver, Pairing and Poller are nil when no backend is configured (mock mode only).
type ServiceContainer struct {
	Provider     IdentityProvider
	Sessions     ports.SessionStore
	Metrics      *metrics.AuthMetrics
	Cache        *service.EffectiveIdentityCache
	Refresher    *service.SessionRefresher
	StateMachine *service.SessionStateMachine
	Bootstrap    *service.BootstrapService
	Account      *service.AccountService
	Resolver     *service.EffectiveUserResolver
	Pairing      *service.PairingService
	Poller       *service.PairingPoller

	redis     redis.UniversalClient
	ownsRedis bool
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config *config.AppConfig
	// RedisClient is used instead of dialing REDIS_* when SESSION_STORE=redis. Optional.
	RedisClient redis.UniversalClient
	// Registerer receives the auth metrics. Optional.
	Registerer prometheus.Registerer
	Logger     *slog.Logger
}

// NewServices wires adapters and services from configuration. The identity
// provider has already published its initial status when this returns.
func NewServices(ctx context.Context, deps *ServiceDeps) (*ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return nil, errors.New("service config is required")
	}
	cfg := deps.Config
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &ServiceContainer{redis: deps.RedisClient}
	if cfg.UsesRedis() && c.redis == nil {
		client, err := ConnectRedis(ctx, RedisConfig{Redis: cfg.Redis, Logger: logger})
		if err != nil {
			return nil, err
		}
		c.redis, c.ownsRedis = client, true
	}

	store, err := BuildSessionStore(SessionStoreConfig{Sessions: cfg.Sessions, RedisClient: c.redis})
	if err != nil {
		return nil, c.closeOnError(err)
	}
	c.Sessions = store

	prov, err := BuildIdentityProvider(ctx, IdentityConfig{
		Auth:    cfg.Auth,
		Backend: cfg.Backend,
		Store:   store,
		Logger:  logger,
	})
	if err != nil {
		return nil, c.closeOnError(err)
	}
	c.Provider = prov

	if err := c.buildSessionServices(logger, deps.Registerer); err != nil {
		return nil, c.closeOnError(err)
	}
	if cfg.Backend.IsConfigured() {
		if err := c.buildBackendServices(cfg, logger); err != nil {
			return nil, c.closeOnError(err)
		}
	} else {
		logger.WarnContext(ctx, "backend not configured; effective user and tv login are unavailable")
	}

	account, err := service.NewAccountService(service.AccountServiceOptions{
		Provider: prov,
		Resolver: c.Resolver,
		Logger:   logger,
	})
	if err != nil {
		return nil, c.closeOnError(err)
	}
	c.Account = account

	return c, nil
}

func (c *ServiceContainer) buildSessionServices(logger *slog.Logger, reg prometheus.Registerer) error {
	c.Metrics = metrics.NewAuthMetrics(reg)
	c.Cache = service.NewEffectiveIdentityCache()

	refresher, err := service.NewSessionRefresher(service.SessionRefresherOptions{
		Provider: c.Provider,
		Logger:   logger,
		Metrics:  c.Metrics,
	})
	if err != nil {
		return fmt.Errorf("session refresher: %w", err)
	}
	c.Refresher = refresher

	sm, err := service.NewSessionStateMachine(service.SessionStateMachineOptions{
		Provider:  c.Provider,
		Cache:     c.Cache,
		Refresher: refresher,
		Logger:    logger,
		Metrics:   c.Metrics,
	})
	if err != nil {
		return fmt.Errorf("session state machine: %w", err)
	}
	c.StateMachine = sm

	boot, err := service.NewBootstrapService(service.BootstrapServiceOptions{
		Provider: c.Provider,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("bootstrap service: %w", err)
	}
	c.Bootstrap = boot
	return nil
}

func (c *ServiceContainer) buildBackendServices(cfg *config.AppConfig, logger *slog.Logger) error {
	backendCfg := backend.Config{
		BaseURL:     cfg.Backend.URL,
		APIKey:      cfg.Backend.APIKey,
		Timeout:     cfg.Backend.Timeout,
		TokenSource: c.Provider,
	}
	rpc, err := backend.NewRPCClient(backendCfg)
	if err != nil {
		return fmt.Errorf("rpc client: %w", err)
	}
	functions, err := backend.NewFunctionClient(backendCfg)
	if err != nil {
		return fmt.Errorf("function client: %w", err)
	}

	resolver, err := service.NewEffectiveUserResolver(service.EffectiveUserResolverOptions{
		RPC:       rpc,
		Provider:  c.Provider,
		Cache:     c.Cache,
		Refresher: c.Refresher,
		Logger:    logger,
		Metrics:   c.Metrics,
	})
	if err != nil {
		return fmt.Errorf("effective user resolver: %w", err)
	}
	c.Resolver = resolver

	pairingSvc, err := service.NewPairingService(service.PairingServiceOptions{
		RPC:              rpc,
		Functions:        functions,
		Provider:         c.Provider,
		Logger:           logger,
		Metrics:          c.Metrics,
		ExchangeFunction: cfg.TVLogin.ExchangeFunction,
	})
	if err != nil {
		return fmt.Errorf("pairing service: %w", err)
	}
	c.Pairing = pairingSvc

	poller, err := service.NewPairingPoller(service.PairingPollerOptions{
		Pairing:         pairingSvc,
		Logger:          logger,
		MaxPollFailures: cfg.TVLogin.MaxPollFailures,
	})
	if err != nil {
		return fmt.Errorf("pairing poller: %w", err)
	}
	c.Poller = poller
	return nil
}

// Close releases the provider and any Redis client created by NewServices.
func (c *ServiceContainer) Close() error {
	if c == nil {
		return nil
	}
	if c.Provider != nil {
		c.Provider.Close()
	}
	if c.ownsRedis && c.redis != nil {
		if err := c.redis.Close(); err != nil {
			return fmt.Errorf("close redis: %w", err)
		}
	}
	return nil
}

func (c *ServiceContainer) closeOnError(err error) error {
	if closeErr := c.Close(); closeErr != nil {
		return errors.Join(err, closeErr)
	}
	return err
}
