package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/skoruppa/NuvioTV-sub003/config"
	"github.com/skoruppa/NuvioTV-sub003/internal/bootstrap"
	domainauth "github.com/skoruppa/NuvioTV-sub003/internal/domain/auth"
)

type agentOptions struct {
	Bootstrap bool
}

func main() {
	ctx := context.Background()
	logger := bootstrap.InitLogger(slog.LevelInfo)

	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2) //nolint:forbidigo // Invalid flags are a usage error.
	}
	if err := run(ctx, logger, opts); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func parseFlags(args []string) (agentOptions, error) {
	fs := flag.NewFlagSet("tvsession-agent", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts agentOptions
	fs.BoolVar(&opts.Bootstrap, "bootstrap", false, "Create an anonymous session at startup when none exists")
	if err := fs.Parse(args); err != nil {
		return agentOptions{}, err
	}
	return opts, nil
}

func run(ctx context.Context, logger *slog.Logger, opts agentOptions) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	if level := cfg.SlogLevel(); level != slog.LevelInfo {
		logger = bootstrap.InitLogger(level)
	}
	logStartupInfo(ctx, logger, &cfg)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := bootstrap.NewMetricsRegistry()
	services, err := bootstrap.NewServices(ctx, &bootstrap.ServiceDeps{
		Config:     &cfg,
		Registerer: reg,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("build services: %w", err)
	}
	defer func() {
		if cerr := services.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close services failed", "error", cerr)
		}
	}()

	if opts.Bootstrap {
		if err := services.Bootstrap.EnsureBootstrapSession(ctx); err != nil {
			// The agent keeps running signed out.
			logger.WarnContext(ctx, "bootstrap session failed", "error", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return services.StateMachine.Run(gctx)
	})
	g.Go(func() error {
		watchStates(gctx, logger, services)
		return nil
	})
	g.Go(func() error {
		return bootstrap.ServeMetrics(gctx, bootstrap.NewMetricsServer(cfg.Observability.Metrics, reg), logger)
	})

	err = g.Wait()
	logger.Info("tvsession agent stopped")
	return err
}

// watchStates logs every published AuthState and, for full accounts, the
// effective user id data should be scoped to.
func watchStates(ctx context.Context, logger *slog.Logger, services *bootstrap.ServiceContainer) {
	for state := range services.StateMachine.Watch(ctx) {
		logger.InfoContext(ctx, "auth state", "state", state.Kind.String(), "user_id", state.UserID)
		if !state.IsFullAccount() || services.Resolver == nil {
			continue
		}
		logEffectiveUser(ctx, logger, services, state)
	}
}

func logEffectiveUser(ctx context.Context, logger *slog.Logger, services *bootstrap.ServiceContainer, state domainauth.AuthState) {
	effective, err := services.Resolver.EffectiveUserID(ctx, true)
	if err != nil {
		logger.WarnContext(ctx, "resolve effective user failed", "user_id", state.UserID, "error", err)
		return
	}
	logger.InfoContext(ctx, "effective user", "user_id", state.UserID, "effective_user_id", effective)
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "starting tvsession agent",
		"auth_mode", cfg.Auth.Mode,
		"session_store", cfg.Sessions.Store,
		"backend_configured", cfg.Backend.IsConfigured(),
		"metrics_enabled", cfg.Observability.Metrics.IsEnabled())
}
