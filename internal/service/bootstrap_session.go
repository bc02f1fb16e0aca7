package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/skoruppa/NuvioTV-sub003/internal/ports"
)

// BootstrapServiceOptions groups dependencies for BootstrapService.
type BootstrapServiceOptions struct {
	Provider ports.IdentityProvider
	Logger   *slog.Logger
}

// BootstrapService guarantees a bearer token exists before pairing calls are made.
type BootstrapService struct {
	provider ports.IdentityProvider
	logger   *slog.Logger
}

// NewBootstrapService constructs a BootstrapService.
func NewBootstrapService(opts BootstrapServiceOptions) (*BootstrapService, error) {
	if opts.Provider == nil {
		return nil, errors.New("Provider is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &BootstrapService{
		provider: opts.Provider,
		logger:   logger.With("component", "bootstrap_session"),
	}, nil
}

// EnsureBootstrapSession is a no-op when a session with an access token exists;
// otherwise it signs in an anonymous principal. Anonymous principals carry no
// email, so they never surface as a signed-in account.
func (b *BootstrapService) EnsureBootstrapSession(ctx context.Context) error {
	if sess, ok := b.provider.CurrentSession(ctx); ok && sess.HasAccessToken() {
		return nil
	}

	sess, err := b.provider.SignInAnonymously(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap anonymous session: %w", err)
	}
	b.logger.InfoContext(ctx, "anonymous bootstrap session created", "user_id", sess.User.ID)
	return nil
}
