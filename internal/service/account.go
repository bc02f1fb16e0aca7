package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	domainauth "github.com/skoruppa/NuvioTV-sub003/internal/domain/auth"
	apperrors "github.com/skoruppa/NuvioTV-sub003/internal/errors"
	"github.com/skoruppa/NuvioTV-sub003/internal/ports"
)

// AccountServiceOptions groups dependencies for AccountService.
type AccountServiceOptions struct {
	Provider ports.IdentityProvider
	Resolver *EffectiveUserResolver
	Logger   *slog.Logger
}

// AccountService exposes the credential operations of the identity provider.
type AccountService struct {
	provider ports.IdentityProvider
	resolver *EffectiveUserResolver
	logger   *slog.Logger
}

// NewAccountService constructs an AccountService.
func NewAccountService(opts AccountServiceOptions) (*AccountService, error) {
	if opts.Provider == nil {
		return nil, errors.New("Provider is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountService{
		provider: opts.Provider,
		resolver: opts.Resolver,
		logger:   logger.With("component", "account"),
	}, nil
}

// SignIn authenticates with email and password.
func (s *AccountService) SignIn(ctx context.Context, email, password string) (domainauth.Session, error) {
	email, err := validateCredentials(email, password)
	if err != nil {
		return domainauth.Session{}, err
	}
	sess, err := s.provider.SignIn(ctx, email, password)
	if err != nil {
		return domainauth.Session{}, fmt.Errorf("sign in: %w", err)
	}
	s.logger.InfoContext(ctx, "signed in", "user_id", sess.User.ID)
	return sess, nil
}

// SignUp registers a new account and signs it in.
func (s *AccountService) SignUp(ctx context.Context, email, password string) (domainauth.Session, error) {
	email, err := validateCredentials(email, password)
	if err != nil {
		return domainauth.Session{}, err
	}
	sess, err := s.provider.SignUp(ctx, email, password)
	if err != nil {
		return domainauth.Session{}, fmt.Errorf("sign up: %w", err)
	}
	s.logger.InfoContext(ctx, "signed up", "user_id", sess.User.ID)
	return sess, nil
}

// SignOut ends the current session. The effective identity cache is cleared
// even when the provider call fails.
func (s *AccountService) SignOut(ctx context.Context) error {
	s.ClearCache()
	if err := s.provider.SignOut(ctx); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	s.logger.InfoContext(ctx, "signed out")
	return nil
}

// ClearCache forgets the memoised effective user id.
func (s *AccountService) ClearCache() {
	if s.resolver != nil {
		s.resolver.ClearCache()
	}
}

func validateCredentials(email, password string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", apperrors.Validation("email is required")
	}
	if password == "" {
		return "", apperrors.Validation("password is required")
	}
	return email, nil
}
