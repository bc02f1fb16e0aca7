package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/skoruppa/NuvioTV-sub003/internal/domain/auth"
	mockauth "github.com/skoruppa/NuvioTV-sub003/internal/mocks/auth"
)

func TestEnsureBootstrapSession_NoopWithAccessToken(t *testing.T) {
	provider := mockauth.NewFakeIdentityProvider()
	provider.SetSession(domainauth.Session{User: domainauth.User{ID: "u1"}, AccessToken: "tok"})
	svc, err := NewBootstrapService(BootstrapServiceOptions{Provider: provider})
	require.NoError(t, err)

	require.NoError(t, svc.EnsureBootstrapSession(context.Background()))
	assert.Equal(t, 0, provider.AnonymousCalls())
}

func TestEnsureBootstrapSession_CreatesAnonymous(t *testing.T) {
	provider := mockauth.NewFakeIdentityProvider()
	svc, err := NewBootstrapService(BootstrapServiceOptions{Provider: provider})
	require.NoError(t, err)

	require.NoError(t, svc.EnsureBootstrapSession(context.Background()))
	assert.Equal(t, 1, provider.AnonymousCalls())

	sess, ok := provider.CurrentSession(context.Background())
	require.True(t, ok)
	assert.True(t, sess.User.IsAnonymous)
	assert.False(t, sess.User.HasEmail())

	// A second call finds the bootstrap token.
	require.NoError(t, svc.EnsureBootstrapSession(context.Background()))
	assert.Equal(t, 1, provider.AnonymousCalls())
}

func TestEnsureBootstrapSession_BlankTokenCreatesAnonymous(t *testing.T) {
	provider := mockauth.NewFakeIdentityProvider()
	provider.SetSession(domainauth.Session{User: domainauth.User{ID: "u1"}, AccessToken: " "})
	svc, err := NewBootstrapService(BootstrapServiceOptions{Provider: provider})
	require.NoError(t, err)

	require.NoError(t, svc.EnsureBootstrapSession(context.Background()))
	assert.Equal(t, 1, provider.AnonymousCalls())
}

func TestEnsureBootstrapSession_Failure(t *testing.T) {
	provider := mockauth.NewFakeIdentityProvider()
	provider.AnonymousFunc = func(context.Context) (domainauth.Session, error) {
		return domainauth.Session{}, errors.New("anonymous sign-ins are disabled")
	}
	svc, err := NewBootstrapService(BootstrapServiceOptions{Provider: provider})
	require.NoError(t, err)

	err = svc.EnsureBootstrapSession(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disabled")
}
