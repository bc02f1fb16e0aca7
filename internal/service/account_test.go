package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	apperrors "github.com/skoruppa/NuvioTV-sub003/internal/errors"
	mockauth "github.com/skoruppa/NuvioTV-sub003/internal/mocks/auth"
)

func TestAccountService_SignInAndUp(t *testing.T) {
	provider := mockauth.NewFakeIdentityProvider()
	svc, err := NewAccountService(AccountServiceOptions{Provider: provider})
	require.NoError(t, err)

	sess, err := svc.SignIn(context.Background(), " a@x.com ", "pw")
	require.NoError(t, err)
	assert.Equal(t, "user-a@x.com", sess.User.ID)

	sess, err = svc.SignUp(context.Background(), "b@x.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "b@x.com", sess.User.Email)
}

func TestAccountService_Validation(t *testing.T) {
	svc, err := NewAccountService(AccountServiceOptions{Provider: mockauth.NewFakeIdentityProvider()})
	require.NoError(t, err)

	_, err = svc.SignIn(context.Background(), "", "pw")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))
	_, err = svc.SignUp(context.Background(), "a@x.com", "")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))
}

func TestAccountService_SignOutClearsCache(t *testing.T) {
	r, rpc, provider := newResolverFixture(t)
	signedIn(provider, "u1", "r1")
	rpc.EXPECT().Call(gomock.Any(), DefaultOwnerProcedure, gomock.Any()).Return(json.RawMessage(`"owner-1"`), nil)

	_, err := r.EffectiveUserID(context.Background(), false)
	require.NoError(t, err)

	svc, err := NewAccountService(AccountServiceOptions{Provider: provider, Resolver: r})
	require.NoError(t, err)
	require.NoError(t, svc.SignOut(context.Background()))

	src, eff := r.cache.Snapshot()
	assert.Empty(t, src)
	assert.Empty(t, eff)
	_, ok := provider.CurrentSession(context.Background())
	assert.False(t, ok)
}

func TestAccountService_SignOutFailureStillClearsCache(t *testing.T) {
	r, _, provider := newResolverFixture(t)
	r.cache.Store("u1", "owner-1")
	provider.SignOutErr = errors.New("network down")

	svc, err := NewAccountService(AccountServiceOptions{Provider: provider, Resolver: r})
	require.NoError(t, err)

	err = svc.SignOut(context.Background())
	require.Error(t, err)
	src, _ := r.cache.Snapshot()
	assert.Empty(t, src)
}
