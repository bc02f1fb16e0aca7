package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/skoruppa/NuvioTV-sub003/internal/domain/auth"
	"github.com/skoruppa/NuvioTV-sub003/internal/ports"
)

func TestFakeIdentityProvider_SessionLifecycle(t *testing.T) {
	f := NewFakeIdentityProvider()
	ctx := context.Background()

	_, ok := f.CurrentSession(ctx)
	assert.False(t, ok)

	sess, err := f.SignIn(ctx, "a@x.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", sess.User.Email)

	cur, ok := f.CurrentSession(ctx)
	require.True(t, ok)
	assert.Equal(t, sess, cur)

	require.NoError(t, f.SignOut(ctx))
	_, ok = f.CurrentSession(ctx)
	assert.False(t, ok)
	assert.Equal(t, 1, f.SignOutCalls())
}

func TestFakeIdentityProvider_RefreshDefaults(t *testing.T) {
	f := NewFakeIdentityProvider()
	ctx := context.Background()

	_, err := f.RefreshSession(ctx)
	require.ErrorIs(t, err, ErrNoRefreshToken)

	f.SetSession(domainauth.Session{User: domainauth.User{ID: "u1"}, RefreshToken: "r"})
	sess, err := f.RefreshSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u1", sess.User.ID)
	assert.Equal(t, 2, f.RefreshCalls())
}

func TestFakeIdentityProvider_EventsInOrder(t *testing.T) {
	f := NewFakeIdentityProvider()
	f.Emit(domainauth.Initializing())
	f.Emit(domainauth.NotAuthenticated())
	f.Close()

	var got []domainauth.SessionStatus
	for ev := range f.Subscribe(context.Background()) {
		got = append(got, ev.Status)
	}
	assert.Equal(t, []domainauth.SessionStatus{
		domainauth.StatusInitializing,
		domainauth.StatusNotAuthenticated,
	}, got)
}

func TestStubFunctionInvoker_RecordsCalls(t *testing.T) {
	s := &StubFunctionInvoker{Response: ports.FunctionResponse{StatusCode: 200, Body: []byte("{}")}}
	resp, err := s.Invoke(context.Background(), "fn", "tok", map[string]string{"a": "b"})
	require.NoError(t, err)
	assert.True(t, resp.OK())

	calls := s.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "fn", calls[0].Name)
	assert.Equal(t, "tok", calls[0].Bearer)
}
