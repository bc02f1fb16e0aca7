package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	domainauth "github.com/skoruppa/NuvioTV-sub003/internal/domain/auth"
	"github.com/skoruppa/NuvioTV-sub003/internal/domain/pairing"
	apperrors "github.com/skoruppa/NuvioTV-sub003/internal/errors"
	"github.com/skoruppa/NuvioTV-sub003/internal/mocks"
	mockauth "github.com/skoruppa/NuvioTV-sub003/internal/mocks/auth"
	"github.com/skoruppa/NuvioTV-sub003/internal/ports"
)

type pairingFixture struct {
	svc       *PairingService
	rpc       *mocks.MockRPCClient
	functions *mockauth.StubFunctionInvoker
	provider  *mockauth.FakeIdentityProvider
}

func newPairingFixture(t *testing.T) *pairingFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &pairingFixture{
		rpc:       mocks.NewMockRPCClient(ctrl),
		functions: &mockauth.StubFunctionInvoker{},
		provider:  mockauth.NewFakeIdentityProvider(),
	}
	svc, err := NewPairingService(PairingServiceOptions{
		RPC:       f.rpc,
		Functions: f.functions,
		Provider:  f.provider,
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func TestPairingService_NewDeviceNonce(t *testing.T) {
	f := newPairingFixture(t)
	a, b := f.svc.NewDeviceNonce(), f.svc.NewDeviceNonce()
	assert.NotEqual(t, a, b)
	_, err := uuid.Parse(a)
	require.NoError(t, err)
}

func TestPairingService_Start(t *testing.T) {
	f := newPairingFixture(t)
	f.rpc.EXPECT().
		Call(gomock.Any(), "start_tv_login_session", map[string]any{
			"p_device_nonce":      "nonce-1",
			"p_redirect_base_url": "https://app.example.com",
			"p_device_name":       "Living room",
		}).
		Return(json.RawMessage(`[{"code":"ABC123","web_url":"https://app.example.com/tv?code=ABC123","expires_at":"2026-10-15T12:05:00.123456+00:00","poll_interval_seconds":5}]`), nil)

	sess, err := f.svc.Start(context.Background(), pairing.StartInput{
		DeviceNonce:     "nonce-1",
		DeviceName:      "Living room",
		RedirectBaseURL: "https://app.example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "ABC123", sess.Code)
	assert.Equal(t, "https://app.example.com/tv?code=ABC123", sess.WebURL)
	assert.Equal(t, 5*time.Second, sess.PollInterval)
	assert.Equal(t, "nonce-1", sess.DeviceNonce)
	assert.True(t, sess.ExpiresAt.Equal(time.Date(2026, 10, 15, 12, 5, 0, 123456000, time.UTC)))
}

func TestPairingService_StartDefaultsPollInterval(t *testing.T) {
	f := newPairingFixture(t)
	f.rpc.EXPECT().
		Call(gomock.Any(), "start_tv_login_session", map[string]any{
			"p_device_nonce":      "nonce-1",
			"p_redirect_base_url": "https://app.example.com",
		}).
		Return(json.RawMessage(`{"code":"XYZ","web_url":"u","expires_at":"2026-10-15T12:05:00Z"}`), nil)

	sess, err := f.svc.Start(context.Background(), pairing.StartInput{
		DeviceNonce:     "nonce-1",
		RedirectBaseURL: "https://app.example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, pairing.DefaultPollInterval, sess.PollInterval)
}

func TestPairingService_StartEmptyResponse(t *testing.T) {
	f := newPairingFixture(t)
	f.rpc.EXPECT().Call(gomock.Any(), "start_tv_login_session", gomock.Any()).Return(json.RawMessage(`[]`), nil)

	_, err := f.svc.Start(context.Background(), pairing.StartInput{DeviceNonce: "n"})
	require.Error(t, err)
	assert.True(t, apperrors.IsEmptyResponse(err))
}

func TestPairingService_StartRequiresNonce(t *testing.T) {
	f := newPairingFixture(t)
	_, err := f.svc.Start(context.Background(), pairing.StartInput{DeviceNonce: "  "})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))
}

func TestPairingService_StartLegacySignatureRetry(t *testing.T) {
	f := newPairingFixture(t)
	legacy := errors.New("Could not find the function public.start_tv_login_session(p_device_name, p_device_nonce, p_redirect_base_url) in the schema cache")

	gomock.InOrder(
		f.rpc.EXPECT().
			Call(gomock.Any(), "start_tv_login_session", map[string]any{
				"p_device_nonce":      "n",
				"p_redirect_base_url": "https://app.example.com",
				"p_device_name":       "TV",
			}).
			Return(nil, legacy),
		f.rpc.EXPECT().
			Call(gomock.Any(), "start_tv_login_session", map[string]any{
				"p_device_nonce":      "n",
				"p_redirect_base_url": "https://app.example.com",
			}).
			Return(json.RawMessage(`[{"code":"C1","web_url":"w","expires_at":"2026-10-15T12:05:00Z","poll_interval_seconds":3}]`), nil),
	)

	sess, err := f.svc.Start(context.Background(), pairing.StartInput{
		DeviceNonce:     "n",
		DeviceName:      "TV",
		RedirectBaseURL: "https://app.example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "C1", sess.Code)
}

func TestPairingService_StartLegacyRetryOnlyOnce(t *testing.T) {
	f := newPairingFixture(t)
	legacy := errors.New("function not found: start_tv_login_session with p_device_name")

	f.rpc.EXPECT().Call(gomock.Any(), "start_tv_login_session", gomock.Any()).Return(nil, legacy).Times(2)

	_, err := f.svc.Start(context.Background(), pairing.StartInput{DeviceNonce: "n", DeviceName: "TV"})
	require.Error(t, err)
}

func TestPairingService_StartNoRetryWithoutDeviceName(t *testing.T) {
	f := newPairingFixture(t)
	legacy := errors.New("could not find the function start_tv_login_session(p_device_name)")

	f.rpc.EXPECT().Call(gomock.Any(), "start_tv_login_session", gomock.Any()).Return(nil, legacy).Times(1)

	_, err := f.svc.Start(context.Background(), pairing.StartInput{DeviceNonce: "n"})
	require.Error(t, err)
}

func TestPairingService_StartOtherFailureIsTerminal(t *testing.T) {
	f := newPairingFixture(t)
	f.rpc.EXPECT().
		Call(gomock.Any(), "start_tv_login_session", gomock.Any()).
		Return(nil, errors.New("permission denied")).
		Times(1)

	_, err := f.svc.Start(context.Background(), pairing.StartInput{DeviceNonce: "n", DeviceName: "TV"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
}

func TestIsMissingParameter(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "postgrest wording", err: errors.New("Could not find the function public.start_tv_login_session(p_device_name) in the schema cache"), want: true},
		{name: "short wording", err: errors.New("FUNCTION NOT FOUND start_tv_login_session P_DEVICE_NAME"), want: true},
		{name: "missing param name", err: errors.New("could not find the function start_tv_login_session"), want: false},
		{name: "other function", err: errors.New("could not find the function poll_tv_login_session(p_device_name)"), want: false},
		{
			name: "legacy code with details",
			err:  &apperrors.AppError{Code: apperrors.ErrCodeLegacySignature, Message: "start_tv_login_session failed: p_device_name"},
			want: true,
		},
		{name: "unrelated", err: errors.New("timeout"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isMissingParameter(tt.err, "start_tv_login_session", "p_device_name"))
		})
	}
}

func TestPairingService_Poll(t *testing.T) {
	f := newPairingFixture(t)
	f.rpc.EXPECT().
		Call(gomock.Any(), "poll_tv_login_session", map[string]any{
			"p_code":         "ABC",
			"p_device_nonce": "n",
		}).
		Return(json.RawMessage(`[{"status":"approved","expires_at":"2026-10-15T12:05:00Z","poll_interval_seconds":2}]`), nil)

	res, err := f.svc.Poll(context.Background(), "ABC", "n")
	require.NoError(t, err)
	assert.Equal(t, pairing.StatusApproved, res.Status)
	assert.Equal(t, "approved", res.RawStatus)
	assert.Equal(t, 2*time.Second, res.PollInterval)
	assert.False(t, res.ExpiresAt.IsZero())
}

func TestPairingService_PollOptionalFields(t *testing.T) {
	f := newPairingFixture(t)
	f.rpc.EXPECT().
		Call(gomock.Any(), "poll_tv_login_session", gomock.Any()).
		Return(json.RawMessage(`[{"status":"pending"}]`), nil)

	res, err := f.svc.Poll(context.Background(), "ABC", "n")
	require.NoError(t, err)
	assert.Equal(t, pairing.StatusPending, res.Status)
	assert.Zero(t, res.PollInterval)
	assert.True(t, res.ExpiresAt.IsZero())
}

func TestPairingService_PollEmpty(t *testing.T) {
	f := newPairingFixture(t)
	f.rpc.EXPECT().Call(gomock.Any(), "poll_tv_login_session", gomock.Any()).Return(json.RawMessage(`[]`), nil)

	_, err := f.svc.Poll(context.Background(), "ABC", "n")
	require.Error(t, err)
	assert.True(t, apperrors.IsEmptyResponse(err))
}

func TestPairingService_ExchangeRequiresBootstrapSession(t *testing.T) {
	f := newPairingFixture(t)

	_, err := f.svc.Exchange(context.Background(), "ABC", "n")
	require.Error(t, err)
	assert.True(t, apperrors.IsPrecondition(err))
	assert.Empty(t, f.functions.Calls())
}

func TestPairingService_ExchangeHTTPFailure(t *testing.T) {
	f := newPairingFixture(t)
	f.provider.SetSession(domainauth.Session{User: domainauth.User{ID: "anon", IsAnonymous: true}, AccessToken: "boot"})
	f.functions.Response = ports.FunctionResponse{StatusCode: 410, Body: []byte("expired")}

	_, err := f.svc.Exchange(context.Background(), "ABC", "n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "410")
	assert.Contains(t, err.Error(), "expired")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeHTTPStatus))
	assert.Empty(t, f.provider.Imported())
}

func TestPairingService_ExchangeImportsTokens(t *testing.T) {
	f := newPairingFixture(t)
	f.provider.SetSession(domainauth.Session{User: domainauth.User{ID: "anon", IsAnonymous: true}, AccessToken: "boot"})
	f.functions.Response = ports.FunctionResponse{
		StatusCode: 200,
		Body:       []byte(`{"access_token":"acc","refresh_token":"ref","token_type":"bearer","expires_in":3600}`),
	}

	sess, err := f.svc.Exchange(context.Background(), "ABC", "n")
	require.NoError(t, err)
	assert.Equal(t, "imported-user", sess.User.ID)

	calls := f.functions.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, DefaultExchangeFunction, calls[0].Name)
	assert.Equal(t, "boot", calls[0].Bearer)
	assert.Equal(t, exchangeRequest{Code: "ABC", DeviceNonce: "n"}, calls[0].Payload)

	imported := f.provider.Imported()
	require.Len(t, imported, 1)
	assert.Equal(t, "acc", imported[0].AccessToken)
	assert.Equal(t, "ref", imported[0].RefreshToken)
	assert.Equal(t, 3600, imported[0].ExpiresIn)
}

func TestPairingService_ExchangeMissingTokens(t *testing.T) {
	f := newPairingFixture(t)
	f.provider.SetSession(domainauth.Session{AccessToken: "boot"})
	f.functions.Response = ports.FunctionResponse{StatusCode: 200, Body: []byte(`{"access_token":"acc"}`)}

	_, err := f.svc.Exchange(context.Background(), "ABC", "n")
	require.Error(t, err)
	assert.Empty(t, f.provider.Imported())
}

func TestPairingService_ExchangeTransportError(t *testing.T) {
	f := newPairingFixture(t)
	f.provider.SetSession(domainauth.Session{AccessToken: "boot"})
	f.functions.Err = errors.New("dial tcp: refused")

	_, err := f.svc.Exchange(context.Background(), "ABC", "n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refused")
}
