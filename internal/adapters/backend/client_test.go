package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	apperrors "github.com/skoruppa/NuvioTV-sub003/internal/errors"
)

type capturedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   string
}

func newBackend(t *testing.T, status int, body string) (*httptest.Server, <-chan capturedRequest) {
	t.Helper()
	reqs := make(chan capturedRequest, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		reqs <- capturedRequest{Method: r.Method, Path: r.URL.Path, Header: r.Header.Clone(), Body: string(b)}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, reqs
}

func TestConfigValidation(t *testing.T) {
	_, err := NewRPCClient(Config{APIKey: "k"})
	require.Error(t, err)
	_, err = NewRPCClient(Config{BaseURL: "ftp://example.com", APIKey: "k"})
	require.Error(t, err)
	_, err = NewFunctionClient(Config{BaseURL: "https://example.com"})
	require.Error(t, err)
}

func TestRPCClient_CallSendsBearerAndAPIKey(t *testing.T) {
	srv, reqs := newBackend(t, http.StatusOK, `"owner-1"`)
	client, err := NewRPCClient(Config{
		BaseURL:     srv.URL + "/",
		APIKey:      "anon-key",
		TokenSource: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "user-token"}),
	})
	require.NoError(t, err)

	raw, err := client.Call(context.Background(), "get_sync_owner", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `"owner-1"`, string(raw))

	req := <-reqs
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/rest/v1/rpc/get_sync_owner", req.Path)
	assert.Equal(t, "anon-key", req.Header.Get("apikey"))
	assert.Equal(t, "Bearer user-token", req.Header.Get("Authorization"))
	assert.JSONEq(t, `{}`, req.Body)
}

func TestRPCClient_CallEncodesParams(t *testing.T) {
	srv, reqs := newBackend(t, http.StatusOK, `[{"status":"pending"}]`)
	client, err := NewRPCClient(Config{BaseURL: srv.URL, APIKey: "k"})
	require.NoError(t, err)

	_, err = client.Call(context.Background(), "poll_tv_login_session", map[string]any{"p_code": "ABC", "p_device_nonce": "n"})
	require.NoError(t, err)

	req := <-reqs
	assert.Empty(t, req.Header.Get("Authorization"))
	var params map[string]string
	require.NoError(t, json.Unmarshal([]byte(req.Body), &params))
	assert.Equal(t, map[string]string{"p_code": "ABC", "p_device_nonce": "n"}, params)
}

func TestRPCClient_NoContent(t *testing.T) {
	srv, _ := newBackend(t, http.StatusNoContent, "")
	client, err := NewRPCClient(Config{BaseURL: srv.URL, APIKey: "k"})
	require.NoError(t, err)

	raw, err := client.Call(context.Background(), "fn", nil)
	require.NoError(t, err)
	assert.Equal(t, "null", string(raw))
}

func TestRPCClient_MapsRemoteErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode apperrors.ErrorCode
		contains string
	}{
		{
			name:     "expired jwt",
			status:   http.StatusUnauthorized,
			body:     `{"code":"PGRST301","message":"JWT expired","details":null,"hint":null}`,
			wantCode: apperrors.ErrCodeUnauthorized,
			contains: "JWT expired",
		},
		{
			name:     "legacy signature",
			status:   http.StatusNotFound,
			body:     `{"code":"PGRST202","message":"Could not find the function public.start_tv_login_session(p_device_name, p_device_nonce) in the schema cache","details":"Searched for the function","hint":null}`,
			wantCode: apperrors.ErrCodeLegacySignature,
			contains: "p_device_name",
		},
		{
			name:     "plain text",
			status:   http.StatusBadGateway,
			body:     `upstream down`,
			wantCode: apperrors.ErrCodeRemote,
			contains: "upstream down",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newBackend(t, tt.status, tt.body)
			client, err := NewRPCClient(Config{BaseURL: srv.URL, APIKey: "k"})
			require.NoError(t, err)

			_, err = client.Call(context.Background(), "start_tv_login_session", nil)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, apperrors.GetCode(err))
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestRPCClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	client, err := NewRPCClient(Config{BaseURL: srv.URL, APIKey: "k"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = client.Call(ctx, "fn", nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeTimeout))
}

func TestFunctionClient_Invoke(t *testing.T) {
	srv, reqs := newBackend(t, http.StatusOK, `{"access_token":"a","refresh_token":"r"}`)
	client, err := NewFunctionClient(Config{BaseURL: srv.URL, APIKey: "anon-key"})
	require.NoError(t, err)

	resp, err := client.Invoke(context.Background(), "tv-logins-exchange", "boot-token", map[string]string{
		"code":         "ABC",
		"device_nonce": "n",
	})
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.JSONEq(t, `{"access_token":"a","refresh_token":"r"}`, string(resp.Body))

	req := <-reqs
	assert.Equal(t, "/functions/v1/tv-logins-exchange", req.Path)
	assert.Equal(t, "anon-key", req.Header.Get("apikey"))
	assert.Equal(t, "Bearer boot-token", req.Header.Get("Authorization"))
	assert.JSONEq(t, `{"code":"ABC","device_nonce":"n"}`, req.Body)
}

func TestFunctionClient_NonSuccessIsResponse(t *testing.T) {
	srv, _ := newBackend(t, http.StatusGone, "expired")
	client, err := NewFunctionClient(Config{BaseURL: srv.URL, APIKey: "k"})
	require.NoError(t, err)

	resp, err := client.Invoke(context.Background(), "tv-logins-exchange", "b", struct{}{})
	require.NoError(t, err)
	assert.False(t, resp.OK())
	assert.Equal(t, http.StatusGone, resp.StatusCode)
	assert.Equal(t, "expired", string(resp.Body))
}
