// Package backend talks to the hosted data backend: PostgREST-style remote
// procedures under /rest/v1/rpc and edge functions under /functions/v1.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	apperrors "github.com/skoruppa/NuvioTV-sub003/internal/errors"
	"github.com/skoruppa/NuvioTV-sub003/internal/ports"
)

const (
	rpcPath       = "/rest/v1/rpc/"
	functionsPath = "/functions/v1/"

	defaultTimeout  = 15 * time.Second
	maxResponseBody = 1 << 20
)

// Config configures the backend clients.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// TokenSource supplies the bearer for RPC calls. Usually the identity provider.
	TokenSource oauth2.TokenSource
	// Transport overrides http.DefaultTransport.
	Transport http.RoundTripper
}

func (c Config) validate() (*url.URL, error) {
	base := strings.TrimSpace(c.BaseURL)
	if base == "" {
		return nil, errors.New("backend base URL is required")
	}
	u, err := url.Parse(strings.TrimSuffix(base, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend base URL must be http or https, got %q", u.Scheme)
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, errors.New("backend API key is required")
	}
	return u, nil
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return defaultTimeout
	}
	return c.Timeout
}

func (c Config) baseTransport() http.RoundTripper {
	base := c.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	return &apiKeyTransport{apiKey: c.APIKey, base: base}
}

// apiKeyTransport stamps the project API key on every request.
type apiKeyTransport struct {
	apiKey string
	base   http.RoundTripper
}

func (t *apiKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("apikey", t.apiKey)
	return t.base.RoundTrip(clone)
}

// RPCClient calls remote procedures with the current session's bearer token.
type RPCClient struct {
	baseURL string
	client  *http.Client
}

// NewRPCClient builds an RPCClient. Without a TokenSource requests carry only the API key.
func NewRPCClient(cfg Config) (*RPCClient, error) {
	u, err := cfg.validate()
	if err != nil {
		return nil, err
	}

	transport := cfg.baseTransport()
	if cfg.TokenSource != nil {
		transport = &oauth2.Transport{Source: cfg.TokenSource, Base: transport}
	}

	return &RPCClient{
		baseURL: u.String(),
		client:  &http.Client{Timeout: cfg.timeout(), Transport: transport},
	}, nil
}

// Call POSTs params as a JSON object to the named procedure and returns the raw result.
// Non-2xx responses are mapped with errors.FromRemote.
func (c *RPCClient) Call(ctx context.Context, fn string, params any) (json.RawMessage, error) {
	fn = strings.TrimSpace(fn)
	if fn == "" {
		return nil, apperrors.Validation("procedure name is required")
	}
	if params == nil {
		params = map[string]any{}
	}
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode %s params: %w", fn, err)
	}

	op := "rpc " + fn
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+rpcPath+url.PathEscape(fn), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	status, respBody, err := do(c.client, req)
	if err != nil {
		return nil, apperrors.MapTransportError(op, err)
	}
	if status < 200 || status >= 300 {
		return nil, apperrors.FromRemote(op, status, respBody)
	}
	if len(bytes.TrimSpace(respBody)) == 0 {
		return json.RawMessage("null"), nil
	}
	return json.RawMessage(respBody), nil
}

// FunctionClient invokes backend edge functions with an explicit bearer.
type FunctionClient struct {
	baseURL string
	client  *http.Client
}

// NewFunctionClient builds a FunctionClient.
func NewFunctionClient(cfg Config) (*FunctionClient, error) {
	u, err := cfg.validate()
	if err != nil {
		return nil, err
	}
	return &FunctionClient{
		baseURL: u.String(),
		client:  &http.Client{Timeout: cfg.timeout(), Transport: cfg.baseTransport()},
	}, nil
}

// Invoke POSTs payload as JSON to the named function. Any HTTP status is returned
// as a response; only transport failures are errors.
func (c *FunctionClient) Invoke(ctx context.Context, name, bearer string, payload any) (ports.FunctionResponse, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return ports.FunctionResponse{}, apperrors.Validation("function name is required")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return ports.FunctionResponse{}, fmt.Errorf("encode %s payload: %w", name, err)
	}

	op := "function " + name
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+functionsPath+url.PathEscape(name), bytes.NewReader(body))
	if err != nil {
		return ports.FunctionResponse{}, fmt.Errorf("create %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer = strings.TrimSpace(bearer); bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	status, respBody, err := do(c.client, req)
	if err != nil {
		return ports.FunctionResponse{}, apperrors.MapTransportError(op, err)
	}
	return ports.FunctionResponse{StatusCode: status, Body: respBody}, nil
}

func do(client *http.Client, req *http.Request) (int, []byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}
