// Package gotrue implements the identity provider port against a GoTrue-compatible
// auth API (the /auth/v1 surface of the hosted backend).
package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/skoruppa/NuvioTV-sub003/internal/adapters/broadcast"
	domainauth "github.com/skoruppa/NuvioTV-sub003/internal/domain/auth"
	apperrors "github.com/skoruppa/NuvioTV-sub003/internal/errors"
	"github.com/skoruppa/NuvioTV-sub003/internal/ports"
)

const (
	authPath          = "/auth/v1"
	defaultSessionKey = "default"
	defaultTimeout    = 15 * time.Second
	defaultTokenTTL   = time.Hour
	maxResponseBody   = 1 << 20
)

// Config configures Provider.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// Store persists the session across restarts. Optional.
	Store ports.SessionStore
	// SessionKey names the persisted session; defaults to "default".
	SessionKey string
	// Verifier, when set, validates imported tokens locally instead of asking /user.
	Verifier  *TokenVerifier
	Transport http.RoundTripper
	Logger    *slog.Logger
	Now       func() time.Time
}

// Provider is a GoTrue-backed ports.IdentityProvider. It also serves as the
// oauth2.TokenSource for backend calls.
type Provider struct {
	authURL    string
	apiKey     string
	client     *http.Client
	store      ports.SessionStore
	sessionKey string
	verifier   *TokenVerifier
	logger     *slog.Logger
	now        func() time.Time
	hub        *broadcast.Hub

	// emitMu orders session changes with their events; mu guards the session itself.
	emitMu     sync.Mutex
	mu         sync.RWMutex
	session    domainauth.Session
	hasSession bool
}

var (
	_ ports.IdentityProvider = (*Provider)(nil)
	_ oauth2.TokenSource     = (*Provider)(nil)
)

// NewProvider constructs a Provider. Call Start to restore a persisted session.
func NewProvider(cfg Config) (*Provider, error) {
	base := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("gotrue: base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("gotrue: parse base URL: %w", err)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gotrue: API key is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	key := strings.TrimSpace(cfg.SessionKey)
	if key == "" {
		key = defaultSessionKey
	}

	return &Provider{
		authURL:    base + authPath,
		apiKey:     cfg.APIKey,
		client:     &http.Client{Timeout: timeout, Transport: transport},
		store:      cfg.Store,
		sessionKey: key,
		verifier:   cfg.Verifier,
		logger:     logger.With("component", "gotrue"),
		now:        now,
		hub:        broadcast.NewHub(),
	}, nil
}

// Start restores the persisted session and publishes the initial status.
// An access token that has already expired is reported as NotAuthenticated so
// the session state machine refreshes it.
func (p *Provider) Start(ctx context.Context) error {
	if p.store == nil {
		p.publish(domainauth.NotAuthenticated())
		return nil
	}

	sess, err := p.store.Get(ctx, p.sessionKey)
	if err != nil {
		if apperrors.IsNotFound(err) {
			p.publish(domainauth.NotAuthenticated())
			return nil
		}
		p.publish(domainauth.TransientError(err))
		p.publish(domainauth.NotAuthenticated())
		return fmt.Errorf("restore session: %w", err)
	}

	if !sess.HasAccessToken() || !sess.ExpiresAt.After(p.now()) {
		p.logger.InfoContext(ctx, "restored session needs refresh", "user_id", sess.User.ID)
		p.setAndPublish(sess, true, domainauth.NotAuthenticated())
		return nil
	}

	p.logger.InfoContext(ctx, "restored session", "user_id", sess.User.ID)
	p.setAndPublish(sess, true, domainauth.Authenticated(sess.User))
	return nil
}

// Close ends all event subscriptions.
func (p *Provider) Close() {
	p.hub.Close()
}

// Token returns the current access token, or the project API key when signed out.
func (p *Provider) Token() (*oauth2.Token, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.hasSession && p.session.HasAccessToken() {
		return &oauth2.Token{AccessToken: p.session.AccessToken, TokenType: "Bearer"}, nil
	}
	return &oauth2.Token{AccessToken: p.apiKey, TokenType: "Bearer"}, nil
}

func (p *Provider) SignUp(ctx context.Context, email, password string) (domainauth.Session, error) {
	tr, err := p.tokenRequest(ctx, "sign up", "/signup", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return domainauth.Session{}, err
	}
	if tr.AccessToken == "" {
		return domainauth.Session{}, apperrors.Precondition("sign up: email confirmation required before signing in")
	}
	return p.install(ctx, p.sessionFromTokens(tr)), nil
}

func (p *Provider) SignIn(ctx context.Context, email, password string) (domainauth.Session, error) {
	tr, err := p.tokenRequest(ctx, "sign in", "/token?grant_type=password", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return domainauth.Session{}, err
	}
	return p.install(ctx, p.sessionFromTokens(tr)), nil
}

func (p *Provider) SignInAnonymously(ctx context.Context) (domainauth.Session, error) {
	tr, err := p.tokenRequest(ctx, "anonymous sign in", "/signup", "", map[string]any{"data": map[string]any{}})
	if err != nil {
		return domainauth.Session{}, err
	}
	if tr.AccessToken == "" {
		return domainauth.Session{}, apperrors.Wrap(errors.New("no access token in response"), apperrors.ErrCodeRemote, "anonymous sign in")
	}
	return p.install(ctx, p.sessionFromTokens(tr)), nil
}

// SignOut revokes the session remotely and always clears it locally.
func (p *Provider) SignOut(ctx context.Context) error {
	sess, ok := p.CurrentSession(ctx)

	var remoteErr error
	if ok && sess.HasAccessToken() {
		_, remoteErr = p.send(ctx, "sign out", http.MethodPost, "/logout", sess.AccessToken, nil)
		if apperrors.IsUnauthorized(remoteErr) || apperrors.IsNotFound(remoteErr) {
			// The token is already unusable server-side.
			remoteErr = nil
		}
	}

	p.clear(ctx)
	return remoteErr
}

// RefreshSession exchanges the refresh token. A rejected refresh token clears
// the session and reports NotAuthenticated; transport failures keep it.
func (p *Provider) RefreshSession(ctx context.Context) (domainauth.Session, error) {
	sess, ok := p.CurrentSession(ctx)
	if !ok || !sess.HasRefreshToken() {
		return domainauth.Session{}, apperrors.Precondition("refresh session: no refresh token")
	}

	tr, err := p.tokenRequest(ctx, "refresh session", "/token?grant_type=refresh_token", "", map[string]string{
		"refresh_token": sess.RefreshToken,
	})
	if err != nil {
		if isDefinitive(err) {
			p.logger.InfoContext(ctx, "refresh token rejected, clearing session", "user_id", sess.User.ID)
			p.clear(ctx)
		} else {
			p.publish(domainauth.TransientError(err))
		}
		return domainauth.Session{}, err
	}

	next := p.sessionFromTokens(tr)
	if next.User.ID == "" {
		next.User = sess.User
	}
	return p.install(ctx, next), nil
}

func (p *Provider) CurrentSession(_ context.Context) (domainauth.Session, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.session, p.hasSession
}

// ImportSession installs tokens minted by another flow. The principal comes
// from the verified token claims when a verifier is configured, otherwise from /user.
func (p *Provider) ImportSession(ctx context.Context, tokens domainauth.TokenPair) (domainauth.Session, error) {
	if strings.TrimSpace(tokens.AccessToken) == "" || strings.TrimSpace(tokens.RefreshToken) == "" {
		return domainauth.Session{}, apperrors.Validation("import session: access and refresh tokens are required")
	}

	var (
		user      domainauth.User
		expiresAt time.Time
		err       error
	)
	if p.verifier != nil {
		user, expiresAt, err = p.verifier.Verify(ctx, tokens.AccessToken)
		if err != nil {
			return domainauth.Session{}, apperrors.Wrap(err, apperrors.ErrCodeUnauthorized, "import session")
		}
	} else {
		user, err = p.fetchUser(ctx, tokens.AccessToken)
		if err != nil {
			return domainauth.Session{}, fmt.Errorf("import session: %w", err)
		}
	}

	if tokens.ExpiresIn > 0 {
		expiresAt = p.now().Add(time.Duration(tokens.ExpiresIn) * time.Second)
	} else if expiresAt.IsZero() {
		expiresAt = p.now().Add(defaultTokenTTL)
	}

	return p.install(ctx, domainauth.Session{
		User:         user,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		TokenType:    tokens.TokenType,
		ExpiresAt:    expiresAt,
	}), nil
}

func (p *Provider) Subscribe(ctx context.Context) <-chan domainauth.SessionEvent {
	return p.hub.Subscribe(ctx)
}

func (p *Provider) install(ctx context.Context, sess domainauth.Session) domainauth.Session {
	p.setAndPublish(sess, true, domainauth.Authenticated(sess.User))
	p.persist(ctx, sess)
	return sess
}

func (p *Provider) clear(ctx context.Context) {
	p.setAndPublish(domainauth.Session{}, false, domainauth.NotAuthenticated())
	if p.store == nil {
		return
	}
	if err := p.store.Delete(ctx, p.sessionKey); err != nil {
		p.logger.WarnContext(ctx, "failed to delete persisted session", "error", err)
	}
}

func (p *Provider) persist(ctx context.Context, sess domainauth.Session) {
	if p.store == nil {
		return
	}
	if err := p.store.Save(ctx, p.sessionKey, sess); err != nil {
		p.logger.WarnContext(ctx, "failed to persist session", "error", err)
	}
}

func (p *Provider) setAndPublish(sess domainauth.Session, has bool, ev domainauth.SessionEvent) {
	p.emitMu.Lock()
	defer p.emitMu.Unlock()

	p.mu.Lock()
	p.session = sess
	p.hasSession = has
	p.mu.Unlock()

	p.hub.Publish(ev)
}

func (p *Provider) publish(ev domainauth.SessionEvent) {
	p.emitMu.Lock()
	defer p.emitMu.Unlock()
	p.hub.Publish(ev)
}

type userResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	IsAnonymous bool   `json:"is_anonymous"`
}

func (u userResponse) toDomain() domainauth.User {
	return domainauth.User{ID: u.ID, Email: u.Email, IsAnonymous: u.IsAnonymous}
}

type tokenResponse struct {
	AccessToken  string        `json:"access_token"`
	TokenType    string        `json:"token_type"`
	ExpiresIn    int           `json:"expires_in"`
	ExpiresAt    int64         `json:"expires_at"`
	RefreshToken string        `json:"refresh_token"`
	User         *userResponse `json:"user"`
}

func (p *Provider) sessionFromTokens(tr tokenResponse) domainauth.Session {
	sess := domainauth.Session{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    tr.TokenType,
	}
	if tr.User != nil {
		sess.User = tr.User.toDomain()
	}
	switch {
	case tr.ExpiresAt > 0:
		sess.ExpiresAt = time.Unix(tr.ExpiresAt, 0)
	case tr.ExpiresIn > 0:
		sess.ExpiresAt = p.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	default:
		sess.ExpiresAt = p.now().Add(defaultTokenTTL)
	}
	return sess
}

func (p *Provider) tokenRequest(ctx context.Context, op, path, bearer string, body any) (tokenResponse, error) {
	raw, err := p.send(ctx, op, http.MethodPost, path, bearer, body)
	if err != nil {
		return tokenResponse{}, err
	}
	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return tokenResponse{}, apperrors.Wrap(err, apperrors.ErrCodeRemote, op+": decode response")
	}
	if tr.User == nil && tr.AccessToken == "" {
		// Sign-up with confirmation pending returns the bare user.
		var u userResponse
		if err := json.Unmarshal(raw, &u); err == nil && u.ID != "" {
			tr.User = &u
		}
	}
	return tr, nil
}

func (p *Provider) fetchUser(ctx context.Context, accessToken string) (domainauth.User, error) {
	raw, err := p.send(ctx, "get user", http.MethodGet, "/user", accessToken, nil)
	if err != nil {
		return domainauth.User{}, err
	}
	var u userResponse
	if err := json.Unmarshal(raw, &u); err != nil {
		return domainauth.User{}, apperrors.Wrap(err, apperrors.ErrCodeRemote, "get user: decode response")
	}
	if u.ID == "" {
		return domainauth.User{}, apperrors.EmptyResponse("get user")
	}
	return u.toDomain(), nil
}

func (p *Provider) send(ctx context.Context, op, method, path, bearer string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.authURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("apikey", p.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer == "" {
		bearer = p.apiKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, apperrors.MapTransportError(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, apperrors.MapTransportError(op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperrors.FromRemote(op, resp.StatusCode, raw)
	}
	return raw, nil
}

// isDefinitive reports whether the server rejected the credential itself.
func isDefinitive(err error) bool {
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeUnauthorized, apperrors.ErrCodeValidation, apperrors.ErrCodeNotFound:
		return true
	default:
		return false
	}
}
