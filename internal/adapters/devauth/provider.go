// Package devauth provides an in-memory identity provider for local development
// and for running the session agent without a hosted backend.
package devauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/skoruppa/NuvioTV-sub003/internal/adapters/broadcast"
	domainauth "github.com/skoruppa/NuvioTV-sub003/internal/domain/auth"
	apperrors "github.com/skoruppa/NuvioTV-sub003/internal/errors"
)

const defaultTokenTTL = time.Hour

// Config controls the dev identity provider.
// Email seeds one account; an empty Password accepts any password for it.
type Config struct {
	UserID   string
	Email    string
	Password string
	TokenTTL time.Duration // default 1h when zero
	Now      func() time.Time
}

type account struct {
	user     domainauth.User
	password string
}

// Provider implements ports.IdentityProvider entirely in memory.
// Tokens are random strings that are only meaningful to the Provider that issued them.
type Provider struct {
	ttl time.Duration
	now func() time.Time
	hub *broadcast.Hub

	emitMu sync.Mutex

	mu       sync.Mutex
	accounts map[string]account // by lowercase email
	access   map[string]string  // access token -> user id
	refresh  map[string]string  // refresh token -> user id
	users    map[string]domainauth.User
	session  domainauth.Session
	has      bool
}

// NewProvider constructs a dev identity provider from Config.
// The stream starts as not authenticated.
func NewProvider(cfg Config) (*Provider, error) {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	p := &Provider{
		ttl:      ttl,
		now:      now,
		hub:      broadcast.NewHub(),
		accounts: make(map[string]account),
		access:   make(map[string]string),
		refresh:  make(map[string]string),
		users:    make(map[string]domainauth.User),
	}
	if email := normalizeEmail(cfg.Email); email != "" {
		id := cfg.UserID
		if id == "" {
			id = uuid.NewString()
		}
		u := domainauth.User{ID: id, Email: email}
		p.accounts[email] = account{user: u, password: cfg.Password}
		p.users[id] = u
	} else if cfg.UserID != "" {
		return nil, errors.New("dev auth: Email is required when UserID is set")
	}
	p.hub.Publish(domainauth.NotAuthenticated())
	return p, nil
}

// Close ends every subscription.
func (p *Provider) Close() {
	p.hub.Close()
}

// Token implements oauth2.TokenSource with the current access token.
func (p *Provider) Token() (*oauth2.Token, error) {
	sess, ok := p.CurrentSession(context.Background())
	if !ok || !sess.HasAccessToken() {
		return nil, apperrors.Precondition("no signed-in session")
	}
	return &oauth2.Token{AccessToken: sess.AccessToken, TokenType: "Bearer", Expiry: sess.ExpiresAt}, nil
}

// SignUp creates an account and signs it in.
func (p *Provider) SignUp(_ context.Context, email, password string) (domainauth.Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return domainauth.Session{}, apperrors.Validation("email and password are required")
	}
	p.mu.Lock()
	if _, exists := p.accounts[email]; exists {
		p.mu.Unlock()
		return domainauth.Session{}, &apperrors.AppError{
			Code:       apperrors.ErrCodeValidation,
			Message:    "user already registered",
			RemoteCode: "user_already_exists",
		}
	}
	u := domainauth.User{ID: uuid.NewString(), Email: email}
	p.accounts[email] = account{user: u, password: password}
	p.users[u.ID] = u
	p.mu.Unlock()
	return p.signInAs(u)
}

// SignIn verifies the password against a known account.
func (p *Provider) SignIn(_ context.Context, email, password string) (domainauth.Session, error) {
	email = normalizeEmail(email)
	p.mu.Lock()
	acct, ok := p.accounts[email]
	p.mu.Unlock()
	if !ok || (acct.password != "" && acct.password != password) {
		return domainauth.Session{}, &apperrors.AppError{
			Code:       apperrors.ErrCodeValidation,
			Message:    "invalid login credentials",
			RemoteCode: "invalid_credentials",
		}
	}
	return p.signInAs(acct.user)
}

// SignInAnonymously creates a fresh anonymous principal.
func (p *Provider) SignInAnonymously(_ context.Context) (domainauth.Session, error) {
	u := domainauth.User{ID: uuid.NewString(), IsAnonymous: true}
	p.mu.Lock()
	p.users[u.ID] = u
	p.mu.Unlock()
	return p.signInAs(u)
}

// SignOut revokes the current tokens and publishes not authenticated.
func (p *Provider) SignOut(_ context.Context) error {
	p.emitMu.Lock()
	defer p.emitMu.Unlock()
	p.mu.Lock()
	if p.has {
		delete(p.access, p.session.AccessToken)
		delete(p.refresh, p.session.RefreshToken)
	}
	p.session, p.has = domainauth.Session{}, false
	p.mu.Unlock()
	p.hub.Publish(domainauth.NotAuthenticated())
	return nil
}

// RefreshSession rotates the current token pair. An unknown refresh token
// clears the session.
func (p *Provider) RefreshSession(_ context.Context) (domainauth.Session, error) {
	p.mu.Lock()
	sess, has := p.session, p.has
	userID, known := p.refresh[sess.RefreshToken]
	u := p.users[userID]
	p.mu.Unlock()

	if !has || !sess.HasRefreshToken() {
		return domainauth.Session{}, apperrors.Precondition("no refresh token")
	}
	if !known {
		p.emitMu.Lock()
		p.mu.Lock()
		p.session, p.has = domainauth.Session{}, false
		p.mu.Unlock()
		p.hub.Publish(domainauth.NotAuthenticated())
		p.emitMu.Unlock()
		return domainauth.Session{}, apperrors.Unauthorized("invalid refresh token")
	}
	return p.signInAs(u)
}

// CurrentSession returns the current session, if any.
func (p *Provider) CurrentSession(_ context.Context) (domainauth.Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session, p.has
}

// ImportSession installs a token pair previously minted by Issue.
func (p *Provider) ImportSession(_ context.Context, tokens domainauth.TokenPair) (domainauth.Session, error) {
	if strings.TrimSpace(tokens.AccessToken) == "" || strings.TrimSpace(tokens.RefreshToken) == "" {
		return domainauth.Session{}, apperrors.Validation("access and refresh tokens are required")
	}
	p.mu.Lock()
	userID, ok := p.access[tokens.AccessToken]
	u := p.users[userID]
	p.mu.Unlock()
	if !ok {
		return domainauth.Session{}, apperrors.Unauthorized("unknown access token")
	}
	ttl := p.ttl
	if tokens.ExpiresIn > 0 {
		ttl = time.Duration(tokens.ExpiresIn) * time.Second
	}
	sess := domainauth.Session{
		User:         u,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		TokenType:    "bearer",
		ExpiresAt:    p.now().Add(ttl),
	}
	p.install(sess)
	return sess, nil
}

// Issue mints a token pair for the account with email without touching the
// current session. It stands in for tokens approved on another device.
func (p *Provider) Issue(email string) (domainauth.TokenPair, error) {
	email = normalizeEmail(email)
	p.mu.Lock()
	defer p.mu.Unlock()
	acct, ok := p.accounts[email]
	if !ok {
		return domainauth.TokenPair{}, apperrors.NotFound("unknown account " + email)
	}
	access, refresh, err := newTokenPair()
	if err != nil {
		return domainauth.TokenPair{}, err
	}
	p.access[access] = acct.user.ID
	p.refresh[refresh] = acct.user.ID
	return domainauth.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int(p.ttl / time.Second),
	}, nil
}

// ExpireAccessToken drops the current access token and publishes not
// authenticated while keeping the refresh token, as a provider does when an
// access token lapses.
func (p *Provider) ExpireAccessToken() {
	p.emitMu.Lock()
	defer p.emitMu.Unlock()
	p.mu.Lock()
	if !p.has {
		p.mu.Unlock()
		return
	}
	delete(p.access, p.session.AccessToken)
	p.session.AccessToken = ""
	p.session.ExpiresAt = p.now()
	p.mu.Unlock()
	p.hub.Publish(domainauth.NotAuthenticated())
}

// Subscribe returns the ordered session-status stream.
func (p *Provider) Subscribe(ctx context.Context) <-chan domainauth.SessionEvent {
	return p.hub.Subscribe(ctx)
}

func (p *Provider) signInAs(u domainauth.User) (domainauth.Session, error) {
	access, refresh, err := newTokenPair()
	if err != nil {
		return domainauth.Session{}, err
	}
	sess := domainauth.Session{
		User:         u,
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresAt:    p.now().Add(p.ttl),
	}
	p.mu.Lock()
	p.access[access] = u.ID
	p.refresh[refresh] = u.ID
	p.mu.Unlock()
	p.install(sess)
	return sess, nil
}

func (p *Provider) install(sess domainauth.Session) {
	p.emitMu.Lock()
	defer p.emitMu.Unlock()
	p.mu.Lock()
	if p.has && p.session.RefreshToken != sess.RefreshToken {
		delete(p.access, p.session.AccessToken)
		delete(p.refresh, p.session.RefreshToken)
	}
	p.session, p.has = sess, true
	p.mu.Unlock()
	p.hub.Publish(domainauth.Authenticated(sess.User))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func newTokenPair() (string, string, error) {
	access, err := randomString(32)
	if err != nil {
		return "", "", fmt.Errorf("generate access token: %w", err)
	}
	refresh, err := randomString(32)
	if err != nil {
		return "", "", fmt.Errorf("generate refresh token: %w", err)
	}
	return "dev-" + access, "dev-" + refresh, nil
}

func randomString(n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	// Enough random bytes to produce at least n base64 URL chars.
	b := make([]byte, (n*3+3)/4)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b)[:n], nil
}
