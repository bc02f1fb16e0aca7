// Package auth contains simple hand-written test doubles for identity and backend ports.
// These are lightweight and suitable for unit tests without codegen.
package auth

import (
	"context"
	"errors"
	"sync"

	domainauth "github.com/skoruppa/NuvioTV-sub003/internal/domain/auth"
	"github.com/skoruppa/NuvioTV-sub003/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.IdentityProvider = (*FakeIdentityProvider)(nil)
	_ ports.FunctionInvoker  = (*StubFunctionInvoker)(nil)
)

// ErrNoRefreshToken is returned by the fake when asked to refresh without a refresh token.
var ErrNoRefreshToken = errors.New("no refresh token")

// FakeIdentityProvider is a scriptable IdentityProvider.
// Events pushed with Emit are delivered to the Subscribe channel in order.
// Func fields override default behavior; call counters are safe for concurrent use.
type FakeIdentityProvider struct {
	RefreshFunc   func(ctx context.Context) (domainauth.Session, error)
	SignInFunc    func(ctx context.Context, email, password string) (domainauth.Session, error)
	SignUpFunc    func(ctx context.Context, email, password string) (domainauth.Session, error)
	AnonymousFunc func(ctx context.Context) (domainauth.Session, error)
	ImportFunc    func(ctx context.Context, tokens domainauth.TokenPair) (domainauth.Session, error)
	SignOutErr    error

	events chan domainauth.SessionEvent

	mu           sync.Mutex
	session      domainauth.Session
	hasSession   bool
	refreshCalls int
	anonCalls    int
	signOutCalls int
	imported     []domainauth.TokenPair
}

// NewFakeIdentityProvider creates a fake with no session and a buffered event stream.
func NewFakeIdentityProvider() *FakeIdentityProvider {
	return &FakeIdentityProvider{
		events: make(chan domainauth.SessionEvent, 64),
	}
}

// Emit queues an event for the subscriber.
func (f *FakeIdentityProvider) Emit(ev domainauth.SessionEvent) {
	f.events <- ev
}

// Close ends the event stream.
func (f *FakeIdentityProvider) Close() {
	close(f.events)
}

// SetSession installs sess as the current session.
func (f *FakeIdentityProvider) SetSession(sess domainauth.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.session = sess
	f.hasSession = true
}

// ClearSession removes the current session.
func (f *FakeIdentityProvider) ClearSession() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.session = domainauth.Session{}
	f.hasSession = false
}

// RefreshCalls returns how many times RefreshSession was called.
func (f *FakeIdentityProvider) RefreshCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls
}

// AnonymousCalls returns how many times SignInAnonymously was called.
func (f *FakeIdentityProvider) AnonymousCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.anonCalls
}

// SignOutCalls returns how many times SignOut was called.
func (f *FakeIdentityProvider) SignOutCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signOutCalls
}

// Imported returns the token pairs passed to ImportSession.
func (f *FakeIdentityProvider) Imported() []domainauth.TokenPair {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domainauth.TokenPair(nil), f.imported...)
}

func (f *FakeIdentityProvider) SignUp(ctx context.Context, email, password string) (domainauth.Session, error) {
	if f.SignUpFunc != nil {
		return f.SignUpFunc(ctx, email, password)
	}
	return f.install(domainauth.Session{
		User:         domainauth.User{ID: "user-" + email, Email: email},
		AccessToken:  "access-" + email,
		RefreshToken: "refresh-" + email,
	}), nil
}

func (f *FakeIdentityProvider) SignIn(ctx context.Context, email, password string) (domainauth.Session, error) {
	if f.SignInFunc != nil {
		return f.SignInFunc(ctx, email, password)
	}
	return f.install(domainauth.Session{
		User:         domainauth.User{ID: "user-" + email, Email: email},
		AccessToken:  "access-" + email,
		RefreshToken: "refresh-" + email,
	}), nil
}

func (f *FakeIdentityProvider) SignInAnonymously(ctx context.Context) (domainauth.Session, error) {
	f.mu.Lock()
	f.anonCalls++
	f.mu.Unlock()
	if f.AnonymousFunc != nil {
		return f.AnonymousFunc(ctx)
	}
	return f.install(domainauth.Session{
		User:         domainauth.User{ID: "anon-1", IsAnonymous: true},
		AccessToken:  "anon-access",
		RefreshToken: "anon-refresh",
	}), nil
}

func (f *FakeIdentityProvider) SignOut(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOutCalls++
	if f.SignOutErr != nil {
		return f.SignOutErr
	}
	f.session = domainauth.Session{}
	f.hasSession = false
	return nil
}

func (f *FakeIdentityProvider) RefreshSession(ctx context.Context) (domainauth.Session, error) {
	f.mu.Lock()
	f.refreshCalls++
	sess, has := f.session, f.hasSession
	f.mu.Unlock()

	if f.RefreshFunc != nil {
		return f.RefreshFunc(ctx)
	}
	if !has || !sess.HasRefreshToken() {
		return domainauth.Session{}, ErrNoRefreshToken
	}
	return sess, nil
}

func (f *FakeIdentityProvider) CurrentSession(_ context.Context) (domainauth.Session, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session, f.hasSession
}

func (f *FakeIdentityProvider) ImportSession(ctx context.Context, tokens domainauth.TokenPair) (domainauth.Session, error) {
	f.mu.Lock()
	f.imported = append(f.imported, tokens)
	f.mu.Unlock()
	if f.ImportFunc != nil {
		return f.ImportFunc(ctx, tokens)
	}
	return f.install(domainauth.Session{
		User:         domainauth.User{ID: "imported-user", Email: "imported@example.com"},
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		TokenType:    tokens.TokenType,
	}), nil
}

func (f *FakeIdentityProvider) Subscribe(_ context.Context) <-chan domainauth.SessionEvent {
	return f.events
}

func (f *FakeIdentityProvider) install(sess domainauth.Session) domainauth.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.session = sess
	f.hasSession = true
	return sess
}

// FunctionCall records one StubFunctionInvoker invocation.
type FunctionCall struct {
	Name    string
	Bearer  string
	Payload any
}

// StubFunctionInvoker returns a canned response and records calls.
type StubFunctionInvoker struct {
	Response ports.FunctionResponse
	Err      error

	mu    sync.Mutex
	calls []FunctionCall
}

func (s *StubFunctionInvoker) Invoke(_ context.Context, name, bearer string, payload any) (ports.FunctionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, FunctionCall{Name: name, Bearer: bearer, Payload: payload})
	if s.Err != nil {
		return ports.FunctionResponse{}, s.Err
	}
	return s.Response, nil
}

// Calls returns the recorded invocations.
func (s *StubFunctionInvoker) Calls() []FunctionCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]FunctionCall(nil), s.calls...)
}
