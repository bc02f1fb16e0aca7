// Package auth contains domain-level types for identity, sessions and the
// application-facing authentication state.
// It is pure and free of framework/adapter concerns.
package auth

import (
	"strings"
	"time"
)

// StateKind enumerates the variants of AuthState.
type StateKind int

const (
	// StateLoading means no verdict has been reached yet.
	StateLoading StateKind = iota
	// StateSignedOut means there is no usable full account.
	StateSignedOut
	// StateFullAccount means a principal with an email is signed in.
	StateFullAccount
)

// String returns the lowercase name used in logs and metric labels.
func (k StateKind) String() string {
	switch k {
	case StateLoading:
		return "loading"
	case StateSignedOut:
		return "signed_out"
	case StateFullAccount:
		return "full_account"
	default:
		return "unknown"
	}
}

// AuthState is the simplified application-facing authentication state.
// Exactly one variant is active; UserID and Email are only set for StateFullAccount.
type AuthState struct {
	Kind   StateKind
	UserID string
	Email  string
}

// Loading returns the initial state.
func Loading() AuthState { return AuthState{Kind: StateLoading} }

// SignedOut returns the signed-out state.
func SignedOut() AuthState { return AuthState{Kind: StateSignedOut} }

// FullAccount returns the signed-in state for the given user.
func FullAccount(userID, email string) AuthState {
	return AuthState{Kind: StateFullAccount, UserID: userID, Email: email}
}

// IsFullAccount reports whether a full account is signed in.
func (s AuthState) IsFullAccount() bool { return s.Kind == StateFullAccount }

func (s AuthState) String() string {
	if s.Kind == StateFullAccount {
		return s.Kind.String() + "(" + s.UserID + ")"
	}
	return s.Kind.String()
}

// User is the principal reported by the identity provider.
// Anonymous principals never carry an email.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	IsAnonymous bool   `json:"is_anonymous,omitempty"`
}

// HasEmail reports whether the user has a non-blank email.
func (u User) HasEmail() bool { return strings.TrimSpace(u.Email) != "" }

// Session is the provider-held session for the current principal.
type Session struct {
	User         User      `json:"user"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// HasAccessToken reports whether the session carries a usable access token.
func (s Session) HasAccessToken() bool { return strings.TrimSpace(s.AccessToken) != "" }

// HasRefreshToken reports whether the session carries a refresh credential.
func (s Session) HasRefreshToken() bool { return strings.TrimSpace(s.RefreshToken) != "" }

// SessionStatus is the status carried by provider session events.
type SessionStatus int

const (
	StatusInitializing SessionStatus = iota
	StatusAuthenticated
	StatusNotAuthenticated
	StatusTransientError
)

func (s SessionStatus) String() string {
	switch s {
	case StatusInitializing:
		return "initializing"
	case StatusAuthenticated:
		return "authenticated"
	case StatusNotAuthenticated:
		return "not_authenticated"
	case StatusTransientError:
		return "transient_error"
	default:
		return "unknown"
	}
}

// SessionEvent is one entry of the provider's ordered session-status stream.
// User is only meaningful for StatusAuthenticated; Err only for StatusTransientError.
type SessionEvent struct {
	Status SessionStatus
	User   User
	Err    error
}

// Authenticated builds an authenticated event for u.
func Authenticated(u User) SessionEvent {
	return SessionEvent{Status: StatusAuthenticated, User: u}
}

// NotAuthenticated builds a not-authenticated event.
func NotAuthenticated() SessionEvent { return SessionEvent{Status: StatusNotAuthenticated} }

// Initializing builds an initializing event.
func Initializing() SessionEvent { return SessionEvent{Status: StatusInitializing} }

// TransientError builds a transient-error event wrapping err.
func TransientError(err error) SessionEvent {
	return SessionEvent{Status: StatusTransientError, Err: err}
}

// TokenPair is produced by the pairing exchange and handed straight to the
// identity provider. It is never persisted by this layer.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
}
