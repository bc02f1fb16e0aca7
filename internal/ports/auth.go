// Package ports defines interfaces (hexagonal ports) for identity, session and backend behavior.
// Implementations live in internal/adapters; orchestration in internal/service.
package ports

import (
	"context"

	domainauth "github.com/skoruppa/NuvioTV-sub003/internal/domain/auth"
)

// IdentityProvider is the external identity service holding the current session.
// Token storage and refresh mechanics live behind this port.
type IdentityProvider interface {
	SignUp(ctx context.Context, email, password string) (domainauth.Session, error)
	SignIn(ctx context.Context, email, password string) (domainauth.Session, error)
	SignInAnonymously(ctx context.Context) (domainauth.Session, error)
	SignOut(ctx context.Context) error

	// RefreshSession exchanges the current refresh token for a new session.
	RefreshSession(ctx context.Context) (domainauth.Session, error)

	// CurrentSession returns the current session, if any.
	CurrentSession(ctx context.Context) (domainauth.Session, bool)

	// ImportSession replaces the current principal with one minted elsewhere
	// (e.g. by the TV login exchange).
	ImportSession(ctx context.Context, tokens domainauth.TokenPair) (domainauth.Session, error)

	// Subscribe returns the ordered session-status stream. The first event is the
	// provider's current status. The channel is closed when ctx ends.
	Subscribe(ctx context.Context) <-chan domainauth.SessionEvent
}

// SessionStore persists provider sessions between process restarts.
type SessionStore interface {
	Save(ctx context.Context, key string, sess domainauth.Session) error
	Get(ctx context.Context, key string) (domainauth.Session, error)
	Delete(ctx context.Context, key string) error
}
