// Package redis provides Redis-based adapters for the TV session layer.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	domainauth "github.com/skoruppa/NuvioTV-sub003/internal/domain/auth"
	apperrors "github.com/skoruppa/NuvioTV-sub003/internal/errors"
)

// DefaultPrefix namespaces persisted provider sessions.
const DefaultPrefix = "tvsession:"

// DefaultTTL bounds how long a persisted session survives without being rewritten.
const DefaultTTL = 30 * 24 * time.Hour

// ErrNotFound is returned when no session is stored under a key.
var ErrNotFound = apperrors.NotFound("session not found")

// SessionStoreOptions configures SessionStore.
type SessionStoreOptions struct {
	Prefix string
	TTL    time.Duration
}

// SessionStore persists provider sessions in Redis.
// Entries expire after the configured TTL rather than the access token expiry,
// since an expired access token can still be refreshed.
type SessionStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewSessionStore creates a Redis-backed session store.
func NewSessionStore(client redis.UniversalClient, opts SessionStoreOptions) *SessionStore {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SessionStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *SessionStore) Save(ctx context.Context, key string, sess domainauth.Session) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("session key cannot be empty")
	}
	if !sess.HasRefreshToken() && !sess.HasAccessToken() {
		return errors.New("session has no tokens")
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, key string) (domainauth.Session, error) {
	if key == "" {
		return domainauth.Session{}, ErrNotFound
	}

	data, err := s.client.Get(ctx, s.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domainauth.Session{}, ErrNotFound
		}
		return domainauth.Session{}, fmt.Errorf("redis get: %w", err)
	}

	var sess domainauth.Session
	if unmarshalErr := json.Unmarshal([]byte(data), &sess); unmarshalErr != nil {
		// Corrupt entries are dropped.
		if deleteErr := s.Delete(ctx, key); deleteErr != nil {
			return domainauth.Session{}, fmt.Errorf("cleanup corrupt session: %w", deleteErr)
		}
		return domainauth.Session{}, fmt.Errorf("unmarshal session: %w", unmarshalErr)
	}
	return sess, nil
}

func (s *SessionStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil // Nothing to delete
	}
	return s.client.Del(ctx, s.prefix+key).Err()
}
