package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/skoruppa/NuvioTV-sub003/internal/domain/auth"
	mockauth "github.com/skoruppa/NuvioTV-sub003/internal/mocks/auth"
)

func TestNewSessionRefresher_RequiresProvider(t *testing.T) {
	_, err := NewSessionRefresher(SessionRefresherOptions{})
	require.Error(t, err)
}

func TestSessionRefresher_ConcurrentCallersShareOneRefresh(t *testing.T) {
	provider := mockauth.NewFakeIdentityProvider()
	release := make(chan struct{})
	var calls atomic.Int32
	provider.RefreshFunc = func(context.Context) (domainauth.Session, error) {
		calls.Add(1)
		<-release
		return domainauth.Session{AccessToken: "fresh", RefreshToken: "r"}, nil
	}

	r, err := NewSessionRefresher(SessionRefresherOptions{Provider: provider})
	require.NoError(t, err)

	const callers = 5
	var wg sync.WaitGroup
	results := make(chan domainauth.Session, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess, err := r.Refresh(context.Background(), RefreshTriggerResolver)
			assert.NoError(t, err)
			results <- sess
		}()
	}

	// Give every caller a chance to join the in-flight call before releasing it.
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	assert.Equal(t, int32(1), calls.Load())
	for sess := range results {
		assert.Equal(t, "fresh", sess.AccessToken)
	}
}

func TestSessionRefresher_PropagatesError(t *testing.T) {
	provider := mockauth.NewFakeIdentityProvider()
	boom := errors.New("refresh token revoked")
	provider.RefreshFunc = func(context.Context) (domainauth.Session, error) {
		return domainauth.Session{}, boom
	}

	r, err := NewSessionRefresher(SessionRefresherOptions{Provider: provider})
	require.NoError(t, err)

	_, err = r.Refresh(context.Background(), RefreshTriggerStateMachine)
	require.ErrorIs(t, err, boom)
}

func TestSessionRefresher_CallerCancellation(t *testing.T) {
	provider := mockauth.NewFakeIdentityProvider()
	release := make(chan struct{})
	defer close(release)
	provider.RefreshFunc = func(context.Context) (domainauth.Session, error) {
		<-release
		return domainauth.Session{}, nil
	}

	r, err := NewSessionRefresher(SessionRefresherOptions{Provider: provider})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = r.Refresh(ctx, RefreshTriggerResolver)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
