package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	domainauth "github.com/skoruppa/NuvioTV-sub003/internal/domain/auth"
	obserrors "github.com/skoruppa/NuvioTV-sub003/internal/observability/errors"
	"github.com/skoruppa/NuvioTV-sub003/internal/observability/metrics"
	"github.com/skoruppa/NuvioTV-sub003/internal/ports"
)

// ErrStateMachineRunning is returned when Run is called on a machine that is already running.
var ErrStateMachineRunning = errors.New("session state machine already running")

// SessionStateMachineOptions groups dependencies for SessionStateMachine.
type SessionStateMachineOptions struct {
	Provider  ports.IdentityProvider
	Cache     *EffectiveIdentityCache
	Refresher *SessionRefresher
	Logger    *slog.Logger
	Metrics   *metrics.AuthMetrics
}

// SessionStateMachine folds provider session events into a published AuthState.
//
// Events are handled one at a time, in arrival order, by the goroutine running Run.
// A NotAuthenticated event with a refresh token available starts one background
// refresh; its failure only signs the user out if no newer event was processed
// while it was in flight.
type SessionStateMachine struct {
	provider  ports.IdentityProvider
	cache     *EffectiveIdentityCache
	refresher *SessionRefresher
	logger    *slog.Logger
	metrics   *metrics.AuthMetrics

	mu       sync.RWMutex
	state    domainauth.AuthState
	watchers map[chan domainauth.AuthState]struct{}

	running    atomic.Bool
	generation uint64 // owned by the Run goroutine
	refreshes  sync.WaitGroup
}

type refreshOutcome struct {
	generation uint64
	err        error
}

// NewSessionStateMachine constructs a machine whose initial state is Loading.
func NewSessionStateMachine(opts SessionStateMachineOptions) (*SessionStateMachine, error) {
	if opts.Provider == nil {
		return nil, errors.New("Provider is required")
	}
	if opts.Cache == nil {
		return nil, errors.New("Cache is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	refresher := opts.Refresher
	if refresher == nil {
		var err error
		refresher, err = NewSessionRefresher(SessionRefresherOptions{
			Provider: opts.Provider,
			Logger:   logger,
			Metrics:  opts.Metrics,
		})
		if err != nil {
			return nil, err
		}
	}
	return &SessionStateMachine{
		provider:  opts.Provider,
		cache:     opts.Cache,
		refresher: refresher,
		logger:    logger.With("component", "session_state"),
		metrics:   opts.Metrics,
		state:     domainauth.Loading(),
		watchers:  make(map[chan domainauth.AuthState]struct{}),
	}, nil
}

// State returns the latest published AuthState.
func (m *SessionStateMachine) State() domainauth.AuthState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Watch returns a channel that immediately yields the current state and then
// the latest state after each change. Slow readers only see the newest value.
// The channel is closed when ctx ends.
func (m *SessionStateMachine) Watch(ctx context.Context) <-chan domainauth.AuthState {
	ch := make(chan domainauth.AuthState, 1)

	m.mu.Lock()
	ch <- m.state
	m.watchers[ch] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.watchers, ch)
		close(ch)
		m.mu.Unlock()
	}()
	return ch
}

// Run consumes the provider's session events until ctx ends or the stream closes.
// Background refreshes started by Run are canceled and awaited before it returns.
func (m *SessionStateMachine) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrStateMachineRunning
	}
	defer m.running.Store(false)

	runCtx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		m.refreshes.Wait()
	}()

	events := m.provider.Subscribe(runCtx)
	outcomes := make(chan refreshOutcome, 1)

	m.logger.DebugContext(ctx, "session state machine started")
	for {
		select {
		case <-runCtx.Done():
			m.logger.DebugContext(ctx, "session state machine stopped")
			return nil
		case ev, ok := <-events:
			if !ok {
				m.logger.InfoContext(ctx, "session event stream closed")
				return nil
			}
			m.handleEvent(runCtx, ev, outcomes)
		case out := <-outcomes:
			m.handleRefreshOutcome(runCtx, out)
		}
	}
}

func (m *SessionStateMachine) handleEvent(ctx context.Context, ev domainauth.SessionEvent, outcomes chan<- refreshOutcome) {
	switch ev.Status {
	case domainauth.StatusAuthenticated:
		m.generation++
		if m.cache.InvalidateUnless(ev.User.ID) {
			m.logger.DebugContext(ctx, "effective identity cache invalidated", "user_id", ev.User.ID)
		}
		if !ev.User.HasEmail() {
			m.publish(ctx, domainauth.SignedOut())
			return
		}
		m.publish(ctx, domainauth.FullAccount(ev.User.ID, ev.User.Email))

	case domainauth.StatusNotAuthenticated:
		m.generation++
		sess, ok := m.provider.CurrentSession(ctx)
		if ok && sess.HasRefreshToken() {
			m.startRefresh(ctx, m.generation, outcomes)
			return
		}
		m.cache.Clear()
		m.publish(ctx, domainauth.SignedOut())

	case domainauth.StatusInitializing:
		m.generation++
		m.publish(ctx, domainauth.Loading())

	default:
		m.logger.DebugContext(ctx, "ignoring session event", "status", ev.Status.String(), "error", ev.Err)
	}
}

func (m *SessionStateMachine) startRefresh(ctx context.Context, generation uint64, outcomes chan<- refreshOutcome) {
	m.refreshes.Add(1)
	go func() {
		defer m.refreshes.Done()
		_, err := m.refresher.Refresh(ctx, RefreshTriggerStateMachine)
		select {
		case outcomes <- refreshOutcome{generation: generation, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (m *SessionStateMachine) handleRefreshOutcome(ctx context.Context, out refreshOutcome) {
	if out.err == nil {
		// The provider reports the refreshed session through its own event stream.
		return
	}
	if out.generation != m.generation {
		m.logger.DebugContext(ctx, "dropping stale refresh failure",
			"refresh_generation", out.generation,
			"current_generation", m.generation)
		return
	}
	m.logger.InfoContext(ctx, "background refresh failed, signing out",
		"error_type", obserrors.Classify(out.err),
		"error", out.err)
	m.cache.Clear()
	m.publish(ctx, domainauth.SignedOut())
}

func (m *SessionStateMachine) publish(ctx context.Context, next domainauth.AuthState) {
	m.mu.Lock()
	prev := m.state
	m.state = next
	if prev != next {
		for ch := range m.watchers {
			select {
			case <-ch:
			default:
			}
			ch <- next
		}
	}
	m.mu.Unlock()

	if prev != next {
		m.metrics.StateTransition(next.Kind.String())
		m.logger.InfoContext(ctx, "auth state changed", "from", prev.String(), "to", next.String())
	}
}
