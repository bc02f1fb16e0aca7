package service

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/singleflight"

	domainauth "github.com/skoruppa/NuvioTV-sub003/internal/domain/auth"
	obserrors "github.com/skoruppa/NuvioTV-sub003/internal/observability/errors"
	"github.com/skoruppa/NuvioTV-sub003/internal/observability/metrics"
	"github.com/skoruppa/NuvioTV-sub003/internal/ports"
)

// Refresh triggers used for logging and metric labels.
const (
	RefreshTriggerStateMachine = "state_machine"
	RefreshTriggerResolver     = "resolver"
)

// SessionRefresherOptions groups dependencies for SessionRefresher.
type SessionRefresherOptions struct {
	Provider ports.IdentityProvider
	Logger   *slog.Logger
	Metrics  *metrics.AuthMetrics
}

// SessionRefresher serialises session refreshes: concurrent callers share one
// in-flight provider call and all observe its result.
type SessionRefresher struct {
	provider ports.IdentityProvider
	logger   *slog.Logger
	metrics  *metrics.AuthMetrics
	group    singleflight.Group
}

// NewSessionRefresher constructs a SessionRefresher.
func NewSessionRefresher(opts SessionRefresherOptions) (*SessionRefresher, error) {
	if opts.Provider == nil {
		return nil, errors.New("Provider is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionRefresher{
		provider: opts.Provider,
		logger:   logger.With("component", "session_refresher"),
		metrics:  opts.Metrics,
	}, nil
}

// Refresh refreshes the provider session once, joining an in-flight refresh if there is one.
// The shared call is detached from the caller's cancellation so one caller giving
// up does not fail the others; each caller still returns when its own ctx ends.
func (r *SessionRefresher) Refresh(ctx context.Context, trigger string) (domainauth.Session, error) {
	ch := r.group.DoChan("refresh", func() (any, error) {
		return r.provider.RefreshSession(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return domainauth.Session{}, ctx.Err()
	case res := <-ch:
		r.metrics.Refresh(trigger, res.Err)
		if res.Err != nil {
			r.logger.WarnContext(ctx, "session refresh failed",
				"trigger", trigger,
				"shared", res.Shared,
				"error_type", obserrors.Classify(res.Err),
				"error", res.Err)
			return domainauth.Session{}, res.Err
		}
		sess, _ := res.Val.(domainauth.Session)
		r.logger.DebugContext(ctx, "session refreshed", "trigger", trigger, "shared", res.Shared)
		return sess, nil
	}
}
