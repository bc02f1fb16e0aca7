package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmespath-community/go-jmespath"

	apperrors "github.com/skoruppa/NuvioTV-sub003/internal/errors"
	obserrors "github.com/skoruppa/NuvioTV-sub003/internal/observability/errors"
	"github.com/skoruppa/NuvioTV-sub003/internal/observability/metrics"
	"github.com/skoruppa/NuvioTV-sub003/internal/ports"
)

// DefaultOwnerProcedure is the remote procedure that maps the signed-in user to
// the account whose data they operate on.
const DefaultOwnerProcedure = "get_sync_owner"

// EffectiveUserResolverOptions groups dependencies for EffectiveUserResolver.
type EffectiveUserResolverOptions struct {
	RPC       ports.RPCClient
	Provider  ports.IdentityProvider
	Cache     *EffectiveIdentityCache
	Refresher *SessionRefresher
	Logger    *slog.Logger
	Metrics   *metrics.AuthMetrics
	// Procedure overrides DefaultOwnerProcedure.
	Procedure string
}

// EffectiveUserResolver answers which user id data operations should be keyed by.
type EffectiveUserResolver struct {
	rpc       ports.RPCClient
	provider  ports.IdentityProvider
	cache     *EffectiveIdentityCache
	refresher *SessionRefresher
	logger    *slog.Logger
	metrics   *metrics.AuthMetrics
	procedure string
	resultExp string
}

// NewEffectiveUserResolver constructs an EffectiveUserResolver.
func NewEffectiveUserResolver(opts EffectiveUserResolverOptions) (*EffectiveUserResolver, error) {
	if opts.RPC == nil {
		return nil, errors.New("RPC is required")
	}
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
	procedure := strings.TrimSpace(opts.Procedure)
	if procedure == "" {
		procedure = DefaultOwnerProcedure
	}
	return &EffectiveUserResolver{
		rpc:       opts.RPC,
		provider:  opts.Provider,
		cache:     opts.Cache,
		refresher: refresher,
		logger:    logger.With("component", "effective_user"),
		metrics:   opts.Metrics,
		procedure: procedure,
		// Scalar functions come back bare; older gateways wrap them as [{"<fn>": value}].
		resultExp: fmt.Sprintf(`[0]."%s" || "%s"`, procedure, procedure),
	}, nil
}

// EffectiveUserID returns the effective user id for the current session.
//
// With no signed-in user it returns "" and a nil error. A cached value is used
// only when it was resolved for the current user. An expired credential triggers
// at most one refresh and one retry. On failure, fallbackToOwnID returns the
// signed-in user's own id instead of the error.
func (r *EffectiveUserResolver) EffectiveUserID(ctx context.Context, fallbackToOwnID bool) (string, error) {
	sess, ok := r.provider.CurrentSession(ctx)
	userID := strings.TrimSpace(sess.User.ID)
	if !ok || userID == "" {
		return "", nil
	}

	if effective, hit := r.cache.Lookup(userID); hit {
		r.metrics.Resolution(metrics.ResolutionCacheHit)
		return effective, nil
	}

	effective, err := r.resolveOwner(ctx)
	if err == nil {
		r.cache.Store(userID, effective)
		r.metrics.Resolution(metrics.ResolutionResolved)
		return effective, nil
	}

	if IsCredentialExpired(err) && sess.HasRefreshToken() {
		r.logger.DebugContext(ctx, "credential expired during resolution, refreshing", "user_id", userID)
		if _, refreshErr := r.refresher.Refresh(ctx, RefreshTriggerResolver); refreshErr != nil {
			err = errors.Join(err, fmt.Errorf("refresh session: %w", refreshErr))
		} else {
			effective, err = r.resolveOwner(ctx)
			if err == nil {
				r.cache.Store(userID, effective)
				r.metrics.Resolution(metrics.ResolutionRetried)
				return effective, nil
			}
		}
	}

	if fallbackToOwnID {
		r.logger.WarnContext(ctx, "effective user resolution failed, using own id",
			"user_id", userID,
			"error_type", obserrors.Classify(err),
			"error", err)
		r.metrics.Resolution(metrics.ResolutionFallback)
		return userID, nil
	}
	r.metrics.Resolution(metrics.ResolutionFailed)
	return "", fmt.Errorf("resolve effective user: %w", err)
}

// ClearCache forgets any memoised effective user id.
func (r *EffectiveUserResolver) ClearCache() {
	r.cache.Clear()
}

func (r *EffectiveUserResolver) resolveOwner(ctx context.Context) (string, error) {
	raw, err := r.rpc.Call(ctx, r.procedure, map[string]any{})
	if err != nil {
		return "", err
	}
	return r.decodeOwner(raw)
}

func (r *EffectiveUserResolver) decodeOwner(raw json.RawMessage) (string, error) {
	var scalar string
	if err := json.Unmarshal(raw, &scalar); err == nil {
		if strings.TrimSpace(scalar) == "" {
			return "", apperrors.EmptyResponse(r.procedure)
		}
		return scalar, nil
	}

	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return "", apperrors.Wrapf(err, apperrors.ErrCodeRemote, "decode %s result", r.procedure)
	}
	value, err := jmespath.Search(r.resultExp, data)
	if err != nil {
		return "", apperrors.Wrapf(err, apperrors.ErrCodeRemote, "decode %s result", r.procedure)
	}
	if value == nil {
		return "", apperrors.EmptyResponse(r.procedure)
	}
	owner, ok := value.(string)
	if !ok {
		return "", apperrors.Wrapf(fmt.Errorf("unexpected %T", value), apperrors.ErrCodeRemote, "decode %s result", r.procedure)
	}
	if strings.TrimSpace(owner) == "" {
		return "", apperrors.EmptyResponse(r.procedure)
	}
	return owner, nil
}
