package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/skoruppa/NuvioTV-sub003/internal/domain/pairing"
	obserrors "github.com/skoruppa/NuvioTV-sub003/internal/observability/errors"
)

var (
	// ErrPairingExpired is returned when the pairing session expired before approval.
	ErrPairingExpired = errors.New("tv login session expired")
	// ErrPairingConsumed is returned when the pairing code was already exchanged.
	ErrPairingConsumed = errors.New("tv login session already consumed")
)

// DefaultMaxPollFailures bounds consecutive failed polls before WaitForApproval gives up.
const DefaultMaxPollFailures = 5

// PairingPollerOptions groups dependencies for PairingPoller.
type PairingPollerOptions struct {
	Pairing         *PairingService
	Logger          *slog.Logger
	MaxPollFailures int
}

// PairingPoller drives PairingService.Poll at the cadence the backend asks for.
type PairingPoller struct {
	pairing     *PairingService
	logger      *slog.Logger
	maxFailures int
}

// NewPairingPoller constructs a PairingPoller.
func NewPairingPoller(opts PairingPollerOptions) (*PairingPoller, error) {
	if opts.Pairing == nil {
		return nil, errors.New("Pairing is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxFailures := opts.MaxPollFailures
	if maxFailures <= 0 {
		maxFailures = DefaultMaxPollFailures
	}
	return &PairingPoller{
		pairing:     opts.Pairing,
		logger:      logger.With("component", "pairing_poller"),
		maxFailures: maxFailures,
	}, nil
}

// WaitForApproval polls sess until it is approved, reaches a terminal status,
// passes its expiry, or ctx ends. onPoll, when set, observes every successful poll.
// The backend may change the interval or the expiry on any poll.
func (p *PairingPoller) WaitForApproval(ctx context.Context, sess pairing.Session, onPoll func(pairing.PollResult)) (pairing.PollResult, error) {
	interval := sess.PollInterval
	if interval <= 0 {
		interval = pairing.DefaultPollInterval
	}
	expiresAt := sess.ExpiresAt

	limiter := rate.NewLimiter(rate.Every(interval), 1)
	// The first poll waits one full interval after Start.
	limiter.Allow()

	failures := 0
	for {
		if err := p.wait(ctx, limiter, expiresAt); err != nil {
			return pairing.PollResult{}, err
		}

		res, err := p.pairing.Poll(ctx, sess.Code, sess.DeviceNonce)
		if err != nil {
			failures++
			p.logger.WarnContext(ctx, "tv login poll failed",
				"attempt_failures", failures,
				"error_type", obserrors.Classify(err),
				"error", err)
			if failures >= p.maxFailures {
				return pairing.PollResult{}, err
			}
			continue
		}
		failures = 0

		if onPoll != nil {
			onPoll(res)
		}

		switch res.Status {
		case pairing.StatusApproved:
			return res, nil
		case pairing.StatusExpired:
			return res, ErrPairingExpired
		case pairing.StatusConsumed:
			return res, ErrPairingConsumed
		}

		if res.PollInterval > 0 && res.PollInterval != interval {
			interval = res.PollInterval
			limiter.SetLimit(rate.Every(interval))
			p.logger.DebugContext(ctx, "poll interval changed", "interval", interval)
		}
		if !res.ExpiresAt.IsZero() {
			expiresAt = res.ExpiresAt
		}
	}
}

func (p *PairingPoller) wait(ctx context.Context, limiter *rate.Limiter, expiresAt time.Time) error {
	var expiry <-chan time.Time
	if !expiresAt.IsZero() {
		remaining := time.Until(expiresAt)
		if remaining <= 0 {
			return ErrPairingExpired
		}
		expiryTimer := time.NewTimer(remaining)
		defer expiryTimer.Stop()
		expiry = expiryTimer.C
	}

	reservation := limiter.Reserve()
	next := time.NewTimer(reservation.Delay())
	defer next.Stop()

	select {
	case <-ctx.Done():
		reservation.Cancel()
		return ctx.Err()
	case <-expiry:
		reservation.Cancel()
		return ErrPairingExpired
	case <-next.C:
		return nil
	}
}
