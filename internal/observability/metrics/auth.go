package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	apperrors "github.com/skoruppa/NuvioTV-sub003/internal/errors"
)

// Result constants for metric labels.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// Resolution outcomes for the effective-user resolver.
const (
	ResolutionCacheHit = "cache_hit"
	ResolutionResolved = "resolved"
	ResolutionRetried  = "retried"
	ResolutionFallback = "fallback"
	ResolutionFailed   = "failed"
)

// AuthMetrics groups the Prometheus collectors for the identity layer.
// A nil *AuthMetrics is valid and records nothing.
type AuthMetrics struct {
	stateTransitions *prometheus.CounterVec
	resolutions      *prometheus.CounterVec
	refreshes        *prometheus.CounterVec
	pairingCalls     *prometheus.CounterVec
	pairingDuration  *prometheus.HistogramVec
}

// NewAuthMetrics creates the collectors and registers them with reg.
func NewAuthMetrics(reg prometheus.Registerer) *AuthMetrics {
	m := &AuthMetrics{
		stateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tvsession",
			Name:      "auth_state_transitions_total",
			Help:      "Published AuthState values by state.",
		}, []string{"state"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tvsession",
			Name:      "effective_user_resolutions_total",
			Help:      "Effective user id resolutions by outcome.",
		}, []string{"outcome"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tvsession",
			Name:      "session_refreshes_total",
			Help:      "Session refresh attempts by trigger and result.",
		}, []string{"trigger", "result"}),
		pairingCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tvsession",
			Name:      "pairing_calls_total",
			Help:      "TV login protocol calls by phase and result.",
		}, []string{"phase", "result"}),
		pairingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tvsession",
			Name:      "pairing_call_duration_seconds",
			Help:      "TV login protocol call latency by phase.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"phase"}),
	}
	if reg != nil {
		reg.MustRegister(m.stateTransitions, m.resolutions, m.refreshes, m.pairingCalls, m.pairingDuration)
	}
	return m
}

// StateTransition counts a published AuthState.
func (m *AuthMetrics) StateTransition(state string) {
	if m == nil {
		return
	}
	m.stateTransitions.WithLabelValues(state).Inc()
}

// Resolution counts an effective-user resolution outcome.
func (m *AuthMetrics) Resolution(outcome string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(outcome).Inc()
}

// Refresh counts a session refresh attempt.
func (m *AuthMetrics) Refresh(trigger string, err error) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(trigger, ResultLabel(err)).Inc()
}

// PairingCall records one TV login protocol call.
func (m *AuthMetrics) PairingCall(phase string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.pairingCalls.WithLabelValues(phase, ResultLabel(err)).Inc()
	if d > 0 {
		m.pairingDuration.WithLabelValues(phase).Observe(d.Seconds())
	}
}

// ResultLabel maps err to a low-cardinality label: success, the AppError code, or "error".
func ResultLabel(err error) string {
	if err == nil {
		return ResultSuccess
	}
	if code := apperrors.GetCode(err); code != "" {
		return string(code)
	}
	return ResultError
}
