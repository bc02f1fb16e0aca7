package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/skoruppa/NuvioTV-sub003/internal/errors"
)

func TestResultLabel(t *testing.T) {
	assert.Equal(t, ResultSuccess, ResultLabel(nil))
	assert.Equal(t, ResultError, ResultLabel(errors.New("boom")))
	assert.Equal(t, "empty_response", ResultLabel(apperrors.EmptyResponse("fn")))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *AuthMetrics
	m.StateTransition("signed_out")
	m.Resolution(ResolutionCacheHit)
	m.Refresh("resolver", nil)
	m.PairingCall("start", time.Second, nil)
}

func TestAuthMetrics_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewAuthMetrics(reg)

	m.StateTransition("full_account")
	m.StateTransition("full_account")
	m.Resolution(ResolutionFallback)
	m.Refresh("state_machine", errors.New("x"))
	m.PairingCall("exchange", 10*time.Millisecond, apperrors.HTTPStatus("exchange", 410, "expired"))

	assert.InDelta(t, 2, testutil.ToFloat64(m.stateTransitions.WithLabelValues("full_account")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.resolutions.WithLabelValues(ResolutionFallback)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.refreshes.WithLabelValues("state_machine", ResultError)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.pairingCalls.WithLabelValues("exchange", "http_status")), 0)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
