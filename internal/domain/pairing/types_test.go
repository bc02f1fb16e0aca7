package pairing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseStatus(t *testing.T) {
	tests := map[string]Status{
		"pending":   StatusPending,
		" APPROVED": StatusApproved,
		"expired":   StatusExpired,
		"consumed":  StatusConsumed,
		"denied":    StatusUnknown,
		"":          StatusUnknown,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseStatus(in), "input %q", in)
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.True(t, StatusExpired.IsTerminal())
	assert.True(t, StatusConsumed.IsTerminal())
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusApproved.IsTerminal())
	assert.False(t, StatusUnknown.IsTerminal())
}

func TestSession_Expired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.False(t, Session{}.Expired(now), "zero expiry never expires")
	assert.True(t, Session{ExpiresAt: now}.Expired(now))
	assert.False(t, Session{ExpiresAt: now.Add(time.Minute)}.Expired(now))
}
