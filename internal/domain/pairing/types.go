// Package pairing contains the domain types of the TV login (device pairing)
// flow: a constrained device shows a short code that a second device approves.
package pairing

import (
	"strings"
	"time"
)

// DefaultPollInterval is used when the backend omits poll_interval_seconds.
const DefaultPollInterval = 3 * time.Second

// Status is the server-side state of a pairing session as observed by polling.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusExpired  Status = "expired"
	StatusConsumed Status = "consumed"
	// StatusUnknown is used for values the client cannot map.
	StatusUnknown Status = "unknown"
)

// ParseStatus maps a backend status string; unmapped values yield StatusUnknown.
func ParseStatus(raw string) Status {
	switch s := Status(strings.ToLower(strings.TrimSpace(raw))); s {
	case StatusPending, StatusApproved, StatusExpired, StatusConsumed:
		return s
	default:
		return StatusUnknown
	}
}

// IsTerminal reports whether polling should stop without an exchange.
func (s Status) IsTerminal() bool {
	return s == StatusExpired || s == StatusConsumed
}

// StartInput carries the parameters of the start phase.
// DeviceNonce must be unguessable and unique per attempt.
type StartInput struct {
	DeviceNonce     string
	DeviceName      string
	RedirectBaseURL string
}

// Session is the server-held pairing session as returned by the start phase.
type Session struct {
	Code         string
	WebURL       string
	ExpiresAt    time.Time
	PollInterval time.Duration
	DeviceNonce  string
}

// Expired reports whether the session expiry has passed at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// PollResult is the outcome of a single poll.
// ExpiresAt and PollInterval are zero when the backend omitted them.
type PollResult struct {
	Status       Status
	RawStatus    string
	ExpiresAt    time.Time
	PollInterval time.Duration
}
