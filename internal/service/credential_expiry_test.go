package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/skoruppa/NuvioTV-sub003/internal/errors"
)

type nilPointerError struct{ msg string }

func (e *nilPointerError) Error() string { return e.msg }

func TestIsCredentialExpired(t *testing.T) {
	var typedNil *nilPointerError

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "plain match", err: errors.New("JWT expired"), want: true},
		{name: "mixed case", err: errors.New("request failed: Jwt Expired at 12:00"), want: true},
		{name: "unrelated", err: errors.New("connection refused"), want: false},
		{name: "empty message", err: errors.New(""), want: false},
		{name: "wrapped", err: fmt.Errorf("resolve: %w", errors.New("jwt expired")), want: true},
		{
			name: "deep app error cause",
			err:  apperrors.Wrap(fmt.Errorf("layer: %w", errors.New("JWT EXPIRED")), apperrors.ErrCodeUnauthorized, "rpc failed"),
			want: true,
		},
		{
			name: "joined",
			err:  errors.Join(errors.New("first"), fmt.Errorf("second: %w", errors.New("jwt expired"))),
			want: true,
		},
		{name: "joined without match", err: errors.Join(errors.New("a"), errors.New("b")), want: false},
		{name: "typed nil in chain", err: fmt.Errorf("outer: %w", error(typedNil)), want: false},
		{name: "invalid token is not expiry", err: errors.New("jwt invalid signature"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsCredentialExpired(tt.err))
		})
	}
}
