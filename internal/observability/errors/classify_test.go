package errors

import (
	"context"
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/skoruppa/NuvioTV-sub003/internal/errors"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "app error", err: fmt.Errorf("start: %w", apperrors.EmptyResponse("start_tv_login_session")), want: "empty_response"},
		{name: "deadline", err: fmt.Errorf("poll: %w", context.DeadlineExceeded), want: "timeout"},
		{name: "canceled", err: context.Canceled, want: "canceled"},
		{name: "innermost type", err: fmt.Errorf("call: %w", &url.Error{Op: "Post", URL: "x", Err: errPlain{}}), want: "errors_errplain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

type errPlain struct{}

func (errPlain) Error() string { return "plain" }
