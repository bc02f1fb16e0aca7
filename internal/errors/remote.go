package errors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/jackc/pgerrcode"
)

// PostgREST error codes the client reacts to.
const (
	// PGRSTFunctionNotFound is returned when no function matches the name and argument names.
	PGRSTFunctionNotFound = "PGRST202"
	// PGRSTJWTExpired is returned when the bearer token is past its exp claim.
	PGRSTJWTExpired = "PGRST301"
	// PGRSTJWTInvalid is returned by newer servers for expired or malformed tokens.
	PGRSTJWTInvalid = "PGRST303"
)

// remoteBody is the error envelope used by the backend for RPC and function failures.
// GoTrue uses msg/error_description, PostgREST uses message/details/hint.
type remoteBody struct {
	Code             json.RawMessage `json:"code"`
	ErrorCode        string          `json:"error_code"`
	Message          string          `json:"message"`
	Msg              string          `json:"msg"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
	Details          string          `json:"details"`
	Hint             string          `json:"hint"`
}

// FromRemote maps a failed backend response to an AppError.
// Unknown bodies still produce an error that carries the status and raw text.
func FromRemote(operation string, status int, body []byte) *AppError {
	raw := strings.TrimSpace(string(body))
	appErr := &AppError{
		Code:    ErrCodeRemote,
		Message: operation + " failed: status " + http.StatusText(status),
		Status:  status,
		Body:    raw,
	}

	var rb remoteBody
	if err := json.Unmarshal(body, &rb); err != nil {
		if raw != "" {
			appErr.Message = operation + " failed: " + raw
		}
		appErr.Code = codeForStatus(status, "")
		return appErr
	}

	appErr.RemoteCode = remoteCode(rb)
	if msg := remoteMessage(rb); msg != "" {
		appErr.Message = operation + " failed: " + msg
	}
	if rb.Details != "" {
		appErr.Message += " (" + rb.Details + ")"
	}
	appErr.Code = codeForStatus(status, appErr.RemoteCode)
	return appErr
}

// MapTransportError normalises context errors from HTTP round trips.
func MapTransportError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(err, ErrCodeTimeout, operation+" timed out")
	}
	if errors.Is(err, context.Canceled) {
		return Wrap(err, ErrCodeCanceled, operation+" canceled")
	}
	return Wrap(err, ErrCodeRemote, operation+" request failed")
}

func remoteCode(rb remoteBody) string {
	if rb.ErrorCode != "" {
		return rb.ErrorCode
	}
	if len(rb.Code) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(rb.Code, &s); err == nil {
		return s
	}
	// GoTrue reports the HTTP status as a numeric code; it adds nothing here.
	return ""
}

func remoteMessage(rb remoteBody) string {
	for _, m := range []string{rb.Message, rb.Msg, rb.ErrorDescription, rb.Error} {
		if m = strings.TrimSpace(m); m != "" {
			return m
		}
	}
	return ""
}

func codeForStatus(status int, remote string) ErrorCode {
	switch remote {
	case PGRSTFunctionNotFound, pgerrcode.UndefinedFunction:
		return ErrCodeLegacySignature
	case PGRSTJWTExpired, PGRSTJWTInvalid, pgerrcode.InvalidAuthorizationSpecification,
		pgerrcode.InsufficientPrivilege:
		return ErrCodeUnauthorized
	case pgerrcode.NoDataFound:
		return ErrCodeNotFound
	case pgerrcode.InvalidTextRepresentation, pgerrcode.InvalidParameterValue,
		pgerrcode.RaiseException:
		return ErrCodeValidation
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrCodeUnauthorized
	case status == http.StatusNotFound:
		return ErrCodeNotFound
	case status == http.StatusGatewayTimeout || status == http.StatusRequestTimeout:
		return ErrCodeTimeout
	case status >= 400 && status < 500:
		return ErrCodeValidation
	default:
		return ErrCodeRemote
	}
}
