package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	domainauth "github.com/skoruppa/NuvioTV-sub003/internal/domain/auth"
	"github.com/skoruppa/NuvioTV-sub003/internal/domain/pairing"
	apperrors "github.com/skoruppa/NuvioTV-sub003/internal/errors"
	"github.com/skoruppa/NuvioTV-sub003/internal/observability/metrics"
	"github.com/skoruppa/NuvioTV-sub003/internal/ports"
)

const (
	procStartTVLogin = "start_tv_login_session"
	procPollTVLogin  = "poll_tv_login_session"

	// DefaultExchangeFunction is the backend function that trades an approved code for tokens.
	DefaultExchangeFunction = "tv-logins-exchange"

	paramDeviceNonce  = "p_device_nonce"
	paramRedirectBase = "p_redirect_base_url"
	paramDeviceName   = "p_device_name"
	paramCode         = "p_code"

	pairingPhaseStart    = "start"
	pairingPhasePoll     = "poll"
	pairingPhaseExchange = "exchange"
)

// PairingServiceOptions groups dependencies for PairingService.
type PairingServiceOptions struct {
	RPC       ports.RPCClient
	Functions ports.FunctionInvoker
	Provider  ports.IdentityProvider
	Logger    *slog.Logger
	Metrics   *metrics.AuthMetrics
	// ExchangeFunction overrides DefaultExchangeFunction.
	ExchangeFunction string
}

// PairingService implements the three phases of the TV login device flow.
// Each call performs exactly one attempt; looping is left to the caller (see PairingPoller).
type PairingService struct {
	rpc              ports.RPCClient
	functions        ports.FunctionInvoker
	provider         ports.IdentityProvider
	logger           *slog.Logger
	metrics          *metrics.AuthMetrics
	exchangeFunction string
}

// NewPairingService constructs a PairingService.
func NewPairingService(opts PairingServiceOptions) (*PairingService, error) {
	if opts.RPC == nil {
		return nil, errors.New("RPC is required")
	}
	if opts.Functions == nil {
		return nil, errors.New("Functions is required")
	}
	if opts.Provider == nil {
		return nil, errors.New("Provider is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	exchange := strings.TrimSpace(opts.ExchangeFunction)
	if exchange == "" {
		exchange = DefaultExchangeFunction
	}
	return &PairingService{
		rpc:              opts.RPC,
		functions:        opts.Functions,
		provider:         opts.Provider,
		logger:           logger.With("component", "pairing"),
		metrics:          opts.Metrics,
		exchangeFunction: exchange,
	}, nil
}

// NewDeviceNonce returns a fresh random nonce for one pairing attempt.
func (s *PairingService) NewDeviceNonce() string {
	return uuid.NewString()
}

type startRow struct {
	Code                string    `json:"code"`
	WebURL              string    `json:"web_url"`
	ExpiresAt           time.Time `json:"expires_at"`
	PollIntervalSeconds *int      `json:"poll_interval_seconds"`
}

type pollRow struct {
	Status              string     `json:"status"`
	ExpiresAt           *time.Time `json:"expires_at"`
	PollIntervalSeconds *int       `json:"poll_interval_seconds"`
}

// Start opens a pairing session and returns the code to display.
// A backend that predates the device name parameter is retried once without it.
func (s *PairingService) Start(ctx context.Context, in pairing.StartInput) (pairing.Session, error) {
	if strings.TrimSpace(in.DeviceNonce) == "" {
		return pairing.Session{}, apperrors.Validation("device nonce is required")
	}

	started := time.Now()
	sess, err := s.start(ctx, in)
	s.metrics.PairingCall(pairingPhaseStart, time.Since(started), err)
	if err != nil {
		return pairing.Session{}, err
	}
	s.logger.InfoContext(ctx, "tv login session started",
		"expires_at", sess.ExpiresAt,
		"poll_interval", sess.PollInterval)
	return sess, nil
}

func (s *PairingService) start(ctx context.Context, in pairing.StartInput) (pairing.Session, error) {
	withName := strings.TrimSpace(in.DeviceName) != ""

	raw, err := s.rpc.Call(ctx, procStartTVLogin, startParams(in, withName))
	if err != nil && withName && isMissingParameter(err, procStartTVLogin, paramDeviceName) {
		s.logger.InfoContext(ctx, "backend does not accept device name, retrying without it", "error", err)
		raw, err = s.rpc.Call(ctx, procStartTVLogin, startParams(in, false))
	}
	if err != nil {
		return pairing.Session{}, fmt.Errorf("start tv login: %w", err)
	}

	var row startRow
	if err := decodeSingleRow(raw, procStartTVLogin, &row); err != nil {
		return pairing.Session{}, fmt.Errorf("start tv login: %w", err)
	}
	if strings.TrimSpace(row.Code) == "" {
		return pairing.Session{}, fmt.Errorf("start tv login: %w", apperrors.EmptyResponse(procStartTVLogin))
	}

	return pairing.Session{
		Code:         row.Code,
		WebURL:       row.WebURL,
		ExpiresAt:    row.ExpiresAt,
		PollInterval: pollInterval(row.PollIntervalSeconds, pairing.DefaultPollInterval),
		DeviceNonce:  in.DeviceNonce,
	}, nil
}

func startParams(in pairing.StartInput, withName bool) map[string]any {
	params := map[string]any{
		paramDeviceNonce:  in.DeviceNonce,
		paramRedirectBase: in.RedirectBaseURL,
	}
	if withName {
		params[paramDeviceName] = in.DeviceName
	}
	return params
}

// Poll checks the pairing session status once.
func (s *PairingService) Poll(ctx context.Context, code, deviceNonce string) (pairing.PollResult, error) {
	if strings.TrimSpace(code) == "" || strings.TrimSpace(deviceNonce) == "" {
		return pairing.PollResult{}, apperrors.Validation("code and device nonce are required")
	}

	started := time.Now()
	res, err := s.poll(ctx, code, deviceNonce)
	s.metrics.PairingCall(pairingPhasePoll, time.Since(started), err)
	if err != nil {
		return pairing.PollResult{}, err
	}
	s.logger.DebugContext(ctx, "tv login session polled", "status", res.RawStatus)
	return res, nil
}

func (s *PairingService) poll(ctx context.Context, code, deviceNonce string) (pairing.PollResult, error) {
	raw, err := s.rpc.Call(ctx, procPollTVLogin, map[string]any{
		paramCode:        code,
		paramDeviceNonce: deviceNonce,
	})
	if err != nil {
		return pairing.PollResult{}, fmt.Errorf("poll tv login: %w", err)
	}

	var row pollRow
	if err := decodeSingleRow(raw, procPollTVLogin, &row); err != nil {
		return pairing.PollResult{}, fmt.Errorf("poll tv login: %w", err)
	}

	res := pairing.PollResult{
		Status:       pairing.ParseStatus(row.Status),
		RawStatus:    row.Status,
		PollInterval: pollInterval(row.PollIntervalSeconds, 0),
	}
	if row.ExpiresAt != nil {
		res.ExpiresAt = *row.ExpiresAt
	}
	return res, nil
}

type exchangeRequest struct {
	Code        string `json:"code"`
	DeviceNonce string `json:"device_nonce"`
}

// Exchange trades an approved code for account tokens and imports them into the
// identity provider. It requires the bootstrap principal's access token.
// A non-success HTTP status is returned as an ErrCodeHTTPStatus error and nothing is imported.
func (s *PairingService) Exchange(ctx context.Context, code, deviceNonce string) (domainauth.Session, error) {
	if strings.TrimSpace(code) == "" || strings.TrimSpace(deviceNonce) == "" {
		return domainauth.Session{}, apperrors.Validation("code and device nonce are required")
	}

	started := time.Now()
	sess, err := s.exchange(ctx, code, deviceNonce)
	s.metrics.PairingCall(pairingPhaseExchange, time.Since(started), err)
	if err != nil {
		return domainauth.Session{}, err
	}
	s.logger.InfoContext(ctx, "tv login exchanged", "user_id", sess.User.ID)
	return sess, nil
}

func (s *PairingService) exchange(ctx context.Context, code, deviceNonce string) (domainauth.Session, error) {
	current, ok := s.provider.CurrentSession(ctx)
	if !ok || !current.HasAccessToken() {
		return domainauth.Session{}, apperrors.Precondition("tv login exchange requires a bootstrap session")
	}

	resp, err := s.functions.Invoke(ctx, s.exchangeFunction, current.AccessToken, exchangeRequest{
		Code:        code,
		DeviceNonce: deviceNonce,
	})
	if err != nil {
		return domainauth.Session{}, fmt.Errorf("tv login exchange: %w", err)
	}
	if !resp.OK() {
		return domainauth.Session{}, apperrors.HTTPStatus("tv login exchange", resp.StatusCode, strings.TrimSpace(string(resp.Body)))
	}

	var tokens domainauth.TokenPair
	if err := json.Unmarshal(resp.Body, &tokens); err != nil {
		return domainauth.Session{}, apperrors.Wrap(err, apperrors.ErrCodeRemote, "tv login exchange: decode tokens")
	}
	if strings.TrimSpace(tokens.AccessToken) == "" || strings.TrimSpace(tokens.RefreshToken) == "" {
		return domainauth.Session{}, &apperrors.AppError{
			Code:    apperrors.ErrCodeRemote,
			Message: "tv login exchange: response is missing tokens",
			Status:  resp.StatusCode,
		}
	}

	imported, err := s.provider.ImportSession(ctx, tokens)
	if err != nil {
		return domainauth.Session{}, fmt.Errorf("tv login exchange: import session: %w", err)
	}
	return imported, nil
}

// isMissingParameter reports whether err says fn has no overload accepting param.
func isMissingParameter(err error, fn, param string) bool {
	msg := strings.ToLower(err.Error())
	notFound := strings.Contains(msg, "could not find the function") ||
		strings.Contains(msg, "function not found") ||
		apperrors.IsCode(err, apperrors.ErrCodeLegacySignature)
	return notFound &&
		strings.Contains(msg, strings.ToLower(fn)) &&
		strings.Contains(msg, strings.ToLower(param))
}

// decodeSingleRow decodes the first row of a set-returning procedure into dst.
// A bare object is accepted as a single row.
func decodeSingleRow(raw json.RawMessage, procedure string, dst any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return apperrors.EmptyResponse(procedure)
	}
	if trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, dst); err != nil {
			return apperrors.Wrapf(err, apperrors.ErrCodeRemote, "decode %s result", procedure)
		}
		return nil
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(trimmed, &rows); err != nil {
		return apperrors.Wrapf(err, apperrors.ErrCodeRemote, "decode %s result", procedure)
	}
	if len(rows) == 0 {
		return apperrors.EmptyResponse(procedure)
	}
	if err := json.Unmarshal(rows[0], dst); err != nil {
		return apperrors.Wrapf(err, apperrors.ErrCodeRemote, "decode %s result", procedure)
	}
	return nil
}

func pollInterval(seconds *int, fallback time.Duration) time.Duration {
	if seconds == nil || *seconds <= 0 {
		return fallback
	}
	return time.Duration(*seconds) * time.Second
}
