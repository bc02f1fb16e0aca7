package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/skoruppa/NuvioTV-sub003/config"
	"github.com/skoruppa/NuvioTV-sub003/internal/bootstrap"
	"github.com/skoruppa/NuvioTV-sub003/internal/domain/pairing"
)

type tvLoginOptions struct {
	DeviceName      string
	RedirectBaseURL string
	Timeout         time.Duration
}

func parseTVLoginFlags(args []string, defaults config.TVLoginConfig) (tvLoginOptions, error) {
	fs := flag.NewFlagSet("tv-login", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts tvLoginOptions
	fs.StringVar(&opts.DeviceName, "device-name", defaults.DeviceName, "Name shown on the approval page")
	fs.StringVar(&opts.RedirectBaseURL, "redirect-base-url", defaults.RedirectBaseURL, "Base URL the approving device returns to")
	fs.DurationVar(&opts.Timeout, "timeout", defaults.Timeout, "Give up after this long")
	if err := fs.Parse(args); err != nil {
		return tvLoginOptions{}, err
	}

	opts.DeviceName = strings.TrimSpace(opts.DeviceName)
	opts.RedirectBaseURL = strings.TrimSpace(opts.RedirectBaseURL)
	if opts.Timeout <= 0 {
		return tvLoginOptions{}, errors.New("--timeout must be positive")
	}
	return opts, nil
}

func runTVLogin(cmdCtx *commandContext, args []string) error {
	opts, err := parseTVLoginFlags(args, cmdCtx.Config.TVLogin)
	if err != nil {
		return err
	}
	services, err := openServices(cmdCtx)
	if err != nil {
		return err
	}
	defer closeServices(cmdCtx, services)

	return loginWithPairing(cmdCtx, services, opts)
}

func loginWithPairing(cmdCtx *commandContext, services *bootstrap.ServiceContainer, opts tvLoginOptions) error {
	if services.Pairing == nil || services.Poller == nil {
		return errors.New("tv-login requires BACKEND_URL and BACKEND_API_KEY")
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, opts.Timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	runCtx, stopMachine := context.WithCancel(gctx)
	g.Go(func() error {
		return services.StateMachine.Run(runCtx)
	})
	g.Go(func() error {
		defer stopMachine()
		return tvLogin(gctx, cmdCtx, services, opts)
	})
	return g.Wait()
}

// tvLogin runs bootstrap, start, poll and exchange, then waits for the state
// machine to report the imported account.
func tvLogin(ctx context.Context, cmdCtx *commandContext, services *bootstrap.ServiceContainer, opts tvLoginOptions) error {
	if err := services.Bootstrap.EnsureBootstrapSession(ctx); err != nil {
		return err
	}

	sess, err := services.Pairing.Start(ctx, pairing.StartInput{
		DeviceNonce:     services.Pairing.NewDeviceNonce(),
		DeviceName:      opts.DeviceName,
		RedirectBaseURL: opts.RedirectBaseURL,
	})
	if err != nil {
		return err
	}
	if err := printPairingSession(cmdCtx, sess); err != nil {
		return err
	}

	last := pairing.StatusPending
	_, err = services.Poller.WaitForApproval(ctx, sess, func(res pairing.PollResult) {
		if res.Status != last {
			last = res.Status
			_ = writef(cmdCtx.Out, "Status: %s\n", res.Status)
		}
	})
	if err != nil {
		return fmt.Errorf("wait for approval: %w", err)
	}

	if _, err := services.Pairing.Exchange(ctx, sess.Code, sess.DeviceNonce); err != nil {
		return err
	}

	for state := range services.StateMachine.Watch(ctx) {
		if state.IsFullAccount() {
			return writef(cmdCtx.Out, "Signed in as %s (%s)\n", state.Email, state.UserID)
		}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("wait for sign in: %w", err)
	}
	return errors.New("session state stream ended before sign in")
}

func printPairingSession(cmdCtx *commandContext, sess pairing.Session) error {
	if err := writef(cmdCtx.Out, "Code: %s\n", sess.Code); err != nil {
		return err
	}
	if sess.WebURL != "" {
		if err := writef(cmdCtx.Out, "Approve at: %s\n", sess.WebURL); err != nil {
			return err
		}
	}
	if !sess.ExpiresAt.IsZero() {
		return writef(cmdCtx.Out, "Expires: %s\n", sess.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}
