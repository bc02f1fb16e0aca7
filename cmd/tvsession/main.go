package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/skoruppa/NuvioTV-sub003/config"
	"github.com/skoruppa/NuvioTV-sub003/internal/bootstrap"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	Out    io.Writer
	In     io.Reader
}

func main() {
	logger := bootstrap.InitLogger(slog.LevelWarn)

	if len(os.Args) < 2 {
		if err := printUsage(os.Stdout); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(os.Stderr); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cmdCtx := &commandContext{
		Ctx:    ctx,
		Logger: logger,
		Config: cfg,
		Out:    os.Stdout,
		In:     os.Stdin,
	}
	runErr := cmd.run(cmdCtx, os.Args[2:])
	stop()
	if runErr != nil {
		if errors.Is(runErr, flag.ErrHelp) {
			os.Exit(0) //nolint:forbidigo // -h is not a failure
		}
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"sign-in": {
			name:        "sign-in",
			description: "Sign in with email and password",
			run:         runSignIn,
		},
		"sign-up": {
			name:        "sign-up",
			description: "Create an account and sign in",
			run:         runSignUp,
		},
		"sign-out": {
			name:        "sign-out",
			description: "Sign out and forget the persisted session",
			run:         runSignOut,
		},
		"whoami": {
			name:        "whoami",
			description: "Print the current principal and effective user id",
			run:         runWhoami,
		},
		"tv-login": {
			name:        "tv-login",
			description: "Sign in by approving a code on another device",
			run:         runTVLogin,
		},
	}
}

func printUsage(w io.Writer) error {
	if err := writef(w, "Usage: tvsession <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(w, "Available commands:\n"); err != nil {
		return err
	}
	names := make([]string, 0, len(commands()))
	for name := range commands() {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := writef(w, "  %-12s %s\n", name, commands()[name].description); err != nil {
			return err
		}
	}
	return writef(w, "\nSessions outlive a single command only with SESSION_STORE=redis.\n")
}

type credentialOptions struct {
	Email    string
	Password string
}

func parseCredentialFlags(name string, args []string, in io.Reader) (credentialOptions, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts credentialOptions
	fs.StringVar(&opts.Email, "email", "", "Account email (required)")
	fs.StringVar(&opts.Password, "password", "", "Account password (read from stdin when empty)")
	if err := fs.Parse(args); err != nil {
		return credentialOptions{}, err
	}

	opts.Email = strings.TrimSpace(opts.Email)
	if opts.Email == "" {
		return credentialOptions{}, errors.New("--email is required")
	}
	if opts.Password == "" {
		pw, err := readLine(in)
		if err != nil {
			return credentialOptions{}, fmt.Errorf("read password: %w", err)
		}
		opts.Password = pw
	}
	return opts, nil
}

func readLine(in io.Reader) (string, error) {
	if in == nil {
		return "", errors.New("no input")
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func openServices(cmdCtx *commandContext) (*bootstrap.ServiceContainer, error) {
	services, err := bootstrap.NewServices(cmdCtx.Ctx, &bootstrap.ServiceDeps{
		Config: &cmdCtx.Config,
		Logger: cmdCtx.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build services: %w", err)
	}
	return services, nil
}

func closeServices(cmdCtx *commandContext, services *bootstrap.ServiceContainer) {
	if err := services.Close(); err != nil {
		cmdCtx.Logger.Warn("close services failed", "error", err)
	}
}

func runSignIn(cmdCtx *commandContext, args []string) error {
	opts, err := parseCredentialFlags("sign-in", args, cmdCtx.In)
	if err != nil {
		return err
	}
	services, err := openServices(cmdCtx)
	if err != nil {
		return err
	}
	defer closeServices(cmdCtx, services)

	sess, err := services.Account.SignIn(cmdCtx.Ctx, opts.Email, opts.Password)
	if err != nil {
		return err
	}
	return writef(cmdCtx.Out, "Signed in as %s (%s)\n", sess.User.Email, sess.User.ID)
}

func runSignUp(cmdCtx *commandContext, args []string) error {
	opts, err := parseCredentialFlags("sign-up", args, cmdCtx.In)
	if err != nil {
		return err
	}
	services, err := openServices(cmdCtx)
	if err != nil {
		return err
	}
	defer closeServices(cmdCtx, services)

	sess, err := services.Account.SignUp(cmdCtx.Ctx, opts.Email, opts.Password)
	if err != nil {
		return err
	}
	return writef(cmdCtx.Out, "Created account %s (%s)\n", sess.User.Email, sess.User.ID)
}

func runSignOut(cmdCtx *commandContext, _ []string) error {
	services, err := openServices(cmdCtx)
	if err != nil {
		return err
	}
	defer closeServices(cmdCtx, services)

	if err := services.Account.SignOut(cmdCtx.Ctx); err != nil {
		return err
	}
	return writeln(cmdCtx.Out, "Signed out")
}

func runWhoami(cmdCtx *commandContext, _ []string) error {
	services, err := openServices(cmdCtx)
	if err != nil {
		return err
	}
	defer closeServices(cmdCtx, services)

	return printWhoami(cmdCtx, services)
}

func printWhoami(cmdCtx *commandContext, services *bootstrap.ServiceContainer) error {
	sess, ok := services.Provider.CurrentSession(cmdCtx.Ctx)
	if !ok {
		return writeln(cmdCtx.Out, "Not signed in")
	}

	kind := "account"
	if sess.User.IsAnonymous {
		kind = "anonymous"
	}
	if err := writef(cmdCtx.Out, "User:      %s (%s)\n", sess.User.ID, kind); err != nil {
		return err
	}
	if sess.User.HasEmail() {
		if err := writef(cmdCtx.Out, "Email:     %s\n", sess.User.Email); err != nil {
			return err
		}
	}
	if !sess.ExpiresAt.IsZero() {
		if err := writef(cmdCtx.Out, "Expires:   %s\n", sess.ExpiresAt.Format("2006-01-02 15:04:05 MST")); err != nil {
			return err
		}
	}

	if services.Resolver == nil {
		return nil
	}
	effective, err := services.Resolver.EffectiveUserID(cmdCtx.Ctx, true)
	if err != nil {
		return fmt.Errorf("resolve effective user: %w", err)
	}
	return writef(cmdCtx.Out, "Effective: %s\n", effective)
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	_, err := fmt.Fprintln(w, args...)
	return err
}
