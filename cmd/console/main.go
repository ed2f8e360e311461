package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-auth-client/console"
	"github.com/jrsteele09/go-auth-client/identity"
	"github.com/jrsteele09/go-auth-client/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	setupLogging(c.GetLogLevel())

	if len(args) == 0 {
		printUsage(c.GetAppName())
		return fmt.Errorf("command required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command, rest := args[0], args[1:]
	if command == "-h" || command == "--help" || command == "help" {
		printUsage(c.GetAppName())
		return nil
	}

	app, err := console.New(c)
	if err != nil {
		return err
	}

	switch command {
	case "login":
		return runLogin(ctx, app, rest)
	case "register":
		return runRegister(ctx, app, rest)
	case "logout":
		app.Session().Logout(ctx)
		fmt.Println("signed out")
		return nil
	case "refresh":
		return runRefresh(ctx, app)
	case "whoami":
		return runWhoami(ctx, app)
	case "status":
		return runStatus(app)
	case "can":
		return runCan(ctx, app, rest)
	case "get":
		return runGet(ctx, app, rest)
	case "forgot":
		return runForgot(ctx, app, rest)
	case "reset":
		return runReset(ctx, app, rest)
	default:
		printUsage(c.GetAppName())
		return fmt.Errorf("unknown command: %q", command)
	}
}

func setupLogging(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
}

func printUsage(appName string) {
	figure.NewFigure(appName, "cybermedium", true).Print()
	fmt.Fprintf(os.Stderr, `
Usage: console <command> [flags]

Commands:
  login       Sign in with --email and --password
  register    Create an account with --name, --email and --password
  logout      Revoke the refresh credential and clear the session
  refresh     Renew the access credential
  whoami      Load and print the signed-in profile
  status      Print the stored credentials' state
  can PATH    Report whether the session may navigate to PATH
  get PATH    Send an authorized GET to PATH under the API URL
  forgot      Request a password reset email for --email
  reset       Set --password using the emailed --token
`)
}

func parse(name string, args []string, define func(fs *pflag.FlagSet)) (*pflag.FlagSet, error) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	if define != nil {
		define(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return fs, nil
}

func runLogin(ctx context.Context, app *console.Console, args []string) error {
	var req identity.LoginRequest
	if _, err := parse("login", args, func(fs *pflag.FlagSet) {
		fs.StringVar(&req.Email, "email", "", "account email")
		fs.StringVar(&req.Password, "password", os.Getenv("CONSOLE_PASSWORD"), "account password (or CONSOLE_PASSWORD)")
	}); err != nil {
		return err
	}
	if err := app.Session().Login(ctx, req); err != nil {
		return err
	}
	return printIdentity(app)
}

func runRegister(ctx context.Context, app *console.Console, args []string) error {
	var req identity.RegisterRequest
	if _, err := parse("register", args, func(fs *pflag.FlagSet) {
		fs.StringVar(&req.Name, "name", "", "display name")
		fs.StringVar(&req.Email, "email", "", "account email")
		fs.StringVar(&req.Password, "password", os.Getenv("CONSOLE_PASSWORD"), "account password (or CONSOLE_PASSWORD)")
	}); err != nil {
		return err
	}
	if err := app.Session().Register(ctx, req); err != nil {
		return err
	}
	return printIdentity(app)
}

func runRefresh(ctx context.Context, app *console.Console) error {
	if !app.Session().Authenticated() {
		return errors.New("not signed in")
	}
	if err := app.Session().Refresh(ctx); err != nil {
		return err
	}
	fmt.Println("access credential renewed")
	return nil
}

func runWhoami(ctx context.Context, app *console.Console) error {
	if !app.Session().Authenticated() {
		return errors.New("not signed in")
	}
	app.Start(ctx)
	if err := sessionEnded(app); err != nil {
		return err
	}
	return printIdentity(app)
}

func printIdentity(app *console.Console) error {
	profile := app.Session().Identity()
	if profile == nil {
		fmt.Println("signed in, profile unavailable")
		return nil
	}
	out, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runStatus(app *console.Console) error {
	s := app.Session()
	_, hasRefresh := s.RefreshToken()
	fmt.Printf("signed in:   %t\n", s.Authenticated())
	fmt.Printf("refreshable: %t\n", hasRefresh)
	if expiry, ok := s.AccessExpiry(); ok {
		fmt.Printf("expires:     %s (expired: %t)\n", expiry.Local().Format(time.RFC1123), s.AccessExpired())
	}
	return nil
}

func runCan(ctx context.Context, app *console.Console, args []string) error {
	fs, err := parse("can", args, nil)
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: console can PATH")
	}
	app.Start(ctx)
	result, err := app.Router().Navigate(fs.Arg(0))
	if err != nil {
		return err
	}
	if result.Allowed() {
		fmt.Println(result.Decision)
		return nil
	}
	fmt.Printf("%s -> %s\n", result.Decision, result.Target)
	return nil
}

func runGet(ctx context.Context, app *console.Console, args []string) error {
	fs, err := parse("get", args, nil)
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: console get PATH")
	}
	resp, err := app.Get(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := sessionEnded(app); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%s\n", resp.Status)
	_, err = io.Copy(os.Stdout, resp.Body)
	return err
}

func runForgot(ctx context.Context, app *console.Console, args []string) error {
	var email string
	if _, err := parse("forgot", args, func(fs *pflag.FlagSet) {
		fs.StringVar(&email, "email", "", "account email")
	}); err != nil {
		return err
	}
	if err := app.Identity().ForgotPassword(ctx, email); err != nil {
		return err
	}
	fmt.Println("reset email requested")
	return nil
}

func runReset(ctx context.Context, app *console.Console, args []string) error {
	var resetToken, password string
	if _, err := parse("reset", args, func(fs *pflag.FlagSet) {
		fs.StringVar(&resetToken, "token", "", "token from the reset email")
		fs.StringVar(&password, "password", os.Getenv("CONSOLE_PASSWORD"), "new password (or CONSOLE_PASSWORD)")
	}); err != nil {
		return err
	}
	if err := app.Identity().ResetPassword(ctx, resetToken, password); err != nil {
		return err
	}
	fmt.Println("password reset")
	return nil
}

// sessionEnded reports a renewal failure that logged the user out mid-command.
func sessionEnded(app *console.Console) error {
	select {
	case err := <-app.Terminations():
		return fmt.Errorf("session ended, sign in again: %w", err)
	default:
		return nil
	}
}
