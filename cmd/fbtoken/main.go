// Command fbtoken mints Firebase custom tokens and verifies ID tokens and
// session cookies from the command line.
//
//	fbtoken mint -uid USER [-claims JSON] [-tenant TENANT]
//	fbtoken verify [-session] [-check-revoked] TOKEN
//
// The project and credentials are read from the environment, or a .env file in
// the working directory. Setting FIREBASE_AUTH_EMULATOR_HOST mints and accepts
// unsigned tokens for the Auth emulator.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	firebase "firebase.google.com/go/v4"

	"github.com/curioswitch/go-firebasetoken/authtoken"
	"github.com/curioswitch/go-firebasetoken/gcpslog"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := loadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitError)
	}
	os.Exit(run(ctx, os.Args[1:], nil, os.Stdout, os.Stderr))
}

var errUsage = errors.New("usage")

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage:")
	fmt.Fprintln(w, "  fbtoken mint -uid USER [-claims JSON] [-tenant TENANT]")
	fmt.Fprintln(w, "  fbtoken verify [-session] [-check-revoked] TOKEN")
}

func run(ctx context.Context, args []string, environ map[string]string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return exitUsage
	}

	conf, err := parseConfig(environ)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}
	logger := slog.New(gcpslog.NewHandler(stderr,
		gcpslog.Level(conf.LogLevel),
		gcpslog.ProjectID(conf.ProjectID)))

	switch args[0] {
	case "mint":
		err = mint(ctx, conf, logger, args[1:], stdout, stderr)
	case "verify":
		err = verify(ctx, conf, logger, args[1:], stdout, stderr)
	default:
		usage(stderr)
		return exitUsage
	}

	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errUsage):
		return exitUsage
	default:
		logger.ErrorContext(ctx, "Command failed",
			slog.String("command", args[0]),
			slog.String("code", string(authtoken.CodeOf(err))),
			slog.Any("error", err))
		return exitError
	}
}

func mint(ctx context.Context, conf config, logger *slog.Logger, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("mint", flag.ContinueOnError)
	fs.SetOutput(stderr)
	uid := fs.String("uid", "", "User ID the token signs in as. Required.")
	claimsJSON := fs.String("claims", "", "Developer claims as a JSON object.")
	tenant := fs.String("tenant", conf.TenantID, "Tenant to mint the token for.")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *uid == "" || fs.NArg() != 0 {
		fs.Usage()
		return errUsage
	}

	var claims map[string]any
	if *claimsJSON != "" {
		if err := json.Unmarshal([]byte(*claimsJSON), &claims); err != nil {
			return fmt.Errorf("parsing claims: %w", err)
		}
	}

	conf.TenantID = *tenant
	client, err := newClient(ctx, conf, logger, false)
	if err != nil {
		return err
	}

	token, err := client.CustomTokenWithClaims(ctx, *uid, claims)
	if err != nil {
		return err
	}
	logger.DebugContext(ctx, "Minted custom token",
		slog.String("uid", *uid),
		slog.String("tenant", conf.TenantID))

	_, err = fmt.Fprintln(stdout, token)
	return err
}

func verify(ctx context.Context, conf config, logger *slog.Logger, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	session := fs.Bool("session", false, "Verify a session cookie instead of an ID token.")
	checkRevoked := fs.Bool("check-revoked", false, "Also check the token was not revoked. Looks up the user.")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errUsage
	}
	raw := fs.Arg(0)

	client, err := newClient(ctx, conf, logger, *checkRevoked)
	if err != nil {
		return err
	}

	var token *authtoken.Token
	switch {
	case *session && *checkRevoked:
		token, err = client.VerifySessionCookieAndCheckRevoked(ctx, raw)
	case *session:
		token, err = client.VerifySessionCookie(ctx, raw)
	case *checkRevoked:
		token, err = client.VerifyIDTokenAndCheckRevoked(ctx, raw)
	default:
		token, err = client.VerifyIDToken(ctx, raw)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(token.Claims)
}

func newClient(ctx context.Context, conf config, logger *slog.Logger, withUserLookup bool) (*authtoken.Client, error) {
	clientConf, err := conf.clientConfig(logger)
	if err != nil {
		return nil, err
	}

	if withUserLookup {
		// The Admin SDK reads credentials and the emulator host from the
		// environment itself.
		app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: conf.ProjectID})
		if err != nil {
			return nil, fmt.Errorf("initializing firebase: %w", err)
		}
		fbAuth, err := app.Auth(ctx)
		if err != nil {
			return nil, fmt.Errorf("initializing firebase auth: %w", err)
		}
		clientConf.UserLookup = authtoken.NewFirebaseUserLookup(fbAuth)
	}

	return authtoken.NewClient(ctx, clientConf)
}
