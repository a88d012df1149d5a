package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/droid2api/droidproxy/internal/credentials"
)

// authCommand returns the 'auth' subcommand for managing upstream credentials.
func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage upstream authentication",
		Commands: []*cli.Command{
			authLoginCommand(),
			authLogoutCommand(),
			authStatusCommand(),
		},
	}
}

// authLoginCommand returns the 'auth login' subcommand.
func authLoginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Save a refresh token to the configured storage",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-verify",
				Usage: "store the token without exchanging it first",
			},
		},
		Action: authLoginAction,
	}
}

// authLogoutCommand returns the 'auth logout' subcommand.
func authLogoutCommand() *cli.Command {
	return &cli.Command{
		Name:   "logout",
		Usage:  "Clear stored tokens",
		Action: authLogoutAction,
	}
}

// authStatusCommand returns the 'auth status' subcommand.
func authStatusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Show which credential source the proxy would use",
		Action: authStatusAction,
	}
}

// authLoginAction stores a refresh token. Unless --no-verify is given the
// token is exchanged once, and the rotated pair is what gets stored.
func authLoginAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	persister, err := cfg.Credentials().Persister()
	if err != nil {
		return fmt.Errorf("failed to create credential storage: %w", err)
	}

	out := cmd.Root().Writer
	fmt.Fprintln(out, "=== Factory Login ===")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Paste a refresh token from an authenticated droid session.")

	token, err := readSecureInput(ctx, cmd.Root().Reader, out, "\nEnter refresh token: ")
	if err != nil {
		return err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("refresh token cannot be empty")
	}

	stored := credentials.Stored{RefreshToken: token, LastUpdated: time.Now().UTC()}

	if !cmd.Bool("no-verify") {
		exchanger := credentials.NewOAuthExchanger(cfg.Auth.TokenURL, cfg.Auth.ClientID, nil)
		pair, err := exchanger.Exchange(ctx, token)
		if err != nil {
			return fmt.Errorf("refresh token rejected: %w", err)
		}
		stored.AccessToken = pair.AccessToken
		if pair.RefreshToken != "" {
			stored.RefreshToken = pair.RefreshToken
		}
	}

	if err := persister.Save(ctx, stored); err != nil {
		return fmt.Errorf("failed to write token: %w", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "=== Login Successful ===")
	fmt.Fprintf(out, "Token saved to %s\n", persister)

	return nil
}

// authLogoutAction clears the proxy's tokens from the configured storage.
func authLogoutAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	persister, err := cfg.Credentials().Persister()
	if err != nil {
		return fmt.Errorf("failed to create credential storage: %w", err)
	}

	if err := persister.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}

	out := cmd.Root().Writer
	fmt.Fprintln(out, "=== Logout Successful ===")
	fmt.Fprintf(out, "Credentials cleared from %s\n", persister)

	return nil
}

// authStatusAction reports the credential source without contacting the
// token endpoint.
func authStatusAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	credCfg := cfg.Credentials()
	source, err := credentials.Resolve(ctx, credCfg, os.Getenv)
	if err != nil {
		return err
	}

	out := cmd.Root().Writer
	fmt.Fprintf(out, "source:  %s\n", source.Kind)

	if source.Kind != credentials.SourceRefreshFlow {
		return nil
	}

	fmt.Fprintf(out, "origin:  %s (%s)\n", source.Origin, source.Persister)

	stored, err := source.Persister.Load(ctx)
	if err != nil || stored.LastUpdated.IsZero() {
		fmt.Fprintln(out, "updated: unknown")
		return nil
	}
	fmt.Fprintf(out, "updated: %s\n", stored.LastUpdated.Local().Format(time.RFC3339))
	fmt.Fprintf(out, "refresh: %s\n", stored.LastUpdated.Add(cfg.Auth.RefreshInterval).Local().Format(time.RFC3339))
	fmt.Fprintf(out, "expires: %s\n", stored.LastUpdated.Add(cfg.Auth.TokenLifetime).Local().Format(time.RFC3339))

	return nil
}

// readSecureInput reads user input with hidden display and context cancellation support.
// Goroutine+select pattern required because term.ReadPassword has no native context support.
// Input that is not a terminal is read line by line.
func readSecureInput(ctx context.Context, in io.Reader, out io.Writer, prompt string) (string, error) {
	fmt.Fprint(out, prompt)
	defer fmt.Fprintln(out)

	type result struct {
		value string
		err   error
	}
	resultCh := make(chan result, 1)

	go func() {
		if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			inputBytes, err := term.ReadPassword(int(f.Fd()))
			resultCh <- result{value: string(inputBytes), err: err}
			return
		}
		line, err := bufio.NewReader(in).ReadString('\n')
		if errors.Is(err, io.EOF) && line != "" {
			err = nil
		}
		resultCh <- result{value: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-resultCh:
		if res.err != nil {
			return "", fmt.Errorf("failed to read input: %w", res.err)
		}
		return res.value, nil
	}
}
