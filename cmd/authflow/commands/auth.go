package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/loopbacklabs/authflow"
	"github.com/loopbacklabs/authflow/tokensource"
)

// authCommand returns the 'auth' subcommand for managing provider
// authorization.
func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage provider authorization",
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
		Usage: "Run the interactive authorization flow and save the token",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-browser",
				Usage: "do not launch the system browser, only print the URL",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "how long to wait for the authorization redirect",
			},
		},
		Action: authLoginAction,
	}
}

// authLogoutCommand returns the 'auth logout' subcommand.
func authLogoutCommand() *cli.Command {
	return &cli.Command{
		Name:   "logout",
		Usage:  "Clear the saved token",
		Action: authLogoutAction,
	}
}

// authStatusCommand returns the 'auth status' subcommand.
func authStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the saved token's validity",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "refresh",
				Usage: "refresh the token if it is expired",
			},
		},
		Action: authStatusAction,
	}
}

// authLoginAction runs one interactive authorization attempt and persists
// the resulting token.
func authLoginAction(ctx context.Context, cmd *cli.Command) error {
	cfg, shutdown, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(ctx) }()

	store, err := cfg.Storage.NewTokenStore()
	if err != nil {
		return fmt.Errorf("failed to create token store: %w", err)
	}

	flowCfg := cfg.FlowConfig()
	if flowCfg.ClientSecret == "" {
		secret, err := promptSecret(ctx, "Client secret: ")
		if err != nil {
			return err
		}
		flowCfg.ClientSecret = secret
	}
	flowCfg.SkipBrowser = cmd.Bool("no-browser")
	if timeout := cmd.Duration("timeout"); timeout > 0 {
		flowCfg.Timeout = timeout
	}
	flowCfg.OnAuthURL = func(authURL string) {
		fmt.Printf("Authorize this application by visiting:\n\n  %s\n\n", authURL)
	}

	flow, err := authflow.NewFlow(flowCfg)
	if err != nil {
		return err
	}

	token, err := flow.Authorize(ctx)
	if err != nil {
		return fmt.Errorf("authorization failed: %w", err)
	}

	if err := store.Save(ctx, token); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	fmt.Println()
	fmt.Println("=== Login Successful ===")
	if expiry := token.Expiry(); !expiry.IsZero() {
		fmt.Printf("Token valid until %s\n", expiry.Format(time.RFC1123))
	}
	fmt.Println("Token saved to configured storage")

	return nil
}

// authLogoutAction clears the persisted token.
func authLogoutAction(ctx context.Context, cmd *cli.Command) error {
	cfg, shutdown, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(ctx) }()

	store, err := cfg.Storage.NewTokenStore()
	if err != nil {
		return fmt.Errorf("failed to create token store: %w", err)
	}

	if err := store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}

	fmt.Println()
	fmt.Println("=== Logout Successful ===")
	fmt.Println("Credentials cleared from configured storage")

	return nil
}

// authStatusAction reports on the persisted token, optionally refreshing it.
func authStatusAction(ctx context.Context, cmd *cli.Command) error {
	cfg, shutdown, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(ctx) }()

	store, err := cfg.Storage.NewTokenStore()
	if err != nil {
		return fmt.Errorf("failed to create token store: %w", err)
	}

	if cmd.Bool("refresh") {
		if cfg.Provider.ClientSecret == "" {
			return fmt.Errorf("refresh requires provider.client_secret to be configured")
		}
		client := authflow.NewClient(cfg.Provider.ClientID, cfg.Provider.ClientSecret, cfg.Provider.TokenURL)
		source, err := tokensource.New(client, store)
		if err != nil {
			return err
		}
		token, err := source.Current(ctx)
		if err != nil {
			return fmt.Errorf("failed to obtain a valid token: %w", err)
		}
		printTokenStatus(token)
		return nil
	}

	token, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to read token store: %w", err)
	}
	if token == nil {
		fmt.Println("No saved token. Run 'authflow auth login' first.")
		return nil
	}
	printTokenStatus(token)
	return nil
}

func printTokenStatus(token *authflow.Token) {
	switch {
	case token.Expired():
		fmt.Println("Saved token is expired.")
	case token.Expiry().IsZero():
		fmt.Println("Saved token is valid (no known expiry).")
	default:
		fmt.Printf("Saved token is valid until %s.\n", token.Expiry().Format(time.RFC1123))
	}
	if token.Scope != "" {
		fmt.Printf("Scope: %s\n", token.Scope)
	}
	if token.RefreshToken != "" {
		fmt.Println("A refresh token is available; it will be used before re-prompting.")
	}
}

// promptSecret reads one line from the terminal with echo disabled.
// term.ReadPassword blocks uninterruptibly, so it runs on its own goroutine
// and the select lets ctx cancellation abandon the prompt.
func promptSecret(ctx context.Context, prompt string) (string, error) {
	fmt.Print(prompt)
	defer fmt.Println()

	type input struct {
		secret []byte
		err    error
	}
	inputCh := make(chan input, 1)

	go func() {
		secret, err := term.ReadPassword(int(os.Stdin.Fd()))
		inputCh <- input{secret: secret, err: err}
	}()

	select {
	case in := <-inputCh:
		if in.err != nil {
			return "", fmt.Errorf("reading secret: %w", in.err)
		}
		return string(in.secret), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
