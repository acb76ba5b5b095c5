// Command consentctl drives one device session against a consent gate
// server: it evaluates the prompt for a page, confirms, declines and runs
// the anonymous consent migration the way the browser client does.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"user_consent_gate/internal/api"
	"user_consent_gate/internal/client"
	"user_consent_gate/internal/consent"
	"user_consent_gate/internal/logger"
	"user_consent_gate/internal/marker"
)

type options struct {
	baseURL  string
	token    string
	deviceDB string
	logLevel string
	timeout  time.Duration
}

// printPresenter renders prompt transitions as lines of text.
type printPresenter struct {
	out io.Writer
}

func (p printPresenter) Show()  { fmt.Fprintln(p.out, "prompt: shown") }
func (p printPresenter) Close() { fmt.Fprintln(p.out, "prompt: closed") }

// device is an opened session plus what must be released afterwards.
type device struct {
	session *client.Session
	store   *marker.SQLiteStore
	log     *zap.Logger
}

func (d *device) Close() {
	if err := d.store.Close(); err != nil {
		d.log.Warn("failed to close device storage", zap.Error(err))
	}
	d.log.Sync()
}

func openDevice(ctx context.Context, opts *options, out io.Writer) (*device, error) {
	log, err := logger.New(opts.logLevel, false)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	store, err := marker.OpenSQLiteStore(opts.deviceDB)
	if err != nil {
		return nil, err
	}

	httpClient := client.NewHTTPClient(opts.baseURL, opts.token, log)

	policy, err := httpClient.Policy(ctx)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to fetch settings: %w", err)
	}

	user, err := httpClient.CurrentUser(ctx)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to fetch current user: %w", err)
	}

	session := client.NewSession(httpClient, store, printPresenter{out: out}, policy, log)
	session.SetUser(user)

	return &device{session: session, store: store, log: log}, nil
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{
		baseURL:  envOr("CONSENT_URL", "http://localhost:8080"),
		token:    envOr("CONSENT_TOKEN", ""),
		deviceDB: envOr("CONSENT_DEVICE_DB", "consent-device.db"),
		logLevel: envOr("LOG_LEVEL", "warn"),
		timeout:  30 * time.Second,
	}

	root := &cobra.Command{
		Use:           "consentctl",
		Short:         "Drive a user consent session from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	root.PersistentFlags().StringVar(&opts.baseURL, "url", opts.baseURL, "Consent gate base URL (env CONSENT_URL)")
	root.PersistentFlags().StringVar(&opts.token, "token", opts.token, "Session token, empty for an anonymous visitor (env CONSENT_TOKEN)")
	root.PersistentFlags().StringVar(&opts.deviceDB, "device-db", opts.deviceDB, "Device local storage file (env CONSENT_DEVICE_DB)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", opts.logLevel, "Log level")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", opts.timeout, "Request timeout")

	withDevice := func(run func(ctx context.Context, d *device, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			d, err := openDevice(ctx, opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer d.Close()

			return run(ctx, d, args)
		}
	}

	var route string
	checkCmd := &cobra.Command{
		Use:   "check [path]",
		Short: "Evaluate the prompt for a page, migrating local consent first",
		Args:  cobra.MaximumNArgs(1),
		RunE: withDevice(func(ctx context.Context, d *device, args []string) error {
			loc := client.Location{Path: "/", RouteName: route}
			if len(args) == 1 {
				loc.Path = args[0]
			}
			action := d.session.MaybePrompt(ctx, loc)
			fmt.Fprintf(out, "action: %s\n", action)
			return nil
		}),
	}
	checkCmd.Flags().StringVar(&route, "route", "", "Route name of the page")

	confirmCmd := &cobra.Command{
		Use:   "confirm",
		Short: "Accept the consent prompt",
		Args:  cobra.NoArgs,
		RunE: withDevice(func(ctx context.Context, d *device, _ []string) error {
			d.session.MaybePrompt(ctx, client.Location{Path: "/"})
			confirmedAt, err := d.session.Confirm(ctx)
			if err != nil {
				return fmt.Errorf("failed to confirm: %w", err)
			}
			fmt.Fprintf(out, "confirmed_at: %s\n", confirmedAt)
			return nil
		}),
	}

	declineCmd := &cobra.Command{
		Use:   "decline",
		Short: "Decline the consent prompt and print the redirect target",
		Args:  cobra.NoArgs,
		RunE: withDevice(func(_ context.Context, d *device, _ []string) error {
			fmt.Fprintf(out, "redirect: %s\n", d.session.Decline())
			return nil
		}),
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Move anonymous consent on this device to the logged in user",
		Args:  cobra.NoArgs,
		RunE: withDevice(func(ctx context.Context, d *device, _ []string) error {
			result := d.session.Migrate(ctx)
			fmt.Fprintf(out, "migration: %s\n", result)
			if result.Status == client.MigrationFailed {
				return result.Err
			}
			return nil
		}),
	}

	var (
		secret string
		admin  bool
		ttl    time.Duration
	)
	tokenCmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue a session token signed with the server secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return fmt.Errorf("--secret is required (env AUTH_JWT_SECRET)")
			}
			token, err := api.IssueToken([]byte(secret), api.Session{UserID: args[0], Admin: admin}, ttl)
			if err != nil {
				return fmt.Errorf("failed to sign token: %w", err)
			}
			fmt.Fprintln(out, token)
			return nil
		},
	}
	tokenCmd.Flags().StringVar(&secret, "secret", envOr("AUTH_JWT_SECRET", ""), "Signing secret (env AUTH_JWT_SECRET)")
	tokenCmd.Flags().BoolVar(&admin, "admin", false, "Mark the session as staff")
	tokenCmd.Flags().DurationVar(&ttl, "ttl", api.DefaultTokenTTL, "Token lifetime")

	root.AddCommand(checkCmd, confirmCmd, declineCmd, migrateCmd, tokenCmd)
	return root
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	if err := newRootCmd(os.Stdout).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if errors.Is(err, consent.ErrFeatureDisabled) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
