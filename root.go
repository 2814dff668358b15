package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/drivestash/drivestash/internal/config"
	"github.com/drivestash/drivestash/internal/credstore"
	"github.com/drivestash/drivestash/internal/drive"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagVerbose    bool
	flagQuiet      bool
	flagJSONLog    bool
)

// resolvedCfg holds the effective configuration loaded by PersistentPreRunE.
var resolvedCfg *config.Config

// httpClientTimeout bounds every provider round-trip. Provider calls can
// hang indefinitely without it.
const httpClientTimeout = 5 * time.Minute

// defaultHTTPClient returns the HTTP client shared by all API calls.
func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: httpClientTimeout}
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "drivestash",
		Short:   "Host-scoped backup mirroring to Google Drive",
		Long:    "drivestash mirrors local files into a per-host, per-date folder tree\non Google Drive and enforces a retention policy on old backup sets.",
		Version: version,
		// Silence Cobra's default error/usage printing — main handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadConfig()
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")
	cmd.PersistentFlags().BoolVar(&flagJSONLog, "json-log", false, "emit JSON log lines regardless of terminal")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newPushCmd())
	cmd.AddCommand(newPruneCmd())
	cmd.AddCommand(newRestoreCmd())
	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

// loadConfig resolves the effective configuration and stores it in
// resolvedCfg for use by subcommands.
func loadConfig() error {
	path := flagConfigPath
	if path == "" {
		path = config.DefaultConfigPath()
	}

	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolvedCfg = cfg

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level is the baseline; --verbose and --quiet
// override it because CLI flags always win. Text output on terminals, JSON
// when piped or when --json-log is set.
func buildLogger() *slog.Logger {
	level := slog.LevelInfo

	if resolvedCfg != nil {
		switch resolvedCfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelWarn
	}

	opts := &slog.HandlerOptions{Level: level}

	if flagJSONLog || !isatty.IsTerminal(os.Stderr.Fd()) {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}

	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// resolveClient runs the credential barrier and returns a ready Drive
// client. No other network operation starts before this returns.
func resolveClient(ctx context.Context, logger *slog.Logger) (*drive.Client, error) {
	store := credstore.New(resolvedCfg.ResolveCredentialsPath())
	httpClient := defaultHTTPClient()

	auth := drive.NewAuthenticator(store, promptForCode, httpClient, logger)

	creds, err := auth.EnsureAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	return drive.NewClient(drive.DefaultBaseURL, drive.DefaultUploadURL, httpClient, creds, logger), nil
}

// promptForCode presents the authorization URL on the terminal and reads
// the one-time code the operator pasted back.
func promptForCode(authURL string) (string, error) {
	fmt.Fprintf(os.Stderr, "Open this URL in your browser and authorize access:\n\n  %s\n\nEnter the code: ", authURL)

	var code string
	if _, err := fmt.Scanln(&code); err != nil {
		return "", fmt.Errorf("reading authorization code: %w", err)
	}

	return code, nil
}
