package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/drivestash/drivestash/internal/backup"
	"github.com/drivestash/drivestash/internal/catalog"
	"github.com/drivestash/drivestash/internal/drive"
)

func newPruneCmd() *cobra.Command {
	var (
		flagDays int
		flagHost string
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete backup sets older than the retention window",
		Long: `Delete every child of this host's backup folder whose last-modified time
precedes now minus the retention window. An empty candidate list means
nothing to delete. Per-item delete failures are collected and reported at
the end without stopping the rest.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger := buildLogger()
			started := time.Now()

			days := flagDays
			if days == 0 {
				days = resolvedCfg.RetentionDays
			}

			host := flagHost
			if host == "" {
				var err error

				host, err = backup.HostFolder()
				if err != nil {
					return fmt.Errorf("determining hostname: %w", err)
				}
			}

			client, err := resolveClient(ctx, logger)
			if err != nil {
				return err
			}

			hostFolderID, err := lookupHostFolder(ctx, client, logger, host)
			if err != nil {
				return err
			}

			purger := backup.NewPurger(client, logger)

			deleted, purgeErr := purger.PurgeOlderThan(ctx, hostFolderID, days)

			recordRun(ctx, logger, catalog.Run{
				StartedAt: started,
				Command:   "prune",
				Host:      host,
				Detail:    fmt.Sprintf("window=%dd", days),
				Files:     deleted,
				Failures:  countFailures(purgeErr),
			})

			if purgeErr != nil {
				return purgeErr
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d backup entries older than %d days\n", deleted, days)

			return nil
		},
	}

	cmd.Flags().IntVar(&flagDays, "days", 0, "retention window in days (default from config)")
	cmd.Flags().StringVar(&flagHost, "host", "", "override the per-host folder name")

	return cmd
}

// lookupHostFolder resolves <backup root>/<host> without creating anything.
// Either folder missing is reported as backup.ErrMissingFolder — prune and
// restore never invent remote structure.
func lookupHostFolder(ctx context.Context, client *drive.Client, logger *slog.Logger, host string) (string, error) {
	resolver := drive.NewResolver(client, logger)

	rootID, err := resolver.Lookup(ctx, resolvedCfg.BackupRoot, "root")
	if err != nil {
		return "", err
	}

	if rootID == "" {
		return "", fmt.Errorf("folder %q: %w", resolvedCfg.BackupRoot, backup.ErrMissingFolder)
	}

	hostID, err := resolver.Lookup(ctx, host, rootID)
	if err != nil {
		return "", err
	}

	if hostID == "" {
		return "", fmt.Errorf("folder %q under %q: %w", host, resolvedCfg.BackupRoot, backup.ErrMissingFolder)
	}

	return hostID, nil
}
