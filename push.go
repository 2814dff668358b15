package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/drivestash/drivestash/internal/backup"
	"github.com/drivestash/drivestash/internal/catalog"
	"github.com/drivestash/drivestash/internal/drive"
)

func newPushCmd() *cobra.Command {
	var flagHost string

	cmd := &cobra.Command{
		Use:   "push <path>",
		Short: "Mirror a file or directory into today's backup set",
		Long: `Upload a local file or directory tree into the remote folder
<backup root>/<hostname>/<date>, creating any missing folders. Sibling files
upload concurrently; per-file failures are collected and reported at the end
without stopping the rest of the batch.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := buildLogger()
			started := time.Now()

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

			resolver := drive.NewResolver(client, logger)

			targetID, err := resolver.EnsurePath(ctx,
				[]string{resolvedCfg.BackupRoot, host, backup.DateFolder(started)}, "root")
			if err != nil {
				return err
			}

			uploader := backup.NewTreeUploader(client, resolver, resolvedCfg.UploadWorkers, logger)

			stats, uploadErr := uploader.UploadTree(ctx, args[0], targetID)

			recordRun(ctx, logger, catalog.Run{
				StartedAt: started,
				Command:   "push",
				Host:      host,
				Detail:    args[0],
				Files:     stats.Files,
				Bytes:     stats.Bytes,
				Failures:  countFailures(uploadErr),
			})

			if uploadErr != nil {
				return uploadErr
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Pushed %s to %s/%s/%s\n",
				args[0], resolvedCfg.BackupRoot, host, backup.DateFolder(started))

			return nil
		},
	}

	cmd.Flags().StringVar(&flagHost, "host", "", "override the per-host folder name")

	return cmd
}

// recordRun appends the outcome to the local catalog. Catalog trouble is
// logged, never fatal — bookkeeping must not fail a completed backup.
func recordRun(ctx context.Context, logger *slog.Logger, run catalog.Run) {
	cat, err := catalog.Open(ctx, resolvedCfg.ResolveCatalogPath(), logger)
	if err != nil {
		logger.Warn("run catalog unavailable", slog.String("error", err.Error()))
		return
	}
	defer cat.Close()

	if err := cat.RecordRun(ctx, run); err != nil {
		logger.Warn("recording run failed", slog.String("error", err.Error()))
	}
}

// countFailures reports how many per-item errors an aggregated batch error
// carries. A nil error is zero failures; a non-joined error counts as one.
func countFailures(err error) int {
	if err == nil {
		return 0
	}

	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		return len(joined.Unwrap())
	}

	return 1
}
