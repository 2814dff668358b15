package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/drivestash/drivestash/internal/backup"
	"github.com/drivestash/drivestash/internal/catalog"
)

func newRestoreCmd() *cobra.Command {
	var flagOut string

	cmd := &cobra.Command{
		Use:   "restore <host>",
		Short: "Fetch the latest restorable backup set for a host",
		Long: `List the host's backup folder ordered by name, locate the most recent
full-backup marker, and download that entry plus every subsequent
incremental entry into a staging directory. The staging path is printed on
success; unpacking and decryption are up to the archive tooling.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := buildLogger()
			started := time.Now()
			host := args[0]

			client, err := resolveClient(ctx, logger)
			if err != nil {
				return err
			}

			hostFolderID, err := lookupHostFolder(ctx, client, logger, host)
			if err != nil {
				return err
			}

			nodes, err := backup.ListByName(ctx, client, hostFolderID)
			if err != nil {
				return err
			}

			set, err := backup.SelectLatest(nodes)
			if err != nil {
				return err
			}

			ids := make([]string, len(set))
			names := make([]string, len(set))

			for i, node := range set {
				ids[i] = node.ID
				names[i] = node.Name
			}

			fetcher := backup.NewFetcher(client, logger)

			staging, err := fetcher.Fetch(ctx, ids, names)
			if err != nil {
				return err
			}

			if flagOut != "" {
				if err := os.Rename(staging, flagOut); err != nil {
					return fmt.Errorf("moving staging directory to %s: %w", flagOut, err)
				}

				staging = flagOut
			}

			recordRun(ctx, logger, catalog.Run{
				StartedAt: started,
				Command:   "restore",
				Host:      host,
				Detail:    staging,
				Files:     len(set),
			})

			fmt.Fprintln(cmd.OutOrStdout(), staging)

			return nil
		},
	}

	cmd.Flags().StringVarP(&flagOut, "out", "o", "", "move the staged files to this directory")

	return cmd
}
