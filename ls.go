package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/drivestash/drivestash/internal/backup"
	"github.com/drivestash/drivestash/internal/drive"
)

func newLsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls [host]",
		Short: "List remote backup entries",
		Long: `Without arguments, list the hosts under the backup root. With a host,
list that host's backup entries ordered by name.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := buildLogger()

			client, err := resolveClient(ctx, logger)
			if err != nil {
				return err
			}

			var folderID string

			if len(args) == 0 {
				resolver := drive.NewResolver(client, logger)

				rootID, lookErr := resolver.Lookup(ctx, resolvedCfg.BackupRoot, "root")
				if lookErr != nil {
					return lookErr
				}

				if rootID == "" {
					return fmt.Errorf("folder %q: %w", resolvedCfg.BackupRoot, backup.ErrMissingFolder)
				}

				folderID = rootID
			} else {
				hostID, lookErr := lookupHostFolder(ctx, client, logger, args[0])
				if lookErr != nil {
					return lookErr
				}

				folderID = hostID
			}

			nodes, err := backup.ListByName(ctx, client, folderID)
			if err != nil {
				return err
			}

			for _, node := range nodes {
				fmt.Fprintln(cmd.OutOrStdout(), node.Name)
			}

			return nil
		},
	}

	return cmd
}
