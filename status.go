package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/drivestash/drivestash/internal/catalog"
)

// statusRunLimit caps how many catalog rows status prints.
const statusRunLimit = 20

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show recent backup runs",
		Long:  "Print the most recent runs recorded in the local run catalog.\nPurely local; no provider calls are made.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger := buildLogger()

			cat, err := catalog.Open(ctx, resolvedCfg.ResolveCatalogPath(), logger)
			if err != nil {
				return err
			}
			defer cat.Close()

			runs, err := cat.RecentRuns(ctx, statusRunLimit)
			if err != nil {
				return err
			}

			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No recorded runs.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 8, 2, ' ', 0)
			fmt.Fprintln(w, "WHEN\tCOMMAND\tHOST\tFILES\tFAILURES\tDETAIL")

			for _, run := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
					run.StartedAt.Local().Format("2006-01-02 15:04"),
					run.Command, run.Host, run.Files, run.Failures, run.Detail)
			}

			return w.Flush()
		},
	}
}
