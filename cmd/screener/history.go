package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var historyLimit int

var historyCMD = &cobra.Command{
	Use:   "history",
	Short: "List recently recorded screens",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		rec := newRecorder(ctx, cfg, logger)
		defer rec.Close()

		runs, err := rec.LastRuns(ctx, historyLimit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(runs) == 0 {
			fmt.Fprintln(out, "no runs recorded")
			return nil
		}
		for _, r := range runs {
			fmt.Fprintf(out, "%s  %-36s  %3d/%-4d qualifying  %3d skipped  %s\n",
				r.RunDate.Format("2006-01-02"), r.RunID, r.QualifyingStocks, r.TotalStocks,
				r.SkippedStocks, strings.Join(r.Qualifying, ","))
		}
		return nil
	},
}

func init() {
	historyCMD.Flags().IntVarP(&historyLimit, "limit", "n", 10, "number of runs to show")
}
