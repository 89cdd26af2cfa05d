package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"EMAScreener/internal/scheduler"
)

var (
	runForce  bool
	runDryRun bool
)

var runCMD = &cobra.Command{
	Use:   "run",
	Short: "Run the screen once now",
	Long: `Screens the configured universe, writes the CSV report and delivers it.
A date that already completed is skipped unless --force is given. With --dry-run
the report is printed to stdout and nothing is written or sent.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.sched.RunOnce(ctx, scheduler.RunOptions{Force: runForce, DryRun: runDryRun})
		if err != nil {
			return err
		}
		if runDryRun {
			_, err := cmd.OutOrStdout().Write(res.CSV)
			return err
		}
		for _, derr := range res.DeliveryErrors {
			a.logger.Warn("delivery problem", zap.Error(derr))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d of %d stocks qualify (%d skipped), report: %s\n",
			res.Summary.QualifyingStocks, res.Summary.TotalStocks, res.Summary.SkippedStocks, res.Path)
		return nil
	},
}

func init() {
	runCMD.Flags().BoolVar(&runForce, "force", false, "re-run even if today's screen already completed")
	runCMD.Flags().BoolVar(&runDryRun, "dry-run", false, "print the report without writing, sending or recording it")
}
