package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"EMAScreener/internal/scheduler"
)

var runOnStart bool

var daemonCMD = &cobra.Command{
	Use:   "daemon",
	Short: "Run the daily schedule and answer Telegram commands",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		loc, err := a.cfg.Location()
		if err != nil {
			return err
		}
		if err := a.sched.Register(a.cfg.Schedule.DailyCron, loc); err != nil {
			return err
		}
		a.sched.Start()
		defer a.sched.Stop()

		if a.telegram != nil {
			go a.telegram.StartPolling(ctx, a.sched.HandleCommand)
			a.logger.Info("telegram polling started")
		}

		if runOnStart {
			a.logger.Info("run-on-start enabled, screening now")
			go func() {
				if _, err := a.sched.RunOnce(ctx, scheduler.RunOptions{}); err != nil {
					a.logger.Warn("startup screen not completed", zap.Error(err))
				}
			}()
		}

		a.logger.Info("screener daemon running",
			zap.String("cron", a.cfg.Schedule.DailyCron),
			zap.String("timezone", loc.String()))
		<-ctx.Done()
		a.logger.Info("shutdown signal received, stopping")
		return nil
	},
}

func init() {
	daemonCMD.Flags().BoolVar(&runOnStart, "run-on-start", os.Getenv("RUN_ON_START") == "true", "screen immediately after starting")
}
