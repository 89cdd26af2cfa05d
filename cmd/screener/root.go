package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCMD = &cobra.Command{
	Use:   "screener",
	Short: "Daily EMA-50 pullback screener",
	Long: `Screens a universe of stocks for a pullback to the 50-day EMA:
the latest daily low trades below the EMA while the close finishes above it.
Qualifying stocks are written to a CSV report and delivered by email and Telegram.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCMD.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	def := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		def = v
	}
	rootCMD.PersistentFlags().StringVarP(&configPath, "config", "c", def, "path to the YAML config file")

	rootCMD.AddCommand(runCMD, daemonCMD, inspectCMD, historyCMD)
}
