package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"EMAScreener/internal/report"
)

var inspectCMD = &cobra.Command{
	Use:   "inspect [report.csv]",
	Short: "Validate a report file and print it as a table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		rows, err := report.ParseTable(f)
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		return printRows(cmd.OutOrStdout(), rows)
	},
}

func printRows(out io.Writer, rows []report.Row) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tDATE\tLOW\tCLOSE\tEMA50\tVOLUME\tNAME")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%.2f\t%.2f\t%d\t%s\n",
			r.Symbol, r.Date.Format("2006-01-02"), r.Low, r.Close, r.EMA50, r.Volume, r.Name)
	}
	fmt.Fprintf(w, "\n%d qualifying\n", len(rows))
	return w.Flush()
}
