package main

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/use-agent/brandscrape/scrapelog"
)

var reportDays int

func init() {
	reportCmd.Flags().IntVar(&reportDays, "days", 0, "Only include logs from the last N days (0 = all).")
	rootCmd.AddCommand(reportCmd)
}

var reportCmd = &cobra.Command{
	Use:   "report [--days N]",
	Short: "Prints per-retailer reliability from the scrape logs.",
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := scrapelog.NewLogger(cfg.Ops.LogDir).Report(reportDays)
		if err != nil {
			return err
		}
		renderReport(cmd.OutOrStdout(), report)
		return nil
	},
}

// renderReport prints one row per source.
func renderReport(w io.Writer, r *scrapelog.Report) {
	if len(r.BySource) == 0 {
		fmt.Fprintln(w, "no site results in the scrape logs")
		return
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Source", "Runs", "Successes", "Success %", "Brands", "Blocked", "Last error"})
	for _, s := range r.BySource {
		lastErr := ""
		if s.LastError != nil {
			lastErr = truncate(*s.LastError, 60)
		}
		t.AppendRow(table.Row{s.Source, s.Runs, s.Successes, fmt.Sprintf("%.1f", s.SuccessRatePct), s.TotalBrands, s.BlockedCount, lastErr})
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d log files", len(r.LogFiles))})
	t.Render()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
