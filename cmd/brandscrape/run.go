package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/use-agent/brandscrape/models"
	"github.com/use-agent/brandscrape/orchestrator"
	"github.com/use-agent/brandscrape/retailers"
	"github.com/use-agent/brandscrape/scrapelog"
	"github.com/use-agent/brandscrape/webhook"
)

var (
	runLimit     int
	runMaxBrands int
	runCSV       string
	runOut       string
)

func init() {
	runCmd.Flags().IntVar(&runLimit, "limit", retailers.DefaultPilotLimit, "Number of pilot retailers to scrape (1-500).")
	runCmd.Flags().IntVar(&runMaxBrands, "max-brands", 0, "Stop once this many brands are collected overall (0 = no limit).")
	runCmd.Flags().StringVar(&runCSV, "csv", "", "Retailer list CSV (default RETAILERS_CSV).")
	runCmd.Flags().StringVar(&runOut, "out", "", "Output JSON file (default OUTPUT_PATH).")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run [--limit N] [--max-brands M] [--csv path] [--out path]",
	Short: "Scrapes the pilot retailers and writes their brands to a JSON file.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		csvPath := firstNonEmpty(runCSV, cfg.Ops.RetailersCSV)
		outPath := firstNonEmpty(runOut, cfg.Ops.OutputPath)
		if runMaxBrands < 0 {
			return errors.New("--max-brands must not be negative")
		}

		list, err := retailers.LoadFile(csvPath)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			return fmt.Errorf("no retailers with a brand list URL in %s", csvPath)
		}

		a, err := newApp(ctx, cfg)
		if err != nil {
			return fmt.Errorf("initialise scraper: %w", err)
		}
		defer a.Close()

		pilot := retailers.Pilot(list, retailers.PilotOptions{Limit: runLimit, TryLast: a.sites.TryLast})
		if len(pilot) == 0 {
			return fmt.Errorf("no active high-priority retailers in %s", csvPath)
		}
		tasks := retailers.Tasks(pilot)
		slog.Info("pilot run starting", "retailers", len(tasks), "max_brands", runMaxBrands, "out", outPath)

		out := newOutputFile(outPath, cfg.Ops.Environment)
		rec := scrapelog.NewRecorder(a.logs, a.status)
		rec.Start(len(tasks), runMaxBrands)

		opts := rec.Hooks(orchestrator.RunOptions{
			MaxRetries: cfg.Scraper.MaxRetries,
			GlobalCap:  runMaxBrands,
			Vocabulary: a.vocab,
			OnProgress: func(p orchestrator.Progress) {
				if p.Skipped {
					return
				}
				if err := out.Write(p.Records, false); err != nil {
					slog.Warn("output write failed", "path", outPath, "error", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "[%d/%d] %s: %d brands%s\n", p.Index, p.Total, p.Source, p.Added, failureSuffix(p))
			},
		})

		started := time.Now()
		records, err := a.orch.Run(ctx, tasks, opts)
		if err != nil {
			rec.End(0, false)
			return err
		}
		partial := ctx.Err() != nil
		rec.End(len(records), len(records) > 0)

		if err := out.Write(records, partial); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d brands from %d retailers in %s -> %s\n",
			len(records), len(tasks), time.Since(started).Round(time.Second), outPath)

		sender := webhook.New(cfg.Webhook.URL, cfg.Webhook.Secret)
		if sender.Enabled() && len(records) > 0 && !partial {
			if err := sender.DeliverWithRetry(ctx, out.Payload(records, partial)); err != nil {
				return fmt.Errorf("deliver webhook: %w", err)
			}
		}
		return nil
	},
}

func failureSuffix(p orchestrator.Progress) string {
	switch {
	case p.Err == "":
		return ""
	case p.Blocked:
		return " (blocked: " + p.Err + ")"
	default:
		return " (" + p.Err + ")"
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// payloadFor wraps records with run metadata.
func payloadFor(records []models.BrandRecord, partial bool, env string) models.Payload {
	p := models.NewPayload(records)
	p.Meta.PartialTimeout = partial
	p.Meta.Environment = env
	return p
}
