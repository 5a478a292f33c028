package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/use-agent/brandscrape/api"
	"github.com/use-agent/brandscrape/api/handler"
	"github.com/use-agent/brandscrape/cache"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the HTTP API.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		slog.Info("brandscrape starting",
			"host", cfg.Server.Host,
			"port", cfg.Server.Port,
			"mode", cfg.Server.Mode,
			"environment", cfg.Ops.Environment,
			"paused", cfg.Ops.KillSwitch,
		)

		a, err := newApp(ctx, cfg)
		if err != nil {
			return fmt.Errorf("initialise scraper: %w", err)
		}
		defer a.Close()

		cc := cache.New(cfg.Cache.MaxEntries)
		defer cc.Close()

		svc := &handler.Service{
			Runner:     a.orch,
			Config:     cfg,
			Vocabulary: a.vocab,
			Cache:      cc,
			Log:        a.logs,
			Status:     a.status,
		}
		router := api.NewRouter(cfg, svc, time.Now())

		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		srv := &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			slog.Info("HTTP server listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		case <-ctx.Done():
			slog.Info("shutdown signal received")
		}

		// In-flight scrapes get up to the server timeout to finish.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Scraper.ServerTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server forced shutdown", "error", err)
		} else {
			slog.Info("HTTP server drained gracefully")
		}
		slog.Info("brandscrape stopped")
		return nil
	},
}
