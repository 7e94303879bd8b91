package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/intervalmerge/internal/core"
	"github.com/JonMunkholm/intervalmerge/internal/web"
	"github.com/spf13/cobra"
)

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the report page and JSON API, and run scheduled jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
}

// serve runs until ctx is cancelled, then shuts down within the configured
// timeout.
func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	slog.Info("configuration loaded",
		"addr", cfg.Server.Addr(),
		"input_folder", cfg.Input.Folder,
		"output_folder", cfg.Output.Folder,
		"history", cfg.History.Driver,
		"export_max_concurrent", cfg.Export.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
		"api_key_required", cfg.Security.RequireAPIKey,
	)

	jobCtx, cancelJobs := context.WithCancel(ctx)
	defer cancelJobs()

	scheduler, err := core.NewScheduler(jobCtx, a.service, core.ScheduleConfig{
		Folder:       cfg.Input.Folder,
		ValidateSpec: cfg.Schedule.Validate,
		PruneSpec:    cfg.Schedule.Prune,
		Retention:    cfg.Schedule.Retention,
	})
	if err != nil {
		return err
	}
	if scheduler.Jobs() > 0 {
		scheduler.Start()
		defer scheduler.Stop()
	}

	server := web.NewServer(a.service, cfg)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down...")
	cancelJobs()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	slog.Info("server stopped")
	return nil
}
