package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/wahabsharif/premierspaces-app/backend/internal/config"
	"github.com/wahabsharif/premierspaces-app/backend/internal/logging"
)

func newRunCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the sync core until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts)
		},
	}
}

func run(ctx context.Context, opts *rootOptions) error {
	a, loader, err := loadApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	log := logging.Component("core")
	loader.Watch(func(cfg *config.Config) {
		logging.Get().SetLevel(logging.ParseLevel(cfg.Log.Level))
		log.Info("configuration reloaded", map[string]interface{}{"file": loader.File()})
	})

	a.Start(ctx)

	if addr := a.Config.Server.MetricsAddr; addr != "" {
		srv := &http.Server{Addr: addr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics listener failed", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
		log.Info("metrics listening", map[string]interface{}{"addr": addr})
	}

	<-ctx.Done()
	log.Info("shutting down", nil)
	if !a.Sync.AwaitIdle(a.Config.Sync.CompletionTimeout) {
		log.Warn("sync still running at shutdown", nil)
	}
	return nil
}
