// Package main provides the local bridge for desktop shells. The UI talks
// to the sync core over REST and receives events over a WebSocket on
// localhost.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wahabsharif/premierspaces-app/backend/cmd/desktop/handlers"
	"github.com/wahabsharif/premierspaces-app/backend/internal/app"
	"github.com/wahabsharif/premierspaces-app/backend/internal/config"
	"github.com/wahabsharif/premierspaces-app/backend/internal/logging"
	"github.com/wahabsharif/premierspaces-app/backend/internal/metrics"
)

// routePattern labels metrics with the matched chi pattern.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// newRouter registers every bridge route.
func newRouter(a *app.App, hub *WSHub) http.Handler {
	syncHandler := handlers.NewSyncHandler(a.Sync, a.Scheduler, a.Queue, a.Monitor)
	sessionHandler := handlers.NewSessionHandler(a.Session)
	jobHandler := handlers.NewJobHandler(a.JobService, a.CostService)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware(routePattern))

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/ws", HandleWebSocket(hub))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok","service":"fieldsync-desktop"}`))
		})

		r.Get("/sync/status", syncHandler.Status)
		r.Post("/sync", syncHandler.Trigger)
		r.Get("/sync/pending", syncHandler.Pending)
		r.Post("/connectivity", syncHandler.SetConnectivity)

		r.Get("/session", sessionHandler.Get)
		r.Post("/session/login", sessionHandler.Login)
		r.Post("/session/logout", sessionHandler.Logout)

		r.Post("/jobs", jobHandler.CreateJob)
		r.Get("/jobs/local", jobHandler.LocalJobs)
		r.Get("/jobs/{jobID}/costs", jobHandler.ListCosts)
		r.Post("/jobs/{jobID}/costs", jobHandler.CreateCost)
	})
	return r
}

// bridge is a started core with its hub attached.
type bridge struct {
	app    *app.App
	hub    *WSHub
	detach []func()
}

func newBridge(cfg *config.Config, online bool) (*bridge, error) {
	hub := NewWSHub()
	a, err := app.New(cfg, app.Options{Online: online, Navigator: hubNavigator{hub: hub}})
	if err != nil {
		hub.Close()
		return nil, err
	}
	b := &bridge{app: a, hub: hub}
	b.detach = append(b.detach,
		hub.Attach(a.Bus),
		a.Monitor.Subscribe(func(online bool) {
			hub.Broadcast(EventConnectivity, map[string]interface{}{"online": online})
		}),
	)
	return b, nil
}

func (b *bridge) Close() {
	for _, d := range b.detach {
		d()
	}
	b.app.Close()
	b.hub.Close()
}

func main() {
	configFile := flag.String("config", "", "config file path")
	offline := flag.Bool("offline", false, "start with connectivity reported offline")
	flag.Parse()

	if err := serve(*configFile, !*offline); err != nil {
		logging.Error("desktop bridge failed", err)
		os.Exit(1)
	}
}

func serve(configFile string, online bool) error {
	loader, err := config.Load(configFile)
	if err != nil {
		return err
	}
	b, err := newBridge(loader.Config(), online)
	if err != nil {
		return err
	}
	defer b.Close()

	log := logging.Component("desktop")
	loader.Watch(func(cfg *config.Config) {
		logging.Get().SetLevel(logging.ParseLevel(cfg.Log.Level))
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	b.app.Start(ctx)

	srv := &http.Server{
		Addr:              b.app.Config.Server.Addr,
		Handler:           newRouter(b.app, b.hub),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("desktop bridge listening", map[string]interface{}{"addr": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down", nil)
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	b.app.Sync.AwaitIdle(b.app.Config.Sync.CompletionTimeout)
	return nil
}
