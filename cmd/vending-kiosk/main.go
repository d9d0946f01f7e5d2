// Package main boots the vending kiosk HTTP server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/fairyhunter13/vending-kiosk/internal/config"
	httpapi "github.com/fairyhunter13/vending-kiosk/internal/http"
	"github.com/fairyhunter13/vending-kiosk/internal/i18n"
	"github.com/fairyhunter13/vending-kiosk/internal/notify"
	"github.com/fairyhunter13/vending-kiosk/internal/obs"
	"github.com/fairyhunter13/vending-kiosk/internal/orchestrator"
	"github.com/fairyhunter13/vending-kiosk/internal/queue"
	"github.com/fairyhunter13/vending-kiosk/internal/session"
	"github.com/fairyhunter13/vending-kiosk/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		obs.Logger.Error("config_invalid", "error", err)
		os.Exit(1)
	}
	obs.InitLogger(cfg.LogLevel, cfg.LogFormat)
	obs.Logger.Info("service_starting", "vending_api_url", cfg.VendingAPIURL, "action_policy", cfg.ActionPolicy)

	catalog, err := i18n.Load(cfg.DefaultLocale)
	if err != nil {
		obs.Logger.Error("catalog_load_failed", "error", err)
		os.Exit(1)
	}
	resolver := i18n.NewResolver(catalog)

	reg := obs.NewRegistry()
	metrics := obs.NewMetrics(reg)
	clock := clockwork.NewRealClock()

	client := session.New(session.Config{
		BaseURL: cfg.VendingAPIURL,
		Timeout: cfg.RequestTimeout,
		Metrics: metrics,
	})
	notes := notify.NewManager(clock, metrics)
	orch := orchestrator.New(client, notes, resolver, orchestrator.Options{
		Currency:    cfg.Currency,
		NotifyTTL:   cfg.NotifyTTL,
		DispenseTTL: cfg.DispenseNotifyTTL,
		Clock:       clock,
		Metrics:     metrics,
	})

	st := store.New()
	q := queue.New(cfg.ActionBacklogMax)
	mgr := queue.NewManager(cfg, q, st, orch, metrics)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr.Start(ctx)

	app := httpapi.NewApp(cfg, st, mgr, notes, resolver, reg, metrics)
	mux := httpapi.NewRouter(app)

	// Initial load runs once, through the same queue as user actions.
	if _, err := mgr.Enqueue(orchestrator.Action{Kind: orchestrator.KindLoad, Locale: catalog.Fallback()}); err != nil {
		obs.Logger.Error("initial_load_rejected", "error", err)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		obs.Logger.Info("http_listen", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			obs.Logger.Error("http_server_error", "error", err)
			os.Exit(1)
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigc
	obs.Logger.Info("shutdown_signal", "signal", s.String())

	app.StartShutdown()
	obs.Logger.Info("shutdown_drain_begin", "backlog_size", mgr.BacklogSize(), "busy", mgr.Busy())

	ctxDrain, cancelDrain := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelDrain()
	if drained := mgr.DrainUntil(ctxDrain); !drained {
		obs.Logger.Warn("shutdown_drain_timeout")
	} else {
		obs.Logger.Info("shutdown_drain_complete")
	}

	app.Hub.Stop()
	ctxSrv, cancelSrv := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelSrv()
	if err := srv.Shutdown(ctxSrv); err != nil {
		obs.Logger.Error("http_shutdown_error", "error", err)
	}
	mgr.Stop()
	obs.Logger.Info("service_stopped")
}
