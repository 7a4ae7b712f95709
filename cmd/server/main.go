package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"

	"github.com/baxromumarov/sale-hunter/internal/api"
	"github.com/baxromumarov/sale-hunter/internal/config"
	"github.com/baxromumarov/sale-hunter/internal/core"
	"github.com/baxromumarov/sale-hunter/internal/di"
	"github.com/baxromumarov/sale-hunter/internal/observability"
)

type options struct {
	Config string `long:"config" short:"c" env:"SALEHUNTER_CONFIG" description:"YAML config file"`
}

func main() {
	var opts options
	if _, err := flags.NewParser(&opts, flags.Default).Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return
		}
		os.Exit(2)
	}

	cfg, err := config.LoadWithEnv(opts.Config)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	observability.RegisterMetrics()

	dbStore, err := di.ProvideStore(cfg)
	if err != nil {
		slog.Error("failed to connect to store", "error", err)
		os.Exit(1)
	}
	if dbStore != nil {
		defer dbStore.Close()
	} else {
		slog.Warn("database disabled, sales are served from the last run only")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fetcher, client := di.ProvideFetchers(cfg)
	collectors := di.ProvideCollectors(cfg, fetcher, client)
	monitor := di.ProvideMonitor(cfg, collectors, di.ProvideProcessor(cfg, nil), dbStore, di.ProvideResolver(cfg))

	// Start scraping and retention loops
	monitor.Start(ctx)
	var apiStore api.Store
	if dbStore != nil {
		core.NewSchedulerService(dbStore, cfg.Run.CleanupEvery, cfg.Run.Retention).Start(ctx)
		apiStore = dbStore
	}

	srv := api.NewServer(apiStore, monitor, api.Options{
		CORSOrigins: cfg.Server.CORSOrigins,
		StaticDir:   cfg.Server.StaticDir,
	})

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("starting server", "port", cfg.Server.Port, "collectors", len(collectors))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
