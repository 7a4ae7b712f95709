package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"

	"github.com/baxromumarov/sale-hunter/internal/config"
	"github.com/baxromumarov/sale-hunter/internal/di"
	"github.com/baxromumarov/sale-hunter/internal/export"
	"github.com/baxromumarov/sale-hunter/internal/store"
)

type options struct {
	Config string `long:"config" short:"c" env:"SALEHUNTER_CONFIG" description:"YAML config file"`
	CSV    string `long:"csv" description:"CSV output path (defaults to export.csv_path)"`
	JSON   string `long:"json" description:"JSON report path (defaults to export.json_path)"`
	Layout string `long:"layout" choice:"legacy" choice:"full" description:"CSV layout"`
	NoDB   bool   `long:"no-db" description:"Skip the database even if one is configured"`
	Debug  bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
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

	if err := run(opts); err != nil {
		slog.Error("monitor run failed", "error", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	cfg, err := config.LoadWithEnv(opts.Config)
	if err != nil {
		return err
	}
	if opts.Debug {
		cfg.Log.Level = "debug"
	}
	if opts.NoDB {
		cfg.Database.Enabled = false
	}
	if opts.CSV != "" {
		cfg.Export.CSVPath = opts.CSV
	}
	if opts.JSON != "" {
		cfg.Export.JSONPath = opts.JSON
	}
	if opts.Layout != "" {
		cfg.Export.Layout = opts.Layout
	}
	slog.SetDefault(cfg.NewLogger())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var dbStore *store.Store
	if cfg.Database.Enabled {
		dbStore, err = di.ProvideStore(cfg)
		if err != nil {
			return err
		}
		defer dbStore.Close()
	}

	fetcher, client := di.ProvideFetchers(cfg)
	collectors := di.ProvideCollectors(cfg, fetcher, client)
	monitor := di.ProvideMonitor(cfg, collectors, di.ProvideProcessor(cfg, nil), dbStore, di.ProvideResolver(cfg))

	slog.Info("starting monitor run", "collectors", len(collectors), "entities", len(cfg.KnownEntities()))
	res, runErr := monitor.RunOnce(ctx)
	if len(res.Report.Listings) == 0 && runErr != nil {
		return runErr
	}

	report := res.Report
	if cfg.Export.CSVPath != "" {
		err := export.WriteFile(cfg.Export.CSVPath, func(w io.Writer) error {
			return export.WriteCSV(w, report.Listings, export.Layout(cfg.Export.Layout))
		})
		if err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
		slog.Info("csv written", "path", cfg.Export.CSVPath, "rows", len(report.Listings))
	}
	if cfg.Export.JSONPath != "" {
		err := export.WriteFile(cfg.Export.JSONPath, func(w io.Writer) error {
			return export.WriteJSON(w, report)
		})
		if err != nil {
			return fmt.Errorf("write json: %w", err)
		}
		slog.Info("json written", "path", cfg.Export.JSONPath)
	}

	for name, msg := range res.CollectorErrors {
		slog.Warn("collector reported errors", "collector", name, "error", msg)
	}
	slog.Info("monitor run complete",
		"run_id", res.RunID,
		"accepted", report.Accepted,
		"estimated", report.Estimated,
		"rejected", report.Rejected,
		"duplicates", report.Duplicates,
		"alerts_sent", res.AlertsSent,
	)
	return runErr
}
