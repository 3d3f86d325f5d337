// Command universed refreshes the screened instrument universe: it pulls the
// full KOSPI and KOSDAQ listing tables from the broker, applies the
// market-cap and name filters, and persists the result.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hskang/krx-signals/internal/config"
	"github.com/hskang/krx-signals/internal/marketdata"
	"github.com/hskang/krx-signals/internal/store"
	"github.com/hskang/krx-signals/internal/universe"
	"github.com/hskang/krx-signals/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/signals.local.yaml", "path to config file")
	dryRun := flag.Bool("dry-run", false, "screen and log the universe without persisting it")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting universed",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	broker := marketdata.NewClient(
		cfg.Broker.BaseURL,
		cfg.Broker.AppKey,
		cfg.Broker.AppSecret,
		marketdata.WithLogger(logger),
		marketdata.WithTimeout(cfg.Broker.Timeout),
		marketdata.WithRetries(cfg.Broker.MaxRetries, time.Second),
	)

	var listings []marketdata.Listing
	for _, market := range []string{marketdata.MarketKospi, marketdata.MarketKosdaq} {
		rows, err := broker.Listings(ctx, market)
		if err != nil {
			logger.Error("failed to fetch listings", "market", market, "error", err)
			os.Exit(1)
		}
		logger.Info("fetched listings", "market", market, "count", len(rows))
		listings = append(listings, rows...)
		time.Sleep(cfg.Broker.RequestGap)
	}

	instruments := universe.Screen(listings, cfg.Universe)
	logger.Info("screened universe",
		"listings", len(listings),
		"instruments", len(instruments),
		"min_cap_eok", cfg.Universe.MinMarketCapEok,
	)
	for _, ins := range instruments {
		logger.Debug("universe member", "ticker", ins.Ticker, "name", ins.Name, "cap_eok", ins.MarketCapEok)
	}

	if *dryRun {
		logger.Info("dry run, not persisting")
		return
	}

	pool, err := store.Connect(ctx, cfg.Database.Postgres)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	repo := store.NewRepo(pool, logger)
	if err := repo.SaveUniverse(ctx, instruments); err != nil {
		logger.Error("failed to save universe", "error", err)
		os.Exit(1)
	}

	logger.Info("universe refreshed", "instruments", len(instruments))
}
