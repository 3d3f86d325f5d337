// Command signald runs the end-of-day evaluation: it refreshes price
// histories for the watched universe, advances the signal state machine,
// persists position state and posts the daily report.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hskang/krx-signals/internal/calendar"
	"github.com/hskang/krx-signals/internal/config"
	"github.com/hskang/krx-signals/internal/engine"
	"github.com/hskang/krx-signals/internal/lines"
	"github.com/hskang/krx-signals/internal/marketdata"
	"github.com/hskang/krx-signals/internal/metrics"
	"github.com/hskang/krx-signals/internal/model"
	"github.com/hskang/krx-signals/internal/notify"
	"github.com/hskang/krx-signals/internal/store"
	"github.com/hskang/krx-signals/internal/version"
)

const historyDays = 40

func main() {
	configPath := flag.String("config", "configs/signals.local.yaml", "path to config file")
	force := flag.Bool("force", false, "run even when the exchange is closed today")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting signald",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	cal, err := calendar.New(cfg.Calendar)
	if err != nil {
		logger.Error("failed to build calendar", "error", err)
		os.Exit(1)
	}

	now := time.Now().In(cal.Location())
	if !cal.IsTradingDay(now) && !*force {
		logger.Info("exchange closed today, nothing to do", "date", now.Format("2006-01-02"))
		return
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

	pool, err := store.Connect(ctx, cfg.Database.Postgres)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	repo := store.NewRepo(pool, logger)

	instruments, err := loadWatchList(ctx, repo, cfg, logger)
	if err != nil {
		logger.Error("failed to load watch list", "error", err)
		os.Exit(1)
	}
	if len(instruments) == 0 {
		logger.Error("watch list is empty, run universed first")
		os.Exit(1)
	}

	broker := marketdata.NewClient(
		cfg.Broker.BaseURL,
		cfg.Broker.AppKey,
		cfg.Broker.AppSecret,
		marketdata.WithLogger(logger),
		marketdata.WithTimeout(cfg.Broker.Timeout),
		marketdata.WithRetries(cfg.Broker.MaxRetries, time.Second),
	)

	eng, posStore, err := buildEngine(ctx, cfg, repo, logger)
	if err != nil {
		logger.Error("failed to seed position state", "error", err)
		os.Exit(1)
	}

	results, closedToday := evaluateAll(ctx, cfg, broker, eng, posStore, instruments, now, logger)

	if err := repo.SaveOpenPositions(ctx, posStore.Open()); err != nil {
		logger.Error("failed to persist open positions", "error", err)
		os.Exit(1)
	}
	if err := repo.ArchiveClosed(ctx, closedToday); err != nil {
		logger.Error("failed to archive closed positions", "error", err)
		os.Exit(1)
	}

	if cfg.Notify.WebhookURL != "" {
		slack := notify.NewSlack(
			cfg.Notify.WebhookURL,
			notify.WithLogger(logger),
			notify.WithTimeout(cfg.Notify.Timeout),
			notify.WithRetries(cfg.Notify.MaxRetries, time.Second),
		)
		report := notify.FormatDailyReport(now, results, closedToday)
		if err := slack.Send(ctx, report); err != nil {
			logger.Error("failed to post daily report", "error", err)
		}
	}

	logger.Info("signald run complete",
		"instruments", len(instruments),
		"results", len(results),
		"closed_today", len(closedToday),
	)
}

// loadWatchList resolves the instruments to evaluate: an explicit config
// list wins, otherwise the persisted screened universe.
func loadWatchList(ctx context.Context, repo *store.Repo, cfg *config.Config, logger *slog.Logger) ([]model.Instrument, error) {
	if len(cfg.Universe.Tickers) > 0 {
		known, err := repo.LoadUniverse(ctx)
		if err != nil {
			return nil, err
		}
		names := make(map[string]model.Instrument, len(known))
		for _, ins := range known {
			names[ins.Ticker] = ins
		}

		out := make([]model.Instrument, 0, len(cfg.Universe.Tickers))
		for _, t := range cfg.Universe.Tickers {
			if ins, ok := names[t]; ok {
				out = append(out, ins)
			} else {
				out = append(out, model.Instrument{Ticker: t, Name: t})
			}
		}
		logger.Info("using pinned watch list", "instruments", len(out))
		return out, nil
	}

	instruments, err := repo.LoadUniverse(ctx)
	if err != nil {
		return nil, err
	}

	if age, err := repo.UniverseAge(ctx, time.Now()); err == nil && age > cfg.Universe.RefreshInterval*2 {
		logger.Warn("screened universe is stale", "age", age)
	}
	return instruments, nil
}

// buildEngine constructs the engine and seeds the position store from the
// database.
func buildEngine(ctx context.Context, cfg *config.Config, repo *store.Repo, logger *slog.Logger) (*engine.Engine, *engine.Store, error) {
	calc := lines.NewCalculator(lines.Config{
		BuyGapPct:   cfg.Engine.BuyGapPct,
		SellGapsPct: cfg.Engine.SellGapsPct,
		Epsilon:     cfg.Engine.Epsilon,
	})
	eng := engine.New(engine.Config{
		AlertThresholdPct:   cfg.Engine.AlertThresholdPct,
		SellAlertBandPct:    cfg.Engine.SellAlertBandPct,
		RetouchTolerancePct: cfg.Engine.RetouchTolerancePct,
		TrancheUnit:         cfg.Engine.TrancheUnit,
		StaleAfterDays:      cfg.Engine.StaleAfterDays,
	}, calc, logger)

	posStore := engine.NewStore()
	open, err := repo.LoadOpenPositions(ctx)
	if err != nil {
		return nil, nil, err
	}
	posStore.Seed(open)

	// Recent exits only; enough to cover the same-session reopen guard.
	closed, err := repo.LoadClosedPositions(ctx, time.Now().AddDate(0, 0, -7))
	if err != nil {
		return nil, nil, err
	}
	posStore.SeedClosed(closed)

	logger.Info("position state seeded", "open", len(open), "recent_closed", len(closed))
	return eng, posStore, nil
}

// evaluateAll runs one engine cycle per instrument. Failures are isolated:
// a broken instrument is logged and skipped.
func evaluateAll(ctx context.Context, cfg *config.Config, broker *marketdata.Client,
	eng *engine.Engine, posStore *engine.Store, instruments []model.Instrument,
	now time.Time, logger *slog.Logger) ([]model.Result, []model.ClosedPosition) {

	var results []model.Result
	var closedToday []model.ClosedPosition

	for i, ins := range instruments {
		if ctx.Err() != nil {
			logger.Warn("evaluation interrupted", "done", i, "total", len(instruments))
			break
		}
		if i > 0 {
			time.Sleep(cfg.Broker.RequestGap)
		}

		history, err := broker.DailyHistory(ctx, ins.Ticker, now, historyDays)
		if err != nil {
			metrics.BrokerErrors.WithLabelValues("daily_chart").Inc()
			logger.Error("history fetch failed", "ticker", ins.Ticker, "error", err)
			continue
		}
		if len(history) == 0 {
			logger.Warn("empty history", "ticker", ins.Ticker)
			continue
		}

		last := history[len(history)-1]
		res, err := posStore.Evaluate(eng, engine.Input{
			Ticker:  ins.Ticker,
			Name:    ins.Name,
			History: history,
			Cycle: model.Cycle{
				Date:  last.Date,
				Close: last.Close,
				Low:   last.Low,
				High:  last.High,
			},
			Now: now,
		})
		if err != nil {
			logger.Error("evaluation failed", "ticker", ins.Ticker, "error", err)
			continue
		}

		metrics.EvaluationsTotal.WithLabelValues(ins.Ticker).Inc()
		if res.Closed != nil {
			metrics.TransitionsTotal.WithLabelValues(ins.Ticker, "exited").Inc()
			closedToday = append(closedToday, *res.Closed)
		}
		results = append(results, res)

		logger.Debug("instrument evaluated",
			"ticker", ins.Ticker,
			"stage", string(res.Stage),
			"advisory", string(res.Advisory),
			"buy1_next", res.NextLines.Buy1,
		)
	}

	return results, closedToday
}
