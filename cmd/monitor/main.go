// Command monitor watches intraday quotes for the screened universe, raises
// deduplicated buy-line alerts and fans them out to Slack and WebSocket
// subscribers.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hskang/krx-signals/internal/alert"
	"github.com/hskang/krx-signals/internal/broadcast"
	"github.com/hskang/krx-signals/internal/calendar"
	"github.com/hskang/krx-signals/internal/config"
	"github.com/hskang/krx-signals/internal/dispatch"
	"github.com/hskang/krx-signals/internal/lines"
	"github.com/hskang/krx-signals/internal/marketdata"
	"github.com/hskang/krx-signals/internal/metrics"
	"github.com/hskang/krx-signals/internal/model"
	"github.com/hskang/krx-signals/internal/monitor"
	"github.com/hskang/krx-signals/internal/notify"
	"github.com/hskang/krx-signals/internal/store"
	"github.com/hskang/krx-signals/internal/version"
)

const historyDays = 40

func main() {
	configPath := flag.String("config", "configs/signals.local.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting monitor",
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

	broker := marketdata.NewClient(
		cfg.Broker.BaseURL,
		cfg.Broker.AppKey,
		cfg.Broker.AppSecret,
		marketdata.WithLogger(logger),
		marketdata.WithTimeout(cfg.Broker.Timeout),
		marketdata.WithRetries(cfg.Broker.MaxRetries, time.Second),
	)

	// Alert dedup state: Redis when configured, memory otherwise.
	var dedupState alert.State
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		state := alert.NewRedisState(rdb, cfg.Redis.StateTTL, logger)
		if err := state.Ping(ctx); err != nil {
			logger.Warn("redis unreachable at startup, dedup degrades to memory", "error", err)
		}
		dedupState = state
	}
	dedup := alert.NewDeduplicator(dedupState, logger)

	// Delivery pipeline: queue -> dispatcher -> sinks.
	queue := dispatch.NewQueue[model.AlertEvent](64)
	var sinks []dispatch.Sink
	if cfg.Notify.WebhookURL != "" {
		sinks = append(sinks, notify.NewSlack(
			cfg.Notify.WebhookURL,
			notify.WithLogger(logger),
			notify.WithTimeout(cfg.Notify.Timeout),
			notify.WithRetries(cfg.Notify.MaxRetries, time.Second),
		))
	}

	var hub *broadcast.Hub
	var wsServer *http.Server
	if cfg.Broadcast.Port > 0 {
		hub = broadcast.NewHub(logger)
		if err := hub.Start(ctx); err != nil {
			logger.Error("failed to start broadcast hub", "error", err)
			os.Exit(1)
		}
		sinks = append(sinks, hub)

		mux := http.NewServeMux()
		mux.Handle(cfg.Broadcast.Path, hub.Handler())
		wsServer = &http.Server{Addr: fmt.Sprintf(":%d", cfg.Broadcast.Port), Handler: mux}
		go func() {
			logger.Info("broadcast server listening", "port", cfg.Broadcast.Port, "path", cfg.Broadcast.Path)
			if err := wsServer.ListenAndServe(); err != http.ErrServerClosed {
				logger.Error("broadcast server error", "error", err)
			}
		}()
	}

	if len(sinks) == 0 {
		logger.Warn("no alert sinks configured, events will be logged only")
		sinks = append(sinks, dispatch.SinkFunc(func(_ context.Context, ev model.AlertEvent) error {
			logger.Info("alert", "ticker", ev.Ticker, "condition", ev.Condition, "label", ev.Label)
			return nil
		}))
	}

	dispatcher := dispatch.NewDispatcher(queue, sinks, logger)
	if err := dispatcher.Start(ctx); err != nil {
		logger.Error("failed to start dispatcher", "error", err)
		os.Exit(1)
	}

	metricsServer := metrics.Serve(fmt.Sprintf(":%d", cfg.Metrics.Port), cfg.Metrics.Path)
	logger.Info("metrics server listening", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)

	calc := lines.NewCalculator(lines.Config{
		BuyGapPct:   cfg.Engine.BuyGapPct,
		SellGapsPct: cfg.Engine.SellGapsPct,
		Epsilon:     cfg.Engine.Epsilon,
	})
	watch := &watchState{
		repo:   repo,
		broker: broker,
		calc:   calc,
		gap:    cfg.Broker.RequestGap,
		logger: logger,
	}
	if err := watch.rebuild(ctx, time.Now().In(cal.Location())); err != nil {
		logger.Error("initial watch list build failed", "error", err)
		os.Exit(1)
	}
	go watch.refreshLoop(ctx, cal)

	mon := monitor.New(monitor.Config{
		Concurrency:      cfg.Monitor.Concurrency,
		SessionStart:     cfg.Monitor.SessionStart,
		SessionEnd:       cfg.Monitor.SessionEnd,
		IntervalCritical: cfg.Monitor.IntervalCritical,
		IntervalNear:     cfg.Monitor.IntervalNear,
		IntervalWatch:    cfg.Monitor.IntervalWatch,
		IntervalIdle:     cfg.Monitor.IntervalIdle,
		QuoteTimeout:     cfg.Broker.Timeout,
	}, broker, watch, dedup, queue, cal, logger)
	if err := mon.Start(ctx); err != nil {
		logger.Error("failed to start monitor", "error", err)
		os.Exit(1)
	}

	logger.Info("monitor running", "instance_id", cfg.Instance.ID, "instruments", len(watch.WatchList()))

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	mon.Stop(shutdownCtx)
	queue.Close()
	dispatcher.Stop(shutdownCtx)
	if hub != nil {
		hub.Stop(shutdownCtx)
	}
	if wsServer != nil {
		wsServer.Shutdown(shutdownCtx)
	}
	metricsServer.Shutdown(shutdownCtx)

	logger.Info("monitor stopped")
}

// watchState builds and caches the per-instrument monitoring state: the buy
// ladder from this session's basis, the held stage and its sell lines. It is
// rebuilt once per trading day.
type watchState struct {
	repo   *store.Repo
	broker *marketdata.Client
	calc   *lines.Calculator
	gap    time.Duration
	logger *slog.Logger

	mu        sync.RWMutex
	items     []monitor.WatchItem
	builtDate string
}

// WatchList implements monitor.WatchSource.
func (w *watchState) WatchList() []monitor.WatchItem {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]monitor.WatchItem, len(w.items))
	copy(out, w.items)
	return out
}

// refreshLoop rebuilds the watch state on the first check of each trading
// day.
func (w *watchState) refreshLoop(ctx context.Context, cal *calendar.Calendar) {
	ticker := time.NewTicker(30 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		now := time.Now().In(cal.Location())
		w.mu.RLock()
		stale := w.builtDate != now.Format("2006-01-02")
		w.mu.RUnlock()

		if stale && cal.IsTradingDay(now) {
			if err := w.rebuild(ctx, now); err != nil {
				w.logger.Error("watch list rebuild failed", "error", err)
			}
		}
	}
}

// rebuild recomputes every instrument's lines for the current session.
func (w *watchState) rebuild(ctx context.Context, now time.Time) error {
	instruments, err := w.repo.LoadUniverse(ctx)
	if err != nil {
		return err
	}

	open, err := w.repo.LoadOpenPositions(ctx)
	if err != nil {
		return err
	}
	positions := make(map[string]model.Position, len(open))
	for _, p := range open {
		positions[p.Ticker] = p
	}

	items := make([]monitor.WatchItem, 0, len(instruments))
	for i, ins := range instruments {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if i > 0 {
			time.Sleep(w.gap)
		}

		history, err := w.broker.DailyHistory(ctx, ins.Ticker, now, historyDays)
		if err != nil {
			metrics.BrokerErrors.WithLabelValues("daily_chart").Inc()
			w.logger.Warn("history fetch failed, skipping instrument", "ticker", ins.Ticker, "error", err)
			continue
		}
		if len(history) == 0 {
			w.logger.Warn("empty history, skipping instrument", "ticker", ins.Ticker)
			continue
		}

		s19, err := sessionBasis(history, now)
		if err != nil {
			w.logger.Warn("insufficient history, skipping instrument", "ticker", ins.Ticker, "error", err)
			continue
		}
		buy, err := w.calc.BuyLadder(s19)
		if err != nil {
			w.logger.Warn("buy ladder failed, skipping instrument", "ticker", ins.Ticker, "error", err)
			continue
		}

		item := monitor.WatchItem{
			Ticker:   ins.Ticker,
			Name:     ins.Name,
			TodayBuy: buy,
		}
		if pos, ok := positions[ins.Ticker]; ok {
			item.Stage = pos.Stage
			if sells, err := w.calc.SellLadder(pos.AvgEntryPrice); err == nil {
				item.SellLines = sells
			}
		}
		items = append(items, item)
	}

	w.mu.Lock()
	w.items = items
	w.builtDate = now.Format("2006-01-02")
	w.mu.Unlock()

	w.logger.Info("watch list rebuilt", "instruments", len(items), "date", now.Format("2006-01-02"))
	return nil
}

// sessionBasis returns the 19-close sum pricing the given session's buy
// ladder. The broker publishes the session's candle only after the open, so
// a pre-open history ends with the prior session; its newest close then
// belongs in the basis rather than being excluded as the current session's.
func sessionBasis(history []model.PricePoint, session time.Time) (float64, error) {
	closes := make([]float64, len(history))
	for i, p := range history {
		closes[i] = p.Close
	}
	if sameSessionDate(history[len(history)-1].Date, session) {
		return lines.SumS19Today(closes)
	}
	return lines.SumS19Next(closes)
}

func sameSessionDate(a, b time.Time) bool {
	a = a.In(b.Location())
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}
