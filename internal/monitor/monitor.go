// Package monitor polls intraday quotes during the session window and raises
// buy-line proximity and execution alerts, with polling cadence tied to how
// close the nearest instrument sits to its line.
package monitor

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/hskang/krx-signals/internal/alert"
	"github.com/hskang/krx-signals/internal/calendar"
	"github.com/hskang/krx-signals/internal/dispatch"
	"github.com/hskang/krx-signals/internal/metrics"
	"github.com/hskang/krx-signals/internal/model"
)

// Config holds monitor settings.
type Config struct {
	Concurrency  int
	SessionStart string
	SessionEnd   string

	IntervalCritical time.Duration // nearest distance <= 1%
	IntervalNear     time.Duration // <= 3%
	IntervalWatch    time.Duration // <= 10%
	IntervalIdle     time.Duration

	QuoteTimeout time.Duration
}

// DefaultConfig returns production settings.
func DefaultConfig() Config {
	return Config{
		Concurrency:      5,
		SessionStart:     "08:00",
		SessionEnd:       "20:00",
		IntervalCritical: 60 * time.Second,
		IntervalNear:     180 * time.Second,
		IntervalWatch:    600 * time.Second,
		IntervalIdle:     1800 * time.Second,
		QuoteTimeout:     10 * time.Second,
	}
}

// QuoteSource provides intraday quotes.
type QuoteSource interface {
	Quote(ctx context.Context, ticker string, baseDate time.Time) (model.Quote, error)
}

// WatchItem is one instrument's monitoring state: its stage and the buy
// ladder computed from this session's basis.
type WatchItem struct {
	Ticker    string
	Name      string
	Stage     model.Stage
	TodayBuy  [3]float64
	SellLines [3]float64 // Populated when a position is held
}

// WatchSource provides the current watch list.
type WatchSource interface {
	WatchList() []WatchItem
}

// WatchSourceFunc is a function adapter for WatchSource.
type WatchSourceFunc func() []WatchItem

func (f WatchSourceFunc) WatchList() []WatchItem { return f() }

// Monitor runs the intraday sweep loop.
type Monitor struct {
	cfg    Config
	quotes QuoteSource
	watch  WatchSource
	dedup  *alert.Deduplicator
	queue  *dispatch.Queue[model.AlertEvent]
	cal    *calendar.Calendar
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Monitor.
func New(cfg Config, quotes QuoteSource, watch WatchSource, dedup *alert.Deduplicator,
	queue *dispatch.Queue[model.AlertEvent], cal *calendar.Calendar, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		cfg:    cfg,
		quotes: quotes,
		watch:  watch,
		dedup:  dedup,
		queue:  queue,
		cal:    cal,
		logger: logger,
	}
}

// Start begins the sweep loop.
func (m *Monitor) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go m.run()

	m.logger.Info("intraday monitor started",
		"concurrency", m.cfg.Concurrency,
		"session", m.cfg.SessionStart+"-"+m.cfg.SessionEnd,
	)
	return nil
}

// Stop gracefully shuts down the monitor.
func (m *Monitor) Stop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("intraday monitor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Monitor) run() {
	defer m.wg.Done()

	for {
		now := time.Now().In(m.cal.Location())
		in, err := m.cal.InWindow(now, m.cfg.SessionStart, m.cfg.SessionEnd)
		if err != nil {
			m.logger.Error("bad session window config", "error", err)
			return
		}

		wait := m.cfg.IntervalIdle
		if in {
			minDist := m.sweep(now)
			wait = m.nextInterval(minDist)
		}

		select {
		case <-m.ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// sweep polls all watched instruments once and returns the smallest pending
// buy-line distance seen, for cadence selection.
func (m *Monitor) sweep(now time.Time) float64 {
	start := time.Now()
	items := m.watch.WatchList()
	if len(items) == 0 {
		m.logger.Debug("empty watch list")
		return math.Inf(1)
	}

	epoch := now.Format("2006-01-02")
	sem := make(chan struct{}, m.cfg.Concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	minDist := math.Inf(1)

	for _, item := range items {
		wg.Add(1)
		go func(item WatchItem) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-m.ctx.Done():
				return
			}

			dist, ok := m.checkInstrument(epoch, now, item)
			if !ok {
				return
			}
			mu.Lock()
			if dist < minDist {
				minDist = dist
			}
			mu.Unlock()
		}(item)
	}
	wg.Wait()

	metrics.QuoteLoopDuration.Observe(time.Since(start).Seconds())
	m.logger.Info("sweep complete",
		"instruments", len(items),
		"min_distance_pct", minDist,
		"duration", time.Since(start),
	)
	return minDist
}

// checkInstrument fetches one quote, classifies it and enqueues whatever the
// deduplicator lets through. Returns the pending-line distance for cadence.
func (m *Monitor) checkInstrument(epoch string, now time.Time, item WatchItem) (float64, bool) {
	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.QuoteTimeout)
	defer cancel()

	q, err := m.quotes.Quote(ctx, item.Ticker, now)
	if err != nil {
		metrics.BrokerErrors.WithLabelValues("quote").Inc()
		m.logger.Warn("quote failed", "ticker", item.Ticker, "err", err)
		return 0, false
	}

	checks, dist, pending := Classify(item, q)
	for _, c := range checks {
		key := c.Condition.Key()
		if !m.dedup.ShouldFire(m.ctx, epoch, item.Ticker, c.Condition) {
			metrics.AlertsSuppressed.WithLabelValues(key).Inc()
			continue
		}
		metrics.AlertsFired.WithLabelValues(key).Inc()

		ev := model.AlertEvent{
			Ticker:      item.Ticker,
			Name:        item.Name,
			Condition:   key,
			Label:       c.Label,
			Current:     q.Current,
			Low:         q.Low,
			Target:      c.Target,
			DistancePct: c.Dist,
			At:          now,
		}
		if c.Condition.BandPct == 0 {
			ev.SellLines = item.SellLines
		}
		m.queue.Push(ev)
	}
	return dist, pending
}

// nextInterval maps the nearest distance to the polling cadence.
func (m *Monitor) nextInterval(minDist float64) time.Duration {
	switch {
	case minDist <= 1:
		return m.cfg.IntervalCritical
	case minDist <= 3:
		return m.cfg.IntervalNear
	case minDist <= 10:
		return m.cfg.IntervalWatch
	default:
		return m.cfg.IntervalIdle
	}
}
