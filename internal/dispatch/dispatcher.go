package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hskang/krx-signals/internal/model"
)

// Sink receives alert events. Slack, the WebSocket broadcaster and tests all
// implement it.
type Sink interface {
	Deliver(ctx context.Context, ev model.AlertEvent) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, ev model.AlertEvent) error

func (f SinkFunc) Deliver(ctx context.Context, ev model.AlertEvent) error {
	return f(ctx, ev)
}

// Dispatcher drains the alert queue and fans each event out to every sink.
type Dispatcher struct {
	queue  *Queue[model.AlertEvent]
	sinks  []Sink
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher over the given queue and sinks.
func NewDispatcher(queue *Queue[model.AlertEvent], sinks []Sink, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		queue:  queue,
		sinks:  sinks,
		logger: logger,
	}
}

// Start begins consuming queued events.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.ctx, d.cancel = context.WithCancel(ctx)

	d.wg.Add(1)
	go d.consumeLoop()

	d.logger.Info("alert dispatcher started", "sinks", len(d.sinks))
	return nil
}

// Stop drains remaining events and shuts down.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.logger.Info("stopping alert dispatcher")

	if d.cancel != nil {
		d.cancel()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("alert dispatcher stopped")
	case <-ctx.Done():
		d.logger.Warn("alert dispatcher stop timed out")
		return ctx.Err()
	}

	// Final drain with the caller's deadline.
	for {
		ev, ok := d.queue.TryPop()
		if !ok {
			return nil
		}
		d.deliver(ctx, ev)
	}
}

func (d *Dispatcher) consumeLoop() {
	defer d.wg.Done()

	for {
		ev, ok := d.queue.TryPop()
		if !ok {
			select {
			case <-d.ctx.Done():
				return
			case <-time.After(10 * time.Millisecond):
				continue
			}
		}
		d.deliver(d.ctx, ev)
	}
}

// deliver fans one event out. A failing sink is logged and skipped so the
// others still receive the event.
func (d *Dispatcher) deliver(ctx context.Context, ev model.AlertEvent) {
	for _, sink := range d.sinks {
		if err := sink.Deliver(ctx, ev); err != nil {
			d.logger.Error("alert delivery failed",
				"ticker", ev.Ticker,
				"condition", ev.Condition,
				"error", err,
			)
		}
	}
}
