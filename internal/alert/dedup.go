// Package alert suppresses duplicate intraday notifications. Each condition
// fires at most once per instrument per session epoch, and a proximity alert
// never re-fires at a wider band once a narrower band (or the execution
// itself) has already been announced.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Condition identifies one alertable event for a buy tier. BandPct is the
// proximity band in percent; zero means the tranche actually executed.
type Condition struct {
	Tier    int
	BandPct int
}

// Executed is the condition for a filled tranche.
func Executed(tier int) Condition { return Condition{Tier: tier} }

// Proximity is the condition for price entering the given band of a buy line.
func Proximity(tier, bandPct int) Condition { return Condition{Tier: tier, BandPct: bandPct} }

// ProximityBands are the monitored buy-line bands, narrowest first.
var ProximityBands = []int{1, 3, 5}

// Key returns the stable string form used for dedup state.
func (c Condition) Key() string {
	if c.BandPct == 0 {
		return fmt.Sprintf("BUY%d_EXECUTED", c.Tier)
	}
	return fmt.Sprintf("READY_BUY%d_%d%%", c.Tier, c.BandPct)
}

// suppressors lists the stronger conditions for the same tier: the execution
// itself and every narrower band.
func (c Condition) suppressors() []Condition {
	if c.BandPct == 0 {
		return nil
	}
	out := []Condition{Executed(c.Tier)}
	for _, b := range ProximityBands {
		if b < c.BandPct {
			out = append(out, Proximity(c.Tier, b))
		}
	}
	return out
}

// State is optional durable backing for fired-alert records, so dedup
// survives a process restart within the same epoch.
type State interface {
	MarkFired(ctx context.Context, epoch, ticker, condition string) error
	WasFired(ctx context.Context, epoch, ticker, condition string) (bool, error)
}

// Deduplicator tracks which conditions have fired in the current epoch.
// The epoch key is supplied by the caller (normally the session date); a
// changed key resets all in-memory records. Safe for concurrent use.
type Deduplicator struct {
	mu     sync.Mutex
	epoch  string
	fired  map[string]struct{}
	state  State
	logger *slog.Logger
}

// NewDeduplicator creates a Deduplicator. state may be nil for memory-only
// operation.
func NewDeduplicator(state State, logger *slog.Logger) *Deduplicator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deduplicator{
		fired:  make(map[string]struct{}),
		state:  state,
		logger: logger,
	}
}

// ShouldFire reports whether the condition should be announced for ticker in
// the given epoch, and records it as fired when it should. A durable-state
// error degrades to the in-memory record rather than blocking the alert.
func (d *Deduplicator) ShouldFire(ctx context.Context, epoch, ticker string, c Condition) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if epoch != d.epoch {
		d.epoch = epoch
		d.fired = make(map[string]struct{})
	}

	for _, s := range append(c.suppressors(), c) {
		if d.firedLocked(ctx, epoch, ticker, s) {
			return false
		}
	}

	d.fired[memKey(ticker, c)] = struct{}{}
	if d.state != nil {
		if err := d.state.MarkFired(ctx, epoch, ticker, c.Key()); err != nil {
			d.logger.Warn("failed to persist alert record",
				"ticker", ticker, "condition", c.Key(), "error", err)
		}
	}
	return true
}

func (d *Deduplicator) firedLocked(ctx context.Context, epoch, ticker string, c Condition) bool {
	if _, ok := d.fired[memKey(ticker, c)]; ok {
		return true
	}
	if d.state == nil {
		return false
	}
	fired, err := d.state.WasFired(ctx, epoch, ticker, c.Key())
	if err != nil {
		d.logger.Warn("failed to read alert record",
			"ticker", ticker, "condition", c.Key(), "error", err)
		return false
	}
	if fired {
		d.fired[memKey(ticker, c)] = struct{}{}
	}
	return fired
}

func memKey(ticker string, c Condition) string {
	return ticker + "|" + c.Key()
}
