// Package lines derives the tiered buy and sell ladders from a closing-price
// series and an average entry price.
//
// Two 19-close sums exist and are never interchangeable: the today sum
// excludes the current session's close (it prices the envelope the current
// session traded against), while the next-session sum is the 19 most recent
// closes including today's (it prices tomorrow's advisory lines).
package lines

import (
	"fmt"
	"math"

	"github.com/hskang/krx-signals/internal/contact"
	"github.com/hskang/krx-signals/internal/tick"
)

// HistoryMin is the minimum number of closing prices an evaluation needs.
const HistoryMin = 20

// InsufficientHistoryError reports a series shorter than HistoryMin.
type InsufficientHistoryError struct {
	Have int
	Need int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("insufficient history: have %d closes, need %d", e.Have, e.Need)
}

// SumS19Today returns the sum of the 19 closes preceding the most recent one.
// The series is chronological, oldest first; the last element is today's
// close and is excluded.
func SumS19Today(closes []float64) (float64, error) {
	if len(closes) < HistoryMin {
		return 0, &InsufficientHistoryError{Have: len(closes), Need: HistoryMin}
	}
	return sum(closes[len(closes)-HistoryMin : len(closes)-1]), nil
}

// SumS19Next returns the sum of the 19 most recent closes including today's.
// Tomorrow's 20-session average is (this sum + tomorrow's close) / 20.
func SumS19Next(closes []float64) (float64, error) {
	if len(closes) < HistoryMin {
		return 0, &InsufficientHistoryError{Have: len(closes), Need: HistoryMin}
	}
	return sum(closes[len(closes)-(HistoryMin-1):]), nil
}

func sum(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s
}

// Config holds ladder parameters.
type Config struct {
	Schedule    tick.Schedule
	BuyGapPct   float64    // Tier-to-tier buy discount (default 10)
	SellGapsPct [3]float64 // Gains over avg entry per sell tier (default 3/5/7)
	Epsilon     float64    // Distance clamp threshold (default 1e-10)
}

// DefaultConfig returns the production parameters.
func DefaultConfig() Config {
	return Config{
		Schedule:    tick.KRX(),
		BuyGapPct:   10.0,
		SellGapsPct: [3]float64{3.0, 5.0, 7.0},
		Epsilon:     1e-10,
	}
}

// Calculator derives quantized line ladders.
type Calculator struct {
	cfg    Config
	solver *contact.Solver
}

// NewCalculator returns a Calculator for the given config.
func NewCalculator(cfg Config) *Calculator {
	if cfg.Schedule == nil {
		cfg.Schedule = tick.KRX()
	}
	if cfg.BuyGapPct == 0 {
		cfg.BuyGapPct = 10.0
	}
	if cfg.SellGapsPct == ([3]float64{}) {
		cfg.SellGapsPct = [3]float64{3.0, 5.0, 7.0}
	}
	if cfg.Epsilon == 0 {
		cfg.Epsilon = 1e-10
	}
	return &Calculator{cfg: cfg, solver: contact.NewSolver(cfg.Schedule)}
}

// BuyLadder returns the three-tier buy lines for a 19-close sum. Tier 1 is
// the contact price; tiers 2 and 3 are each BuyGapPct below the prior tier,
// rounded up so the advertised price is never below a legal tick (an exact
// on-tick discount stands as is).
func (c *Calculator) BuyLadder(s19 float64) ([3]float64, error) {
	var ladder [3]float64

	buy1, err := c.solver.Solve(s19)
	if err != nil {
		return ladder, fmt.Errorf("buy tier 1: %w", err)
	}
	ladder[0] = buy1

	discount := 1 - c.cfg.BuyGapPct/100
	for tier := 1; tier < 3; tier++ {
		q, err := c.cfg.Schedule.RoundUp(ladder[tier-1] * discount)
		if err != nil {
			return ladder, fmt.Errorf("buy tier %d: %w", tier+1, err)
		}
		ladder[tier] = q
	}
	return ladder, nil
}

// SellLadder returns the three-tier sell lines for an average entry price,
// rounded down so the advertised price never exceeds the target gain.
func (c *Calculator) SellLadder(avgEntry float64) ([3]float64, error) {
	var ladder [3]float64
	if avgEntry <= 0 || math.IsNaN(avgEntry) {
		return ladder, &tick.InvalidPriceError{Price: avgEntry}
	}
	for i, gap := range c.cfg.SellGapsPct {
		q, err := c.cfg.Schedule.RoundDown(avgEntry * (1 + gap/100))
		if err != nil {
			return ladder, fmt.Errorf("sell tier %d: %w", i+1, err)
		}
		ladder[i] = q
	}
	return ladder, nil
}

// DistancePct returns (current - target) / target * 100, with magnitudes
// below Epsilon clamped to exactly zero to absorb floating-point noise
// before threshold comparisons. ok is false when the target is undefined.
func (c *Calculator) DistancePct(current, target float64) (float64, bool) {
	if target <= 0 || current <= 0 {
		return 0, false
	}
	d := (current - target) / target * 100
	if math.Abs(d) < c.cfg.Epsilon {
		return 0, true
	}
	return d, true
}
