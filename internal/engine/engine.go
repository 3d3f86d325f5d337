// Package engine implements the per-instrument signal state machine: tiered
// tranche entries against the buy ladder, high-water-mark exit rules against
// the sell ladder, and the advisory classification used for notification.
package engine

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/hskang/krx-signals/internal/lines"
	"github.com/hskang/krx-signals/internal/model"
)

// Config holds state machine parameters.
type Config struct {
	AlertThresholdPct   float64 // Buy-line proximity band for advisories (default 10)
	SellAlertBandPct    float64 // Sell-line proximity band for advisories (default 3)
	RetouchTolerancePct float64 // Close-to-entry band for retouch exits (default 1)
	TrancheUnit         int64   // Shares per tranche fill (default 100)
	StaleAfterDays      int     // History age that triggers a stale warning (default 5)
}

// DefaultConfig returns the production parameters.
func DefaultConfig() Config {
	return Config{
		AlertThresholdPct:   10.0,
		SellAlertBandPct:    3.0,
		RetouchTolerancePct: 1.0,
		TrancheUnit:         100,
		StaleAfterDays:      5,
	}
}

// Engine evaluates instruments against the envelope ladder. It is stateless;
// position state lives in the caller-owned Store.
type Engine struct {
	cfg    Config
	calc   *lines.Calculator
	logger *slog.Logger
}

// New creates an Engine.
func New(cfg Config, calc *lines.Calculator, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if calc == nil {
		calc = lines.NewCalculator(lines.DefaultConfig())
	}
	return &Engine{cfg: cfg, calc: calc, logger: logger}
}

// Input is everything one evaluation cycle needs. History is chronological,
// oldest first, at least 20 points, ending with the current session; Cycle
// carries the low/high/close actually traded this cycle (for the monitor this
// may be an intraday snapshot of the same session).
type Input struct {
	Ticker  string
	Name    string
	History []model.PricePoint
	Cycle   model.Cycle

	// Now enables the stale-history warning; zero disables it.
	Now time.Time

	// LastExitDate guards against reopening a position on the same session
	// that archived the previous one. Supplied by the Store.
	LastExitDate time.Time
}

// Evaluate runs one cycle for one instrument. It never mutates pos; the
// updated state is returned in Result.Position (or Result.Closed on exit).
func (e *Engine) Evaluate(pos *model.Position, in Input) (model.Result, error) {
	closes := make([]float64, len(in.History))
	for i, p := range in.History {
		closes[i] = p.Close
	}

	s19Today, err := lines.SumS19Today(closes)
	if err != nil {
		return model.Result{}, err
	}
	s19Next, err := lines.SumS19Next(closes)
	if err != nil {
		return model.Result{}, err
	}

	todayBuy, err := e.calc.BuyLadder(s19Today)
	if err != nil {
		return model.Result{}, fmt.Errorf("today ladder: %w", err)
	}
	nextBuy, err := e.calc.BuyLadder(s19Next)
	if err != nil {
		return model.Result{}, fmt.Errorf("next-session ladder: %w", err)
	}

	res := model.Result{
		Ticker: in.Ticker,
		Name:   in.Name,
		Date:   in.Cycle.Date,
		Close:  in.Cycle.Close,
		Low:    in.Cycle.Low,
		High:   in.Cycle.High,
		Stage:  model.StageNone,
		TodayLines: model.LineSet{
			Buy1: todayBuy[0], Buy2: todayBuy[1], Buy3: todayBuy[2],
		},
		NextLines: model.LineSet{
			Buy1: nextBuy[0], Buy2: nextBuy[1], Buy3: nextBuy[2],
		},
	}
	res.Stale = e.checkStale(in)

	next := pos.Clone()
	e.applyBuyTransition(next, in, todayBuy, &res)
	if res.Position != nil {
		next = res.Position
	}

	if next != nil && next.Stage.Held() {
		if err := e.applySellRules(next, in, &res); err != nil {
			return model.Result{}, err
		}
	} else if next != nil {
		res.Position = next
		res.Stage = next.Stage
	}

	e.computeDistances(&res)
	res.Advisory, res.Message = e.classify(res)
	return res, nil
}

// checkStale returns a StaleDataError when the newest history point is
// implausibly old relative to evaluation time. Advisory only.
func (e *Engine) checkStale(in Input) error {
	if in.Now.IsZero() || len(in.History) == 0 || e.cfg.StaleAfterDays <= 0 {
		return nil
	}
	last := in.History[len(in.History)-1].Date
	age := in.Now.Sub(last)
	if age > time.Duration(e.cfg.StaleAfterDays)*24*time.Hour {
		err := &StaleDataError{Ticker: in.Ticker, LastDate: last, Age: age}
		e.logger.Warn("stale price history",
			"ticker", in.Ticker,
			"last_date", last.Format("2006-01-02"),
			"age_days", int(age.Hours()/24),
		)
		return err
	}
	return nil
}

// applyBuyTransition advances at most one tranche per cycle. A cycle that
// gapped through two buy lines still fills only the next tier; the fill-date
// check keeps repeated same-session evaluations from stacking tranches.
func (e *Engine) applyBuyTransition(pos *model.Position, in Input, todayBuy [3]float64, res *model.Result) {
	if pos != nil && len(pos.Fills) > 0 &&
		sameSession(pos.Fills[len(pos.Fills)-1].Date, in.Cycle.Date) {
		res.Position = pos
		res.Stage = pos.Stage
		return
	}

	switch {
	case pos == nil:
		if sameSession(in.LastExitDate, in.Cycle.Date) {
			return // archived this session; a new lifecycle starts next cycle
		}
		if in.Cycle.Low <= todayBuy[0] {
			opened := &model.Position{
				ID:       uuid.New(),
				Ticker:   in.Ticker,
				Name:     in.Name,
				Stage:    model.StageNone,
				OpenedAt: in.Cycle.Date,
			}
			e.fill(opened, 1, todayBuy[0], in.Cycle)
			res.Position = opened
			res.Stage = opened.Stage
		}
	case pos.Stage == model.StageTranche1 && in.Cycle.Low <= todayBuy[1]:
		e.fill(pos, 2, todayBuy[1], in.Cycle)
		res.Position = pos
		res.Stage = pos.Stage
	case pos.Stage == model.StageTranche2 && in.Cycle.Low <= todayBuy[2]:
		e.fill(pos, 3, todayBuy[2], in.Cycle)
		res.Position = pos
		res.Stage = pos.Stage
	default:
		res.Position = pos
		res.Stage = pos.Stage
	}
}

// fill records one tranche execution and reweights the average entry.
func (e *Engine) fill(pos *model.Position, tier int, price float64, cycle model.Cycle) {
	qty := e.cfg.TrancheUnit
	pos.Fills = append(pos.Fills, model.Fill{
		ID:       uuid.New(),
		Tier:     tier,
		Date:     cycle.Date,
		Price:    price,
		Quantity: qty,
	})
	invested := pos.AvgEntryPrice*float64(pos.TotalQuantity) + price*float64(qty)
	pos.TotalQuantity += qty
	pos.AvgEntryPrice = invested / float64(pos.TotalQuantity)

	switch tier {
	case 1:
		pos.Stage = model.StageTranche1
	case 2:
		pos.Stage = model.StageTranche2
	case 3:
		pos.Stage = model.StageTranche3
	}

	e.logger.Info("tranche filled",
		"ticker", pos.Ticker,
		"tier", tier,
		"price", price,
		"quantity", qty,
		"avg_entry", pos.AvgEntryPrice,
	)
}

// applySellRules computes the sell ladder, rolls the high-water mark forward,
// and applies the exit checks. The mark is updated from this cycle's high
// before checking, so a gap straight through sell3 exits immediately and a
// gap into the sell2 band arms the retouch rule the same cycle.
func (e *Engine) applySellRules(pos *model.Position, in Input, res *model.Result) error {
	sells, err := e.calc.SellLadder(pos.AvgEntryPrice)
	if err != nil {
		return fmt.Errorf("sell ladder: %w", err)
	}
	res.TodayLines.Sell1, res.TodayLines.Sell2, res.TodayLines.Sell3 = sells[0], sells[1], sells[2]
	res.NextLines.Sell1, res.NextLines.Sell2, res.NextLines.Sell3 = sells[0], sells[1], sells[2]

	pos.HighWaterMark = math.Max(pos.HighWaterMark, in.Cycle.High)

	reason := ""
	switch {
	case in.Cycle.High >= sells[2]:
		reason = model.ExitReasonSell3
	case pos.HighWaterMark >= sells[1] && e.retouched(in.Cycle.Close, pos.AvgEntryPrice):
		reason = model.ExitReasonSell2Retouch
	case pos.HighWaterMark >= sells[0] && e.retouched(in.Cycle.Close, pos.AvgEntryPrice):
		reason = model.ExitReasonSell1Retouch
	}

	if reason == "" {
		res.Position = pos
		res.Stage = pos.Stage
		return nil
	}

	exited := *pos
	exited.Stage = model.StageExited
	realized := (in.Cycle.Close - pos.AvgEntryPrice) / pos.AvgEntryPrice * 100
	res.Closed = &model.ClosedPosition{
		Position:          exited,
		ExitDate:          in.Cycle.Date,
		ExitReason:        reason,
		RealizedReturnPct: realized,
	}
	res.Position = nil
	res.Stage = model.StageExited

	e.logger.Info("position exited",
		"ticker", pos.Ticker,
		"reason", reason,
		"realized_pct", realized,
	)
	return nil
}

// retouched reports whether close is back within the tolerance band of the
// average entry price.
func (e *Engine) retouched(close, avgEntry float64) bool {
	if avgEntry <= 0 {
		return false
	}
	return math.Abs(close-avgEntry)/avgEntry*100 < e.cfg.RetouchTolerancePct
}

// computeDistances fills in close-to-line distances against the published
// next-session lines.
func (e *Engine) computeDistances(res *model.Result) {
	res.DistBuy1, _ = e.calc.DistancePct(res.Close, res.NextLines.Buy1)
	res.DistBuy2, _ = e.calc.DistancePct(res.Close, res.NextLines.Buy2)
	res.DistBuy3, _ = e.calc.DistancePct(res.Close, res.NextLines.Buy3)
	if res.NextLines.HasSells() {
		res.DistSell1, _ = e.calc.DistancePct(res.Close, res.NextLines.Sell1)
		res.DistSell2, _ = e.calc.DistancePct(res.Close, res.NextLines.Sell2)
		res.DistSell3, _ = e.calc.DistancePct(res.Close, res.NextLines.Sell3)
	}
}

// classify derives the advisory from the next-session lines. Held stages
// prefer sell-line proximity, from the highest armed tier downward, over the
// next buy tier.
func (e *Engine) classify(res model.Result) (model.Advisory, string) {
	threshold := e.cfg.AlertThresholdPct
	band := e.cfg.SellAlertBandPct

	switch res.Stage {
	case model.StageExited:
		return model.AdvisoryCompleted, "position closed"

	case model.StageNone:
		if res.DistBuy1 > 0 && res.DistBuy1 <= threshold {
			return model.AdvisoryReadyBuy1, fmt.Sprintf("tier 1 buy line within %.1f%%", res.DistBuy1)
		}
		return model.AdvisoryWatching, fmt.Sprintf("tier 1 buy line %.1f%% away", res.DistBuy1)

	case model.StageTranche1:
		if math.Abs(res.DistSell1) <= band {
			return model.AdvisoryReadySell1, fmt.Sprintf("+3%% sell line within %.1f%%", math.Abs(res.DistSell1))
		}
		if res.DistBuy2 > 0 && res.DistBuy2 <= threshold {
			return model.AdvisoryReadyBuy2, fmt.Sprintf("tier 2 buy line within %.1f%%", res.DistBuy2)
		}
		return model.AdvisoryWaiting, fmt.Sprintf("waiting (tier 2 line %.1f%% away)", res.DistBuy2)

	case model.StageTranche2:
		if math.Abs(res.DistSell2) <= band {
			return model.AdvisoryReadySell2, fmt.Sprintf("+5%% sell line within %.1f%%", math.Abs(res.DistSell2))
		}
		if math.Abs(res.DistSell1) <= band {
			return model.AdvisoryReadySell1, fmt.Sprintf("+3%% sell line within %.1f%%", math.Abs(res.DistSell1))
		}
		if res.DistBuy3 > 0 && res.DistBuy3 <= threshold {
			return model.AdvisoryReadyBuy3, fmt.Sprintf("tier 3 buy line within %.1f%%", res.DistBuy3)
		}
		return model.AdvisoryWaiting, fmt.Sprintf("waiting (tier 3 line %.1f%% away)", res.DistBuy3)

	case model.StageTranche3:
		if math.Abs(res.DistSell3) <= band {
			return model.AdvisoryReadySell3, fmt.Sprintf("+7%% sell line within %.1f%%", math.Abs(res.DistSell3))
		}
		if math.Abs(res.DistSell2) <= band {
			return model.AdvisoryReadySell2, fmt.Sprintf("+5%% sell line within %.1f%%", math.Abs(res.DistSell2))
		}
		if math.Abs(res.DistSell1) <= band {
			return model.AdvisoryReadySell1, fmt.Sprintf("+3%% sell line within %.1f%%", math.Abs(res.DistSell1))
		}
		return model.AdvisoryWaiting, "waiting"
	}

	return model.AdvisoryWatching, "watching"
}

// sameSession reports whether two timestamps fall on the same calendar day.
func sameSession(a, b time.Time) bool {
	if a.IsZero() || b.IsZero() {
		return false
	}
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
