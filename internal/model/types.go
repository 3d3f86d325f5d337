package model

import (
	"time"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// Market Data
// -----------------------------------------------------------------------------

// PricePoint is one daily observation for an instrument. Immutable once
// produced; the engine consumes a chronologically ordered series (oldest
// first) of at least 20 points.
type PricePoint struct {
	Date  time.Time // Session date
	Close float64   // Closing price (won)
	High  float64   // Session high
	Low   float64   // Session low
}

// Quote is an intraday snapshot used by the realtime monitor.
type Quote struct {
	Current float64 // Last traded price
	Low     float64 // Session low so far
	High    float64 // Session high so far
	Open    float64 // Session open
	Volume  int64   // Accumulated volume
}

// Cycle is the price action of one evaluation cycle (usually one session).
type Cycle struct {
	Date  time.Time
	Close float64
	Low   float64
	High  float64
}

// Instrument identifies one tracked equity.
type Instrument struct {
	Ticker       string  // 6-character KRX code
	Name         string  // Display name
	MarketCapEok float64 // Market cap in 100M won units
}

// -----------------------------------------------------------------------------
// Lines
// -----------------------------------------------------------------------------

// LineSet holds the quantized buy and sell ladders for one evaluation.
// Sell lines are zero until at least one tranche has been bought.
type LineSet struct {
	Buy1  float64 // Contact price (envelope fixed point)
	Buy2  float64 // 10% below Buy1, rounded up to tick
	Buy3  float64 // 10% below Buy2, rounded up to tick
	Sell1 float64 // Avg entry +3%, rounded down to tick
	Sell2 float64 // Avg entry +5%, rounded down to tick
	Sell3 float64 // Avg entry +7%, rounded down to tick
}

// HasSells reports whether the sell ladder is defined.
func (l LineSet) HasSells() bool {
	return l.Sell1 > 0
}

// BuyLine returns the buy line for tier 1..3.
func (l LineSet) BuyLine(tier int) float64 {
	switch tier {
	case 1:
		return l.Buy1
	case 2:
		return l.Buy2
	case 3:
		return l.Buy3
	}
	return 0
}

// SellLine returns the sell line for tier 1..3.
func (l LineSet) SellLine(tier int) float64 {
	switch tier {
	case 1:
		return l.Sell1
	case 2:
		return l.Sell2
	case 3:
		return l.Sell3
	}
	return 0
}

// -----------------------------------------------------------------------------
// Position State
// -----------------------------------------------------------------------------

// Stage is the buy progress of a position lifecycle.
type Stage string

const (
	StageNone     Stage = "NONE"
	StageTranche1 Stage = "TRANCHE1"
	StageTranche2 Stage = "TRANCHE2"
	StageTranche3 Stage = "TRANCHE3"
	StageExited   Stage = "EXITED"
)

// Held reports whether the stage carries an open quantity.
func (s Stage) Held() bool {
	return s == StageTranche1 || s == StageTranche2 || s == StageTranche3
}

// Fill records one executed tranche.
type Fill struct {
	ID       uuid.UUID
	Tier     int // 1, 2 or 3
	Date     time.Time
	Price    float64
	Quantity int64
}

// Position is the mutable per-instrument state tracked across cycles.
type Position struct {
	ID            uuid.UUID
	Ticker        string
	Name          string
	Stage         Stage
	AvgEntryPrice float64
	TotalQuantity int64
	Fills         []Fill
	HighWaterMark float64 // Max session high since first entry
	OpenedAt      time.Time
}

// Clone returns a deep copy so evaluation never aliases stored state.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Fills = append([]Fill(nil), p.Fills...)
	return &cp
}

// Exit reasons recorded on closed positions.
const (
	ExitReasonSell3        = "sell3 reached"
	ExitReasonSell2Retouch = "sell2 reached, entry retouched"
	ExitReasonSell1Retouch = "sell1 reached, entry retouched"
)

// ClosedPosition is the immutable historical record appended on exit.
type ClosedPosition struct {
	Position
	ExitDate          time.Time
	ExitReason        string
	RealizedReturnPct float64
}

// -----------------------------------------------------------------------------
// Advisory & Results
// -----------------------------------------------------------------------------

// Advisory classifies the notification-relevant condition of an instrument.
type Advisory string

const (
	AdvisoryWatching   Advisory = "WATCHING"
	AdvisoryReadyBuy1  Advisory = "READY_BUY1"
	AdvisoryReadyBuy2  Advisory = "READY_BUY2"
	AdvisoryReadyBuy3  Advisory = "READY_BUY3"
	AdvisoryWaiting    Advisory = "WAITING"
	AdvisoryReadySell1 Advisory = "READY_SELL1"
	AdvisoryReadySell2 Advisory = "READY_SELL2"
	AdvisoryReadySell3 Advisory = "READY_SELL3"
	AdvisoryCompleted  Advisory = "COMPLETED"
)

// Alertable reports whether the advisory warrants a notification.
func (a Advisory) Alertable() bool {
	return a != AdvisoryWatching && a != AdvisoryWaiting
}

// Result is the per-instrument record produced by one evaluation cycle.
type Result struct {
	Ticker   string
	Name     string
	Date     time.Time
	Close    float64
	Low      float64
	High     float64
	Stage    Stage
	Advisory Advisory
	Message  string

	// TodayLines are computed from the fill-decision sum (today's basis);
	// NextLines from the next-session sum and are the published advisory lines.
	TodayLines LineSet
	NextLines  LineSet

	// Distances from today's close to the next-session lines, in percent.
	// Sell distances are meaningful only when NextLines.HasSells().
	DistBuy1  float64
	DistBuy2  float64
	DistBuy3  float64
	DistSell1 float64
	DistSell2 float64
	DistSell3 float64

	// Position is the post-evaluation open state (nil when nothing is held
	// and no entry fired). Closed is set exactly once, on the exit cycle.
	Position *Position
	Closed   *ClosedPosition

	// Stale is an advisory warning set when the supplied history is old.
	// It never blocks computation.
	Stale error
}

// -----------------------------------------------------------------------------
// Alert Events
// -----------------------------------------------------------------------------

// AlertEvent is one deduplicated notification handed to delivery sinks.
type AlertEvent struct {
	Ticker      string     `json:"ticker"`
	Name        string     `json:"name"`
	Condition   string     `json:"condition"` // Deduplication condition key
	Label       string     `json:"label"`     // Human-readable headline
	Current     float64    `json:"current"`
	Low         float64    `json:"low,omitempty"`
	Target      float64    `json:"target"`
	DistancePct float64    `json:"distance_pct"`
	SellLines   [3]float64 `json:"sell_lines,omitempty"` // Populated on fill alerts
	At          time.Time  `json:"at"`
}
