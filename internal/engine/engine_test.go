package engine

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hskang/krx-signals/internal/lines"
	"github.com/hskang/krx-signals/internal/model"
)

func newTestEngine() *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(DefaultConfig(), lines.NewCalculator(lines.DefaultConfig()), logger)
}

// testHistory builds a 20-point history whose first 19 closes sum to
// 1,079,000, yielding a tier 1 buy line of 45,000 (40,500 and 36,450 behind
// it). The final point is the current session's close.
func testHistory(todayClose float64, today time.Time) []model.PricePoint {
	closes := make([]float64, 0, 20)
	for i := 0; i < 18; i++ {
		closes = append(closes, 56800)
	}
	closes = append(closes, 56600) // 18*56800 + 56600 = 1,079,000
	closes = append(closes, todayClose)

	pts := make([]model.PricePoint, len(closes))
	for i, c := range closes {
		pts[i] = model.PricePoint{
			Date:  today.AddDate(0, 0, i-len(closes)+1),
			Close: c,
			High:  c,
			Low:   c,
		}
	}
	return pts
}

var testDay = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

func TestEvaluate_OpensTranche1(t *testing.T) {
	e := newTestEngine()
	in := Input{
		Ticker:  "005930",
		Name:    "Samsung Electronics",
		History: testHistory(45200, testDay),
		Cycle:   model.Cycle{Date: testDay, Close: 45200, Low: 44500, High: 45600},
	}

	res, err := e.Evaluate(nil, in)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if res.TodayLines.Buy1 != 45000 || res.TodayLines.Buy2 != 40500 || res.TodayLines.Buy3 != 36450 {
		t.Fatalf("today buy ladder = %v/%v/%v, want 45000/40500/36450",
			res.TodayLines.Buy1, res.TodayLines.Buy2, res.TodayLines.Buy3)
	}
	if res.Stage != model.StageTranche1 {
		t.Fatalf("Stage = %v, want %v", res.Stage, model.StageTranche1)
	}
	if res.Position == nil {
		t.Fatal("Position = nil, want opened position")
	}
	if res.Position.AvgEntryPrice != 45000 {
		t.Errorf("AvgEntryPrice = %v, want 45000", res.Position.AvgEntryPrice)
	}
	if res.Position.TotalQuantity != 100 {
		t.Errorf("TotalQuantity = %v, want 100", res.Position.TotalQuantity)
	}
	if len(res.Position.Fills) != 1 || res.Position.Fills[0].Tier != 1 {
		t.Errorf("Fills = %+v, want single tier 1 fill", res.Position.Fills)
	}
}

func TestEvaluate_NoEntryAboveLine(t *testing.T) {
	e := newTestEngine()
	in := Input{
		Ticker:  "005930",
		History: testHistory(45200, testDay),
		Cycle:   model.Cycle{Date: testDay, Close: 45200, Low: 45100, High: 45600},
	}

	res, err := e.Evaluate(nil, in)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if res.Stage != model.StageNone {
		t.Errorf("Stage = %v, want %v", res.Stage, model.StageNone)
	}
	if res.Position != nil {
		t.Errorf("Position = %+v, want nil", res.Position)
	}
}

func TestEvaluate_GapFillsOnlyOneTranche(t *testing.T) {
	e := newTestEngine()
	// Low gaps through both tier 1 (45,000) and tier 2 (40,500).
	in := Input{
		Ticker:  "005930",
		History: testHistory(40200, testDay),
		Cycle:   model.Cycle{Date: testDay, Close: 40200, Low: 40000, High: 45600},
	}

	res, err := e.Evaluate(nil, in)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if res.Stage != model.StageTranche1 {
		t.Errorf("Stage = %v, want %v", res.Stage, model.StageTranche1)
	}
	if got := len(res.Position.Fills); got != 1 {
		t.Errorf("fills = %d, want 1", got)
	}
}

func TestEvaluate_SameSessionDoesNotStackTranches(t *testing.T) {
	e := newTestEngine()
	s := NewStore()
	in := Input{
		Ticker:  "005930",
		History: testHistory(40200, testDay),
		Cycle:   model.Cycle{Date: testDay, Close: 40200, Low: 40000, High: 45600},
	}

	first, err := s.Evaluate(e, in)
	if err != nil {
		t.Fatalf("first Evaluate() error = %v", err)
	}
	second, err := s.Evaluate(e, in)
	if err != nil {
		t.Fatalf("second Evaluate() error = %v", err)
	}
	if second.Stage != first.Stage {
		t.Errorf("Stage = %v after re-evaluation, want %v", second.Stage, first.Stage)
	}
	if second.Position.TotalQuantity != first.Position.TotalQuantity {
		t.Errorf("TotalQuantity = %v after re-evaluation, want %v",
			second.Position.TotalQuantity, first.Position.TotalQuantity)
	}
}

func TestEvaluate_Tranche2OnNextSession(t *testing.T) {
	e := newTestEngine()
	pos := heldPosition(model.StageTranche1, 45000, 100)
	in := Input{
		Ticker:  "005930",
		History: testHistory(40300, testDay),
		Cycle:   model.Cycle{Date: testDay, Close: 40300, Low: 40400, High: 41000},
	}

	res, err := e.Evaluate(pos, in)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if res.Stage != model.StageTranche2 {
		t.Fatalf("Stage = %v, want %v", res.Stage, model.StageTranche2)
	}
	// 100 @ 45,000 plus 100 @ 40,500.
	if want := 42750.0; res.Position.AvgEntryPrice != want {
		t.Errorf("AvgEntryPrice = %v, want %v", res.Position.AvgEntryPrice, want)
	}
	if res.Position.TotalQuantity != 200 {
		t.Errorf("TotalQuantity = %v, want 200", res.Position.TotalQuantity)
	}
}

// heldPosition builds a position whose last fill predates testDay.
func heldPosition(stage model.Stage, avg float64, qty int64) *model.Position {
	return &model.Position{
		ID:            uuid.New(),
		Ticker:        "005930",
		Stage:         stage,
		AvgEntryPrice: avg,
		TotalQuantity: qty,
		Fills: []model.Fill{{
			ID:       uuid.New(),
			Tier:     1,
			Date:     testDay.AddDate(0, 0, -3),
			Price:    avg,
			Quantity: qty,
		}},
		OpenedAt: testDay.AddDate(0, 0, -3),
	}
}

func TestEvaluate_Sell3Exit(t *testing.T) {
	e := newTestEngine()
	pos := heldPosition(model.StageTranche1, 50000, 100)
	// Sell ladder off 50,000: 51,500 / 52,500 / 53,500.
	in := Input{
		Ticker:  "005930",
		History: testHistory(53400, testDay),
		Cycle:   model.Cycle{Date: testDay, Close: 53400, Low: 52000, High: 53600},
	}

	res, err := e.Evaluate(pos, in)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if res.Closed == nil {
		t.Fatal("Closed = nil, want archived position")
	}
	if res.Closed.ExitReason != model.ExitReasonSell3 {
		t.Errorf("ExitReason = %q, want %q", res.Closed.ExitReason, model.ExitReasonSell3)
	}
	if res.Stage != model.StageExited {
		t.Errorf("Stage = %v, want %v", res.Stage, model.StageExited)
	}
	if got := res.Closed.RealizedReturnPct; math.Abs(got-6.8) > 1e-9 {
		t.Errorf("RealizedReturnPct = %v, want 6.8", got)
	}
	if res.Advisory != model.AdvisoryCompleted {
		t.Errorf("Advisory = %v, want %v", res.Advisory, model.AdvisoryCompleted)
	}
}

func TestEvaluate_Sell2RetouchExit(t *testing.T) {
	e := newTestEngine()
	pos := heldPosition(model.StageTranche1, 50000, 100)
	// High gaps into the sell2 band and close retouches the entry, so the
	// position exits in the same cycle.
	in := Input{
		Ticker:  "005930",
		History: testHistory(50200, testDay),
		Cycle:   model.Cycle{Date: testDay, Close: 50200, Low: 49800, High: 52600},
	}

	res, err := e.Evaluate(pos, in)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if res.Closed == nil {
		t.Fatal("Closed = nil, want archived position")
	}
	if res.Closed.ExitReason != model.ExitReasonSell2Retouch {
		t.Errorf("ExitReason = %q, want %q", res.Closed.ExitReason, model.ExitReasonSell2Retouch)
	}
}

func TestEvaluate_ArmedMarkWithoutRetouchHolds(t *testing.T) {
	e := newTestEngine()
	pos := heldPosition(model.StageTranche1, 50000, 100)
	pos.HighWaterMark = 52600
	// Mark is above sell2 but close sits 3.6% off entry, outside the band.
	in := Input{
		Ticker:  "005930",
		History: testHistory(51800, testDay),
		Cycle:   model.Cycle{Date: testDay, Close: 51800, Low: 51200, High: 52000},
	}

	res, err := e.Evaluate(pos, in)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if res.Closed != nil {
		t.Fatalf("Closed = %+v, want open position", res.Closed)
	}
	if res.Position.HighWaterMark != 52600 {
		t.Errorf("HighWaterMark = %v, want 52600", res.Position.HighWaterMark)
	}
	if res.Stage != model.StageTranche1 {
		t.Errorf("Stage = %v, want %v", res.Stage, model.StageTranche1)
	}
}

func TestStore_NoReopenOnExitSession(t *testing.T) {
	e := newTestEngine()
	s := NewStore()
	s.Seed([]model.Position{*heldPosition(model.StageTranche1, 50000, 100)})

	exit := Input{
		Ticker:  "005930",
		History: testHistory(53400, testDay),
		Cycle:   model.Cycle{Date: testDay, Close: 53400, Low: 44500, High: 53600},
	}
	res, err := s.Evaluate(e, exit)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if res.Closed == nil {
		t.Fatal("Closed = nil, want exit")
	}

	// Same session, low back under the buy line: must not reopen.
	reeval := Input{
		Ticker:  "005930",
		History: testHistory(45200, testDay),
		Cycle:   model.Cycle{Date: testDay, Close: 45200, Low: 44500, High: 53600},
	}
	res, err = s.Evaluate(e, reeval)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if res.Position != nil {
		t.Errorf("Position = %+v on exit session, want nil", res.Position)
	}

	// Next session the lifecycle restarts.
	nextDay := testDay.AddDate(0, 0, 1)
	reopen := Input{
		Ticker:  "005930",
		History: testHistory(45200, nextDay),
		Cycle:   model.Cycle{Date: nextDay, Close: 45200, Low: 44500, High: 45600},
	}
	res, err = s.Evaluate(e, reopen)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if res.Stage != model.StageTranche1 {
		t.Errorf("Stage = %v next session, want %v", res.Stage, model.StageTranche1)
	}
	if got := len(s.Closed()); got != 1 {
		t.Errorf("Closed() len = %d, want 1", got)
	}
}

func TestEvaluate_InsufficientHistory(t *testing.T) {
	e := newTestEngine()
	in := Input{
		Ticker:  "005930",
		History: testHistory(45200, testDay)[:10],
		Cycle:   model.Cycle{Date: testDay, Close: 45200, Low: 44500, High: 45600},
	}

	_, err := e.Evaluate(nil, in)
	var histErr *lines.InsufficientHistoryError
	if !errors.As(err, &histErr) {
		t.Fatalf("Evaluate() error = %v, want InsufficientHistoryError", err)
	}
}

func TestEvaluate_StaleHistoryFlagged(t *testing.T) {
	e := newTestEngine()
	in := Input{
		Ticker:  "005930",
		History: testHistory(45200, testDay),
		Cycle:   model.Cycle{Date: testDay, Close: 45200, Low: 45100, High: 45600},
		Now:     testDay.AddDate(0, 0, 10),
	}

	res, err := e.Evaluate(nil, in)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	var stale *StaleDataError
	if !errors.As(res.Stale, &stale) {
		t.Fatalf("Stale = %v, want StaleDataError", res.Stale)
	}
}

func TestEvaluate_AdvisoryReadyBuy1(t *testing.T) {
	e := newTestEngine()
	// Close 46,000 against a next-session tier 1 line of 44,550 is about
	// 3.3% away, inside the 10% advisory band.
	in := Input{
		Ticker:  "005930",
		History: testHistory(46000, testDay),
		Cycle:   model.Cycle{Date: testDay, Close: 46000, Low: 45800, High: 46400},
	}

	res, err := e.Evaluate(nil, in)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if res.NextLines.Buy1 != 44550 {
		t.Fatalf("NextLines.Buy1 = %v, want 44550", res.NextLines.Buy1)
	}
	if res.Advisory != model.AdvisoryReadyBuy1 {
		t.Errorf("Advisory = %v, want %v", res.Advisory, model.AdvisoryReadyBuy1)
	}
}

func TestEvaluate_AdvisoryReadySell1(t *testing.T) {
	e := newTestEngine()
	pos := heldPosition(model.StageTranche1, 50000, 100)
	// Close 51,000 is about 1% under the 51,500 sell line, inside the 3% band.
	in := Input{
		Ticker:  "005930",
		History: testHistory(51000, testDay),
		Cycle:   model.Cycle{Date: testDay, Close: 51000, Low: 50600, High: 51200},
	}

	res, err := e.Evaluate(pos, in)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if res.Advisory != model.AdvisoryReadySell1 {
		t.Errorf("Advisory = %v, want %v", res.Advisory, model.AdvisoryReadySell1)
	}
}
