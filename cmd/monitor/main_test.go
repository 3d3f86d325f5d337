package main

import (
	"testing"
	"time"

	"github.com/hskang/krx-signals/internal/model"
)

// Both history shapes must price the same session off the same 19 closes:
// intraday the series ends with the session's own candle (excluded from the
// basis), pre-open it ends with the prior session (included).
func TestSessionBasis(t *testing.T) {
	kst, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	session := time.Date(2026, 3, 10, 8, 15, 0, 0, kst)

	day := func(offset int) time.Time {
		return time.Date(2026, 3, 10, 0, 0, 0, 0, kst).AddDate(0, 0, offset)
	}

	// 19 closes summing to 1,079,000, preceded by one older row that must
	// stay outside the basis either way.
	var preOpen []model.PricePoint
	preOpen = append(preOpen, model.PricePoint{Date: day(-20), Close: 60_000})
	for i := 0; i < 18; i++ {
		preOpen = append(preOpen, model.PricePoint{Date: day(i - 19), Close: 56_800})
	}
	preOpen = append(preOpen, model.PricePoint{Date: day(-1), Close: 56_600})

	intraday := append(append([]model.PricePoint(nil), preOpen[1:]...),
		model.PricePoint{Date: day(0), Close: 57_000})

	const want = 1_079_000.0

	got, err := sessionBasis(preOpen, session)
	if err != nil {
		t.Fatalf("sessionBasis(pre-open) error = %v", err)
	}
	if got != want {
		t.Errorf("sessionBasis(pre-open) = %v, want %v", got, want)
	}

	got, err = sessionBasis(intraday, session)
	if err != nil {
		t.Fatalf("sessionBasis(intraday) error = %v", err)
	}
	if got != want {
		t.Errorf("sessionBasis(intraday) = %v, want %v", got, want)
	}
}

func TestSessionBasis_InsufficientHistory(t *testing.T) {
	session := time.Date(2026, 3, 10, 8, 15, 0, 0, time.UTC)
	short := []model.PricePoint{{Date: session.AddDate(0, 0, -1), Close: 56_800}}
	if _, err := sessionBasis(short, session); err == nil {
		t.Fatal("sessionBasis(short) error = nil, want insufficient history")
	}
}
