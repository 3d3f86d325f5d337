// Package calendar answers trading-day and session-window questions for the
// Korean exchange. Fixed-date holidays are built in; movable closures (lunar
// new year, chuseok, substitute holidays, election days) come from config.
package calendar

import (
	"fmt"
	"time"

	"github.com/hskang/krx-signals/internal/config"
)

// fixedHolidays are the market closures that fall on the same date every
// year: new year's day, independence movement day, children's day, memorial
// day, liberation day, foundation day, hangul day, christmas.
var fixedHolidays = [][2]int{
	{1, 1}, {3, 1}, {5, 5}, {6, 6}, {8, 15}, {10, 3}, {10, 9}, {12, 25},
}

// Calendar resolves trading days in the exchange timezone.
type Calendar struct {
	loc      *time.Location
	closures map[string]struct{}
}

// New builds a Calendar from config.
func New(cfg config.CalendarConfig) (*Calendar, error) {
	tz := cfg.Timezone
	if tz == "" {
		tz = "Asia/Seoul"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}

	closures := make(map[string]struct{}, len(cfg.ExtraClosures))
	for _, d := range cfg.ExtraClosures {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return nil, fmt.Errorf("closure date %q: %w", d, err)
		}
		closures[d] = struct{}{}
	}

	return &Calendar{loc: loc, closures: closures}, nil
}

// Location returns the exchange timezone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// IsTradingDay reports whether the exchange is open on t's date.
func (c *Calendar) IsTradingDay(t time.Time) bool {
	t = t.In(c.loc)
	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	_, m, d := t.Date()
	for _, h := range fixedHolidays {
		if int(m) == h[0] && d == h[1] {
			return false
		}
	}
	_, closed := c.closures[t.Format("2006-01-02")]
	return !closed
}

// NextTradingDay returns the first trading day strictly after t's date.
func (c *Calendar) NextTradingDay(t time.Time) time.Time {
	return c.scan(t, 1)
}

// PreviousTradingDay returns the last trading day strictly before t's date.
func (c *Calendar) PreviousTradingDay(t time.Time) time.Time {
	return c.scan(t, -1)
}

// scan walks day by day. Sixty days bounds the walk well past any real
// closure run.
func (c *Calendar) scan(t time.Time, step int) time.Time {
	day := t.In(c.loc)
	for i := 0; i < 60; i++ {
		day = day.AddDate(0, 0, step)
		if c.IsTradingDay(day) {
			return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, c.loc)
		}
	}
	return time.Time{}
}

// InWindow reports whether t falls inside the HH:MM window [start, end) on a
// trading day, in exchange time.
func (c *Calendar) InWindow(t time.Time, start, end string) (bool, error) {
	if !c.IsTradingDay(t) {
		return false, nil
	}
	st, err := time.Parse("15:04", start)
	if err != nil {
		return false, fmt.Errorf("window start %q: %w", start, err)
	}
	et, err := time.Parse("15:04", end)
	if err != nil {
		return false, fmt.Errorf("window end %q: %w", end, err)
	}

	t = t.In(c.loc)
	minutes := t.Hour()*60 + t.Minute()
	startMin := st.Hour()*60 + st.Minute()
	endMin := et.Hour()*60 + et.Minute()
	return minutes >= startMin && minutes < endMin, nil
}
