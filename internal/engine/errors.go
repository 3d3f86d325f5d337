package engine

import (
	"fmt"
	"time"
)

// StaleDataError flags a history whose newest point is older than the
// configured freshness window. Evaluation still proceeds; callers decide
// whether to trust the result.
type StaleDataError struct {
	Ticker   string
	LastDate time.Time
	Age      time.Duration
}

func (e *StaleDataError) Error() string {
	return fmt.Sprintf("stale history for %s: last point %s (%d days old)",
		e.Ticker, e.LastDate.Format("2006-01-02"), int(e.Age.Hours()/24))
}
