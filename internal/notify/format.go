package notify

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hskang/krx-signals/internal/model"
)

// FormatAlert renders one alert event as a Slack message.
func FormatAlert(ev model.AlertEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s %s* %s\n", conditionEmoji(ev.Condition), ev.Ticker, ev.Name, ev.Label)

	if strings.Contains(ev.Condition, "EXECUTED") {
		fmt.Fprintf(&b, "• fill price: %s\n", formatWon(ev.Target))
		fmt.Fprintf(&b, "• current: %s\n", formatWon(ev.Current))
		if ev.SellLines != [3]float64{} {
			fmt.Fprintf(&b, "• sell lines: %s / %s / %s\n",
				formatWon(ev.SellLines[0]), formatWon(ev.SellLines[1]), formatWon(ev.SellLines[2]))
		}
	} else {
		fmt.Fprintf(&b, "• target: %s\n", formatWon(ev.Target))
		fmt.Fprintf(&b, "• current: %s (%.1f%% away)\n", formatWon(ev.Current), ev.DistancePct)
		if ev.Low > 0 {
			fmt.Fprintf(&b, "• session low: %s\n", formatWon(ev.Low))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatDailyReport renders the end-of-day summary: exits first, then
// actionable advisories, then held positions, then a watch count.
func FormatDailyReport(date time.Time, results []model.Result, closed []model.ClosedPosition) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Daily signal report — %s*\n", date.Format("2006-01-02"))

	if len(closed) > 0 {
		b.WriteString("\n*Closed today*\n")
		for _, c := range closed {
			fmt.Fprintf(&b, "• %s %s — %s, return %+.1f%%\n", c.Ticker, c.Name, c.ExitReason, c.RealizedReturnPct)
		}
	}

	var actionable, held []model.Result
	watching := 0
	for _, r := range results {
		switch {
		case r.Advisory == model.AdvisoryCompleted:
			// Covered by the closed section.
		case r.Advisory.Alertable():
			actionable = append(actionable, r)
		case r.Stage.Held():
			held = append(held, r)
		default:
			watching++
		}
	}

	if len(actionable) > 0 {
		b.WriteString("\n*Action advised*\n")
		for _, r := range actionable {
			fmt.Fprintf(&b, "• %s %s — %s: %s (close %s)\n",
				r.Ticker, r.Name, r.Advisory, r.Message, formatWon(r.Close))
		}
	}

	if len(held) > 0 {
		b.WriteString("\n*Holding*\n")
		for _, r := range held {
			fmt.Fprintf(&b, "• %s %s — %s, %s\n", r.Ticker, r.Name, r.Stage, r.Message)
		}
	}

	if watching > 0 {
		fmt.Fprintf(&b, "\n%d instruments watching, no action\n", watching)
	}

	return strings.TrimRight(b.String(), "\n")
}

// conditionEmoji maps a dedup condition key to its severity marker.
func conditionEmoji(condition string) string {
	switch {
	case strings.Contains(condition, "EXECUTED"):
		return "✅"
	case strings.HasSuffix(condition, "_1%"):
		return "🔴"
	case strings.HasSuffix(condition, "_3%"):
		return "🟠"
	default:
		return "🟡"
	}
}

// formatWon renders a won price with thousands separators. Prices are whole
// won on the KRX tick grid.
func formatWon(v float64) string {
	s := strconv.FormatInt(int64(v), 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var out []byte
	for i, c := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}
