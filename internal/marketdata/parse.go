package marketdata

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// parsePrice reads a broker price field. Prices arrive as strings, sometimes
// with thousands separators, and chart prices carry a +/- sign relative to
// the previous close; only the magnitude is meaningful.
func parsePrice(s string) (float64, error) {
	cleaned := strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if cleaned == "" {
		return 0, fmt.Errorf("empty price field")
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("price %q: %w", s, err)
	}
	return math.Abs(v), nil
}

// parseCount reads a broker integer field (volume, listed shares).
func parseCount(s string) (int64, error) {
	cleaned := strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if cleaned == "" {
		return 0, fmt.Errorf("empty count field")
	}
	cleaned = strings.TrimPrefix(cleaned, "+")
	v, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("count %q: %w", s, err)
	}
	if v < 0 {
		v = -v
	}
	return v, nil
}
