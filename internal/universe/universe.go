// Package universe screens exchange listings down to the instruments the
// signal engine watches: common stocks above a market-cap floor, with index
// products excluded by name.
package universe

import (
	"sort"
	"strings"

	"github.com/hskang/krx-signals/internal/config"
	"github.com/hskang/krx-signals/internal/marketdata"
	"github.com/hskang/krx-signals/internal/model"
)

// excludeKeywords marks ETF/ETN brands and index products that pass the
// market-cap floor but are not signal candidates.
var excludeKeywords = []string{
	"KODEX", "TIGER", "KBSTAR", "KOSEF", "ARIRANG", "HANARO",
	"SOL", "TREX", "ACE",
	"인버스", "레버리지", "선물", "ETF", "ETN", "지수",
}

// NormalizeTicker strips broker suffixes (e.g. "005930_AL") and left-pads
// short codes back to the standard six digits.
func NormalizeTicker(code string) string {
	code = strings.TrimSpace(code)
	if i := strings.IndexFunc(code, func(r rune) bool { return r < '0' || r > '9' }); i >= 0 {
		code = code[:i]
	}
	for len(code) < 6 && code != "" {
		code = "0" + code
	}
	return code
}

// Excluded reports whether the listing name matches an exclusion keyword.
func Excluded(name string) bool {
	upper := strings.ToUpper(name)
	for _, kw := range excludeKeywords {
		if strings.Contains(upper, kw) {
			return true
		}
	}
	return false
}

// Screen filters listings to the watchable instrument set: market cap at or
// above the configured floor, exclusion keywords removed, duplicate codes
// collapsed to the largest-cap row, sorted largest first.
func Screen(listings []marketdata.Listing, cfg config.UniverseConfig) []model.Instrument {
	best := make(map[string]model.Instrument)
	for _, l := range listings {
		ticker := NormalizeTicker(l.Ticker)
		if ticker == "" || Excluded(l.Name) {
			continue
		}
		cap := l.MarketCapEok()
		if cap < cfg.MinMarketCapEok {
			continue
		}
		if cur, ok := best[ticker]; !ok || cap > cur.MarketCapEok {
			best[ticker] = model.Instrument{
				Ticker:       ticker,
				Name:         l.Name,
				MarketCapEok: cap,
			}
		}
	}

	out := make([]model.Instrument, 0, len(best))
	for _, ins := range best {
		out = append(out, ins)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MarketCapEok != out[j].MarketCapEok {
			return out[i].MarketCapEok > out[j].MarketCapEok
		}
		return out[i].Ticker < out[j].Ticker
	})

	if cfg.MaxInstruments > 0 && len(out) > cfg.MaxInstruments {
		out = out[:cfg.MaxInstruments]
	}
	return out
}
