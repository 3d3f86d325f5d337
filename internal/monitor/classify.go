package monitor

import (
	"fmt"
	"math"

	"github.com/hskang/krx-signals/internal/alert"
	"github.com/hskang/krx-signals/internal/model"
)

// Check is one alert candidate produced by classification.
type Check struct {
	Condition alert.Condition
	Label     string
	Target    float64
	Dist      float64
}

// pendingTier returns the buy tier the stage is waiting on, or 0 when no
// further tranche can fill.
func pendingTier(stage model.Stage) int {
	switch stage {
	case model.StageNone:
		return 1
	case model.StageTranche1:
		return 2
	case model.StageTranche2:
		return 3
	default:
		return 0
	}
}

// Classify inspects one intraday quote against the instrument's pending buy
// line. It returns at most one check: the execution itself when the session
// low touched the line, otherwise the narrowest proximity band the current
// price sits inside. The returned distance drives the polling cadence;
// ok is false when the instrument has no pending tier.
func Classify(item WatchItem, q model.Quote) (checks []Check, dist float64, ok bool) {
	tier := pendingTier(item.Stage)
	if tier == 0 {
		return nil, 0, false
	}
	target := item.TodayBuy[tier-1]
	if target <= 0 || q.Current <= 0 {
		return nil, 0, false
	}

	if q.Low <= target {
		return []Check{{
			Condition: alert.Executed(tier),
			Label:     fmt.Sprintf("tier %d buy line touched", tier),
			Target:    target,
			Dist:      0,
		}}, 0, true
	}

	dist = (q.Current - target) / target * 100
	for _, band := range alert.ProximityBands {
		if dist <= float64(band) {
			return []Check{{
				Condition: alert.Proximity(tier, band),
				Label:     fmt.Sprintf("near tier %d buy line", tier),
				Target:    target,
				Dist:      dist,
			}}, dist, true
		}
	}
	return nil, math.Abs(dist), true
}
