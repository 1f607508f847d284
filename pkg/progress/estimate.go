// Package progress turns batch completion into a bounded, monotonic
// progress and ETA signal for a run.
package progress

import (
	"fmt"
	"math"
	"time"
)

// MaxRunningPercent is the ceiling while a run has not completed. Only the
// terminal COMPLETE state reports 100.
const MaxRunningPercent = 95.0

// ClearDelay is how long a COMPLETE state stays on display before it is
// cleared.
const ClearDelay = 500 * time.Millisecond

// Projection is the estimator output.
type Projection struct {
	Percent    float64
	ETASeconds int
}

// Estimate maps processed/total within a stage spanning [base, base+span]
// to a percentage capped at MaxRunningPercent, and projects the remaining
// time from the observed throughput. ETASeconds is 0 when nothing has been
// processed yet or no time has elapsed.
func Estimate(processed, total int, elapsed time.Duration, base, span float64) Projection {
	if total <= 0 {
		return Projection{Percent: clamp(base, 0, MaxRunningPercent)}
	}
	processed = max(0, min(processed, total))

	fraction := float64(processed) / float64(total)
	p := Projection{Percent: clamp(base+fraction*span, 0, MaxRunningPercent)}

	seconds := elapsed.Seconds()
	if seconds > 0 && processed > 0 {
		rate := float64(processed) / seconds
		p.ETASeconds = int(math.Round(float64(total-processed) / rate))
	}
	return p
}

// FormatETA renders seconds as "Xm Ys" above one minute and "Ns" otherwise.
func FormatETA(seconds int) string {
	if seconds > 60 {
		return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
	}
	return fmt.Sprintf("%ds", seconds)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
