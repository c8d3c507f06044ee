package power

import (
	"math"
	"sort"

	"github.com/lucasjlepore/fit-analytics/model"
)

// DefaultTargets are the curve durations in seconds.
var DefaultTargets = []int{300, 600, 1200, 1800, 3600}

// CurveBuilder builds a best-effort power curve across activities.
//
// By default each activity long enough for a target contributes its
// normalized power (or average when NP is missing) as a whole-activity
// approximation. With ScanSamples set, activities that carry per-second
// samples contribute their best rolling average for the target instead.
type CurveBuilder struct {
	Targets     []int
	ScanSamples bool
}

// Build returns one point per target that at least one activity covers,
// ordered by duration. Ties keep the first activity in input order.
func (b CurveBuilder) Build(activities []model.ActivitySummary) []model.PowerCurvePoint {
	targets := b.Targets
	if len(targets) == 0 {
		targets = DefaultTargets
	}
	targets = append([]int(nil), targets...)
	sort.Ints(targets)

	points := make([]model.PowerCurvePoint, 0, len(targets))
	for _, target := range targets {
		if target <= 0 {
			continue
		}
		var (
			best  model.PowerCurvePoint
			found bool
		)
		for _, a := range activities {
			if a.DurationS < float64(target) {
				continue
			}
			watts := b.activityPower(a, target)
			if watts <= 0 {
				continue
			}
			if !found || watts > best.BestPowerW {
				best = model.PowerCurvePoint{
					DurationS:        target,
					BestPowerW:       watts,
					SourceActivityID: a.ID,
					Date:             a.Date,
				}
				found = true
			}
		}
		if found {
			points = append(points, best)
		}
	}
	return points
}

func (b CurveBuilder) activityPower(a model.ActivitySummary, target int) float64 {
	if b.ScanSamples && len(a.Samples) >= target {
		series := make([]float64, len(a.Samples))
		for i, s := range a.Samples {
			if p, ok := s.ValidPower(); ok {
				series[i] = p
			}
		}
		if best := BestRollingPower(series, target); best > 0 {
			return best
		}
	}
	return model.SafePositive(a.EffectivePower())
}

// BestRollingPower is the highest mean over any window of the given length.
// Series shorter than the window return their plain average.
func BestRollingPower(powerSamples []float64, seconds int) float64 {
	if len(powerSamples) == 0 || seconds <= 0 {
		return 0
	}
	if len(powerSamples) < seconds {
		return model.Average(powerSamples)
	}

	sum := 0.0
	for i := 0; i < seconds; i++ {
		sum += powerSamples[i]
	}
	best := sum / float64(seconds)
	for i := seconds; i < len(powerSamples); i++ {
		sum += powerSamples[i] - powerSamples[i-seconds]
		current := sum / float64(seconds)
		if current > best {
			best = current
		}
	}
	return best
}

// NormalizedPower is the fourth-root mean of the 30 s rolling average raised
// to the fourth power. Series shorter than 30 s return their plain average.
func NormalizedPower(powerSamples []float64) float64 {
	if len(powerSamples) == 0 {
		return 0
	}
	const window = 30
	if len(powerSamples) < window {
		return model.Average(powerSamples)
	}

	sum := 0.0
	for i := 0; i < window; i++ {
		sum += powerSamples[i]
	}

	fourthPowerTotal := 0.0
	count := 0
	for i := window - 1; i < len(powerSamples); i++ {
		if i >= window {
			sum += powerSamples[i] - powerSamples[i-window]
		}
		rolling := sum / float64(window)
		fourthPowerTotal += math.Pow(rolling, 4)
		count++
	}
	return math.Pow(fourthPowerTotal/float64(count), 0.25)
}
