package climb

import "github.com/lucasjlepore/fit-analytics/model"

// Segmenter splits a smoothed elevation series into candidate climbs.
type Segmenter interface {
	Segment(elevations []float64) []model.ClimbCandidate
}

// ThresholdSegmenter is a single greedy forward pass with two states.
//
// Idle tracks the lowest point seen since the last climb ended and switches
// to climbing once the series rises more than StartRiseM above it. Climbing
// tracks the running maximum and emits a candidate when the series drops more
// than GiveBackM below that maximum, or when the series ends.
type ThresholdSegmenter struct {
	StartRiseM float64
	GiveBackM  float64
}

// DefaultSegmenter uses 2 m of rise to start a climb and 5 m of give-back to end it.
func DefaultSegmenter() ThresholdSegmenter {
	return ThresholdSegmenter{StartRiseM: 2, GiveBackM: 5}
}

func (s ThresholdSegmenter) Segment(elevations []float64) []model.ClimbCandidate {
	if len(elevations) < 2 {
		return nil
	}

	var (
		out        []model.ClimbCandidate
		climbing   bool
		start      int
		low        int
		runningMax float64
	)

	for i := 1; i < len(elevations); i++ {
		e := elevations[i]
		if !climbing {
			if elevations[i-1] < elevations[low] {
				low = i - 1
			}
			if e > elevations[low]+s.StartRiseM {
				climbing = true
				start = low
				runningMax = e
			}
			continue
		}

		if e > runningMax {
			runningMax = e
		}
		if e < runningMax-s.GiveBackM {
			out = append(out, model.ClimbCandidate{StartIndex: start, EndIndex: i})
			climbing = false
			low = i
		}
	}

	if climbing {
		out = append(out, model.ClimbCandidate{StartIndex: start, EndIndex: len(elevations) - 1})
	}
	return out
}
