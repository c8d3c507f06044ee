// Package climb finds, validates, groups, and summarizes climbs in elevation
// telemetry.
package climb

// DefaultSmoothingWindow is the half-width of the centered moving average.
const DefaultSmoothingWindow = 5

// Smooth replaces every interior point with the unweighted mean of the
// 2w+1 points centered on it. The first and last w points are copied through
// unchanged. Series shorter than 2w+1 are returned as a copy.
func Smooth(values []float64, w int) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	if w <= 0 || len(values) < 2*w+1 {
		return out
	}

	span := float64(2*w + 1)
	sum := 0.0
	for i := 0; i < 2*w+1; i++ {
		sum += values[i]
	}
	out[w] = sum / span
	for i := w + 1; i < len(values)-w; i++ {
		sum += values[i+w] - values[i-w-1]
		out[i] = sum / span
	}
	return out
}
