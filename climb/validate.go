package climb

import (
	"fmt"

	"github.com/lucasjlepore/fit-analytics/model"
)

// Bounds are the physical plausibility limits a candidate must satisfy.
// Values outside them are treated as GPS artifacts.
type Bounds struct {
	MinDistanceKM  float64
	MinElevationM  float64
	MinGradientPct float64
	MaxGradientPct float64
	MinVAM         float64
	MaxVAM         float64
}

// DefaultBounds are tuned for ride-like ascents.
func DefaultBounds() Bounds {
	return Bounds{
		MinDistanceKM:  0.5,
		MinElevationM:  100,
		MinGradientPct: 3,
		MaxGradientPct: 25,
		MinVAM:         200,
		MaxVAM:         3000,
	}
}

func (b Bounds) accept(distanceKM, elevationM, gradientPct, vam float64) bool {
	return distanceKM >= b.MinDistanceKM &&
		elevationM >= b.MinElevationM &&
		gradientPct >= b.MinGradientPct && gradientPct <= b.MaxGradientPct &&
		vam >= b.MinVAM && vam <= b.MaxVAM
}

// Category thresholds on elevation gain (upper bounds, exclusive).
var elevationThresholds = []struct {
	below    float64
	category model.ClimbCategory
}{
	{300, model.CategoryCat4},
	{600, model.CategoryCat3},
	{900, model.CategoryCat2},
	{1500, model.CategoryCat1},
}

// SteepGradientPct is the default average gradient at which a climb is
// promoted one category above what its elevation gain alone would give.
// With it, 400 m at 10% lands in Cat 2 although the gain table says Cat 3.
const SteepGradientPct = 8.0

// Categorize assigns a category by elevation gain, promoted one step when the
// average gradient is at least SteepGradientPct. HC is never exceeded.
func Categorize(elevationM, gradientPct float64) model.ClimbCategory {
	return CategorizeWith(elevationM, gradientPct, SteepGradientPct)
}

// CategorizeWith is Categorize with an explicit promotion gradient. A
// steepPct of zero or less disables promotion, leaving the pure gain table.
func CategorizeWith(elevationM, gradientPct, steepPct float64) model.ClimbCategory {
	category := model.CategoryHC
	for _, t := range elevationThresholds {
		if elevationM < t.below {
			category = t.category
			break
		}
	}
	if steepPct > 0 && gradientPct >= steepPct {
		if rank := categoryRank(category); rank >= 0 && rank < len(model.Categories)-1 {
			category = model.Categories[rank+1]
		}
	}
	return category
}

func categoryRank(c model.ClimbCategory) int {
	for i, cat := range model.Categories {
		if cat == c {
			return i
		}
	}
	return -1
}

// Extractor turns one activity's samples into validated climb records.
type Extractor struct {
	Window    int
	Segmenter Segmenter
	Bounds    Bounds

	// SteepGradientPct promotes steep climbs one category; 0 disables it.
	SteepGradientPct float64
}

// NewExtractor uses the default window, segmenter, bounds and promotion.
func NewExtractor() Extractor {
	return Extractor{
		Window:           DefaultSmoothingWindow,
		Segmenter:        DefaultSegmenter(),
		Bounds:           DefaultBounds(),
		SteepGradientPct: SteepGradientPct,
	}
}

// Extract runs smoothing, segmentation, and validation over the samples of
// one activity. Samples without a plausible elevation, without a valid
// position, or with a timestamp that does not advance are skipped and
// counted; the input is not modified.
func (e Extractor) Extract(activity model.ActivitySummary, samples []model.TelemetrySample) ([]model.ClimbRecord, model.Skipped) {
	var skipped model.Skipped

	usable := make([]model.TelemetrySample, 0, len(samples))
	raw := make([]float64, 0, len(samples))
	for _, s := range samples {
		elev, ok := s.ValidElevation()
		if !ok {
			skipped.Samples++
			continue
		}
		if _, _, ok := s.ValidPosition(); !ok {
			skipped.Samples++
			continue
		}
		if n := len(usable); n > 0 && !s.Timestamp.After(usable[n-1].Timestamp) {
			skipped.Samples++
			continue
		}
		usable = append(usable, s)
		raw = append(raw, elev)
	}
	if len(usable) < 2 {
		if len(samples) > 0 {
			skipped.Activities++
		}
		return nil, skipped
	}

	segmenter := e.Segmenter
	if segmenter == nil {
		segmenter = DefaultSegmenter()
	}
	smoothed := Smooth(raw, e.Window)

	var records []model.ClimbRecord
	for _, c := range segmenter.Segment(smoothed) {
		rec, ok := e.validate(activity, usable, smoothed, c)
		if !ok {
			continue
		}
		rec.ClimbID = fmt.Sprintf("%s-c%d", activity.ID, len(records)+1)
		records = append(records, rec)
	}
	return records, skipped
}

func (e Extractor) validate(activity model.ActivitySummary, samples []model.TelemetrySample, smoothed []float64, c model.ClimbCandidate) (model.ClimbRecord, bool) {
	if c.StartIndex < 0 || c.EndIndex >= len(samples) || c.EndIndex <= c.StartIndex {
		return model.ClimbRecord{}, false
	}
	segment := samples[c.StartIndex : c.EndIndex+1]

	distanceKM := model.PathDistanceM(segment) / 1000.0
	elevationM := smoothed[c.EndIndex] - smoothed[c.StartIndex]
	durationS := segment[len(segment)-1].Timestamp.Sub(segment[0].Timestamp).Seconds()
	if distanceKM <= 0 || durationS <= 0 {
		return model.ClimbRecord{}, false
	}
	gradientPct := elevationM / (distanceKM * 1000) * 100
	vam := elevationM / (durationS / 3600)

	if !e.Bounds.accept(distanceKM, elevationM, gradientPct, vam) {
		return model.ClimbRecord{}, false
	}

	category := CategorizeWith(elevationM, gradientPct, e.SteepGradientPct)
	return model.ClimbRecord{
		Name:           fmt.Sprintf("%s climb, %.1f km at %.1f%%", category, distanceKM, gradientPct),
		Category:       category,
		DistanceKM:     distanceKM,
		ElevationM:     elevationM,
		AvgGradientPct: gradientPct,
		DurationS:      durationS,
		VAMMPerH:       vam,
		AvgPowerW:      segmentPower(segment),
		ActivityID:     activity.ID,
		Date:           activity.Date,
	}, true
}

// segmentPower averages the samples that carry a valid power reading. It is
// nil, never zero, when no sample does.
func segmentPower(segment []model.TelemetrySample) *float64 {
	powers := make([]float64, 0, len(segment))
	for _, s := range segment {
		if p, ok := s.ValidPower(); ok {
			powers = append(powers, p)
		}
	}
	if len(powers) == 0 {
		return nil
	}
	avg := model.Average(powers)
	return &avg
}
