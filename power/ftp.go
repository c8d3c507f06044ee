package power

import (
	"fmt"
	"math"
	"sort"

	"github.com/lucasjlepore/fit-analytics/model"
)

// testBand is a duration window in which a test effort converts directly to
// FTP.
type testBand struct {
	minS, maxS float64
	factor     float64
	confidence float64
	method     model.FTPMethod
	label      string
}

var testBands = []testBand{
	{minS: 19 * 60, maxS: 21 * 60, factor: 0.95, confidence: 0.95, method: model.MethodTwentyMinuteTest, label: "20-minute"},
	{minS: 7.5 * 60, maxS: 9 * 60, factor: 0.90, confidence: 0.85, method: model.MethodEightMinuteTest, label: "8-minute"},
	{minS: 59 * 60, maxS: 61 * 60, factor: 1.00, confidence: 0.98, method: model.MethodSixtyMinuteTest, label: "60-minute"},
}

const (
	curveConfidence      = 0.80
	curveReliablePoints  = 3
	workoutConfidence    = 0.75
	workoutFactor        = 1.05
	workoutMinDurationS  = 1200
	workoutMinIF         = 0.85
	workoutMaxIF         = 1.10
	longestPointMinimumS = 1200
)

// ReferenceFTP returns the athlete's known FTP at the time of an activity,
// 0 when unknown.
type ReferenceFTP func(a model.ActivitySummary) float64

// Estimator runs the FTP estimation chain: a direct test conversion, then a
// power-curve estimate, then extrapolation from a hard structured workout.
type Estimator struct {
	Classifier Classifier
	Curve      CurveBuilder
}

// NewEstimator uses the default classifier and curve targets.
func NewEstimator() Estimator {
	return Estimator{Classifier: DefaultClassifier(), Curve: CurveBuilder{Targets: DefaultTargets}}
}

// Result is the outcome of one estimation run. FTP is nil when no step
// produced an estimate.
type Result struct {
	FTP   *model.FTPEstimate      `json:"ftp"`
	Curve []model.PowerCurvePoint `json:"curve"`
}

// Estimate runs the chain over the activities. The curve is always built so
// callers can report it even when a test decided the estimate.
func (e Estimator) Estimate(activities []model.ActivitySummary, reference ReferenceFTP) Result {
	classifier := e.Classifier
	if classifier == nil {
		classifier = DefaultClassifier()
	}
	if reference == nil {
		reference = func(model.ActivitySummary) float64 { return 0 }
	}

	ordered := append([]model.ActivitySummary(nil), activities...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Date.After(ordered[j].Date)
	})

	curve := e.Curve.Build(ordered)
	res := Result{Curve: curve}

	if est := fromTest(ordered, classifier, reference); est != nil {
		res.FTP = est
		return res
	}
	if est := fromCurve(curve); est != nil {
		res.FTP = est
		return res
	}
	res.FTP = fromWorkout(ordered, classifier, reference)
	return res
}

// fromTest converts the most recent test effort that falls in a known band.
func fromTest(activities []model.ActivitySummary, classifier Classifier, reference ReferenceFTP) *model.FTPEstimate {
	for _, a := range activities {
		if a.AvgPowerW <= 0 {
			continue
		}
		if classifier.Classify(a, reference(a)) != WorkoutTest {
			continue
		}
		for _, band := range testBands {
			if a.DurationS < band.minS || a.DurationS > band.maxS {
				continue
			}
			return newEstimate(
				a.AvgPowerW*band.factor,
				band.method,
				band.confidence,
				a.ID,
				fmt.Sprintf("%s test %q averaged %.0f W over %s; FTP = %.2f x average power",
					band.label, a.Title, a.AvgPowerW, formatDuration(a.DurationS), band.factor),
			)
		}
	}
	return nil
}

// fromCurve prefers the 60-minute point, then 20, then 30, then the longest
// point of at least 20 minutes with a duration-scaled discount.
func fromCurve(curve []model.PowerCurvePoint) *model.FTPEstimate {
	byDuration := make(map[int]model.PowerCurvePoint, len(curve))
	for _, p := range curve {
		byDuration[p.DurationS] = p
	}

	pick := func(p model.PowerCurvePoint, factor float64, method model.FTPMethod) *model.FTPEstimate {
		est := newEstimate(
			p.BestPowerW*factor,
			method,
			curveConfidence,
			p.SourceActivityID,
			fmt.Sprintf("best %s power %.0f W x %.2f from a %d-point power curve",
				formatDuration(float64(p.DurationS)), p.BestPowerW, factor, len(curve)),
		)
		est.IsReliable = est.IsReliable && len(curve) >= curveReliablePoints
		return est
	}

	if p, ok := byDuration[3600]; ok {
		return pick(p, 1.00, model.MethodPowerCurve60Min)
	}
	if p, ok := byDuration[1200]; ok {
		return pick(p, 0.95, model.MethodPowerCurve20Min)
	}
	if p, ok := byDuration[1800]; ok {
		return pick(p, 0.98, model.MethodPowerCurve30Min)
	}

	var longest *model.PowerCurvePoint
	for i := range curve {
		if curve[i].DurationS < longestPointMinimumS {
			continue
		}
		if longest == nil || curve[i].DurationS > longest.DurationS {
			longest = &curve[i]
		}
	}
	if longest == nil {
		return nil
	}
	return pick(*longest, longestDiscount(longest.DurationS), model.MethodPowerCurveLongest)
}

func longestDiscount(durationS int) float64 {
	switch {
	case durationS >= 3000:
		return 0.98
	case durationS >= 1800:
		return 0.95
	default:
		return 0.92
	}
}

// fromWorkout extrapolates from the hardest qualifying structured workout.
func fromWorkout(activities []model.ActivitySummary, classifier Classifier, reference ReferenceFTP) *model.FTPEstimate {
	var (
		best    *model.ActivitySummary
		bestIF  float64
		bestRef float64
	)
	for i := range activities {
		a := activities[i]
		if a.DurationS < workoutMinDurationS {
			continue
		}
		ref := reference(a)
		if ref <= 0 {
			continue
		}
		if classifier.Classify(a, ref) != WorkoutStructured {
			continue
		}
		intensity := IntensityFactor(a, ref)
		if intensity < workoutMinIF || intensity > workoutMaxIF {
			continue
		}
		if best == nil || a.EffectivePower() > best.EffectivePower() {
			best = &activities[i]
			bestIF = intensity
			bestRef = ref
		}
	}
	if best == nil {
		return nil
	}
	return newEstimate(
		best.EffectivePower()*workoutFactor,
		model.MethodWorkoutExtrapolated,
		workoutConfidence,
		best.ID,
		fmt.Sprintf("workout %q held %.0f W for %s (IF %.2f against %.0f W); FTP = %.2f x that power",
			best.Title, best.EffectivePower(), formatDuration(best.DurationS), bestIF, bestRef, workoutFactor),
	)
}

func newEstimate(value float64, method model.FTPMethod, confidence float64, sourceID, reasoning string) *model.FTPEstimate {
	return &model.FTPEstimate{
		ValueW:           math.Round(value),
		Method:           method,
		Confidence:       confidence,
		SourceActivityID: sourceID,
		Reasoning:        reasoning,
		IsReliable:       confidence >= model.ReliableConfidence,
	}
}

func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return "0s"
	}
	total := int(seconds + 0.5)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
