// Package power builds best-effort power curves and estimates functional
// threshold power from activity summaries.
package power

import (
	"regexp"
	"strings"

	"github.com/lucasjlepore/fit-analytics/model"
)

// WorkoutType is the coarse intent of an activity.
type WorkoutType string

const (
	WorkoutTest       WorkoutType = "test"
	WorkoutRace       WorkoutType = "race"
	WorkoutStructured WorkoutType = "workout"
	WorkoutEndurance  WorkoutType = "endurance"
	WorkoutUnknown    WorkoutType = "unknown"
)

// Classifier decides what kind of session an activity was. referenceFTP is
// the athlete's FTP at the time of the activity, 0 when unknown.
type Classifier interface {
	Classify(a model.ActivitySummary, referenceFTP float64) WorkoutType
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(a model.ActivitySummary, referenceFTP float64) WorkoutType

func (f ClassifierFunc) Classify(a model.ActivitySummary, referenceFTP float64) WorkoutType {
	return f(a, referenceFTP)
}

// PatternClassifier matches the title against keyword vocabularies and falls
// back to the shape of the effort when nothing matches. Vocabularies are
// checked in the order test, race, workout.
type PatternClassifier struct {
	Test    []*regexp.Regexp
	Race    []*regexp.Regexp
	Workout []*regexp.Regexp
}

var (
	defaultTestPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\bftp\b`),
		regexp.MustCompile(`\btest\b`),
		regexp.MustCompile(`\bassessment\b`),
		regexp.MustCompile(`\bcp\s?\d+\b`),
	}
	defaultRacePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\brace\b`),
		regexp.MustCompile(`\bcrit(erium)?\b`),
		regexp.MustCompile(`\btime trial\b`),
		regexp.MustCompile(`\bitt\b`),
		regexp.MustCompile(`\bgran ?fondo\b`),
		regexp.MustCompile(`\bhill ?climb\b`),
		regexp.MustCompile(`\bcyclo-?cross\b`),
	}
	defaultWorkoutPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\bintervals?\b`),
		regexp.MustCompile(`\bsweet ?spot\b`),
		regexp.MustCompile(`\bvo2`),
		regexp.MustCompile(`\btempo\b`),
		regexp.MustCompile(`\bthreshold\b`),
		regexp.MustCompile(`\bover[- ]?unders?\b`),
		regexp.MustCompile(`\bworkout\b`),
		regexp.MustCompile(`\d+\s*x\s*\d+`),
	}
)

// DefaultClassifier uses English cycling vocabularies.
func DefaultClassifier() PatternClassifier {
	return PatternClassifier{
		Test:    defaultTestPatterns,
		Race:    defaultRacePatterns,
		Workout: defaultWorkoutPatterns,
	}
}

func (c PatternClassifier) Classify(a model.ActivitySummary, referenceFTP float64) WorkoutType {
	title := strings.ToLower(strings.TrimSpace(a.Title))
	if title != "" {
		switch {
		case matchAny(c.Test, title):
			return WorkoutTest
		case matchAny(c.Race, title):
			return WorkoutRace
		case matchAny(c.Workout, title):
			return WorkoutStructured
		}
	}
	return classifyShape(a, referenceFTP)
}

// classifyShape: an 8-25 minute effort whose normalized power is above 95%
// of its average looks like a test, a long easy ride is endurance.
func classifyShape(a model.ActivitySummary, referenceFTP float64) WorkoutType {
	if a.DurationS >= 8*60 && a.DurationS <= 25*60 && a.AvgPowerW > 0 && a.NormalizedPowerW != nil {
		if model.SafeDiv(*a.NormalizedPowerW, a.AvgPowerW) > 0.95 {
			return WorkoutTest
		}
	}
	if a.DurationS > 60*60 && referenceFTP > 0 {
		if IntensityFactor(a, referenceFTP) < 0.75 {
			return WorkoutEndurance
		}
	}
	return WorkoutUnknown
}

// IntensityFactor is the effective power of the activity relative to FTP.
func IntensityFactor(a model.ActivitySummary, ftp float64) float64 {
	return model.SafeDiv(a.EffectivePower(), ftp)
}

func matchAny(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}
