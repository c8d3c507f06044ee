// Package store defines the telemetry sample store the analytics read from
// and write derived values back to.
package store

import (
	"context"
	"time"

	"github.com/lucasjlepore/fit-analytics/model"
)

// Requirements restricts FetchActivities to activities that carry a channel.
type Requirements struct {
	Power     bool
	Cadence   bool
	Elevation bool
}

// Store is the read side plus the one derived-value write the analytics
// perform.
type Store interface {
	// FetchActivities returns the athlete's activities on or after since,
	// newest first. A nil since means all history. Samples are not loaded.
	FetchActivities(ctx context.Context, athleteID string, since *time.Time, req Requirements) ([]model.ActivitySummary, error)
	// FetchSamples returns the samples of one activity in timestamp order.
	FetchSamples(ctx context.Context, activityID string) ([]model.TelemetrySample, error)
	// FetchProfileHistory returns profile entries, oldest first.
	FetchProfileHistory(ctx context.Context, athleteID string) ([]model.ProfileEntry, error)
	// UpsertProfileEntry writes the fields for (athleteID, effective day).
	// Nil fields keep the stored value. Last writer wins.
	UpsertProfileEntry(ctx context.Context, athleteID string, effectiveDate time.Time, fields model.ProfileFields) error
}

// Writer is implemented by stores that accept imported activities.
type Writer interface {
	// SaveActivity inserts or replaces an activity and its samples.
	SaveActivity(ctx context.Context, activity model.ActivitySummary) error
}

// ReadWriter is a store that can be populated by the importer.
type ReadWriter interface {
	Store
	Writer
}

// Matches reports whether the activity's samples satisfy req. Power is
// judged from the summary; cadence and elevation need a valid sample.
func (req Requirements) Matches(a model.ActivitySummary, samples []model.TelemetrySample) bool {
	if req.Power && a.AvgPowerW <= 0 {
		return false
	}
	if req.Cadence && !anySample(samples, func(s model.TelemetrySample) bool {
		_, ok := s.ValidCadence()
		return ok
	}) {
		return false
	}
	if req.Elevation && !anySample(samples, func(s model.TelemetrySample) bool {
		_, ok := s.ValidElevation()
		return ok
	}) {
		return false
	}
	return true
}

func anySample(samples []model.TelemetrySample, pred func(model.TelemetrySample) bool) bool {
	for _, s := range samples {
		if pred(s) {
			return true
		}
	}
	return false
}
