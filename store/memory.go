package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lucasjlepore/fit-analytics/model"
)

// Memory is an in-process Store. It is safe for concurrent use and backs the
// service and API tests.
type Memory struct {
	mu         sync.RWMutex
	activities map[string]model.ActivitySummary
	samples    map[string][]model.TelemetrySample
	profiles   map[string]map[time.Time]model.ProfileFields

	// Err, when set, is returned by every call.
	Err error
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		activities: make(map[string]model.ActivitySummary),
		samples:    make(map[string][]model.TelemetrySample),
		profiles:   make(map[string]map[time.Time]model.ProfileFields),
	}
}

func (m *Memory) SaveActivity(_ context.Context, activity model.ActivitySummary) error {
	if m.Err != nil {
		return m.Err
	}
	if activity.ID == "" {
		return fmt.Errorf("save activity: empty id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	samples := append([]model.TelemetrySample(nil), activity.Samples...)
	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Timestamp.Before(samples[j].Timestamp)
	})
	activity.Samples = nil
	m.activities[activity.ID] = activity
	m.samples[activity.ID] = samples
	return nil
}

func (m *Memory) FetchActivities(_ context.Context, athleteID string, since *time.Time, req Requirements) ([]model.ActivitySummary, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.ActivitySummary, 0)
	for _, a := range m.activities {
		if a.AthleteID != athleteID {
			continue
		}
		if since != nil && a.Date.Before(*since) {
			continue
		}
		if !req.Matches(a, m.samples[a.ID]) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) FetchSamples(_ context.Context, activityID string) ([]model.TelemetrySample, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.TelemetrySample(nil), m.samples[activityID]...), nil
}

func (m *Memory) FetchProfileHistory(_ context.Context, athleteID string) ([]model.ProfileEntry, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.ProfileEntry, 0, len(m.profiles[athleteID]))
	for day, fields := range m.profiles[athleteID] {
		out = append(out, model.ProfileEntry{EffectiveDate: day, ProfileFields: fields})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].EffectiveDate.Before(out[j].EffectiveDate)
	})
	return out, nil
}

func (m *Memory) UpsertProfileEntry(_ context.Context, athleteID string, effectiveDate time.Time, fields model.ProfileFields) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	byDay, ok := m.profiles[athleteID]
	if !ok {
		byDay = make(map[time.Time]model.ProfileFields)
		m.profiles[athleteID] = byDay
	}
	day := model.DayStart(effectiveDate)
	byDay[day] = MergeProfile(byDay[day], fields)
	return nil
}

// MergeProfile overlays the non-nil fields of next onto prev.
func MergeProfile(prev, next model.ProfileFields) model.ProfileFields {
	out := prev
	if next.FTPW != nil {
		out.FTPW = model.Float64Ptr(*next.FTPW)
	}
	if next.WeightKG != nil {
		out.WeightKG = model.Float64Ptr(*next.WeightKG)
	}
	return out
}
