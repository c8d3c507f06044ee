package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasjlepore/fit-analytics/model"
)

func sample(ts time.Time, elev, cad *float64) model.TelemetrySample {
	return model.TelemetrySample{Timestamp: ts, ElevationM: elev, CadenceRPM: cad}
}

func TestMemoryFetchActivitiesFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, m.SaveActivity(ctx, model.ActivitySummary{
		ID: "old", AthleteID: "a", Date: base, AvgPowerW: 200,
		Samples: []model.TelemetrySample{sample(base, model.Float64Ptr(100), nil)},
	}))
	require.NoError(t, m.SaveActivity(ctx, model.ActivitySummary{
		ID: "new", AthleteID: "a", Date: base.AddDate(0, 1, 0),
		Samples: []model.TelemetrySample{sample(base, nil, model.Float64Ptr(90))},
	}))
	require.NoError(t, m.SaveActivity(ctx, model.ActivitySummary{ID: "other", AthleteID: "b", Date: base}))

	all, err := m.FetchActivities(ctx, "a", nil, Requirements{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "new", all[0].ID)
	assert.Nil(t, all[0].Samples)

	withPower, err := m.FetchActivities(ctx, "a", nil, Requirements{Power: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, activityIDs(withPower))

	withCadence, err := m.FetchActivities(ctx, "a", nil, Requirements{Cadence: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, activityIDs(withCadence))

	since := base.AddDate(0, 0, 1)
	recent, err := m.FetchActivities(ctx, "a", &since, Requirements{})
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, activityIDs(recent))
}

func TestMemorySamplesSorted(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, m.SaveActivity(ctx, model.ActivitySummary{
		ID: "x", AthleteID: "a",
		Samples: []model.TelemetrySample{
			sample(base.Add(2*time.Second), nil, nil),
			sample(base, nil, nil),
			sample(base.Add(time.Second), nil, nil),
		},
	}))
	got, err := m.FetchSamples(ctx, "x")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, got[0].Timestamp.Equal(base))
	assert.True(t, got[2].Timestamp.Equal(base.Add(2*time.Second)))

	empty, err := m.FetchSamples(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemoryUpsertProfileKeepsNilFields(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	day := time.Date(2026, 6, 1, 8, 30, 0, 0, time.UTC)

	require.NoError(t, m.UpsertProfileEntry(ctx, "a", day, model.ProfileFields{FTPW: model.Float64Ptr(250), WeightKG: model.Float64Ptr(70)}))
	require.NoError(t, m.UpsertProfileEntry(ctx, "a", day.Add(5*time.Hour), model.ProfileFields{FTPW: model.Float64Ptr(260)}))
	require.NoError(t, m.UpsertProfileEntry(ctx, "a", day.AddDate(0, 0, -10), model.ProfileFields{FTPW: model.Float64Ptr(240)}))

	hist, err := m.FetchProfileHistory(ctx, "a")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, 240.0, *hist[0].FTPW)
	assert.Equal(t, model.DayStart(day), hist[1].EffectiveDate)
	assert.Equal(t, 260.0, *hist[1].FTPW)
	assert.Equal(t, 70.0, *hist[1].WeightKG)
}

func TestMemoryConcurrentUpsertSingleRow(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	day := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(w float64) {
			defer wg.Done()
			assert.NoError(t, m.UpsertProfileEntry(ctx, "a", day, model.ProfileFields{FTPW: model.Float64Ptr(w)}))
		}(float64(200 + i))
	}
	wg.Wait()

	hist, err := m.FetchProfileHistory(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, hist, 1)
}

func TestMemoryErr(t *testing.T) {
	m := NewMemory()
	m.Err = errors.New("offline")
	_, err := m.FetchActivities(context.Background(), "a", nil, Requirements{})
	assert.EqualError(t, err, "offline")
}

func activityIDs(acts []model.ActivitySummary) []string {
	out := make([]string, len(acts))
	for i, a := range acts {
		out[i] = a.ID
	}
	return out
}
