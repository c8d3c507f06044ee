package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasjlepore/fit-analytics/model"
	"github.com/lucasjlepore/fit-analytics/store"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testActivity(id string, date time.Time, withElevation, withCadence bool) model.ActivitySummary {
	samples := make([]model.TelemetrySample, 3)
	for i := range samples {
		s := model.TelemetrySample{
			Timestamp: date.Add(time.Duration(i) * time.Second),
			Lat:       model.Float64Ptr(45.0 + float64(i)*0.0001),
			Lng:       model.Float64Ptr(7.0),
			PowerW:    model.Float64Ptr(200 + float64(i)),
		}
		if withElevation {
			s.ElevationM = model.Float64Ptr(100 + float64(i))
		}
		if withCadence {
			s.CadenceRPM = model.Float64Ptr(90)
		}
		samples[i] = s
	}
	return model.ActivitySummary{
		ID:               id,
		AthleteID:        "ath-1",
		Date:             date,
		DurationS:        3,
		AvgPowerW:        201,
		NormalizedPowerW: model.Float64Ptr(202),
		Title:            "Ride " + id,
		Samples:          samples,
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.MigrateUp())
	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)
}

func TestSaveAndFetchActivities(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	base := time.Date(2026, 7, 1, 7, 0, 0, 0, time.UTC)

	require.NoError(t, db.SaveActivity(ctx, testActivity("a1", base, true, false)))
	require.NoError(t, db.SaveActivity(ctx, testActivity("a2", base.AddDate(0, 0, 3), false, true)))

	all, err := db.FetchActivities(ctx, "ath-1", nil, store.Requirements{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a2", all[0].ID)
	assert.True(t, all[1].Date.Equal(base))
	require.NotNil(t, all[1].NormalizedPowerW)
	assert.Equal(t, 202.0, *all[1].NormalizedPowerW)
	assert.Nil(t, all[1].MaxPowerW)

	elev, err := db.FetchActivities(ctx, "ath-1", nil, store.Requirements{Elevation: true})
	require.NoError(t, err)
	require.Len(t, elev, 1)
	assert.Equal(t, "a1", elev[0].ID)

	cad, err := db.FetchActivities(ctx, "ath-1", nil, store.Requirements{Cadence: true, Power: true})
	require.NoError(t, err)
	require.Len(t, cad, 1)
	assert.Equal(t, "a2", cad[0].ID)

	since := base.AddDate(0, 0, 1)
	recent, err := db.FetchActivities(ctx, "ath-1", &since, store.Requirements{})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "a2", recent[0].ID)

	none, err := db.FetchActivities(ctx, "someone-else", nil, store.Requirements{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSaveActivityReplacesSamples(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	base := time.Date(2026, 7, 1, 7, 0, 0, 0, time.UTC)

	a := testActivity("a1", base, true, false)
	require.NoError(t, db.SaveActivity(ctx, a))
	a.Samples = a.Samples[:2]
	a.Title = "Renamed"
	require.NoError(t, db.SaveActivity(ctx, a))

	samples, err := db.FetchSamples(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.True(t, samples[0].Timestamp.Equal(base))
	require.NotNil(t, samples[1].ElevationM)
	assert.Equal(t, 101.0, *samples[1].ElevationM)
	assert.Nil(t, samples[1].CadenceRPM)

	acts, err := db.FetchActivities(ctx, "ath-1", nil, store.Requirements{})
	require.NoError(t, err)
	require.Len(t, acts, 1)
	assert.Equal(t, "Renamed", acts[0].Title)
}

func TestSamplePositionRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	a := testActivity("a1", time.Date(2026, 7, 1, 7, 0, 0, 0, time.UTC), true, false)
	a.Samples[1].Lat = nil
	a.Samples[1].Lng = nil
	require.NoError(t, db.SaveActivity(ctx, a))

	samples, err := db.FetchSamples(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, samples, 3)
	require.NotNil(t, samples[0].Lat)
	assert.InDelta(t, 45.0, *samples[0].Lat, 1e-9)
	assert.Nil(t, samples[1].Lat)
	assert.Nil(t, samples[1].Lng)
	_, _, ok := samples[1].ValidPosition()
	assert.False(t, ok)
}

func TestFetchSamplesUnknownActivity(t *testing.T) {
	db := openTestDB(t)
	samples, err := db.FetchSamples(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestUpsertProfileEntry(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	day := time.Date(2026, 7, 4, 18, 30, 0, 0, time.UTC)

	require.NoError(t, db.UpsertProfileEntry(ctx, "ath-1", day, model.ProfileFields{FTPW: model.Float64Ptr(250), WeightKG: model.Float64Ptr(71)}))
	require.NoError(t, db.UpsertProfileEntry(ctx, "ath-1", day.Add(2*time.Hour), model.ProfileFields{FTPW: model.Float64Ptr(262)}))
	require.NoError(t, db.UpsertProfileEntry(ctx, "ath-1", day.AddDate(0, -1, 0), model.ProfileFields{FTPW: model.Float64Ptr(240)}))

	hist, err := db.FetchProfileHistory(ctx, "ath-1")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, 240.0, *hist[0].FTPW)
	assert.Nil(t, hist[0].WeightKG)
	assert.Equal(t, time.Date(2026, 7, 4, 0, 0, 0, 0, time.UTC), hist[1].EffectiveDate)
	assert.Equal(t, 262.0, *hist[1].FTPW)
	assert.Equal(t, 71.0, *hist[1].WeightKG)
}

func TestConcurrentUpsertSameDay(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	day := time.Date(2026, 7, 4, 0, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(w float64) {
			defer wg.Done()
			errs <- db.UpsertProfileEntry(ctx, "ath-1", day, model.ProfileFields{FTPW: model.Float64Ptr(w)})
		}(float64(250 + i))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	hist, err := db.FetchProfileHistory(ctx, "ath-1")
	require.NoError(t, err)
	assert.Len(t, hist, 1)
}
