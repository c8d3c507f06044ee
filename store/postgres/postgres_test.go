package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasjlepore/fit-analytics/model"
	"github.com/lucasjlepore/fit-analytics/store"
)

func TestActivityRowRoundTripKeepsOptionalFields(t *testing.T) {
	date := time.Date(2026, 8, 2, 6, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	a := model.ActivitySummary{
		ID:               "a1",
		AthleteID:        "ath",
		Date:             date,
		DurationS:        3600,
		AvgPowerW:        210,
		NormalizedPowerW: model.Float64Ptr(225),
		Title:            "Col",
		Samples: []model.TelemetrySample{
			{Timestamp: date, ElevationM: model.Float64Ptr(800)},
		},
	}
	row := toActivityRow(a)
	assert.True(t, row.HasElevation)
	assert.False(t, row.HasCadence)
	assert.Equal(t, time.UTC, row.StartedAt.Location())

	back := row.toModel()
	assert.True(t, back.Date.Equal(date))
	assert.Equal(t, 225.0, *back.NormalizedPowerW)
	assert.Nil(t, back.MaxPowerW)
	assert.Nil(t, back.Samples)

	samples := toSampleRows(a)
	require.Len(t, samples, 1)
	assert.Equal(t, 0, samples[0].Seq)
	assert.Equal(t, "a1", samples[0].ActivityID)
}

func TestProfileUpsertTargetsNaturalKey(t *testing.T) {
	c := profileUpsert()
	require.Len(t, c.Columns, 2)
	assert.Equal(t, "athlete_id", c.Columns[0].Name)
	assert.Equal(t, "effective_date", c.Columns[1].Name)
	assert.Len(t, c.DoUpdates, 3)
}

// The live tests need a scratch database, e.g.
// FITA_TEST_POSTGRES_DSN="host=localhost user=postgres dbname=fita_test sslmode=disable".
func openLive(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("FITA_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("FITA_TEST_POSTGRES_DSN not set")
	}
	s, err := Open(dsn, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLiveSaveFetchUpsert(t *testing.T) {
	s := openLive(t)
	ctx := context.Background()
	athlete := "test-" + uuid.NewString()
	base := time.Date(2026, 8, 2, 6, 0, 0, 0, time.UTC)

	a := model.ActivitySummary{
		ID:        uuid.NewString(),
		AthleteID: athlete,
		Date:      base,
		DurationS: 2,
		AvgPowerW: 200,
		Samples: []model.TelemetrySample{
			{Timestamp: base, CadenceRPM: model.Float64Ptr(88)},
			{Timestamp: base.Add(time.Second), CadenceRPM: model.Float64Ptr(90)},
		},
	}
	require.NoError(t, s.SaveActivity(ctx, a))
	require.NoError(t, s.SaveActivity(ctx, a))

	acts, err := s.FetchActivities(ctx, athlete, nil, store.Requirements{Cadence: true, Power: true})
	require.NoError(t, err)
	require.Len(t, acts, 1)

	samples, err := s.FetchSamples(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, samples, 2)

	require.NoError(t, s.UpsertProfileEntry(ctx, athlete, base, model.ProfileFields{FTPW: model.Float64Ptr(250), WeightKG: model.Float64Ptr(70)}))
	require.NoError(t, s.UpsertProfileEntry(ctx, athlete, base.Add(3*time.Hour), model.ProfileFields{FTPW: model.Float64Ptr(255)}))

	hist, err := s.FetchProfileHistory(ctx, athlete)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, 255.0, *hist[0].FTPW)
	assert.Equal(t, 70.0, *hist[0].WeightKG)
}
