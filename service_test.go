package fitanalytics

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasjlepore/fit-analytics/lookback"
	"github.com/lucasjlepore/fit-analytics/model"
	"github.com/lucasjlepore/fit-analytics/store"
)

const (
	athlete            = "ath-1"
	metersPerDegreeLat = 6371000.0 * 3.141592653589793 / 180
)

var now = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T, mem *store.Memory, mutate ...func(*Options)) *Service {
	t.Helper()
	opts := DefaultOptions()
	opts.Clock = lookback.FixedClock{T: now}
	for _, m := range mutate {
		m(&opts)
	}
	return New(mem, nil, opts)
}

func save(t *testing.T, mem *store.Memory, acts ...model.ActivitySummary) {
	t.Helper()
	for _, a := range acts {
		require.NoError(t, mem.SaveActivity(context.Background(), a))
	}
}

// climbRide is a 1 Hz ride up a steady 400 m, 4 km ramp lasting n seconds.
func climbRide(id string, date time.Time, n int) model.ActivitySummary {
	samples := make([]model.TelemetrySample, n)
	for i := range samples {
		frac := float64(i) / float64(n-1)
		samples[i] = model.TelemetrySample{
			Timestamp:  date.Add(time.Duration(i) * time.Second),
			Lat:        model.Float64Ptr(45 + frac*4000/metersPerDegreeLat),
			Lng:        model.Float64Ptr(7),
			ElevationM: model.Float64Ptr(200 + frac*400),
			PowerW:     model.Float64Ptr(250),
		}
	}
	return model.ActivitySummary{
		ID:        id,
		AthleteID: athlete,
		Date:      date,
		DurationS: float64(n),
		AvgPowerW: 250,
		Title:     "Col ride",
		Samples:   samples,
	}
}

func powerRide(id, title string, date time.Time, durationS, avg float64, np *float64) model.ActivitySummary {
	return model.ActivitySummary{
		ID:               id,
		AthleteID:        athlete,
		Date:             date,
		DurationS:        durationS,
		AvgPowerW:        avg,
		NormalizedPowerW: np,
		Title:            title,
	}
}

func cadenceRide(id string, date time.Time, n int, rpm, watts, hr float64) model.ActivitySummary {
	a := powerRide(id, "Spin", date, float64(n), watts, nil)
	for i := 0; i < n; i++ {
		a.Samples = append(a.Samples, model.TelemetrySample{
			Timestamp:    date.Add(time.Duration(i) * time.Second),
			CadenceRPM:   model.Float64Ptr(rpm),
			PowerW:       model.Float64Ptr(watts),
			HeartRateBPM: model.Float64Ptr(hr),
		})
	}
	return a
}

func TestAnalyzeClimbsGroupsRepeatedClimb(t *testing.T) {
	mem := store.NewMemory()
	save(t, mem,
		climbRide("a-old", now.AddDate(0, 0, -70), 1200),
		climbRide("a-mid", now.AddDate(0, 0, -40), 1100),
		climbRide("a-new", now.AddDate(0, 0, -10), 1000),
	)

	r, err := newService(t, mem).AnalyzeClimbs(context.Background(), athlete, 6)
	require.NoError(t, err)
	require.True(t, r.OK(), r.Reason)
	assert.Equal(t, 6, r.Window.ActualMonthsUsed)
	assert.False(t, r.Window.Widened)
	assert.Equal(t, 3, r.Window.SampleCount)

	require.Len(t, r.Records, 3)
	assert.Equal(t, "a-old", r.Records[0].ActivityID, "records are oldest first")
	assert.Equal(t, "a-old-c1", r.Records[0].ClimbID)

	require.Len(t, r.Performances, 1)
	p := r.Performances[0]
	assert.Equal(t, 3, p.Attempts)
	assert.Equal(t, model.TrendImproving, p.Trend)
	assert.Equal(t, "a-new", p.Best.ActivityID)
	assert.True(t, p.LastAttempt.Equal(now.AddDate(0, 0, -10)))

	assert.Len(t, r.MonthlyTrends, 12)
	require.Len(t, r.SegmentEstimates, 1)
	assert.Zero(t, r.Skipped.Samples)
}

func TestAnalyzeClimbsWidensWindow(t *testing.T) {
	mem := store.NewMemory()
	save(t, mem,
		climbRide("a1", now.AddDate(0, -2, 0), 1200),
		climbRide("a2", now.AddDate(0, -14, 0), 1200),
		climbRide("a3", now.AddDate(0, -16, 0), 1200),
	)

	r, err := newService(t, mem).AnalyzeClimbs(context.Background(), athlete, 1)
	require.NoError(t, err)
	require.True(t, r.OK())
	assert.Equal(t, 1, r.Window.RequestedMonths)
	assert.Equal(t, 18, r.Window.ActualMonthsUsed)
	assert.True(t, r.Window.Widened)
	assert.False(t, r.Window.AllHistory)

	notes := BuildClimbNotes(r)
	assert.Contains(t, notes, "Window extended automatically from 1 to 18 months")
	assert.Contains(t, notes, "3 attempts")
}

func TestAnalyzeClimbsInsufficientData(t *testing.T) {
	mem := store.NewMemory()
	r, err := newService(t, mem).AnalyzeClimbs(context.Background(), athlete, 3)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInsufficientData, r.Status)
	assert.True(t, r.Window.AllHistory)
	assert.Contains(t, r.Reason, "no activities")
	assert.Contains(t, BuildClimbNotes(r), "Insufficient data")
}

func TestAnalyzeClimbsFlatRidesHaveNoClimbs(t *testing.T) {
	mem := store.NewMemory()
	for i, id := range []string{"f1", "f2", "f3"} {
		a := climbRide(id, now.AddDate(0, 0, -i-1), 600)
		for j := range a.Samples {
			a.Samples[j].ElevationM = model.Float64Ptr(100)
		}
		save(t, mem, a)
	}
	r, err := newService(t, mem).AnalyzeClimbs(context.Background(), athlete, 3)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInsufficientData, r.Status)
	assert.Equal(t, "no climbs found in 3 activities", r.Reason)
}

func TestValidationRunsBeforeFetch(t *testing.T) {
	mem := store.NewMemory()
	mem.Err = errors.New("store down")
	svc := newService(t, mem)
	ctx := context.Background()
	bad := 40.0
	nan := 0.0

	cases := map[string]func() error{
		"blank athlete": func() error { _, err := svc.AnalyzeClimbs(ctx, "  ", 6); return err },
		"zero months":   func() error { _, err := svc.EstimateFTP(ctx, athlete, 0); return err },
		"25 months":     func() error { _, err := svc.AnalyzeClimbs(ctx, athlete, 25); return err },
		"low ftp":       func() error { _, err := svc.AnalyzeCadence(ctx, athlete, 6, &bad); return err },
		"nan ftp": func() error {
			v := nan / nan
			_, err := svc.AnalyzeCadence(ctx, athlete, 6, &v)
			return err
		},
		"bad period": func() error { _, err := svc.AnalyzeTrends(ctx, athlete, "week"); return err },
	}
	for name, call := range cases {
		err := call()
		var verr *ValidationError
		assert.True(t, errors.As(err, &verr), "%s: got %v", name, err)
	}
}

func TestStoreFailureIsFetchError(t *testing.T) {
	boom := errors.New("connection refused")
	mem := store.NewMemory()
	mem.Err = boom
	svc := newService(t, mem)

	_, err := svc.AnalyzeClimbs(context.Background(), athlete, 6)
	var ferr *FetchError
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, "fetch_activities", ferr.Op)
	assert.ErrorIs(t, err, boom)

	_, err = svc.EstimateFTP(context.Background(), athlete, 6)
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, "fetch_profile_history", ferr.Op)
}

func TestEstimateFTPPersistsReliableEstimate(t *testing.T) {
	mem := store.NewMemory()
	save(t, mem,
		powerRide("t1", "FTP Test", now.AddDate(0, 0, -5), 1200, 280, nil),
		powerRide("e1", "Long endurance", now.AddDate(0, 0, -20), 7200, 180, model.Float64Ptr(190)),
		powerRide("w1", "Tempo", now.AddDate(0, 0, -30), 3600, 230, model.Float64Ptr(240)),
	)
	ctx := context.Background()

	r, err := newService(t, mem).EstimateFTP(ctx, athlete, 3)
	require.NoError(t, err)
	require.True(t, r.OK(), r.Reason)
	require.NotNil(t, r.FTP)
	assert.Equal(t, 266.0, r.FTP.ValueW)
	assert.Equal(t, model.MethodTwentyMinuteTest, r.FTP.Method)
	assert.True(t, r.Persisted)
	assert.NotEmpty(t, r.Curve)

	hist, err := mem.FetchProfileHistory(ctx, athlete)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.True(t, hist[0].EffectiveDate.Equal(model.DayStart(now)))
	assert.Equal(t, 266.0, *hist[0].FTPW)

	// A second run on the same day updates the same entry.
	_, err = newService(t, mem).EstimateFTP(ctx, athlete, 3)
	require.NoError(t, err)
	hist, err = mem.FetchProfileHistory(ctx, athlete)
	require.NoError(t, err)
	assert.Len(t, hist, 1)

	assert.Contains(t, BuildFTPNotes(r), "FTP 266 W via TWENTY_MINUTE_TEST")
}

func TestEstimateFTPWithoutPersistence(t *testing.T) {
	mem := store.NewMemory()
	save(t, mem,
		powerRide("t1", "FTP Test", now.AddDate(0, 0, -5), 1200, 280, nil),
		powerRide("r1", "Ride", now.AddDate(0, 0, -6), 3600, 200, nil),
		powerRide("r2", "Ride", now.AddDate(0, 0, -7), 3600, 210, nil),
	)
	svc := newService(t, mem, func(o *Options) { o.PersistFTP = false })

	r, err := svc.EstimateFTP(context.Background(), athlete, 3)
	require.NoError(t, err)
	require.NotNil(t, r.FTP)
	assert.False(t, r.Persisted)

	hist, err := mem.FetchProfileHistory(context.Background(), athlete)
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func TestEstimateFTPNoEstimate(t *testing.T) {
	mem := store.NewMemory()
	save(t, mem,
		powerRide("s1", "Coffee", now.AddDate(0, 0, -1), 600, 150, nil),
		powerRide("s2", "Coffee", now.AddDate(0, 0, -2), 300, 180, nil),
		powerRide("s3", "Coffee", now.AddDate(0, 0, -3), 400, 160, nil),
	)
	r, err := newService(t, mem).EstimateFTP(context.Background(), athlete, 3)
	require.NoError(t, err)
	assert.Nil(t, r.FTP)
	assert.Equal(t, model.StatusInsufficientData, r.Status)
	assert.Len(t, r.Curve, 2)
}

func TestAnalyzeCadenceFTPSource(t *testing.T) {
	mem := store.NewMemory()
	save(t, mem,
		cadenceRide("c1", now.AddDate(0, 0, -1), 400, 90, 200, 140),
		cadenceRide("c2", now.AddDate(0, 0, -2), 400, 90, 200, 140),
		cadenceRide("c3", now.AddDate(0, 0, -3), 400, 90, 200, 140),
	)
	ctx := context.Background()
	require.NoError(t, mem.UpsertProfileEntry(ctx, athlete, now.AddDate(0, -1, 0), model.ProfileFields{FTPW: model.Float64Ptr(250)}))
	svc := newService(t, mem)

	r, err := svc.AnalyzeCadence(ctx, athlete, 3, nil)
	require.NoError(t, err)
	require.True(t, r.OK(), r.Reason)
	assert.Equal(t, FTPSourceProfile, r.FTPSource)
	assert.Equal(t, 250.0, r.FTPW)
	assert.Equal(t, 1200, r.SampleCount)
	require.Len(t, r.CadenceByZone, 7)
	assert.Equal(t, 1200.0, r.CadenceByZone[2].Seconds, "200 W is tempo at 250 W FTP")
	require.NotNil(t, r.OptimalCadenceRPM)
	assert.Equal(t, 95.0, *r.OptimalCadenceRPM)

	ftp := 300.0
	r, err = svc.AnalyzeCadence(ctx, athlete, 3, &ftp)
	require.NoError(t, err)
	assert.Equal(t, FTPSourceArgument, r.FTPSource)
	assert.Equal(t, 1200.0, r.CadenceByZone[1].Seconds, "200 W is endurance at 300 W FTP")
	assert.Contains(t, BuildCadenceNotes(r), "Optimal cadence ~95 rpm")
}

func TestAnalyzeCadenceCountsSkippedOnce(t *testing.T) {
	mem := store.NewMemory()
	broken := cadenceRide("c4", now.AddDate(0, 0, -4), 50, 90, 200, 140)
	for i := range broken.Samples {
		broken.Samples[i].PowerW = model.Float64Ptr(-5)
	}
	partial := cadenceRide("c3", now.AddDate(0, 0, -3), 400, 90, 200, 140)
	partial.Samples[0].PowerW = model.Float64Ptr(-5)
	save(t, mem,
		cadenceRide("c1", now.AddDate(0, 0, -1), 400, 90, 200, 140),
		cadenceRide("c2", now.AddDate(0, 0, -2), 400, 90, 200, 140),
		partial,
		broken,
	)

	var logs bytes.Buffer
	opts := DefaultOptions()
	opts.Clock = lookback.FixedClock{T: now}
	svc := New(mem, log.New(&logs, "", 0), opts)

	r, err := svc.AnalyzeCadence(context.Background(), athlete, 3, nil)
	require.NoError(t, err)
	require.True(t, r.OK(), r.Reason)
	assert.Equal(t, model.Skipped{Samples: 51, Activities: 1}, r.Skipped)
	assert.Equal(t, 1199, r.SampleCount)
	assert.Equal(t, 1, strings.Count(logs.String(), "activity c4:"))
	assert.Equal(t, 1, strings.Count(logs.String(), "activity c3:"))
	assert.NotContains(t, logs.String(), "activity c1:")
}

func TestAnalyzeCadenceWithoutFTP(t *testing.T) {
	mem := store.NewMemory()
	save(t, mem,
		cadenceRide("c1", now.AddDate(0, 0, -1), 400, 85, 200, 140),
		cadenceRide("c2", now.AddDate(0, 0, -2), 400, 85, 200, 140),
		cadenceRide("c3", now.AddDate(0, 0, -3), 400, 85, 200, 140),
	)
	r, err := newService(t, mem).AnalyzeCadence(context.Background(), athlete, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, FTPSourceNone, r.FTPSource)
	assert.Empty(t, r.CadenceByZone)
}

func TestAnalyzeTrends(t *testing.T) {
	mem := store.NewMemory()
	for m := 0; m < 8; m++ {
		watts := 260 - 5*float64(m)
		save(t, mem, powerRide(
			"r"+string(rune('a'+m)), "Ride", now.AddDate(0, -m, -1), 3600, watts, model.Float64Ptr(watts+10)))
	}

	r, err := newService(t, mem).AnalyzeTrends(context.Background(), athlete, "quarter")
	require.NoError(t, err)
	require.True(t, r.OK(), r.Reason)
	assert.Equal(t, 6, r.Window.RequestedMonths)
	assert.Equal(t, "quarter", string(r.Period))
	assert.Len(t, r.Comparison, 5)
	require.Len(t, r.Seasonal, 12)
	assert.Equal(t, 1, r.Seasonal[11].Activities)
	assert.Equal(t, 1, r.Seasonal[4].Activities, "seasonal series reaches past the comparison window")
	require.NotNil(t, r.Forecast)
	assert.InDelta(t, 5, r.Forecast.SlopeWPerMonth, 1e-9)

	notes := BuildTrendNotes(r)
	assert.Contains(t, notes, "this quarter vs the previous one")
	assert.Contains(t, notes, "Forecast: +5.0 W/month")
}

func TestConcurrentAnalysesMatchSequential(t *testing.T) {
	mem := store.NewMemory()
	save(t, mem,
		climbRide("a1", now.AddDate(0, 0, -70), 1200),
		climbRide("a2", now.AddDate(0, 0, -40), 1100),
		climbRide("a3", now.AddDate(0, 0, -10), 1000),
	)
	svc := newService(t, mem)
	ctx := context.Background()

	want, err := svc.AnalyzeClimbs(ctx, athlete, 6)
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	results := make([]ClimbReport, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.AnalyzeClimbs(ctx, athlete, 6)
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		if diff := cmp.Diff(want, results[i]); diff != "" {
			t.Fatalf("worker %d differs (-want +got):\n%s", i, diff)
		}
	}
}

func TestWindowNote(t *testing.T) {
	assert.Empty(t, WindowNote(model.AnalysisWindow{RequestedMonths: 6, ActualMonthsUsed: 6}))
	note := WindowNote(model.AnalysisWindow{RequestedMonths: 6, ActualMonthsUsed: 40, SampleCount: 2, Widened: true, AllHistory: true})
	assert.True(t, strings.HasPrefix(note, "Window extended automatically"))
	assert.Contains(t, note, "all history (40 months, 2 activities)")
}
