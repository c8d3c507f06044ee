package trend

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasjlepore/fit-analytics/model"
)

var now = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func ride(date time.Time, hours, avg float64, np *float64) model.ActivitySummary {
	return model.ActivitySummary{
		ID:               date.Format("20060102"),
		Date:             date,
		DurationS:        hours * 3600,
		AvgPowerW:        avg,
		NormalizedPowerW: np,
	}
}

func TestParsePeriod(t *testing.T) {
	for _, s := range []string{"month", "quarter", "year"} {
		p, ok := ParsePeriod(s)
		assert.True(t, ok, s)
		assert.Equal(t, Period(s), p)
	}
	_, ok := ParsePeriod("week")
	assert.False(t, ok)
	assert.Equal(t, 3, PeriodQuarter.Months())
	assert.Equal(t, 12, PeriodYear.Months())
	assert.Equal(t, 1, PeriodMonth.Months())
}

func TestCompareSplitsPeriods(t *testing.T) {
	acts := []model.ActivitySummary{
		ride(now.AddDate(0, 0, -3), 2, 220, model.Float64Ptr(240)),
		ride(now.AddDate(0, 0, -10), 1, 200, nil),
		ride(now.AddDate(0, 0, -40), 1, 200, model.Float64Ptr(210)),
		ride(now.AddDate(0, 0, -90), 5, 100, nil), // outside both periods
	}

	metrics := Compare(acts, PeriodMonth, now)
	require.Len(t, metrics, 5)
	byName := map[string]Metric{}
	for _, m := range metrics {
		byName[m.Name] = m
	}

	count := byName[MetricActivityCount]
	assert.Equal(t, 2.0, count.Current)
	assert.Equal(t, 1.0, count.Previous)
	assert.InDelta(t, 100, count.ChangePct, 1e-9)

	hours := byName[MetricTotalHours]
	assert.InDelta(t, 3, hours.Current, 1e-9)
	assert.InDelta(t, 1, hours.Previous, 1e-9)

	assert.InDelta(t, 90, byName[MetricAvgDurationMin].Current, 1e-9)
	assert.InDelta(t, 210, byName[MetricAvgPower].Current, 1e-9)
	assert.InDelta(t, 5, byName[MetricAvgPower].ChangePct, 1e-9)
	assert.InDelta(t, 240, byName[MetricAvgNormalizedPower].Current, 1e-9)
}

func TestCompareZeroPreviousGivesZeroChange(t *testing.T) {
	metrics := Compare([]model.ActivitySummary{ride(now.AddDate(0, 0, -1), 1, 200, nil)}, PeriodQuarter, now)
	for _, m := range metrics {
		assert.Zero(t, m.ChangePct, m.Name)
	}
	assert.Empty(t, Improvements(metrics, 0.05))
}

func TestSeasonalZeroFills(t *testing.T) {
	acts := []model.ActivitySummary{
		ride(time.Date(2026, 6, 2, 0, 0, 0, 0, time.UTC), 2, 200, model.Float64Ptr(230)),
		ride(time.Date(2026, 6, 9, 0, 0, 0, 0, time.UTC), 1, 220, model.Float64Ptr(250)),
		ride(time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), 1, 180, nil),
		ride(time.Date(2025, 1, 9, 0, 0, 0, 0, time.UTC), 1, 180, nil), // too old
	}
	series := Seasonal(acts, now, 6)
	require.Len(t, series, 6)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), series[0].Month)
	assert.Equal(t, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), series[5].Month)

	assert.Zero(t, series[0].Activities)
	assert.Zero(t, series[0].AvgPowerW)
	assert.Equal(t, 1, series[2].Activities)

	june := series[5]
	assert.Equal(t, 2, june.Activities)
	assert.InDelta(t, 3, june.Hours, 1e-9)
	assert.InDelta(t, 210, june.AvgPowerW, 1e-9)
	assert.Equal(t, 250.0, june.BestNormalizedPowerW)
}

func TestImprovementsThreshold(t *testing.T) {
	metrics := []Metric{
		{Name: MetricAvgPower, Current: 210, Previous: 200, ChangePct: 5},
		{Name: MetricTotalHours, Current: 10.4, Previous: 10, ChangePct: 4},
		{Name: MetricActivityCount, Current: 5, Previous: 8, ChangePct: -37.5},
	}
	got := Improvements(metrics, 0.05)
	require.Len(t, got, 1)
	assert.Equal(t, MetricAvgPower, got[0].Metric)
	assert.Equal(t, "Average power (W) up 5.0% (200.0 -> 210.0)", got[0].Message)
}

func TestForecastPowerLinear(t *testing.T) {
	series := make([]SeasonalPoint, 6)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range series {
		series[i].Month = start.AddDate(0, i, 0)
		if i != 2 {
			series[i].AvgPowerW = 200 + 5*float64(i)
		}
	}

	f := ForecastPower(series)
	require.NotNil(t, f)
	assert.InDelta(t, 5, f.SlopeWPerMonth, 1e-9)
	assert.InDelta(t, 200, f.Intercept, 1e-9)
	assert.InDelta(t, 1, f.RSquared, 1e-9)
	require.Len(t, f.Points, ForecastMonths)
	assert.Equal(t, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), f.Points[0].Month)
	assert.InDelta(t, 230, f.Points[0].AvgPowerW, 1e-9)
	assert.InDelta(t, 240, f.Points[2].AvgPowerW, 1e-9)
}

func TestForecastFlatPower(t *testing.T) {
	series := []SeasonalPoint{{AvgPowerW: 220}, {AvgPowerW: 220}, {AvgPowerW: 220}}
	f := ForecastPower(series)
	require.NotNil(t, f)
	assert.InDelta(t, 0, f.SlopeWPerMonth, 1e-9)
	assert.Equal(t, 1.0, f.RSquared)
}

func TestForecastNeedsThreeMonths(t *testing.T) {
	series := []SeasonalPoint{{AvgPowerW: 200}, {}, {AvgPowerW: 210}, {}}
	assert.Nil(t, ForecastPower(series))
}

func TestAnalyzeCombines(t *testing.T) {
	var acts []model.ActivitySummary
	for m := 0; m < 4; m++ {
		acts = append(acts, ride(now.AddDate(0, -m, -1), 1, 240-20*float64(m), nil))
	}
	a := Analyze(acts, acts, PeriodMonth, now, Options{SeasonalMonths: 12, Threshold: 0.05})
	assert.Equal(t, PeriodMonth, a.Period)
	assert.Len(t, a.Comparison, 5)
	assert.Len(t, a.Seasonal, 12)
	require.NotNil(t, a.Forecast)
	assert.InDelta(t, 20, a.Forecast.SlopeWPerMonth, 1e-9)
	require.Len(t, a.Improvements, 1)
	assert.Equal(t, MetricAvgPower, a.Improvements[0].Metric)
}
