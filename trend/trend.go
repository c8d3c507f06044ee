// Package trend compares training periods, builds a seasonal monthly
// series, and projects average power forward.
package trend

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/lucasjlepore/fit-analytics/model"
)

// Period is the comparison window.
type Period string

const (
	PeriodMonth   Period = "month"
	PeriodQuarter Period = "quarter"
	PeriodYear    Period = "year"
)

// ParsePeriod accepts month, quarter, or year.
func ParsePeriod(s string) (Period, bool) {
	switch Period(s) {
	case PeriodMonth, PeriodQuarter, PeriodYear:
		return Period(s), true
	}
	return "", false
}

// Months is the length of the period in calendar months.
func (p Period) Months() int {
	switch p {
	case PeriodQuarter:
		return 3
	case PeriodYear:
		return 12
	default:
		return 1
	}
}

// Metric names.
const (
	MetricActivityCount      = "activity_count"
	MetricTotalHours         = "total_hours"
	MetricAvgDurationMin     = "avg_duration_min"
	MetricAvgPower           = "avg_power_w"
	MetricAvgNormalizedPower = "avg_normalized_power_w"
)

// ForecastMonths is how far the power forecast projects.
const ForecastMonths = 3

// Metric compares one quantity across the current and previous period.
type Metric struct {
	Name      string  `json:"name"`
	Current   float64 `json:"current"`
	Previous  float64 `json:"previous"`
	ChangePct float64 `json:"change_pct"`
}

// SeasonalPoint aggregates one calendar month.
type SeasonalPoint struct {
	Month                time.Time `json:"month"`
	Activities           int       `json:"activities"`
	Hours                float64   `json:"hours"`
	AvgPowerW            float64   `json:"avg_power_w"`
	BestNormalizedPowerW float64   `json:"best_normalized_power_w"`
}

// Improvement is a metric that rose by at least the threshold.
type Improvement struct {
	Metric    string  `json:"metric"`
	ChangePct float64 `json:"change_pct"`
	Message   string  `json:"message"`
}

// ForecastPoint is one projected month.
type ForecastPoint struct {
	Month     time.Time `json:"month"`
	AvgPowerW float64   `json:"avg_power_w"`
}

// Forecast is a least-squares line through monthly average power.
type Forecast struct {
	SlopeWPerMonth float64         `json:"slope_w_per_month"`
	Intercept      float64         `json:"intercept_w"`
	RSquared       float64         `json:"r_squared"`
	Points         []ForecastPoint `json:"points"`
}

// Analysis is the full trend report.
type Analysis struct {
	Period       Period          `json:"period"`
	Comparison   []Metric        `json:"comparison_metrics"`
	Seasonal     []SeasonalPoint `json:"seasonal_series"`
	Improvements []Improvement   `json:"improvements"`
	Forecast     *Forecast       `json:"forecast"`
}

// Options tune Analyze.
type Options struct {
	SeasonalMonths int
	// Threshold is the relative change that counts as an improvement.
	Threshold float64
}

// Compare splits activities into the period ending at now and the equal
// period before it.
func Compare(activities []model.ActivitySummary, period Period, now time.Time) []Metric {
	currentStart := now.AddDate(0, -period.Months(), 0)
	previousStart := currentStart.AddDate(0, -period.Months(), 0)

	var current, previous []model.ActivitySummary
	for _, a := range activities {
		switch {
		case a.Date.After(now):
		case !a.Date.Before(currentStart):
			current = append(current, a)
		case !a.Date.Before(previousStart):
			previous = append(previous, a)
		}
	}

	cur, prev := summarize(current), summarize(previous)
	names := []string{MetricActivityCount, MetricTotalHours, MetricAvgDurationMin, MetricAvgPower, MetricAvgNormalizedPower}
	out := make([]Metric, 0, len(names))
	for _, name := range names {
		out = append(out, Metric{
			Name:      name,
			Current:   cur[name],
			Previous:  prev[name],
			ChangePct: model.PctChange(prev[name], cur[name]),
		})
	}
	return out
}

func summarize(activities []model.ActivitySummary) map[string]float64 {
	var durations, powers, nps []float64
	for _, a := range activities {
		durations = append(durations, a.DurationS)
		if a.AvgPowerW > 0 {
			powers = append(powers, a.AvgPowerW)
		}
		if a.NormalizedPowerW != nil && *a.NormalizedPowerW > 0 {
			nps = append(nps, *a.NormalizedPowerW)
		}
	}
	return map[string]float64{
		MetricActivityCount:      float64(len(activities)),
		MetricTotalHours:         model.Sum(durations) / 3600,
		MetricAvgDurationMin:     model.Average(durations) / 60,
		MetricAvgPower:           model.Average(powers),
		MetricAvgNormalizedPower: model.Average(nps),
	}
}

// Seasonal buckets activities into months calendar months ending with the
// month of now, oldest first. Empty months report zero.
func Seasonal(activities []model.ActivitySummary, now time.Time, months int) []SeasonalPoint {
	if months <= 0 {
		return nil
	}
	end := model.MonthStart(now)
	start := end.AddDate(0, -(months - 1), 0)

	out := make([]SeasonalPoint, months)
	powers := make([][]float64, months)
	for i := range out {
		out[i].Month = start.AddDate(0, i, 0)
	}
	for _, a := range activities {
		idx := model.MonthsBetween(start, a.Date) - 1
		if idx < 0 || idx >= months {
			continue
		}
		out[idx].Activities++
		out[idx].Hours += a.DurationS / 3600
		if a.AvgPowerW > 0 {
			powers[idx] = append(powers[idx], a.AvgPowerW)
		}
		if a.NormalizedPowerW != nil && *a.NormalizedPowerW > out[idx].BestNormalizedPowerW {
			out[idx].BestNormalizedPowerW = *a.NormalizedPowerW
		}
	}
	for i := range out {
		out[i].AvgPowerW = model.Average(powers[i])
	}
	return out
}

// Improvements lists metrics whose change reaches threshold (a fraction).
func Improvements(metrics []Metric, threshold float64) []Improvement {
	out := make([]Improvement, 0)
	for _, m := range metrics {
		if m.Previous <= 0 || m.ChangePct < threshold*100 {
			continue
		}
		out = append(out, Improvement{
			Metric:    m.Name,
			ChangePct: m.ChangePct,
			Message:   fmt.Sprintf("%s up %.1f%% (%.1f -> %.1f)", metricLabel(m.Name), m.ChangePct, m.Previous, m.Current),
		})
	}
	return out
}

func metricLabel(name string) string {
	switch name {
	case MetricActivityCount:
		return "Activity count"
	case MetricTotalHours:
		return "Training hours"
	case MetricAvgDurationMin:
		return "Average ride length (min)"
	case MetricAvgPower:
		return "Average power (W)"
	case MetricAvgNormalizedPower:
		return "Average normalized power (W)"
	default:
		return name
	}
}

// ForecastPower fits a line through the months that have power and projects
// ForecastMonths beyond the series. It needs at least three such months.
func ForecastPower(series []SeasonalPoint) *Forecast {
	var xs, ys []float64
	for i, p := range series {
		if p.AvgPowerW <= 0 {
			continue
		}
		xs = append(xs, float64(i))
		ys = append(ys, p.AvgPowerW)
	}
	if len(xs) < 3 {
		return nil
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	r2 := stat.RSquared(xs, ys, nil, alpha, beta)
	if !model.IsFinite(r2) {
		// Constant power: the flat line fits exactly.
		r2 = 1
	}
	f := &Forecast{
		SlopeWPerMonth: beta,
		Intercept:      alpha,
		RSquared:       r2,
		Points:         make([]ForecastPoint, 0, ForecastMonths),
	}
	last := series[len(series)-1].Month
	for k := 1; k <= ForecastMonths; k++ {
		x := float64(len(series) - 1 + k)
		f.Points = append(f.Points, ForecastPoint{
			Month:     last.AddDate(0, k, 0),
			AvgPowerW: alpha + beta*x,
		})
	}
	return f
}

// Analyze runs the comparison on comparison and the seasonal series and
// forecast on seasonal. The two sets may come from different windows.
func Analyze(comparison, seasonal []model.ActivitySummary, period Period, now time.Time, opts Options) Analysis {
	metrics := Compare(comparison, period, now)
	series := Seasonal(seasonal, now, opts.SeasonalMonths)
	return Analysis{
		Period:       period,
		Comparison:   metrics,
		Seasonal:     series,
		Improvements: Improvements(metrics, opts.Threshold),
		Forecast:     ForecastPower(series),
	}
}
