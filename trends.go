package fitanalytics

import (
	"context"

	"github.com/lucasjlepore/fit-analytics/store"
	"github.com/lucasjlepore/fit-analytics/trend"
)

// TrendReport is the result of AnalyzeTrends.
type TrendReport struct {
	Outcome
	trend.Analysis
}

// AnalyzeTrends compares the latest period with the one before it and
// builds the seasonal series and power forecast.
func (s *Service) AnalyzeTrends(ctx context.Context, athleteID, period string) (TrendReport, error) {
	if err := validateAthlete(athleteID); err != nil {
		return TrendReport{}, err
	}
	p, err := validatePeriod(period)
	if err != nil {
		return TrendReport{}, err
	}

	requested := 2 * p.Months()
	if requested > MaxPeriodMonths {
		requested = MaxPeriodMonths
	}
	res, err := s.retrieveActivities(ctx, athleteID, requested, s.opts.MinRecords.Trends, store.Requirements{})
	if err != nil {
		return TrendReport{}, err
	}
	report := TrendReport{Outcome: outcomeOf(res)}
	report.Period = p
	if !report.OK() {
		report.Reason = shortfall("activities", len(res.Records), s.opts.MinRecords.Trends)
		return report, nil
	}

	now := s.now()
	seasonal := res.Records
	if !res.Window.AllHistory && res.Window.ActualMonthsUsed < s.opts.SeasonalMonths {
		since := now.AddDate(0, -s.opts.SeasonalMonths, 0)
		seasonal, err = s.store.FetchActivities(ctx, athleteID, &since, store.Requirements{})
		if err != nil {
			return TrendReport{}, wrapFetch("fetch_activities", err)
		}
	}

	report.Analysis = trend.Analyze(res.Records, seasonal, p, now, trend.Options{
		SeasonalMonths: s.opts.SeasonalMonths,
		Threshold:      s.opts.TrendThreshold,
	})
	s.logger.Printf("trends: athlete %s: %s comparison over %d activities, %d improvements",
		athleteID, p, len(res.Records), len(report.Improvements))
	return report, nil
}
