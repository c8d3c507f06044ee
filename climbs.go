package fitanalytics

import (
	"context"
	"fmt"

	"github.com/lucasjlepore/fit-analytics/climb"
	"github.com/lucasjlepore/fit-analytics/model"
	"github.com/lucasjlepore/fit-analytics/store"
)

// ClimbReport is the result of AnalyzeClimbs.
type ClimbReport struct {
	Outcome
	Performances     []model.ClimbPerformance `json:"performances"`
	VAMByCategory    []climb.CategoryStats    `json:"vam_by_category"`
	MonthlyTrends    []climb.MonthlyBucket    `json:"monthly_trends"`
	SegmentEstimates []climb.SegmentEstimate  `json:"segment_estimates"`

	// Records are every validated climb, oldest first. They feed exports
	// and charts and are left out of the JSON payload.
	Records []model.ClimbRecord `json:"-"`
}

func (s *Service) extractor() climb.Extractor {
	e := climb.NewExtractor()
	if s.opts.SmoothingWindow > 0 {
		e.Window = s.opts.SmoothingWindow
	}
	e.SteepGradientPct = s.opts.SteepGradientPct
	return e
}

// AnalyzeClimbs extracts climbs from the athlete's activities with
// elevation, groups repeated climbs, and summarizes performance on each.
func (s *Service) AnalyzeClimbs(ctx context.Context, athleteID string, periodMonths int) (ClimbReport, error) {
	if err := validateAthlete(athleteID); err != nil {
		return ClimbReport{}, err
	}
	if err := validatePeriodMonths(periodMonths); err != nil {
		return ClimbReport{}, err
	}

	res, err := s.retrieveActivities(ctx, athleteID, periodMonths, s.opts.MinRecords.Climbs, store.Requirements{Elevation: true})
	if err != nil {
		return ClimbReport{}, err
	}
	report := ClimbReport{Outcome: outcomeOf(res)}
	if !report.OK() {
		report.Reason = shortfall("activities with elevation data", len(res.Records), s.opts.MinRecords.Climbs)
		return report, nil
	}

	extractor := s.extractor()
	var records []model.ClimbRecord
	for _, a := range res.Records {
		samples, err := s.samplesFor(ctx, a)
		if err != nil {
			return ClimbReport{}, err
		}
		found, skipped := extractor.Extract(a, samples)
		s.logSkipped("climbs", a.ID, skipped)
		report.Skipped.Add(skipped)
		records = append(records, found...)
	}
	if len(records) == 0 {
		report.insufficient(fmt.Sprintf("no climbs found in %d activities", len(res.Records)))
		return report, nil
	}

	climb.SortRecords(records)
	groups := climb.Group(records, s.opts.Group)
	report.Performances = climb.Summarize(groups, s.opts.TrendThreshold)
	report.VAMByCategory = climb.VAMByCategory(records)
	report.MonthlyTrends = climb.MonthlyTrends(records, s.now(), s.opts.ClimbTrendMonths)
	report.SegmentEstimates = climb.EstimateSegments(report.Performances)
	report.Records = records

	s.logger.Printf("climbs: athlete %s: %d climbs in %d groups from %d activities (%d months)",
		athleteID, len(records), len(groups), len(res.Records), res.Window.ActualMonthsUsed)
	return report, nil
}
