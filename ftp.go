package fitanalytics

import (
	"context"

	"github.com/lucasjlepore/fit-analytics/model"
	"github.com/lucasjlepore/fit-analytics/power"
	"github.com/lucasjlepore/fit-analytics/store"
)

// FTPReport is the result of EstimateFTP. FTP is nil when no activity
// supported an estimate.
type FTPReport struct {
	Outcome
	FTP   *model.FTPEstimate      `json:"ftp"`
	Curve []model.PowerCurvePoint `json:"curve"`
	// Persisted is set when the estimate was written to the profile history.
	Persisted bool `json:"persisted"`
}

// EstimateFTP estimates functional threshold power from the athlete's
// activities with power. Reliable estimates are recorded as a profile entry
// for today when PersistFTP is set.
func (s *Service) EstimateFTP(ctx context.Context, athleteID string, periodMonths int) (FTPReport, error) {
	if err := validateAthlete(athleteID); err != nil {
		return FTPReport{}, err
	}
	if err := validatePeriodMonths(periodMonths); err != nil {
		return FTPReport{}, err
	}

	history, err := s.store.FetchProfileHistory(ctx, athleteID)
	if err != nil {
		return FTPReport{}, wrapFetch("fetch_profile_history", err)
	}
	res, err := s.retrieveActivities(ctx, athleteID, periodMonths, s.opts.MinRecords.Power, store.Requirements{Power: true})
	if err != nil {
		return FTPReport{}, err
	}
	report := FTPReport{Outcome: outcomeOf(res), Curve: []model.PowerCurvePoint{}}
	if !report.OK() {
		report.Reason = shortfall("activities with power data", len(res.Records), s.opts.MinRecords.Power)
		return report, nil
	}

	activities := res.Records
	if s.opts.ScanSamplesForCurve {
		activities = make([]model.ActivitySummary, len(res.Records))
		for i, a := range res.Records {
			samples, err := s.samplesFor(ctx, a)
			if err != nil {
				return FTPReport{}, err
			}
			a.Samples = samples
			activities[i] = a
		}
	}

	estimator := power.NewEstimator()
	estimator.Curve.ScanSamples = s.opts.ScanSamplesForCurve
	result := estimator.Estimate(activities, func(a model.ActivitySummary) float64 {
		return latestFTP(history, a.Date)
	})
	report.FTP = result.FTP
	if result.Curve != nil {
		report.Curve = result.Curve
	}
	if report.FTP == nil {
		report.insufficient("no test, power curve, or hard workout supported an FTP estimate")
		return report, nil
	}

	if report.FTP.IsReliable && s.opts.PersistFTP {
		fields := model.ProfileFields{FTPW: model.Float64Ptr(report.FTP.ValueW)}
		if err := s.store.UpsertProfileEntry(ctx, athleteID, model.DayStart(s.now()), fields); err != nil {
			return FTPReport{}, wrapFetch("upsert_profile_entry", err)
		}
		report.Persisted = true
	}

	s.logger.Printf("ftp: athlete %s: %.0f W via %s (confidence %.2f, %d activities, %d months)",
		athleteID, report.FTP.ValueW, report.FTP.Method, report.FTP.Confidence, len(res.Records), res.Window.ActualMonthsUsed)
	return report, nil
}
