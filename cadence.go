package fitanalytics

import (
	"context"

	"github.com/lucasjlepore/fit-analytics/cadence"
	"github.com/lucasjlepore/fit-analytics/model"
	"github.com/lucasjlepore/fit-analytics/store"
)

// FTP sources reported by AnalyzeCadence.
const (
	FTPSourceArgument = "argument"
	FTPSourceProfile  = "profile"
	FTPSourceNone     = "none"
)

// CadenceReport is the result of AnalyzeCadence.
type CadenceReport struct {
	Outcome
	EfficiencyByBand  []cadence.BandStats `json:"efficiency_by_cadence_band"`
	CadenceByZone     []cadence.ZoneStats `json:"cadence_by_power_zone"`
	OptimalCadenceRPM *float64            `json:"optimal_cadence_rpm"`
	OptimalBand       string              `json:"optimal_band,omitempty"`
	Recommendations   []string            `json:"recommendations"`
	FTPW              float64             `json:"ftp_w,omitempty"`
	FTPSource         string              `json:"ftp_source"`
	SampleCount       int                 `json:"sample_count"`
}

// AnalyzeCadence relates cadence to power and heart rate. Power zones use
// ftpW when given, otherwise the athlete's latest profile FTP.
func (s *Service) AnalyzeCadence(ctx context.Context, athleteID string, periodMonths int, ftpW *float64) (CadenceReport, error) {
	if err := validateAthlete(athleteID); err != nil {
		return CadenceReport{}, err
	}
	if err := validatePeriodMonths(periodMonths); err != nil {
		return CadenceReport{}, err
	}
	if err := validateFTP(ftpW); err != nil {
		return CadenceReport{}, err
	}

	ftp, source := 0.0, FTPSourceNone
	if ftpW != nil {
		ftp, source = *ftpW, FTPSourceArgument
	} else {
		history, err := s.store.FetchProfileHistory(ctx, athleteID)
		if err != nil {
			return CadenceReport{}, wrapFetch("fetch_profile_history", err)
		}
		if v := latestFTP(history, s.now()); v > 0 {
			ftp, source = v, FTPSourceProfile
		}
	}

	req := store.Requirements{Power: true, Cadence: true}
	res, err := s.retrieveActivities(ctx, athleteID, periodMonths, s.opts.MinRecords.Cadence, req)
	if err != nil {
		return CadenceReport{}, err
	}
	report := CadenceReport{Outcome: outcomeOf(res), FTPSource: source}
	if !report.OK() {
		report.Reason = shortfall("activities with power and cadence", len(res.Records), s.opts.MinRecords.Cadence)
		return report, nil
	}

	series := make([][]model.TelemetrySample, 0, len(res.Records))
	for _, a := range res.Records {
		samples, err := s.samplesFor(ctx, a)
		if err != nil {
			return CadenceReport{}, err
		}
		series = append(series, samples)
	}

	a := cadence.Analyze(series, ftp)
	for i, skipped := range a.PerActivity {
		s.logSkipped("cadence", res.Records[i].ID, skipped)
	}
	report.Skipped = a.Skipped
	report.EfficiencyByBand = a.EfficiencyByBand
	report.CadenceByZone = a.CadenceByZone
	report.OptimalCadenceRPM = a.OptimalCadenceRPM
	report.OptimalBand = a.OptimalBand
	report.Recommendations = a.Recommendations
	report.FTPW = a.FTPW
	report.SampleCount = a.SampleCount
	if a.SampleCount == 0 {
		report.insufficient("no samples carry both power and cadence")
		return report, nil
	}

	s.logger.Printf("cadence: athlete %s: %d samples from %d activities, ftp %.0f W (%s)",
		athleteID, a.SampleCount, len(res.Records), ftp, source)
	return report, nil
}
