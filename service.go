// Package fitanalytics derives climb, threshold power, cadence, and training
// trend reports from stored activity telemetry.
package fitanalytics

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/lucasjlepore/fit-analytics/climb"
	"github.com/lucasjlepore/fit-analytics/lookback"
	"github.com/lucasjlepore/fit-analytics/model"
	"github.com/lucasjlepore/fit-analytics/store"
)

// MinRecords is the number of qualifying activities each analysis needs
// before the lookback stops widening.
type MinRecords struct {
	Climbs  int
	Power   int
	Cadence int
	Trends  int
}

// Options control every analysis the Service runs.
type Options struct {
	LookbackSteps []int
	AllHistory    bool
	MinRecords    MinRecords

	SmoothingWindow  int
	// SteepGradientPct promotes climbs at or above this average gradient
	// one category; zero leaves categories to elevation gain alone.
	SteepGradientPct float64
	Group            climb.GroupOptions
	TrendThreshold   float64

	// ClimbTrendMonths sizes the monthly series in climb reports,
	// ReportTrendMonths the shorter series drawn in charts.
	ClimbTrendMonths  int
	ReportTrendMonths int
	SeasonalMonths    int

	// PersistFTP writes reliable FTP estimates back as profile entries.
	PersistFTP bool
	// ScanSamplesForCurve builds the power curve from rolling windows over
	// per-second power instead of whole-activity averages.
	ScanSamplesForCurve bool

	// Clock defaults to the wall clock.
	Clock lookback.Clock
}

// DefaultOptions returns the defaults used when no configuration is given.
func DefaultOptions() Options {
	return Options{
		LookbackSteps:     append([]int(nil), lookback.DefaultSteps...),
		AllHistory:        true,
		MinRecords:        MinRecords{Climbs: 3, Power: 3, Cadence: 3, Trends: 2},
		SmoothingWindow:   climb.DefaultSmoothingWindow,
		SteepGradientPct:  climb.SteepGradientPct,
		Group:             climb.DefaultGroupOptions(),
		TrendThreshold:    climb.DefaultTrendThreshold,
		ClimbTrendMonths:  12,
		ReportTrendMonths: 8,
		SeasonalMonths:    12,
		PersistFTP:        true,
	}
}

// Service runs the analyses against a store. It holds no per-call state and
// is safe for concurrent use.
type Service struct {
	store  store.Store
	logger *log.Logger
	opts   Options
}

// New creates a Service. A nil logger discards output.
func New(s store.Store, logger *log.Logger, opts Options) *Service {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if opts.Clock == nil {
		opts.Clock = lookback.RealClock{}
	}
	return &Service{store: s, logger: logger, opts: opts}
}

// Options returns the options the service was built with.
func (s *Service) Options() Options {
	return s.opts
}

func (s *Service) now() time.Time {
	return s.opts.Clock.Now()
}

func (s *Service) retriever(minRecords int) lookback.Retriever {
	return lookback.Retriever{
		Clock: s.opts.Clock,
		Policy: lookback.Policy{
			StepsMonths: s.opts.LookbackSteps,
			AllHistory:  s.opts.AllHistory,
			MinRecords:  minRecords,
		},
	}
}

// retrieveActivities runs the adaptive lookback over the athlete's
// activities that satisfy req.
func (s *Service) retrieveActivities(ctx context.Context, athleteID string, requestedMonths, minRecords int, req store.Requirements) (lookback.Result[model.ActivitySummary], error) {
	fetch := func(ctx context.Context, since *time.Time) ([]model.ActivitySummary, error) {
		acts, err := s.store.FetchActivities(ctx, athleteID, since, req)
		if err != nil {
			return nil, wrapFetch("fetch_activities", err)
		}
		return acts, nil
	}
	return lookback.Retrieve(ctx, s.retriever(minRecords), requestedMonths, fetch, activityDate)
}

// samplesFor returns the activity's attached samples or loads them.
func (s *Service) samplesFor(ctx context.Context, a model.ActivitySummary) ([]model.TelemetrySample, error) {
	if len(a.Samples) > 0 {
		return a.Samples, nil
	}
	samples, err := s.store.FetchSamples(ctx, a.ID)
	if err != nil {
		return nil, wrapFetch("fetch_samples", err)
	}
	return samples, nil
}

func (s *Service) logSkipped(component, activityID string, skipped model.Skipped) {
	if skipped.Samples == 0 && skipped.Activities == 0 {
		return
	}
	if skipped.Activities > 0 {
		s.logger.Printf("%s: activity %s: unusable, skipped %d malformed samples", component, activityID, skipped.Samples)
		return
	}
	s.logger.Printf("%s: activity %s: skipped %d malformed samples", component, activityID, skipped.Samples)
}

// shortfall explains an insufficient lookback result.
func shortfall(what string, found, need int) string {
	if found == 0 {
		return fmt.Sprintf("no %s found", what)
	}
	return fmt.Sprintf("only %d %s found, need %d", found, what, need)
}

func activityDate(a model.ActivitySummary) time.Time {
	return a.Date
}

// latestFTP is the most recent profile FTP on or before at, else the most
// recent overall. History must be oldest first.
func latestFTP(history []model.ProfileEntry, at time.Time) float64 {
	var before, latest float64
	for _, e := range history {
		if e.FTPW == nil || *e.FTPW <= 0 {
			continue
		}
		latest = *e.FTPW
		if !e.EffectiveDate.After(at) {
			before = *e.FTPW
		}
	}
	if before > 0 {
		return before
	}
	return latest
}

// Outcome is the status and retrieval window shared by every report.
// Reports embed it so that callers can tell when the lookback widened.
type Outcome struct {
	Status  model.Status         `json:"status"`
	Reason  string               `json:"reason,omitempty"`
	Window  model.AnalysisWindow `json:"window_used"`
	Skipped model.Skipped        `json:"skipped"`
}

func outcomeOf[T any](res lookback.Result[T]) Outcome {
	return Outcome{Status: res.Status, Window: res.Window}
}

func (o *Outcome) insufficient(reason string) {
	o.Status = model.StatusInsufficientData
	o.Reason = reason
}

// OK reports whether the report carries a result.
func (o Outcome) OK() bool {
	return o.Status == model.StatusOK
}
