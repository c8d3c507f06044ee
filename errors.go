package fitanalytics

import (
	"fmt"
	"strings"

	"github.com/lucasjlepore/fit-analytics/model"
	"github.com/lucasjlepore/fit-analytics/trend"
)

// Accepted input ranges.
const (
	MinPeriodMonths = 1
	MaxPeriodMonths = 24
	MinFTPW         = 50.0
	MaxFTPW         = 600.0
)

// ValidationError is returned before any data is fetched when a parameter
// is malformed.
type ValidationError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("invalid %s: %s (value: %v)", e.Field, e.Reason, e.Value)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// FetchError wraps a failure of the telemetry store.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("store error in %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying store error.
func (e *FetchError) Unwrap() error {
	return e.Err
}

func wrapFetch(op string, err error) error {
	if err == nil {
		return nil
	}
	return &FetchError{Op: op, Err: err}
}

func validateAthlete(athleteID string) error {
	if strings.TrimSpace(athleteID) == "" {
		return &ValidationError{Field: "athlete_id", Reason: "must not be blank"}
	}
	return nil
}

func validatePeriodMonths(months int) error {
	if months < MinPeriodMonths || months > MaxPeriodMonths {
		return &ValidationError{
			Field:  "period_months",
			Value:  months,
			Reason: fmt.Sprintf("must be between %d and %d", MinPeriodMonths, MaxPeriodMonths),
		}
	}
	return nil
}

func validateFTP(ftp *float64) error {
	if ftp == nil {
		return nil
	}
	if !model.IsFinite(*ftp) || *ftp < MinFTPW || *ftp > MaxFTPW {
		return &ValidationError{
			Field:  "ftp_w",
			Value:  *ftp,
			Reason: fmt.Sprintf("must be between %.0f and %.0f W", MinFTPW, MaxFTPW),
		}
	}
	return nil
}

func validatePeriod(period string) (trend.Period, error) {
	p, ok := trend.ParsePeriod(period)
	if !ok {
		return "", &ValidationError{Field: "period", Value: period, Reason: "must be month, quarter, or year"}
	}
	return p, nil
}
