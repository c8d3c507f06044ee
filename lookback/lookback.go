// Package lookback widens an analysis window step by step until enough
// records are found.
package lookback

import (
	"context"
	"sort"
	"time"

	"github.com/lucasjlepore/fit-analytics/model"
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// FixedClock always returns T.
type FixedClock struct {
	T time.Time
}

// Now returns the fixed time.
func (c FixedClock) Now() time.Time {
	return c.T
}

// DefaultSteps are the window sizes tried after the requested one.
var DefaultSteps = []int{12, 18, 24, 36}

// Policy describes the widening chain.
type Policy struct {
	// StepsMonths are tried in ascending order after the requested window.
	// Steps not larger than the requested window are skipped.
	StepsMonths []int
	// AllHistory enables the final unbounded fetch.
	AllHistory bool
	// MinRecords is the count a window must reach to be accepted.
	MinRecords int
}

// DefaultPolicy widens through DefaultSteps and then to all history.
func DefaultPolicy(minRecords int) Policy {
	return Policy{StepsMonths: DefaultSteps, AllHistory: true, MinRecords: minRecords}
}

// Fetch loads the records on or after since. A nil since means all history.
type Fetch[T any] func(ctx context.Context, since *time.Time) ([]T, error)

// Result carries the records of the window that was accepted.
type Result[T any] struct {
	Records []T
	Window  model.AnalysisWindow
	Status  model.Status
}

// Retriever runs a Policy against a Clock.
type Retriever struct {
	Clock  Clock
	Policy Policy
}

// Retrieve tries the requested window, then every larger step, then (when
// enabled) all history. It stops at the first window holding at least
// MinRecords records. The all-history fallback accepts any non-empty result;
// only an empty history is reported as insufficient. dateOf is used to size
// the all-history window from its oldest record.
//
// The context is checked between steps, so a cancelled caller stops the
// chain without a further fetch.
func Retrieve[T any](ctx context.Context, r Retriever, requestedMonths int, fetch Fetch[T], dateOf func(T) time.Time) (Result[T], error) {
	clock := r.Clock
	if clock == nil {
		clock = RealClock{}
	}
	now := clock.Now()

	var last Result[T]
	for _, months := range windows(requestedMonths, r.Policy.StepsMonths) {
		if err := ctx.Err(); err != nil {
			return Result[T]{}, err
		}
		since := now.AddDate(0, -months, 0)
		records, err := fetch(ctx, &since)
		if err != nil {
			return Result[T]{}, err
		}
		last = Result[T]{
			Records: records,
			Window: model.AnalysisWindow{
				RequestedMonths:  requestedMonths,
				ActualMonthsUsed: months,
				SampleCount:      len(records),
				Widened:          months != requestedMonths,
			},
			Status: model.StatusInsufficientData,
		}
		if len(records) >= r.Policy.MinRecords && len(records) > 0 {
			last.Status = model.StatusOK
			return last, nil
		}
	}

	if !r.Policy.AllHistory {
		return last, nil
	}
	if err := ctx.Err(); err != nil {
		return Result[T]{}, err
	}
	records, err := fetch(ctx, nil)
	if err != nil {
		return Result[T]{}, err
	}
	res := Result[T]{
		Records: records,
		Window: model.AnalysisWindow{
			RequestedMonths:  requestedMonths,
			ActualMonthsUsed: last.Window.ActualMonthsUsed,
			SampleCount:      len(records),
			Widened:          true,
			AllHistory:       true,
		},
		Status: model.StatusInsufficientData,
	}
	if len(records) == 0 {
		return res, nil
	}
	if dateOf != nil {
		oldest := dateOf(records[0])
		for _, rec := range records[1:] {
			if d := dateOf(rec); d.Before(oldest) {
				oldest = d
			}
		}
		res.Window.ActualMonthsUsed = model.MonthsBetween(oldest, now)
	}
	res.Status = model.StatusOK
	return res, nil
}

// windows is the requested window followed by every larger step, ascending.
func windows(requested int, steps []int) []int {
	sorted := append([]int(nil), steps...)
	sort.Ints(sorted)
	out := []int{requested}
	for _, s := range sorted {
		if s > out[len(out)-1] {
			out = append(out, s)
		}
	}
	return out
}
