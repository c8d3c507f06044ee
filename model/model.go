// Package model holds the telemetry, climb, and power records shared by the
// analytics packages.
package model

import "time"

// Plausibility bounds for individual samples.
const (
	MinElevationM = -500.0
	MaxElevationM = 9000.0
)

// TelemetrySample is one second of an activity. Optional channels are nil
// when the device did not record them.
type TelemetrySample struct {
	Timestamp    time.Time `json:"timestamp"`
	Lat          *float64  `json:"lat,omitempty"`
	Lng          *float64  `json:"lng,omitempty"`
	ElevationM   *float64  `json:"elevation_m,omitempty"`
	PowerW       *float64  `json:"power_w,omitempty"`
	CadenceRPM   *float64  `json:"cadence_rpm,omitempty"`
	HeartRateBPM *float64  `json:"heart_rate_bpm,omitempty"`
}

// ValidPosition reports the sample position when both coordinates are
// present, finite and in range. An exact 0,0 fix is what devices write before
// they have a lock, so it is treated as missing.
func (s TelemetrySample) ValidPosition() (lat, lng float64, ok bool) {
	if s.Lat == nil || s.Lng == nil {
		return 0, 0, false
	}
	lat, lng = *s.Lat, *s.Lng
	if !IsFinite(lat) || !IsFinite(lng) || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return 0, 0, false
	}
	if lat == 0 && lng == 0 {
		return 0, 0, false
	}
	return lat, lng, true
}

// ValidElevation reports the sample elevation when it is present and within
// the plausible range.
func (s TelemetrySample) ValidElevation() (float64, bool) {
	if s.ElevationM == nil {
		return 0, false
	}
	v := *s.ElevationM
	if !IsFinite(v) || v < MinElevationM || v > MaxElevationM {
		return 0, false
	}
	return v, true
}

// ValidPower reports the sample power when it is present and non-negative.
func (s TelemetrySample) ValidPower() (float64, bool) {
	if s.PowerW == nil {
		return 0, false
	}
	v := *s.PowerW
	if !IsFinite(v) || v < 0 {
		return 0, false
	}
	return v, true
}

// ValidCadence reports the sample cadence when it is present and positive.
func (s TelemetrySample) ValidCadence() (float64, bool) {
	if s.CadenceRPM == nil {
		return 0, false
	}
	v := *s.CadenceRPM
	if !IsFinite(v) || v <= 0 || v > 250 {
		return 0, false
	}
	return v, true
}

// ValidHeartRate reports the sample heart rate when it is physiologically plausible.
func (s TelemetrySample) ValidHeartRate() (float64, bool) {
	if s.HeartRateBPM == nil {
		return 0, false
	}
	v := *s.HeartRateBPM
	if !IsFinite(v) || v < 30 || v > 230 {
		return 0, false
	}
	return v, true
}

// ActivitySummary is one completed activity.
type ActivitySummary struct {
	ID               string            `json:"id"`
	AthleteID        string            `json:"athlete_id"`
	Date             time.Time         `json:"date"`
	DurationS        float64           `json:"duration_s"`
	AvgPowerW        float64           `json:"avg_power_w"`
	NormalizedPowerW *float64          `json:"normalized_power_w,omitempty"`
	MaxPowerW        *float64          `json:"max_power_w,omitempty"`
	Title            string            `json:"title"`
	Samples          []TelemetrySample `json:"samples,omitempty"`
}

// EffectivePower is the normalized power when recorded, otherwise the average.
func (a ActivitySummary) EffectivePower() float64 {
	if a.NormalizedPowerW != nil && *a.NormalizedPowerW > 0 {
		return *a.NormalizedPowerW
	}
	return a.AvgPowerW
}

// ProfileFields are the athlete profile values that can change over time.
type ProfileFields struct {
	FTPW     *float64 `json:"ftp_w,omitempty"`
	WeightKG *float64 `json:"weight_kg,omitempty"`
}

// ProfileEntry is one dated row of athlete profile history.
type ProfileEntry struct {
	EffectiveDate time.Time `json:"effective_date"`
	ProfileFields
}

// ClimbCategory buckets climbs by elevation gain.
type ClimbCategory string

const (
	CategoryCat4 ClimbCategory = "Cat 4"
	CategoryCat3 ClimbCategory = "Cat 3"
	CategoryCat2 ClimbCategory = "Cat 2"
	CategoryCat1 ClimbCategory = "Cat 1"
	CategoryHC   ClimbCategory = "HC"
)

// Categories lists climb categories from smallest to largest.
var Categories = []ClimbCategory{CategoryCat4, CategoryCat3, CategoryCat2, CategoryCat1, CategoryHC}

// ClimbCandidate is an index range into a smoothed elevation series.
type ClimbCandidate struct {
	StartIndex int
	EndIndex   int
}

// ClimbRecord is a validated climb occurrence within one activity.
type ClimbRecord struct {
	ClimbID        string        `json:"climb_id"`
	Name           string        `json:"name"`
	Category       ClimbCategory `json:"category"`
	DistanceKM     float64       `json:"distance_km"`
	ElevationM     float64       `json:"elevation_m"`
	AvgGradientPct float64       `json:"avg_gradient_pct"`
	DurationS      float64       `json:"duration_s"`
	VAMMPerH       float64       `json:"vam_m_per_h"`
	AvgPowerW      *float64      `json:"avg_power_w"`
	ActivityID     string        `json:"activity_id"`
	Date           time.Time     `json:"date"`
}

// ClimbGroup is a set of records judged to be the same physical climb.
// Records[0] is the seed the others were compared against.
type ClimbGroup struct {
	Records []ClimbRecord `json:"records"`
}

// Seed returns the record the group was built around.
func (g ClimbGroup) Seed() ClimbRecord {
	return g.Records[0]
}

// Trend is the direction of performance across attempts.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
)

// ClimbPerformance is a group's best attempt plus attempt statistics.
type ClimbPerformance struct {
	Best        ClimbRecord `json:"best"`
	Attempts    int         `json:"attempts"`
	Trend       Trend       `json:"trend"`
	LastAttempt time.Time   `json:"last_attempt"`
}

// PowerCurvePoint is the best average power observed for a duration.
type PowerCurvePoint struct {
	DurationS        int       `json:"duration_s"`
	BestPowerW       float64   `json:"best_power_w"`
	SourceActivityID string    `json:"source_activity_id"`
	Date             time.Time `json:"date"`
}

// FTPMethod names how an FTP estimate was derived.
type FTPMethod string

const (
	MethodTwentyMinuteTest    FTPMethod = "TWENTY_MINUTE_TEST"
	MethodEightMinuteTest     FTPMethod = "EIGHT_MINUTE_TEST"
	MethodSixtyMinuteTest     FTPMethod = "SIXTY_MINUTE_TEST"
	MethodPowerCurve60Min     FTPMethod = "POWER_CURVE_60MIN"
	MethodPowerCurve20Min     FTPMethod = "POWER_CURVE_20MIN"
	MethodPowerCurve30Min     FTPMethod = "POWER_CURVE_30MIN"
	MethodPowerCurveLongest   FTPMethod = "POWER_CURVE_LONGEST"
	MethodWorkoutExtrapolated FTPMethod = "WORKOUT_EXTRAPOLATION"
)

// ReliableConfidence is the confidence an estimate must reach before it is
// reported as reliable.
const ReliableConfidence = 0.8

// FTPEstimate is a threshold power estimate with its provenance.
type FTPEstimate struct {
	ValueW           float64   `json:"value_w"`
	Method           FTPMethod `json:"method"`
	Confidence       float64   `json:"confidence"`
	SourceActivityID string    `json:"source_activity_id,omitempty"`
	Reasoning        string    `json:"reasoning"`
	IsReliable       bool      `json:"is_reliable"`
}

// AnalysisWindow records which time range actually produced a result.
type AnalysisWindow struct {
	RequestedMonths  int  `json:"requested_months"`
	ActualMonthsUsed int  `json:"actual_months_used"`
	SampleCount      int  `json:"sample_count"`
	Widened          bool `json:"widened"`
	AllHistory       bool `json:"all_history"`
}

// Status tells callers whether a result carries an answer.
type Status string

const (
	StatusOK               Status = "ok"
	StatusInsufficientData Status = "insufficient_data"
)

// Skipped counts telemetry that was ignored because it was malformed.
type Skipped struct {
	Samples    int `json:"samples"`
	Activities int `json:"activities"`
}

// Add accumulates another count into s.
func (s *Skipped) Add(o Skipped) {
	s.Samples += o.Samples
	s.Activities += o.Activities
}
