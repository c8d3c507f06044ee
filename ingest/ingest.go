// Package ingest decodes FIT activity files into activity summaries with
// per-second telemetry and saves them to a store.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tormoder/fit"

	"github.com/lucasjlepore/fit-analytics/model"
	"github.com/lucasjlepore/fit-analytics/power"
	"github.com/lucasjlepore/fit-analytics/store"
)

// Importer saves decoded activities to a store.
type Importer struct {
	Store  store.Writer
	Logger *log.Logger
}

// NewImporter returns an Importer. A nil logger discards output.
func NewImporter(w store.Writer, logger *log.Logger) *Importer {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Importer{Store: w, Logger: logger}
}

// ImportFile decodes the FIT file at path and saves it for athleteID. The
// file name without extension becomes the activity title.
func (im *Importer) ImportFile(ctx context.Context, path, athleteID string) (model.ActivitySummary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.ActivitySummary{}, fmt.Errorf("open FIT file: %w", err)
	}
	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	a, err := Decode(data, athleteID, title)
	if err != nil {
		return model.ActivitySummary{}, fmt.Errorf("%s: %w", path, err)
	}
	if err := im.Store.SaveActivity(ctx, a); err != nil {
		return model.ActivitySummary{}, fmt.Errorf("save %s: %w", path, err)
	}
	im.Logger.Printf("ingest: %s -> activity %s (%s, %d samples)",
		filepath.Base(path), a.ID, a.Date.Format("2006-01-02"), len(a.Samples))
	return a, nil
}

// ActivityID derives a stable id from the athlete and the file bytes, so
// importing the same file twice replaces the earlier copy.
func ActivityID(athleteID string, data []byte) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, append([]byte(athleteID+"\x00"), data...)).String()
}

// Decode converts one FIT activity file.
func Decode(data []byte, athleteID, title string) (model.ActivitySummary, error) {
	if strings.TrimSpace(athleteID) == "" {
		return model.ActivitySummary{}, fmt.Errorf("athlete id is required")
	}
	decoded, err := fit.Decode(bytes.NewReader(data))
	if err != nil {
		return model.ActivitySummary{}, fmt.Errorf("decode FIT file: %w", err)
	}
	activity, err := decoded.Activity()
	if err != nil {
		return model.ActivitySummary{}, fmt.Errorf("activity FIT expected: %w", err)
	}

	samples := buildSamples(activity.Records)
	a := model.ActivitySummary{
		ID:        ActivityID(athleteID, data),
		AthleteID: athleteID,
		Title:     title,
		Samples:   samples,
	}

	var session *fit.SessionMsg
	if len(activity.Sessions) > 0 {
		session = activity.Sessions[0]
	}
	if session == nil && len(samples) == 0 {
		return model.ActivitySummary{}, fmt.Errorf("activity file has neither session nor records")
	}
	summarize(&a, session, samples)
	return a, nil
}

// summarize fills the summary from the session message, falling back to
// values derived from the samples.
func summarize(a *model.ActivitySummary, session *fit.SessionMsg, samples []model.TelemetrySample) {
	var seriesStart, seriesEnd time.Time
	if len(samples) > 0 {
		seriesStart = samples[0].Timestamp
		seriesEnd = samples[len(samples)-1].Timestamp
	}
	powers := make([]float64, 0, len(samples))
	for _, s := range samples {
		if p, ok := s.ValidPower(); ok {
			powers = append(powers, p)
		}
	}

	if session != nil {
		a.Date = validTimeOrZero(session.StartTime)
		a.DurationS = model.SafePositive(session.GetTotalTimerTimeScaled())
		a.AvgPowerW = float64(validUint16(session.AvgPower))
		if v := validUint16(session.NormalizedPower); v > 0 {
			a.NormalizedPowerW = model.Float64Ptr(float64(v))
		}
		if v := validUint16(session.MaxPower); v > 0 {
			a.MaxPowerW = model.Float64Ptr(float64(v))
		}
		if a.Title == "" {
			a.Title = fmt.Sprint(session.Sport)
		}
	}

	if a.Date.IsZero() {
		a.Date = seriesStart
	}
	if a.DurationS == 0 && !seriesStart.IsZero() {
		a.DurationS = seriesEnd.Sub(seriesStart).Seconds()
	}
	if a.AvgPowerW == 0 {
		a.AvgPowerW = model.Average(powers)
	}
	if a.NormalizedPowerW == nil {
		if np := power.NormalizedPower(powers); np > 0 {
			a.NormalizedPowerW = model.Float64Ptr(np)
		}
	}
	if a.MaxPowerW == nil {
		if mx := model.MaxValue(powers); mx > 0 {
			a.MaxPowerW = model.Float64Ptr(mx)
		}
	}
}

// buildSamples orders records by time and keeps the channels each record
// actually carries. Records without a valid timestamp are dropped.
func buildSamples(records []*fit.RecordMsg) []model.TelemetrySample {
	ordered := make([]*fit.RecordMsg, 0, len(records))
	for _, rec := range records {
		if rec == nil || validTimeOrZero(rec.Timestamp).IsZero() {
			continue
		}
		ordered = append(ordered, rec)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	out := make([]model.TelemetrySample, 0, len(ordered))
	for _, rec := range ordered {
		s := model.TelemetrySample{Timestamp: rec.Timestamp.UTC()}
		if !rec.PositionLat.Invalid() && !rec.PositionLong.Invalid() {
			s.Lat = model.Float64Ptr(rec.PositionLat.Degrees())
			s.Lng = model.Float64Ptr(rec.PositionLong.Degrees())
			if _, _, ok := s.ValidPosition(); !ok {
				s.Lat, s.Lng = nil, nil
			}
		}
		if elev, ok := extractElevation(rec); ok {
			s.ElevationM = model.Float64Ptr(elev)
		}
		if p, ok := extractPower(rec); ok {
			s.PowerW = model.Float64Ptr(p)
		}
		if c, ok := extractCadence(rec); ok {
			s.CadenceRPM = model.Float64Ptr(c)
		}
		if hr, ok := extractHeartRate(rec); ok {
			s.HeartRateBPM = model.Float64Ptr(hr)
		}
		out = append(out, s)
	}
	return out
}

func extractElevation(rec *fit.RecordMsg) (float64, bool) {
	if v := rec.GetEnhancedAltitudeScaled(); model.IsFinite(v) {
		return v, true
	}
	if v := rec.GetAltitudeScaled(); model.IsFinite(v) {
		return v, true
	}
	return 0, false
}

func extractPower(rec *fit.RecordMsg) (float64, bool) {
	if rec.Power == math.MaxUint16 {
		return 0, false
	}
	return float64(rec.Power), true
}

func extractHeartRate(rec *fit.RecordMsg) (float64, bool) {
	if rec.HeartRate == math.MaxUint8 {
		return 0, false
	}
	return float64(rec.HeartRate), true
}

func extractCadence(rec *fit.RecordMsg) (float64, bool) {
	if cad256 := model.SafePositive(rec.GetCadence256Scaled()); cad256 > 0 {
		return cad256, true
	}
	if rec.Cadence == math.MaxUint8 {
		return 0, false
	}
	return float64(rec.Cadence), true
}

func validTimeOrZero(t time.Time) time.Time {
	if t.IsZero() || fit.IsBaseTime(t) {
		return time.Time{}
	}
	return t
}

func validUint16(v uint16) uint16 {
	if v == math.MaxUint16 {
		return 0
	}
	return v
}
