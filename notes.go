package fitanalytics

import (
	"fmt"
	"math"
	"strings"

	"github.com/lucasjlepore/fit-analytics/model"
)

// BuildClimbNotes renders a climb report as plain text.
func BuildClimbNotes(r ClimbReport) string {
	var b strings.Builder
	b.WriteString("Climb Analysis\n")
	if !writeOutcome(&b, r.Outcome) {
		return strings.TrimSpace(b.String())
	}

	fmt.Fprintf(&b, "%d climbs across %d distinct segments\n", len(r.Records), len(r.Performances))
	if r.Skipped.Samples > 0 {
		fmt.Fprintf(&b, "Skipped %d malformed samples\n", r.Skipped.Samples)
	}

	b.WriteString("\nTop Climbs\n")
	for _, p := range r.Performances {
		fmt.Fprintf(
			&b,
			"- %s: best %.0f m/h on %s (%s), %d attempts, %s\n",
			p.Best.Name,
			p.Best.VAMMPerH,
			p.Best.Date.Format("2006-01-02"),
			formatDuration(p.Best.DurationS),
			p.Attempts,
			p.Trend,
		)
	}

	b.WriteString("\nVAM by Category\n")
	for _, c := range r.VAMByCategory {
		if c.Count == 0 {
			continue
		}
		fmt.Fprintf(
			&b,
			"- %s: %d climbs, %.0f avg / %.0f max m/h (benchmark %.0f)\n",
			c.Category,
			c.Count,
			c.AvgVAM,
			c.MaxVAM,
			c.BenchmarkVAM,
		)
	}

	if len(r.SegmentEstimates) > 0 {
		b.WriteString("\nSegment Ranking Estimates (approximate)\n")
		for _, e := range r.SegmentEstimates {
			fmt.Fprintf(&b, "- %s: ~%.0fth percentile, %s\n", e.Name, e.EstimatedPercentile, e.Tier)
		}
	}
	return strings.TrimSpace(b.String())
}

// BuildFTPNotes renders an FTP report as plain text.
func BuildFTPNotes(r FTPReport) string {
	var b strings.Builder
	b.WriteString("FTP Estimate\n")
	ok := writeOutcome(&b, r.Outcome)

	if r.FTP != nil {
		fmt.Fprintf(&b, "FTP %.0f W via %s (confidence %.0f%%", r.FTP.ValueW, r.FTP.Method, r.FTP.Confidence*100.0)
		if r.FTP.IsReliable {
			b.WriteString(", reliable)\n")
		} else {
			b.WriteString(", treat as a rough guide)\n")
		}
		fmt.Fprintf(&b, "- %s\n", r.FTP.Reasoning)
		if r.Persisted {
			b.WriteString("- Saved to profile history for today.\n")
		}
	}

	if ok && len(r.Curve) > 0 {
		b.WriteString("\nPower Curve\n")
		for _, p := range r.Curve {
			fmt.Fprintf(
				&b,
				"- %s: %.0f W (%s)\n",
				formatDuration(float64(p.DurationS)),
				p.BestPowerW,
				p.Date.Format("2006-01-02"),
			)
		}
	}
	return strings.TrimSpace(b.String())
}

// BuildCadenceNotes renders a cadence report as plain text.
func BuildCadenceNotes(r CadenceReport) string {
	var b strings.Builder
	b.WriteString("Cadence Analysis\n")
	if !writeOutcome(&b, r.Outcome) {
		return strings.TrimSpace(b.String())
	}

	if r.OptimalCadenceRPM != nil {
		fmt.Fprintf(&b, "Optimal cadence ~%.0f rpm (%s band)\n", *r.OptimalCadenceRPM, r.OptimalBand)
	} else {
		b.WriteString("Optimal cadence unavailable (no band held long enough)\n")
	}

	b.WriteString("\nEfficiency by Cadence Band\n")
	for _, band := range r.EfficiencyByBand {
		if band.Seconds <= 0 {
			continue
		}
		fmt.Fprintf(
			&b,
			"- %s rpm: %s (%.1f%%) at %.0f W",
			band.Band,
			formatDuration(band.Seconds),
			band.SharePct,
			band.AvgPowerW,
		)
		if band.Efficiency > 0 {
			fmt.Fprintf(&b, ", %.2f W/bpm", band.Efficiency)
		}
		b.WriteByte('\n')
	}

	if len(r.CadenceByZone) > 0 {
		fmt.Fprintf(&b, "\nCadence by Power Zone (FTP %.0f W, %s)\n", r.FTPW, r.FTPSource)
		for _, z := range r.CadenceByZone {
			if z.Seconds <= 0 {
				continue
			}
			fmt.Fprintf(&b, "- %s: %.0f rpm over %s\n", z.Zone, z.AvgCadenceRPM, formatDuration(z.Seconds))
		}
	}

	b.WriteString("\nRecommendations\n")
	for _, rec := range r.Recommendations {
		b.WriteString("- ")
		b.WriteString(rec)
		b.WriteByte('\n')
	}
	return strings.TrimSpace(b.String())
}

// BuildTrendNotes renders a trend report as plain text.
func BuildTrendNotes(r TrendReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Training Trends (this %s vs the previous one)\n", r.Period)
	if !writeOutcome(&b, r.Outcome) {
		return strings.TrimSpace(b.String())
	}

	b.WriteString("\nComparison\n")
	for _, m := range r.Comparison {
		fmt.Fprintf(&b, "- %s: %.1f vs %.1f (%+.1f%%)\n", m.Name, m.Current, m.Previous, m.ChangePct)
	}

	if len(r.Improvements) > 0 {
		b.WriteString("\nImprovements\n")
		for _, imp := range r.Improvements {
			fmt.Fprintf(&b, "- %s\n", imp.Message)
		}
	}

	if len(r.Seasonal) > 0 {
		b.WriteString("\nMonthly\n")
		for _, p := range r.Seasonal {
			fmt.Fprintf(
				&b,
				"- %s: %d rides, %.1f h, %.0f W avg, %.0f W best NP\n",
				p.Month.Format("Jan 2006"),
				p.Activities,
				p.Hours,
				p.AvgPowerW,
				p.BestNormalizedPowerW,
			)
		}
	}

	if f := r.Forecast; f != nil && len(f.Points) > 0 {
		last := f.Points[len(f.Points)-1]
		fmt.Fprintf(
			&b,
			"\nForecast: %+.1f W/month (R² %.2f), ~%.0f W average by %s\n",
			f.SlopeWPerMonth,
			f.RSquared,
			last.AvgPowerW,
			last.Month.Format("Jan 2006"),
		)
	}
	return strings.TrimSpace(b.String())
}

// writeOutcome writes the window line and reports whether a result follows.
func writeOutcome(b *strings.Builder, o Outcome) bool {
	if note := WindowNote(o.Window); note != "" {
		b.WriteString(note)
		b.WriteByte('\n')
	}
	if o.Status != model.StatusOK {
		fmt.Fprintf(b, "Insufficient data: %s\n", o.Reason)
		return false
	}
	return true
}

// WindowNote explains a widened lookback window, empty when the requested
// window sufficed.
func WindowNote(w model.AnalysisWindow) string {
	switch {
	case w.AllHistory:
		return fmt.Sprintf(
			"Window extended automatically: %d months had too little data, used all history (%d months, %d activities).",
			w.RequestedMonths, w.ActualMonthsUsed, w.SampleCount)
	case w.Widened:
		return fmt.Sprintf(
			"Window extended automatically from %d to %d months (%d activities).",
			w.RequestedMonths, w.ActualMonthsUsed, w.SampleCount)
	default:
		return ""
	}
}

func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return "0s"
	}
	s := int(math.Round(seconds))
	h := s / 3600
	m := (s % 3600) / 60
	sec := s % 60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, sec)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, sec)
	}
	return fmt.Sprintf("%ds", sec)
}
