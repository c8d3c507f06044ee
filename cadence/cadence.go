// Package cadence relates pedalling cadence to power, heart rate, and
// FTP-based power zones.
package cadence

import (
	"fmt"

	"github.com/lucasjlepore/fit-analytics/model"
)

// Band is a cadence range. MaxRPM of 0 means open-ended.
type Band struct {
	Label  string
	MinRPM float64
	MaxRPM float64
	// CenterRPM stands in for the band when reporting an optimal cadence.
	CenterRPM float64
}

func (b Band) contains(rpm float64) bool {
	return rpm >= b.MinRPM && (b.MaxRPM == 0 || rpm < b.MaxRPM)
}

var Bands = []Band{
	{Label: "<70", MinRPM: 0, MaxRPM: 70, CenterRPM: 65},
	{Label: "70-80", MinRPM: 70, MaxRPM: 80, CenterRPM: 75},
	{Label: "80-90", MinRPM: 80, MaxRPM: 90, CenterRPM: 85},
	{Label: "90-100", MinRPM: 90, MaxRPM: 100, CenterRPM: 95},
	{Label: "100-110", MinRPM: 100, MaxRPM: 110, CenterRPM: 105},
	{Label: "110+", MinRPM: 110, MaxRPM: 0, CenterRPM: 115},
}

// Zone is an FTP-relative power range in percent.
type Zone struct {
	Name      string
	MinPctFTP float64
	MaxPctFTP float64
}

var PowerZones = []Zone{
	{Name: "Z1 Active Recovery", MinPctFTP: 0, MaxPctFTP: 55},
	{Name: "Z2 Endurance", MinPctFTP: 55, MaxPctFTP: 75},
	{Name: "Z3 Tempo", MinPctFTP: 75, MaxPctFTP: 90},
	{Name: "Z4 Threshold", MinPctFTP: 90, MaxPctFTP: 105},
	{Name: "Z5 VO2", MinPctFTP: 105, MaxPctFTP: 120},
	{Name: "Z6 Anaerobic", MinPctFTP: 120, MaxPctFTP: 150},
	{Name: "Z7 Neuromuscular", MinPctFTP: 150, MaxPctFTP: 1000},
}

const (
	enduranceZone = 1
	thresholdZone = 3

	// MinBandSeconds is the time a band needs before it can be called optimal.
	MinBandSeconds = 300
)

// BandStats summarizes the samples that fell in one cadence band.
type BandStats struct {
	Band            string  `json:"band"`
	Seconds         float64 `json:"seconds"`
	SharePct        float64 `json:"share_pct"`
	AvgPowerW       float64 `json:"avg_power_w"`
	AvgHeartRateBPM float64 `json:"avg_heart_rate_bpm"`
	// Efficiency is watts per heartbeat per minute, 0 without heart rate.
	Efficiency float64 `json:"efficiency_w_per_bpm"`
}

// ZoneStats is the cadence held inside one power zone.
type ZoneStats struct {
	Zone          string  `json:"zone"`
	MinPctFTP     float64 `json:"min_pct_ftp"`
	MaxPctFTP     float64 `json:"max_pct_ftp"`
	Seconds       float64 `json:"seconds"`
	AvgCadenceRPM float64 `json:"avg_cadence_rpm"`
}

// Analysis is the cadence report across a set of activities.
type Analysis struct {
	EfficiencyByBand  []BandStats   `json:"efficiency_by_cadence_band"`
	CadenceByZone     []ZoneStats   `json:"cadence_by_power_zone"`
	OptimalCadenceRPM *float64      `json:"optimal_cadence_rpm"`
	OptimalBand       string        `json:"optimal_band,omitempty"`
	Recommendations   []string      `json:"recommendations"`
	FTPW              float64       `json:"ftp_w,omitempty"`
	SampleCount       int           `json:"sample_count"`
	Skipped           model.Skipped `json:"skipped"`

	// PerActivity holds what was skipped in each input activity, in input
	// order.
	PerActivity []model.Skipped `json:"-"`
}

type accum struct {
	seconds float64
	power   []float64
	hr      []float64
	cadence []float64
}

// Analyze uses every sample that carries both a positive power and a
// positive cadence reading, counting one second per sample. Zones are only
// reported when ftp > 0. An activity whose samples are all malformed is
// counted as a skipped activity.
func Analyze(activities [][]model.TelemetrySample, ftp float64) Analysis {
	bands := make([]accum, len(Bands))
	zones := make([]accum, len(PowerZones))
	var (
		skipped model.Skipped
		total   float64
	)
	perActivity := make([]model.Skipped, len(activities))

	for ai, samples := range activities {
		var own model.Skipped
		for _, s := range samples {
			if Malformed(s) {
				own.Samples++
				continue
			}
			p, okP := s.ValidPower()
			c, okC := s.ValidCadence()
			if !okP || !okC || p <= 0 {
				continue
			}
			total++

			for i, b := range Bands {
				if b.contains(c) {
					bands[i].seconds++
					bands[i].power = append(bands[i].power, p)
					if hr, ok := s.ValidHeartRate(); ok {
						bands[i].hr = append(bands[i].hr, hr)
					}
					break
				}
			}

			if ftp > 0 {
				pct := p / ftp * 100
				for i, z := range PowerZones {
					if pct >= z.MinPctFTP && pct < z.MaxPctFTP {
						zones[i].seconds++
						zones[i].cadence = append(zones[i].cadence, c)
						break
					}
				}
			}
		}
		if len(samples) > 0 && own.Samples == len(samples) {
			own.Activities = 1
		}
		perActivity[ai] = own
		skipped.Samples += own.Samples
		skipped.Activities += own.Activities
	}

	out := Analysis{
		EfficiencyByBand: make([]BandStats, len(Bands)),
		CadenceByZone:    []ZoneStats{},
		FTPW:             ftp,
		SampleCount:      int(total),
		Skipped:          skipped,
		PerActivity:      perActivity,
	}
	for i, b := range Bands {
		avgP := model.Average(bands[i].power)
		avgHR := model.Average(bands[i].hr)
		out.EfficiencyByBand[i] = BandStats{
			Band:            b.Label,
			Seconds:         bands[i].seconds,
			SharePct:        model.SafeDiv(bands[i].seconds, total) * 100,
			AvgPowerW:       avgP,
			AvgHeartRateBPM: avgHR,
			Efficiency:      model.SafeDiv(avgP, avgHR),
		}
	}
	if ftp > 0 {
		for i, z := range PowerZones {
			out.CadenceByZone = append(out.CadenceByZone, ZoneStats{
				Zone:          z.Name,
				MinPctFTP:     z.MinPctFTP,
				MaxPctFTP:     z.MaxPctFTP,
				Seconds:       zones[i].seconds,
				AvgCadenceRPM: model.Average(zones[i].cadence),
			})
		}
	}

	if idx := optimalBand(out.EfficiencyByBand); idx >= 0 {
		out.OptimalBand = Bands[idx].Label
		out.OptimalCadenceRPM = model.Float64Ptr(Bands[idx].CenterRPM)
	}
	out.Recommendations = recommend(out)
	return out
}

// Malformed reports a power or cadence reading that is present but out of
// range. Missing channels and zero cadence while coasting are not malformed.
func Malformed(s model.TelemetrySample) bool {
	if _, ok := s.ValidPower(); s.PowerW != nil && !ok {
		return true
	}
	if _, ok := s.ValidCadence(); s.CadenceRPM != nil && *s.CadenceRPM != 0 && !ok {
		return true
	}
	return false
}

// optimalBand picks the most efficient band among those with enough time.
// Without any heart rate it falls back to the band with the highest power.
func optimalBand(stats []BandStats) int {
	best := -1
	for i, s := range stats {
		if s.Seconds < MinBandSeconds || s.Efficiency <= 0 {
			continue
		}
		if best < 0 || s.Efficiency > stats[best].Efficiency {
			best = i
		}
	}
	if best >= 0 {
		return best
	}
	for i, s := range stats {
		if s.Seconds < MinBandSeconds || s.AvgPowerW <= 0 {
			continue
		}
		if best < 0 || s.AvgPowerW > stats[best].AvgPowerW {
			best = i
		}
	}
	return best
}

func recommend(a Analysis) []string {
	var out []string
	if a.OptimalCadenceRPM != nil && *a.OptimalCadenceRPM < 80 {
		out = append(out, fmt.Sprintf(
			"Most efficient cadence is %s rpm. Add high-cadence drills (for example 5 x 3 min at 100+ rpm) to widen your usable range.",
			a.OptimalBand))
	}
	if len(a.EfficiencyByBand) > 0 && a.EfficiencyByBand[0].SharePct > 20 {
		out = append(out, fmt.Sprintf(
			"%.0f%% of pedalling time is below 70 rpm. Grinding a big gear loads the knees and fatigues the legs early; shift down sooner.",
			a.EfficiencyByBand[0].SharePct))
	}
	if len(a.CadenceByZone) > thresholdZone {
		endurance := a.CadenceByZone[enduranceZone]
		threshold := a.CadenceByZone[thresholdZone]
		if endurance.Seconds > 0 && threshold.Seconds > 0 && endurance.AvgCadenceRPM-threshold.AvgCadenceRPM >= 10 {
			out = append(out, fmt.Sprintf(
				"Cadence drops from %.0f rpm at endurance to %.0f rpm at threshold. Practise holding cadence as the load rises.",
				endurance.AvgCadenceRPM, threshold.AvgCadenceRPM))
		}
	}
	if len(out) == 0 {
		out = append(out, "Cadence distribution looks balanced. Keep your current habits.")
	}
	return out
}
