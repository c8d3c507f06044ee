package climb

import (
	"sort"
	"time"

	"github.com/lucasjlepore/fit-analytics/model"
)

// DefaultTrendThreshold is the relative VAM change that counts as a trend.
const DefaultTrendThreshold = 0.05

// BenchmarkVAM is the reference ascent rate per category in m/h. It is used
// for display and ranking estimates only, never to filter climbs.
var BenchmarkVAM = map[model.ClimbCategory]float64{
	model.CategoryCat4: 700,
	model.CategoryCat3: 800,
	model.CategoryCat2: 900,
	model.CategoryCat1: 1000,
	model.CategoryHC:   1100,
}

// ClassifyTrend compares the chronologically first and last VAM of a group.
func ClassifyTrend(records []model.ClimbRecord, threshold float64) model.Trend {
	if len(records) < 2 {
		return model.TrendStable
	}
	ordered := chronological(records)
	first := ordered[0].VAMMPerH
	last := ordered[len(ordered)-1].VAMMPerH
	if first <= 0 {
		return model.TrendStable
	}
	change := model.RelativeChange(first, last)
	switch {
	case change > threshold:
		return model.TrendImproving
	case change < -threshold:
		return model.TrendDeclining
	default:
		return model.TrendStable
	}
}

// Summarize reduces each group to its fastest attempt. The output keeps the
// group order.
func Summarize(groups []model.ClimbGroup, threshold float64) []model.ClimbPerformance {
	out := make([]model.ClimbPerformance, 0, len(groups))
	for _, g := range groups {
		if len(g.Records) == 0 {
			continue
		}
		best := g.Records[0]
		last := g.Records[0].Date
		for _, r := range g.Records[1:] {
			if r.VAMMPerH > best.VAMMPerH {
				best = r
			}
			if r.Date.After(last) {
				last = r.Date
			}
		}
		out = append(out, model.ClimbPerformance{
			Best:        best,
			Attempts:    len(g.Records),
			Trend:       ClassifyTrend(g.Records, threshold),
			LastAttempt: last,
		})
	}
	return out
}

// CategoryStats is the VAM summary of every record in one category.
type CategoryStats struct {
	Category     model.ClimbCategory `json:"category"`
	Count        int                 `json:"count"`
	AvgVAM       float64             `json:"avg_vam_m_per_h"`
	MaxVAM       float64             `json:"max_vam_m_per_h"`
	BenchmarkVAM float64             `json:"benchmark_vam_m_per_h"`
}

// VAMByCategory reports categories that have at least one record, smallest
// category first.
func VAMByCategory(records []model.ClimbRecord) []CategoryStats {
	byCategory := make(map[model.ClimbCategory][]float64)
	for _, r := range records {
		byCategory[r.Category] = append(byCategory[r.Category], r.VAMMPerH)
	}

	out := make([]CategoryStats, 0, len(byCategory))
	for _, cat := range model.Categories {
		vams := byCategory[cat]
		if len(vams) == 0 {
			continue
		}
		out = append(out, CategoryStats{
			Category:     cat,
			Count:        len(vams),
			AvgVAM:       model.Average(vams),
			MaxVAM:       model.MaxValue(vams),
			BenchmarkVAM: BenchmarkVAM[cat],
		})
	}
	return out
}

// MonthlyBucket aggregates the climbs of one calendar month.
type MonthlyBucket struct {
	Month           time.Time `json:"month"`
	Climbs          int       `json:"climbs"`
	AvgVAM          float64   `json:"avg_vam_m_per_h"`
	MaxVAM          float64   `json:"max_vam_m_per_h"`
	TotalElevationM float64   `json:"total_elevation_m"`
}

// MonthlyTrends buckets records into the months calendar months ending with
// the month containing now, oldest first. Empty months are present with zero
// values so the series has no gaps.
func MonthlyTrends(records []model.ClimbRecord, now time.Time, months int) []MonthlyBucket {
	if months <= 0 {
		return nil
	}
	end := model.MonthStart(now)
	start := end.AddDate(0, -(months - 1), 0)

	buckets := make([]MonthlyBucket, months)
	vams := make([][]float64, months)
	for i := range buckets {
		buckets[i].Month = start.AddDate(0, i, 0)
	}

	for _, r := range records {
		m := model.MonthStart(r.Date)
		if m.Before(start) || m.After(end) {
			continue
		}
		idx := model.MonthsBetween(start, m) - 1
		if idx < 0 || idx >= months {
			continue
		}
		buckets[idx].Climbs++
		buckets[idx].TotalElevationM += r.ElevationM
		vams[idx] = append(vams[idx], r.VAMMPerH)
	}

	for i := range buckets {
		buckets[i].AvgVAM = model.Average(vams[i])
		buckets[i].MaxVAM = model.MaxValue(vams[i])
	}
	return buckets
}

// Segment-ranking tiers.
const (
	TierTop10      = "top 10%"
	TierTop25      = "top 25%"
	TierTop50      = "top 50%"
	TierDeveloping = "developing"
)

// SegmentEstimate approximates where a best effort would rank on a public
// segment by comparing it with the category benchmark. There is no
// leaderboard behind it.
type SegmentEstimate struct {
	ClimbID             string              `json:"climb_id"`
	Name                string              `json:"name"`
	Category            model.ClimbCategory `json:"category"`
	VAMMPerH            float64             `json:"vam_m_per_h"`
	BenchmarkVAM        float64             `json:"benchmark_vam_m_per_h"`
	EstimatedPercentile float64             `json:"estimated_percentile"`
	Tier                string              `json:"tier"`
}

// EstimateSegments builds one estimate per performance, in input order.
func EstimateSegments(perfs []model.ClimbPerformance) []SegmentEstimate {
	out := make([]SegmentEstimate, 0, len(perfs))
	for _, p := range perfs {
		benchmark := BenchmarkVAM[p.Best.Category]
		if benchmark <= 0 {
			continue
		}
		ratio := p.Best.VAMMPerH / benchmark
		percentile := model.Clamp(50+(ratio-1)*100, 1, 99)
		out = append(out, SegmentEstimate{
			ClimbID:             p.Best.ClimbID,
			Name:                p.Best.Name,
			Category:            p.Best.Category,
			VAMMPerH:            p.Best.VAMMPerH,
			BenchmarkVAM:        benchmark,
			EstimatedPercentile: percentile,
			Tier:                tierFor(percentile),
		})
	}
	return out
}

func tierFor(percentile float64) string {
	switch {
	case percentile >= 90:
		return TierTop10
	case percentile >= 75:
		return TierTop25
	case percentile >= 50:
		return TierTop50
	default:
		return TierDeveloping
	}
}

// SortRecords orders records by date, then climb id. Grouping depends on
// input order, so callers sort before grouping to get stable groups.
func SortRecords(records []model.ClimbRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].Date.Equal(records[j].Date) {
			return records[i].Date.Before(records[j].Date)
		}
		return records[i].ClimbID < records[j].ClimbID
	})
}

func chronological(records []model.ClimbRecord) []model.ClimbRecord {
	ordered := make([]model.ClimbRecord, len(records))
	copy(ordered, records)
	SortRecords(ordered)
	return ordered
}
