package climb

import (
	"math"
	"sort"

	"github.com/lucasjlepore/fit-analytics/model"
)

// GroupOptions are the similarity tolerances used to decide that two records
// describe the same physical climb.
type GroupOptions struct {
	DistanceTolerance  float64
	ElevationTolerance float64
	TopN               int
}

// DefaultGroupOptions allow 20% distance and 15% elevation difference and
// report the 20 biggest groups.
func DefaultGroupOptions() GroupOptions {
	return GroupOptions{
		DistanceTolerance:  0.2,
		ElevationTolerance: 0.15,
		TopN:               20,
	}
}

// Group clusters records around seeds taken in input order. Every unvisited
// record within tolerance of the current seed joins its group. Membership is
// decided against the seed only, so similarity is not transitive across
// groups: A~B and B~C does not place A and C together unless both match the
// same seed.
//
// Groups are ordered by seed elevation, biggest first, with ties kept in
// input order, then capped to TopN when TopN > 0.
func Group(records []model.ClimbRecord, opts GroupOptions) []model.ClimbGroup {
	visited := make([]bool, len(records))
	groups := make([]model.ClimbGroup, 0)

	for i, seed := range records {
		if visited[i] {
			continue
		}
		visited[i] = true
		group := model.ClimbGroup{Records: []model.ClimbRecord{seed}}

		for j := i + 1; j < len(records); j++ {
			if visited[j] {
				continue
			}
			if Similar(seed, records[j], opts) {
				visited[j] = true
				group.Records = append(group.Records, records[j])
			}
		}
		groups = append(groups, group)
	}

	sort.SliceStable(groups, func(a, b int) bool {
		return groups[a].Seed().ElevationM > groups[b].Seed().ElevationM
	})
	if opts.TopN > 0 && len(groups) > opts.TopN {
		groups = groups[:opts.TopN]
	}
	return groups
}

// Similar compares other against seed using relative differences measured
// from the seed.
func Similar(seed, other model.ClimbRecord, opts GroupOptions) bool {
	if seed.DistanceKM <= 0 || seed.ElevationM <= 0 {
		return false
	}
	distDiff := math.Abs(other.DistanceKM-seed.DistanceKM) / seed.DistanceKM
	elevDiff := math.Abs(other.ElevationM-seed.ElevationM) / seed.ElevationM
	return distDiff < opts.DistanceTolerance && elevDiff < opts.ElevationTolerance
}
