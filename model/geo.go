package model

import "math"

const earthRadiusM = 6371000.0

// HaversineM is the great-circle distance in meters between two points.
func HaversineM(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusM * c
}

// PathDistanceM sums the haversine legs between consecutive samples that
// carry a valid position. Samples without one are stepped over.
func PathDistanceM(samples []TelemetrySample) float64 {
	total := 0.0
	var prevLat, prevLng float64
	havePrev := false
	for _, s := range samples {
		lat, lng, ok := s.ValidPosition()
		if !ok {
			continue
		}
		if havePrev {
			total += HaversineM(prevLat, prevLng, lat, lng)
		}
		prevLat, prevLng, havePrev = lat, lng, true
	}
	return total
}
