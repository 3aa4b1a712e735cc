package core

import (
	"math"

	"elevation_service/internal/domain/model"
)

// planarDistance is the Euclidean distance in degree space.
func planarDistance(a, b model.Coordinate) float64 {
	return math.Hypot(a.Lat-b.Lat, a.Lng-b.Lng)
}

// InverseDistanceWeight interpolates the elevation at q with weights 1/d².
// A sample at distance zero is returned as is.
func InverseDistanceWeight(q model.Coordinate, samples []model.ElevationSample) float64 {
	var weighted, total float64
	for _, s := range samples {
		d := planarDistance(q, s.Coordinate())
		if d == 0 {
			return s.Elevation
		}
		w := 1 / (d * d)
		weighted += w * s.Elevation
		total += w
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

// worstAccuracy returns the least reliable accuracy among the samples.
func worstAccuracy(samples []model.ElevationSample) model.Accuracy {
	rank := map[model.Accuracy]int{model.AccuracyHigh: 0, model.AccuracyMedium: 1, model.AccuracyLow: 2}
	worst := model.AccuracyHigh
	for _, s := range samples {
		if rank[s.Accuracy] > rank[worst] {
			worst = s.Accuracy
		}
	}
	return worst
}

// RoadPoint is a sample position along a polyline.
type RoadPoint struct {
	model.Coordinate
	Distance float64
}

func lerp(a, b model.Coordinate, frac float64) model.Coordinate {
	return model.Coordinate{
		Lat: a.Lat + (b.Lat-a.Lat)*frac,
		Lng: a.Lng + (b.Lng-a.Lng)*frac,
	}
}

// SamplePolyline places points every interval meters of cumulative arc length.
// The first and last vertex are always included exactly.
func SamplePolyline(coords []model.Coordinate, interval float64) []RoadPoint {
	if len(coords) == 0 {
		return nil
	}

	points := []RoadPoint{{Coordinate: coords[0]}}
	next := interval
	var travelled float64
	for i := 1; i < len(coords); i++ {
		a, b := coords[i-1], coords[i]
		seg := model.HaversineMeters(a, b)
		for seg > 0 && next < travelled+seg {
			points = append(points, RoadPoint{
				Coordinate: lerp(a, b, (next-travelled)/seg),
				Distance:   next,
			})
			next += interval
		}
		travelled += seg
	}

	last := RoadPoint{Coordinate: coords[len(coords)-1], Distance: travelled}
	// Drop an interior point that lands on the end within float noise.
	if n := len(points); n > 1 && travelled-points[n-1].Distance < 1e-6 {
		points = points[:n-1]
	}
	if len(coords) > 1 {
		points = append(points, last)
	}
	return points
}
