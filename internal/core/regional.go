package core

import "elevation_service/internal/domain/model"

// RegionalEstimator produces a coarse guess for coordinates with no nearby
// samples. Its answers are never treated as measurements.
type RegionalEstimator interface {
	Estimate(c model.Coordinate) float64
}

type RegionEstimate struct {
	Name      string
	Bounds    model.Bounds
	Elevation float64
}

// RegionTable returns the elevation of the first region containing the
// coordinate, or Default.
type RegionTable struct {
	Regions []RegionEstimate
	Default float64
}

func (t RegionTable) Estimate(c model.Coordinate) float64 {
	for _, r := range t.Regions {
		if r.Bounds.Contains(c) {
			return r.Elevation
		}
	}
	return t.Default
}

// DefaultRegionTable checks mountain ranges before ocean basins so that a
// range inside a basin box keeps its altitude.
func DefaultRegionTable() RegionTable {
	return RegionTable{
		Regions: []RegionEstimate{
			{Name: "rocky_mountains", Bounds: model.Bounds{MinLat: 25, MaxLat: 50, MinLon: -125, MaxLon: -100}, Elevation: 1500},
			{Name: "alps", Bounds: model.Bounds{MinLat: 45, MaxLat: 48, MinLon: 6, MaxLon: 15}, Elevation: 800},
			{Name: "himalayas", Bounds: model.Bounds{MinLat: 27, MaxLat: 30, MinLon: 86, MaxLon: 89}, Elevation: 4000},
			{Name: "pacific", Bounds: model.Bounds{MinLat: -90, MaxLat: 0, MinLon: 100, MaxLon: 180}, Elevation: 0},
			{Name: "north_atlantic", Bounds: model.Bounds{MinLat: 30, MaxLat: 70, MinLon: -60, MaxLon: -10}, Elevation: 0},
		},
		Default: 200,
	}
}
