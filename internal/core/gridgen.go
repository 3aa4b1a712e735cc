package core

import (
	"fmt"
	"math"

	"elevation_service/internal/domain/model"
)

// GenerateGridUnits splits the region into cells of cellSize degrees. Cells
// on the upper edges are clipped to the region. Each cell takes the priority
// of the first region containing its center.
func GenerateGridUnits(region model.Bounds, cellSize float64, regions []model.PriorityRegion) ([]model.WorkUnit, error) {
	if cellSize <= 0 {
		return nil, fmt.Errorf("cell size must be positive, got %g", cellSize)
	}
	if !region.Valid() {
		return nil, fmt.Errorf("invalid region %+v", region)
	}

	latDiff := region.MaxLat - region.MinLat
	lonDiff := region.MaxLon - region.MinLon

	// The epsilon keeps an exact multiple from producing an empty sliver.
	cellsLat := max(1, int(math.Ceil(latDiff/cellSize-1e-9)))
	cellsLon := max(1, int(math.Ceil(lonDiff/cellSize-1e-9)))

	units := make([]model.WorkUnit, 0, cellsLat*cellsLon)
	for i := 0; i < cellsLat; i++ {
		for j := 0; j < cellsLon; j++ {
			cell := model.Bounds{
				MinLat: region.MinLat + float64(i)*cellSize,
				MinLon: region.MinLon + float64(j)*cellSize,
				MaxLat: math.Min(region.MinLat+float64(i+1)*cellSize, region.MaxLat),
				MaxLon: math.Min(region.MinLon+float64(j+1)*cellSize, region.MaxLon),
			}
			units = append(units, model.WorkUnit{
				ID:       GridUnitID(cell, cellSize),
				Kind:     model.KindGrid,
				Bounds:   cell,
				Priority: PriorityFor(cell.Center(), regions),
				Status:   model.StatusPending,
			})
		}
	}
	return units, nil
}

func GridUnitID(cell model.Bounds, cellSize float64) string {
	return fmt.Sprintf("grid_%d_%d_%g", model.QuantizeKey(cell.MinLat), model.QuantizeKey(cell.MinLon), cellSize)
}

// PriorityFor returns the priority of the first region containing c, or the
// lowest priority when none does.
func PriorityFor(c model.Coordinate, regions []model.PriorityRegion) int {
	for _, r := range regions {
		if r.Bounds.Contains(c) {
			return r.Priority
		}
	}
	return model.PriorityLowest
}

// GridSamplePoints lays an (n+1)x(n+1) lattice over the cell, denser for
// urgent cells.
func GridSamplePoints(cell model.Bounds, priority int) []model.Coordinate {
	n := 5
	if priority <= 2 {
		n = 10
	}

	latStep := (cell.MaxLat - cell.MinLat) / float64(n)
	lonStep := (cell.MaxLon - cell.MinLon) / float64(n)

	points := make([]model.Coordinate, 0, (n+1)*(n+1))
	for i := 0; i <= n; i++ {
		for j := 0; j <= n; j++ {
			points = append(points, model.Coordinate{
				Lat: cell.MinLat + float64(i)*latStep,
				Lng: cell.MinLon + float64(j)*lonStep,
			})
		}
	}
	return points
}

// RoadPriority ranks highway classes by how much cyclists use them.
func RoadPriority(roadType string) int {
	switch roadType {
	case "cycleway", "path":
		return 1
	case "residential", "tertiary":
		return 2
	case "secondary", "unclassified":
		return 3
	case "primary", "service", "track":
		return 4
	}
	return model.PriorityLowest
}

// GenerateRoadUnits creates one unit per road with at least two vertices.
// The road itself travels with the unit.
func GenerateRoadUnits(roads []model.RoadSegment) []model.WorkUnit {
	units := make([]model.WorkUnit, 0, len(roads))
	for i := range roads {
		road := roads[i]
		if len(road.Coordinates) < 2 {
			continue
		}
		units = append(units, model.WorkUnit{
			ID:       RoadUnitID(road.OSMWayID),
			Kind:     model.KindRoad,
			Bounds:   boundsOf(road.Coordinates),
			RoadRef:  road.OSMWayID,
			Road:     &road,
			Priority: RoadPriority(road.RoadType),
			Status:   model.StatusPending,
		})
	}
	return units
}

func RoadUnitID(osmWayID int64) string {
	return fmt.Sprintf("road_%d", osmWayID)
}

func boundsOf(coords []model.Coordinate) model.Bounds {
	b := model.Bounds{
		MinLat: coords[0].Lat, MaxLat: coords[0].Lat,
		MinLon: coords[0].Lng, MaxLon: coords[0].Lng,
	}
	for _, c := range coords[1:] {
		b.MinLat = math.Min(b.MinLat, c.Lat)
		b.MaxLat = math.Max(b.MaxLat, c.Lat)
		b.MinLon = math.Min(b.MinLon, c.Lng)
		b.MaxLon = math.Max(b.MaxLon, c.Lng)
	}
	return b
}
