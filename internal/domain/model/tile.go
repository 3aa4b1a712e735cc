package model

import (
	"fmt"
	"math"
)

// TileKey identifies a square of the tiling, floor(coord / size) on each axis.
type TileKey struct {
	X int64 `json:"x"`
	Y int64 `json:"y"`
}

func TileKeyFor(c Coordinate, size float64) TileKey {
	return TileKey{
		X: int64(math.Floor(c.Lng / size)),
		Y: int64(math.Floor(c.Lat / size)),
	}
}

func (k TileKey) String() string {
	return fmt.Sprintf("%d_%d", k.X, k.Y)
}

func (k TileKey) Bounds(size float64) Bounds {
	return Bounds{
		MinLat: float64(k.Y) * size,
		MaxLat: float64(k.Y+1) * size,
		MinLon: float64(k.X) * size,
		MaxLon: float64(k.X+1) * size,
	}
}

// Tile aggregates the samples that fall in one tile.
type Tile struct {
	Key          TileKey      `json:"key"`
	Size         float64      `json:"size"`
	Bounds       Bounds       `json:"bounds"`
	Count        int          `json:"count"`
	MinElevation float64      `json:"min_elevation"`
	MaxElevation float64      `json:"max_elevation"`
	AvgElevation float64      `json:"avg_elevation"`
	Points       [][3]float64 `json:"points"`
}
