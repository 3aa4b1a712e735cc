package model

import (
	"fmt"
	"math"
	"time"
)

// QuantizeStep is the size of the grid samples are snapped to, in degrees.
const QuantizeStep = 1e-4

type Accuracy string

const (
	AccuracyHigh   Accuracy = "high"
	AccuracyMedium Accuracy = "medium"
	AccuracyLow    Accuracy = "low"
)

func (a Accuracy) Valid() bool {
	switch a {
	case AccuracyHigh, AccuracyMedium, AccuracyLow:
		return true
	}
	return false
}

// SourceEstimated marks values produced by the regional estimate table.
const SourceEstimated = "estimated"

type Coordinate struct {
	Lat float64 `json:"latitude"`
	Lng float64 `json:"longitude"`
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lng)
}

// Key returns the quantized grid key of the coordinate.
func (c Coordinate) Key() (latKey, lngKey int64) {
	return QuantizeKey(c.Lat), QuantizeKey(c.Lng)
}

// Quantized snaps the coordinate onto the sample grid.
func (c Coordinate) Quantized() Coordinate {
	latKey, lngKey := c.Key()
	return Coordinate{Lat: float64(latKey) * QuantizeStep, Lng: float64(lngKey) * QuantizeStep}
}

func QuantizeKey(deg float64) int64 {
	return int64(math.Round(deg / QuantizeStep))
}

type Bounds struct {
	MinLat float64 `json:"min_lat" yaml:"min_lat"`
	MaxLat float64 `json:"max_lat" yaml:"max_lat"`
	MinLon float64 `json:"min_lng" yaml:"min_lng"`
	MaxLon float64 `json:"max_lng" yaml:"max_lng"`
}

func (b Bounds) Contains(c Coordinate) bool {
	return c.Lat >= b.MinLat && c.Lat <= b.MaxLat && c.Lng >= b.MinLon && c.Lng <= b.MaxLon
}

func (b Bounds) Center() Coordinate {
	return Coordinate{Lat: (b.MinLat + b.MaxLat) / 2, Lng: (b.MinLon + b.MaxLon) / 2}
}

func (b Bounds) Valid() bool {
	return b.MinLat <= b.MaxLat && b.MinLon <= b.MaxLon &&
		b.MinLat >= -90 && b.MaxLat <= 90 && b.MinLon >= -180 && b.MaxLon <= 180
}

// ElevationSample is a single measured (or estimated) elevation, keyed by
// its quantized coordinate.
type ElevationSample struct {
	Lat        float64   `json:"latitude"`
	Lng        float64   `json:"longitude"`
	Elevation  float64   `json:"elevation"`
	Source     string    `json:"source"`
	Accuracy   Accuracy  `json:"accuracy"`
	AcquiredAt time.Time `json:"acquired_at"`
}

func (s ElevationSample) Coordinate() Coordinate {
	return Coordinate{Lat: s.Lat, Lng: s.Lng}
}

// Validate checks the invariants required before a sample is persisted.
func (s ElevationSample) Validate() error {
	if math.IsNaN(s.Elevation) || math.IsInf(s.Elevation, 0) {
		return fmt.Errorf("sample %s: elevation is not finite", s.Coordinate())
	}
	if s.Source == "" {
		return fmt.Errorf("sample %s: source is empty", s.Coordinate())
	}
	if !s.Accuracy.Valid() {
		return fmt.Errorf("sample %s: invalid accuracy %q", s.Coordinate(), s.Accuracy)
	}
	return nil
}

// Tier says which stage of the lookup produced a value.
type Tier string

const (
	TierExact        Tier = "exact"
	TierInterpolated Tier = "interpolated"
	TierNearest      Tier = "nearest"
	TierEstimated    Tier = "estimated"
)

// Resolution is the answer to a point lookup.
type Resolution struct {
	Coordinate
	Elevation float64  `json:"elevation"`
	Tier      Tier     `json:"tier"`
	Source    string   `json:"source"`
	Accuracy  Accuracy `json:"accuracy"`
	// AcquiredAt is when the backing sample was measured; nil for estimates.
	AcquiredAt *time.Time `json:"acquired_at,omitempty"`
}

// Measured reports whether the value came from stored samples.
func (r Resolution) Measured() bool {
	return r.Tier != TierEstimated
}
