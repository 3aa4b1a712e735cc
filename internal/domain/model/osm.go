package model

import (
	"fmt"
	"time"
)

// RoadSegment is a cyclable way extracted from OpenStreetMap.
type RoadSegment struct {
	OSMWayID     int64        `json:"osm_way_id"`
	RoadType     string       `json:"road_type"`
	Surface      string       `json:"surface"`
	Name         string       `json:"name,omitempty"`
	Coordinates  []Coordinate `json:"coordinates"`
	LengthMeters float64      `json:"length_meters"`
}

type Tags struct {
	Name    string `json:"name"`
	Highway string `json:"highway"`
	Surface string `json:"surface"`
	Access  string `json:"access"`
}

func TagsFromMap(m map[string]string) Tags {
	return Tags{
		Name:    m["name"],
		Highway: m["highway"],
		Surface: m["surface"],
		Access:  m["access"],
	}
}

// ProfileSample is a sample along a road with its derived gradients.
// Gradient is nil when the run to the next sample is zero or the sample is last.
type ProfileSample struct {
	ElevationSample
	DistanceAlongRoad float64  `json:"distance_along_road"`
	Gradient          *float64 `json:"gradient,omitempty"`
	LocalMaxGradient  *float64 `json:"local_max_gradient,omitempty"`
}

type RoadElevationProfile struct {
	SegmentID        string          `json:"segment_id" db:"segment_id"`
	OSMWayID         int64           `json:"osm_way_id" db:"osm_way_id"`
	RoadType         string          `json:"road_type" db:"road_type"`
	Surface          string          `json:"surface" db:"surface"`
	LengthMeters     float64         `json:"length_meters" db:"length_meters"`
	SampleInterval   float64         `json:"sample_interval" db:"sample_interval"`
	Samples          []ProfileSample `json:"samples" db:"-"`
	MinElevation     float64         `json:"min_elevation" db:"min_elevation"`
	MaxElevation     float64         `json:"max_elevation" db:"max_elevation"`
	TotalAscent      float64         `json:"total_ascent" db:"total_ascent"`
	TotalDescent     float64         `json:"total_descent" db:"total_descent"`
	MaxGradient      float64         `json:"max_gradient" db:"max_gradient"`
	AvgGradient      float64         `json:"avg_gradient" db:"avg_gradient"`
	SuitabilityScore float64         `json:"suitability_score" db:"suitability_score"`
	CreatedAt        time.Time       `json:"created_at" db:"-"`
}

// SegmentID identifies the profile of a road at a given sampling interval.
func SegmentID(osmWayID int64, intervalMeters float64) string {
	return fmt.Sprintf("seg_%d_%gm", osmWayID, intervalMeters)
}
