package model

import "time"

type UnitStatus string

const (
	StatusPending    UnitStatus = "pending"
	StatusInProgress UnitStatus = "in_progress"
	StatusCompleted  UnitStatus = "completed"
	StatusFailed     UnitStatus = "failed"
)

func (s UnitStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type UnitKind string

const (
	KindGrid UnitKind = "grid"
	KindRoad UnitKind = "road"
)

const (
	PriorityHighest = 1
	PriorityLowest  = 5
)

// WorkUnit is a schedulable piece of acquisition work: a grid cell or a road.
type WorkUnit struct {
	ID            string       `json:"unit_id"`
	Kind          UnitKind     `json:"kind"`
	Bounds        Bounds       `json:"bounds"`
	RoadRef       int64        `json:"road_ref,omitempty"`
	Road          *RoadSegment `json:"road,omitempty"`
	Priority      int          `json:"priority"`
	Status        UnitStatus   `json:"status"`
	LastAttemptAt *time.Time   `json:"last_attempt_at,omitempty"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
	ErrorCount    int          `json:"error_count"`
	LastError     string       `json:"last_error,omitempty"`
	ClaimedBy     string       `json:"claimed_by,omitempty"`
}

// PriorityRegion assigns a priority to grid cells whose center it contains.
type PriorityRegion struct {
	Name     string `json:"name" yaml:"name"`
	Bounds   Bounds `json:"bounds" yaml:"bounds"`
	Priority int    `json:"priority" yaml:"priority"`
}

type UnitEventType string

const (
	EventUnitCompleted UnitEventType = "completed"
	EventUnitExhausted UnitEventType = "exhausted"
)

// UnitEvent is emitted when a unit reaches a terminal state.
type UnitEvent struct {
	Type       UnitEventType `json:"type"`
	UnitID     string        `json:"unit_id"`
	Kind       UnitKind      `json:"kind"`
	Priority   int           `json:"priority"`
	ErrorCount int           `json:"error_count"`
	LastError  string        `json:"last_error,omitempty"`
	At         time.Time     `json:"at"`
}

// AcquisitionStats summarises the work queue and sample table.
type AcquisitionStats struct {
	Units       map[UnitStatus]int `json:"units"`
	Samples     int                `json:"samples"`
	Coverage    *Bounds            `json:"coverage,omitempty"`
	FailedUnits []WorkUnit         `json:"failed_units,omitempty"`
}
