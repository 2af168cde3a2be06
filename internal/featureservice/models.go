package featureservice

import (
	"time"

	"backend-routetracking/internal/shared/geo"
)

// Device is a mobile device registered on the tracking server. Name carries
// the tracking id.
type Device struct {
	ObjectID  int64      `json:"object_id"`
	Name      string     `json:"name"`
	Location  *geo.Point `json:"location,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Deleted   bool       `json:"deleted"`
}

type StopType int

const (
	StopTypeOrder StopType = iota
	StopTypeBreak
	StopTypeStartLocation
	StopTypeFinishLocation
	StopTypeRenewalLocation
)

func (t StopType) String() string {
	switch t {
	case StopTypeOrder:
		return "Order"
	case StopTypeBreak:
		return "Break"
	case StopTypeStartLocation:
		return "StartLocation"
	case StopTypeFinishLocation:
		return "FinishLocation"
	case StopTypeRenewalLocation:
		return "RenewalLocation"
	}
	return "Unknown"
}

type NameValue struct {
	Name  string `json:"Name"`
	Value string `json:"Value"`
}

// Stop is one visit of a device on a planned date. ID is the identity of
// the planned stop it was built from.
type Stop struct {
	ObjectID         int64         `json:"object_id"`
	ID               string        `json:"id"`
	Version          int           `json:"version"`
	DeviceID         int64         `json:"device_id"`
	PlannedDate      time.Time     `json:"planned_date"`
	SequenceNumber   int           `json:"sequence_number"`
	Name             string        `json:"name"`
	Location         *geo.Point    `json:"location,omitempty"`
	TimeWindowStart1 *time.Time    `json:"time_window_start1,omitempty"`
	TimeWindowEnd1   *time.Time    `json:"time_window_end1,omitempty"`
	TimeWindowStart2 *time.Time    `json:"time_window_start2,omitempty"`
	TimeWindowEnd2   *time.Time    `json:"time_window_end2,omitempty"`
	ServiceTime      time.Duration `json:"service_time"`
	MaxViolationTime time.Duration `json:"max_violation_time"`
	ArrivalTime      *time.Time    `json:"arrival_time,omitempty"`
	Deleted          bool          `json:"deleted"`
	Type             StopType      `json:"type"`
	Address          []NameValue   `json:"address,omitempty"`
	Capacities       []NameValue   `json:"capacities,omitempty"`
	CustomProperties []NameValue   `json:"custom_properties,omitempty"`
}

type Route struct {
	ObjectID    int64     `json:"object_id"`
	DeviceID    int64     `json:"device_id"`
	PlannedDate time.Time `json:"planned_date"`
	Name        string    `json:"name"`
	Deleted     bool      `json:"deleted"`
}

type BarrierType int

const (
	BarrierRestriction BarrierType = iota
	BarrierAddedCost
	BarrierScaledCost
)

type PointBarrier struct {
	Name     string      `json:"name"`
	Location geo.Point   `json:"location"`
	Type     BarrierType `json:"type"`
	// AddedCost is the delay in minutes for BarrierAddedCost.
	AddedCost float64 `json:"added_cost"`
}

// LineBarrier always restricts travel.
type LineBarrier struct {
	Name string       `json:"name"`
	Path geo.Polyline `json:"path"`
}

type PolygonBarrier struct {
	Name             string      `json:"name"`
	Shape            geo.Polygon `json:"shape"`
	Type             BarrierType `json:"type"`
	ScaledCostFactor float64     `json:"scaled_cost_factor"`
}

type Barriers struct {
	Points   []PointBarrier   `json:"points"`
	Lines    []LineBarrier    `json:"lines"`
	Polygons []PolygonBarrier `json:"polygons"`
}

func (b Barriers) Len() int {
	return len(b.Points) + len(b.Lines) + len(b.Polygons)
}

// Event is a status report sent by a device, e.g. arrival at a stop.
type Event struct {
	ObjectID  int64      `json:"object_id"`
	DeviceID  int64      `json:"device_id"`
	Type      string     `json:"type"`
	Timestamp time.Time  `json:"timestamp"`
	Location  *geo.Point `json:"location,omitempty"`
	StopID    string     `json:"stop_id,omitempty"`
	Message   string     `json:"message,omitempty"`
}
