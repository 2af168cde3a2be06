package project

import (
	"time"

	"backend-routetracking/internal/shared/geo"
)

type SyncType int

const (
	SyncTypeNone SyncType = iota
	// SyncTypeWMServer devices are mirrored on the tracking server.
	SyncTypeWMServer
)

type MobileDevice struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	TrackingID string   `json:"tracking_id"`
	SyncType   SyncType `json:"sync_type"`
}

// Tracked reports whether the device takes part in tracking server sync.
func (d *MobileDevice) Tracked() bool {
	return d != nil && d.SyncType == SyncTypeWMServer && d.TrackingID != ""
}

type Driver struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	MobileDevice *MobileDevice `json:"mobile_device,omitempty"`
}

type Vehicle struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	MobileDevice *MobileDevice `json:"mobile_device,omitempty"`
}

// TimeWindow bounds are offsets from midnight of the planned date.
type TimeWindow struct {
	From     time.Duration `json:"from"`
	To       time.Duration `json:"to"`
	WideOpen bool          `json:"wide_open"`
}

type Order struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Point            *geo.Point        `json:"point,omitempty"`
	Address          map[string]string `json:"address,omitempty"`
	TimeWindow       TimeWindow        `json:"time_window"`
	TimeWindow2      TimeWindow        `json:"time_window2"`
	ServiceTime      time.Duration     `json:"service_time"`
	MaxViolationTime time.Duration     `json:"max_violation_time"`
	Capacities       []float64         `json:"capacities,omitempty"`
	CustomProperties []string          `json:"custom_properties,omitempty"`
}

type Location struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Point       *geo.Point        `json:"point,omitempty"`
	Address     map[string]string `json:"address,omitempty"`
	TimeWindow  TimeWindow        `json:"time_window"`
	TimeWindow2 TimeWindow        `json:"time_window2"`
}

type Break struct {
	TimeWindow TimeWindow    `json:"time_window"`
	Duration   time.Duration `json:"duration"`
}

type StopType int

const (
	StopTypeOrder StopType = iota
	StopTypeLocation
	StopTypeLunch
)

type Stop struct {
	ID             string        `json:"id"`
	Type           StopType      `json:"type"`
	SequenceNumber int           `json:"sequence_number"`
	TimeAtStop     time.Duration `json:"time_at_stop"`
	ArriveTime     time.Time     `json:"arrive_time"`
	Order          *Order        `json:"order,omitempty"`
	Location       *Location     `json:"location,omitempty"`
}

type Route struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Driver  *Driver  `json:"driver,omitempty"`
	Vehicle *Vehicle `json:"vehicle,omitempty"`
	Break   *Break   `json:"break,omitempty"`
	Stops   []*Stop  `json:"stops"`
}

type BarrierGeometry int

const (
	BarrierPoint BarrierGeometry = iota
	BarrierPolyline
	BarrierPolygon
)

// BarrierEffect either blocks travel or slows it down. DelayTime applies to
// point barriers, SpeedFactorPercent to polygon barriers.
type BarrierEffect struct {
	BlockTravel        bool          `json:"block_travel"`
	DelayTime          time.Duration `json:"delay_time"`
	SpeedFactorPercent float64       `json:"speed_factor_percent"`
}

type Barrier struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	StartDate  time.Time       `json:"start_date"`
	FinishDate time.Time       `json:"finish_date"`
	Geometry   BarrierGeometry `json:"geometry"`
	Point      *geo.Point      `json:"point,omitempty"`
	Polyline   *geo.Polyline   `json:"polyline,omitempty"`
	Polygon    *geo.Polygon    `json:"polygon,omitempty"`
	Effect     BarrierEffect   `json:"effect"`
}

// ValidOn reports whether the barrier is active on the given day.
func (b *Barrier) ValidOn(date time.Time) bool {
	day := DateOnly(date)
	return !day.Before(DateOnly(b.StartDate)) && !day.After(DateOnly(b.FinishDate))
}

func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
