package featureservice

import (
	"encoding/json"
	"math"
	"time"

	"backend-routetracking/internal/shared/geo"
)

const (
	layerDevices         = "Devices"
	layerStops           = "Stops"
	layerRoutes          = "Routes"
	layerSettings        = "Settings"
	layerPointBarriers   = "PointBarriers"
	layerLineBarriers    = "LineBarriers"
	layerPolygonBarriers = "PolygonBarriers"
	layerEvents          = "Events"

	routeSettingsKey = "RouteSettings"
)

type feature[A any, G any] struct {
	Attributes A  `json:"attributes"`
	Geometry   *G `json:"geometry,omitempty"`
}

type queryResponse[A any, G any] struct {
	Features []feature[A, G] `json:"features"`
	Error    *errorBody      `json:"error,omitempty"`
}

type editResult struct {
	ObjectID int64      `json:"objectId"`
	Success  bool       `json:"success"`
	Error    *errorBody `json:"error,omitempty"`
}

type editsResponse struct {
	AddResults    []editResult `json:"addResults"`
	UpdateResults []editResult `json:"updateResults"`
	DeleteResults []editResult `json:"deleteResults"`
	Error         *errorBody   `json:"error,omitempty"`
}

type edits struct {
	Adds    any     `json:"adds,omitempty"`
	Updates any     `json:"updates,omitempty"`
	Deletes []int64 `json:"deletes,omitempty"`
}

type deviceAttributes struct {
	ObjectID  int64  `json:"ObjectID,omitempty"`
	Name      string `json:"Name"`
	Timestamp *int64 `json:"Timestamp,omitempty"`
	Deleted   int    `json:"Deleted"`
}

type stopAttributes struct {
	ObjectID              int64   `json:"ObjectID,omitempty"`
	StopID                string  `json:"StopID"`
	Version               int     `json:"Version"`
	DeviceID              int64   `json:"DeviceID"`
	PlannedDate           int64   `json:"PlannedDate"`
	SequenceNumber        int     `json:"SequenceNumber"`
	Name                  string  `json:"Name"`
	TimeWindowStart1      *int64  `json:"TimeWindowStart1"`
	TimeWindowEnd1        *int64  `json:"TimeWindowEnd1"`
	TimeWindowStart2      *int64  `json:"TimeWindowStart2"`
	TimeWindowEnd2        *int64  `json:"TimeWindowEnd2"`
	ServiceTime           float64 `json:"ServiceTime"`
	MaxViolationTime      float64 `json:"MaxViolationTime"`
	ArrivalTime           *int64  `json:"ArrivalTime"`
	Deleted               int     `json:"Deleted"`
	StopType              int     `json:"StopType"`
	Address               string  `json:"Address,omitempty"`
	Capacities            string  `json:"Capacities,omitempty"`
	CustomOrderProperties string  `json:"CustomOrderProperties,omitempty"`
}

type routeAttributes struct {
	ObjectID    int64  `json:"ObjectID,omitempty"`
	DeviceID    int64  `json:"DeviceID"`
	PlannedDate int64  `json:"PlannedDate"`
	Name        string `json:"Name"`
	Deleted     int    `json:"Deleted"`
}

type settingAttributes struct {
	ObjectID    int64  `json:"ObjectID,omitempty"`
	PlannedDate int64  `json:"PlannedDate"`
	Key         string `json:"Key"`
	Value       string `json:"Value"`
}

type barrierAttributes struct {
	ObjectID         int64   `json:"ObjectID,omitempty"`
	PlannedDate      int64   `json:"PlannedDate"`
	Name             string  `json:"Name"`
	BarrierType      int     `json:"BarrierType"`
	AddedCost        float64 `json:"AddedCost,omitempty"`
	ScaledCostFactor float64 `json:"ScaledCostFactor,omitempty"`
}

type eventAttributes struct {
	ObjectID  int64  `json:"ObjectID"`
	DeviceID  int64  `json:"DeviceID"`
	Type      string `json:"Type"`
	Timestamp int64  `json:"Timestamp"`
	StopID    string `json:"StopID"`
	Message   string `json:"Message"`
}

// deletedFlag is a partial update that soft-deletes a feature.
type deletedFlag struct {
	ObjectID int64 `json:"ObjectID"`
	Deleted  int   `json:"Deleted"`
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func optMillis(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

func fromOptMillis(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := fromMillis(*ms)
	return &t
}

func minutes(d time.Duration) float64 { return d.Minutes() }

func fromMinutes(m float64) time.Duration {
	return time.Duration(math.Round(m * float64(time.Minute)))
}

func flag(b bool) int {
	if b {
		return 1
	}
	return 0
}

func encodeDevice(d Device) feature[deviceAttributes, geo.Point] {
	return feature[deviceAttributes, geo.Point]{
		Attributes: deviceAttributes{
			ObjectID:  d.ObjectID,
			Name:      d.Name,
			Timestamp: optMillis(d.Timestamp),
			Deleted:   flag(d.Deleted),
		},
		Geometry: d.Location,
	}
}

func decodeDevice(f feature[deviceAttributes, geo.Point]) Device {
	return Device{
		ObjectID:  f.Attributes.ObjectID,
		Name:      f.Attributes.Name,
		Location:  f.Geometry,
		Timestamp: fromOptMillis(f.Attributes.Timestamp),
		Deleted:   f.Attributes.Deleted != 0,
	}
}

func encodeStop(s Stop) (feature[stopAttributes, geo.Point], error) {
	address, err := encodeNameValues(s.Address)
	if err != nil {
		return feature[stopAttributes, geo.Point]{}, err
	}
	capacities, err := encodeNameValues(s.Capacities)
	if err != nil {
		return feature[stopAttributes, geo.Point]{}, err
	}
	custom, err := encodeNameValues(s.CustomProperties)
	if err != nil {
		return feature[stopAttributes, geo.Point]{}, err
	}
	return feature[stopAttributes, geo.Point]{
		Attributes: stopAttributes{
			ObjectID:              s.ObjectID,
			StopID:                s.ID,
			Version:               s.Version,
			DeviceID:              s.DeviceID,
			PlannedDate:           millis(s.PlannedDate),
			SequenceNumber:        s.SequenceNumber,
			Name:                  s.Name,
			TimeWindowStart1:      optMillis(s.TimeWindowStart1),
			TimeWindowEnd1:        optMillis(s.TimeWindowEnd1),
			TimeWindowStart2:      optMillis(s.TimeWindowStart2),
			TimeWindowEnd2:        optMillis(s.TimeWindowEnd2),
			ServiceTime:           minutes(s.ServiceTime),
			MaxViolationTime:      minutes(s.MaxViolationTime),
			ArrivalTime:           optMillis(s.ArrivalTime),
			Deleted:               flag(s.Deleted),
			StopType:              int(s.Type),
			Address:               address,
			Capacities:            capacities,
			CustomOrderProperties: custom,
		},
		Geometry: s.Location,
	}, nil
}

func decodeStop(f feature[stopAttributes, geo.Point]) (Stop, error) {
	a := f.Attributes
	s := Stop{
		ObjectID:         a.ObjectID,
		ID:               a.StopID,
		Version:          a.Version,
		DeviceID:         a.DeviceID,
		PlannedDate:      fromMillis(a.PlannedDate),
		SequenceNumber:   a.SequenceNumber,
		Name:             a.Name,
		Location:         f.Geometry,
		TimeWindowStart1: fromOptMillis(a.TimeWindowStart1),
		TimeWindowEnd1:   fromOptMillis(a.TimeWindowEnd1),
		TimeWindowStart2: fromOptMillis(a.TimeWindowStart2),
		TimeWindowEnd2:   fromOptMillis(a.TimeWindowEnd2),
		ServiceTime:      fromMinutes(a.ServiceTime),
		MaxViolationTime: fromMinutes(a.MaxViolationTime),
		ArrivalTime:      fromOptMillis(a.ArrivalTime),
		Deleted:          a.Deleted != 0,
		Type:             StopType(a.StopType),
	}
	var err error
	if s.Address, err = decodeNameValues(a.Address); err != nil {
		return Stop{}, err
	}
	if s.Capacities, err = decodeNameValues(a.Capacities); err != nil {
		return Stop{}, err
	}
	if s.CustomProperties, err = decodeNameValues(a.CustomOrderProperties); err != nil {
		return Stop{}, err
	}
	return s, nil
}

func encodeRoute(r Route) feature[routeAttributes, geo.Point] {
	return feature[routeAttributes, geo.Point]{Attributes: routeAttributes{
		ObjectID:    r.ObjectID,
		DeviceID:    r.DeviceID,
		PlannedDate: millis(r.PlannedDate),
		Name:        r.Name,
		Deleted:     flag(r.Deleted),
	}}
}

func decodeRoute(f feature[routeAttributes, geo.Point]) Route {
	return Route{
		ObjectID:    f.Attributes.ObjectID,
		DeviceID:    f.Attributes.DeviceID,
		PlannedDate: fromMillis(f.Attributes.PlannedDate),
		Name:        f.Attributes.Name,
		Deleted:     f.Attributes.Deleted != 0,
	}
}

func decodeEvent(f feature[eventAttributes, geo.Point]) Event {
	return Event{
		ObjectID:  f.Attributes.ObjectID,
		DeviceID:  f.Attributes.DeviceID,
		Type:      f.Attributes.Type,
		Timestamp: fromMillis(f.Attributes.Timestamp),
		Location:  f.Geometry,
		StopID:    f.Attributes.StopID,
		Message:   f.Attributes.Message,
	}
}

func encodeNameValues(values []NameValue) (string, error) {
	if len(values) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeNameValues(raw string) ([]NameValue, error) {
	if raw == "" {
		return nil, nil
	}
	var out []NameValue
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}
