package project

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"backend-routetracking/internal/db"
	"backend-routetracking/internal/shared/geo"
)

type Store struct {
	db                  db.Querier
	capacityNames       []string
	customPropertyNames []string
}

func NewStore(db db.Querier, capacityNames, customPropertyNames []string) *Store {
	return &Store{db: db, capacityNames: capacityNames, customPropertyNames: customPropertyNames}
}

// LoadDevices returns a project holding only the device roster.
func (s *Store) LoadDevices(ctx context.Context) (*Project, error) {
	devices, _, err := s.devices(ctx)
	if err != nil {
		return nil, err
	}
	p := New(s, time.Now(), devices)
	s.describe(p)
	return p, nil
}

// Load reads the schedule planned for date together with the device roster.
func (s *Store) Load(ctx context.Context, date time.Time) (*Project, error) {
	day := DateOnly(date)

	devices, devicesByID, err := s.devices(ctx)
	if err != nil {
		return nil, err
	}
	drivers, err := s.drivers(ctx, devicesByID)
	if err != nil {
		return nil, err
	}
	vehicles, err := s.vehicles(ctx, devicesByID)
	if err != nil {
		return nil, err
	}
	locations, err := s.locations(ctx)
	if err != nil {
		return nil, err
	}
	orders, err := s.orders(ctx, day)
	if err != nil {
		return nil, err
	}
	routes, err := s.routes(ctx, day, drivers, vehicles)
	if err != nil {
		return nil, err
	}
	if err := s.stops(ctx, day, routes, orders, locations); err != nil {
		return nil, err
	}
	barriers, err := s.barriers(ctx, day)
	if err != nil {
		return nil, err
	}

	p := New(s, day, devices)
	p.Barriers = barriers
	p.Routes = routes.list
	s.describe(p)
	return p, nil
}

func (s *Store) SaveDevices(ctx context.Context, added, removed []*MobileDevice) error {
	for _, d := range added {
		_, err := s.db.Exec(ctx, `
			INSERT INTO mobile_devices (id, name, tracking_id, sync_type)
			VALUES ($1,$2,$3,$4)
			ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, tracking_id=EXCLUDED.tracking_id, sync_type=EXCLUDED.sync_type
		`, d.ID, d.Name, d.TrackingID, int(d.SyncType))
		if err != nil {
			return fmt.Errorf("save device %s: %w", d.ID, err)
		}
	}
	for _, d := range removed {
		if _, err := s.db.Exec(ctx, `DELETE FROM mobile_devices WHERE id=$1`, d.ID); err != nil {
			return fmt.Errorf("remove device %s: %w", d.ID, err)
		}
	}
	return nil
}

func (s *Store) describe(p *Project) {
	p.SetCapacityNames(s.capacityNames)
	p.SetCustomPropertyNames(s.customPropertyNames)
}

func (s *Store) devices(ctx context.Context) ([]*MobileDevice, map[string]*MobileDevice, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, tracking_id, sync_type
		FROM mobile_devices
		ORDER BY name
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("query devices: %w", err)
	}
	defer rows.Close()

	var list []*MobileDevice
	byID := map[string]*MobileDevice{}
	for rows.Next() {
		var d MobileDevice
		var syncType int
		if err := rows.Scan(&d.ID, &d.Name, &d.TrackingID, &syncType); err != nil {
			return nil, nil, err
		}
		d.SyncType = SyncType(syncType)
		list = append(list, &d)
		byID[d.ID] = &d
	}
	return list, byID, rows.Err()
}

func (s *Store) drivers(ctx context.Context, devices map[string]*MobileDevice) (map[string]*Driver, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name, mobile_device_id FROM drivers`)
	if err != nil {
		return nil, fmt.Errorf("query drivers: %w", err)
	}
	defer rows.Close()

	out := map[string]*Driver{}
	for rows.Next() {
		var d Driver
		var deviceID *string
		if err := rows.Scan(&d.ID, &d.Name, &deviceID); err != nil {
			return nil, err
		}
		if deviceID != nil {
			d.MobileDevice = devices[*deviceID]
		}
		out[d.ID] = &d
	}
	return out, rows.Err()
}

func (s *Store) vehicles(ctx context.Context, devices map[string]*MobileDevice) (map[string]*Vehicle, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name, mobile_device_id FROM vehicles`)
	if err != nil {
		return nil, fmt.Errorf("query vehicles: %w", err)
	}
	defer rows.Close()

	out := map[string]*Vehicle{}
	for rows.Next() {
		var v Vehicle
		var deviceID *string
		if err := rows.Scan(&v.ID, &v.Name, &deviceID); err != nil {
			return nil, err
		}
		if deviceID != nil {
			v.MobileDevice = devices[*deviceID]
		}
		out[v.ID] = &v
	}
	return out, rows.Err()
}

func (s *Store) locations(ctx context.Context) (map[string]*Location, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, x, y, address, tw_from, tw_to, tw2_from, tw2_to
		FROM locations
	`)
	if err != nil {
		return nil, fmt.Errorf("query locations: %w", err)
	}
	defer rows.Close()

	out := map[string]*Location{}
	for rows.Next() {
		var l Location
		var x, y *float64
		var address []byte
		var twFrom, twTo, tw2From, tw2To *int64
		if err := rows.Scan(&l.ID, &l.Name, &x, &y, &address, &twFrom, &twTo, &tw2From, &tw2To); err != nil {
			return nil, err
		}
		l.Point = point(x, y)
		if l.Address, err = decodeAddress(address); err != nil {
			return nil, fmt.Errorf("location %s address: %w", l.ID, err)
		}
		l.TimeWindow = window(twFrom, twTo)
		l.TimeWindow2 = window(tw2From, tw2To)
		out[l.ID] = &l
	}
	return out, rows.Err()
}

func (s *Store) orders(ctx context.Context, day time.Time) (map[string]*Order, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, x, y, address, tw_from, tw_to, tw2_from, tw2_to,
		       service_time_sec, max_violation_sec, capacities, custom_properties
		FROM orders WHERE planned_date=$1
	`, day)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	out := map[string]*Order{}
	for rows.Next() {
		var o Order
		var x, y *float64
		var address []byte
		var twFrom, twTo, tw2From, tw2To *int64
		var serviceSec, violationSec int64
		if err := rows.Scan(&o.ID, &o.Name, &x, &y, &address, &twFrom, &twTo, &tw2From, &tw2To,
			&serviceSec, &violationSec, &o.Capacities, &o.CustomProperties); err != nil {
			return nil, err
		}
		o.Point = point(x, y)
		if o.Address, err = decodeAddress(address); err != nil {
			return nil, fmt.Errorf("order %s address: %w", o.ID, err)
		}
		o.TimeWindow = window(twFrom, twTo)
		o.TimeWindow2 = window(tw2From, tw2To)
		o.ServiceTime = time.Duration(serviceSec) * time.Second
		o.MaxViolationTime = time.Duration(violationSec) * time.Second
		out[o.ID] = &o
	}
	return out, rows.Err()
}

type routeSet struct {
	list []*Route
	byID map[string]*Route
}

func (s *Store) routes(ctx context.Context, day time.Time, drivers map[string]*Driver, vehicles map[string]*Vehicle) (routeSet, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, driver_id, vehicle_id, break_from, break_to, break_duration_sec
		FROM routes WHERE planned_date=$1
		ORDER BY name
	`, day)
	if err != nil {
		return routeSet{}, fmt.Errorf("query routes: %w", err)
	}
	defer rows.Close()

	set := routeSet{byID: map[string]*Route{}}
	for rows.Next() {
		var r Route
		var driverID, vehicleID *string
		var breakFrom, breakTo, breakDuration *int64
		if err := rows.Scan(&r.ID, &r.Name, &driverID, &vehicleID, &breakFrom, &breakTo, &breakDuration); err != nil {
			return routeSet{}, err
		}
		if driverID != nil {
			r.Driver = drivers[*driverID]
		}
		if vehicleID != nil {
			r.Vehicle = vehicles[*vehicleID]
		}
		if breakDuration != nil {
			r.Break = &Break{
				TimeWindow: window(breakFrom, breakTo),
				Duration:   time.Duration(*breakDuration) * time.Second,
			}
		}
		set.list = append(set.list, &r)
		set.byID[r.ID] = &r
	}
	return set, rows.Err()
}

func (s *Store) stops(ctx context.Context, day time.Time, routes routeSet, orders map[string]*Order, locations map[string]*Location) error {
	rows, err := s.db.Query(ctx, `
		SELECT s.id, s.route_id, s.stop_type, s.sequence_number, s.time_at_stop_sec, s.arrive_time, s.order_id, s.location_id
		FROM stops s JOIN routes r ON r.id = s.route_id
		WHERE r.planned_date=$1
		ORDER BY s.route_id, s.sequence_number
	`, day)
	if err != nil {
		return fmt.Errorf("query stops: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var st Stop
		var routeID string
		var stopType int
		var timeAtStop int64
		var arrive *time.Time
		var orderID, locationID *string
		if err := rows.Scan(&st.ID, &routeID, &stopType, &st.SequenceNumber, &timeAtStop, &arrive, &orderID, &locationID); err != nil {
			return err
		}
		st.Type = StopType(stopType)
		st.TimeAtStop = time.Duration(timeAtStop) * time.Second
		if arrive != nil {
			st.ArriveTime = *arrive
		}
		if orderID != nil {
			st.Order = orders[*orderID]
		}
		if locationID != nil {
			st.Location = locations[*locationID]
		}
		if r, ok := routes.byID[routeID]; ok {
			r.Stops = append(r.Stops, &st)
		}
	}
	return rows.Err()
}

func (s *Store) barriers(ctx context.Context, day time.Time) ([]*Barrier, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, start_date, finish_date, geometry_type, geometry, block_travel, delay_sec, speed_factor
		FROM barriers WHERE start_date <= $1 AND finish_date >= $1
	`, day)
	if err != nil {
		return nil, fmt.Errorf("query barriers: %w", err)
	}
	defer rows.Close()

	var out []*Barrier
	for rows.Next() {
		var b Barrier
		var geometryType int
		var geometry []byte
		var delaySec int64
		if err := rows.Scan(&b.ID, &b.Name, &b.StartDate, &b.FinishDate, &geometryType, &geometry,
			&b.Effect.BlockTravel, &delaySec, &b.Effect.SpeedFactorPercent); err != nil {
			return nil, err
		}
		b.Geometry = BarrierGeometry(geometryType)
		b.Effect.DelayTime = time.Duration(delaySec) * time.Second
		if err := decodeGeometry(&b, geometry); err != nil {
			return nil, fmt.Errorf("barrier %s geometry: %w", b.ID, err)
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}

func decodeGeometry(b *Barrier, raw []byte) error {
	switch b.Geometry {
	case BarrierPoint:
		b.Point = &geo.Point{}
		return json.Unmarshal(raw, b.Point)
	case BarrierPolyline:
		b.Polyline = &geo.Polyline{}
		return json.Unmarshal(raw, b.Polyline)
	case BarrierPolygon:
		b.Polygon = &geo.Polygon{}
		return json.Unmarshal(raw, b.Polygon)
	}
	return fmt.Errorf("unknown geometry type %d", b.Geometry)
}

func decodeAddress(raw []byte) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out map[string]string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func point(x, y *float64) *geo.Point {
	if x == nil || y == nil {
		return nil
	}
	return &geo.Point{X: *x, Y: *y}
}

func window(from, to *int64) TimeWindow {
	if from == nil || to == nil {
		return TimeWindow{WideOpen: true}
	}
	return TimeWindow{From: time.Duration(*from) * time.Second, To: time.Duration(*to) * time.Second}
}
