package tracking

import (
	"context"
	"errors"
	"time"

	"backend-routetracking/internal/config"
	"backend-routetracking/internal/featureservice"
	"backend-routetracking/internal/geocode"
	"backend-routetracking/internal/project"
	"backend-routetracking/internal/shared/geo"
	"backend-routetracking/internal/solver"
)

var errRemote = errors.New("remote down")

// fakeService is an in-memory tracking server.
type fakeService struct {
	nextID   int64
	devices  []featureservice.Device
	stops    []featureservice.Stop
	routes   []featureservice.Route
	settings map[time.Time]string
	barriers map[time.Time]featureservice.Barriers
	events   []featureservice.Event

	// dropAdds makes AddMobileDevices create this many fewer devices.
	dropAdds   int
	devicesErr error

	addedDevices   [][]featureservice.Device
	updatedDevices [][]featureservice.Device
	deletedDevices [][]featureservice.Device
	stopBatches    []stopBatch
	routeUpdates   int
}

type stopBatch struct {
	added, updated []featureservice.Stop
}

func newFakeService() *fakeService {
	return &fakeService{
		nextID:   100,
		settings: map[time.Time]string{},
		barriers: map[time.Time]featureservice.Barriers{},
	}
}

func (f *fakeService) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeService) addDevice(name string) int64 {
	id := f.id()
	f.devices = append(f.devices, featureservice.Device{ObjectID: id, Name: name})
	return id
}

func (f *fakeService) GetAllMobileDevices(ctx context.Context) ([]featureservice.Device, error) {
	if f.devicesErr != nil {
		return nil, f.devicesErr
	}
	var out []featureservice.Device
	for _, d := range f.devices {
		if !d.Deleted {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeService) AddMobileDevices(ctx context.Context, devices []featureservice.Device) ([]int64, error) {
	f.addedDevices = append(f.addedDevices, devices)
	var ids []int64
	for _, d := range devices[:max(0, len(devices)-f.dropAdds)] {
		ids = append(ids, f.addDevice(d.Name))
	}
	return ids, nil
}

func (f *fakeService) UpdateMobileDevices(ctx context.Context, devices []featureservice.Device) error {
	f.updatedDevices = append(f.updatedDevices, devices)
	for _, u := range devices {
		for i := range f.devices {
			if f.devices[i].ObjectID == u.ObjectID {
				f.devices[i] = u
			}
		}
	}
	return nil
}

func (f *fakeService) DeleteMobileDevices(ctx context.Context, devices []featureservice.Device) error {
	f.deletedDevices = append(f.deletedDevices, devices)
	for _, d := range devices {
		for i := range f.devices {
			if f.devices[i].ObjectID == d.ObjectID {
				f.devices[i].Deleted = true
			}
		}
	}
	return nil
}

func (f *fakeService) GetNotDeletedStops(ctx context.Context, deviceIDs []int64, plannedDate time.Time) ([]featureservice.Stop, error) {
	var out []featureservice.Stop
	for _, s := range f.stops {
		if !s.Deleted && s.PlannedDate.Equal(plannedDate) && contains(deviceIDs, s.DeviceID) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeService) UpdateStops(ctx context.Context, added, updated []featureservice.Stop) error {
	f.stopBatches = append(f.stopBatches, stopBatch{added: added, updated: updated})
	for _, s := range added {
		s.ObjectID = f.id()
		f.stops = append(f.stops, s)
	}
	for _, u := range updated {
		for i := range f.stops {
			if f.stops[i].ObjectID == u.ObjectID {
				f.stops[i] = u
			}
		}
	}
	return nil
}

func (f *fakeService) DeleteStops(ctx context.Context, deviceIDs []int64, plannedDate time.Time) error {
	for i := range f.stops {
		if f.stops[i].PlannedDate.Equal(plannedDate) && contains(deviceIDs, f.stops[i].DeviceID) {
			f.stops[i].Deleted = true
		}
	}
	return nil
}

func (f *fakeService) GetNotDeletedRoutes(ctx context.Context, deviceIDs []int64, plannedDate time.Time) ([]featureservice.Route, error) {
	var out []featureservice.Route
	for _, r := range f.routes {
		if !r.Deleted && r.PlannedDate.Equal(plannedDate) && contains(deviceIDs, r.DeviceID) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeService) GetNotDeletedRoutesIDs(ctx context.Context, deviceIDs []int64, plannedDate time.Time) ([]int64, error) {
	routes, _ := f.GetNotDeletedRoutes(ctx, deviceIDs, plannedDate)
	var ids []int64
	for _, r := range routes {
		ids = append(ids, r.ObjectID)
	}
	return ids, nil
}

func (f *fakeService) UpdateRoutes(ctx context.Context, added []featureservice.Route, deletedIDs []int64) error {
	f.routeUpdates++
	for i := range f.routes {
		if contains(deletedIDs, f.routes[i].ObjectID) {
			f.routes[i].Deleted = true
		}
	}
	for _, r := range added {
		r.ObjectID = f.id()
		f.routes = append(f.routes, r)
	}
	return nil
}

func (f *fakeService) UpdateRouteSettings(ctx context.Context, plannedDate time.Time, settings string) error {
	f.settings[plannedDate] = settings
	return nil
}

func (f *fakeService) UpdateBarriers(ctx context.Context, plannedDate time.Time, barriers featureservice.Barriers) error {
	f.barriers[plannedDate] = barriers
	return nil
}

func (f *fakeService) GetEvents(ctx context.Context, deviceIDs []int64, since time.Time) ([]featureservice.Event, error) {
	var out []featureservice.Event
	for _, e := range f.events {
		if contains(deviceIDs, e.DeviceID) && !e.Timestamp.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeService) lastBatch() stopBatch {
	if len(f.stopBatches) == 0 {
		return stopBatch{}
	}
	return f.stopBatches[len(f.stopBatches)-1]
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

type fakeReporter struct {
	infos  []string
	errors []string
}

func (r *fakeReporter) ReportInfo(text string)  { r.infos = append(r.infos, text) }
func (r *fakeReporter) ReportError(text string) { r.errors = append(r.errors, text) }

type countingSaver struct {
	saves   int
	added   []*project.MobileDevice
	removed []*project.MobileDevice
}

func (s *countingSaver) SaveDevices(ctx context.Context, added, removed []*project.MobileDevice) error {
	s.saves++
	s.added = append(s.added, added...)
	s.removed = append(s.removed, removed...)
	return nil
}

type savingProject struct {
	*project.Project
	saves int
	err   error
}

func (p *savingProject) Save(ctx context.Context) error {
	p.saves++
	if p.err != nil {
		return p.err
	}
	return p.Project.Save(ctx)
}

var deployDay = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

func testSolver(delay time.Duration) *solver.Solver {
	settings := solver.Settings{
		UTurnPolicy:       "AllowDeadEndsOnly",
		ArriveDepartDelay: delay,
		Restrictions:      []solver.Restriction{{Name: "Oneway", Enabled: true}},
	}
	settings.SetParameterValue("TravelTime", "Vehicle Speed", "45")
	network := solver.NetworkDescription{
		ImpedanceAttribute: "Time",
		Attributes: []solver.Attribute{
			{Name: "Oneway", RoutingName: "Oneway", UsageType: solver.UsageRestriction},
			{Name: "Avoid Highways", RoutingName: "AvoidHighways", UsageType: solver.UsageRestriction},
			{Name: "TravelTime", RoutingName: "Time", UsageType: solver.UsageImpedance, Parameters: []solver.Parameter{
				{Name: "Vehicle Speed", RoutingName: "Speed", DefaultValue: "30"},
				{Name: "Traffic", RoutingName: "Traffic", DefaultValue: "Off"},
			}},
		},
	}
	return solver.New(settings, network)
}

func testGeocoder() *geocode.Schema {
	return geocode.NewSchema([]config.AddressField{{Type: "Address", Title: "Street"}, {Type: "City"}})
}

func testSettings() config.TrackingSettings {
	return config.TrackingSettings{
		Service:         &config.TrackingServiceInfo{RESTURL: "http://tracking.local/rest", ServerName: "wm"},
		BreakTolerance:  15,
		DirectionsUnits: "Miles",
	}
}

func newTestTracker(svc *fakeService, delay time.Duration) (*Tracker, *fakeReporter) {
	reporter := &fakeReporter{}
	return NewTracker(testSettings(), svc, NewSyncService(svc), testSolver(delay), testGeocoder(), reporter), reporter
}

func tracked(id, trackingID string) *project.MobileDevice {
	return &project.MobileDevice{ID: id, Name: id, TrackingID: trackingID, SyncType: project.SyncTypeWMServer}
}

func depot(name string, x, y float64) *project.Location {
	return &project.Location{ID: name, Name: name, Point: &geo.Point{X: x, Y: y}, TimeWindow: project.TimeWindow{WideOpen: true}}
}

func order(id string, x, y float64) *project.Order {
	return &project.Order{
		ID:          id,
		Name:        "Order " + id,
		Point:       &geo.Point{X: x, Y: y},
		Address:     map[string]string{"Address": "1 Main St", "City": "Redlands"},
		TimeWindow:  project.TimeWindow{From: 8 * time.Hour, To: 12 * time.Hour},
		TimeWindow2: project.TimeWindow{WideOpen: true},
		ServiceTime: 10 * time.Minute,
		Capacities:  []float64{2.5},
	}
}

// routeOf builds a route for device with stops numbered in order.
func routeOf(name string, device *project.MobileDevice, stops ...*project.Stop) *project.Route {
	for i, s := range stops {
		s.SequenceNumber = i + 1
	}
	return &project.Route{ID: name, Name: name, Driver: &project.Driver{ID: "drv-" + name, MobileDevice: device}, Stops: stops}
}

func locationStop(id string, l *project.Location) *project.Stop {
	return &project.Stop{ID: id, Type: project.StopTypeLocation, Location: l}
}

func orderStop(o *project.Order) *project.Stop {
	return &project.Stop{ID: "stop-" + o.ID, Type: project.StopTypeOrder, Order: o, TimeAtStop: o.ServiceTime}
}
