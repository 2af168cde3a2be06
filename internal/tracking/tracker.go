package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"backend-routetracking/internal/config"
	"backend-routetracking/internal/featureservice"
	"backend-routetracking/internal/project"
)

// Tracker deploys planned routes to the tracking server.
type Tracker struct {
	settings config.TrackingSettings
	service  Service
	sync     *SyncService
	solver   Solver
	geocoder Geocoder
	reporter MessageReporter
	project  Project
}

func NewTracker(settings config.TrackingSettings, service Service, sync *SyncService, solver Solver, geocoder Geocoder, reporter MessageReporter) *Tracker {
	return &Tracker{
		settings: settings,
		service:  service,
		sync:     sync,
		solver:   solver,
		geocoder: geocoder,
		reporter: reporter,
	}
}

func (t *Tracker) SetProject(p Project)      { t.project = p }
func (t *Tracker) Project() Project          { return t.project }
func (t *Tracker) SyncService() *SyncService { return t.sync }

// trackingDevice is a local device paired with its server object id for
// one deploy.
type trackingDevice struct {
	device     *project.MobileDevice
	serverID   int64
	trackingID string
}

// Deploy sends the stops of routes planned on deploymentDate, along with
// route definitions, route settings and barriers. It reports whether any
// stop was transmitted; an unchanged schedule sends nothing. A failed
// project save still reports sent stops alongside the error.
func (t *Tracker) Deploy(ctx context.Context, routes []*project.Route, deploymentDate time.Time) (bool, error) {
	if t.project == nil {
		return false, fmt.Errorf("%w: tracker has no project", ErrInvalidOperation)
	}

	devices := t.devicesOf(routes)
	if len(devices) == 0 {
		return false, fmt.Errorf("%w: no route has a tracked mobile device", ErrTracking)
	}
	if err := t.provision(ctx, devices); err != nil {
		t.reportFailure(err)
		return false, err
	}

	sent, err := t.deployRoutes(ctx, routes, devices, project.DateOnly(deploymentDate))
	if err != nil {
		t.reportFailure(err)
		return false, err
	}
	if err := t.project.Save(ctx); err != nil {
		err = fmt.Errorf("save project: %w", err)
		if sent {
			t.reporter.ReportError(fmt.Sprintf("Routes were sent, but the mobile devices were not saved: %v", err))
		} else {
			t.reportFailure(err)
		}
		return sent, err
	}
	if sent {
		t.reporter.ReportInfo(fmt.Sprintf("Routes for %s were sent to %d mobile devices.",
			deploymentDate.Format(time.DateOnly), len(devices)))
	}
	return sent, nil
}

// CheckRoutesNotSent reports whether none of the routes' devices has a
// route on the tracking server for deploymentDate. It never creates devices.
func (t *Tracker) CheckRoutesNotSent(ctx context.Context, routes []*project.Route, deploymentDate time.Time) (bool, error) {
	ids, err := t.knownServerIDs(ctx, routes)
	if err != nil {
		return false, err
	}
	if len(ids) == 0 {
		return true, nil
	}
	existing, err := t.service.GetNotDeletedRoutesIDs(ctx, ids, project.DateOnly(deploymentDate))
	if err != nil {
		return false, err
	}
	return len(existing) == 0, nil
}

// DeployDevices registers tracked devices on the tracking server.
func (t *Tracker) DeployDevices(ctx context.Context, devices []*project.MobileDevice) error {
	var tracked []*trackingDevice
	for _, d := range devices {
		if d.Tracked() {
			tracked = append(tracked, &trackingDevice{device: d, trackingID: d.TrackingID})
		}
	}
	if len(tracked) == 0 {
		return nil
	}
	return t.provision(ctx, tracked)
}

// DeviceEvents returns the events reported since the given time by the
// devices of routes.
func (t *Tracker) DeviceEvents(ctx context.Context, routes []*project.Route, since time.Time) ([]featureservice.Event, error) {
	ids, err := t.knownServerIDs(ctx, routes)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return t.service.GetEvents(ctx, ids, since)
}

func (t *Tracker) devicesOf(routes []*project.Route) []*trackingDevice {
	seen := map[*project.MobileDevice]struct{}{}
	var out []*trackingDevice
	for _, r := range routes {
		d := DeviceByRoute(r)
		if !d.Tracked() {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, &trackingDevice{device: d, trackingID: d.TrackingID})
	}
	return out
}

func (t *Tracker) knownServerIDs(ctx context.Context, routes []*project.Route) ([]int64, error) {
	devices := t.devicesOf(routes)
	if len(devices) == 0 {
		return nil, nil
	}
	remote, err := t.service.GetAllMobileDevices(ctx)
	if err != nil {
		return nil, err
	}
	byName := serverIDsByName(remote)

	var ids []int64
	for _, d := range devices {
		if id, ok := byName[d.trackingID]; ok {
			ids = append(ids, id)
		}
	}
	return uniqueServerIDs(ids), nil
}

// provision resolves the server object id of every device, creating the
// server devices that do not exist yet in one batch.
func (t *Tracker) provision(ctx context.Context, devices []*trackingDevice) error {
	remote, err := t.service.GetAllMobileDevices(ctx)
	if err != nil {
		return err
	}
	byName := serverIDsByName(remote)

	pending := map[string][]*trackingDevice{}
	var order []string
	for _, d := range devices {
		if id, ok := byName[d.trackingID]; ok {
			d.serverID = id
			continue
		}
		if _, queued := pending[d.trackingID]; !queued {
			order = append(order, d.trackingID)
		}
		pending[d.trackingID] = append(pending[d.trackingID], d)
	}
	if len(order) == 0 {
		return nil
	}

	batch := make([]featureservice.Device, 0, len(order))
	for _, id := range order {
		batch = append(batch, featureservice.Device{Name: id})
	}
	created, err := t.service.AddMobileDevices(ctx, batch)
	if err != nil {
		return err
	}
	if len(created) != len(batch) {
		return fmt.Errorf("%w: server created %d of %d mobile devices", ErrTracking, len(created), len(batch))
	}
	for i, id := range order {
		for _, d := range pending[id] {
			d.serverID = created[i]
		}
	}
	slog.Info("mobile devices provisioned", "count", len(created))
	return nil
}

func (t *Tracker) reportFailure(err error) {
	t.reporter.ReportError(fmt.Sprintf("Routes were not sent: %v", err))
}

// serverIDsByName maps tracking ids to the lowest object id carrying them.
func serverIDsByName(devices []featureservice.Device) map[string]int64 {
	out := make(map[string]int64, len(devices))
	for _, d := range devices {
		if d.Name == "" {
			continue
		}
		if id, ok := out[d.Name]; !ok || d.ObjectID < id {
			out[d.Name] = d.ObjectID
		}
	}
	return out
}

func uniqueServerIDs(ids []int64) []int64 {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := ids[:0]
	for _, id := range ids {
		if len(out) > 0 && out[len(out)-1] == id {
			continue
		}
		out = append(out, id)
	}
	return out
}
