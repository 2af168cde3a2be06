package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"backend-routetracking/internal/featureservice"
	"backend-routetracking/internal/project"
	"backend-routetracking/internal/shared/geo"
)

const (
	maxStopNameLength = 50
	breakStopName     = "Break"
)

// stopPosition is where a stop sits in its route once sorted.
type stopPosition int

const (
	positionStart stopPosition = iota
	positionMiddle
	positionFinish
)

// devicePlan holds one device's stops on the server and the stops built
// for it in this deploy.
type devicePlan struct {
	serverID int64
	version  int
	existing []featureservice.Stop
	built    []featureservice.Stop
}

func newDevicePlan(serverID int64, existing []featureservice.Stop) *devicePlan {
	p := &devicePlan{serverID: serverID, existing: existing}
	if len(existing) > 0 {
		top := existing[0].Version
		for _, s := range existing[1:] {
			top = max(top, s.Version)
		}
		p.version = top + 1
	}
	return p
}

// changes splits the built stops into new and updated ones. Server stops
// no longer planned for the device are soft-deleted through the update
// batch. A device whose stops are all unchanged yields nothing; otherwise
// every stop sent carries the plan's version.
func (p *devicePlan) changes() (added, updated []featureservice.Stop) {
	index := make(map[string]int, len(p.existing))
	for i, s := range p.existing {
		if _, dup := index[s.ID]; !dup {
			index[s.ID] = i
		}
	}

	matched := make([]bool, len(p.existing))
	changed := false
	for _, s := range p.built {
		i, ok := index[s.ID]
		if !ok || matched[i] {
			added = append(added, s)
			changed = true
			continue
		}
		matched[i] = true
		s.ObjectID = p.existing[i].ObjectID
		if !sameStop(p.existing[i], s) {
			changed = true
		}
		updated = append(updated, s)
	}
	for i, s := range p.existing {
		if matched[i] {
			continue
		}
		s.Deleted = true
		updated = append(updated, s)
		changed = true
	}
	if !changed {
		return nil, nil
	}

	for i := range added {
		added[i].Version = p.version
	}
	for i := range updated {
		updated[i].Version = p.version
	}
	return added, updated
}

func (t *Tracker) deployRoutes(ctx context.Context, routes []*project.Route, devices []*trackingDevice, date time.Time) (bool, error) {
	serverIDs := make(map[*project.MobileDevice]int64, len(devices))
	ids := make([]int64, 0, len(devices))
	for _, d := range devices {
		serverIDs[d.device] = d.serverID
		ids = append(ids, d.serverID)
	}
	ids = uniqueServerIDs(ids)

	existing, err := t.service.GetNotDeletedStops(ctx, ids, date)
	if err != nil {
		return false, err
	}
	existingByDevice := map[int64][]featureservice.Stop{}
	for _, s := range existing {
		existingByDevice[s.DeviceID] = append(existingByDevice[s.DeviceID], s)
	}

	delay := t.solver.SolverSettings().ArriveDepartDelay
	plans := map[int64]*devicePlan{}
	var routeDefs []featureservice.Route
	for _, r := range routes {
		serverID, ok := serverIDs[DeviceByRoute(r)]
		if !ok {
			continue
		}
		plan, ok := plans[serverID]
		if !ok {
			plan = newDevicePlan(serverID, existingByDevice[serverID])
			plans[serverID] = plan
		}
		stops := t.buildStops(r, date, serverID)
		ApplyArrivalDelayToStops(delay, stops)
		plan.built = append(plan.built, stops...)
		routeDefs = append(routeDefs, featureservice.Route{DeviceID: serverID, PlannedDate: date, Name: r.Name})
	}

	planned := make([]int64, 0, len(plans))
	for id := range plans {
		planned = append(planned, id)
	}
	sort.Slice(planned, func(i, j int) bool { return planned[i] < planned[j] })

	var added, updated []featureservice.Stop
	for _, id := range planned {
		a, u := plans[id].changes()
		added = append(added, a...)
		updated = append(updated, u...)
	}
	if len(added) == 0 && len(updated) == 0 {
		slog.Info("routes unchanged, nothing deployed", "date", date.Format(time.DateOnly))
		return false, nil
	}

	settings, err := t.routeSettings()
	if err != nil {
		return false, err
	}
	if err := t.service.UpdateRouteSettings(ctx, date, settings); err != nil {
		return false, err
	}
	oldRoutes, err := t.service.GetNotDeletedRoutesIDs(ctx, planned, date)
	if err != nil {
		return false, err
	}
	if err := t.service.UpdateRoutes(ctx, routeDefs, oldRoutes); err != nil {
		return false, err
	}
	if err := t.service.UpdateBarriers(ctx, date, t.barriersOn(date)); err != nil {
		return false, err
	}
	if err := t.service.UpdateStops(ctx, added, updated); err != nil {
		return false, err
	}

	slog.Info("routes deployed", "date", date.Format(time.DateOnly),
		"devices", len(planned), "new_stops", len(added), "updated_stops", len(updated))
	return true, nil
}

// buildStops converts the route's stops into server stops in visiting order.
func (t *Tracker) buildStops(route *project.Route, date time.Time, deviceID int64) []featureservice.Stop {
	sorted := append([]*project.Stop(nil), route.Stops...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].SequenceNumber < sorted[j].SequenceNumber })

	out := make([]featureservice.Stop, 0, len(sorted))
	for i, s := range sorted {
		pos := positionMiddle
		switch i {
		case 0:
			pos = positionStart
		case len(sorted) - 1:
			pos = positionFinish
		}

		stop := featureservice.Stop{
			ID:             s.ID,
			DeviceID:       deviceID,
			PlannedDate:    date,
			SequenceNumber: s.SequenceNumber,
			ServiceTime:    s.TimeAtStop,
			ArrivalTime:    arrivalTime(s.ArriveTime),
		}
		switch s.Type {
		case project.StopTypeOrder:
			if s.Order == nil {
				continue
			}
			t.fillOrder(&stop, s.Order, date)
		case project.StopTypeLocation:
			if s.Location == nil {
				continue
			}
			fillLocation(&stop, s.Location, date, pos)
			stop.Address = t.address(s.Location.Address)
		case project.StopTypeLunch:
			stop.Type = featureservice.StopTypeBreak
			stop.Name = breakStopName
			if route.Break != nil {
				stop.TimeWindowStart1, stop.TimeWindowEnd1 = windowBounds(date, route.Break.TimeWindow)
				if stop.ServiceTime == 0 {
					stop.ServiceTime = route.Break.Duration
				}
			}
		default:
			continue
		}
		out = append(out, stop)
	}
	return out
}

func (t *Tracker) fillOrder(stop *featureservice.Stop, o *project.Order, date time.Time) {
	stop.Type = featureservice.StopTypeOrder
	stop.Name = stopName(o.Name)
	stop.Location = copyPoint(o.Point)
	stop.TimeWindowStart1, stop.TimeWindowEnd1 = windowBounds(date, o.TimeWindow)
	stop.TimeWindowStart2, stop.TimeWindowEnd2 = windowBounds(date, o.TimeWindow2)
	stop.MaxViolationTime = o.MaxViolationTime
	stop.Address = t.address(o.Address)

	capacityNames := t.project.CapacityNames()
	for i, v := range o.Capacities {
		stop.Capacities = append(stop.Capacities, featureservice.NameValue{
			Name:  nameAt(capacityNames, i, "Capacity"),
			Value: strconv.FormatFloat(v, 'f', -1, 64),
		})
	}
	propertyNames := t.project.CustomPropertyNames()
	for i, v := range o.CustomProperties {
		stop.CustomProperties = append(stop.CustomProperties, featureservice.NameValue{
			Name:  nameAt(propertyNames, i, "Property"),
			Value: v,
		})
	}
}

func fillLocation(stop *featureservice.Stop, l *project.Location, date time.Time, pos stopPosition) {
	switch pos {
	case positionStart:
		stop.Type = featureservice.StopTypeStartLocation
	case positionFinish:
		stop.Type = featureservice.StopTypeFinishLocation
	default:
		stop.Type = featureservice.StopTypeRenewalLocation
	}
	stop.Name = stopName(l.Name)
	stop.Location = copyPoint(l.Point)
	stop.TimeWindowStart1, stop.TimeWindowEnd1 = windowBounds(date, l.TimeWindow)
	stop.TimeWindowStart2, stop.TimeWindowEnd2 = windowBounds(date, l.TimeWindow2)
}

// address lists the non-empty address parts in geocoder field order.
func (t *Tracker) address(parts map[string]string) []featureservice.NameValue {
	if len(parts) == 0 {
		return nil
	}
	var out []featureservice.NameValue
	for _, f := range t.geocoder.AddressFields() {
		if v := parts[f.Type]; v != "" {
			out = append(out, featureservice.NameValue{Name: f.Type, Value: v})
		}
	}
	return out
}

func stopName(name string) string {
	name = strings.TrimSpace(name)
	if r := []rune(name); len(r) > maxStopNameLength {
		name = strings.TrimSpace(string(r[:maxStopNameLength]))
	}
	return name
}

func nameAt(names []string, i int, fallback string) string {
	if i < len(names) && names[i] != "" {
		return names[i]
	}
	return fmt.Sprintf("%s%d", fallback, i+1)
}

// windowBounds turns a window relative to date into absolute bounds. A wide
// open or unset window has none.
func windowBounds(date time.Time, w project.TimeWindow) (*time.Time, *time.Time) {
	if w.WideOpen || (w.From == 0 && w.To == 0) {
		return nil, nil
	}
	from, to := date.Add(w.From), date.Add(w.To)
	return &from, &to
}

func arrivalTime(at time.Time) *time.Time {
	if at.IsZero() {
		return nil
	}
	at = at.Truncate(time.Millisecond)
	return &at
}

func copyPoint(p *geo.Point) *geo.Point {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// sameStop compares everything the server stores except object id and version.
func sameStop(a, b featureservice.Stop) bool {
	return a.ID == b.ID &&
		a.DeviceID == b.DeviceID &&
		a.PlannedDate.Equal(b.PlannedDate) &&
		a.SequenceNumber == b.SequenceNumber &&
		a.Name == b.Name &&
		a.Type == b.Type &&
		a.Deleted == b.Deleted &&
		samePlace(a.Location, b.Location) &&
		sameTime(a.TimeWindowStart1, b.TimeWindowStart1) &&
		sameTime(a.TimeWindowEnd1, b.TimeWindowEnd1) &&
		sameTime(a.TimeWindowStart2, b.TimeWindowStart2) &&
		sameTime(a.TimeWindowEnd2, b.TimeWindowEnd2) &&
		sameTime(a.ArrivalTime, b.ArrivalTime) &&
		a.ServiceTime == b.ServiceTime &&
		a.MaxViolationTime == b.MaxViolationTime &&
		slices.Equal(a.Address, b.Address) &&
		slices.Equal(a.Capacities, b.Capacities) &&
		slices.Equal(a.CustomProperties, b.CustomProperties)
}

func samePlace(a, b *geo.Point) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
