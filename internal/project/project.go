package project

import (
	"context"
	"time"
)

// DeviceSaver persists changes to the device roster.
type DeviceSaver interface {
	SaveDevices(ctx context.Context, added, removed []*MobileDevice) error
}

// Project is the schedule of one planned date plus the device roster.
// Device additions and removals are kept pending until Save.
type Project struct {
	Date     time.Time
	Routes   []*Route
	Barriers []*Barrier

	capacityNames       []string
	customPropertyNames []string

	devices []*MobileDevice
	added   []*MobileDevice
	removed []*MobileDevice
	saver   DeviceSaver
}

func New(saver DeviceSaver, date time.Time, devices []*MobileDevice) *Project {
	return &Project{
		Date:    DateOnly(date),
		devices: devices,
		saver:   saver,
	}
}

func (p *Project) SetCapacityNames(names []string)       { p.capacityNames = names }
func (p *Project) SetCustomPropertyNames(names []string) { p.customPropertyNames = names }
func (p *Project) CapacityNames() []string               { return p.capacityNames }
func (p *Project) CustomPropertyNames() []string         { return p.customPropertyNames }

func (p *Project) MobileDevices() []*MobileDevice {
	return append([]*MobileDevice(nil), p.devices...)
}

func (p *Project) AddMobileDevice(d *MobileDevice) {
	p.devices = append(p.devices, d)
	p.added = append(p.added, d)
}

func (p *Project) RemoveMobileDevice(d *MobileDevice) {
	for i, existing := range p.devices {
		if existing != d {
			continue
		}
		p.devices = append(p.devices[:i], p.devices[i+1:]...)
		if !dropPending(&p.added, d) {
			p.removed = append(p.removed, d)
		}
		return
	}
}

// BarriersOn returns the barriers active on date.
func (p *Project) BarriersOn(date time.Time) []*Barrier {
	var out []*Barrier
	for _, b := range p.Barriers {
		if b.ValidOn(date) {
			out = append(out, b)
		}
	}
	return out
}

// RoutesByID returns the routes with the given ids, or every route when ids is empty.
func (p *Project) RoutesByID(ids []string) []*Route {
	if len(ids) == 0 {
		return append([]*Route(nil), p.Routes...)
	}
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	var out []*Route
	for _, r := range p.Routes {
		if _, ok := wanted[r.ID]; ok {
			out = append(out, r)
		}
	}
	return out
}

func (p *Project) Save(ctx context.Context) error {
	if p.saver == nil || (len(p.added) == 0 && len(p.removed) == 0) {
		return nil
	}
	if err := p.saver.SaveDevices(ctx, p.added, p.removed); err != nil {
		return err
	}
	p.added, p.removed = nil, nil
	return nil
}

// dropPending removes d from a pending list; a device added and removed
// before Save never reaches the store.
func dropPending(list *[]*MobileDevice, d *MobileDevice) bool {
	for i, existing := range *list {
		if existing == d {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return true
		}
	}
	return false
}
