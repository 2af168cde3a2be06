package tracking

import (
	"context"
	"time"

	"backend-routetracking/internal/featureservice"
	"backend-routetracking/internal/geocode"
	"backend-routetracking/internal/project"
	"backend-routetracking/internal/solver"
)

// Service is the remote tracking server. Stops and routes are partitioned
// by device object id and planned date.
type Service interface {
	GetAllMobileDevices(ctx context.Context) ([]featureservice.Device, error)
	AddMobileDevices(ctx context.Context, devices []featureservice.Device) ([]int64, error)
	UpdateMobileDevices(ctx context.Context, devices []featureservice.Device) error
	DeleteMobileDevices(ctx context.Context, devices []featureservice.Device) error

	GetNotDeletedStops(ctx context.Context, deviceIDs []int64, plannedDate time.Time) ([]featureservice.Stop, error)
	UpdateStops(ctx context.Context, added, updated []featureservice.Stop) error
	DeleteStops(ctx context.Context, deviceIDs []int64, plannedDate time.Time) error

	GetNotDeletedRoutes(ctx context.Context, deviceIDs []int64, plannedDate time.Time) ([]featureservice.Route, error)
	GetNotDeletedRoutesIDs(ctx context.Context, deviceIDs []int64, plannedDate time.Time) ([]int64, error)
	UpdateRoutes(ctx context.Context, added []featureservice.Route, deletedIDs []int64) error

	UpdateRouteSettings(ctx context.Context, plannedDate time.Time, settings string) error
	UpdateBarriers(ctx context.Context, plannedDate time.Time, barriers featureservice.Barriers) error

	GetEvents(ctx context.Context, deviceIDs []int64, since time.Time) ([]featureservice.Event, error)
}

type Solver interface {
	SolverSettings() solver.Settings
	NetworkDescription() solver.NetworkDescription
}

type Geocoder interface {
	AddressFields() []geocode.AddressField
}

// Project is the loaded schedule the tracker deploys from.
type Project interface {
	MobileDevices() []*project.MobileDevice
	AddMobileDevice(d *project.MobileDevice)
	RemoveMobileDevice(d *project.MobileDevice)
	BarriersOn(date time.Time) []*project.Barrier
	CapacityNames() []string
	CustomPropertyNames() []string
	Save(ctx context.Context) error
}

// MessageReporter receives user facing status text.
type MessageReporter interface {
	ReportInfo(text string)
	ReportError(text string)
}

// Reporters passes each message to every reporter in order.
type Reporters []MessageReporter

func (rs Reporters) ReportInfo(text string) {
	for _, r := range rs {
		r.ReportInfo(text)
	}
}

func (rs Reporters) ReportError(text string) {
	for _, r := range rs {
		r.ReportError(text)
	}
}
