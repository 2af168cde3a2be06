package tracking

import (
	"time"

	"backend-routetracking/internal/featureservice"
	"backend-routetracking/internal/project"
	"backend-routetracking/internal/shared/geo"
)

// DeviceByRoute returns the mobile device of the route's driver, falling
// back to the vehicle's device. A route without a driver has no device.
func DeviceByRoute(route *project.Route) *project.MobileDevice {
	if route == nil || route.Driver == nil {
		return nil
	}
	if route.Driver.MobileDevice != nil {
		return route.Driver.MobileDevice
	}
	if route.Vehicle == nil {
		return nil
	}
	return route.Vehicle.MobileDevice
}

// ApplyArrivalDelayToStops adds delay to the service time of each stop the
// driver has to arrive at. Stops are in visiting order. The last stop,
// breaks, and stops at the same point as the next visited stop are left
// alone. Stops without a location never share a point.
//
// Calling it twice on the same stops adds the delay twice.
func ApplyArrivalDelayToStops(delay time.Duration, stops []featureservice.Stop) {
	if len(stops) < 2 || delay == 0 {
		return
	}
	prev := stops[len(stops)-1].Location
	for i := len(stops) - 2; i >= 0; i-- {
		if stops[i].Type == featureservice.StopTypeBreak {
			continue
		}
		if geo.SamePoint(stops[i].Location, prev) {
			continue
		}
		stops[i].ServiceTime += delay
		prev = stops[i].Location
	}
}
