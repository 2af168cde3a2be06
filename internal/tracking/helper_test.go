package tracking

import (
	"testing"
	"time"

	"backend-routetracking/internal/featureservice"
	"backend-routetracking/internal/project"
	"backend-routetracking/internal/shared/geo"
)

func TestDeviceByRoute(t *testing.T) {
	driverDevice := tracked("d", "T1")
	vehicleDevice := tracked("v", "T2")

	cases := []struct {
		name  string
		route *project.Route
		want  *project.MobileDevice
	}{
		{"nil route", nil, nil},
		{"no driver", &project.Route{Vehicle: &project.Vehicle{MobileDevice: vehicleDevice}}, nil},
		{"driver device wins", &project.Route{
			Driver:  &project.Driver{MobileDevice: driverDevice},
			Vehicle: &project.Vehicle{MobileDevice: vehicleDevice},
		}, driverDevice},
		{"vehicle fallback", &project.Route{
			Driver:  &project.Driver{},
			Vehicle: &project.Vehicle{MobileDevice: vehicleDevice},
		}, vehicleDevice},
		{"driver without device and no vehicle", &project.Route{Driver: &project.Driver{}}, nil},
	}
	for _, tc := range cases {
		if got := DeviceByRoute(tc.route); got != tc.want {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func stopAt(p *geo.Point, typ featureservice.StopType) featureservice.Stop {
	return featureservice.Stop{Location: p, Type: typ, ServiceTime: 10 * time.Minute}
}

func TestApplyArrivalDelayToStops(t *testing.T) {
	a, b, c := &geo.Point{X: 1, Y: 1}, &geo.Point{X: 2, Y: 2}, &geo.Point{X: 3, Y: 3}
	stops := []featureservice.Stop{
		stopAt(a, featureservice.StopTypeStartLocation),
		stopAt(b, featureservice.StopTypeOrder),
		stopAt(&geo.Point{X: 2, Y: 2}, featureservice.StopTypeOrder),
		stopAt(c, featureservice.StopTypeFinishLocation),
	}

	ApplyArrivalDelayToStops(5*time.Minute, stops)

	want := []time.Duration{15 * time.Minute, 10 * time.Minute, 15 * time.Minute, 10 * time.Minute}
	for i, s := range stops {
		if s.ServiceTime != want[i] {
			t.Fatalf("stop %d: service time %v want %v", i, s.ServiceTime, want[i])
		}
	}
}

func TestApplyArrivalDelaySkipsBreaks(t *testing.T) {
	a, b := &geo.Point{X: 1, Y: 1}, &geo.Point{X: 2, Y: 2}
	stops := []featureservice.Stop{
		stopAt(a, featureservice.StopTypeOrder),
		stopAt(nil, featureservice.StopTypeBreak),
		stopAt(b, featureservice.StopTypeOrder),
		stopAt(b, featureservice.StopTypeFinishLocation),
	}

	ApplyArrivalDelayToStops(5*time.Minute, stops)

	if stops[1].ServiceTime != 10*time.Minute {
		t.Fatalf("break was delayed")
	}
	if stops[2].ServiceTime != 10*time.Minute {
		t.Fatalf("stop at the finish point was delayed")
	}
	if stops[0].ServiceTime != 15*time.Minute {
		t.Fatalf("first stop not delayed: %v", stops[0].ServiceTime)
	}
	if stops[3].ServiceTime != 10*time.Minute {
		t.Fatalf("last stop was delayed")
	}
}

func TestApplyArrivalDelayMissingLocations(t *testing.T) {
	stops := []featureservice.Stop{
		stopAt(nil, featureservice.StopTypeOrder),
		stopAt(nil, featureservice.StopTypeOrder),
		stopAt(nil, featureservice.StopTypeOrder),
	}

	ApplyArrivalDelayToStops(time.Minute, stops)

	if stops[0].ServiceTime != 11*time.Minute || stops[1].ServiceTime != 11*time.Minute {
		t.Fatalf("stops without location should each be delayed: %v %v", stops[0].ServiceTime, stops[1].ServiceTime)
	}
	if stops[2].ServiceTime != 10*time.Minute {
		t.Fatalf("last stop was delayed")
	}
}

func TestApplyArrivalDelayShortSequence(t *testing.T) {
	stops := []featureservice.Stop{stopAt(&geo.Point{}, featureservice.StopTypeOrder)}
	ApplyArrivalDelayToStops(time.Minute, stops)
	if stops[0].ServiceTime != 10*time.Minute {
		t.Fatalf("single stop was delayed")
	}
	ApplyArrivalDelayToStops(time.Minute, nil)
}

func TestReportersFanOut(t *testing.T) {
	first, second := &fakeReporter{}, &fakeReporter{}
	reporters := Reporters{first, second}

	reporters.ReportInfo("deployed")
	reporters.ReportError("failed")

	for i, r := range []*fakeReporter{first, second} {
		if len(r.infos) != 1 || r.infos[0] != "deployed" || len(r.errors) != 1 || r.errors[0] != "failed" {
			t.Fatalf("reporter %d got infos=%v errors=%v", i, r.infos, r.errors)
		}
	}
}
