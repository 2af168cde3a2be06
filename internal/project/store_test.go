package project

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
)

func strPtr(s string) *string        { return &s }
func f64Ptr(f float64) *float64      { return &f }
func i64Ptr(i int64) *int64          { return &i }
func timePtr(t time.Time) *time.Time { return &t }

func TestLoadSchedule(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	arrive := day.Add(9 * time.Hour)

	mock.ExpectQuery(`SELECT id, name, tracking_id, sync_type\s+FROM mobile_devices`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "tracking_id", "sync_type"}).
			AddRow("dev-1", "DEV1", "T1", int(SyncTypeWMServer)))
	mock.ExpectQuery(`SELECT id, name, mobile_device_id FROM drivers`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "mobile_device_id"}).
			AddRow("drv-1", "Ann", strPtr("dev-1")))
	mock.ExpectQuery(`SELECT id, name, mobile_device_id FROM vehicles`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "mobile_device_id"}).
			AddRow("veh-1", "Truck", (*string)(nil)))
	mock.ExpectQuery(`SELECT id, name, x, y, address, tw_from, tw_to, tw2_from, tw2_to\s+FROM locations`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "x", "y", "address", "tw_from", "tw_to", "tw2_from", "tw2_to"}).
			AddRow("loc-1", "Depot", f64Ptr(-117.19), f64Ptr(34.05), []byte(`{"AddressLine":"380 New York St"}`),
				(*int64)(nil), (*int64)(nil), (*int64)(nil), (*int64)(nil)))
	mock.ExpectQuery(`FROM orders WHERE planned_date=\$1`).
		WithArgs(day).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "x", "y", "address", "tw_from", "tw_to", "tw2_from", "tw2_to",
			"service_time_sec", "max_violation_sec", "capacities", "custom_properties"}).
			AddRow("ord-1", "Customer", f64Ptr(-117.2), f64Ptr(34.06), []byte(nil),
				i64Ptr(8*3600), i64Ptr(12*3600), (*int64)(nil), (*int64)(nil),
				int64(600), int64(300), []float64{12.5}, []string{"gate code 12"}))
	mock.ExpectQuery(`FROM routes WHERE planned_date=\$1`).
		WithArgs(day).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "driver_id", "vehicle_id", "break_from", "break_to", "break_duration_sec"}).
			AddRow("route-1", "Route 1", strPtr("drv-1"), strPtr("veh-1"), i64Ptr(11*3600), i64Ptr(13*3600), i64Ptr(1800)))
	mock.ExpectQuery(`FROM stops s JOIN routes r`).
		WithArgs(day).
		WillReturnRows(pgxmock.NewRows([]string{"id", "route_id", "stop_type", "sequence_number", "time_at_stop_sec", "arrive_time", "order_id", "location_id"}).
			AddRow("stop-1", "route-1", int(StopTypeLocation), 1, int64(0), timePtr(arrive), (*string)(nil), strPtr("loc-1")).
			AddRow("stop-2", "route-1", int(StopTypeOrder), 2, int64(600), timePtr(arrive.Add(time.Hour)), strPtr("ord-1"), (*string)(nil)))
	mock.ExpectQuery(`FROM barriers WHERE start_date <= \$1 AND finish_date >= \$1`).
		WithArgs(day).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "start_date", "finish_date", "geometry_type", "geometry", "block_travel", "delay_sec", "speed_factor"}).
			AddRow("bar-1", "Closure", day, day, int(BarrierPoint), []byte(`{"x":-117.1,"y":34.1}`), true, int64(0), 0.0))

	store := NewStore(mock, []string{"Weight"}, []string{"Notes"})
	p, err := store.Load(context.Background(), day.Add(15*time.Hour))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if len(p.MobileDevices()) != 1 || len(p.Routes) != 1 || len(p.Barriers) != 1 {
		t.Fatalf("unexpected project contents")
	}
	route := p.Routes[0]
	if route.Driver == nil || route.Driver.MobileDevice == nil || route.Driver.MobileDevice.TrackingID != "T1" {
		t.Fatalf("expected driver device to be resolved")
	}
	if route.Vehicle == nil || route.Vehicle.MobileDevice != nil {
		t.Fatalf("expected vehicle without device")
	}
	if route.Break == nil || route.Break.Duration != 30*time.Minute {
		t.Fatalf("expected route break")
	}
	if len(route.Stops) != 2 || route.Stops[0].Location == nil || route.Stops[1].Order == nil {
		t.Fatalf("unexpected stops")
	}
	if !route.Stops[0].Location.TimeWindow.WideOpen {
		t.Fatalf("expected wide open location window")
	}
	order := route.Stops[1].Order
	if order.TimeWindow.From != 8*time.Hour || !order.TimeWindow2.WideOpen || order.ServiceTime != 10*time.Minute {
		t.Fatalf("unexpected order windows: %+v", order)
	}
	if p.Barriers[0].Point == nil || !p.Barriers[0].Effect.BlockTravel {
		t.Fatalf("unexpected barrier")
	}
	if len(p.CapacityNames()) != 1 || len(p.CustomPropertyNames()) != 1 {
		t.Fatalf("expected project descriptors")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLoadDevicesQueryError(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`FROM mobile_devices`).WillReturnError(errStore)

	_, err = NewStore(mock, nil, nil).LoadDevices(context.Background())
	if !errors.Is(err, errStore) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}

func TestProjectSavePersistsPendingDevices(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	kept := &MobileDevice{ID: "dev-1", Name: "DEV1", TrackingID: "T1", SyncType: SyncTypeWMServer}
	gone := &MobileDevice{ID: "dev-2", Name: "DEV2", TrackingID: "T2", SyncType: SyncTypeWMServer}
	p := New(NewStore(mock, nil, nil), time.Now(), []*MobileDevice{kept, gone})

	added := &MobileDevice{ID: "dev-3", Name: "T3", TrackingID: "T3", SyncType: SyncTypeWMServer}
	transient := &MobileDevice{ID: "dev-4", Name: "T4", TrackingID: "T4", SyncType: SyncTypeWMServer}
	p.AddMobileDevice(added)
	p.AddMobileDevice(transient)
	p.RemoveMobileDevice(transient)
	p.RemoveMobileDevice(gone)

	mock.ExpectExec(`INSERT INTO mobile_devices`).
		WithArgs("dev-3", "T3", "T3", int(SyncTypeWMServer)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`DELETE FROM mobile_devices`).
		WithArgs("dev-2").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	if err := p.Save(context.Background()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(p.MobileDevices()) != 2 {
		t.Fatalf("expected two devices, got %d", len(p.MobileDevices()))
	}
	// nothing pending, no further statements
	if err := p.Save(context.Background()); err != nil {
		t.Fatalf("second save: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSaveDevicesError(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO mobile_devices`).
		WithArgs("dev-1", "DEV1", "T1", int(SyncTypeWMServer)).
		WillReturnError(errStore)

	err = NewStore(mock, nil, nil).SaveDevices(context.Background(),
		[]*MobileDevice{{ID: "dev-1", Name: "DEV1", TrackingID: "T1", SyncType: SyncTypeWMServer}}, nil)
	if !errors.Is(err, errStore) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestBarriersOn(t *testing.T) {
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	p := New(nil, day, nil)
	p.Barriers = []*Barrier{
		{ID: "a", StartDate: day.AddDate(0, 0, -1), FinishDate: day},
		{ID: "b", StartDate: day.AddDate(0, 0, 1), FinishDate: day.AddDate(0, 0, 2)},
	}
	got := p.BarriersOn(day.Add(17 * time.Hour))
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("unexpected barriers: %+v", got)
	}
}

func TestRoutesByID(t *testing.T) {
	p := New(nil, time.Now(), nil)
	p.Routes = []*Route{{ID: "r1"}, {ID: "r2"}}
	if len(p.RoutesByID(nil)) != 2 {
		t.Fatalf("expected all routes")
	}
	if got := p.RoutesByID([]string{"r2", "missing"}); len(got) != 1 || got[0].ID != "r2" {
		t.Fatalf("unexpected routes: %+v", got)
	}
}

var errStore = errors.New("store error")
