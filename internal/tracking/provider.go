package tracking

import (
	"fmt"
	"reflect"

	"backend-routetracking/internal/config"
	"backend-routetracking/internal/featureservice"
)

// Provider builds trackers bound to the configured tracking server.
type Provider struct {
	settings config.TrackingSettings
	server   config.ServerConfig
}

func NewProvider(settings *config.TrackingSettings, servers []config.ServerConfig) (*Provider, error) {
	if settings == nil {
		return nil, fmt.Errorf("%w: tracking settings", ErrNilArgument)
	}
	if servers == nil {
		return nil, fmt.Errorf("%w: servers", ErrNilArgument)
	}
	if settings.Service == nil {
		return nil, fmt.Errorf("%w: tracking service settings missing", ErrInvalidArgument)
	}
	if settings.Service.RESTURL == "" {
		return nil, fmt.Errorf("%w: tracking service REST url missing", ErrInvalidArgument)
	}
	if settings.Service.ServerName == "" {
		return nil, fmt.Errorf("%w: tracking server name missing", ErrInvalidArgument)
	}

	for _, s := range servers {
		if s.Name == settings.Service.ServerName {
			return &Provider{settings: *settings, server: s}, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrServerNotFound, settings.Service.ServerName)
}

// GetTracker returns a new tracker with its own server connection.
func (p *Provider) GetTracker(solver Solver, geocoder Geocoder, reporter MessageReporter) (*Tracker, error) {
	switch {
	case isNil(solver):
		return nil, fmt.Errorf("%w: solver", ErrNilArgument)
	case isNil(geocoder):
		return nil, fmt.Errorf("%w: geocoder", ErrNilArgument)
	case isNil(reporter):
		return nil, fmt.Errorf("%w: message reporter", ErrNilArgument)
	}

	client := featureservice.NewClient(p.settings.Service.RESTURL, p.server)
	return NewTracker(p.settings, client, NewSyncService(client), solver, geocoder, reporter), nil
}

// isNil also catches interfaces holding a nil pointer, map, slice or func.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
