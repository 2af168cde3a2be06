package solver

import (
	"time"

	"backend-routetracking/internal/config"
)

type UsageType string

const (
	UsageImpedance   UsageType = "Impedance"
	UsageRestriction UsageType = "Restriction"
	UsageCost        UsageType = "Cost"
)

type Parameter struct {
	Name         string
	RoutingName  string
	DefaultValue string
}

type Attribute struct {
	Name        string
	RoutingName string
	UsageType   UsageType
	Parameters  []Parameter
}

// NetworkDescription is the attribute catalog of the routing network.
type NetworkDescription struct {
	Attributes         []Attribute
	ImpedanceAttribute string
}

func (n NetworkDescription) Restrictions() []Attribute {
	var out []Attribute
	for _, a := range n.Attributes {
		if a.UsageType == UsageRestriction {
			out = append(out, a)
		}
	}
	return out
}

type Restriction struct {
	Name     string
	Enabled  bool
	Editable bool
}

type Settings struct {
	Restrictions      []Restriction
	UTurnPolicy       string
	ArriveDepartDelay time.Duration
	// parameter values keyed by attribute name, then parameter name
	values map[string]map[string]string
}

func (s Settings) Restriction(name string) (Restriction, bool) {
	for _, r := range s.Restrictions {
		if r.Name == name {
			return r, true
		}
	}
	return Restriction{}, false
}

// ParameterValue returns the configured value, or ok=false when the
// network default applies.
func (s Settings) ParameterValue(attribute, parameter string) (string, bool) {
	v, ok := s.values[attribute][parameter]
	return v, ok
}

func (s *Settings) SetParameterValue(attribute, parameter, value string) {
	if s.values == nil {
		s.values = map[string]map[string]string{}
	}
	if s.values[attribute] == nil {
		s.values[attribute] = map[string]string{}
	}
	s.values[attribute][parameter] = value
}

type Solver struct {
	settings Settings
	network  NetworkDescription
}

func New(settings Settings, network NetworkDescription) *Solver {
	return &Solver{settings: settings, network: network}
}

// FromConfig builds a solver whose settings and network come from configuration.
func FromConfig(cfg config.SolverConfig) *Solver {
	settings := Settings{
		UTurnPolicy:       cfg.UTurnPolicy,
		ArriveDepartDelay: time.Duration(cfg.ArriveDepartDelay) * time.Minute,
	}
	for _, r := range cfg.Restrictions {
		settings.Restrictions = append(settings.Restrictions, Restriction{Name: r.Name, Enabled: r.Enabled, Editable: r.Editable})
	}

	network := NetworkDescription{ImpedanceAttribute: cfg.ImpedanceAttribute}
	for _, a := range cfg.Attributes {
		attr := Attribute{Name: a.Name, RoutingName: a.RoutingName, UsageType: UsageType(a.UsageType)}
		if attr.RoutingName == "" {
			attr.RoutingName = a.Name
		}
		for _, p := range a.Parameters {
			attr.Parameters = append(attr.Parameters, Parameter{Name: p.Name, RoutingName: p.RoutingName, DefaultValue: p.DefaultValue})
			if p.Value != "" {
				settings.SetParameterValue(a.Name, p.Name, p.Value)
			}
		}
		network.Attributes = append(network.Attributes, attr)
	}
	return New(settings, network)
}

func (s *Solver) SolverSettings() Settings               { return s.settings }
func (s *Solver) NetworkDescription() NetworkDescription { return s.network }
