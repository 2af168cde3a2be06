package tracking

import (
	"encoding/json"
	"fmt"
)

type routeSettings struct {
	Restrictions          []restrictionSetting `json:"Restrictions"`
	AttributeParameters   []parameterSetting   `json:"AttributeParameters"`
	UTurnPolicy           string               `json:"UTurnPolicy"`
	ImpedanceAttribute    string               `json:"ImpedanceAttribute"`
	DirectionsLengthUnits string               `json:"DirectionsLengthUnits"`
	BreakTolerance        int                  `json:"BreakTolerance"`
}

type restrictionSetting struct {
	Name    string `json:"Name"`
	Enabled bool   `json:"Enabled"`
}

type parameterSetting struct {
	Attribute string `json:"AttributeName"`
	Parameter string `json:"ParameterName"`
	Value     string `json:"Value"`
}

// routeSettings serializes the solver configuration devices need to
// reroute on their own. Names are the network routing names.
func (t *Tracker) routeSettings() (string, error) {
	settings := t.solver.SolverSettings()
	network := t.solver.NetworkDescription()

	out := routeSettings{
		UTurnPolicy:           settings.UTurnPolicy,
		ImpedanceAttribute:    network.ImpedanceAttribute,
		DirectionsLengthUnits: t.settings.DirectionsUnits,
		BreakTolerance:        t.settings.BreakTolerance,
	}
	for _, a := range network.Attributes {
		for _, p := range a.Parameters {
			value, ok := settings.ParameterValue(a.Name, p.Name)
			if !ok {
				value = p.DefaultValue
			}
			name := p.RoutingName
			if name == "" {
				name = p.Name
			}
			out.AttributeParameters = append(out.AttributeParameters, parameterSetting{
				Attribute: a.RoutingName,
				Parameter: name,
				Value:     value,
			})
		}
	}
	for _, a := range network.Restrictions() {
		r, _ := settings.Restriction(a.Name)
		out.Restrictions = append(out.Restrictions, restrictionSetting{Name: a.RoutingName, Enabled: r.Enabled})
	}

	raw, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encode route settings: %w", err)
	}
	return string(raw), nil
}
