package geocode

import "backend-routetracking/internal/config"

// AddressField names one part of a street address, e.g. PostalCode1.
type AddressField struct {
	Type  string
	Title string
}

// Schema exposes the address fields of the configured geocoder.
type Schema struct {
	fields []AddressField
}

func NewSchema(cfg []config.AddressField) *Schema {
	fields := make([]AddressField, 0, len(cfg))
	for _, f := range cfg {
		title := f.Title
		if title == "" {
			title = f.Type
		}
		fields = append(fields, AddressField{Type: f.Type, Title: title})
	}
	return &Schema{fields: fields}
}

func (s *Schema) AddressFields() []AddressField {
	return append([]AddressField(nil), s.fields...)
}
