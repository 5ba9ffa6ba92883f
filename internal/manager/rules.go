package manager

import (
	"fmt"

	"github.com/gridline-labs/gridboard/internal/entity"
	"github.com/gridline-labs/gridboard/internal/registry"
)

// canonicalRequirements is the single source of binding cardinality rules
// per widget type: minimums only, maximums unbounded unless a registered
// definition declares its own Requirements. Unknown types get the flexible
// shape.
var canonicalRequirements = map[string]registry.Requirements{
	"bar-chart":  {MinDimensions: 1, MinMeasures: 1},
	"line-chart": {MinDimensions: 1, MinMeasures: 1},
	"pie-chart":  {MinDimensions: 1, MinMeasures: 1},
	"table":      {MinDimensions: 0, MinMeasures: 1},
	"kpi":        {MinDimensions: 0, MinMeasures: 1},
}

var flexibleRequirements = registry.Requirements{}

// requirementsFor resolves the binding rules for a widget type.
func (m *Manager) requirementsFor(widgetType string) registry.Requirements {
	if m.registry != nil {
		if d, ok := m.registry.Get(widgetType); ok && d.Requirements != nil {
			return *d.Requirements
		}
	}
	if req, ok := canonicalRequirements[widgetType]; ok {
		return req
	}
	return flexibleRequirements
}

// validateBinding checks a binding against the cardinality rules for the
// widget type and the structural validity of every field and filter.
func (m *Manager) validateBinding(widgetType string, b entity.DataBinding) error {
	req := m.requirementsFor(widgetType)

	if n := len(b.Dimensions); n < req.MinDimensions {
		return fmt.Errorf("%s requires at least %d dimension(s), got %d",
			widgetType, req.MinDimensions, n)
	}
	if req.MaxDimensions > 0 && len(b.Dimensions) > req.MaxDimensions {
		return fmt.Errorf("%s allows at most %d dimension(s), got %d",
			widgetType, req.MaxDimensions, len(b.Dimensions))
	}
	if n := len(b.Measures); n < req.MinMeasures {
		return fmt.Errorf("%s requires at least %d measure(s), got %d",
			widgetType, req.MinMeasures, n)
	}
	if req.MaxMeasures > 0 && len(b.Measures) > req.MaxMeasures {
		return fmt.Errorf("%s allows at most %d measure(s), got %d",
			widgetType, req.MaxMeasures, len(b.Measures))
	}

	probe := entity.New(entity.Config{Type: widgetType, DataBinding: &b})
	if res := probe.Validate(); !res.IsValid {
		return fmt.Errorf("invalid binding: %s", res.Errors[0])
	}
	return nil
}
