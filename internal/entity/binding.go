package entity

import (
	"errors"
	"fmt"
	"time"
)

// FieldType distinguishes categorical fields from numeric ones in a binding.
type FieldType string

const (
	FieldTypeDimension FieldType = "dimension"
	FieldTypeMeasure   FieldType = "measure"
)

// Aggregation names the reduction applied to a measure when rows are grouped.
type Aggregation string

const (
	AggSum   Aggregation = "sum"
	AggAvg   Aggregation = "avg"
	AggCount Aggregation = "count"
	AggMin   Aggregation = "min"
	AggMax   Aggregation = "max"
)

// ValidAggregation reports whether a is a known aggregation.
func ValidAggregation(a Aggregation) bool {
	switch a {
	case AggSum, AggAvg, AggCount, AggMin, AggMax:
		return true
	}
	return false
}

// FilterOperator is the comparison applied by a filter.
type FilterOperator string

const (
	OpEquals   FilterOperator = "equals"
	OpContains FilterOperator = "contains"
	OpGreater  FilterOperator = "greater"
	OpLess     FilterOperator = "less"
	OpBetween  FilterOperator = "between"
)

// ValidOperator reports whether op is a known filter operator.
func ValidOperator(op FilterOperator) bool {
	switch op {
	case OpEquals, OpContains, OpGreater, OpLess, OpBetween:
		return true
	}
	return false
}

// FieldRef binds a widget to one field of a data source, either as a
// grouping dimension or an aggregated measure. FieldID, FieldName, FieldType
// and DataType are all required; FieldType must match the binding list the
// ref is added to.
type FieldRef struct {
	FieldID     string      `json:"fieldId"`
	FieldName   string      `json:"fieldName"`
	FieldType   FieldType   `json:"fieldType"`
	DataType    string      `json:"dataType"`
	Aggregation Aggregation `json:"aggregation,omitempty"`
}

// Dimension builds a FieldRef for the dimensions list.
func Dimension(id, name, dataType string) FieldRef {
	return FieldRef{FieldID: id, FieldName: name, FieldType: FieldTypeDimension, DataType: dataType}
}

// Measure builds a FieldRef for the measures list.
func Measure(id, name, dataType string, agg Aggregation) FieldRef {
	return FieldRef{FieldID: id, FieldName: name, FieldType: FieldTypeMeasure, DataType: dataType, Aggregation: agg}
}

// FilterRef restricts the rows a widget sees before aggregation. Only
// active filters apply.
type FilterRef struct {
	FieldID   string         `json:"fieldId"`
	FieldName string         `json:"fieldName,omitempty"`
	Operator  FilterOperator `json:"operator"`
	Value     any            `json:"value"`
	Value2    any            `json:"value2,omitempty"`
	IsActive  bool           `json:"isActive"`
}

// Column is the row key the data model reads for this filter. Falls back to
// the field id when no name is set.
func (f FilterRef) Column() string {
	if f.FieldName != "" {
		return f.FieldName
	}
	return f.FieldID
}

// DataBinding connects a widget to a data source: which fields group the
// rows, which get aggregated, and which filters apply first.
type DataBinding struct {
	SourceID   string      `json:"dataSourceId,omitempty"`
	Dimensions []FieldRef  `json:"dimensions"`
	Measures   []FieldRef  `json:"measures"`
	Filters    []FilterRef `json:"filters"`
	Applied    bool        `json:"applied"`
	AppliedAt  *time.Time  `json:"appliedAt,omitempty"`
}

func (f FieldRef) validateAs(ft FieldType) error {
	if f.FieldID == "" {
		return errors.New("missing field id")
	}
	if f.FieldName == "" {
		return errors.New("missing field name")
	}
	if f.FieldType != ft {
		return fmt.Errorf("field type %q does not belong in the %s list", f.FieldType, ft)
	}
	if f.DataType == "" {
		return errors.New("missing data type")
	}
	if ft == FieldTypeMeasure && f.Aggregation != "" && !ValidAggregation(f.Aggregation) {
		return fmt.Errorf("unknown aggregation %q", f.Aggregation)
	}
	return nil
}

func (f FilterRef) validate() error {
	if f.FieldID == "" {
		return errors.New("missing field id")
	}
	if !ValidOperator(f.Operator) {
		return fmt.Errorf("unknown operator %q", f.Operator)
	}
	if f.Value == nil {
		return errors.New("missing filter value")
	}
	if f.Operator == OpBetween && f.Value2 == nil {
		return errors.New("between filter requires a second value")
	}
	return nil
}

// AddDimension appends a grouping field to the binding.
func (e *Entity) AddDimension(f FieldRef) error {
	if err := f.validateAs(FieldTypeDimension); err != nil {
		return fmt.Errorf("invalid dimension: %w", err)
	}
	e.DataBinding.Dimensions = append(e.DataBinding.Dimensions, f)
	e.touch()
	return nil
}

// AddMeasure appends an aggregated field to the binding. An unset
// aggregation defaults to sum.
func (e *Entity) AddMeasure(f FieldRef) error {
	if err := f.validateAs(FieldTypeMeasure); err != nil {
		return fmt.Errorf("invalid measure: %w", err)
	}
	if f.Aggregation == "" {
		f.Aggregation = AggSum
	}
	e.DataBinding.Measures = append(e.DataBinding.Measures, f)
	e.touch()
	return nil
}

// AddFilter appends a row filter to the binding.
func (e *Entity) AddFilter(f FilterRef) error {
	if err := f.validate(); err != nil {
		return fmt.Errorf("invalid filter: %w", err)
	}
	e.DataBinding.Filters = append(e.DataBinding.Filters, f)
	e.touch()
	return nil
}

// RemoveDimension drops the dimension with the given field id. Returns
// false when no such dimension exists.
func (e *Entity) RemoveDimension(fieldID string) bool {
	for i, d := range e.DataBinding.Dimensions {
		if d.FieldID == fieldID {
			e.DataBinding.Dimensions = append(e.DataBinding.Dimensions[:i], e.DataBinding.Dimensions[i+1:]...)
			e.touch()
			return true
		}
	}
	return false
}

// RemoveMeasure drops the measure with the given field id. Returns false
// when no such measure exists.
func (e *Entity) RemoveMeasure(fieldID string) bool {
	for i, m := range e.DataBinding.Measures {
		if m.FieldID == fieldID {
			e.DataBinding.Measures = append(e.DataBinding.Measures[:i], e.DataBinding.Measures[i+1:]...)
			e.touch()
			return true
		}
	}
	return false
}

// RemoveFilter drops the filter with the given field id. Returns false when
// no such filter exists.
func (e *Entity) RemoveFilter(fieldID string) bool {
	for i, f := range e.DataBinding.Filters {
		if f.FieldID == fieldID {
			e.DataBinding.Filters = append(e.DataBinding.Filters[:i], e.DataBinding.Filters[i+1:]...)
			e.touch()
			return true
		}
	}
	return false
}

// ClearDataBinding resets the binding to an empty, unapplied state.
func (e *Entity) ClearDataBinding() *Entity {
	e.DataBinding = DataBinding{
		Dimensions: []FieldRef{},
		Measures:   []FieldRef{},
		Filters:    []FilterRef{},
	}
	return e.touch()
}

// MarkBindingApplied records that the binding passed validation and is in
// effect.
func (e *Entity) MarkBindingApplied() *Entity {
	now := time.Now().UTC()
	e.DataBinding.Applied = true
	e.DataBinding.AppliedAt = &now
	return e.touch()
}
