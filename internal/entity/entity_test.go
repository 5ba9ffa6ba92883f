package entity

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	e := New(Config{Type: "bar-chart"})

	assert.NotEmpty(t, e.ID)
	assert.True(t, strings.HasPrefix(e.ID, "widget_"))
	assert.Equal(t, "bar-chart", e.Type)
	assert.Equal(t, "bar-chart Widget", e.Name)
	assert.Equal(t, e.Name, e.Title)
	assert.Equal(t, "1.0.0", e.Version)
	assert.Equal(t, 4, e.Layout.Size.Width)
	assert.Equal(t, 3, e.Layout.Size.Height)
	assert.Equal(t, 1, e.Layout.ZIndex)
	assert.Equal(t, "native", e.Rendering.Engine)
	assert.True(t, e.State.IsVisible)
	assert.False(t, e.State.IsDirty)
	assert.NotEmpty(t, e.Rendering.SourceCode)
	assert.NotNil(t, e.DataBinding.Dimensions)
	assert.NotNil(t, e.DataBinding.Measures)
	assert.NotNil(t, e.DataBinding.Filters)
	assert.False(t, e.Metadata.Created.IsZero())
	assert.Equal(t, e.Metadata.Created, e.Metadata.Updated)
}

func TestNewPreservesConfig(t *testing.T) {
	e := New(Config{
		ID:    "widget_1_abc",
		Type:  "pie-chart",
		Name:  "Sales",
		Title: "Sales by Region",
		Layout: &Layout{
			Position: Position{X: 2, Y: 5},
			Size:     Size{Width: 6, Height: 4},
		},
	})

	assert.Equal(t, "widget_1_abc", e.ID)
	assert.Equal(t, "Sales", e.Name)
	assert.Equal(t, "Sales by Region", e.Title)
	assert.Equal(t, Position{X: 2, Y: 5}, e.Layout.Position)
	assert.Equal(t, Size{Width: 6, Height: 4}, e.Layout.Size)
}

func TestGenerateIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		id := GenerateID()
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestMutatorsTouch(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(e *Entity)
	}{
		{"SetPosition", func(e *Entity) { e.SetPosition(Position{X: 1, Y: 1}) }},
		{"SetSize", func(e *Entity) { e.SetSize(Size{Width: 2, Height: 2}) }},
		{"SetSourceCode", func(e *Entity) { e.SetSourceCode("<div></div>") }},
		{"SetName", func(e *Entity) { e.SetName("renamed") }},
		{"SetTitle", func(e *Entity) { e.SetTitle("retitled") }},
		{"SetCustomCSS", func(e *Entity) { e.SetCustomCSS(".x{}") }},
		{"MergeConfiguration", func(e *Entity) { e.MergeConfiguration(map[string]any{"k": 1}) }},
		{"SetError", func(e *Entity) { e.SetError("boom") }},
		{"ClearError", func(e *Entity) { e.ClearError() }},
		{"SetLoading", func(e *Entity) { e.SetLoading(true) }},
		{"AddDimension", func(e *Entity) { _ = e.AddDimension(Dimension("region", "region", "string")) }},
		{"AddMeasure", func(e *Entity) { _ = e.AddMeasure(Measure("sales", "sales", "number", AggSum)) }},
		{"AddFilter", func(e *Entity) {
			_ = e.AddFilter(FilterRef{FieldID: "year", Operator: OpEquals, Value: 2024, IsActive: true})
		}},
		{"ClearDataBinding", func(e *Entity) { e.ClearDataBinding() }},
		{"MarkBindingApplied", func(e *Entity) { e.MarkBindingApplied() }},
		{"TrackRenderTime", func(e *Entity) { e.TrackRenderTime(5 * time.Millisecond) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(Config{Type: "table"})
			before := e.Metadata.Updated
			time.Sleep(2 * time.Millisecond)

			tt.mutate(e)

			assert.True(t, e.State.IsDirty, "expected dirty after %s", tt.name)
			assert.True(t, e.Metadata.Updated.After(before), "expected updated bump after %s", tt.name)
		})
	}
}

func TestLoadingAndErrorAreExclusive(t *testing.T) {
	e := New(Config{Type: "kpi"})

	e.SetError("fetch failed")
	assert.True(t, e.State.HasError)
	assert.Equal(t, "fetch failed", e.State.ErrorMessage)
	assert.False(t, e.State.IsLoading)

	e.SetLoading(true)
	assert.True(t, e.State.IsLoading)
	assert.False(t, e.State.HasError)
	assert.Empty(t, e.State.ErrorMessage)

	e.SetError("again")
	assert.False(t, e.State.IsLoading)
	assert.True(t, e.State.HasError)
}

func TestAddMeasureDefaultsAggregation(t *testing.T) {
	e := New(Config{Type: "bar-chart"})
	require.NoError(t, e.AddMeasure(Measure("sales", "sales", "number", "")))
	assert.Equal(t, AggSum, e.DataBinding.Measures[0].Aggregation)
}

func TestAddMeasureRejectsUnknownAggregation(t *testing.T) {
	e := New(Config{Type: "bar-chart"})
	err := e.AddMeasure(Measure("sales", "sales", "number", "median"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "median")
	assert.Empty(t, e.DataBinding.Measures)
}

func TestFieldRefValidation(t *testing.T) {
	tests := []struct {
		name string
		ref  FieldRef
	}{
		{"missing field id", FieldRef{FieldName: "region", FieldType: FieldTypeDimension, DataType: "string"}},
		{"missing field name", FieldRef{FieldID: "region", FieldType: FieldTypeDimension, DataType: "string"}},
		{"missing data type", FieldRef{FieldID: "region", FieldName: "region", FieldType: FieldTypeDimension}},
		{"missing field type", FieldRef{FieldID: "region", FieldName: "region", DataType: "string"}},
		{"measure in dimension list", Measure("sales", "sales", "number", AggSum)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(Config{Type: "bar-chart"})
			assert.Error(t, e.AddDimension(tt.ref))
			assert.Empty(t, e.DataBinding.Dimensions)
		})
	}

	// The mirror check: a dimension ref cannot join the measures list.
	e := New(Config{Type: "bar-chart"})
	assert.Error(t, e.AddMeasure(Dimension("region", "region", "string")))
	assert.Empty(t, e.DataBinding.Measures)
}

func TestAddFilterValidation(t *testing.T) {
	tests := []struct {
		name    string
		filter  FilterRef
		wantErr bool
	}{
		{"equals ok", FilterRef{FieldID: "region", Operator: OpEquals, Value: "North", IsActive: true}, false},
		{"between ok", FilterRef{FieldID: "sales", Operator: OpBetween, Value: 10, Value2: 20, IsActive: true}, false},
		{"between missing second value", FilterRef{FieldID: "sales", Operator: OpBetween, Value: 10, IsActive: true}, true},
		{"unknown operator", FilterRef{FieldID: "sales", Operator: "like", Value: "x", IsActive: true}, true},
		{"missing field id", FilterRef{Operator: OpEquals, Value: "x", IsActive: true}, true},
		{"missing value", FilterRef{FieldID: "region", Operator: OpEquals, IsActive: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(Config{Type: "table"})
			err := e.AddFilter(tt.filter)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Empty(t, e.DataBinding.Filters)
			} else {
				assert.NoError(t, err)
				assert.Len(t, e.DataBinding.Filters, 1)
			}
		})
	}
}

func TestRemoveBindingFields(t *testing.T) {
	e := New(Config{Type: "bar-chart"})
	require.NoError(t, e.AddDimension(Dimension("region", "region", "string")))
	require.NoError(t, e.AddMeasure(Measure("sales", "sales", "number", AggSum)))
	require.NoError(t, e.AddFilter(FilterRef{FieldID: "year", Operator: OpEquals, Value: 2024, IsActive: true}))

	assert.True(t, e.RemoveDimension("region"))
	assert.False(t, e.RemoveDimension("region"))
	assert.True(t, e.RemoveMeasure("sales"))
	assert.False(t, e.RemoveMeasure("missing"))
	assert.True(t, e.RemoveFilter("year"))
	assert.False(t, e.RemoveFilter("year"))
	assert.False(t, e.RemoveFilter("missing"))
}

func TestRenderedSourceCode(t *testing.T) {
	e := New(Config{ID: "widget_9_xyz", Type: "bar-chart", Name: "Rev", Title: "Revenue"})
	e.Rendering.SourceCode = `<div id="{{id}}" data-name="{{name}}"><h1>{{title}}</h1><span>{{type}}</span></div>`

	got := e.RenderedSourceCode()

	assert.Equal(t, `<div id="widget_9_xyz" data-name="Rev"><h1>Revenue</h1><span>bar-chart</span></div>`, got)
}

func TestDefaultSourceCodePerType(t *testing.T) {
	assert.Contains(t, DefaultSourceCode("pie-chart"), `data-chart-type="pie"`)
	assert.Contains(t, DefaultSourceCode("table"), "data-table")
	assert.Contains(t, DefaultSourceCode("bar-chart"), `data-chart-type="bar"`)
	assert.Contains(t, DefaultSourceCode("something-else"), `data-chart-type="bar"`)
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	e := New(Config{Type: "pie-chart", Name: "Share", Title: "Market Share"})
	require.NoError(t, e.AddDimension(Dimension("segment", "segment", "string")))
	require.NoError(t, e.AddMeasure(Measure("revenue", "revenue", "number", AggAvg)))
	require.NoError(t, e.AddFilter(FilterRef{FieldID: "year", Operator: OpBetween, Value: 2020, Value2: 2024, IsActive: true}))
	e.SetPosition(Position{X: 3, Y: 1})
	e.MarkBindingApplied()

	data, err := e.Serialize()
	require.NoError(t, err)

	got, err := Deserialize(data)
	require.NoError(t, err)

	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, e.Type, got.Type)
	assert.Equal(t, e.Name, got.Name)
	assert.Equal(t, e.Title, got.Title)
	assert.Equal(t, e.Layout, got.Layout)
	assert.Equal(t, e.Rendering.SourceCode, got.Rendering.SourceCode)
	assert.Equal(t, len(e.DataBinding.Dimensions), len(got.DataBinding.Dimensions))
	assert.Equal(t, e.DataBinding.Dimensions[0].FieldName, got.DataBinding.Dimensions[0].FieldName)
	assert.True(t, got.DataBinding.Filters[0].IsActive)
	assert.Equal(t, AggAvg, got.DataBinding.Measures[0].Aggregation)
	assert.True(t, got.DataBinding.Applied)
	assert.True(t, e.Metadata.Updated.Equal(got.Metadata.Updated))
}

func TestDeserializeFillsDefaults(t *testing.T) {
	got, err := Deserialize([]byte(`{"id":"widget_1_min","type":"table"}`))
	require.NoError(t, err)

	assert.Equal(t, "table Widget", got.Name)
	assert.Equal(t, got.Name, got.Title)
	assert.Equal(t, "1.0.0", got.Version)
	assert.Equal(t, "native", got.Rendering.Engine)
	assert.NotNil(t, got.DataBinding.Dimensions)
	assert.NotEmpty(t, got.Rendering.SourceCode)
}

func TestDeserializeRejectsGarbage(t *testing.T) {
	_, err := Deserialize([]byte("not json"))
	assert.Error(t, err)
}

func TestClone(t *testing.T) {
	e := New(Config{Type: "bar-chart", Name: "Original"})
	require.NoError(t, e.AddDimension(Dimension("region", "region", "string")))

	clone, err := e.Clone()
	require.NoError(t, err)

	assert.NotEqual(t, e.ID, clone.ID)
	assert.Equal(t, e.Name, clone.Name)
	assert.Equal(t, len(e.DataBinding.Dimensions), len(clone.DataBinding.Dimensions))
	assert.False(t, clone.Metadata.Created.Before(e.Metadata.Created))
}

func TestValidate(t *testing.T) {
	e := New(Config{Type: "bar-chart"})
	res := e.Validate()
	assert.True(t, res.IsValid)
	assert.Empty(t, res.Errors)

	e.ID = ""
	e.DataBinding.Filters = append(e.DataBinding.Filters, FilterRef{FieldID: "x", Operator: "weird", Value: 1, IsActive: true})
	res = e.Validate()
	assert.False(t, res.IsValid)
	assert.Len(t, res.Errors, 2)
}

func TestSummarize(t *testing.T) {
	e := New(Config{Type: "kpi", Name: "Total"})
	require.NoError(t, e.AddMeasure(Measure("sales", "sales", "number", AggSum)))
	e.SetLoading(true)

	s := e.Summarize()
	assert.Equal(t, e.ID, s.ID)
	assert.Equal(t, "kpi", s.Type)
	assert.Equal(t, 1, s.Measures)
	assert.True(t, s.IsLoading)
	assert.True(t, s.IsDirty)
}
