// Package widgets ships the built-in widget definitions: bar chart, line
// chart, pie chart, data table and KPI tile. Each definition carries a demo
// dataset and an HTML render function, and registers under a stable renderer
// name so manifest-defined widgets can reuse the render functions.
package widgets

import (
	"fmt"
	"html"
	"strings"

	"github.com/gridline-labs/gridboard/internal/entity"
	"github.com/gridline-labs/gridboard/internal/registry"
)

// RegisterBuiltins adds every built-in definition and renderer to the
// registry.
func RegisterBuiltins(r *registry.Registry) error {
	r.RegisterRenderer("bar-chart", RenderBarChart)
	r.RegisterRenderer("line-chart", RenderLineChart)
	r.RegisterRenderer("pie-chart", RenderPieChart)
	r.RegisterRenderer("table", RenderTable)
	r.RegisterRenderer("kpi", RenderKPI)

	for _, d := range Builtins() {
		if err := r.Register(d); err != nil {
			return fmt.Errorf("failed to register builtin %s: %w", d.Type, err)
		}
	}
	return nil
}

// Builtins returns fresh copies of the built-in definitions.
func Builtins() []*registry.Definition {
	// Minimums only; maximums are unbounded.
	chartShape := &registry.Requirements{MinDimensions: 1, MinMeasures: 1}
	measureOnly := &registry.Requirements{MinMeasures: 1}

	return []*registry.Definition{
		{
			Type: "bar-chart", Name: "Bar Chart", Version: "1.0.0", Icon: "📊",
			Description:  "Vertical bars comparing one measure across a dimension",
			Requirements: chartShape,
			DefaultConfig: map[string]any{
				"barColor":   "#4e79a7",
				"showValues": true,
			},
			DefaultSize:  &entity.Size{Width: 4, Height: 3},
			DemoData:     demoSales(),
			Render:       RenderBarChart,
			RendererName: "bar-chart",
			CSS:          barChartCSS,
		},
		{
			Type: "line-chart", Name: "Line Chart", Version: "1.0.0", Icon: "📈",
			Description:  "Polyline tracking one measure over an ordered dimension",
			Requirements: chartShape,
			DefaultConfig: map[string]any{
				"lineColor":  "#59a14f",
				"showPoints": true,
			},
			DefaultSize:  &entity.Size{Width: 6, Height: 3},
			DemoData:     demoTrend(),
			Render:       RenderLineChart,
			RendererName: "line-chart",
			CSS:          lineChartCSS,
		},
		{
			Type: "pie-chart", Name: "Pie Chart", Version: "1.0.0", Icon: "🥧",
			Description:  "Share of one measure per dimension value",
			Requirements: chartShape,
			DefaultConfig: map[string]any{
				"showLegend": true,
			},
			DefaultSize:  &entity.Size{Width: 4, Height: 4},
			DemoData:     demoSales(),
			Render:       RenderPieChart,
			RendererName: "pie-chart",
			CSS:          pieChartCSS,
		},
		{
			Type: "table", Name: "Data Table", Version: "1.0.0", Icon: "🗒️",
			Description: "Raw label/value rows",
			Requirements: measureOnly,
			DefaultConfig: map[string]any{
				"striped": true,
			},
			DefaultSize:  &entity.Size{Width: 6, Height: 4},
			DemoData:     demoSales(),
			Render:       RenderTable,
			RendererName: "table",
			CSS:          tableCSS,
		},
		{
			Type: "kpi", Name: "KPI Tile", Version: "1.0.0", Icon: "🎯",
			Description:  "Single aggregated number",
			Requirements: measureOnly,
			DefaultConfig: map[string]any{
				"unit": "",
			},
			DefaultSize:  &entity.Size{Width: 2, Height: 2},
			DemoData:     []entity.DataPoint{{Label: "Revenue", Value: 128400}},
			Render:       RenderKPI,
			RendererName: "kpi",
			CSS:          kpiCSS,
		},
	}
}

func demoSales() []entity.DataPoint {
	return []entity.DataPoint{
		{Label: "North", Value: 2700.5},
		{Label: "South", Value: 1340},
		{Label: "East", Value: 700.25},
		{Label: "West", Value: 2100},
	}
}

func demoTrend() []entity.DataPoint {
	return []entity.DataPoint{
		{Label: "Jan", Value: 120},
		{Label: "Feb", Value: 180},
		{Label: "Mar", Value: 150},
		{Label: "Apr", Value: 240},
		{Label: "May", Value: 310},
	}
}

func maxValue(data []entity.DataPoint) float64 {
	max := 0.0
	for _, p := range data {
		if p.Value > max {
			max = p.Value
		}
	}
	return max
}

func formatValue(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}

// RenderBarChart draws horizontal bars scaled to the largest value.
func RenderBarChart(e *entity.Entity, data []entity.DataPoint) (string, error) {
	max := maxValue(data)

	var sb strings.Builder
	sb.WriteString(`<div class="bar-chart">`)
	for _, p := range data {
		pct := 0.0
		if max > 0 {
			pct = p.Value / max * 100
		}
		fmt.Fprintf(&sb,
			`<div class="bar-row"><span class="bar-label">%s</span>`+
				`<div class="bar" style="width:%.1f%%"></div>`+
				`<span class="bar-value">%s</span></div>`,
			html.EscapeString(p.Label), pct, formatValue(p.Value))
	}
	sb.WriteString(`</div>`)
	return sb.String(), nil
}

// RenderLineChart draws an SVG polyline over the points.
func RenderLineChart(e *entity.Entity, data []entity.DataPoint) (string, error) {
	const width, height = 300.0, 120.0
	max := maxValue(data)

	var coords []string
	for i, p := range data {
		x := 0.0
		if len(data) > 1 {
			x = float64(i) / float64(len(data)-1) * width
		}
		y := height
		if max > 0 {
			y = height - p.Value/max*height
		}
		coords = append(coords, fmt.Sprintf("%.1f,%.1f", x, y))
	}

	var sb strings.Builder
	sb.WriteString(`<div class="line-chart">`)
	fmt.Fprintf(&sb,
		`<svg viewBox="0 0 %.0f %.0f" preserveAspectRatio="none">`+
			`<polyline fill="none" stroke="currentColor" points="%s"/></svg>`,
		width, height, strings.Join(coords, " "))
	sb.WriteString(`<div class="line-labels">`)
	for _, p := range data {
		fmt.Fprintf(&sb, `<span>%s</span>`, html.EscapeString(p.Label))
	}
	sb.WriteString(`</div></div>`)
	return sb.String(), nil
}

// RenderPieChart renders the share of each label as a legend with
// percentages. Slice geometry is left to CSS conic gradients.
func RenderPieChart(e *entity.Entity, data []entity.DataPoint) (string, error) {
	var total float64
	for _, p := range data {
		total += p.Value
	}

	var sb strings.Builder
	sb.WriteString(`<div class="pie-chart"><ul class="pie-legend">`)
	for _, p := range data {
		pct := 0.0
		if total > 0 {
			pct = p.Value / total * 100
		}
		fmt.Fprintf(&sb,
			`<li><span class="pie-label">%s</span><span class="pie-pct">%.1f%%</span></li>`,
			html.EscapeString(p.Label), pct)
	}
	sb.WriteString(`</ul></div>`)
	return sb.String(), nil
}

// RenderTable renders label/value rows as an HTML table.
func RenderTable(e *entity.Entity, data []entity.DataPoint) (string, error) {
	var sb strings.Builder
	sb.WriteString(`<table class="widget-table"><thead><tr><th>Label</th><th>Value</th></tr></thead><tbody>`)
	for _, p := range data {
		fmt.Fprintf(&sb, `<tr><td>%s</td><td>%s</td></tr>`,
			html.EscapeString(p.Label), formatValue(p.Value))
	}
	sb.WriteString(`</tbody></table>`)
	return sb.String(), nil
}

// RenderKPI renders the first point as a single large number.
func RenderKPI(e *entity.Entity, data []entity.DataPoint) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("kpi widget has no data point")
	}
	p := data[0]
	unit := ""
	if e != nil {
		if u, ok := e.Configuration["unit"].(string); ok {
			unit = u
		}
	}
	return fmt.Sprintf(
		`<div class="kpi"><span class="kpi-value">%s%s</span><span class="kpi-label">%s</span></div>`,
		formatValue(p.Value), html.EscapeString(unit), html.EscapeString(p.Label)), nil
}

const barChartCSS = `.bar-chart { display: flex; flex-direction: column; gap: 4px; }
.bar-row { display: flex; align-items: center; gap: 8px; }
.bar { background: #4e79a7; height: 16px; border-radius: 2px; }
.bar-label { min-width: 80px; text-align: right; }`

const lineChartCSS = `.line-chart svg { width: 100%; height: 120px; color: #59a14f; }
.line-labels { display: flex; justify-content: space-between; font-size: 11px; }`

const pieChartCSS = `.pie-legend { list-style: none; margin: 0; padding: 0; }
.pie-legend li { display: flex; justify-content: space-between; padding: 2px 0; }`

const tableCSS = `.widget-table { width: 100%; border-collapse: collapse; }
.widget-table td, .widget-table th { padding: 4px 8px; border-bottom: 1px solid #eee; text-align: left; }`

const kpiCSS = `.kpi { display: flex; flex-direction: column; align-items: center; justify-content: center; height: 100%; }
.kpi-value { font-size: 32px; font-weight: 600; }
.kpi-label { color: #666; }`
