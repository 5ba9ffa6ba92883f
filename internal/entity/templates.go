package entity

// Default source-code templates per widget type. These are starting points
// shown in the code editor; the placeholders are substituted by
// RenderedSourceCode.

const barChartTemplate = `<div class="widget-container" data-widget-id="{{id}}">
  <div class="widget-header">
    <h3 class="widget-title">{{title}}</h3>
  </div>
  <div class="widget-body">
    <div class="chart-container" data-chart-type="bar"></div>
  </div>
</div>`

const pieChartTemplate = `<div class="widget-container" data-widget-id="{{id}}">
  <div class="widget-header">
    <h3 class="widget-title">{{title}}</h3>
  </div>
  <div class="widget-body">
    <div class="chart-container" data-chart-type="pie"></div>
  </div>
</div>`

const tableTemplate = `<div class="widget-container" data-widget-id="{{id}}">
  <div class="widget-header">
    <h3 class="widget-title">{{title}}</h3>
  </div>
  <div class="widget-body">
    <table class="data-table" data-widget-name="{{name}}"></table>
  </div>
</div>`

// DefaultSourceCode returns the starter template for a widget type. Unknown
// types get the bar chart template.
func DefaultSourceCode(widgetType string) string {
	switch widgetType {
	case "pie-chart":
		return pieChartTemplate
	case "table":
		return tableTemplate
	default:
		return barChartTemplate
	}
}
