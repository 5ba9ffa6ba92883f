// Package render turns widget entities into HTML. Info mode produces a
// deterministic metadata panel; view mode runs the widget type's render
// function over the resolved data. Rendered output is cached per widget so
// a dashboard can re-render one tile without touching its siblings.
package render

import (
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gridline-labs/gridboard/internal/dataset"
	"github.com/gridline-labs/gridboard/internal/entity"
	"github.com/gridline-labs/gridboard/internal/registry"
)

// Typed render failures. Callers distinguish an unbound widget from an
// unregistered type.
var (
	ErrNoData     = errors.New("no data available for widget")
	ErrNoRenderer = errors.New("no widget renderer")
)

// Mode selects what a widget tile shows.
type Mode string

const (
	ModeInfo Mode = "info"
	ModeView Mode = "view"
)

// Result is one rendered widget tile.
type Result struct {
	WidgetID string
	Mode     Mode
	HTML     string
	CSS      string
	Duration time.Duration
}

// EntityRenderer renders widget entities and caches the results by widget
// id.
type EntityRenderer struct {
	mu       sync.Mutex
	cache    map[string]*Result
	registry *registry.Registry
	model    *dataset.Model
	logger   *slog.Logger
	infoTmpl *template.Template
}

// Config wires the renderer. Registry is required for view mode; Model is
// optional and only consulted when an entity has no loaded widget data.
type Config struct {
	Registry *registry.Registry
	Model    *dataset.Model
	Logger   *slog.Logger
}

// New creates a renderer.
func New(cfg Config) *EntityRenderer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &EntityRenderer{
		cache:    make(map[string]*Result),
		registry: cfg.Registry,
		model:    cfg.Model,
		logger:   logger,
		infoTmpl: template.Must(template.New("info").Parse(infoTemplate)),
	}
}

type infoRow struct {
	Key   string
	Value string
}

type infoData struct {
	Icon       string
	Title      string
	ID         string
	Type       string
	Version    string
	Created    string
	Updated    string
	Binding    string
	Config     []infoRow
	States     []string
	Preview    []entity.DataPoint
	HasPreview bool
}

const infoTemplate = `<div class="widget-info">
  <div class="info-header"><span class="info-icon">{{.Icon}}</span><h3>{{.Title}}</h3></div>
  <dl class="info-meta">
    <dt>ID</dt><dd>{{.ID}}</dd>
    <dt>Type</dt><dd>{{.Type}} v{{.Version}}</dd>
    <dt>Created</dt><dd>{{.Created}}</dd>
    <dt>Updated</dt><dd>{{.Updated}}</dd>
    <dt>Binding</dt><dd>{{.Binding}}</dd>
  </dl>
{{- if .Config}}
  <table class="info-config">
{{- range .Config}}
    <tr><td>{{.Key}}</td><td>{{.Value}}</td></tr>
{{- end}}
  </table>
{{- end}}
{{- if .States}}
  <ul class="info-states">
{{- range .States}}
    <li>{{.}}</li>
{{- end}}
  </ul>
{{- end}}
{{- if .HasPreview}}
  <table class="info-preview">
    <thead><tr><th>Label</th><th>Value</th></tr></thead>
    <tbody>
{{- range .Preview}}
      <tr><td>{{.Label}}</td><td>{{printf "%g" .Value}}</td></tr>
{{- end}}
    </tbody>
  </table>
{{- end}}
</div>`

const previewRows = 10

// RenderInfo renders the metadata panel. Output is deterministic for a
// given entity: configuration keys are sorted and only entity-owned
// timestamps appear.
func (r *EntityRenderer) RenderInfo(e *entity.Entity) (*Result, error) {
	start := time.Now()

	icon := "🧩"
	if r.registry != nil {
		if d, ok := r.registry.Get(e.Type); ok && d.Icon != "" {
			icon = d.Icon
		}
	}

	data := infoData{
		Icon:    icon,
		Title:   e.Title,
		ID:      e.ID,
		Type:    e.Type,
		Version: e.Version,
		Created: e.Metadata.Created.UTC().Format(time.RFC3339),
		Updated: e.Metadata.Updated.UTC().Format(time.RFC3339),
		Binding: bindingSummary(e.DataBinding),
	}

	keys := make([]string, 0, len(e.Configuration))
	for k := range e.Configuration {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		data.Config = append(data.Config, infoRow{Key: k, Value: fmt.Sprintf("%v", e.Configuration[k])})
	}

	if e.State.IsLoading {
		data.States = append(data.States, "loading")
	}
	if e.State.HasError {
		data.States = append(data.States, "error: "+e.State.ErrorMessage)
	}
	if e.State.IsDirty {
		data.States = append(data.States, "unsaved changes")
	}

	if points, err := r.resolveData(e); err == nil && len(points) > 0 {
		if len(points) > previewRows {
			points = points[:previewRows]
		}
		data.Preview = points
		data.HasPreview = true
	}

	var sb strings.Builder
	if err := r.infoTmpl.Execute(&sb, data); err != nil {
		return nil, fmt.Errorf("failed to render info panel: %w", err)
	}

	// Info renders are not tracked: tracking touches the entity, and
	// repeated info renders must be byte-identical.
	res := &Result{
		WidgetID: e.ID,
		Mode:     ModeInfo,
		HTML:     sb.String(),
		Duration: time.Since(start),
	}
	r.store(res)
	return res, nil
}

func bindingSummary(b entity.DataBinding) string {
	if !b.Applied && len(b.Dimensions) == 0 && len(b.Measures) == 0 {
		return "not bound"
	}
	var parts []string
	for _, d := range b.Dimensions {
		parts = append(parts, d.FieldName)
	}
	for _, m := range b.Measures {
		agg := m.Aggregation
		if agg == "" {
			agg = entity.AggSum
		}
		parts = append(parts, fmt.Sprintf("%s(%s)", agg, m.FieldName))
	}
	s := strings.Join(parts, ", ")
	if n := len(b.Filters); n > 0 {
		s += fmt.Sprintf(", %d filter(s)", n)
	}
	return s
}

// resolveData picks the entity's loaded widget data when present, falling
// back to the data model's binding resolution.
func (r *EntityRenderer) resolveData(e *entity.Entity) ([]entity.DataPoint, error) {
	if e.WidgetData != nil && e.WidgetData.IsLoaded && len(e.WidgetData.FormattedData) > 0 {
		return e.WidgetData.FormattedData, nil
	}
	if r.model != nil && r.model.Active() != nil && e.DataBinding.Applied {
		return r.model.DataForBinding(e.DataBinding)
	}
	return nil, ErrNoData
}

func (r *EntityRenderer) store(res *Result) {
	r.mu.Lock()
	r.cache[res.WidgetID] = res
	r.mu.Unlock()
}

// Cached returns the last result for a widget id, or nil.
func (r *EntityRenderer) Cached(widgetID string) *Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache[widgetID]
}

// RemoveFromCache drops a widget's cached result, including its scoped
// style block.
func (r *EntityRenderer) RemoveFromCache(widgetID string) {
	r.mu.Lock()
	delete(r.cache, widgetID)
	r.mu.Unlock()
}
