package render

import (
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/gridline-labs/gridboard/internal/entity"
)

// WidgetRenderer is the legacy per-type renderer interface. It predates
// definition-attached render functions and remains supported as a fallback.
type WidgetRenderer interface {
	CanRender(widgetType string) bool
	RenderWidget(e *entity.Entity, data []entity.DataPoint) (string, error)
}

// DualModeRenderer renders a widget tile in either info or view mode. View
// mode resolves a render function in order: the registered definition's
// function, then any legacy renderer claiming the type. A widget that fails
// to render gets an error tile in place; siblings are unaffected.
type DualModeRenderer struct {
	*EntityRenderer
	legacy []WidgetRenderer
}

// NewDualMode creates a dual-mode renderer.
func NewDualMode(cfg Config) *DualModeRenderer {
	return &DualModeRenderer{EntityRenderer: New(cfg)}
}

// RegisterLegacy appends a legacy renderer consulted after definition
// render functions.
func (r *DualModeRenderer) RegisterLegacy(wr WidgetRenderer) {
	r.legacy = append(r.legacy, wr)
}

// Render produces the full tile for an entity in the given mode: wrapper
// div carrying data-widget-id, a scoped style block when the widget has
// custom CSS, and the mode's body. View-mode failures yield an error tile
// and the typed error.
func (r *DualModeRenderer) Render(e *entity.Entity, mode Mode) (*Result, error) {
	switch mode {
	case ModeInfo:
		res, err := r.RenderInfo(e)
		if err != nil {
			return nil, err
		}
		r.wrap(e, res)
		return res, nil
	case ModeView:
		return r.renderView(e)
	default:
		return nil, fmt.Errorf("unknown render mode %q", mode)
	}
}

func (r *DualModeRenderer) renderView(e *entity.Entity) (*Result, error) {
	start := time.Now()

	body, err := r.viewBody(e)
	if err != nil {
		e.SetError(err.Error())
		res := &Result{
			WidgetID: e.ID,
			Mode:     ModeView,
			HTML:     errorTile(e, err),
			Duration: time.Since(start),
		}
		r.wrap(e, res)
		r.store(res)
		e.TrackRenderTime(res.Duration)
		return res, err
	}

	res := &Result{
		WidgetID: e.ID,
		Mode:     ModeView,
		HTML:     body,
		Duration: time.Since(start),
	}
	r.wrap(e, res)
	r.store(res)
	e.TrackRenderTime(res.Duration)
	return res, nil
}

func (r *DualModeRenderer) viewBody(e *entity.Entity) (string, error) {
	data, err := r.resolveData(e)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", ErrNoData
	}

	if r.registry != nil {
		if d, ok := r.registry.Get(e.Type); ok && d.Render != nil {
			out, err := d.Render(e, data)
			if err != nil {
				return "", fmt.Errorf("render function for %s failed: %w", e.Type, err)
			}
			return out, nil
		}
	}

	for _, wr := range r.legacy {
		if wr.CanRender(e.Type) {
			out, err := wr.RenderWidget(e, data)
			if err != nil {
				return "", fmt.Errorf("legacy renderer for %s failed: %w", e.Type, err)
			}
			return out, nil
		}
	}

	return "", ErrNoRenderer
}

// wrap surrounds the body with the tile chrome and attaches scoped CSS.
func (r *DualModeRenderer) wrap(e *entity.Entity, res *Result) {
	var sb strings.Builder
	if e.Rendering.CustomCSS != "" {
		res.CSS = ScopeCSS(e.Rendering.CustomCSS, e.ID)
		fmt.Fprintf(&sb, "<style>%s</style>\n", res.CSS)
	}
	fmt.Fprintf(&sb, `<div class="widget-tile" data-widget-id=%q data-widget-mode=%q>%s</div>`,
		e.ID, res.Mode, res.HTML)
	res.HTML = sb.String()
}

func errorTile(e *entity.Entity, err error) string {
	msg := "Unable to render widget"
	switch {
	case errors.Is(err, ErrNoData):
		msg = "No data available"
	case errors.Is(err, ErrNoRenderer):
		msg = "No widget renderer"
	}
	return fmt.Sprintf(
		`<div class="widget-error"><span class="error-title">%s</span><span class="error-detail">%s</span></div>`,
		html.EscapeString(msg), html.EscapeString(err.Error()))
}

// Rerender repeats the last render of a widget in its cached mode. Returns
// false when the widget was never rendered.
func (r *DualModeRenderer) Rerender(e *entity.Entity) (*Result, bool, error) {
	cached := r.Cached(e.ID)
	if cached == nil {
		return nil, false, nil
	}
	res, err := r.Render(e, cached.Mode)
	return res, true, err
}
