// Package entity defines the widget entity, the serializable descriptor of a
// single dashboard widget. An entity carries identity, metadata, data binding,
// layout, rendering configuration and runtime state, and is the unit of
// persistence for the repository layer.
package entity

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Metadata holds descriptive information about a widget entity.
type Metadata struct {
	Created     time.Time `json:"created"`
	Updated     time.Time `json:"updated"`
	Author      string    `json:"author,omitempty"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
}

// Position is a grid coordinate on the canvas.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Size is a widget footprint in grid units.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Layout describes where and how large a widget renders on the canvas.
type Layout struct {
	Position Position `json:"position"`
	Size     Size     `json:"size"`
	ZIndex   int      `json:"zIndex"`
}

// Rendering holds the HTML source template and styling configuration.
// SourceCode may contain the placeholders {{id}}, {{title}}, {{name}} and
// {{type}}, substituted by RenderedSourceCode.
type Rendering struct {
	SourceCode    string            `json:"sourceCode"`
	Engine        string            `json:"renderingEngine"`
	CustomCSS     string            `json:"customCSS,omitempty"`
	Interactivity map[string]bool   `json:"interactivity,omitempty"`
	Options       map[string]string `json:"options,omitempty"`
}

// State is the runtime state of a widget. Loading and error are mutually
// exclusive: entering the loading state clears any error, and setting an
// error clears the loading flag.
type State struct {
	IsLoading    bool   `json:"isLoading"`
	HasError     bool   `json:"hasError"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	IsVisible    bool   `json:"isVisible"`
	IsDirty      bool   `json:"isDirty"`
}

// Performance tracks advisory rendering statistics. Nothing enforces these;
// they exist for diagnostics.
type Performance struct {
	LastRenderMS float64 `json:"lastRenderTime,omitempty"`
	DataSize     int     `json:"dataSize,omitempty"`
	CacheKey     string  `json:"cacheKey,omitempty"`
}

// WidgetData holds rows pushed directly into the entity, either from a
// definition's demo dataset or from the feeding flow. When loaded, it takes
// priority over resolving the data binding against the shared data model.
type WidgetData struct {
	RawData       []map[string]any `json:"rawData,omitempty"`
	FormattedData []DataPoint      `json:"formattedData,omitempty"`
	LastUpdated   time.Time        `json:"lastUpdated"`
	IsLoaded      bool             `json:"isLoaded"`
	Source        string           `json:"source,omitempty"`
	Metadata      map[string]any   `json:"metadata,omitempty"`
}

// DataPoint is the label/value shape consumed by widget render functions.
type DataPoint struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// Entity is the persisted, mutable descriptor of one dashboard widget.
type Entity struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Title   string `json:"title"`
	Version string `json:"version"`

	Metadata      Metadata       `json:"metadata"`
	DataBinding   DataBinding    `json:"dataBinding"`
	Layout        Layout         `json:"layout"`
	Rendering     Rendering      `json:"rendering"`
	Configuration map[string]any `json:"configuration,omitempty"`
	State         State          `json:"state"`
	Performance   Performance    `json:"performance"`
	WidgetData    *WidgetData    `json:"widgetData,omitempty"`
}

// Config carries optional initial values for New. Zero fields receive
// defaults, so a Config round-tripped through serialization reconstructs an
// equivalent entity.
type Config struct {
	ID            string
	Type          string
	Name          string
	Title         string
	Version       string
	Metadata      *Metadata
	DataBinding   *DataBinding
	Layout        *Layout
	Rendering     *Rendering
	Configuration map[string]any
	State         *State
}

// New constructs an entity from cfg, filling defaults for anything unset.
func New(cfg Config) *Entity {
	now := time.Now().UTC()

	e := &Entity{
		ID:      cfg.ID,
		Type:    cfg.Type,
		Name:    cfg.Name,
		Title:   cfg.Title,
		Version: cfg.Version,
		Metadata: Metadata{
			Created: now,
			Updated: now,
		},
		DataBinding: DataBinding{
			Dimensions: []FieldRef{},
			Measures:   []FieldRef{},
			Filters:    []FilterRef{},
		},
		Layout: Layout{
			Size:   Size{Width: 4, Height: 3},
			ZIndex: 1,
		},
		Rendering: Rendering{
			Engine: "native",
		},
		State: State{
			IsVisible: true,
		},
		Configuration: cfg.Configuration,
	}

	if e.ID == "" {
		e.ID = GenerateID()
	}
	if e.Type == "" {
		e.Type = "unknown"
	}
	if e.Name == "" {
		e.Name = e.Type + " Widget"
	}
	if e.Title == "" {
		e.Title = e.Name
	}
	if e.Version == "" {
		e.Version = "1.0.0"
	}

	if cfg.Metadata != nil {
		m := *cfg.Metadata
		if m.Created.IsZero() {
			m.Created = now
		}
		if m.Updated.IsZero() {
			m.Updated = now
		}
		e.Metadata = m
	}
	if cfg.DataBinding != nil {
		b := *cfg.DataBinding
		if b.Dimensions == nil {
			b.Dimensions = []FieldRef{}
		}
		if b.Measures == nil {
			b.Measures = []FieldRef{}
		}
		if b.Filters == nil {
			b.Filters = []FilterRef{}
		}
		e.DataBinding = b
	}
	if cfg.Layout != nil {
		l := *cfg.Layout
		if l.Size.Width == 0 {
			l.Size.Width = 4
		}
		if l.Size.Height == 0 {
			l.Size.Height = 3
		}
		if l.ZIndex == 0 {
			l.ZIndex = 1
		}
		e.Layout = l
	}
	if cfg.Rendering != nil {
		r := *cfg.Rendering
		if r.Engine == "" {
			r.Engine = "native"
		}
		e.Rendering = r
	}
	if cfg.State != nil {
		e.State = *cfg.State
	}

	if e.Rendering.SourceCode == "" {
		e.Rendering.SourceCode = DefaultSourceCode(e.Type)
	}

	return e
}

// GenerateID returns a new unique widget id.
func GenerateID() string {
	return fmt.Sprintf("widget_%d_%s", time.Now().UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:9])
}

// touch bumps the updated timestamp and marks the entity dirty. Every
// mutating method goes through here.
func (e *Entity) touch() *Entity {
	e.Metadata.Updated = time.Now().UTC()
	e.State.IsDirty = true
	return e
}

// SetPosition moves the widget on the canvas.
func (e *Entity) SetPosition(p Position) *Entity {
	e.Layout.Position = p
	return e.touch()
}

// SetSize resizes the widget.
func (e *Entity) SetSize(s Size) *Entity {
	e.Layout.Size = s
	return e.touch()
}

// SetName renames the widget.
func (e *Entity) SetName(name string) *Entity {
	e.Name = name
	return e.touch()
}

// SetTitle changes the display title.
func (e *Entity) SetTitle(title string) *Entity {
	e.Title = title
	return e.touch()
}

// SetCustomCSS replaces the widget's custom stylesheet.
func (e *Entity) SetCustomCSS(css string) *Entity {
	e.Rendering.CustomCSS = css
	return e.touch()
}

// MergeConfiguration overlays entries onto the configuration map.
func (e *Entity) MergeConfiguration(cfg map[string]any) *Entity {
	if e.Configuration == nil {
		e.Configuration = make(map[string]any, len(cfg))
	}
	for k, v := range cfg {
		e.Configuration[k] = v
	}
	return e.touch()
}

// SetSourceCode replaces the rendering template.
func (e *Entity) SetSourceCode(code string) *Entity {
	e.Rendering.SourceCode = code
	return e.touch()
}

// SetError puts the entity into the error state, clearing the loading flag.
func (e *Entity) SetError(msg string) *Entity {
	e.State.HasError = true
	e.State.ErrorMessage = msg
	e.State.IsLoading = false
	return e.touch()
}

// ClearError clears any error state.
func (e *Entity) ClearError() *Entity {
	e.State.HasError = false
	e.State.ErrorMessage = ""
	return e.touch()
}

// SetLoading sets the loading flag. Entering the loading state clears any
// previous error.
func (e *Entity) SetLoading(loading bool) *Entity {
	e.State.IsLoading = loading
	if loading {
		e.State.HasError = false
		e.State.ErrorMessage = ""
	}
	return e.touch()
}

// TrackRenderTime records the duration of the last render.
func (e *Entity) TrackRenderTime(d time.Duration) *Entity {
	e.Performance.LastRenderMS = float64(d.Nanoseconds()) / 1e6
	return e.touch()
}

// SetWidgetData replaces the pushed data payload.
func (e *Entity) SetWidgetData(data *WidgetData) *Entity {
	e.WidgetData = data
	return e.touch()
}

// RenderedSourceCode substitutes the identity placeholders in the stored
// template. Values are the entity's own identity fields; no HTML escaping is
// applied here, callers that embed untrusted values must escape upstream.
func (e *Entity) RenderedSourceCode() string {
	return strings.NewReplacer(
		"{{id}}", e.ID,
		"{{title}}", e.Title,
		"{{name}}", e.Name,
		"{{type}}", e.Type,
	).Replace(e.Rendering.SourceCode)
}

// Serialize encodes the entity as indented JSON.
func (e *Entity) Serialize() ([]byte, error) {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize entity %s: %w", e.ID, err)
	}
	return data, nil
}

// Deserialize rehydrates an entity from its serialized form. The result is
// field-for-field equivalent to constructing an entity with the same config.
func Deserialize(data []byte) (*Entity, error) {
	var e Entity
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to deserialize entity: %w", err)
	}
	e.applyDefaults()
	return &e, nil
}

// applyDefaults normalizes fields the constructor would have defaulted, so a
// deserialized entity is indistinguishable from a constructed one.
func (e *Entity) applyDefaults() {
	if e.Type == "" {
		e.Type = "unknown"
	}
	if e.Name == "" {
		e.Name = e.Type + " Widget"
	}
	if e.Title == "" {
		e.Title = e.Name
	}
	if e.Version == "" {
		e.Version = "1.0.0"
	}
	if e.DataBinding.Dimensions == nil {
		e.DataBinding.Dimensions = []FieldRef{}
	}
	if e.DataBinding.Measures == nil {
		e.DataBinding.Measures = []FieldRef{}
	}
	if e.DataBinding.Filters == nil {
		e.DataBinding.Filters = []FilterRef{}
	}
	if e.Rendering.SourceCode == "" {
		e.Rendering.SourceCode = DefaultSourceCode(e.Type)
	}
	if e.Rendering.Engine == "" {
		e.Rendering.Engine = "native"
	}
}

// Clone returns a copy of the entity with a fresh id and creation timestamp.
func (e *Entity) Clone() (*Entity, error) {
	data, err := e.Serialize()
	if err != nil {
		return nil, err
	}
	clone, err := Deserialize(data)
	if err != nil {
		return nil, err
	}
	clone.ID = GenerateID()
	clone.Metadata.Created = time.Now().UTC()
	return clone, nil
}

// ValidationResult reports the outcome of a structural validation pass.
type ValidationResult struct {
	IsValid bool
	Errors  []string
}

// Validate performs a structural check: required identity fields present and
// every field/filter binding individually well-formed. Business-rule
// cardinality is the manager's job, since it depends on the widget type.
func (e *Entity) Validate() ValidationResult {
	var errs []string

	if e.ID == "" {
		errs = append(errs, "missing widget ID")
	}
	if e.Type == "" {
		errs = append(errs, "missing widget type")
	}
	if e.Name == "" {
		errs = append(errs, "missing widget name")
	}

	for i, dim := range e.DataBinding.Dimensions {
		if err := dim.validateAs(FieldTypeDimension); err != nil {
			errs = append(errs, fmt.Sprintf("invalid dimension at index %d: %v", i, err))
		}
	}
	for i, m := range e.DataBinding.Measures {
		if err := m.validateAs(FieldTypeMeasure); err != nil {
			errs = append(errs, fmt.Sprintf("invalid measure at index %d: %v", i, err))
		}
	}
	for i, f := range e.DataBinding.Filters {
		if err := f.validate(); err != nil {
			errs = append(errs, fmt.Sprintf("invalid filter at index %d: %v", i, err))
		}
	}

	return ValidationResult{IsValid: len(errs) == 0, Errors: errs}
}

// Summary is a compact view of an entity used for logging.
type Summary struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Name       string    `json:"name"`
	Dimensions int       `json:"dimensions"`
	Measures   int       `json:"measures"`
	Filters    int       `json:"filters"`
	IsLoading  bool      `json:"isLoading"`
	HasError   bool      `json:"hasError"`
	IsDirty    bool      `json:"isDirty"`
	Updated    time.Time `json:"updated"`
}

// Summarize returns the entity's compact summary.
func (e *Entity) Summarize() Summary {
	return Summary{
		ID:         e.ID,
		Type:       e.Type,
		Name:       e.Name,
		Dimensions: len(e.DataBinding.Dimensions),
		Measures:   len(e.DataBinding.Measures),
		Filters:    len(e.DataBinding.Filters),
		IsLoading:  e.State.IsLoading,
		HasError:   e.State.HasError,
		IsDirty:    e.State.IsDirty,
		Updated:    e.Metadata.Updated,
	}
}
