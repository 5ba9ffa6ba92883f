// Package manager owns the live set of widget entities: creation against
// registered definitions, updates, data-binding validation, persistence sync
// and lifecycle events.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gridline-labs/gridboard/internal/dataset"
	"github.com/gridline-labs/gridboard/internal/entity"
	"github.com/gridline-labs/gridboard/internal/registry"
	"github.com/gridline-labs/gridboard/internal/repository"
)

// Manager coordinates widget entities. All exported methods are safe for
// concurrent use; event listeners run synchronously on the mutating
// goroutine after the lock is released.
type Manager struct {
	mu      sync.RWMutex
	widgets map[string]*entity.Entity

	registry *registry.Registry
	repo     repository.Repository
	model    *dataset.Model
	logger   *slog.Logger
	events   *eventBus
}

// Config wires the manager's collaborators. Registry is required; Repo and
// Model are optional, disabling persistence and binding resolution
// respectively when nil.
type Config struct {
	Registry *registry.Registry
	Repo     repository.Repository
	Model    *dataset.Model
	Logger   *slog.Logger
}

// New creates a manager.
func New(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	reg := cfg.Registry
	if reg == nil {
		reg = registry.New()
	}
	return &Manager{
		widgets:  make(map[string]*entity.Entity),
		registry: reg,
		repo:     cfg.Repo,
		model:    cfg.Model,
		logger:   logger,
		events:   newEventBus(logger),
	}
}

// Registry exposes the definition catalog.
func (m *Manager) Registry() *registry.Registry {
	return m.registry
}

// Subscribe registers an event listener and returns an unsubscribe func.
func (m *Manager) Subscribe(event string, l Listener) func() {
	return m.events.subscribe(event, l)
}

// RegisterDefinition adds a widget definition and emits the registration
// event.
func (m *Manager) RegisterDefinition(d *registry.Definition) error {
	if err := m.registry.Register(d); err != nil {
		return err
	}
	m.logger.Info("widget definition registered", "type", d.Type, "version", d.Version)
	m.events.emit(EventDefinitionRegistered, d)
	return nil
}

// CreateConfig carries the caller-supplied parts of a new widget.
type CreateConfig struct {
	Type          string
	Name          string
	Title         string
	Position      *entity.Position
	Size          *entity.Size
	Configuration map[string]any
	DataBinding   *entity.DataBinding
}

// CreateWidget builds a new entity, stamps defaults from the registered
// definition when one exists, validates and stores it. Nothing is stored
// when validation fails.
func (m *Manager) CreateWidget(ctx context.Context, cfg CreateConfig) (*entity.Entity, error) {
	def, hasDef := m.registry.Get(cfg.Type)

	ecfg := entity.Config{
		Type:          cfg.Type,
		Name:          cfg.Name,
		Title:         cfg.Title,
		Configuration: cfg.Configuration,
		DataBinding:   cfg.DataBinding,
	}
	if hasDef {
		if ecfg.Name == "" {
			ecfg.Name = def.Name
		}
		ecfg.Version = def.Version
		if cfg.Configuration == nil && def.DefaultConfig != nil {
			merged := make(map[string]any, len(def.DefaultConfig))
			for k, v := range def.DefaultConfig {
				merged[k] = v
			}
			ecfg.Configuration = merged
		}
	}

	e := entity.New(ecfg)
	if cfg.Position != nil {
		e.Layout.Position = *cfg.Position
	}
	switch {
	case cfg.Size != nil:
		e.Layout.Size = *cfg.Size
	case hasDef && def.DefaultSize != nil:
		e.Layout.Size = *def.DefaultSize
	}
	if hasDef && def.CSS != "" {
		e.Rendering.CustomCSS = def.CSS
	}
	if hasDef && len(def.DemoData) > 0 {
		e.WidgetData = &entity.WidgetData{
			FormattedData: append([]entity.DataPoint(nil), def.DemoData...),
			LastUpdated:   time.Now().UTC(),
			IsLoaded:      true,
			Source:        "demo",
		}
	}

	if res := e.Validate(); !res.IsValid {
		return nil, fmt.Errorf("invalid widget: %s", res.Errors[0])
	}

	m.mu.Lock()
	m.widgets[e.ID] = e
	m.mu.Unlock()

	m.persist(ctx, e)
	m.logger.Info("widget created", "id", e.ID, "type", e.Type, "name", e.Name)
	m.events.emit(EventWidgetCreated, e)
	return e, nil
}

// Update carries a partial widget update. Nil fields are left untouched;
// Configuration entries are merged over the existing map.
type Update struct {
	Name          *string
	Title         *string
	Position      *entity.Position
	Size          *entity.Size
	SourceCode    *string
	CustomCSS     *string
	Configuration map[string]any
}

// UpdateWidget merges the update into the entity and revalidates. Returns
// false when the widget does not exist or the merged entity fails
// validation; a failed validation leaves the stored entity unchanged.
func (m *Manager) UpdateWidget(ctx context.Context, id string, u Update) bool {
	m.mu.Lock()
	e, ok := m.widgets[id]
	if !ok {
		m.mu.Unlock()
		return false
	}

	candidate, err := e.Clone()
	if err != nil {
		m.mu.Unlock()
		m.logger.Error("failed to clone widget for update", "id", id, "error", err)
		return false
	}
	candidate.ID = e.ID
	candidate.Metadata.Created = e.Metadata.Created

	applyUpdate(candidate, u)
	if res := candidate.Validate(); !res.IsValid {
		m.mu.Unlock()
		m.logger.Warn("widget update rejected", "id", id, "error", res.Errors[0])
		return false
	}

	m.widgets[id] = candidate
	m.mu.Unlock()

	m.persist(ctx, candidate)
	m.logger.Info("widget updated", "id", id)
	m.events.emit(EventWidgetUpdated, candidate)
	return true
}

func applyUpdate(e *entity.Entity, u Update) {
	if u.Name != nil {
		e.SetName(*u.Name)
	}
	if u.Title != nil {
		e.SetTitle(*u.Title)
	}
	if u.Position != nil {
		e.SetPosition(*u.Position)
	}
	if u.Size != nil {
		e.SetSize(*u.Size)
	}
	if u.SourceCode != nil {
		e.SetSourceCode(*u.SourceCode)
	}
	if u.CustomCSS != nil {
		e.SetCustomCSS(*u.CustomCSS)
	}
	if u.Configuration != nil {
		e.MergeConfiguration(u.Configuration)
	}
}

// DeleteWidget removes the entity. Returns false when no such widget exists;
// repeating a delete is safe.
func (m *Manager) DeleteWidget(ctx context.Context, id string) bool {
	m.mu.Lock()
	e, ok := m.widgets[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	delete(m.widgets, id)
	m.mu.Unlock()

	if m.repo != nil {
		if err := m.repo.Delete(ctx, id); err != nil {
			m.logger.Warn("failed to delete widget from repository", "id", id, "error", err)
		}
	}
	m.logger.Info("widget deleted", "id", id)
	m.events.emit(EventWidgetDeleted, e)
	return true
}

// ApplyDataBinding validates the binding against the widget type's
// cardinality rules and applies it. On failure the entity enters the error
// state and false is returned. On success, when a data model is wired, the
// resolved points are pushed into the entity's widget data.
func (m *Manager) ApplyDataBinding(ctx context.Context, id string, b entity.DataBinding) bool {
	m.mu.Lock()
	e, ok := m.widgets[id]
	if !ok {
		m.mu.Unlock()
		return false
	}

	if err := m.validateBinding(e.Type, b); err != nil {
		e.SetError(err.Error())
		m.mu.Unlock()
		m.logger.Warn("data binding rejected", "id", id, "error", err)
		return false
	}

	if b.Dimensions == nil {
		b.Dimensions = []entity.FieldRef{}
	}
	if b.Measures == nil {
		b.Measures = []entity.FieldRef{}
	}
	if b.Filters == nil {
		b.Filters = []entity.FilterRef{}
	}
	e.DataBinding = b
	e.MarkBindingApplied()
	e.ClearError()

	if m.model != nil && m.model.Active() != nil {
		points, err := m.model.DataForBinding(e.DataBinding)
		if err != nil {
			m.logger.Warn("failed to resolve binding data", "id", id, "error", err)
		} else {
			e.SetWidgetData(&entity.WidgetData{
				FormattedData: points,
				LastUpdated:   time.Now().UTC(),
				IsLoaded:      true,
				Source:        m.model.Active().Name,
			})
		}
	}
	m.mu.Unlock()

	m.persist(ctx, e)
	m.logger.Info("data binding applied", "id", id,
		"dimensions", len(b.Dimensions), "measures", len(b.Measures), "filters", len(b.Filters))
	m.events.emit(EventDataBindingApplied, e)
	return true
}

// GetWidget returns the entity, or nil.
func (m *Manager) GetWidget(id string) *entity.Entity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.widgets[id]
}

// GetAllWidgets returns every entity, sorted by creation time then id.
func (m *Manager) GetAllWidgets() []*entity.Entity {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*entity.Entity, 0, len(m.widgets))
	for _, e := range m.widgets {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Metadata.Created.Equal(out[j].Metadata.Created) {
			return out[i].Metadata.Created.Before(out[j].Metadata.Created)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Filter selects widgets.
type Filter struct {
	Type       string
	HasError   *bool
	HasBinding *bool
}

// FilterWidgets returns the widgets matching every set filter field, in
// GetAllWidgets order.
func (m *Manager) FilterWidgets(f Filter) []*entity.Entity {
	var out []*entity.Entity
	for _, e := range m.GetAllWidgets() {
		if f.Type != "" && e.Type != f.Type {
			continue
		}
		if f.HasError != nil && e.State.HasError != *f.HasError {
			continue
		}
		if f.HasBinding != nil && e.DataBinding.Applied != *f.HasBinding {
			continue
		}
		out = append(out, e)
	}
	return out
}

// SerializeWidget returns the JSON form of one widget.
func (m *Manager) SerializeWidget(id string) ([]byte, error) {
	e := m.GetWidget(id)
	if e == nil {
		return nil, fmt.Errorf("widget not found: %s", id)
	}
	return e.Serialize()
}

// ExportWidget is SerializeWidget under the export name used by the HTTP
// API.
func (m *Manager) ExportWidget(id string) ([]byte, error) {
	return m.SerializeWidget(id)
}

// ImportWidget deserializes an exported widget and stores it under a fresh
// id, so importing the same document twice yields two widgets.
func (m *Manager) ImportWidget(ctx context.Context, data []byte) (*entity.Entity, error) {
	e, err := entity.Deserialize(data)
	if err != nil {
		return nil, err
	}
	imported, err := e.Clone()
	if err != nil {
		return nil, err
	}
	if res := imported.Validate(); !res.IsValid {
		return nil, fmt.Errorf("invalid widget import: %s", res.Errors[0])
	}

	m.mu.Lock()
	m.widgets[imported.ID] = imported
	m.mu.Unlock()

	m.persist(ctx, imported)
	m.logger.Info("widget imported", "id", imported.ID, "type", imported.Type)
	m.events.emit(EventWidgetImported, imported)
	return imported, nil
}

// LoadFromRepository replaces the in-memory set with the repository's
// contents and returns the number loaded.
func (m *Manager) LoadFromRepository(ctx context.Context) (int, error) {
	if m.repo == nil {
		return 0, fmt.Errorf("no repository configured")
	}

	entities, err := m.repo.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load widgets: %w", err)
	}

	m.mu.Lock()
	m.widgets = make(map[string]*entity.Entity, len(entities))
	for _, e := range entities {
		m.widgets[e.ID] = e
	}
	m.mu.Unlock()

	m.logger.Info("widgets loaded from repository", "count", len(entities))
	m.events.emit(EventWidgetsLoaded, entities)
	return len(entities), nil
}

// Clear removes every widget, from memory and the repository.
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.widgets = make(map[string]*entity.Entity)
	m.mu.Unlock()

	if m.repo != nil {
		if err := m.repo.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear repository: %w", err)
		}
	}
	m.logger.Info("all widgets cleared")
	m.events.emit(EventAllWidgetsCleared, nil)
	return nil
}

// Stats summarizes the managed set.
type Stats struct {
	Total       int            `json:"total"`
	ByType      map[string]int `json:"byType"`
	WithBinding int            `json:"withBinding"`
	WithError   int            `json:"withError"`
	Definitions int            `json:"definitions"`
}

// GetStats computes the current statistics.
func (m *Manager) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{
		Total:       len(m.widgets),
		ByType:      make(map[string]int),
		Definitions: m.registry.Count(),
	}
	for _, e := range m.widgets {
		s.ByType[e.Type]++
		if e.DataBinding.Applied {
			s.WithBinding++
		}
		if e.State.HasError {
			s.WithError++
		}
	}
	return s
}

// persist saves to the repository, logging failures without surfacing them;
// the in-memory entity stays authoritative.
func (m *Manager) persist(ctx context.Context, e *entity.Entity) {
	if m.repo == nil {
		return
	}
	if err := m.repo.Save(ctx, e); err != nil {
		m.logger.Warn("failed to persist widget", "id", e.ID, "error", err)
	}
}
