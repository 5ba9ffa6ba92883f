// Package registry holds the catalog of widget definitions. A definition
// describes one widget type: its identity, binding requirements, default
// configuration, demo dataset and render function. Definitions arrive from
// Go code (built-ins) or from YAML manifest files, optionally hot-reloaded
// by a directory watcher.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gridline-labs/gridboard/internal/entity"
)

// RenderFunc produces the HTML body of a widget from its entity and the
// resolved data points.
type RenderFunc func(e *entity.Entity, data []entity.DataPoint) (string, error)

// Requirements bounds the cardinality of a widget type's data binding. A
// zero maximum means unbounded, so min-only manifests are valid.
type Requirements struct {
	MinDimensions int `json:"minDimensions" yaml:"minDimensions"`
	MaxDimensions int `json:"maxDimensions" yaml:"maxDimensions"`
	MinMeasures   int `json:"minMeasures" yaml:"minMeasures"`
	MaxMeasures   int `json:"maxMeasures" yaml:"maxMeasures"`
}

// Definition describes one registered widget type.
type Definition struct {
	Type        string `json:"type" yaml:"type"`
	Name        string `json:"name" yaml:"name"`
	Version     string `json:"version" yaml:"version"`
	Icon        string `json:"icon,omitempty" yaml:"icon"`
	Description string `json:"description,omitempty" yaml:"description"`

	Requirements  *Requirements  `json:"requirements,omitempty" yaml:"requirements"`
	DefaultConfig map[string]any `json:"defaultConfiguration,omitempty" yaml:"defaultConfiguration"`
	DefaultSize   *entity.Size   `json:"defaultSize,omitempty" yaml:"defaultSize"`
	CSS           string         `json:"css,omitempty" yaml:"css"`

	// DemoData is pushed into new entities of this type so a widget shows
	// something before a real binding is applied.
	DemoData []entity.DataPoint `json:"demoData,omitempty" yaml:"demoData"`

	// Render draws the widget body in view mode. Manifest-loaded
	// definitions resolve this by RendererName.
	Render RenderFunc `json:"-" yaml:"-"`

	// RendererName names a registered render function for manifest-loaded
	// definitions.
	RendererName string `json:"renderer,omitempty" yaml:"renderer"`
}

// Key returns the registry key, "type@version".
func (d *Definition) Key() string {
	return d.Type + "@" + d.Version
}

// Validate checks the definition is registrable.
func (d *Definition) Validate() error {
	if d.Type == "" {
		return fmt.Errorf("definition missing type")
	}
	if d.Name == "" {
		return fmt.Errorf("definition %s missing name", d.Type)
	}
	if d.Version == "" {
		return fmt.Errorf("definition %s missing version", d.Type)
	}
	if r := d.Requirements; r != nil {
		if r.MinDimensions < 0 || r.MinMeasures < 0 {
			return fmt.Errorf("definition %s has negative binding requirements", d.Type)
		}
		if r.MaxDimensions > 0 && r.MaxDimensions < r.MinDimensions {
			return fmt.Errorf("definition %s has maxDimensions below minDimensions", d.Type)
		}
		if r.MaxMeasures > 0 && r.MaxMeasures < r.MinMeasures {
			return fmt.Errorf("definition %s has maxMeasures below minMeasures", d.Type)
		}
	}
	return nil
}

// Registry is a concurrency-safe catalog of widget definitions, addressable
// by type (latest registered wins) or by type@version.
type Registry struct {
	mu sync.RWMutex

	// byKey maps "type@version" to the definition.
	byKey map[string]*Definition

	// byType maps the bare type to the most recently registered version.
	byType map[string]*Definition

	// renderers maps renderer names to functions, used to resolve the
	// Render field of manifest-loaded definitions.
	renderers map[string]RenderFunc
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		byKey:     make(map[string]*Definition),
		byType:    make(map[string]*Definition),
		renderers: make(map[string]RenderFunc),
	}
}

// RegisterRenderer makes a named render function available to
// manifest-loaded definitions.
func (r *Registry) RegisterRenderer(name string, fn RenderFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renderers[name] = fn
}

// Register adds a definition. Re-registering the same type@version replaces
// the previous entry. A definition without a Render function gets one
// resolved from its RendererName when such a renderer is registered.
func (r *Registry) Register(d *Definition) error {
	if err := d.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if d.Render == nil && d.RendererName != "" {
		d.Render = r.renderers[d.RendererName]
	}

	r.byKey[d.Key()] = d
	r.byType[d.Type] = d
	return nil
}

// Unregister removes a type@version entry. When the removed entry was the
// latest for its type, the type lookup falls back to the highest remaining
// version key, or disappears.
func (r *Registry) Unregister(widgetType, version string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := widgetType + "@" + version
	d, ok := r.byKey[key]
	if !ok {
		return false
	}
	delete(r.byKey, key)

	if r.byType[widgetType] == d {
		delete(r.byType, widgetType)
		var keys []string
		for k, other := range r.byKey {
			if other.Type == widgetType {
				keys = append(keys, k)
			}
		}
		if len(keys) > 0 {
			sort.Strings(keys)
			r.byType[widgetType] = r.byKey[keys[len(keys)-1]]
		}
	}
	return true
}

// Get returns the latest definition for a type.
func (r *Registry) Get(widgetType string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byType[widgetType]
	return d, ok
}

// GetVersion returns one exact type@version definition.
func (r *Registry) GetVersion(widgetType, version string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byKey[widgetType+"@"+version]
	return d, ok
}

// Has reports whether any version of a type is registered.
func (r *Registry) Has(widgetType string) bool {
	_, ok := r.Get(widgetType)
	return ok
}

// List returns the latest definition of every type, sorted by type.
func (r *Registry) List() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Definition, 0, len(r.byType))
	for _, d := range r.byType {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Count returns the number of registered type@version entries.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKey)
}
