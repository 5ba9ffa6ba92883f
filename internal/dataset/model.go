package dataset

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/gridline-labs/gridboard/internal/entity"
)

// ErrNoActiveSource is returned when a query needs a source but none is
// active.
var ErrNoActiveSource = errors.New("no active data source")

// Model holds the loaded data sources and answers binding queries. Safe for
// concurrent use.
type Model struct {
	mu       sync.RWMutex
	sources  map[string]*Source
	activeID string
	logger   *slog.Logger
}

// ModelConfig configures a Model.
type ModelConfig struct {
	Logger *slog.Logger
}

// NewModel creates an empty model.
func NewModel(cfg ModelConfig) *Model {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Model{sources: make(map[string]*Source), logger: logger}
}

// AddSource registers a source. The first source added becomes active.
func (m *Model) AddSource(s *Source) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[s.ID] = s
	if m.activeID == "" {
		m.activeID = s.ID
	}
	m.logger.Info("data source added", "id", s.ID, "name", s.Name, "rows", s.RowCount)
}

// SetActive switches the active source.
func (m *Model) SetActive(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sources[id]; !ok {
		return fmt.Errorf("unknown data source %s", id)
	}
	m.activeID = id
	return nil
}

// Active returns the active source, or nil.
func (m *Model) Active() *Source {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sources[m.activeID]
}

// Source returns a source by id, or nil.
func (m *Model) Source(id string) *Source {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sources[id]
}

// Sources lists all sources sorted by name.
func (m *Model) Sources() []*Source {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Source, 0, len(m.sources))
	for _, s := range m.sources {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RemoveSource drops a source. Removing the active source deactivates it.
func (m *Model) RemoveSource(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sources[id]; !ok {
		return false
	}
	delete(m.sources, id)
	if m.activeID == id {
		m.activeID = ""
		for sid := range m.sources {
			m.activeID = sid
			break
		}
	}
	return true
}

// UniqueValues returns the distinct values of a field in the active source,
// sorted as strings.
func (m *Model) UniqueValues(field string) ([]string, error) {
	s := m.Active()
	if s == nil {
		return nil, ErrNoActiveSource
	}
	seen := make(map[string]struct{})
	var out []string
	for _, row := range s.Rows {
		v := formatCell(row[field])
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

// FilteredRows applies the active filters to the active source's rows.
// Rows that fail any active filter are excluded; inactive filters are
// ignored.
func (m *Model) FilteredRows(filters []entity.FilterRef) ([]map[string]any, error) {
	s := m.Active()
	if s == nil {
		return nil, ErrNoActiveSource
	}

	active := filters[:0:0]
	for _, f := range filters {
		if f.IsActive {
			active = append(active, f)
		}
	}
	if len(active) == 0 {
		return s.Rows, nil
	}

	var out []map[string]any
	for _, row := range s.Rows {
		if rowMatches(row, active) {
			out = append(out, row)
		}
	}
	return out, nil
}

func rowMatches(row map[string]any, filters []entity.FilterRef) bool {
	for _, f := range filters {
		if !cellMatches(row[f.Column()], f) {
			return false
		}
	}
	return true
}

func cellMatches(v any, f entity.FilterRef) bool {
	switch f.Operator {
	case entity.OpEquals:
		return formatCell(v) == formatCell(f.Value)
	case entity.OpContains:
		return strings.Contains(
			strings.ToLower(formatCell(v)),
			strings.ToLower(formatCell(f.Value)),
		)
	case entity.OpGreater:
		a, b, ok := numericPair(v, f.Value)
		return ok && a > b
	case entity.OpLess:
		a, b, ok := numericPair(v, f.Value)
		return ok && a < b
	case entity.OpBetween:
		a, lo, ok := numericPair(v, f.Value)
		if !ok {
			return false
		}
		hi, ok2 := toFloat(f.Value2)
		return ok2 && a >= lo && a <= hi
	}
	return false
}

func numericPair(a, b any) (float64, float64, bool) {
	af, ok1 := toFloat(a)
	bf, ok2 := toFloat(b)
	return af, bf, ok1 && ok2
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	}
	return 0, false
}

// Aggregate groups the rows by dimension and reduces the measure per group.
// Group order follows first appearance in the row slice, so repeated calls
// over the same rows are deterministic.
func Aggregate(rows []map[string]any, dimension string, measure string, agg entity.Aggregation) []entity.DataPoint {
	type group struct {
		values []float64
		count  int
	}

	groups := make(map[string]*group)
	var order []string
	for _, row := range rows {
		label := formatCell(row[dimension])
		g, ok := groups[label]
		if !ok {
			g = &group{}
			groups[label] = g
			order = append(order, label)
		}
		g.count++
		if v, ok := toFloat(row[measure]); ok {
			g.values = append(g.values, v)
		}
	}

	out := make([]entity.DataPoint, 0, len(order))
	for _, label := range order {
		g := groups[label]
		out = append(out, entity.DataPoint{Label: label, Value: reduce(g.values, g.count, agg)})
	}
	return out
}

func reduce(values []float64, count int, agg entity.Aggregation) float64 {
	if agg == entity.AggCount {
		return float64(count)
	}
	if len(values) == 0 {
		return 0
	}

	switch agg {
	case entity.AggAvg:
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum / float64(len(values))
	case entity.AggMin:
		min := values[0]
		for _, v := range values[1:] {
			if v < min {
				min = v
			}
		}
		return min
	case entity.AggMax:
		max := values[0]
		for _, v := range values[1:] {
			if v > max {
				max = v
			}
		}
		return max
	default:
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum
	}
}

// DataForBinding resolves a widget's binding against the active source:
// filters first, then grouping by the first dimension with the first measure
// aggregated. A binding without dimensions yields a single total point; a
// binding without measures counts rows per group.
func (m *Model) DataForBinding(b entity.DataBinding) ([]entity.DataPoint, error) {
	rows, err := m.FilteredRows(b.Filters)
	if err != nil {
		return nil, err
	}

	var dimension string
	if len(b.Dimensions) > 0 {
		dimension = b.Dimensions[0].FieldName
	}

	measure := ""
	agg := entity.AggCount
	if len(b.Measures) > 0 {
		measure = b.Measures[0].FieldName
		agg = b.Measures[0].Aggregation
		if agg == "" {
			agg = entity.AggSum
		}
	}

	if dimension == "" {
		total := reduceAll(rows, measure, agg)
		label := "Total"
		if measure != "" {
			label = measure
		}
		return []entity.DataPoint{{Label: label, Value: total}}, nil
	}

	return Aggregate(rows, dimension, measure, agg), nil
}

func reduceAll(rows []map[string]any, measure string, agg entity.Aggregation) float64 {
	if agg == entity.AggCount || measure == "" {
		return float64(len(rows))
	}
	var values []float64
	for _, row := range rows {
		if v, ok := toFloat(row[measure]); ok {
			values = append(values, v)
		}
	}
	return reduce(values, len(rows), agg)
}
