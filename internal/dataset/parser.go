// Package dataset parses delimited data, classifies fields into dimensions
// and measures, and serves filtered, aggregated rows to widget bindings.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FieldType is the detected value type of a column.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeDate    FieldType = "date"
	TypeBoolean FieldType = "boolean"
)

// FieldRole is the classified analytical role of a column.
type FieldRole string

const (
	RoleDimension FieldRole = "dimension"
	RoleMeasure   FieldRole = "measure"
)

// Field describes one analyzed column of a data source.
type Field struct {
	Name             string    `json:"name"`
	Type             FieldType `json:"type"`
	Role             FieldRole `json:"role"`
	Cardinality      int       `json:"cardinality"`
	CardinalityRatio float64   `json:"cardinalityRatio"`
	SampleValues     []string  `json:"sampleValues"`
	Stats            *Stats    `json:"stats,omitempty"`
}

// Stats carries per-column statistics. Numeric columns get value statistics,
// string columns get length statistics.
type Stats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Sum    float64 `json:"sum"`
	Median float64 `json:"median"`
}

// Source is a parsed and analyzed dataset.
type Source struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Fields   []Field          `json:"fields"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"rowCount"`
	LoadedAt time.Time        `json:"loadedAt"`
}

// Field returns the analyzed field with the given name, or nil.
func (s *Source) Field(name string) *Field {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i]
		}
	}
	return nil
}

// ParseCSV reads a CSV document with a header row, analyzes every column and
// returns the typed source. Numeric and boolean cells are converted to their
// Go types in the row maps; everything else stays a string.
func ParseCSV(name string, r io.Reader) (*Source, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New("empty CSV input")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var records [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row: %w", err)
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, errors.New("CSV input has a header but no rows")
	}

	columns := make([][]string, len(header))
	for _, rec := range records {
		for i := range header {
			var cell string
			if i < len(rec) {
				cell = strings.TrimSpace(rec[i])
			}
			columns[i] = append(columns[i], cell)
		}
	}

	fields := make([]Field, len(header))
	for i, name := range header {
		fields[i] = analyzeColumn(name, columns[i])
	}

	rows := make([]map[string]any, len(records))
	for ri := range records {
		row := make(map[string]any, len(header))
		for ci, f := range fields {
			row[f.Name] = convertCell(columns[ci][ri], f.Type)
		}
		rows[ri] = row
	}

	return &Source{
		ID:       "ds_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		Name:     name,
		Fields:   fields,
		Rows:     rows,
		RowCount: len(rows),
		LoadedAt: time.Now().UTC(),
	}, nil
}

func convertCell(cell string, t FieldType) any {
	switch t {
	case TypeNumber:
		if v, err := strconv.ParseFloat(cell, 64); err == nil {
			return v
		}
		return cell
	case TypeBoolean:
		if v, ok := parseBool(cell); ok {
			return v
		}
		return cell
	default:
		return cell
	}
}

// ExportCSV writes the source back out as CSV, header first, preserving
// field order.
func ExportCSV(s *Source, w io.Writer) error {
	cw := csv.NewWriter(w)

	header := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		header[i] = f.Name
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, row := range s.Rows {
		rec := make([]string, len(header))
		for i, name := range header {
			rec[i] = formatCell(row[name])
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV output: %w", err)
	}
	return nil
}

func formatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
