package dataset

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Detection thresholds. A column is typed by the share of non-empty cells
// matching each parser.
const (
	numberThreshold  = 0.8
	dateThreshold    = 0.7
	booleanThreshold = 0.7

	// Numeric columns with few distinct values covering most rows are
	// rating-like codes, classified as dimensions despite being numbers.
	ratingCardinalityMax      = 10
	ratingCardinalityRatioMin = 0.8

	maxSampleValues = 10
)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"01/02/2006",
	"2006/01/02",
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "true", "yes", "y", "1":
		return true, true
	case "false", "no", "n", "0":
		return false, true
	}
	return false, false
}

func parseDate(s string) bool {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// analyzeColumn computes type, role, cardinality and statistics for one
// column of raw string cells.
func analyzeColumn(name string, cells []string) Field {
	var nonEmpty []string
	for _, c := range cells {
		if c != "" {
			nonEmpty = append(nonEmpty, c)
		}
	}

	f := Field{Name: name, Type: TypeString, Role: RoleDimension}
	if len(nonEmpty) == 0 {
		return f
	}

	var numbers []float64
	var numberHits, dateHits, boolHits int
	distinct := make(map[string]struct{})
	for _, c := range nonEmpty {
		distinct[c] = struct{}{}
		if v, err := strconv.ParseFloat(c, 64); err == nil {
			numberHits++
			numbers = append(numbers, v)
		}
		if parseDate(c) {
			dateHits++
		}
		if _, ok := parseBool(c); ok {
			boolHits++
		}
	}

	n := float64(len(nonEmpty))
	numberRatio := float64(numberHits) / n

	switch {
	case numberRatio >= numberThreshold:
		f.Type = TypeNumber
	case float64(dateHits)/n >= dateThreshold:
		f.Type = TypeDate
	case float64(boolHits)/n >= booleanThreshold:
		f.Type = TypeBoolean
	}

	f.Cardinality = len(distinct)
	f.CardinalityRatio = float64(f.Cardinality) / n

	samples := make([]string, 0, maxSampleValues)
	seen := make(map[string]struct{})
	for _, c := range nonEmpty {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		samples = append(samples, c)
		if len(samples) == maxSampleValues {
			break
		}
	}
	f.SampleValues = samples

	if f.Type == TypeNumber && len(numbers) > 0 {
		f.Stats = numericStats(numbers)
	} else {
		f.Stats = lengthStats(nonEmpty)
	}

	f.Role = classify(f)
	return f
}

// classify maps a detected type plus cardinality profile to a role.
func classify(f Field) FieldRole {
	if f.Type == TypeNumber {
		if f.Cardinality <= ratingCardinalityMax && f.CardinalityRatio >= ratingCardinalityRatioMin {
			return RoleDimension
		}
		return RoleMeasure
	}
	// Dates, booleans, low-cardinality codes and free text all group rows
	// rather than aggregate, so everything non-numeric is a dimension.
	return RoleDimension
}

func numericStats(values []float64) *Stats {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	var median float64
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		median = (sorted[mid-1] + sorted[mid]) / 2
	} else {
		median = sorted[mid]
	}

	return &Stats{
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Mean:   sum / float64(len(sorted)),
		Sum:    sum,
		Median: median,
	}
}

func lengthStats(cells []string) *Stats {
	lengths := make([]float64, len(cells))
	for i, c := range cells {
		lengths[i] = float64(len(c))
	}
	return numericStats(lengths)
}
