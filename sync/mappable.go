package sync

import (
	"math"
	"strconv"
	"strings"
)

// Mappable is a destination MapFields can write decoded values into.
type Mappable interface {
	SetField(key string, value interface{})
}

// Record is one row of the audience table keyed by canonical field name. A nil value is null.
type Record map[string]interface{}

func (r Record) SetField(key string, value interface{}) {
	r[key] = value
}

// Email returns the primary key, always a string.
func (r Record) Email() string {
	s, _ := r[EmailField].(string)
	return s
}

// Row is one csv row with access to its cells by external column name.
type Row struct {
	cells []string
	index map[string]int
}

// StringForField returns the cell under the external column name, and whether the column is present.
func (r Row) StringForField(external string) (string, bool) {
	i, exists := r.index[external]
	if !exists || i >= len(r.cells) {
		return "", false
	}
	return r.cells[i], true
}

// MapFields decodes the cells of source onto destination using the resolved fields.
// Malformed values degrade to null (or false for booleans) and never fail the row.
func MapFields(fields FieldSet, source Row, destination Mappable) {
	for _, f := range fields.Ordered {
		value, exists := source.StringForField(f.External)
		switch f.Type {
		case String:
			if exists {
				destination.SetField(f.Canonical, value)
			} else if f.Standard {
				destination.SetField(f.Canonical, "")
			} else {
				destination.SetField(f.Canonical, nil)
			}
		case Boolean:
			destination.SetField(f.Canonical, exists && strings.EqualFold(value, "true"))
		case Number:
			if n, ok := parseNumber(value); exists && ok {
				destination.SetField(f.Canonical, n)
			} else {
				destination.SetField(f.Canonical, nil)
			}
		case Timestamp:
			if t, ok := SanitizeTimestamp(value); exists && ok {
				destination.SetField(f.Canonical, t)
			} else {
				destination.SetField(f.Canonical, nil)
			}
		}
	}
}

func parseNumber(value string) (float64, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}
