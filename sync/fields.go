package sync

import (
	"fmt"
	"strings"
)

// FieldType is the coerced type of a column.
type FieldType int64

const (
	String FieldType = iota
	Number
	Boolean
	Timestamp
)

func (t FieldType) String() string {
	switch t {
	case Number:
		return "NUMBER"
	case Boolean:
		return "BOOLEAN"
	case Timestamp:
		return "UTC_DATETIME"
	default:
		return "STRING"
	}
}

// MarshalText lets FieldType render as its host type name in json and yaml output.
func (t FieldType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *FieldType) UnmarshalText(text []byte) error {
	for _, candidate := range []FieldType{String, Number, Boolean, Timestamp} {
		if candidate.String() == string(text) {
			*t = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown field type %q", text)
}

// ParseLoopsFieldType maps a Loops custom field type tag onto a FieldType.
// Unrecognised tags fall back to String rather than failing the run.
func ParseLoopsFieldType(tag string) FieldType {
	switch strings.ToLower(tag) {
	case "string":
		return String
	case "number":
		return Number
	case "boolean":
		return Boolean
	case "date":
		return Timestamp
	default:
		return String
	}
}

// FieldDescriptor describes one column of the audience table.
type FieldDescriptor struct {
	Canonical string    `json:"name" yaml:"name"`
	External  string    `json:"external" yaml:"external"`
	Type      FieldType `json:"type" yaml:"type"`
	Standard  bool      `json:"standard" yaml:"standard"`
}

// EmailField is the canonical name of the audience primary key.
var EmailField = MustNormalizeName("email")

// StandardFields are the columns every Loops audience export carries.
var StandardFields = []FieldDescriptor{
	standardField("email", String),
	standardField("firstName", String),
	standardField("lastName", String),
	standardField("createdAt", Timestamp),
	standardField("updatedAt", Timestamp),
	standardField("unsubscribed", Boolean),
}

func standardField(external string, t FieldType) FieldDescriptor {
	return FieldDescriptor{
		Canonical: MustNormalizeName(external),
		External:  external,
		Type:      t,
		Standard:  true,
	}
}

// FieldSet is the resolved column mapping for one run.
// ByCanonical and ByExternal only hold custom fields, Ordered holds standard then custom fields.
type FieldSet struct {
	ByCanonical map[string]FieldDescriptor
	ByExternal  map[string]string
	Ordered     []FieldDescriptor
}

// NewFieldSet builds a FieldSet from the custom fields reported by Loops.
// A custom field whose canonical name collides with a standard field or an earlier custom field is
// skipped and returned in dropped.
func NewFieldSet(custom []FieldDescriptor) (result FieldSet, dropped []FieldDescriptor) {
	result.ByCanonical = make(map[string]FieldDescriptor, len(custom))
	result.ByExternal = make(map[string]string, len(custom))
	result.Ordered = make([]FieldDescriptor, 0, len(StandardFields)+len(custom))

	taken := make(map[string]bool, len(StandardFields)+len(custom))
	for _, f := range StandardFields {
		taken[f.Canonical] = true
		result.Ordered = append(result.Ordered, f)
	}
	for _, f := range custom {
		if taken[f.Canonical] {
			dropped = append(dropped, f)
			continue
		}
		taken[f.Canonical] = true
		result.ByCanonical[f.Canonical] = f
		result.ByExternal[f.External] = f.Canonical
		result.Ordered = append(result.Ordered, f)
	}
	return result, dropped
}

// Lookup returns the descriptor for a canonical name, standard or custom.
func (s FieldSet) Lookup(canonical string) (FieldDescriptor, bool) {
	for _, f := range StandardFields {
		if f.Canonical == canonical {
			return f, true
		}
	}
	f, ok := s.ByCanonical[canonical]
	return f, ok
}

// TableSchema is the host schema declaration for one table.
type TableSchema struct {
	Table      string            `json:"table" yaml:"table"`
	PrimaryKey []string          `json:"primary_key" yaml:"primary_key"`
	Columns    []FieldDescriptor `json:"columns" yaml:"columns"`
}

// AudienceSchema declares the audience table for a resolved FieldSet.
func AudienceSchema(table string, fields FieldSet) TableSchema {
	return TableSchema{
		Table:      table,
		PrimaryKey: []string{EmailField},
		Columns:    fields.Ordered,
	}
}

// ColumnTypes returns canonical name to host type name, the shape of the host's column map.
func (s TableSchema) ColumnTypes() map[string]string {
	result := make(map[string]string, len(s.Columns))
	for _, c := range s.Columns {
		result[c.Canonical] = c.Type.String()
	}
	return result
}

func (s TableSchema) String() string {
	return fmt.Sprintf("%s(%d columns, primary key %s)", s.Table, len(s.Columns), strings.Join(s.PrimaryKey, ","))
}
