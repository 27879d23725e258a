package sync

import (
	"bytes"
	"encoding/csv"
	"sort"
	"strconv"
	"strings"

	"github.com/iancoleman/strcase"
)

// FieldDocRow represents a single row in the field documentation.
type FieldDocRow struct {
	Label     string // Display name (e.g., "Favorite Color")
	Name      string // Canonical column name (e.g., "favorite_color")
	External  string // Loops field key or csv header (e.g., "favoriteColor")
	FieldType string // Host column type (STRING, NUMBER, BOOLEAN, UTC_DATETIME)
	IsBuiltin bool   // Whether this is a standard Loops column
	IsKey     bool   // Whether this column is the primary key
}

// FieldDocumentation contains the field documentation for one table.
type FieldDocumentation struct {
	Table string
	Rows  []FieldDocRow
}

// GenerateFieldDocumentation documents every column of the audience table.
func GenerateFieldDocumentation(schema TableSchema) FieldDocumentation {
	doc := FieldDocumentation{
		Table: schema.Table,
		Rows:  make([]FieldDocRow, 0, len(schema.Columns)),
	}
	keys := make(map[string]bool, len(schema.PrimaryKey))
	for _, k := range schema.PrimaryKey {
		keys[k] = true
	}
	for _, c := range schema.Columns {
		doc.Rows = append(doc.Rows, FieldDocRow{
			Label:     fieldLabel(c.Canonical),
			Name:      c.Canonical,
			External:  c.External,
			FieldType: c.Type.String(),
			IsBuiltin: c.Standard,
			IsKey:     keys[c.Canonical],
		})
	}

	// Sort rows for deterministic output:
	// - builtin fields first, then custom fields
	// - within each group alphabetically by column name
	sort.SliceStable(doc.Rows, func(i, j int) bool {
		if doc.Rows[i].IsBuiltin != doc.Rows[j].IsBuiltin {
			return doc.Rows[i].IsBuiltin
		}
		return doc.Rows[i].Name < doc.Rows[j].Name
	})

	return doc
}

// fieldLabel turns a canonical name into a display label, each word camel cased.
func fieldLabel(canonical string) string {
	var parts []string
	for _, s := range strings.Split(canonical, "_") {
		if s != "" {
			parts = append(parts, strcase.ToCamel(s))
		}
	}
	return strings.Join(parts, " ")
}

// CSV renders the documentation with a header row.
func (d FieldDocumentation) CSV() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"Table", "Label", "Column", "Loops Field", "Type", "Builtin", "Primary Key"}); err != nil {
		return nil, err
	}
	for _, r := range d.Rows {
		err := w.Write([]string{
			d.Table,
			r.Label,
			r.Name,
			r.External,
			r.FieldType,
			strconv.FormatBool(r.IsBuiltin),
			strconv.FormatBool(r.IsKey),
		})
		if err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
