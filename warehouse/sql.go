package warehouse

import (
	"fmt"
	"sort"
	"strings"

	loopsync "github.com/homemade/loopsync/sync"
)

// dialect captures the differences between the supported databases.
type dialect struct {
	name        string
	placeholder func(n int) string
	columnType  func(t loopsync.FieldType) string
	// addColumnIfNotExists is set when ALTER TABLE ... ADD COLUMN IF NOT EXISTS is supported.
	addColumnIfNotExists bool
}

var sqliteDialect = dialect{
	name:        "sqlite",
	placeholder: func(int) string { return "?" },
	columnType: func(t loopsync.FieldType) string {
		switch t {
		case loopsync.Number:
			return "REAL"
		case loopsync.Boolean:
			return "INTEGER"
		default:
			return "TEXT"
		}
	},
}

var postgresDialect = dialect{
	name:        "postgres",
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	columnType: func(t loopsync.FieldType) string {
		switch t {
		case loopsync.Number:
			return "DOUBLE PRECISION"
		case loopsync.Boolean:
			return "BOOLEAN"
		case loopsync.Timestamp:
			return "TIMESTAMPTZ"
		default:
			return "TEXT"
		}
	},
	addColumnIfNotExists: true,
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func createTableSQL(d dialect, schema loopsync.TableSchema) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (", quoteIdent(schema.Table))
	for i, c := range schema.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s %s", quoteIdent(c.Canonical), d.columnType(c.Type))
		if isKey(schema, c.Canonical) {
			b.WriteString(" NOT NULL")
		}
	}
	if len(schema.PrimaryKey) > 0 {
		b.WriteString(", PRIMARY KEY (")
		for i, k := range schema.PrimaryKey {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(quoteIdent(k))
		}
		b.WriteString(")")
	}
	b.WriteString(")")
	return b.String()
}

func addColumnSQL(d dialect, table string, column loopsync.FieldDescriptor) string {
	ifNotExists := ""
	if d.addColumnIfNotExists {
		ifNotExists = "IF NOT EXISTS "
	}
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s%s %s", quoteIdent(table), ifNotExists, quoteIdent(column.Canonical), d.columnType(column.Type))
}

// upsertColumns returns the record's keys that are declared columns, in sorted order.
func upsertColumns(schema loopsync.TableSchema, record loopsync.Record) []string {
	declared := make(map[string]bool, len(schema.Columns))
	for _, c := range schema.Columns {
		declared[c.Canonical] = true
	}
	result := make([]string, 0, len(record))
	for k := range record {
		if declared[k] {
			result = append(result, k)
		}
	}
	sort.Strings(result)
	return result
}

func upsertSQL(d dialect, schema loopsync.TableSchema, columns []string) string {
	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	var updates []string
	for i, c := range columns {
		quoted[i] = quoteIdent(c)
		placeholders[i] = d.placeholder(i + 1)
		if !isKey(schema, c) {
			updates = append(updates, fmt.Sprintf("%s = excluded.%s", quoteIdent(c), quoteIdent(c)))
		}
	}
	keys := make([]string, len(schema.PrimaryKey))
	for i, k := range schema.PrimaryKey {
		keys[i] = quoteIdent(k)
	}
	conflict := "DO NOTHING"
	if len(updates) > 0 {
		conflict = "DO UPDATE SET " + strings.Join(updates, ", ")
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) %s",
		quoteIdent(schema.Table),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(keys, ", "),
		conflict,
	)
}

func isKey(schema loopsync.TableSchema, column string) bool {
	for _, k := range schema.PrimaryKey {
		if k == column {
			return true
		}
	}
	return false
}

func lookupSchema(schemas map[string]loopsync.TableSchema, table string) (loopsync.TableSchema, error) {
	schema, ok := schemas[table]
	if !ok {
		return schema, fmt.Errorf("table %s has not been declared, call Apply first", table)
	}
	return schema, nil
}
