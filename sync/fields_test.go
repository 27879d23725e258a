package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLoopsFieldType(t *testing.T) {
	assert.Equal(t, String, ParseLoopsFieldType("string"))
	assert.Equal(t, Number, ParseLoopsFieldType("number"))
	assert.Equal(t, Boolean, ParseLoopsFieldType("boolean"))
	assert.Equal(t, Timestamp, ParseLoopsFieldType("date"))
	assert.Equal(t, Timestamp, ParseLoopsFieldType("Date"))
	assert.Equal(t, String, ParseLoopsFieldType("geo"))
	assert.Equal(t, String, ParseLoopsFieldType(""))
}

func TestFieldType_String(t *testing.T) {
	assert.Equal(t, "STRING", String.String())
	assert.Equal(t, "NUMBER", Number.String())
	assert.Equal(t, "BOOLEAN", Boolean.String())
	assert.Equal(t, "UTC_DATETIME", Timestamp.String())
}

func TestStandardFields(t *testing.T) {
	names := make([]string, len(StandardFields))
	for i, f := range StandardFields {
		names[i] = f.Canonical
		assert.True(t, f.Standard)
	}
	assert.Equal(t, []string{"email", "first_name", "last_name", "created_at", "updated_at", "unsubscribed"}, names)
	assert.Equal(t, "email", EmailField)
}

func TestNewFieldSet_Collisions(t *testing.T) {
	custom := []FieldDescriptor{
		{Canonical: "favorite_color", External: "favoriteColor", Type: String},
		{Canonical: "email", External: "Email", Type: String},
		{Canonical: "favorite_color", External: "Favorite Color", Type: Number},
		{Canonical: "plan", External: "plan", Type: Number},
	}
	fields, dropped := NewFieldSet(custom)

	require.Len(t, dropped, 2)
	assert.Equal(t, "Email", dropped[0].External)
	assert.Equal(t, "Favorite Color", dropped[1].External)

	assert.Len(t, fields.Ordered, len(StandardFields)+2)
	assert.Equal(t, "favoriteColor", fields.ByCanonical["favorite_color"].External)
	assert.Equal(t, String, fields.ByCanonical["favorite_color"].Type)
	assert.Equal(t, "plan", fields.ByExternal["plan"])
	_, exists := fields.ByExternal["Email"]
	assert.False(t, exists)

	f, ok := fields.Lookup("email")
	require.True(t, ok)
	assert.True(t, f.Standard)
	f, ok = fields.Lookup("plan")
	require.True(t, ok)
	assert.Equal(t, Number, f.Type)
	_, ok = fields.Lookup("missing")
	assert.False(t, ok)
}

func TestAudienceSchema(t *testing.T) {
	fields, _ := NewFieldSet([]FieldDescriptor{{Canonical: "plan", External: "plan", Type: Number}})
	schema := AudienceSchema("audience", fields)

	assert.Equal(t, "audience", schema.Table)
	assert.Equal(t, []string{"email"}, schema.PrimaryKey)
	assert.Equal(t, map[string]string{
		"email":        "STRING",
		"first_name":   "STRING",
		"last_name":    "STRING",
		"created_at":   "UTC_DATETIME",
		"updated_at":   "UTC_DATETIME",
		"unsubscribed": "BOOLEAN",
		"plan":         "NUMBER",
	}, schema.ColumnTypes())
	assert.Equal(t, "audience(7 columns, primary key email)", schema.String())
}

func TestFieldType_Text(t *testing.T) {
	for _, ft := range []FieldType{String, Number, Boolean, Timestamp} {
		b, err := ft.MarshalText()
		require.NoError(t, err)
		var parsed FieldType
		require.NoError(t, parsed.UnmarshalText(b))
		assert.Equal(t, ft, parsed)
	}
	var parsed FieldType
	assert.Error(t, parsed.UnmarshalText([]byte("DATE")))
}
