// go test github.com/homemade/loopsync/sync -v
package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		external string
		expected string
	}{
		{"email", "email"},
		{"firstName", "first_name"},
		{"createdAt", "created_at"},
		{"Favorite Color", "favorite_color"},
		{"favoriteColor", "favorite_color"},
		{"plan-tier", "plan_tier"},
		{"userID", "user_id"},
		{"MRR", "mrr"},
		{"v2Plan", "v2_plan"},
		{"2fa", "field_2fa"},
		{"already_canonical", "already_canonical"},
	}
	for _, tt := range tests {
		t.Run(tt.external, func(t *testing.T) {
			actual, err := NormalizeName(tt.external)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, actual)
		})
	}
}

func TestNormalizeName_Idempotent(t *testing.T) {
	for _, external := range []string{"firstName", "Favorite Color", "2fa", "userID", "a.b/c", "lastSeenAt2"} {
		once, err := NormalizeName(external)
		require.NoError(t, err)
		twice, err := NormalizeName(once)
		require.NoError(t, err)
		assert.Equal(t, once, twice, external)
	}
}

func TestNormalizeName_OnlyWordCharacters(t *testing.T) {
	actual, err := NormalizeName("Café #1 (beta)")
	require.NoError(t, err)
	assert.Regexp(t, `^[a-z0-9_]+$`, actual)
}

func TestNormalizeName_Empty(t *testing.T) {
	_, err := NormalizeName("")
	assert.ErrorIs(t, err, ErrInvalidFieldName)
}

func TestMustNormalizeName_Panics(t *testing.T) {
	assert.Panics(t, func() { MustNormalizeName("") })
}
