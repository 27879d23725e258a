package sync

import (
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeTimestamp(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
		ok       bool
	}{
		{"zulu", "2024-03-01T10:15:30.123Z", "2024-03-01T10:15:30.123+00:00", true},
		{"zulu without fraction", "2024-03-01T10:15:30Z", "2024-03-01T10:15:30+00:00", true},
		{"offset", "2024-03-01T10:15:30.123456+02:00", "2024-03-01T10:15:30.123456+02:00", true},
		{"empty", "", "", false},
		{"date only", "2024-03-01", "", false},
		{"garbage", "yesterday", "", false},
		{"month out of range", "2024-13-01T10:15:30.123Z", "", false},
		{"too many fraction digits", "2024-03-01T10:15:30.1234567Z", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actual, ok := SanitizeTimestamp(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, actual)
		})
	}
}

func TestSanitizeTimestamp_SameInstant(t *testing.T) {
	raw := "2023-11-05T23:59:59.999Z"
	sanitized, ok := SanitizeTimestamp(raw)
	require.True(t, ok)

	expected, err := time.Parse(time.RFC3339Nano, raw)
	require.NoError(t, err)
	actual, err := ParseSanitizedTimestamp(sanitized)
	require.NoError(t, err)
	assert.True(t, expected.Equal(actual))
}

func TestSanitizeTimestamp_OverflowedYearsWarn(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	for _, raw := range []string{"+020240-01-01T00:00:00.000Z", "20240-01-01T00:00:00.000Z"} {
		hook.Reset()
		actual, ok := SanitizeTimestamp(raw)
		assert.False(t, ok, raw)
		assert.Empty(t, actual)
		require.NotNil(t, hook.LastEntry(), raw)
		assert.Equal(t, log.WarnLevel, hook.LastEntry().Level)
		assert.Equal(t, raw, hook.LastEntry().Data["value"])
	}
}
