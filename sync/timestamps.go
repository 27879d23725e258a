package sync

import (
	"regexp"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// TimestampLayout is the shape of a sanitized timestamp, optional fractional seconds and an explicit offset.
const TimestampLayout = "2006-01-02T15:04:05.999999-07:00"

var strictTimestamp = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d{1,6})?[+-]\d{2}:\d{2}$`)

// SanitizeTimestamp validates a Loops timestamp and rewrites a trailing Z as +00:00.
// It reports false for empty, malformed or out of range values, which are stored as null.
func SanitizeTimestamp(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	if strings.HasPrefix(raw, "+") {
		log.WithField("value", raw).Warn("Dropping timestamp with a signed year")
		return "", false
	}
	year, _, _ := strings.Cut(raw, "-")
	if len(year) > 4 && isDigits(year) {
		log.WithField("value", raw).Warn("Dropping timestamp with a year after 9999")
		return "", false
	}

	value := raw
	if strings.HasSuffix(value, "Z") {
		value = strings.TrimSuffix(value, "Z") + "+00:00"
	}
	if !strictTimestamp.MatchString(value) {
		log.WithField("value", raw).Warn("Dropping timestamp that does not match " + TimestampLayout)
		return "", false
	}
	if _, err := time.Parse(TimestampLayout, value); err != nil {
		log.WithField("value", raw).WithError(err).Warn("Dropping invalid timestamp")
		return "", false
	}
	return value, true
}

// ParseSanitizedTimestamp parses a value returned by SanitizeTimestamp.
func ParseSanitizedTimestamp(value string) (time.Time, error) {
	return time.Parse(TimestampLayout, value)
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
