package sync

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// CanonicalDigitPrefix is prepended to canonical names that would otherwise start with a digit.
const CanonicalDigitPrefix = "field_"

var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9]`)

// NormalizeName converts an external Loops field key into a canonical column name.
// camelCase boundaries become underscores, every character outside [a-zA-Z0-9] becomes an underscore,
// a leading digit gets CanonicalDigitPrefix and the result is lower case.
// Normalizing a canonical name returns it unchanged.
func NormalizeName(external string) (string, error) {
	if external == "" {
		return "", fmt.Errorf("%w: name is empty", ErrInvalidFieldName)
	}

	var b strings.Builder
	b.Grow(len(external) + 4)
	var prev rune
	for i, r := range external {
		// only split on a lower-to-upper (or digit-to-upper) boundary, "Favorite Color" must not become "favorite__color"
		if i > 0 && unicode.IsUpper(r) && (unicode.IsLower(prev) || unicode.IsDigit(prev)) {
			b.WriteByte('_')
		}
		b.WriteRune(r)
		prev = r
	}

	result := nonAlphanumeric.ReplaceAllString(strings.ToLower(b.String()), "_")
	if result[0] >= '0' && result[0] <= '9' {
		result = CanonicalDigitPrefix + result
	}
	return strings.ToLower(result), nil
}

// MustNormalizeName is NormalizeName for compile time constants.
func MustNormalizeName(external string) string {
	result, err := NormalizeName(external)
	if err != nil {
		panic(err)
	}
	return result
}
