package validation

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxFieldNameLength bounds stored field names in characters, matching the
// varchar column; longer names are rejected before touching storage.
const MaxFieldNameLength = 128

// ValidateFieldName validates a lockable field name
func ValidateFieldName(name string) error {
	if name == "" {
		return fmt.Errorf("field name cannot be empty")
	}

	if !utf8.ValidString(name) {
		return fmt.Errorf("field name is not valid UTF-8")
	}

	if count := utf8.RuneCountInString(name); count > MaxFieldNameLength {
		return fmt.Errorf("invalid field name length: expected at most %d characters, got %d", MaxFieldNameLength, count)
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("field name contains control characters")
		}
	}

	return nil
}

// NormalizeFieldName trims surrounding whitespace so sloppy clients contend
// on the same lock key
func NormalizeFieldName(name string) string {
	return strings.TrimSpace(name)
}

// ValidateAndNormalizeFieldName validates a field name and returns its normalized form
func ValidateAndNormalizeFieldName(name string) (string, error) {
	normalized := NormalizeFieldName(name)
	if err := ValidateFieldName(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
