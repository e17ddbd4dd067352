package tool

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// RequireField returns an error if the value is empty or only whitespace.
func RequireField(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("'%s' is required", name)
	}
	return nil
}

// ValidateMaxLength checks that value has at most max characters.
func ValidateMaxLength(name, value string, max int) error {
	if utf8.RuneCountInString(value) > max {
		return fmt.Errorf("%s exceeds maximum length of %d", name, max)
	}
	return nil
}

// ValidateAll returns the first non-nil error.
func ValidateAll(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
