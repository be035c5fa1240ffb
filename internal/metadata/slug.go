package metadata

import (
	"fmt"
	"regexp"
)

var slugRE = regexp.MustCompile(`^[a-z0-9_]+$`)

// ValidateSlug checks the shared name grammar for entity slugs and field
// names. Uppercase, hyphens, spaces and empty strings are rejected.
func ValidateSlug(s string) error {
	if s == "" {
		return fmt.Errorf("slug must not be empty")
	}
	if !slugRE.MatchString(s) {
		return fmt.Errorf("invalid slug %q: only lowercase letters, digits and underscores are allowed", s)
	}
	return nil
}
