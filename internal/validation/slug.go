// slug.go validates organization and artifact names against the registry's
// slug grammar. Slugs appear in URLs and in storage paths, so the grammar is
// deliberately narrow: lowercase letters, digits, and hyphens, 2-50 characters.
// Organization names are additionally required to start with a letter because
// they double as namespace prefixes.
package validation

import (
	"fmt"
	"regexp"
)

const (
	// SlugMinLength is the minimum length of an organization or artifact name.
	SlugMinLength = 2

	// SlugMaxLength is the maximum length of an organization or artifact name.
	SlugMaxLength = 50

	// DescriptionMaxLength is the maximum length of an artifact description.
	DescriptionMaxLength = 500
)

var (
	slugPattern       = regexp.MustCompile(`^[a-z0-9-]+$`)
	orgPrefixPattern  = regexp.MustCompile(`^[a-z]`)
	emailLoosePattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// ValidateSlug validates an artifact name against the slug grammar.
func ValidateSlug(name string) error {
	if len(name) < SlugMinLength || len(name) > SlugMaxLength {
		return fmt.Errorf("name must be between %d and %d characters", SlugMinLength, SlugMaxLength)
	}
	if !slugPattern.MatchString(name) {
		return fmt.Errorf("name may only contain lowercase letters, digits, and hyphens")
	}
	return nil
}

// ValidateOrgName validates an organization name. The grammar is the slug
// grammar plus a leading-letter requirement.
func ValidateOrgName(name string) error {
	if err := ValidateSlug(name); err != nil {
		return err
	}
	if !orgPrefixPattern.MatchString(name) {
		return fmt.Errorf("organization name must start with a letter")
	}
	return nil
}

// ValidateEmail performs a syntactic sanity check on an email address. It is
// intentionally loose. Deliverability is the mail server's problem; this only
// rejects obvious garbage before an invitation row is created.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if !emailLoosePattern.MatchString(email) {
		return fmt.Errorf("invalid email address")
	}
	return nil
}

// ValidateDescription validates an optional artifact description.
func ValidateDescription(description string) error {
	if len(description) > DescriptionMaxLength {
		return fmt.Errorf("description must be at most %d characters", DescriptionMaxLength)
	}
	return nil
}
