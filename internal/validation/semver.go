// semver.go provides version string validation and comparison for published
// artifact versions. The registry accepts strict MAJOR.MINOR.PATCH only, with
// no "v" prefix and no pre-release or build metadata. This is narrower than full
// semantic versioning on purpose: version strings are embedded verbatim in
// storage paths and compared as published, so the grammar leaves no room for
// equivalent-but-different spellings of the same version.
package validation

import (
	"fmt"
	"regexp"

	goversion "github.com/hashicorp/go-version"
)

var strictSemverPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// ValidateVersion validates that a version string is strict MAJOR.MINOR.PATCH.
func ValidateVersion(versionStr string) error {
	if !strictSemverPattern.MatchString(versionStr) {
		return fmt.Errorf("version must be MAJOR.MINOR.PATCH (e.g. 1.0.0), got %q", versionStr)
	}
	return nil
}

// CompareVersions compares two version strings that have already passed
// ValidateVersion. Returns -1 if v1 < v2, 0 if equal, 1 if v1 > v2.
func CompareVersions(v1Str, v2Str string) (int, error) {
	v1, err := goversion.NewVersion(v1Str)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q: %w", v1Str, err)
	}

	v2, err := goversion.NewVersion(v2Str)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q: %w", v2Str, err)
	}

	return v1.Compare(v2), nil
}
