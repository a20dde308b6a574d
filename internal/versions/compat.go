package versions

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// MinBackendVersion is the oldest backend API the console is tested against
const MinBackendVersion = "1.0.0"

// IsNewerVersion reports whether newVersion is strictly greater than oldVersion.
// It uses semantic versioning when both strings are valid semver and falls
// back to lexicographic comparison otherwise.
func IsNewerVersion(newVersion, oldVersion string) bool {
	newSemver, errNew := semver.NewVersion(newVersion)
	oldSemver, errOld := semver.NewVersion(oldVersion)
	if errNew != nil || errOld != nil {
		return newVersion > oldVersion
	}
	return newSemver.GreaterThan(oldSemver)
}

// CheckBackend returns an error when backendVersion is a release older than
// MinBackendVersion. Development builds and unparsable versions pass.
func CheckBackend(backendVersion string) error {
	if _, err := semver.NewVersion(backendVersion); err != nil {
		return nil
	}
	if IsNewerVersion(MinBackendVersion, backendVersion) {
		return fmt.Errorf("backend version %s is older than the supported minimum %s", backendVersion, MinBackendVersion)
	}
	return nil
}
