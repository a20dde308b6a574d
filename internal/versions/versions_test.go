package versions

import (
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsNewerVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		newVersion string
		oldVersion string
		expected   bool
	}{
		{name: "newer minor version", newVersion: "1.2.0", oldVersion: "1.1.0", expected: true},
		{name: "older patch version", newVersion: "1.0.1", oldVersion: "1.0.2", expected: false},
		{name: "equal versions", newVersion: "1.0.0", oldVersion: "1.0.0", expected: false},
		{name: "prerelease vs release", newVersion: "1.0.0", oldVersion: "1.0.0-alpha", expected: true},
		{name: "v prefix", newVersion: "v2.0.0", oldVersion: "v1.0.0", expected: true},
		{name: "non-semver fallback", newVersion: "version-b", oldVersion: "version-a", expected: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, IsNewerVersion(tt.newVersion, tt.oldVersion))
		})
	}
}

func TestCheckBackend(t *testing.T) {
	t.Parallel()

	assert.NoError(t, CheckBackend("1.0.0"))
	assert.NoError(t, CheckBackend("2.3.1"))
	assert.NoError(t, CheckBackend("build-abcdef12"))
	assert.Error(t, CheckBackend("0.9.0"))
}

func TestGetVersionInfoWithValues(t *testing.T) {
	t.Parallel()

	info := getVersionInfoWithValues("1.4.0", "abc123", "2026-01-02T03:04:05Z")
	assert.Equal(t, "1.4.0", info.Version)
	assert.Equal(t, "abc123", info.Commit)
	assert.Equal(t, "2026-01-02 03:04:05 UTC", info.BuildDate)
	assert.Equal(t, runtime.Version(), info.GoVersion)

	dev := getVersionInfoWithValues("dev", "0123456789abcdef", unknownStr)
	assert.Equal(t, "build-01234567", dev.Version)
	assert.True(t, strings.Contains(dev.Platform, "/"))
}

func TestVersionInfo_String(t *testing.T) {
	t.Parallel()

	info := VersionInfo{Version: "1.2.0", Commit: "abc", BuildDate: "today", GoVersion: "go1.25", Platform: "linux/amd64"}
	assert.Equal(t, "bo-console 1.2.0 (commit abc, built today, go1.25 linux/amd64)", info.String())
}
