// Package version reports the build version of eluash.
package version

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Set at link time:
//
//	go build -ldflags "-X github.com/atinylittleshell/eluash/internal/version.BuildVersion=1.2.0"
var (
	BuildVersion = "dev"
	GitRevision  = ""
)

// String returns the version reported to users and scripts. A git
// revision takes precedence over the build version.
func String() string {
	return format(BuildVersion, GitRevision)
}

func format(buildVersion, gitRevision string) string {
	if rev := strings.TrimSpace(gitRevision); rev != "" {
		return rev
	}

	v, err := semver.NewVersion(strings.TrimSpace(buildVersion))
	if err != nil {
		return buildVersion
	}
	return "v" + v.String()
}

// IsDev reports whether this is an unreleased build.
func IsDev() bool {
	return BuildVersion == "dev" && GitRevision == ""
}
