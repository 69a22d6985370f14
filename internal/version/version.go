package version

import (
	"fmt"
	"runtime/debug"
)

//nolint:gochecknoglobals // Overridden via -ldflags "-X" at build time.
var (
	// Version is the semantic version of the build.
	Version = ""
	// Commit is the short git SHA embedded at build time.
	Commit = "none"
	// BuildTime is the UTC build timestamp embedded at build time.
	BuildTime = "unknown"
)

// develVersion is reported when neither ldflags nor module info carry a version.
const develVersion = "0.0.0-dev"

// Short returns only the semantic version string.
// Without ldflags it falls back to the main module version recorded by `go install`.
func Short() string {
	if Version != "" {
		return Version
	}

	if info, ok := debug.ReadBuildInfo(); ok {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			return v
		}
	}

	return develVersion
}

// Full returns a human-readable version string with commit and build time.
func Full() string {
	return fmt.Sprintf("puppet-deb %s, commit: %s, built at: %s", Short(), Commit, BuildTime)
}
