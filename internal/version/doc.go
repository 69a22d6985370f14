// Package version exposes build metadata for puppet-deb.
//
// Version, Commit and BuildTime are injected with -ldflags; Short falls back
// to the module version from runtime/debug build info for `go install` builds.
package version
