// Package version holds the build version string, overridable via
// -ldflags "-X github.com/marmos91/transferd/internal/version.Version=...".
package version

// Version defaults to "dev" for builds that don't set it explicitly.
var Version = "dev"
