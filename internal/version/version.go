// Package version holds build identification injected at link time via
// -ldflags "-X github.com/banshee-data/position.report/internal/version.Version=...".
package version

var (
	// Version is the release tag, or "dev" for local builds.
	Version = "dev"
	// GitSHA identifies the commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is when the binary was built.
	BuildTime = "unknown"
)

// String formats the build identification for -version output.
func String() string {
	return Version + " (" + GitSHA + ", built " + BuildTime + ")"
}
