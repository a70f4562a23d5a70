// Package version carries build metadata injected via -ldflags.
package version

var (
	// Version is the navigator release version.
	Version = "dev"
	// GitSHA is the git commit SHA of the build.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)
