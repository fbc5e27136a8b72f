// Package version holds build information injected with -ldflags.
package version

import "fmt"

var (
	// Version is the semantic version.
	Version = "v0.0.0-dev"
	// GitCommit is the source revision.
	GitCommit = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// Info returns a one-line description used by `jarvis version` and /status.
func Info() string {
	return fmt.Sprintf("jarvis %s (%s) built at %s", Version, GitCommit, BuildTime)
}
